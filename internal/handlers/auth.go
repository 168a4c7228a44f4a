package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/config"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/database"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/middleware"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
)

type AuthHandler struct {
	cfg *config.Config
}

func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

type loginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	TwoFACode string `json:"two_fa_code"`
}

type twoFAStatus int

const (
	twoFAOK twoFAStatus = iota
	twoFARequired
	twoFAInvalid
)

// checkTwoFactor gates a password-authenticated login on the user's
// TOTP code when two-factor is enabled.
func checkTwoFactor(user *models.User, code string) twoFAStatus {
	if !user.TwoFactorEnabled {
		return twoFAOK
	}
	if code == "" {
		return twoFARequired
	}
	if !totp.Validate(code, user.TwoFactorSecret) {
		return twoFAInvalid
	}
	return twoFAOK
}

// Login authenticates a staff user and issues a JWT.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Username == "" || req.Password == "" {
		return badRequest(c, "Username and password are required")
	}

	var user models.User
	if err := database.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		return unauthorized(c)
	}
	if !user.IsActive {
		return unauthorized(c)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return unauthorized(c)
	}

	switch checkTwoFactor(&user, req.TwoFACode) {
	case twoFARequired:
		// Password accepted; the client has to retry with a code.
		return c.JSON(fiber.Map{
			"success":      false,
			"requires_2fa": true,
			"message":      "2FA code required",
		})
	case twoFAInvalid:
		return unauthorized(c)
	}

	token, err := middleware.GenerateToken(&user, h.cfg)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to generate token",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"token": token,
			"user":  user,
		},
	})
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user, _ := c.Locals("user").(*models.User)
	if user == nil {
		return unauthorized(c)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    user,
	})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"message": "Invalid credentials",
	})
}
