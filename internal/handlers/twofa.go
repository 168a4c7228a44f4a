package handlers

import (
	"bytes"
	"encoding/base64"
	"image/png"

	"github.com/gofiber/fiber/v2"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/database"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
)

const totpIssuer = "Dotmac Operations"

type TwoFAHandler struct{}

func NewTwoFAHandler() *TwoFAHandler {
	return &TwoFAHandler{}
}

// Setup generates a fresh TOTP secret plus provisioning QR code. The
// secret stays disabled until Verify confirms the authenticator.
func (h *TwoFAHandler) Setup(c *fiber.Ctx) error {
	user, _ := c.Locals("user").(*models.User)
	if user == nil {
		return unauthorized(c)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: user.Username,
	})
	if err != nil {
		return serverError(c, "Failed to generate 2FA secret")
	}

	img, err := key.Image(200, 200)
	if err != nil {
		return serverError(c, "Failed to generate QR code")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return serverError(c, "Failed to encode QR code")
	}

	if err := database.DB.Model(&models.User{}).Where("id = ?", user.ID).
		Update("two_factor_secret", key.Secret()).Error; err != nil {
		return serverError(c, "Failed to store 2FA secret")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"secret":  key.Secret(),
			"qr_code": "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
			"otpauth": key.URL(),
		},
	})
}

// Verify checks the first code from the authenticator and enables
// two-factor for the account.
func (h *TwoFAHandler) Verify(c *fiber.Ctx) error {
	user, _ := c.Locals("user").(*models.User)
	if user == nil {
		return unauthorized(c)
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Code == "" {
		return badRequest(c, "Code is required")
	}

	var fresh models.User
	if err := database.DB.First(&fresh, user.ID).Error; err != nil {
		return serverError(c, "Failed to load user")
	}
	if fresh.TwoFactorSecret == "" {
		return badRequest(c, "2FA not set up. Call setup first")
	}
	if !totp.Validate(req.Code, fresh.TwoFactorSecret) {
		return badRequest(c, "Invalid code")
	}

	if err := database.DB.Model(&models.User{}).Where("id = ?", user.ID).
		Update("two_factor_enabled", true).Error; err != nil {
		return serverError(c, "Failed to enable 2FA")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "2FA enabled",
	})
}

// Disable turns two-factor off again. It requires the account password
// and a current code so a stolen session cannot weaken the account.
func (h *TwoFAHandler) Disable(c *fiber.Ctx) error {
	user, _ := c.Locals("user").(*models.User)
	if user == nil {
		return unauthorized(c)
	}

	var req struct {
		Password string `json:"password"`
		Code     string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	var fresh models.User
	if err := database.DB.First(&fresh, user.ID).Error; err != nil {
		return serverError(c, "Failed to load user")
	}
	if !fresh.TwoFactorEnabled {
		return badRequest(c, "2FA is not enabled")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(fresh.PasswordHash), []byte(req.Password)); err != nil {
		return badRequest(c, "Invalid password")
	}
	if !totp.Validate(req.Code, fresh.TwoFactorSecret) {
		return badRequest(c, "Invalid 2FA code")
	}

	if err := database.DB.Model(&models.User{}).Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"two_factor_enabled": false,
			"two_factor_secret":  "",
		}).Error; err != nil {
		return serverError(c, "Failed to disable 2FA")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "2FA disabled",
	})
}

// Status reports whether two-factor is enabled for the account.
func (h *TwoFAHandler) Status(c *fiber.Ctx) error {
	user, _ := c.Locals("user").(*models.User)
	if user == nil {
		return unauthorized(c)
	}

	var fresh models.User
	if err := database.DB.First(&fresh, user.ID).Error; err != nil {
		return serverError(c, "Failed to load user")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"enabled": fresh.TwoFactorEnabled,
		},
	})
}
