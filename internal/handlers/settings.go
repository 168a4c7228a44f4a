package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/database"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/settings"
)

type SettingsHandler struct {
	store *settings.Store
}

func NewSettingsHandler(store *settings.Store) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// List returns all system preferences, optionally filtered by domain.
func (h *SettingsHandler) List(c *fiber.Ctx) error {
	query := database.DB.Order("domain, key")
	if domain := c.Query("domain"); domain != "" {
		query = query.Where("domain = ?", domain)
	}

	var prefs []models.SystemPreference
	if err := query.Find(&prefs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch settings",
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    prefs,
	})
}

type settingRequest struct {
	Domain string `json:"domain"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

// Set upserts one preference and invalidates the cache so enforcement
// picks the change up immediately.
func (h *SettingsHandler) Set(c *fiber.Ctx) error {
	var req settingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Domain == "" || req.Key == "" {
		return badRequest(c, "Domain and key are required")
	}

	if err := h.store.Set(req.Domain, req.Key, req.Value); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to save setting",
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"domain": req.Domain,
			"key":    req.Key,
			"value":  req.Value,
		},
	})
}
