package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/database"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/logging"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/provisioning"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/security"
)

type NasHandler struct{}

func NewNasHandler() *NasHandler {
	return &NasHandler{}
}

// List returns all NAS devices.
func (h *NasHandler) List(c *fiber.Ctx) error {
	var nasList []models.NasDevice
	if err := database.DB.Order("name ASC").Find(&nasList).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch NAS devices",
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    nasList,
	})
}

// Get returns a single NAS device with its connection rules and the
// count of sessions currently open on it.
func (h *NasHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid NAS ID")
	}

	var nas models.NasDevice
	if err := database.DB.First(&nas, id).Error; err != nil {
		return notFound(c, "NAS not found")
	}

	var rules []models.NasConnectionRule
	database.DB.Where("nas_device_id = ?", nas.ID).Order("priority ASC").Find(&rules)

	var sessionCount int64
	database.DB.Model(&models.RadAcct{}).
		Where("nas_ip_address = ? AND acct_stop_time IS NULL AND acct_status_type <> ?", nas.IPAddress, "Stop").
		Count(&sessionCount)

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"nas":              nas,
			"connection_rules": rules,
			"active_sessions":  sessionCount,
		},
	})
}

type nasRequest struct {
	Name                  string                 `json:"name"`
	IPAddress             string                 `json:"ip_address"`
	Vendor                models.Vendor          `json:"vendor"`
	Secret                string                 `json:"secret"`
	CoAPort               int                    `json:"coa_port"`
	SSHUsername           string                 `json:"ssh_username"`
	SSHPassword           string                 `json:"ssh_password"`
	SSHPort               int                    `json:"ssh_port"`
	APIUsername           string                 `json:"api_username"`
	APIPassword           string                 `json:"api_password"`
	APIPort               int                    `json:"api_port"`
	DefaultConnectionType *models.ConnectionType `json:"default_connection_type"`
	IsActive              *bool                  `json:"is_active"`
}

// Create registers a NAS device, encrypting its secrets at rest.
func (h *NasHandler) Create(c *fiber.Ctx) error {
	var req nasRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Name == "" || req.IPAddress == "" {
		return badRequest(c, "Name and IP address are required")
	}
	if req.DefaultConnectionType != nil && !req.DefaultConnectionType.Valid() {
		return badRequest(c, "Unknown connection type")
	}

	nas := models.NasDevice{
		Name:                  req.Name,
		IPAddress:             req.IPAddress,
		Vendor:                req.Vendor,
		CoAPort:               req.CoAPort,
		SSHUsername:           req.SSHUsername,
		SSHPort:               req.SSHPort,
		APIUsername:           req.APIUsername,
		APIPort:               req.APIPort,
		DefaultConnectionType: req.DefaultConnectionType,
		IsActive:              true,
	}
	if req.IsActive != nil {
		nas.IsActive = *req.IsActive
	}

	var err error
	if nas.Secret, err = security.EncryptSecret(req.Secret); err != nil {
		return badRequest(c, "Failed to encrypt secret")
	}
	if nas.SSHPassword, err = security.EncryptSecret(req.SSHPassword); err != nil {
		return badRequest(c, "Failed to encrypt SSH password")
	}
	if nas.APIPassword, err = security.EncryptSecret(req.APIPassword); err != nil {
		return badRequest(c, "Failed to encrypt API password")
	}

	if err := database.DB.Create(&nas).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create NAS",
		})
	}
	database.InvalidateNASCache()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    nas,
	})
}

type connectionRuleRequest struct {
	Priority        int                    `json:"priority"`
	MatchExpression string                 `json:"match_expression"`
	ConnectionType  *models.ConnectionType `json:"connection_type"`
	IsActive        *bool                  `json:"is_active"`
}

// SetRules replaces the NAS's connection rules, warning about
// malformed expressions without rejecting them (malformed rules never
// match at resolution time).
func (h *NasHandler) SetRules(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid NAS ID")
	}
	var nas models.NasDevice
	if err := database.DB.First(&nas, id).Error; err != nil {
		return notFound(c, "NAS not found")
	}

	var reqs []connectionRuleRequest
	if err := c.BodyParser(&reqs); err != nil {
		return badRequest(c, "Invalid request body")
	}

	rules := make([]models.NasConnectionRule, 0, len(reqs))
	for _, r := range reqs {
		if r.ConnectionType != nil && !r.ConnectionType.Valid() {
			return badRequest(c, "Unknown connection type")
		}
		rule := models.NasConnectionRule{
			NasDeviceID:     nas.ID,
			Priority:        r.Priority,
			MatchExpression: r.MatchExpression,
			ConnectionType:  r.ConnectionType,
			IsActive:        true,
		}
		if r.IsActive != nil {
			rule.IsActive = *r.IsActive
		}
		rules = append(rules, rule)
	}

	malformed := provisioning.ValidateConnectionRules(rules, logging.L())
	if malformed > 0 {
		logging.L().Warn("saving nas rules with malformed expressions",
			zap.Uint("nas_id", nas.ID), zap.Int("malformed", malformed))
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("nas_device_id = ?", nas.ID).Delete(&models.NasConnectionRule{}).Error; err != nil {
			return err
		}
		if len(rules) > 0 {
			return tx.Create(&rules).Error
		}
		return nil
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to replace rules",
		})
	}
	database.InvalidateNASCache()

	return c.JSON(fiber.Map{
		"success": true,
		"data":    rules,
		"meta":    fiber.Map{"malformed": malformed},
	})
}
