package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/database"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/provisioning"
)

type ProvisioningHandler struct{}

func NewProvisioningHandler() *ProvisioningHandler {
	return &ProvisioningHandler{}
}

// ConnectionType reports the resolved connection type for a
// subscription.
func (h *ProvisioningHandler) ConnectionType(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid subscription ID")
	}

	input, err := provisioning.LoadInput(database.DB, uint(id))
	if err != nil {
		return notFound(c, "Subscription not found")
	}
	connType := provisioning.ResolveConnectionType(input.Subscription, input.Profile, input.Nas, input.Rules)

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"connection_type": connType},
	})
}

// Attributes previews the RADIUS reply attribute set the subscription
// would receive on its next authentication.
func (h *ProvisioningHandler) Attributes(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid subscription ID")
	}

	attrs, err := provisioning.BuildReplyAttributesForSubscription(database.DB, uint(id))
	if err != nil {
		return notFound(c, "Subscription not found")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    attrs,
	})
}

// Commands previews the RouterOS commands for a provisioning action.
func (h *ProvisioningHandler) Commands(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid subscription ID")
	}
	action := provisioning.NasAction(c.Query("action", string(provisioning.ActionCreate)))
	switch action {
	case provisioning.ActionCreate, provisioning.ActionDelete, provisioning.ActionSuspend, provisioning.ActionUnsuspend:
	default:
		return badRequest(c, "Invalid action")
	}

	commands, err := provisioning.BuildNasCommandsForSubscription(database.DB, uint(id), action)
	if err != nil {
		return notFound(c, "Subscription not found")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"action": action, "commands": commands},
	})
}

type provisionRequest struct {
	Operation string                 `json:"operation"`
	Connector map[string]interface{} `json:"connector"`
	Config    map[string]interface{} `json:"config"`
}

// Provision runs a vendor adapter operation against a NAS device.
func (h *ProvisioningHandler) Provision(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid NAS ID")
	}
	var nas models.NasDevice
	if err := database.DB.First(&nas, id).Error; err != nil {
		return notFound(c, "NAS not found")
	}

	var req provisionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	provisioner := provisioning.GetProvisioner(nas.Vendor)
	pc := provisioning.ConnectorContext{Connector: req.Connector}
	cfg := provisioning.Config(req.Config)

	var result provisioning.Result
	switch req.Operation {
	case "assign_ont":
		result, err = provisioner.AssignONT(c.Context(), pc, cfg)
	case "push_config":
		result, err = provisioner.PushConfig(c.Context(), pc, cfg)
	case "confirm_up":
		result, err = provisioner.ConfirmUp(c.Context(), pc, cfg)
	default:
		return badRequest(c, "Unknown operation")
	}
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}
