package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/coa"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/database"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/enforcement"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/provisioning"
)

type SessionHandler struct {
	engine *enforcement.Engine
	store  enforcement.LifecycleStore
}

func NewSessionHandler(engine *enforcement.Engine, store enforcement.LifecycleStore) *SessionHandler {
	return &SessionHandler{engine: engine, store: store}
}

// List returns active sessions, optionally filtered by NAS IP or
// username.
func (h *SessionHandler) List(c *fiber.Ctx) error {
	query := database.DB.
		Where("acct_stop_time IS NULL AND acct_status_type <> ?", "Stop").
		Order("acct_start_time DESC")

	if nasIP := c.Query("nas_ip"); nasIP != "" {
		query = query.Where("nas_ip_address = ?", nasIP)
	}
	if username := c.Query("username"); username != "" {
		query = query.Where("username = ?", username)
	}

	var sessions []models.RadAcct
	if err := query.Limit(500).Find(&sessions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch sessions",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    sessions,
	})
}

// Disconnect tears down all active sessions of a subscription.
func (h *SessionHandler) Disconnect(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid subscription ID")
	}

	count, err := h.engine.DisconnectSubscriptionSessions(c.Context(), uint(id))
	if err != nil {
		if errors.Is(err, enforcement.ErrNotFound) {
			return notFound(c, "Subscription not found")
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to disconnect sessions",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"disconnected": count},
	})
}

// Refresh pushes the subscription's current profile attributes onto
// its live sessions via CoA, disconnecting sessions that reject the
// update.
func (h *SessionHandler) Refresh(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid subscription ID")
	}

	sub, err := h.store.Subscription(uint(id))
	if err != nil {
		if errors.Is(err, enforcement.ErrNotFound) {
			return notFound(c, "Subscription not found")
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to load subscription",
		})
	}

	attrs := coa.UpdateAttributes{}
	if profileID := sub.EffectiveProfileID(); profileID != nil {
		if profile, err := h.store.RadiusProfile(*profileID); err == nil {
			attrs.RateLimit = provisioning.BuildMikrotikRateLimit(profile)
			attrs.AddressList = profile.MikrotikAddressList
		}
	}

	count, err := h.engine.UpdateSubscriptionSessions(c.Context(), uint(id), attrs)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update sessions",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"updated": count},
	})
}

// Block adds the subscription's address to the block address list.
func (h *SessionHandler) Block(c *fiber.Ctx) error {
	return h.blockAction(c, h.engine.BlockSubscription)
}

// Unblock removes the subscription's address from the block list.
func (h *SessionHandler) Unblock(c *fiber.Ctx) error {
	return h.blockAction(c, h.engine.UnblockSubscription)
}

func (h *SessionHandler) blockAction(c *fiber.Ctx, action func(ctx context.Context, id uint) error) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid subscription ID")
	}
	if err := action(c.Context(), uint(id)); err != nil {
		if errors.Is(err, enforcement.ErrNotFound) {
			return notFound(c, "Subscription not found")
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Address list change failed",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

func notFound(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

func serverError(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}
