package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/enforcement"
)

type EnforcementHandler struct {
	dispatcher *enforcement.Dispatcher
	cleaner    *enforcement.Cleaner
}

func NewEnforcementHandler(dispatcher *enforcement.Dispatcher, cleaner *enforcement.Cleaner) *EnforcementHandler {
	return &EnforcementHandler{dispatcher: dispatcher, cleaner: cleaner}
}

type eventRequest struct {
	Type           string `json:"type"`
	SubscriptionID uint   `json:"subscription_id"`
	SubscriberID   uint   `json:"subscriber_id"`
	Reason         string `json:"reason"`
}

var knownEventTypes = map[enforcement.EventType]bool{
	enforcement.EventSubscriptionActivated: true,
	enforcement.EventSubscriptionResumed:   true,
	enforcement.EventSubscriptionSuspended: true,
	enforcement.EventSubscriptionCanceled:  true,
	enforcement.EventProfileChanged:        true,
	enforcement.EventSubscriberThrottled:   true,
	enforcement.EventUsageExhausted:        true,
}

// Emit injects a lifecycle event, for billing integrations and
// operator tooling that sit outside this service.
func (h *EnforcementHandler) Emit(c *fiber.Ctx) error {
	var req eventRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	eventType := enforcement.EventType(req.Type)
	if !knownEventTypes[eventType] {
		return badRequest(c, "Unknown event type")
	}
	if req.SubscriptionID == 0 && req.SubscriberID == 0 {
		return badRequest(c, "subscription_id or subscriber_id required")
	}

	event := enforcement.NewEvent(eventType, req.SubscriptionID)
	event.SubscriberID = req.SubscriberID
	event.Reason = req.Reason
	h.dispatcher.Dispatch(c.Context(), event)

	return c.JSON(fiber.Map{
		"success": true,
		"data":    event,
	})
}

// Cleanup runs the cancellation teardown for a subscription and
// returns its step counters.
func (h *EnforcementHandler) Cleanup(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid subscription ID")
	}

	stats := h.cleaner.CleanupSubscriptionOnCancel(c.Context(), uint(id))
	if stats["error"] > 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Subscription not found",
			"data":    stats,
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    stats,
	})
}
