package enforcement

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/coa"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/provisioning"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/settings"
)

// LifecycleStore extends Store with the writes the event handler
// needs for FUP transitions.
type LifecycleStore interface {
	Store
	SetSubscriptionStatus(subscriptionID uint, status models.SubscriptionStatus) error
	ReassignCredentialProfiles(subscriberID uint, profileID uint) (int, error)
	RadiusProfile(id uint) (*models.RadiusProfile, error)
}

// Handler routes lifecycle events to enforcement actions. Every
// branch swallows and logs its own failures so event delivery never
// aborts the emitting transaction.
type Handler struct {
	engine     *Engine
	store      LifecycleStore
	settings   settings.Resolver
	dispatcher *Dispatcher
	log        *zap.Logger
}

func NewHandler(engine *Engine, store LifecycleStore, resolver settings.Resolver, dispatcher *Dispatcher, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{engine: engine, store: store, settings: resolver, dispatcher: dispatcher, log: log}
}

// Register subscribes the handler to every lifecycle event type.
func (h *Handler) Register() {
	h.dispatcher.Subscribe(EventSubscriptionSuspended, h.HandleSuspendedOrCanceled)
	h.dispatcher.Subscribe(EventSubscriptionCanceled, h.HandleSuspendedOrCanceled)
	h.dispatcher.Subscribe(EventSubscriptionActivated, h.HandleActivatedOrResumed)
	h.dispatcher.Subscribe(EventSubscriptionResumed, h.HandleActivatedOrResumed)
	h.dispatcher.Subscribe(EventProfileChanged, h.HandleProfileChanged)
	h.dispatcher.Subscribe(EventSubscriberThrottled, h.HandleSubscriberThrottled)
	h.dispatcher.Subscribe(EventUsageExhausted, h.HandleUsageExhausted)
}

// HandleSuspendedOrCanceled disconnects sessions and applies the
// address-list block.
func (h *Handler) HandleSuspendedOrCanceled(ctx context.Context, event Event) error {
	count, err := h.engine.DisconnectSubscriptionSessions(ctx, event.SubscriptionID)
	if err != nil {
		h.log.Warn("disconnect on suspend/cancel failed",
			zap.Uint("subscription_id", event.SubscriptionID), zap.Error(err))
	} else {
		h.log.Info("sessions disconnected",
			zap.Uint("subscription_id", event.SubscriptionID),
			zap.String("reason", string(event.Type)),
			zap.Int("count", count))
	}
	if err := h.engine.BlockSubscription(ctx, event.SubscriptionID); err != nil {
		h.log.Warn("address-list block failed",
			zap.Uint("subscription_id", event.SubscriptionID), zap.Error(err))
	}
	return nil
}

// HandleActivatedOrResumed lifts the address-list block and, when the
// refresh flag is on, forces sessions to reconnect so they pick up
// current attributes.
func (h *Handler) HandleActivatedOrResumed(ctx context.Context, event Event) error {
	if err := h.engine.UnblockSubscription(ctx, event.SubscriptionID); err != nil {
		h.log.Warn("address-list unblock failed",
			zap.Uint("subscription_id", event.SubscriptionID), zap.Error(err))
	}
	if h.refreshOnProfileChange() {
		if _, err := h.engine.DisconnectSubscriptionSessions(ctx, event.SubscriptionID); err != nil {
			h.log.Warn("refresh disconnect failed",
				zap.Uint("subscription_id", event.SubscriptionID), zap.Error(err))
		}
	}
	return nil
}

// HandleProfileChanged pushes the new profile's attributes onto live
// sessions via CoA-Update, falling back to disconnect per session.
func (h *Handler) HandleProfileChanged(ctx context.Context, event Event) error {
	if !h.refreshOnProfileChange() {
		return nil
	}
	sub, err := h.store.Subscription(event.SubscriptionID)
	if err != nil {
		return err
	}
	attrs := coa.UpdateAttributes{}
	if profileID := sub.EffectiveProfileID(); profileID != nil {
		if profile, err := h.store.RadiusProfile(*profileID); err == nil {
			attrs.RateLimit = provisioning.BuildMikrotikRateLimit(profile)
			attrs.AddressList = profile.MikrotikAddressList
		}
	}
	count, err := h.engine.UpdateSubscriptionSessions(ctx, event.SubscriptionID, attrs)
	if err != nil {
		h.log.Warn("session update on profile change failed",
			zap.Uint("subscription_id", event.SubscriptionID), zap.Error(err))
		return nil
	}
	h.log.Info("sessions updated for profile change",
		zap.Uint("subscription_id", event.SubscriptionID), zap.Int("count", count))
	return nil
}

// HandleSubscriberThrottled disconnects the account's sessions so the
// throttled profile takes effect on reconnect.
func (h *Handler) HandleSubscriberThrottled(ctx context.Context, event Event) error {
	if event.SubscriberID == 0 {
		return nil
	}
	if !h.refreshOnProfileChange() {
		return nil
	}
	count, err := h.engine.DisconnectSubscriberSessions(ctx, event.SubscriberID)
	if err != nil {
		h.log.Warn("throttle disconnect failed",
			zap.Uint("subscriber_id", event.SubscriberID), zap.Error(err))
		return nil
	}
	h.log.Info("throttled subscriber sessions disconnected",
		zap.Uint("subscriber_id", event.SubscriberID), zap.Int("count", count))
	return nil
}

// HandleUsageExhausted branches on the configured FUP action.
func (h *Handler) HandleUsageExhausted(ctx context.Context, event Event) error {
	action := settings.String(h.settings, settings.DomainEnforcement, settings.KeyFUPAction, "throttle")
	switch action {
	case "none":
		return nil
	case "block":
		return h.fupBlock(ctx, event)
	case "suspend":
		return h.fupSuspend(ctx, event)
	case "throttle":
		return h.fupThrottle(ctx, event)
	default:
		h.log.Warn("unknown fup_action, ignoring", zap.String("action", action))
		return nil
	}
}

func (h *Handler) fupBlock(ctx context.Context, event Event) error {
	if _, err := h.engine.DisconnectSubscriptionSessions(ctx, event.SubscriptionID); err != nil {
		h.log.Warn("fup block disconnect failed",
			zap.Uint("subscription_id", event.SubscriptionID), zap.Error(err))
	}
	if err := h.engine.BlockSubscription(ctx, event.SubscriptionID); err != nil {
		h.log.Warn("fup address-list block failed",
			zap.Uint("subscription_id", event.SubscriptionID), zap.Error(err))
	}
	return nil
}

// fupSuspend transitions the subscription to suspended and delegates
// enforcement to the suspended event's own handler.
func (h *Handler) fupSuspend(ctx context.Context, event Event) error {
	if err := h.store.SetSubscriptionStatus(event.SubscriptionID, models.SubscriptionSuspended); err != nil {
		return fmt.Errorf("suspend subscription %d: %w", event.SubscriptionID, err)
	}
	suspended := NewEvent(EventSubscriptionSuspended, event.SubscriptionID)
	suspended.SubscriberID = event.SubscriberID
	suspended.Reason = "fup_exhausted"
	h.dispatcher.Dispatch(ctx, suspended)
	return nil
}

// fupThrottle reassigns the throttle profile to the account's active
// credentials and optionally forces a reconnect.
func (h *Handler) fupThrottle(ctx context.Context, event Event) error {
	profileID, ok := settings.Uint(h.settings, settings.DomainEnforcement, settings.KeyFUPThrottleProfileID)
	if !ok {
		h.log.Warn("fup_action=throttle but no throttle profile configured")
		return nil
	}
	profile, err := h.store.RadiusProfile(profileID)
	if err != nil {
		h.log.Warn("throttle profile not found", zap.Uint("profile_id", profileID), zap.Error(err))
		return nil
	}

	subscriberID := event.SubscriberID
	if subscriberID == 0 {
		sub, err := h.store.Subscription(event.SubscriptionID)
		if err != nil {
			return err
		}
		subscriberID = sub.SubscriberID
	}

	count, err := h.store.ReassignCredentialProfiles(subscriberID, profile.ID)
	if err != nil {
		h.log.Warn("throttle profile reassignment failed",
			zap.Uint("subscriber_id", subscriberID), zap.Error(err))
		return nil
	}
	h.log.Info("throttle profile assigned",
		zap.Uint("subscriber_id", subscriberID),
		zap.Uint("profile_id", profile.ID),
		zap.Int("credentials", count))

	if h.refreshOnProfileChange() {
		if _, err := h.engine.DisconnectSubscriberSessions(ctx, subscriberID); err != nil {
			h.log.Warn("throttle reconnect disconnect failed",
				zap.Uint("subscriber_id", subscriberID), zap.Error(err))
		}
	}
	return nil
}

func (h *Handler) refreshOnProfileChange() bool {
	return settings.Bool(h.settings, settings.DomainEnforcement, settings.KeyRefreshOnProfileChange, false)
}
