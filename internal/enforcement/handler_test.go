package enforcement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/settings"
)

type handlerFixture struct {
	store      *fakeStore
	sender     *fakeCoA
	shell      *fakeShell
	dispatcher *Dispatcher
	handler    *Handler
}

func newHandlerFixture(values settings.Values) *handlerFixture {
	store := newFakeStore()
	sender := &fakeCoA{}
	shell := &fakeShell{}
	engine := NewEngine(store, values, sender, shell, zap.NewNop())
	dispatcher := NewDispatcher(zap.NewNop())
	handler := NewHandler(engine, store, values, dispatcher, zap.NewNop())
	handler.Register()
	return &handlerFixture{
		store:      store,
		sender:     sender,
		shell:      shell,
		dispatcher: dispatcher,
		handler:    handler,
	}
}

func (f *handlerFixture) withSession(subscriptionID uint, username string) {
	nasIP := "10.0.0.1"
	f.store.sessions[subscriptionID] = append(f.store.sessions[subscriptionID], session(username, nasIP))
	f.store.nasByIP[nasIP] = mikrotikDevice(nasIP)
}

func TestSuspendedEventDisconnectsAndBlocks(t *testing.T) {
	f := newHandlerFixture(settings.Values{})
	f.withSession(1, "alice")
	f.store.subscriptions[1] = &models.Subscription{ID: 1, SubscriberID: 7, ProvisioningNasDevice: mikrotikDevice("10.0.0.1")}
	f.store.addresses[1] = "100.64.0.7"

	f.dispatcher.Dispatch(context.Background(), NewEvent(EventSubscriptionSuspended, 1))

	require.Len(t, f.sender.calls, 1)
	assert.Equal(t, "disconnect", f.sender.calls[0].op)
	require.Len(t, f.shell.calls, 1)
	assert.Contains(t, f.shell.calls[0].commands[0], "address-list add")
}

func TestActivatedEventUnblocks(t *testing.T) {
	f := newHandlerFixture(settings.Values{})
	f.store.subscriptions[1] = &models.Subscription{ID: 1, ProvisioningNasDevice: mikrotikDevice("10.0.0.1")}
	f.store.addresses[1] = "100.64.0.7"

	f.dispatcher.Dispatch(context.Background(), NewEvent(EventSubscriptionActivated, 1))

	require.Len(t, f.shell.calls, 1)
	assert.Contains(t, f.shell.calls[0].commands[0], "address-list remove")
	assert.Empty(t, f.sender.calls, "refresh flag off, sessions stay up")
}

func TestActivatedEventRefreshesWhenEnabled(t *testing.T) {
	values := settings.Values{"enforcement/refresh_sessions_on_profile_change": "true"}
	f := newHandlerFixture(values)
	f.withSession(1, "alice")
	f.store.subscriptions[1] = &models.Subscription{ID: 1, ProvisioningNasDevice: mikrotikDevice("10.0.0.1")}

	f.dispatcher.Dispatch(context.Background(), NewEvent(EventSubscriptionActivated, 1))

	require.Len(t, f.sender.calls, 1)
	assert.Equal(t, "disconnect", f.sender.calls[0].op)
}

func TestProfileChangedPushesCoAUpdate(t *testing.T) {
	values := settings.Values{"enforcement/refresh_sessions_on_profile_change": "true"}
	f := newHandlerFixture(values)
	f.withSession(1, "alice")

	profileID := uint(5)
	f.store.subscriptions[1] = &models.Subscription{ID: 1, RadiusProfileID: &profileID}
	f.store.profiles[5] = &models.RadiusProfile{
		ID:            5,
		DownloadSpeed: 10000,
		UploadSpeed:   2000,
	}

	f.dispatcher.Dispatch(context.Background(), NewEvent(EventProfileChanged, 1))

	require.Len(t, f.sender.calls, 1)
	assert.Equal(t, "update", f.sender.calls[0].op)
	assert.Equal(t, "10000k/2000k", f.sender.calls[0].attrs.RateLimit)
}

func TestProfileChangedIgnoredWhenRefreshOff(t *testing.T) {
	f := newHandlerFixture(settings.Values{})
	f.withSession(1, "alice")
	f.store.subscriptions[1] = &models.Subscription{ID: 1}

	f.dispatcher.Dispatch(context.Background(), NewEvent(EventProfileChanged, 1))
	assert.Empty(t, f.sender.calls)
}

func TestSubscriberThrottledDisconnects(t *testing.T) {
	values := settings.Values{"enforcement/refresh_sessions_on_profile_change": "true"}
	f := newHandlerFixture(values)
	f.store.subscriberSes[7] = append(f.store.subscriberSes[7], session("alice", "10.0.0.1"))
	f.store.nasByIP["10.0.0.1"] = mikrotikDevice("10.0.0.1")

	event := NewEvent(EventSubscriberThrottled, 0)
	event.SubscriberID = 7
	f.dispatcher.Dispatch(context.Background(), event)

	require.Len(t, f.sender.calls, 1)
	assert.Equal(t, "disconnect", f.sender.calls[0].op)
}

func TestUsageExhaustedSuspendAction(t *testing.T) {
	values := settings.Values{"enforcement/fup_action": "suspend"}
	f := newHandlerFixture(values)
	f.withSession(1, "alice")
	f.store.subscriptions[1] = &models.Subscription{
		ID: 1, SubscriberID: 7, Status: models.SubscriptionActive,
		ProvisioningNasDevice: mikrotikDevice("10.0.0.1"),
	}
	f.store.addresses[1] = "100.64.0.7"

	var suspendedEvents []Event
	f.dispatcher.Subscribe(EventSubscriptionSuspended, func(ctx context.Context, e Event) error {
		suspendedEvents = append(suspendedEvents, e)
		return nil
	})

	event := NewEvent(EventUsageExhausted, 1)
	event.SubscriberID = 7
	f.dispatcher.Dispatch(context.Background(), event)

	assert.Equal(t, models.SubscriptionSuspended, f.store.statusChanges[1])
	require.Len(t, suspendedEvents, 1, "exactly one follow-up suspension event")
	assert.Equal(t, "fup_exhausted", suspendedEvents[0].Reason)
	assert.Equal(t, uint(7), suspendedEvents[0].SubscriberID)

	// The suspended event's own handler ran the enforcement.
	require.Len(t, f.sender.calls, 1)
	assert.Equal(t, "disconnect", f.sender.calls[0].op)
}

func TestUsageExhaustedThrottleAction(t *testing.T) {
	values := settings.Values{
		"enforcement/fup_action":                     "throttle",
		"enforcement/fup_throttle_radius_profile_id": "9",
	}
	f := newHandlerFixture(values)
	f.store.profiles[9] = &models.RadiusProfile{ID: 9, Name: "throttled-1m"}
	f.store.subscriptions[1] = &models.Subscription{ID: 1, SubscriberID: 7}

	f.dispatcher.Dispatch(context.Background(), NewEvent(EventUsageExhausted, 1))

	require.Len(t, f.store.reassigned, 1)
	assert.Equal(t, uint(9), f.store.reassigned[0])
	assert.Empty(t, f.sender.calls, "refresh flag off, no forced reconnect")
}

func TestUsageExhaustedThrottleWithoutProfileIsNoop(t *testing.T) {
	values := settings.Values{"enforcement/fup_action": "throttle"}
	f := newHandlerFixture(values)
	f.store.subscriptions[1] = &models.Subscription{ID: 1, SubscriberID: 7}

	f.dispatcher.Dispatch(context.Background(), NewEvent(EventUsageExhausted, 1))
	assert.Empty(t, f.store.reassigned)
}

func TestUsageExhaustedBlockAction(t *testing.T) {
	values := settings.Values{"enforcement/fup_action": "block"}
	f := newHandlerFixture(values)
	f.withSession(1, "alice")
	f.store.subscriptions[1] = &models.Subscription{ID: 1, SubscriberID: 7, ProvisioningNasDevice: mikrotikDevice("10.0.0.1")}
	f.store.addresses[1] = "100.64.0.7"

	f.dispatcher.Dispatch(context.Background(), NewEvent(EventUsageExhausted, 1))

	require.Len(t, f.sender.calls, 1)
	require.Len(t, f.shell.calls, 1)
	assert.Contains(t, f.shell.calls[0].commands[0], "address-list add")
	assert.Equal(t, models.SubscriptionStatus(""), f.store.statusChanges[1], "block action leaves status untouched")
}

func TestUsageExhaustedNoneAction(t *testing.T) {
	values := settings.Values{"enforcement/fup_action": "none"}
	f := newHandlerFixture(values)
	f.withSession(1, "alice")
	f.store.subscriptions[1] = &models.Subscription{ID: 1, SubscriberID: 7}

	f.dispatcher.Dispatch(context.Background(), NewEvent(EventUsageExhausted, 1))
	assert.Empty(t, f.sender.calls)
	assert.Empty(t, f.shell.calls)
}
