package enforcement

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/security"
)

// RadiusSyncer pushes credential deletions to external RADIUS
// databases.
type RadiusSyncer interface {
	DeleteUser(ctx context.Context, username string) error
}

// CleanupStore extends LifecycleStore with the teardown queries
// cancellation needs.
type CleanupStore interface {
	LifecycleStore
	OtherActiveSubscriptions(subscriberID, excludeSubscriptionID uint) (int, error)
	DeactivateCredentials(subscriberID uint) ([]string, error)
	DeleteRadiusRows(usernames []string) (int, error)
	ReleaseIPAssignments(subscriptionID uint) (int, error)
	ClearSubscriptionAddresses(subscriptionID uint) error
	NasDeleteCommands(subscriptionID uint) (*models.NasDevice, []string, error)
}

// Cleaner runs the cancellation teardown. Each step is independently
// fault tolerant: a failed step logs a warning and the remaining
// steps still run, so a cancellation releases whatever it can.
type Cleaner struct {
	store  CleanupStore
	engine *Engine
	shell  ShellRunner
	sync   RadiusSyncer
	log    *zap.Logger
}

func NewCleaner(store CleanupStore, engine *Engine, shell ShellRunner, sync RadiusSyncer, log *zap.Logger) *Cleaner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cleaner{store: store, engine: engine, shell: shell, sync: sync, log: log}
}

// CleanupSubscriptionOnCancel tears down the network footprint of a
// canceled subscription and returns per-step counters. A missing
// subscription short-circuits with {"error": 1}.
func (c *Cleaner) CleanupSubscriptionOnCancel(ctx context.Context, subscriptionID uint) map[string]int {
	stats := map[string]int{
		"sessions_disconnected":   0,
		"credentials_deactivated": 0,
		"radius_rows_deleted":     0,
		"external_syncs":          0,
		"ip_assignments_released": 0,
		"nas_commands_executed":   0,
		"address_list_removals":   0,
	}

	sub, err := c.store.Subscription(subscriptionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return map[string]int{"error": 1}
		}
		c.log.Warn("cleanup: subscription lookup failed",
			zap.Uint("subscription_id", subscriptionID), zap.Error(err))
		return map[string]int{"error": 1}
	}

	// 1. Disconnect active sessions.
	if count, err := c.engine.DisconnectSubscriptionSessions(ctx, subscriptionID); err != nil {
		c.log.Warn("cleanup: disconnect failed",
			zap.Uint("subscription_id", subscriptionID), zap.Error(err))
	} else {
		stats["sessions_disconnected"] = count
	}

	// 2. Retire credentials only when no other live subscription
	// still depends on them.
	remaining, err := c.store.OtherActiveSubscriptions(sub.SubscriberID, subscriptionID)
	if err != nil {
		c.log.Warn("cleanup: sibling subscription check failed",
			zap.Uint("subscriber_id", sub.SubscriberID), zap.Error(err))
	} else if remaining == 0 {
		usernames, err := c.store.DeactivateCredentials(sub.SubscriberID)
		if err != nil {
			c.log.Warn("cleanup: credential deactivation failed",
				zap.Uint("subscriber_id", sub.SubscriberID), zap.Error(err))
		} else {
			stats["credentials_deactivated"] = len(usernames)
			if deleted, err := c.store.DeleteRadiusRows(usernames); err != nil {
				c.log.Warn("cleanup: radius row deletion failed", zap.Error(err))
			} else {
				stats["radius_rows_deleted"] = deleted
			}
			if c.sync != nil {
				for _, username := range usernames {
					if err := c.sync.DeleteUser(ctx, username); err != nil {
						c.log.Warn("cleanup: external radius sync failed",
							zap.String("username", username), zap.Error(err))
					} else {
						stats["external_syncs"]++
					}
				}
			}
		}
	}

	// The release below wipes the address fields, so remember the
	// address a suspension-era block entry would carry.
	blockedAddr, _ := c.store.SubscriptionAddress(subscriptionID)

	// 3. Release IP assignments and clear address fields.
	if released, err := c.store.ReleaseIPAssignments(subscriptionID); err != nil {
		c.log.Warn("cleanup: ip release failed",
			zap.Uint("subscription_id", subscriptionID), zap.Error(err))
	} else {
		stats["ip_assignments_released"] = released
	}
	if err := c.store.ClearSubscriptionAddresses(subscriptionID); err != nil {
		c.log.Warn("cleanup: address clear failed",
			zap.Uint("subscription_id", subscriptionID), zap.Error(err))
	}

	// 4. Remove the service definition from the provisioning NAS.
	c.runNasDelete(ctx, subscriptionID, stats)

	// 5. Lift any address-list block left from suspension, using the
	// address captured before the release.
	if blockedAddr != "" {
		if err := c.engine.UnblockAddress(ctx, subscriptionID, blockedAddr); err != nil {
			c.log.Warn("cleanup: address-list removal failed",
				zap.Uint("subscription_id", subscriptionID), zap.Error(err))
		} else {
			stats["address_list_removals"] = 1
		}
	}

	c.log.Info("subscription cleanup finished",
		zap.Uint("subscription_id", subscriptionID),
		zap.Any("stats", stats))
	return stats
}

func (c *Cleaner) runNasDelete(ctx context.Context, subscriptionID uint, stats map[string]int) {
	nas, commands, err := c.store.NasDeleteCommands(subscriptionID)
	if err != nil {
		c.log.Warn("cleanup: nas delete command build failed",
			zap.Uint("subscription_id", subscriptionID), zap.Error(err))
		return
	}
	if nas == nil || len(commands) == 0 {
		return
	}
	password, err := security.DecryptSecret(nas.SSHPassword)
	if err != nil {
		c.log.Warn("cleanup: nas ssh password unusable",
			zap.String("nas", nas.IPAddress), zap.Error(err))
		return
	}
	if _, err := c.shell.Run(ctx, nas.IPAddress, nas.SSHPort, nas.SSHUsername, password, commands); err != nil {
		c.log.Warn("cleanup: nas delete push failed",
			zap.String("nas", nas.IPAddress), zap.Error(err))
		return
	}
	stats["nas_commands_executed"] = len(commands)
}
