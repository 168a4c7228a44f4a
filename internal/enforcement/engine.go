package enforcement

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/coa"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/provisioning"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/security"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/settings"
)

// ErrNotFound is returned when the target subscription or subscriber
// does not exist.
var ErrNotFound = errors.New("not found")

// CoASender issues RFC 5176 requests to a NAS.
type CoASender interface {
	Disconnect(ctx context.Context, nas *models.NasDevice, secret string, sess coa.Session) error
	Update(ctx context.Context, nas *models.NasDevice, secret string, sess coa.Session, attrs coa.UpdateAttributes) error
}

// ShellRunner executes CLI commands on a NAS over SSH.
type ShellRunner interface {
	Run(ctx context.Context, host string, port int, username, password string, commands []string) ([]string, error)
}

// Store supplies the session and inventory data the engine enforces
// against.
type Store interface {
	Subscription(id uint) (*models.Subscription, error)
	ActiveSessions(subscriptionID uint) ([]coa.Session, error)
	ActiveSessionsForSubscriber(subscriberID uint) ([]coa.Session, error)
	NasByIP(ip string) (*models.NasDevice, error)
	ConnectionType(subscriptionID uint) (models.ConnectionType, error)
	SubscriptionAddress(subscriptionID uint) (string, error)
}

// Engine applies session enforcement with tiered fallback: CoA first,
// then a vendor shell session kill, then an address-list block. A
// disabled tier is skipped silently; a failed tier logs a warning and
// falls through. Enforcement never raises for an individual session.
type Engine struct {
	store    Store
	settings settings.Resolver
	coa      CoASender
	shell    ShellRunner
	log      *zap.Logger
}

func NewEngine(store Store, resolver settings.Resolver, sender CoASender, shell ShellRunner, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, settings: resolver, coa: sender, shell: shell, log: log}
}

// DisconnectSubscriptionSessions tears down every active session of a
// subscription and returns how many were terminated.
func (e *Engine) DisconnectSubscriptionSessions(ctx context.Context, subscriptionID uint) (int, error) {
	sessions, err := e.store.ActiveSessions(subscriptionID)
	if err != nil {
		return 0, fmt.Errorf("load sessions for subscription %d: %w", subscriptionID, err)
	}
	return e.disconnectAll(ctx, subscriptionID, sessions), nil
}

// DisconnectSubscriberSessions tears down active sessions across all
// of a subscriber's subscriptions.
func (e *Engine) DisconnectSubscriberSessions(ctx context.Context, subscriberID uint) (int, error) {
	sessions, err := e.store.ActiveSessionsForSubscriber(subscriberID)
	if err != nil {
		return 0, fmt.Errorf("load sessions for subscriber %d: %w", subscriberID, err)
	}
	return e.disconnectAll(ctx, 0, sessions), nil
}

// UpdateSubscriptionSessions pushes new session attributes via CoA.
// Sessions whose NAS rejects the update are disconnected instead so
// the reconnect picks up the new attributes.
func (e *Engine) UpdateSubscriptionSessions(ctx context.Context, subscriptionID uint, attrs coa.UpdateAttributes) (int, error) {
	sessions, err := e.store.ActiveSessions(subscriptionID)
	if err != nil {
		return 0, fmt.Errorf("load sessions for subscription %d: %w", subscriptionID, err)
	}

	count := 0
	for _, sess := range sessions {
		nas, ok := e.sessionTarget(sess)
		if !ok {
			continue
		}
		if e.coaEnabled() {
			if secret, err := e.coaSecret(nas); err != nil {
				e.log.Warn("nas coa secret unusable, falling back",
					zap.String("nas", sess.NASIPAddress), zap.Error(err))
			} else if err := e.coa.Update(ctx, nas, secret, sess, attrs); err == nil {
				count++
				continue
			} else {
				e.log.Warn("coa update failed, falling back to disconnect",
					zap.String("username", sess.Username),
					zap.String("nas", sess.NASIPAddress),
					zap.Error(err))
			}
		}
		if e.enforceDisconnect(ctx, subscriptionID, sess, nas) {
			count++
		}
	}
	return count, nil
}

// BlockSubscription adds the subscription's address to the configured
// MikroTik address list on its NAS.
func (e *Engine) BlockSubscription(ctx context.Context, subscriptionID uint) error {
	return e.addressListAction(ctx, subscriptionID, "", provisioning.AddressListAddCommand)
}

// UnblockSubscription removes the subscription's address from the
// configured address list.
func (e *Engine) UnblockSubscription(ctx context.Context, subscriptionID uint) error {
	return e.addressListAction(ctx, subscriptionID, "", provisioning.AddressListRemoveCommand)
}

// UnblockAddress removes a specific address from the list. Cleanup
// uses it after the subscription's own address fields are gone.
func (e *Engine) UnblockAddress(ctx context.Context, subscriptionID uint, address string) error {
	return e.addressListAction(ctx, subscriptionID, address, provisioning.AddressListRemoveCommand)
}

func (e *Engine) disconnectAll(ctx context.Context, subscriptionID uint, sessions []coa.Session) int {
	count := 0
	for _, sess := range sessions {
		nas, ok := e.sessionTarget(sess)
		if !ok {
			continue
		}
		if e.enforceDisconnect(ctx, subscriptionID, sess, nas) {
			count++
		}
	}
	return count
}

// enforceDisconnect walks the fallback chain for one session. Each
// tier resolves its own credentials so a bad CoA secret still leaves
// the shell tiers reachable.
func (e *Engine) enforceDisconnect(ctx context.Context, subscriptionID uint, sess coa.Session, nas *models.NasDevice) bool {
	if e.coaEnabled() {
		if secret, err := e.coaSecret(nas); err != nil {
			e.log.Warn("nas coa secret unusable, falling back",
				zap.String("nas", sess.NASIPAddress), zap.Error(err))
		} else if err := e.coa.Disconnect(ctx, nas, secret, sess); err == nil {
			return true
		} else {
			e.log.Warn("coa disconnect failed, falling back",
				zap.String("username", sess.Username),
				zap.String("nas", sess.NASIPAddress),
				zap.Error(err))
		}
	}

	if nas.Vendor == models.VendorMikrotik && settings.Bool(e.settings, settings.DomainEnforcement, settings.KeyMikrotikKillEnabled, true) {
		connType := models.DefaultConnectionType
		if subscriptionID != 0 {
			if ct, err := e.store.ConnectionType(subscriptionID); err == nil {
				connType = ct
			}
		}
		commands := provisioning.SessionKillCommands(sess.Username, connType)
		sshSecret, err := security.DecryptSecret(nas.SSHPassword)
		if err != nil {
			e.log.Warn("ssh password unusable, skipping session kill",
				zap.String("nas", sess.NASIPAddress), zap.Error(err))
		} else if _, err := e.shell.Run(ctx, nas.IPAddress, nas.SSHPort, nas.SSHUsername, sshSecret, commands); err != nil {
			e.log.Warn("ssh session kill failed",
				zap.String("username", sess.Username),
				zap.String("nas", sess.NASIPAddress),
				zap.Error(err))
		} else {
			return true
		}
	}

	e.log.Warn("all enforcement tiers exhausted for session",
		zap.String("username", sess.Username),
		zap.String("nas", sess.NASIPAddress))
	return false
}

func (e *Engine) addressListAction(ctx context.Context, subscriptionID uint, address string, command func(list, ip string) string) error {
	if !settings.Bool(e.settings, settings.DomainEnforcement, settings.KeyAddressListBlockEnabled, true) {
		return nil
	}

	sub, err := e.store.Subscription(subscriptionID)
	if err != nil {
		return err
	}
	if address == "" {
		address, err = e.store.SubscriptionAddress(subscriptionID)
		if err != nil || address == "" {
			e.log.Warn("no address known for subscription, skipping address-list change",
				zap.Uint("subscription_id", subscriptionID))
			return nil
		}
	}
	if sub.ProvisioningNasDevice == nil || sub.ProvisioningNasDevice.Vendor != models.VendorMikrotik {
		e.log.Warn("subscription has no mikrotik nas, skipping address-list change",
			zap.Uint("subscription_id", subscriptionID))
		return nil
	}

	nas := sub.ProvisioningNasDevice
	list := settings.String(e.settings, settings.DomainEnforcement, settings.KeyDefaultAddressList, provisioning.BlockedAddressList)
	sshSecret, err := security.DecryptSecret(nas.SSHPassword)
	if err != nil {
		return fmt.Errorf("nas %s ssh password: %w", nas.IPAddress, err)
	}
	cmd := command(list, address)
	if _, err := e.shell.Run(ctx, nas.IPAddress, nas.SSHPort, nas.SSHUsername, sshSecret, []string{cmd}); err != nil {
		return fmt.Errorf("address-list change on %s: %w", nas.IPAddress, err)
	}
	return nil
}

// sessionTarget resolves the NAS the session lives on. Sessions whose
// NAS is unknown are skipped with a warning.
func (e *Engine) sessionTarget(sess coa.Session) (*models.NasDevice, bool) {
	nas, err := e.store.NasByIP(sess.NASIPAddress)
	if err != nil || nas == nil {
		e.log.Warn("nas not found for session, skipping",
			zap.String("username", sess.Username),
			zap.String("nas", sess.NASIPAddress))
		return nil, false
	}
	return nas, true
}

func (e *Engine) coaSecret(nas *models.NasDevice) (string, error) {
	return security.DecryptSecret(nas.Secret)
}

func (e *Engine) coaEnabled() bool {
	return settings.Bool(e.settings, settings.DomainEnforcement, settings.KeyCoAEnabled, true)
}
