package enforcement

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/coa"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/database"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/provisioning"
)

// GormStore is the database-backed Store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Subscription(id uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.Preload("Offer").Preload("RadiusProfile").Preload("ProvisioningNasDevice").
		First(&sub, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("subscription %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ActiveSessions returns the open accounting sessions for every
// username the subscription authenticates as.
func (s *GormStore) ActiveSessions(subscriptionID uint) ([]coa.Session, error) {
	sub, err := s.Subscription(subscriptionID)
	if err != nil {
		return nil, err
	}

	logins := []string{}
	if sub.Login != "" {
		logins = append(logins, sub.Login)
	}
	var creds []models.AccessCredential
	s.db.Where("subscription_id = ? AND is_active = ?", subscriptionID, true).Find(&creds)
	for _, c := range creds {
		if c.Username != "" {
			logins = append(logins, c.Username)
		}
	}
	return s.openSessions(logins)
}

// ActiveSessionsForSubscriber spans all subscriptions and credentials
// belonging to the subscriber.
func (s *GormStore) ActiveSessionsForSubscriber(subscriberID uint) ([]coa.Session, error) {
	logins := []string{}

	var subs []models.Subscription
	s.db.Where("subscriber_id = ?", subscriberID).Find(&subs)
	for _, sub := range subs {
		if sub.Login != "" {
			logins = append(logins, sub.Login)
		}
	}
	var creds []models.AccessCredential
	s.db.Where("subscriber_id = ? AND is_active = ?", subscriberID, true).Find(&creds)
	for _, c := range creds {
		if c.Username != "" {
			logins = append(logins, c.Username)
		}
	}
	return s.openSessions(logins)
}

func (s *GormStore) openSessions(logins []string) ([]coa.Session, error) {
	if len(logins) == 0 {
		return nil, nil
	}
	var rows []models.RadAcct
	err := s.db.
		Where("username IN ? AND acct_stop_time IS NULL AND acct_status_type <> ?", logins, "Stop").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	sessions := make([]coa.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, coa.Session{
			Username:         row.Username,
			AcctSessionID:    row.AcctSessionID,
			NASIPAddress:     row.NasIPAddress,
			FramedIPAddress:  row.FramedIPAddress,
			CallingStationID: row.CallingStationID,
		})
	}
	return sessions, nil
}

// NasByIP resolves a NAS by its IP, caching the lookup in Redis.
func (s *GormStore) NasByIP(ip string) (*models.NasDevice, error) {
	cacheKey := database.CacheKeyNAS + ip
	var cached models.NasDevice
	if err := database.CacheGet(cacheKey, &cached); err == nil && cached.ID != 0 {
		return &cached, nil
	}

	var nas models.NasDevice
	err := s.db.Where("ip_address = ? AND is_active = ?", ip, true).First(&nas).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("nas %s: %w", ip, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	database.CacheSet(cacheKey, nas, database.CacheTTLNAS)
	return &nas, nil
}

// ConnectionType resolves the effective connection type for the
// subscription's provisioning context.
func (s *GormStore) ConnectionType(subscriptionID uint) (models.ConnectionType, error) {
	input, err := provisioning.LoadInput(s.db, subscriptionID)
	if err != nil {
		return "", err
	}
	return provisioning.ResolveConnectionType(input.Subscription, input.Profile, input.Nas, input.Rules), nil
}

// SetSubscriptionStatus updates the lifecycle status.
func (s *GormStore) SetSubscriptionStatus(subscriptionID uint, status models.SubscriptionStatus) error {
	result := s.db.Model(&models.Subscription{}).Where("id = ?", subscriptionID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("subscription %d: %w", subscriptionID, ErrNotFound)
	}
	return nil
}

// ReassignCredentialProfiles points every active credential of the
// subscriber at the given RADIUS profile.
func (s *GormStore) ReassignCredentialProfiles(subscriberID uint, profileID uint) (int, error) {
	result := s.db.Model(&models.AccessCredential{}).
		Where("subscriber_id = ? AND is_active = ?", subscriberID, true).
		Update("radius_profile_id", profileID)
	return int(result.RowsAffected), result.Error
}

func (s *GormStore) RadiusProfile(id uint) (*models.RadiusProfile, error) {
	var profile models.RadiusProfile
	err := s.db.First(&profile, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("radius profile %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// OtherActiveSubscriptions counts the subscriber's live (active or
// pending) subscriptions besides the one being canceled.
func (s *GormStore) OtherActiveSubscriptions(subscriberID, excludeSubscriptionID uint) (int, error) {
	var count int64
	err := s.db.Model(&models.Subscription{}).
		Where("subscriber_id = ? AND id <> ? AND status IN ?",
			subscriberID, excludeSubscriptionID,
			[]models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionPending}).
		Count(&count).Error
	return int(count), err
}

// DeactivateCredentials disables every active credential of the
// subscriber and returns the usernames it touched.
func (s *GormStore) DeactivateCredentials(subscriberID uint) ([]string, error) {
	var creds []models.AccessCredential
	if err := s.db.Where("subscriber_id = ? AND is_active = ?", subscriberID, true).
		Find(&creds).Error; err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(creds))
	usernames := make([]string, 0, len(creds))
	for _, c := range creds {
		ids = append(ids, c.ID)
		if c.Username != "" {
			usernames = append(usernames, c.Username)
		}
	}
	err := s.db.Model(&models.AccessCredential{}).Where("id IN ?", ids).
		Update("is_active", false).Error
	return usernames, err
}

// DeleteRadiusRows removes the local FreeRADIUS rows for the given
// usernames.
func (s *GormStore) DeleteRadiusRows(usernames []string) (int, error) {
	if len(usernames) == 0 {
		return 0, nil
	}
	total := 0
	for _, model := range []interface{}{&models.RadCheck{}, &models.RadReply{}, &models.RadUserGroup{}} {
		result := s.db.Where("username IN ?", usernames).Delete(model)
		if result.Error != nil {
			return total, result.Error
		}
		total += int(result.RowsAffected)
	}
	return total, nil
}

// ReleaseIPAssignments marks the subscription's assignments released.
func (s *GormStore) ReleaseIPAssignments(subscriptionID uint) (int, error) {
	result := s.db.Model(&models.IPAssignment{}).
		Where("subscription_id = ? AND released_at IS NULL", subscriptionID).
		Update("released_at", s.db.NowFunc())
	return int(result.RowsAffected), result.Error
}

// ClearSubscriptionAddresses blanks the IP fields on the subscription
// row.
func (s *GormStore) ClearSubscriptionAddresses(subscriptionID uint) error {
	return s.db.Model(&models.Subscription{}).Where("id = ?", subscriptionID).
		Updates(map[string]interface{}{"ipv4_address": "", "ipv6_address": ""}).Error
}

// NasDeleteCommands builds the RouterOS delete commands for the
// subscription's provisioning NAS. Returns nothing when the service
// footprint has already been torn down.
func (s *GormStore) NasDeleteCommands(subscriptionID uint) (*models.NasDevice, []string, error) {
	var activeCreds, openAssignments int64
	s.db.Model(&models.AccessCredential{}).
		Where("subscription_id = ? AND is_active = ?", subscriptionID, true).Count(&activeCreds)
	s.db.Model(&models.IPAssignment{}).
		Where("subscription_id = ? AND released_at IS NULL", subscriptionID).Count(&openAssignments)
	if activeCreds == 0 && openAssignments == 0 {
		return nil, nil, nil
	}

	input, err := provisioning.LoadInput(s.db, subscriptionID)
	if err != nil {
		return nil, nil, err
	}
	if input.Nas == nil {
		return nil, nil, nil
	}
	commands := provisioning.BuildNasCommands(input.Subscription, input.Nas, input.Profile, input.Rules, provisioning.ActionDelete)
	return input.Nas, commands, nil
}

// SubscriptionAddress returns the best-known IPv4 address for a
// subscription: the live session's framed address, then the static
// assignment, then the current IP assignment record.
func (s *GormStore) SubscriptionAddress(subscriptionID uint) (string, error) {
	sub, err := s.Subscription(subscriptionID)
	if err != nil {
		return "", err
	}

	sessions, err := s.ActiveSessions(subscriptionID)
	if err == nil {
		for _, sess := range sessions {
			if sess.FramedIPAddress != "" {
				return sess.FramedIPAddress, nil
			}
		}
	}
	if sub.IPv4Address != "" {
		return sub.IPv4Address, nil
	}

	var assignment models.IPAssignment
	err = s.db.Where("subscription_id = ? AND released_at IS NULL", subscriptionID).
		Order("id DESC").First(&assignment).Error
	if err == nil {
		return assignment.Address, nil
	}
	return "", nil
}
