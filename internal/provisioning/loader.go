package provisioning

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
)

// LoadInput assembles the attribute-builder input for a subscription
// from the database. Missing subscription is the only hard error;
// profile, NAS and credential lookups degrade to nil.
func LoadInput(db *gorm.DB, subscriptionID uint) (AttributeInput, error) {
	var in AttributeInput

	var sub models.Subscription
	if err := db.Preload("Offer").First(&sub, subscriptionID).Error; err != nil {
		return in, fmt.Errorf("subscription %d: %w", subscriptionID, err)
	}
	in.Subscription = &sub

	if profileID := sub.EffectiveProfileID(); profileID != nil {
		var profile models.RadiusProfile
		if err := db.First(&profile, *profileID).Error; err == nil {
			in.Profile = &profile
		}
	}

	if sub.ProvisioningNasDeviceID != nil {
		var nas models.NasDevice
		if err := db.First(&nas, *sub.ProvisioningNasDeviceID).Error; err == nil {
			in.Nas = &nas
			db.Where("nas_device_id = ? AND is_active = ?", nas.ID, true).
				Order("priority ASC").
				Find(&in.Rules)
		}
	}

	// First match by id keeps repeated builds deterministic when a
	// subscriber carries several Option-82 credentials.
	var cred models.AccessCredential
	err := db.Where("subscriber_id = ? AND is_active = ? AND (circuit_id <> '' OR remote_id <> '')",
		sub.SubscriberID, true).
		Order("id ASC").
		First(&cred).Error
	if err == nil {
		in.Option82Credential = &cred
	}

	if in.Profile != nil {
		db.Where("radius_profile_id = ?", in.Profile.ID).
			Order("id ASC").
			Find(&in.CustomAttributes)
	}

	return in, nil
}

// BuildReplyAttributesForSubscription is the database-backed
// convenience wrapper around BuildReplyAttributes.
func BuildReplyAttributesForSubscription(db *gorm.DB, subscriptionID uint) ([]ReplyAttribute, error) {
	in, err := LoadInput(db, subscriptionID)
	if err != nil {
		return nil, err
	}
	return BuildReplyAttributes(in), nil
}

// BuildNasCommandsForSubscription resolves inputs and builds the CLI
// command list for one action.
func BuildNasCommandsForSubscription(db *gorm.DB, subscriptionID uint, action NasAction) ([]string, error) {
	in, err := LoadInput(db, subscriptionID)
	if err != nil {
		return nil, err
	}
	if in.Nas == nil {
		return nil, nil
	}
	return BuildNasCommands(in.Subscription, in.Nas, in.Profile, in.Rules, action), nil
}
