package models

import (
	"time"

	"gorm.io/gorm"
)

// SubscriptionStatus represents the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPending   SubscriptionStatus = "pending"
	SubscriptionSuspended SubscriptionStatus = "suspended"
	SubscriptionCanceled  SubscriptionStatus = "canceled"
)

// Subscription is a subscriber's active service instance. The
// provisioning core reads connection identity and resolves attributes
// and commands from it; lifecycle transitions are driven by billing.
type Subscription struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	SubscriberID uint   `gorm:"not null;index" json:"subscriber_id"`
	Login        string `gorm:"size:100;not null;index" json:"login"`

	// Connection identity
	MACAddress  string `gorm:"size:50;index" json:"mac_address"`
	IPv4Address string `gorm:"column:ipv4_address;size:50" json:"ipv4_address"`
	IPv6Address string `gorm:"column:ipv6_address;size:100" json:"ipv6_address"`

	// Profile resolution: explicit profile wins over the offer-linked one.
	RadiusProfileID *uint          `gorm:"index" json:"radius_profile_id"`
	RadiusProfile   *RadiusProfile `gorm:"foreignKey:RadiusProfileID" json:"radius_profile,omitempty"`
	OfferID         *uint          `json:"offer_id"`
	Offer           *Offer         `gorm:"foreignKey:OfferID" json:"offer,omitempty"`

	ProvisioningNasDeviceID *uint      `gorm:"index" json:"provisioning_nas_device_id"`
	ProvisioningNasDevice   *NasDevice `gorm:"foreignKey:ProvisioningNasDeviceID" json:"provisioning_nas_device,omitempty"`

	Status SubscriptionStatus `gorm:"size:20;default:pending;index" json:"status"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// EffectiveProfileID returns the explicit profile override when set,
// otherwise the offer-linked profile.
func (s *Subscription) EffectiveProfileID() *uint {
	if s.RadiusProfileID != nil {
		return s.RadiusProfileID
	}
	if s.Offer != nil {
		return s.Offer.RadiusProfileID
	}
	return nil
}

// Offer is a commercial package linking a subscription to a service
// profile. Pricing and billing terms live outside this subsystem.
type Offer struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	Name            string `gorm:"size:100;not null" json:"name"`
	RadiusProfileID *uint  `json:"radius_profile_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Offer) TableName() string {
	return "offers"
}

// AccessCredential is a subscriber's authentication identity. IPoE
// deployments identify it by DHCP Option-82 circuit/remote id instead
// of a login.
type AccessCredential struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	SubscriberID   uint   `gorm:"not null;index" json:"subscriber_id"`
	SubscriptionID *uint  `gorm:"index" json:"subscription_id"`
	Username       string `gorm:"size:100;not null;index" json:"username"`
	SecretHash     string `gorm:"size:255" json:"-"`

	// DHCP relay agent information (Option 82)
	CircuitID string `gorm:"size:100" json:"circuit_id"`
	RemoteID  string `gorm:"size:100" json:"remote_id"`

	RadiusProfileID *uint `gorm:"index" json:"radius_profile_id"`
	IsActive        bool  `gorm:"default:true;index" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AccessCredential) TableName() string {
	return "access_credentials"
}

// IPAssignment records an address handed to a subscription. Released
// assignments keep their row for audit.
type IPAssignment struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	SubscriptionID uint       `gorm:"not null;index" json:"subscription_id"`
	Address        string     `gorm:"size:100;not null" json:"address"`
	ReleasedAt     *time.Time `gorm:"index" json:"released_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (IPAssignment) TableName() string {
	return "ip_assignments"
}
