package models

import (
	"time"

	"gorm.io/gorm"
)

// ConnectionType identifies how a subscriber session is established.
type ConnectionType string

const (
	ConnectionPPPoE   ConnectionType = "pppoe"
	ConnectionDHCP    ConnectionType = "dhcp"
	ConnectionIPoE    ConnectionType = "ipoe"
	ConnectionStatic  ConnectionType = "static"
	ConnectionHotspot ConnectionType = "hotspot"
)

// DefaultConnectionType is the global fallback when nothing else resolves.
const DefaultConnectionType = ConnectionPPPoE

// KnownConnectionTypes lists every type the dispatch tables cover.
var KnownConnectionTypes = []ConnectionType{
	ConnectionPPPoE, ConnectionDHCP, ConnectionIPoE, ConnectionStatic, ConnectionHotspot,
}

// Valid reports whether the type is one the dispatch tables cover.
func (c ConnectionType) Valid() bool {
	for _, known := range KnownConnectionTypes {
		if c == known {
			return true
		}
	}
	return false
}

// Vendor identifies the NAS/OLT platform behind a device.
type Vendor string

const (
	VendorMikrotik Vendor = "mikrotik"
	VendorHuawei   Vendor = "huawei"
	VendorZTE      Vendor = "zte"
	VendorGenieACS Vendor = "genieacs"
	VendorOther    Vendor = "other"
)

// NasDevice represents a NAS/BRAS/OLT terminating subscriber sessions.
type NasDevice struct {
	ID          uint   `gorm:"column:id;primaryKey" json:"id"`
	Name        string `gorm:"column:name;size:100;not null" json:"name"`
	Vendor      Vendor `gorm:"column:vendor;size:50;default:mikrotik;index" json:"vendor"`
	Description string `gorm:"column:description;size:255" json:"description"`

	// RADIUS
	IPAddress string `gorm:"column:ip_address;size:50;not null;uniqueIndex" json:"ip_address"`
	Secret    string `gorm:"column:secret;size:255" json:"-"` // AES-GCM encrypted, "ENC:" prefix
	HasSecret bool   `gorm:"-" json:"has_secret"`
	CoAPort   int    `gorm:"column:coa_port;default:3799" json:"coa_port"`

	// RouterOS API
	APIUsername string `gorm:"column:api_username;size:100" json:"api_username"`
	APIPassword string `gorm:"column:api_password;size:255" json:"-"`
	APIPort     int    `gorm:"column:api_port;default:8728" json:"api_port"`

	// SSH management access (CLI fallback, config export)
	SSHUsername string `gorm:"column:ssh_username;size:100" json:"ssh_username"`
	SSHPassword string `gorm:"column:ssh_password;size:255" json:"-"`
	SSHPort     int    `gorm:"column:ssh_port;default:22" json:"ssh_port"`

	// Provisioning
	DefaultConnectionType *ConnectionType `gorm:"column:default_connection_type;size:20" json:"default_connection_type"`

	// Status
	IsActive bool       `gorm:"column:is_active;default:true" json:"is_active"`
	LastSeen *time.Time `gorm:"column:last_seen" json:"last_seen"`

	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (NasDevice) TableName() string {
	return "nas_devices"
}

// NasConnectionRule maps subscribers to a connection type on one device.
// Rules are evaluated in ascending priority order; the first active rule
// whose match expression matches the subscription wins.
type NasConnectionRule struct {
	ID          uint `gorm:"primaryKey" json:"id"`
	NasDeviceID uint `gorm:"not null;index" json:"nas_device_id"`
	Priority    int  `gorm:"default:100;index" json:"priority"`
	// Supported forms: "", "*", "login:<exact-or-prefix*>", "mac:<exact-or-prefix*>".
	MatchExpression string          `gorm:"size:255" json:"match_expression"`
	ConnectionType  *ConnectionType `gorm:"size:20" json:"connection_type"`
	IsActive        bool            `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (NasConnectionRule) TableName() string {
	return "nas_connection_rules"
}
