package models

import (
	"time"
)

// RadiusProfile is a named bundle of service parameters. Immutable
// during a single attribute build.
type RadiusProfile struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:100;not null;uniqueIndex" json:"name"`

	// Optional explicit connection type; overrides NAS rules entirely.
	ConnectionType *ConnectionType `gorm:"size:20" json:"connection_type"`

	// Speeds in kbps; 0 means unset.
	DownloadSpeed int64 `gorm:"default:0" json:"download_speed"`
	UploadSpeed   int64 `gorm:"default:0" json:"upload_speed"`

	// RouterOS burst parameters. Missing sub-fields default to the
	// base rate/threshold; burst time defaults to 10 seconds.
	BurstDownloadSpeed     int64 `gorm:"default:0" json:"burst_download_speed"`
	BurstUploadSpeed       int64 `gorm:"default:0" json:"burst_upload_speed"`
	BurstThresholdDownload int64 `gorm:"default:0" json:"burst_threshold_download"`
	BurstThresholdUpload   int64 `gorm:"default:0" json:"burst_threshold_upload"`
	BurstTime              int   `gorm:"default:0" json:"burst_time"` // seconds

	IPPoolName   string `gorm:"size:100" json:"ip_pool_name"`
	IPv6PoolName string `gorm:"size:100" json:"ipv6_pool_name"`

	SessionTimeout  int `gorm:"default:0" json:"session_timeout"` // seconds
	IdleTimeout     int `gorm:"default:0" json:"idle_timeout"`    // seconds
	SimultaneousUse int `gorm:"default:0" json:"simultaneous_use"`

	// VLAN tagging: outer (S-VLAN) and inner (C-VLAN, QinQ) tags.
	VlanID      *int `json:"vlan_id"`
	InnerVlanID *int `json:"inner_vlan_id"`

	// Vendor hints. An explicit rate-limit string is used verbatim.
	MikrotikRateLimit   string `gorm:"size:100" json:"mikrotik_rate_limit"`
	MikrotikAddressList string `gorm:"size:100" json:"mikrotik_address_list"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RadiusProfile) TableName() string {
	return "radius_profiles"
}

// ProfileAttribute is a custom RADIUS reply attribute attached to a
// profile, appended after the generated base set.
type ProfileAttribute struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	RadiusProfileID uint   `gorm:"not null;index" json:"radius_profile_id"`
	Attribute       string `gorm:"size:64;not null" json:"attribute"`
	Op              string `gorm:"size:2;not null;default:':='" json:"op"`
	Value           string `gorm:"size:253;not null" json:"value"`
}

func (ProfileAttribute) TableName() string {
	return "radius_profile_attributes"
}

// RadCheck mirrors the FreeRADIUS radcheck table.
type RadCheck struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Username  string `gorm:"size:64;not null;index" json:"username"`
	Attribute string `gorm:"size:64;not null" json:"attribute"`
	Op        string `gorm:"size:2;not null;default:':='" json:"op"`
	Value     string `gorm:"size:253;not null" json:"value"`
}

// RadReply mirrors the FreeRADIUS radreply table.
type RadReply struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Username  string `gorm:"size:64;not null;index" json:"username"`
	Attribute string `gorm:"size:64;not null" json:"attribute"`
	Op        string `gorm:"size:2;not null;default:'='" json:"op"`
	Value     string `gorm:"size:253;not null" json:"value"`
}

// RadUserGroup mirrors the FreeRADIUS radusergroup table.
type RadUserGroup struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Username  string `gorm:"size:64;not null;index" json:"username"`
	GroupName string `gorm:"size:64;not null" json:"groupname"`
	Priority  int    `gorm:"default:1" json:"priority"`
}

// RadAcct represents RADIUS accounting records. A session is active
// while acct_stop_time is NULL and the last status type is not Stop.
type RadAcct struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	AcctSessionID      string     `gorm:"size:64;not null;index" json:"acctsessionid"`
	AcctUniqueID       string     `gorm:"size:32;uniqueIndex" json:"acctuniqueid"`
	Username           string     `gorm:"size:64;not null;index" json:"username"`
	AccessCredentialID *uint      `gorm:"index" json:"access_credential_id"`
	NasIPAddress       string     `gorm:"size:15;not null;index" json:"nasipaddress"`
	NasPortID          string     `gorm:"size:50" json:"nasportid"`
	NasPortType        string     `gorm:"size:32" json:"nasporttype"`
	AcctStartTime      *time.Time `gorm:"index" json:"acctstarttime"`
	AcctUpdateTime     *time.Time `json:"acctupdatetime"`
	AcctStopTime       *time.Time `gorm:"index" json:"acctstoptime"`
	AcctStatusType     string     `gorm:"size:32;index" json:"acctstatustype"`
	AcctSessionTime    int        `gorm:"default:0" json:"acctsessiontime"`
	AcctInputOctets    int64      `gorm:"default:0" json:"acctinputoctets"`
	AcctOutputOctets   int64      `gorm:"default:0" json:"acctoutputoctets"`
	CalledStationID    string     `gorm:"size:50" json:"calledstationid"`
	CallingStationID   string     `gorm:"size:50;index" json:"callingstationid"` // MAC address
	AcctTerminateCause string     `gorm:"size:32" json:"acctterminatecause"`
	ServiceType        string     `gorm:"size:32" json:"servicetype"`
	FramedProtocol     string     `gorm:"size:32" json:"framedprotocol"`
	FramedIPAddress    string     `gorm:"size:15;index" json:"framedipaddress"`
	FramedIPv6Prefix   string     `gorm:"size:45" json:"framedipv6prefix"`
}

func (RadCheck) TableName() string {
	return "radcheck"
}

func (RadReply) TableName() string {
	return "radreply"
}

func (RadUserGroup) TableName() string {
	return "radusergroup"
}

func (RadAcct) TableName() string {
	return "radacct"
}
