package settings

import (
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/database"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
)

// Enforcement policy keys (domain "enforcement").
const (
	DomainEnforcement = "enforcement"
	DomainRadius      = "radius"

	KeyCoAEnabled              = "coa_enabled"
	KeyCoATimeoutSec           = "coa_timeout_sec"
	KeyCoARetries              = "coa_retries"
	KeyMikrotikKillEnabled     = "mikrotik_session_kill_enabled"
	KeyAddressListBlockEnabled = "address_list_block_enabled"
	KeyDefaultAddressList      = "default_mikrotik_address_list"
	KeyRefreshOnProfileChange  = "refresh_sessions_on_profile_change"
	KeyFUPAction               = "fup_action"
	KeyFUPThrottleProfileID    = "fup_throttle_radius_profile_id"

	KeyExternalDatabases = "external_databases"
)

// Resolver reads operational policy. Absent keys report ok=false and
// callers fall back to hardcoded defaults.
type Resolver interface {
	Resolve(domain, key string) (string, bool)
}

// Store is the database-backed Resolver with a Redis cache in front.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Resolve returns the raw value for domain/key.
func (s *Store) Resolve(domain, key string) (string, bool) {
	all := s.load()
	v, ok := all[domain+"/"+key]
	return v, ok
}

func (s *Store) load() map[string]string {
	var cached map[string]string
	if err := database.CacheGet(database.CacheKeySettings, &cached); err == nil {
		return cached
	}

	var prefs []models.SystemPreference
	s.db.Order("domain, key").Find(&prefs)

	all := make(map[string]string, len(prefs))
	for _, p := range prefs {
		all[p.Domain+"/"+p.Key] = p.Value
	}
	database.CacheSet(database.CacheKeySettings, all, database.CacheTTLSettings)
	return all
}

// Set upserts a preference row and invalidates the cache.
func (s *Store) Set(domain, key, value string) error {
	var pref models.SystemPreference
	err := s.db.Where("domain = ? AND key = ?", domain, key).First(&pref).Error
	if err == gorm.ErrRecordNotFound {
		pref = models.SystemPreference{Domain: domain, Key: key, Value: value}
		err = s.db.Create(&pref).Error
	} else if err == nil {
		err = s.db.Model(&pref).Update("value", value).Error
	}
	if err != nil {
		return err
	}
	database.InvalidateSettingsCache()
	return nil
}

// Bool resolves a boolean flag with a default.
func Bool(r Resolver, domain, key string, def bool) bool {
	v, ok := r.Resolve(domain, key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

// Int resolves an integer with a default.
func Int(r Resolver, domain, key string, def int) int {
	v, ok := r.Resolve(domain, key)
	if !ok {
		return def
	}
	if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return n
	}
	return def
}

// String resolves a string with a default.
func String(r Resolver, domain, key, def string) string {
	v, ok := r.Resolve(domain, key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

// Uint resolves an unsigned id setting; ok is false when unset or
// unparsable.
func Uint(r Resolver, domain, key string) (uint, bool) {
	v, found := r.Resolve(domain, key)
	if !found {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// Values is a map-backed Resolver for tests and static wiring.
type Values map[string]string

func (v Values) Resolve(domain, key string) (string, bool) {
	val, ok := v[domain+"/"+key]
	return val, ok
}
