package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBool(t *testing.T) {
	values := Values{
		"enforcement/coa_enabled": "false",
		"enforcement/kill":        "1",
		"enforcement/garbage":     "maybe",
		"enforcement/spaced":      " yes ",
	}

	assert.False(t, Bool(values, "enforcement", "coa_enabled", true))
	assert.True(t, Bool(values, "enforcement", "kill", false))
	assert.True(t, Bool(values, "enforcement", "missing", true), "absent key falls back")
	assert.False(t, Bool(values, "enforcement", "garbage", false), "unparsable falls back")
	assert.True(t, Bool(values, "enforcement", "spaced", false))
}

func TestInt(t *testing.T) {
	values := Values{
		"enforcement/coa_timeout_sec": "7",
		"enforcement/bad":             "seven",
	}

	assert.Equal(t, 7, Int(values, "enforcement", "coa_timeout_sec", 3))
	assert.Equal(t, 3, Int(values, "enforcement", "missing", 3))
	assert.Equal(t, 3, Int(values, "enforcement", "bad", 3))
}

func TestString(t *testing.T) {
	values := Values{
		"enforcement/default_mikrotik_address_list": "  suspended  ",
		"enforcement/blank":                         "   ",
	}

	assert.Equal(t, "suspended", String(values, "enforcement", "default_mikrotik_address_list", "blocked"))
	assert.Equal(t, "blocked", String(values, "enforcement", "missing", "blocked"))
	assert.Equal(t, "blocked", String(values, "enforcement", "blank", "blocked"), "whitespace-only falls back")
}

func TestUint(t *testing.T) {
	values := Values{
		"enforcement/fup_throttle_radius_profile_id": "9",
		"enforcement/zero":     "0",
		"enforcement/negative": "-4",
	}

	id, ok := Uint(values, "enforcement", "fup_throttle_radius_profile_id")
	assert.True(t, ok)
	assert.Equal(t, uint(9), id)

	_, ok = Uint(values, "enforcement", "missing")
	assert.False(t, ok)

	_, ok = Uint(values, "enforcement", "zero")
	assert.False(t, ok, "zero means unconfigured")

	_, ok = Uint(values, "enforcement", "negative")
	assert.False(t, ok)
}

func TestValuesResolve(t *testing.T) {
	values := Values{"radius/external_databases": "[]"}

	v, ok := values.Resolve("radius", "external_databases")
	assert.True(t, ok)
	assert.Equal(t, "[]", v)

	_, ok = values.Resolve("radius", "other")
	assert.False(t, ok)
}
