package provisioning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
)

func ct(t models.ConnectionType) *models.ConnectionType { return &t }

func TestResolveConnectionTypeProfileWins(t *testing.T) {
	profile := &models.RadiusProfile{ConnectionType: ct(models.ConnectionStatic)}
	nas := &models.NasDevice{DefaultConnectionType: ct(models.ConnectionDHCP)}
	rules := []models.NasConnectionRule{
		{IsActive: true, Priority: 1, MatchExpression: "*", ConnectionType: ct(models.ConnectionHotspot)},
	}

	got := ResolveConnectionType(&models.Subscription{Login: "alice"}, profile, nas, rules)
	assert.Equal(t, models.ConnectionStatic, got)
}

func TestResolveConnectionTypeRulePriority(t *testing.T) {
	sub := &models.Subscription{Login: "biz-042"}
	nas := &models.NasDevice{DefaultConnectionType: ct(models.ConnectionPPPoE)}
	rules := []models.NasConnectionRule{
		{IsActive: true, Priority: 20, MatchExpression: "*", ConnectionType: ct(models.ConnectionDHCP)},
		{IsActive: true, Priority: 10, MatchExpression: "login:biz-*", ConnectionType: ct(models.ConnectionIPoE)},
	}

	got := ResolveConnectionType(sub, nil, nas, rules)
	assert.Equal(t, models.ConnectionIPoE, got, "lower priority value wins")
}

func TestResolveConnectionTypeInactiveRuleSkipped(t *testing.T) {
	sub := &models.Subscription{Login: "alice"}
	nas := &models.NasDevice{DefaultConnectionType: ct(models.ConnectionDHCP)}
	rules := []models.NasConnectionRule{
		{IsActive: false, Priority: 1, MatchExpression: "*", ConnectionType: ct(models.ConnectionHotspot)},
	}

	got := ResolveConnectionType(sub, nil, nas, rules)
	assert.Equal(t, models.ConnectionDHCP, got)
}

func TestResolveConnectionTypeMACCaseInsensitive(t *testing.T) {
	sub := &models.Subscription{Login: "alice", MACAddress: "AA:BB:CC:DD:EE:FF"}
	nas := &models.NasDevice{}
	rules := []models.NasConnectionRule{
		{IsActive: true, Priority: 1, MatchExpression: "mac:aa:bb:cc:*", ConnectionType: ct(models.ConnectionIPoE)},
	}

	got := ResolveConnectionType(sub, nil, nas, rules)
	assert.Equal(t, models.ConnectionIPoE, got)
}

func TestResolveConnectionTypeMalformedRuleNeverMatches(t *testing.T) {
	sub := &models.Subscription{Login: "alice"}
	nas := &models.NasDevice{DefaultConnectionType: ct(models.ConnectionDHCP)}
	rules := []models.NasConnectionRule{
		{IsActive: true, Priority: 1, MatchExpression: "garbage(expr", ConnectionType: ct(models.ConnectionHotspot)},
	}

	got := ResolveConnectionType(sub, nil, nas, rules)
	assert.Equal(t, models.ConnectionDHCP, got, "unsupported grammar is fail-closed")
}

func TestResolveConnectionTypeGlobalDefault(t *testing.T) {
	got := ResolveConnectionType(&models.Subscription{}, nil, nil, nil)
	assert.Equal(t, models.ConnectionPPPoE, got)
	assert.Equal(t, models.DefaultConnectionType, got)
}

func TestResolveConnectionTypeExactLoginMatch(t *testing.T) {
	nas := &models.NasDevice{}
	rules := []models.NasConnectionRule{
		{IsActive: true, Priority: 1, MatchExpression: "login:alice", ConnectionType: ct(models.ConnectionStatic)},
	}

	assert.Equal(t, models.ConnectionStatic,
		ResolveConnectionType(&models.Subscription{Login: "alice"}, nil, nas, rules))
	assert.Equal(t, models.DefaultConnectionType,
		ResolveConnectionType(&models.Subscription{Login: "alice2"}, nil, nas, rules))
}

func TestValidateConnectionRules(t *testing.T) {
	rules := []models.NasConnectionRule{
		{IsActive: true, MatchExpression: "*"},
		{IsActive: true, MatchExpression: "login:biz-*"},
		{IsActive: true, MatchExpression: "mac:aa:bb:*"},
		{IsActive: true, MatchExpression: "ip:10.0.0.0/8"},
		{IsActive: false, MatchExpression: "also garbage"},
		{IsActive: true, MatchExpression: ""},
	}

	malformed := ValidateConnectionRules(rules, zap.NewNop())
	assert.Equal(t, 1, malformed, "only the active unsupported expression counts")
}
