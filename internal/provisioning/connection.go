package provisioning

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
)

// ResolveConnectionType resolves the effective connection type for a
// subscription. Priority chain, first non-null stage wins:
//
//  1. explicit connection type on the resolved RADIUS profile
//  2. first matching active NAS connection rule (ascending priority)
//  3. the NAS device's default connection type
//  4. the global default (pppoe)
//
// rules must belong to nas; they are filtered to active and sorted
// here so callers can pass them as loaded.
func ResolveConnectionType(sub *models.Subscription, profile *models.RadiusProfile, nas *models.NasDevice, rules []models.NasConnectionRule) models.ConnectionType {
	if profile != nil && profile.ConnectionType != nil && *profile.ConnectionType != "" {
		return *profile.ConnectionType
	}

	if nas != nil {
		for _, rule := range orderedActiveRules(rules) {
			if !ruleMatches(rule, sub) {
				continue
			}
			if rule.ConnectionType != nil && *rule.ConnectionType != "" {
				return *rule.ConnectionType
			}
		}
		if nas.DefaultConnectionType != nil && *nas.DefaultConnectionType != "" {
			return *nas.DefaultConnectionType
		}
	}

	return models.DefaultConnectionType
}

func orderedActiveRules(rules []models.NasConnectionRule) []models.NasConnectionRule {
	active := make([]models.NasConnectionRule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority < active[j].Priority
	})
	return active
}

// ruleMatches reports whether a rule's match expression selects the
// subscription. The grammar is deliberately fail-closed: anything
// outside the supported forms never matches, so a malformed expression
// disables its rule instead of selecting everything.
func ruleMatches(rule models.NasConnectionRule, sub *models.Subscription) bool {
	expr := strings.TrimSpace(rule.MatchExpression)
	if expr == "" || expr == "*" {
		return true
	}
	if sub == nil {
		return false
	}

	switch {
	case strings.HasPrefix(expr, "login:"):
		pattern := strings.TrimPrefix(expr, "login:")
		return patternMatches(pattern, sub.Login, false)
	case strings.HasPrefix(expr, "mac:"):
		pattern := strings.TrimPrefix(expr, "mac:")
		return patternMatches(pattern, sub.MACAddress, true)
	}
	return false
}

// patternMatches does exact or trailing-* prefix matching. MAC
// comparisons fold case.
func patternMatches(pattern, value string, foldCase bool) bool {
	if foldCase {
		pattern = strings.ToLower(pattern)
		value = strings.ToLower(value)
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(value, strings.TrimSuffix(pattern, "*"))
	}
	return value == pattern
}

// ValidateConnectionRules logs a warning for every active rule whose
// match expression is outside the supported grammar. Matching stays
// fail-closed either way; this only surfaces operator typos at
// startup.
func ValidateConnectionRules(rules []models.NasConnectionRule, log *zap.Logger) int {
	malformed := 0
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		expr := strings.TrimSpace(rule.MatchExpression)
		if expr == "" || expr == "*" ||
			strings.HasPrefix(expr, "login:") || strings.HasPrefix(expr, "mac:") {
			continue
		}
		malformed++
		log.Warn("NAS connection rule has unsupported match expression and will never match",
			zap.Uint("rule_id", rule.ID),
			zap.Uint("nas_device_id", rule.NasDeviceID),
			zap.String("match_expression", rule.MatchExpression))
	}
	return malformed
}
