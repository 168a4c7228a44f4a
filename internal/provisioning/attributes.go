package provisioning

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
)

// Attribute operators. Later ":=" entries for a name already emitted
// are dropped; "+=" entries always append.
const (
	OpSet = ":="
	OpAdd = "+="
)

// ReplyAttribute is one RADIUS reply attribute triple. Order matters:
// the first writer for a name wins for ":=" semantics.
type ReplyAttribute struct {
	Name  string `json:"attribute"`
	Op    string `json:"op"`
	Value string `json:"value"`
}

// AttributeInput carries everything the builder reads. The loader
// fills it from the database; tests construct it directly.
type AttributeInput struct {
	Subscription *models.Subscription
	Profile      *models.RadiusProfile
	Nas          *models.NasDevice
	Rules        []models.NasConnectionRule

	// First active credential with a circuit or remote id, if any.
	Option82Credential *models.AccessCredential

	// Profile-level custom reply attributes.
	CustomAttributes []models.ProfileAttribute
}

// baseAttributeGenerators dispatches on connection type. Unknown types
// fall back to the pppoe generator.
var baseAttributeGenerators = map[models.ConnectionType]func(*models.Subscription, *models.RadiusProfile) []ReplyAttribute{
	models.ConnectionPPPoE:   pppoeBaseAttributes,
	models.ConnectionDHCP:    dhcpBaseAttributes,
	models.ConnectionIPoE:    ipoeBaseAttributes,
	models.ConnectionStatic:  staticBaseAttributes,
	models.ConnectionHotspot: hotspotBaseAttributes,
}

// BuildReplyAttributes produces the ordered RADIUS reply attribute set
// for a subscription: connection-type base set, MikroTik overlay,
// Option-82 overlay, then profile custom attributes deduplicated by
// name unless additive.
func BuildReplyAttributes(in AttributeInput) []ReplyAttribute {
	connType := ResolveConnectionType(in.Subscription, in.Profile, in.Nas, in.Rules)

	generator, ok := baseAttributeGenerators[connType]
	if !ok {
		generator = pppoeBaseAttributes
	}
	attrs := generator(in.Subscription, in.Profile)

	attrs = appendMikrotikOverlay(attrs, connType, in.Profile)

	if connType == models.ConnectionIPoE && in.Option82Credential != nil {
		if in.Option82Credential.CircuitID != "" {
			attrs = append(attrs, ReplyAttribute{"Agent-Circuit-Id", OpSet, in.Option82Credential.CircuitID})
		}
		if in.Option82Credential.RemoteID != "" {
			attrs = append(attrs, ReplyAttribute{"Agent-Remote-Id", OpSet, in.Option82Credential.RemoteID})
		}
	}

	return appendCustomAttributes(attrs, in.CustomAttributes)
}

func pppoeBaseAttributes(sub *models.Subscription, profile *models.RadiusProfile) []ReplyAttribute {
	attrs := []ReplyAttribute{
		{"Service-Type", OpSet, "Framed-User"},
		{"Framed-Protocol", OpSet, "PPP"},
	}
	attrs = appendProfileAttributes(attrs, profile, true)
	if sub != nil && sub.IPv4Address != "" {
		attrs = append(attrs, ReplyAttribute{"Framed-IP-Address", OpSet, sub.IPv4Address})
	}
	return attrs
}

func dhcpBaseAttributes(sub *models.Subscription, profile *models.RadiusProfile) []ReplyAttribute {
	attrs := []ReplyAttribute{
		{"Service-Type", OpSet, "Framed-User"},
	}
	attrs = appendProfileAttributes(attrs, profile, false)
	if sub != nil {
		if sub.IPv4Address != "" {
			attrs = append(attrs, ReplyAttribute{"Framed-IP-Address", OpSet, sub.IPv4Address})
		}
		if sub.MACAddress != "" {
			attrs = append(attrs, ReplyAttribute{"Calling-Station-Id", OpSet, sub.MACAddress})
		}
	}
	return attrs
}

func ipoeBaseAttributes(sub *models.Subscription, profile *models.RadiusProfile) []ReplyAttribute {
	attrs := []ReplyAttribute{
		{"Service-Type", OpSet, "Framed-User"},
		{"NAS-Port-Type", OpSet, "Ethernet"},
	}
	if profile != nil && profile.VlanID != nil {
		attrs = append(attrs, vlanTunnelAttributes(*profile.VlanID, profile.InnerVlanID)...)
	}
	if sub != nil {
		if sub.IPv4Address != "" {
			attrs = append(attrs, ReplyAttribute{"Framed-IP-Address", OpSet, sub.IPv4Address})
		}
		if sub.MACAddress != "" {
			attrs = append(attrs, ReplyAttribute{"Calling-Station-Id", OpSet, sub.MACAddress})
		}
	}
	return attrs
}

func staticBaseAttributes(sub *models.Subscription, profile *models.RadiusProfile) []ReplyAttribute {
	attrs := []ReplyAttribute{
		{"Service-Type", OpSet, "Framed-User"},
	}
	if sub != nil {
		if sub.IPv4Address != "" {
			attrs = append(attrs, ReplyAttribute{"Framed-IP-Address", OpSet, sub.IPv4Address})
		}
		if sub.IPv6Address != "" {
			attrs = append(attrs, ReplyAttribute{"Framed-IPv6-Prefix", OpSet, sub.IPv6Address})
		}
	}
	if profile != nil && profile.SessionTimeout > 0 {
		attrs = append(attrs, ReplyAttribute{"Session-Timeout", OpSet, strconv.Itoa(profile.SessionTimeout)})
	}
	return attrs
}

func hotspotBaseAttributes(sub *models.Subscription, profile *models.RadiusProfile) []ReplyAttribute {
	attrs := []ReplyAttribute{
		{"Service-Type", OpSet, "Login-User"},
	}
	attrs = appendProfileAttributes(attrs, profile, true)
	if profile != nil && profile.Name != "" {
		attrs = append(attrs, ReplyAttribute{"Mikrotik-Group", OpSet, profile.Name})
	}
	if sub != nil {
		if sub.IPv4Address != "" {
			attrs = append(attrs, ReplyAttribute{"Framed-IP-Address", OpSet, sub.IPv4Address})
		}
		if sub.MACAddress != "" {
			attrs = append(attrs, ReplyAttribute{"Calling-Station-Id", OpSet, sub.MACAddress})
		}
	}
	return attrs
}

// appendProfileAttributes adds pool and timer attributes common to the
// session-oriented connection types.
func appendProfileAttributes(attrs []ReplyAttribute, profile *models.RadiusProfile, simultaneousUse bool) []ReplyAttribute {
	if profile == nil {
		return attrs
	}
	if profile.IPPoolName != "" {
		attrs = append(attrs, ReplyAttribute{"Framed-Pool", OpSet, profile.IPPoolName})
	}
	if profile.IPv6PoolName != "" {
		attrs = append(attrs, ReplyAttribute{"Framed-IPv6-Pool", OpSet, profile.IPv6PoolName})
	}
	if profile.SessionTimeout > 0 {
		attrs = append(attrs, ReplyAttribute{"Session-Timeout", OpSet, strconv.Itoa(profile.SessionTimeout)})
	}
	if profile.IdleTimeout > 0 {
		attrs = append(attrs, ReplyAttribute{"Idle-Timeout", OpSet, strconv.Itoa(profile.IdleTimeout)})
	}
	if simultaneousUse && profile.SimultaneousUse > 0 {
		attrs = append(attrs, ReplyAttribute{"Simultaneous-Use", OpSet, strconv.Itoa(profile.SimultaneousUse)})
	}
	return attrs
}

// vlanTunnelAttributes emits the RFC 2868 tunnel triple for the outer
// tag, and appends the inner (QinQ) tag additively when present.
func vlanTunnelAttributes(outer int, inner *int) []ReplyAttribute {
	attrs := []ReplyAttribute{
		{"Tunnel-Type", OpSet, "VLAN"},
		{"Tunnel-Medium-Type", OpSet, "IEEE-802"},
		{"Tunnel-Private-Group-Id", OpSet, strconv.Itoa(outer)},
	}
	if inner != nil {
		attrs = append(attrs, ReplyAttribute{"Tunnel-Private-Group-Id", OpAdd, strconv.Itoa(*inner)})
	}
	return attrs
}

// appendMikrotikOverlay adds the vendor-specific attributes for
// connection types terminated on RouterOS.
func appendMikrotikOverlay(attrs []ReplyAttribute, connType models.ConnectionType, profile *models.RadiusProfile) []ReplyAttribute {
	if profile == nil {
		return attrs
	}
	switch connType {
	case models.ConnectionPPPoE, models.ConnectionHotspot, models.ConnectionIPoE:
		if rateLimit := BuildMikrotikRateLimit(profile); rateLimit != "" {
			attrs = append(attrs, ReplyAttribute{"Mikrotik-Rate-Limit", OpSet, rateLimit})
		}
		if profile.MikrotikAddressList != "" {
			attrs = append(attrs, ReplyAttribute{"Mikrotik-Address-List", OpSet, profile.MikrotikAddressList})
		}
	}
	// PPPoE carries the profile VLAN through tunnel attributes too;
	// the ipoe generator already emitted its own.
	if connType == models.ConnectionPPPoE && profile.VlanID != nil {
		attrs = append(attrs, vlanTunnelAttributes(*profile.VlanID, profile.InnerVlanID)...)
	}
	return attrs
}

// appendCustomAttributes applies profile custom rows. A ":=" row whose
// name (case-insensitive) is already present is dropped; "+=" rows
// always append.
func appendCustomAttributes(attrs []ReplyAttribute, custom []models.ProfileAttribute) []ReplyAttribute {
	seen := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		seen[strings.ToLower(a.Name)] = true
	}
	for _, row := range custom {
		name := strings.TrimSpace(row.Attribute)
		if name == "" {
			continue
		}
		op := row.Op
		if op != OpAdd {
			op = OpSet
		}
		key := strings.ToLower(name)
		if op == OpSet && seen[key] {
			continue
		}
		attrs = append(attrs, ReplyAttribute{name, op, row.Value})
		seen[key] = true
	}
	return attrs
}

// BuildMikrotikRateLimit builds the RouterOS rate-limit string for a
// profile. An explicit vendor hint is used verbatim; with no speeds at
// all the result is empty and no attribute is emitted.
func BuildMikrotikRateLimit(profile *models.RadiusProfile) string {
	if profile == nil {
		return ""
	}
	if profile.MikrotikRateLimit != "" {
		return profile.MikrotikRateLimit
	}
	if profile.DownloadSpeed <= 0 && profile.UploadSpeed <= 0 {
		return ""
	}

	down := profile.DownloadSpeed
	up := profile.UploadSpeed
	if down < 0 {
		down = 0
	}
	if up < 0 {
		up = 0
	}
	rate := fmt.Sprintf("%dk/%dk", down, up)

	if profile.BurstDownloadSpeed <= 0 && profile.BurstUploadSpeed <= 0 &&
		profile.BurstThresholdDownload <= 0 && profile.BurstThresholdUpload <= 0 &&
		profile.BurstTime <= 0 {
		return rate
	}

	burstDown := profile.BurstDownloadSpeed
	if burstDown <= 0 {
		burstDown = down
	}
	burstUp := profile.BurstUploadSpeed
	if burstUp <= 0 {
		burstUp = up
	}
	thresholdDown := profile.BurstThresholdDownload
	if thresholdDown <= 0 {
		thresholdDown = down
	}
	thresholdUp := profile.BurstThresholdUpload
	if thresholdUp <= 0 {
		thresholdUp = up
	}
	burstTime := profile.BurstTime
	if burstTime <= 0 {
		burstTime = 10
	}

	return fmt.Sprintf("%s %dk/%dk %dk/%dk %d/%d",
		rate, burstDown, burstUp, thresholdDown, thresholdUp, burstTime, burstTime)
}
