package provisioning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
)

func attrNames(attrs []ReplyAttribute) []string {
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.Name
	}
	return names
}

func findAttr(t *testing.T, attrs []ReplyAttribute, name string) ReplyAttribute {
	t.Helper()
	for _, a := range attrs {
		if a.Name == name {
			return a
		}
	}
	t.Fatalf("attribute %s not found in %v", name, attrNames(attrs))
	return ReplyAttribute{}
}

func countAttr(attrs []ReplyAttribute, name string) int {
	n := 0
	for _, a := range attrs {
		if a.Name == name {
			n++
		}
	}
	return n
}

func TestBuildMikrotikRateLimit(t *testing.T) {
	tests := []struct {
		name    string
		profile *models.RadiusProfile
		want    string
	}{
		{"nil profile", nil, ""},
		{"no speeds", &models.RadiusProfile{}, ""},
		{
			"explicit hint verbatim",
			&models.RadiusProfile{MikrotikRateLimit: "10M/5M", DownloadSpeed: 50000},
			"10M/5M",
		},
		{
			"download before upload",
			&models.RadiusProfile{DownloadSpeed: 50000, UploadSpeed: 25000},
			"50000k/25000k",
		},
		{
			"download only",
			&models.RadiusProfile{DownloadSpeed: 20000},
			"20000k/0k",
		},
		{
			"full burst",
			&models.RadiusProfile{
				DownloadSpeed: 10000, UploadSpeed: 5000,
				BurstDownloadSpeed: 20000, BurstUploadSpeed: 10000,
				BurstThresholdDownload: 8000, BurstThresholdUpload: 4000,
				BurstTime: 8,
			},
			"10000k/5000k 20000k/10000k 8000k/4000k 8/8",
		},
		{
			"partial burst defaults missing fields to base",
			&models.RadiusProfile{
				DownloadSpeed: 10000, UploadSpeed: 5000,
				BurstDownloadSpeed: 20000,
			},
			"10000k/5000k 20000k/5000k 10000k/5000k 10/10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildMikrotikRateLimit(tt.profile))
		})
	}
}

func TestBuildReplyAttributesPPPoE(t *testing.T) {
	vlan := 100
	inner := 200
	profile := &models.RadiusProfile{
		Name:            "fiber-50",
		DownloadSpeed:   50000,
		UploadSpeed:     25000,
		IPPoolName:      "pppoe-pool",
		SessionTimeout:  86400,
		SimultaneousUse: 1,
		VlanID:          &vlan,
		InnerVlanID:     &inner,
	}
	sub := &models.Subscription{Login: "alice", IPv4Address: "10.1.2.3"}

	attrs := BuildReplyAttributes(AttributeInput{Subscription: sub, Profile: profile})

	require.NotEmpty(t, attrs)
	assert.Equal(t, ReplyAttribute{"Service-Type", OpSet, "Framed-User"}, attrs[0])
	assert.Equal(t, "PPP", findAttr(t, attrs, "Framed-Protocol").Value)
	assert.Equal(t, "pppoe-pool", findAttr(t, attrs, "Framed-Pool").Value)
	assert.Equal(t, "10.1.2.3", findAttr(t, attrs, "Framed-IP-Address").Value)
	assert.Equal(t, "86400", findAttr(t, attrs, "Session-Timeout").Value)
	assert.Equal(t, "1", findAttr(t, attrs, "Simultaneous-Use").Value)
	assert.Equal(t, "50000k/25000k", findAttr(t, attrs, "Mikrotik-Rate-Limit").Value)

	// Outer tag set once, inner tag additive.
	assert.Equal(t, 2, countAttr(attrs, "Tunnel-Private-Group-Id"))
	assert.Equal(t, "VLAN", findAttr(t, attrs, "Tunnel-Type").Value)
}

func TestBuildReplyAttributesIPoEOption82(t *testing.T) {
	sub := &models.Subscription{Login: "bob", MACAddress: "aa:bb:cc:dd:ee:ff"}
	nas := &models.NasDevice{DefaultConnectionType: ct(models.ConnectionIPoE)}
	cred := &models.AccessCredential{CircuitID: "olt1/1/1:100", RemoteID: "ont-4242"}

	attrs := BuildReplyAttributes(AttributeInput{
		Subscription:       sub,
		Nas:                nas,
		Option82Credential: cred,
	})

	assert.Equal(t, "Ethernet", findAttr(t, attrs, "NAS-Port-Type").Value)
	assert.Equal(t, "olt1/1/1:100", findAttr(t, attrs, "Agent-Circuit-Id").Value)
	assert.Equal(t, "ont-4242", findAttr(t, attrs, "Agent-Remote-Id").Value)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", findAttr(t, attrs, "Calling-Station-Id").Value)
}

func TestBuildReplyAttributesOption82OnlyForIPoE(t *testing.T) {
	cred := &models.AccessCredential{CircuitID: "olt1/1/1:100"}

	attrs := BuildReplyAttributes(AttributeInput{
		Subscription:       &models.Subscription{Login: "alice"},
		Option82Credential: cred,
	})

	assert.Zero(t, countAttr(attrs, "Agent-Circuit-Id"))
}

func TestBuildReplyAttributesHotspot(t *testing.T) {
	profile := &models.RadiusProfile{
		Name:           "hotspot-basic",
		ConnectionType: ct(models.ConnectionHotspot),
		DownloadSpeed:  10000,
		UploadSpeed:    2000,
	}

	attrs := BuildReplyAttributes(AttributeInput{
		Subscription: &models.Subscription{Login: "guest1"},
		Profile:      profile,
	})

	assert.Equal(t, "Login-User", findAttr(t, attrs, "Service-Type").Value)
	assert.Equal(t, "hotspot-basic", findAttr(t, attrs, "Mikrotik-Group").Value)
	assert.Equal(t, "10000k/2000k", findAttr(t, attrs, "Mikrotik-Rate-Limit").Value)
}

func TestBuildReplyAttributesStatic(t *testing.T) {
	profile := &models.RadiusProfile{
		ConnectionType: ct(models.ConnectionStatic),
		DownloadSpeed:  50000,
		SessionTimeout: 3600,
	}
	sub := &models.Subscription{
		IPv4Address: "198.51.100.7",
		IPv6Address: "2001:db8::/64",
	}

	attrs := BuildReplyAttributes(AttributeInput{Subscription: sub, Profile: profile})

	assert.Equal(t, "198.51.100.7", findAttr(t, attrs, "Framed-IP-Address").Value)
	assert.Equal(t, "2001:db8::/64", findAttr(t, attrs, "Framed-IPv6-Prefix").Value)
	assert.Equal(t, "3600", findAttr(t, attrs, "Session-Timeout").Value)
	// Static sessions carry no rate limit; shaping is queue-based.
	assert.Zero(t, countAttr(attrs, "Mikrotik-Rate-Limit"))
}

func TestBuildReplyAttributesCustomDedup(t *testing.T) {
	profile := &models.RadiusProfile{SessionTimeout: 3600}

	attrs := BuildReplyAttributes(AttributeInput{
		Subscription: &models.Subscription{Login: "alice"},
		Profile:      profile,
		CustomAttributes: []models.ProfileAttribute{
			{Attribute: "session-timeout", Op: ":=", Value: "60"},
			{Attribute: "Framed-Route", Op: ":=", Value: "192.0.2.0/24"},
			{Attribute: "Cisco-AVPair", Op: "+=", Value: "a=1"},
			{Attribute: "Cisco-AVPair", Op: "+=", Value: "b=2"},
		},
	})

	// The ":=" duplicate is dropped case-insensitively; base value wins.
	assert.Equal(t, 1, countAttr(attrs, "Session-Timeout"))
	assert.Equal(t, "3600", findAttr(t, attrs, "Session-Timeout").Value)

	assert.Equal(t, "192.0.2.0/24", findAttr(t, attrs, "Framed-Route").Value)
	assert.Equal(t, 2, countAttr(attrs, "Cisco-AVPair"))
}

func TestBuildReplyAttributesUnknownTypeFallsBack(t *testing.T) {
	profile := &models.RadiusProfile{ConnectionType: ct(models.ConnectionType("wimax"))}

	attrs := BuildReplyAttributes(AttributeInput{
		Subscription: &models.Subscription{Login: "alice"},
		Profile:      profile,
	})

	assert.Equal(t, "PPP", findAttr(t, attrs, "Framed-Protocol").Value)
}
