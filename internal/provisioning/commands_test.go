package provisioning

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
)

func mikrotikNas() *models.NasDevice {
	return &models.NasDevice{Vendor: models.VendorMikrotik}
}

func TestBuildNasCommandsPPPoELifecycle(t *testing.T) {
	sub := &models.Subscription{Login: "alice", IPv4Address: "10.1.2.3"}
	profile := &models.RadiusProfile{Name: "fiber-50"}

	create := BuildNasCommands(sub, mikrotikNas(), profile, nil, ActionCreate)
	require.Len(t, create, 1)
	assert.Equal(t, `/ppp secret add name="alice" profile="fiber-50" remote-address=10.1.2.3 service=pppoe`, create[0])

	del := BuildNasCommands(sub, mikrotikNas(), profile, nil, ActionDelete)
	require.Len(t, del, 1)
	assert.Equal(t, `/ppp secret remove [find name="alice"]`, del[0])

	suspend := BuildNasCommands(sub, mikrotikNas(), profile, nil, ActionSuspend)
	require.Len(t, suspend, 2)
	assert.Equal(t, `/ppp secret set [find name="alice"] disabled=yes`, suspend[0])
	assert.Equal(t, `/ppp active remove [find name="alice"]`, suspend[1])

	unsuspend := BuildNasCommands(sub, mikrotikNas(), profile, nil, ActionUnsuspend)
	require.Len(t, unsuspend, 1)
	assert.Equal(t, `/ppp secret set [find name="alice"] disabled=no`, unsuspend[0])
}

func TestBuildNasCommandsSanitizesInjection(t *testing.T) {
	sub := &models.Subscription{Login: `alice"; /system reboot`}

	cmds := BuildNasCommands(sub, mikrotikNas(), nil, nil, ActionCreate)
	require.Len(t, cmds, 1)
	assert.NotContains(t, cmds[0], `"; `)
	assert.NotContains(t, cmds[0], ";")
	assert.Contains(t, cmds[0], "alice /system reboot", "quote and semicolon are stripped, safe runes survive")
}

func TestBuildNasCommandsDHCP(t *testing.T) {
	sub := &models.Subscription{IPv4Address: "10.9.8.7", MACAddress: "aa:bb:cc:dd:ee:ff", Login: "x"}
	nas := mikrotikNas()
	nas.DefaultConnectionType = ct(models.ConnectionDHCP)
	profile := &models.RadiusProfile{DownloadSpeed: 20000, UploadSpeed: 5000}

	create := BuildNasCommands(sub, nas, profile, nil, ActionCreate)
	require.Len(t, create, 1)
	assert.Equal(t, `/ip dhcp-server lease add address=10.9.8.7 mac-address=aa:bb:cc:dd:ee:ff rate-limit="20000k/5000k"`, create[0])

	suspend := BuildNasCommands(sub, nas, profile, nil, ActionSuspend)
	require.Len(t, suspend, 1)
	assert.Equal(t, `/ip dhcp-server lease set [find address=10.9.8.7] disabled=yes`, suspend[0])
}

func TestBuildNasCommandsDHCPMissingIdentity(t *testing.T) {
	sub := &models.Subscription{Login: "x", MACAddress: "aa:bb:cc:dd:ee:ff"}
	nas := mikrotikNas()
	nas.DefaultConnectionType = ct(models.ConnectionDHCP)

	assert.Empty(t, BuildNasCommands(sub, nas, nil, nil, ActionCreate), "no IP, no lease")
}

func TestBuildNasCommandsStatic(t *testing.T) {
	sub := &models.Subscription{Login: "x", IPv4Address: "198.51.100.7"}
	nas := mikrotikNas()
	nas.DefaultConnectionType = ct(models.ConnectionStatic)

	assert.Empty(t, BuildNasCommands(sub, nas, nil, nil, ActionCreate), "static create has no NAS-side object")

	suspend := BuildNasCommands(sub, nas, nil, nil, ActionSuspend)
	require.Len(t, suspend, 1)
	assert.Equal(t, "/ip firewall address-list add list=blocked-subscribers address=198.51.100.7", suspend[0])

	unsuspend := BuildNasCommands(sub, nas, nil, nil, ActionUnsuspend)
	require.Len(t, unsuspend, 1)
	assert.Equal(t, "/ip firewall address-list remove [find list=blocked-subscribers address=198.51.100.7]", unsuspend[0])
}

func TestBuildNasCommandsNonMikrotikVendor(t *testing.T) {
	sub := &models.Subscription{Login: "alice"}
	nas := &models.NasDevice{Vendor: models.VendorHuawei}

	assert.Nil(t, BuildNasCommands(sub, nas, nil, nil, ActionCreate))
}

func TestSessionKillCommands(t *testing.T) {
	ppp := SessionKillCommands("alice", models.ConnectionPPPoE)
	require.Len(t, ppp, 1)
	assert.Equal(t, `/ppp active remove [find name="alice"]`, ppp[0])

	hotspot := SessionKillCommands("guest1", models.ConnectionHotspot)
	require.Len(t, hotspot, 1)
	assert.Equal(t, `/ip hotspot active remove [find user="guest1"]`, hotspot[0])

	assert.Nil(t, SessionKillCommands("", models.ConnectionPPPoE))
}

func TestSanitizeRouterOSValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice", "alice"},
		{"aa:bb:cc:dd:ee:ff", "aa:bb:cc:dd:ee:ff"},
		{"user@isp.net", "user@isp.net"},
		{"evil\";{}\n", "evil"},
		{"  padded  ", "padded"},
		{"semi;colon", "semicolon"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeRouterOSValue(tt.in), "input %q", tt.in)
	}
}

func TestAddressListCommandsSanitizeBothSides(t *testing.T) {
	cmd := AddressListAddCommand(`bad"list`, "10.0.0.1")
	assert.False(t, strings.ContainsRune(cmd, '"'))
	assert.Contains(t, cmd, "list=badlist")
}
