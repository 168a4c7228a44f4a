package coa

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
)

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(0, -5)
	assert.Equal(t, 3*time.Second, c.Timeout)
	assert.Equal(t, 0, c.Retries)

	c = NewClient(10*time.Second, 2)
	assert.Equal(t, 10*time.Second, c.Timeout)
	assert.Equal(t, 2, c.Retries)
}

func TestSetSessionAttributes(t *testing.T) {
	c := NewClient(0, 0)
	packet := radius.New(radius.CodeDisconnectRequest, []byte("secret"))
	nas := &models.NasDevice{Vendor: models.VendorHuawei, IPAddress: "10.0.0.1"}

	c.setSessionAttributes(packet, nas, Session{
		Username:         "alice",
		AcctSessionID:    "0x8100001A",
		FramedIPAddress:  "100.64.0.7",
		CallingStationID: "AA:BB:CC:DD:EE:FF",
	})

	assert.Equal(t, "alice", rfc2865.UserName_GetString(packet))
	assert.Equal(t, "0x8100001A", rfc2866.AcctSessionID_GetString(packet), "non-mikrotik session id untouched")
	assert.Equal(t, "100.64.0.7", rfc2865.FramedIPAddress_Get(packet).String())
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", rfc2865.CallingStationID_GetString(packet))
	assert.Equal(t, "10.0.0.1", rfc2865.NASIPAddress_Get(packet).String())
}

func TestSetSessionAttributesMikrotikSessionID(t *testing.T) {
	c := NewClient(0, 0)
	packet := radius.New(radius.CodeDisconnectRequest, []byte("secret"))
	nas := &models.NasDevice{Vendor: models.VendorMikrotik, IPAddress: "10.0.0.1"}

	c.setSessionAttributes(packet, nas, Session{
		Username:      "alice",
		AcctSessionID: "0x8100001A",
	})

	assert.Equal(t, "8100001a", rfc2866.AcctSessionID_GetString(packet))
}

func TestSetSessionAttributesOmitsEmptyFields(t *testing.T) {
	c := NewClient(0, 0)
	packet := radius.New(radius.CodeDisconnectRequest, []byte("secret"))
	nas := &models.NasDevice{Vendor: models.VendorMikrotik, IPAddress: "not-an-ip"}

	c.setSessionAttributes(packet, nas, Session{Username: "alice"})

	assert.Empty(t, rfc2866.AcctSessionID_GetString(packet))
	assert.Nil(t, rfc2865.FramedIPAddress_Get(packet))
	assert.Empty(t, rfc2865.CallingStationID_GetString(packet))
}

func TestVendorAttrPacking(t *testing.T) {
	attr := vendorAttr(mikrotikRateLimitType, "10M/5M")

	// 4-byte vendor id, then type/length, then the value.
	require.Len(t, attr, 6+len("10M/5M"))
	assert.Equal(t, byte(0x00), attr[0])
	assert.Equal(t, byte(0x00), attr[1])
	assert.Equal(t, byte(0x3A), attr[2])
	assert.Equal(t, byte(0x8C), attr[3])
	assert.Equal(t, byte(8), attr[4])
	assert.Equal(t, byte(2+len("10M/5M")), attr[5])
	assert.Equal(t, "10M/5M", string(attr[6:]))
}

func TestUpdatePacketCarriesVendorAttributes(t *testing.T) {
	packet := radius.New(radius.CodeCoARequest, []byte("secret"))
	packet.Add(rfc2865.VendorSpecific_Type, vendorAttr(mikrotikRateLimitType, "10M/5M"))
	packet.Add(rfc2865.VendorSpecific_Type, vendorAttr(mikrotikAddressListType, "throttled"))

	var vsas []radius.Attribute
	for _, attr := range packet.Attributes {
		if attr.Type == rfc2865.VendorSpecific_Type {
			vsas = append(vsas, attr.Attribute)
		}
	}
	require.Len(t, vsas, 2)
	assert.Contains(t, string(vsas[0]), "10M/5M")
	assert.Contains(t, string(vsas[1]), "throttled")
}
