package coa

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
)

// MikroTik vendor-specific attribute types (vendor ID 14988).
const (
	mikrotikVendorID        = 14988
	mikrotikRateLimitType   = 8
	mikrotikGroupType       = 3
	mikrotikAddressListType = 19
)

// Session identifies one accounting session on a NAS. The fields come
// from the radacct row the RADIUS server wrote for the session.
type Session struct {
	Username         string
	AcctSessionID    string
	NASIPAddress     string
	FramedIPAddress  string
	CallingStationID string
}

// UpdateAttributes are the session attributes a CoA-Request can
// rewrite in place.
type UpdateAttributes struct {
	RateLimit   string
	Group       string
	AddressList string
}

// Client sends RFC 5176 Disconnect and CoA requests to a NAS.
type Client struct {
	Timeout time.Duration
	Retries int
}

// NewClient builds a CoA client. Retries counts resends after the
// first attempt; each attempt gets its own Timeout window.
func NewClient(timeout time.Duration, retries int) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &Client{Timeout: timeout, Retries: retries}
}

// Disconnect sends a Disconnect-Request for the session and waits for
// the ACK. A NAK or timeout is returned as an error.
func (c *Client) Disconnect(ctx context.Context, nas *models.NasDevice, secret string, sess Session) error {
	packet := radius.New(radius.CodeDisconnectRequest, []byte(secret))
	c.setSessionAttributes(packet, nas, sess)
	return c.exchange(ctx, packet, nas, "disconnect")
}

// Update sends a CoA-Request rewriting the session's rate limit,
// group, or address list. Empty fields are omitted from the packet.
func (c *Client) Update(ctx context.Context, nas *models.NasDevice, secret string, sess Session, attrs UpdateAttributes) error {
	packet := radius.New(radius.CodeCoARequest, []byte(secret))
	c.setSessionAttributes(packet, nas, sess)

	if attrs.RateLimit != "" {
		packet.Add(rfc2865.VendorSpecific_Type, vendorAttr(mikrotikRateLimitType, attrs.RateLimit))
	}
	if attrs.Group != "" {
		packet.Add(rfc2865.VendorSpecific_Type, vendorAttr(mikrotikGroupType, attrs.Group))
	}
	if attrs.AddressList != "" {
		packet.Add(rfc2865.VendorSpecific_Type, vendorAttr(mikrotikAddressListType, attrs.AddressList))
	}
	return c.exchange(ctx, packet, nas, "coa")
}

// setSessionAttributes adds the identification attributes RFC 5176
// session matching uses.
func (c *Client) setSessionAttributes(packet *radius.Packet, nas *models.NasDevice, sess Session) {
	rfc2865.UserName_SetString(packet, sess.Username)

	sessionID := sess.AcctSessionID
	if nas.Vendor == models.VendorMikrotik {
		// RouterOS rejects session IDs that do not match its own
		// lowercase hex formatting.
		sessionID = strings.ToLower(strings.TrimPrefix(sessionID, "0x"))
	}
	if sessionID != "" {
		rfc2866.AcctSessionID_SetString(packet, sessionID)
	}

	if ip := net.ParseIP(sess.FramedIPAddress); ip != nil {
		rfc2865.FramedIPAddress_Set(packet, ip)
	}
	if sess.CallingStationID != "" {
		rfc2865.CallingStationID_SetString(packet, sess.CallingStationID)
	}
	if ip := net.ParseIP(nas.IPAddress); ip != nil {
		rfc2865.NASIPAddress_Set(packet, ip)
	}
}

// exchange sends the packet to the NAS CoA port, retrying on timeout
// and treating a NAK as a hard failure.
func (c *Client) exchange(ctx context.Context, packet *radius.Packet, nas *models.NasDevice, op string) error {
	port := nas.CoAPort
	if port <= 0 {
		port = 3799
	}
	addr := net.JoinHostPort(nas.IPAddress, fmt.Sprintf("%d", port))

	var lastErr error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.Timeout)
		response, err := radius.Exchange(attemptCtx, packet, addr)
		cancel()
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		switch response.Code {
		case radius.CodeDisconnectACK, radius.CodeCoAACK:
			return nil
		case radius.CodeDisconnectNAK, radius.CodeCoANAK:
			return fmt.Errorf("%s rejected by %s: %s", op, nas.IPAddress, response.Code)
		default:
			return fmt.Errorf("%s: unexpected response %s from %s", op, response.Code, nas.IPAddress)
		}
	}
	return fmt.Errorf("%s request to %s failed: %w", op, addr, lastErr)
}

// vendorAttr packs a MikroTik vendor-specific attribute payload.
func vendorAttr(vendorType byte, value string) radius.Attribute {
	vendorID := uint32(mikrotikVendorID)
	attr := make(radius.Attribute, 0, 6+len(value))
	attr = append(attr,
		byte(vendorID>>24),
		byte(vendorID>>16),
		byte(vendorID>>8),
		byte(vendorID),
		vendorType,
		byte(2+len(value)),
	)
	attr = append(attr, value...)
	return attr
}
