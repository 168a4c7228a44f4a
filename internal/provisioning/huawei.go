package provisioning

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

const netconfDelimiter = "]]>]]>"

const netconfHello = `<?xml version="1.0" encoding="UTF-8"?>
<hello xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">
  <capabilities>
    <capability>urn:ietf:params:xml:ns:netconf:base:1.0</capability>
  </capabilities>
</hello>`

// HuaweiProvisioner drives Huawei and ZTE OLTs over NETCONF. The
// config payload carries the XML documents to send: "edit_config" for
// configuration pushes, "rpc" for raw operations, "filter" for state
// reads.
type HuaweiProvisioner struct {
	Timeout time.Duration
}

func NewHuaweiProvisioner() *HuaweiProvisioner {
	return &HuaweiProvisioner{Timeout: 15 * time.Second}
}

// AssignONT sends the ONT binding as an edit-config or raw RPC.
func (p *HuaweiProvisioner) AssignONT(ctx context.Context, pc ConnectorContext, cfg Config) (Result, error) {
	return p.configure(ctx, pc, cfg, "assign_ont")
}

// PushConfig sends a service configuration document.
func (p *HuaweiProvisioner) PushConfig(ctx context.Context, pc ConnectorContext, cfg Config) (Result, error) {
	return p.configure(ctx, pc, cfg, "push_config")
}

// ConfirmUp issues a <get> with the supplied filter and reports the
// reply so the caller can verify the ONT state.
func (p *HuaweiProvisioner) ConfirmUp(ctx context.Context, pc ConnectorContext, cfg Config) (Result, error) {
	filter := stringField(cfg, "filter")
	var body string
	if filter != "" {
		body = "<get><filter type=\"subtree\">" + filter + "</filter></get>"
	} else {
		body = "<get/>"
	}
	reply, err := p.exchange(ctx, pc, body)
	if err != nil {
		return nil, err
	}
	return Result{"status": "ok", "operation": "confirm_up", "reply": reply}, nil
}

func (p *HuaweiProvisioner) configure(ctx context.Context, pc ConnectorContext, cfg Config, op string) (Result, error) {
	var body string
	if editConfig := stringField(cfg, "edit_config"); editConfig != "" {
		body = "<edit-config><target><running/></target><config>" + editConfig + "</config></edit-config>"
	} else if rpc := stringField(cfg, "rpc"); rpc != "" {
		body = rpc
	} else {
		return nil, fmt.Errorf("huawei: config has neither edit_config nor rpc")
	}

	reply, err := p.exchange(ctx, pc, body)
	if err != nil {
		return nil, err
	}
	return Result{"status": "ok", "operation": op, "reply": reply}, nil
}

// exchange opens a NETCONF session, sends one framed RPC, and returns
// the reply body.
func (p *HuaweiProvisioner) exchange(ctx context.Context, pc ConnectorContext, body string) (string, error) {
	conn, err := resolveConnector(pc, 830)
	if err != nil {
		return "", fmt.Errorf("huawei: %w", err)
	}

	config := &ssh.ClientConfig{
		User:            conn.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(conn.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         p.Timeout,
	}
	addr := net.JoinHostPort(conn.Host, fmt.Sprintf("%d", conn.Port))
	dialer := net.Dialer{Timeout: p.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("huawei dial %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, config)
	if err != nil {
		netConn.Close()
		return "", fmt.Errorf("huawei handshake %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", err
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return "", err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return "", err
	}
	if err := session.RequestSubsystem("netconf"); err != nil {
		return "", fmt.Errorf("huawei netconf subsystem: %w", err)
	}

	reader := bufio.NewReader(stdout)
	if _, err := io.WriteString(stdin, netconfHello+"\n"+netconfDelimiter+"\n"); err != nil {
		return "", err
	}
	// Server hello; content is not inspected beyond framing.
	if _, err := readNetconfMessage(reader); err != nil {
		return "", fmt.Errorf("huawei hello: %w", err)
	}

	rpc := `<?xml version="1.0" encoding="UTF-8"?><rpc message-id="1" xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">` + body + `</rpc>`
	if _, err := io.WriteString(stdin, rpc+"\n"+netconfDelimiter+"\n"); err != nil {
		return "", err
	}

	reply, err := readNetconfMessage(reader)
	if err != nil {
		return "", fmt.Errorf("huawei rpc reply: %w", err)
	}
	if strings.Contains(reply, "<rpc-error") {
		return reply, fmt.Errorf("huawei rpc error: %s", errorTag(reply))
	}
	return reply, nil
}

// readNetconfMessage reads one end-of-message framed NETCONF message.
func readNetconfMessage(r *bufio.Reader) (string, error) {
	delim := []byte(netconfDelimiter)
	var msg []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return string(msg), err
		}
		msg = append(msg, b)
		if len(msg) >= len(delim) && string(msg[len(msg)-len(delim):]) == netconfDelimiter {
			return strings.TrimSpace(string(msg[:len(msg)-len(delim)])), nil
		}
	}
}

// errorTag pulls the error-message element out of an rpc-error reply.
func errorTag(reply string) string {
	start := strings.Index(reply, "<error-message")
	if start < 0 {
		return "unspecified error"
	}
	open := strings.Index(reply[start:], ">")
	if open < 0 {
		return "unspecified error"
	}
	rest := reply[start+open+1:]
	end := strings.Index(rest, "</error-message>")
	if end < 0 {
		return "unspecified error"
	}
	return strings.TrimSpace(rest[:end])
}
