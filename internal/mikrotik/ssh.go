package mikrotik

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHRunner executes RouterOS CLI commands over SSH. It is the
// fallback transport for session enforcement when CoA is disabled or
// rejected, and the export transport for configuration backups.
type SSHRunner struct {
	Timeout time.Duration
}

// NewSSHRunner creates a runner with a 10 second dial/exec timeout.
func NewSSHRunner() *SSHRunner {
	return &SSHRunner{Timeout: 10 * time.Second}
}

// Run executes each command in its own session and returns the
// combined output per command. Execution stops at the first failure.
func (r *SSHRunner) Run(ctx context.Context, host string, port int, username, password string, commands []string) ([]string, error) {
	if host == "" {
		return nil, fmt.Errorf("ssh host is required")
	}
	if port <= 0 {
		port = 22
	}

	config := &ssh.ClientConfig{
		User: username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
		},
		// NAS devices are addressed by IP from our own inventory;
		// they do not present stable host keys across RouterOS
		// reinstalls.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         r.Timeout,
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	dialer := net.Dialer{Timeout: r.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, config)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	outputs := make([]string, 0, len(commands))
	for _, cmd := range commands {
		if err := ctx.Err(); err != nil {
			return outputs, err
		}
		out, err := runOne(client, cmd)
		outputs = append(outputs, out)
		if err != nil {
			return outputs, fmt.Errorf("ssh command %q: %w", cmd, err)
		}
	}
	return outputs, nil
}

func runOne(client *ssh.Client, command string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", err
	}
	defer session.Close()

	var buf bytes.Buffer
	session.Stdout = &buf
	session.Stderr = &buf
	err = session.Run(command)
	return buf.String(), err
}
