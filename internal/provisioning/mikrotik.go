package provisioning

import (
	"context"
	"fmt"
	"net"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/mikrotik"
)

// routerosRunner is the slice of the RouterOS API client the adapter
// uses; tests substitute a fake.
type routerosRunner interface {
	Connect() error
	RunCommand(command string) ([]map[string]string, error)
	Close()
}

// MikrotikProvisioner pushes configuration to RouterOS over the
// binary API.
type MikrotikProvisioner struct {
	newClient func(address, username, password string) routerosRunner
}

func NewMikrotikProvisioner() *MikrotikProvisioner {
	return &MikrotikProvisioner{
		newClient: func(address, username, password string) routerosRunner {
			return mikrotik.NewClient(address, username, password)
		},
	}
}

// AssignONT has no ONT semantics on RouterOS; it runs the supplied
// commands like PushConfig so mixed-vendor workflows stay uniform.
func (p *MikrotikProvisioner) AssignONT(ctx context.Context, pc ConnectorContext, cfg Config) (Result, error) {
	return p.run(ctx, pc, cfg, true)
}

func (p *MikrotikProvisioner) PushConfig(ctx context.Context, pc ConnectorContext, cfg Config) (Result, error) {
	return p.run(ctx, pc, cfg, true)
}

// ConfirmUp runs the supplied check commands, or a resource probe
// when none are given, and reports the rows seen.
func (p *MikrotikProvisioner) ConfirmUp(ctx context.Context, pc ConnectorContext, cfg Config) (Result, error) {
	return p.run(ctx, pc, cfg, false)
}

func (p *MikrotikProvisioner) run(ctx context.Context, pc ConnectorContext, cfg Config, commandsRequired bool) (Result, error) {
	conn, err := resolveConnector(pc, 8728)
	if err != nil {
		return nil, fmt.Errorf("mikrotik: %w", err)
	}

	commands := stringSliceField(cfg, "commands")
	if len(commands) == 0 {
		if commandsRequired {
			return nil, fmt.Errorf("mikrotik: no commands in config")
		}
		commands = []string{"/system/resource/print"}
	}

	client := p.newClient(net.JoinHostPort(conn.Host, fmt.Sprintf("%d", conn.Port)), conn.Username, conn.Password)
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("mikrotik %s: %w", conn.Host, err)
	}
	defer client.Close()

	outputs := make([]interface{}, 0, len(commands))
	for _, cmd := range commands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := client.RunCommand(cmd)
		if err != nil {
			return nil, fmt.Errorf("mikrotik command %q: %w", cmd, err)
		}
		outputs = append(outputs, rows)
	}

	return Result{
		"status":   "ok",
		"host":     conn.Host,
		"commands": len(commands),
		"output":   outputs,
	}, nil
}
