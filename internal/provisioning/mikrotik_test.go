package provisioning

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRouterOS struct {
	address    string
	connectErr error
	runErr     error
	commands   []string
	closed     bool
}

func (f *fakeRouterOS) Connect() error { return f.connectErr }

func (f *fakeRouterOS) RunCommand(command string) ([]map[string]string, error) {
	f.commands = append(f.commands, command)
	if f.runErr != nil {
		return nil, f.runErr
	}
	return []map[string]string{{"ret": "ok"}}, nil
}

func (f *fakeRouterOS) Close() { f.closed = true }

func newFakeMikrotik(fake *fakeRouterOS) *MikrotikProvisioner {
	return &MikrotikProvisioner{
		newClient: func(address, username, password string) routerosRunner {
			fake.address = address
			return fake
		},
	}
}

func mikrotikCtx() ConnectorContext {
	return ConnectorContext{Connector: map[string]interface{}{
		"host":     "10.0.0.1",
		"username": "admin",
		"password": "pw",
	}}
}

func TestMikrotikPushConfigRunsCommands(t *testing.T) {
	fake := &fakeRouterOS{}
	p := newFakeMikrotik(fake)

	res, err := p.PushConfig(context.Background(), mikrotikCtx(), Config{
		"commands": []string{"/ppp/secret/add =name=alice", "/ppp/secret/print"},
	})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1:8728", fake.address)
	assert.Equal(t, []string{"/ppp/secret/add =name=alice", "/ppp/secret/print"}, fake.commands)
	assert.Equal(t, "ok", res["status"])
	assert.Equal(t, 2, res["commands"])
	assert.True(t, fake.closed)
}

func TestMikrotikPushConfigRequiresCommands(t *testing.T) {
	p := newFakeMikrotik(&fakeRouterOS{})

	_, err := p.PushConfig(context.Background(), mikrotikCtx(), Config{})
	assert.Error(t, err)
}

func TestMikrotikConfirmUpDefaultsToResourceProbe(t *testing.T) {
	fake := &fakeRouterOS{}
	p := newFakeMikrotik(fake)

	_, err := p.ConfirmUp(context.Background(), mikrotikCtx(), Config{})
	require.NoError(t, err)
	assert.Equal(t, []string{"/system/resource/print"}, fake.commands)
}

func TestMikrotikConnectFailure(t *testing.T) {
	fake := &fakeRouterOS{connectErr: errors.New("dial tcp: refused")}
	p := newFakeMikrotik(fake)

	_, err := p.PushConfig(context.Background(), mikrotikCtx(), Config{
		"commands": []string{"/ppp/secret/print"},
	})
	assert.ErrorContains(t, err, "10.0.0.1")
	assert.Empty(t, fake.commands)
}

func TestMikrotikCommandFailureStopsBatch(t *testing.T) {
	fake := &fakeRouterOS{runErr: errors.New("!trap no such item")}
	p := newFakeMikrotik(fake)

	_, err := p.PushConfig(context.Background(), mikrotikCtx(), Config{
		"commands": []string{"/bad/command", "/never/runs"},
	})
	assert.Error(t, err)
	assert.Len(t, fake.commands, 1)
	assert.True(t, fake.closed)
}
