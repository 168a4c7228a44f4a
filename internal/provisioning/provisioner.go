package provisioning

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
)

// Result is the structured outcome of a provisioning step.
type Result map[string]interface{}

// Config is the step-specific payload: CLI commands, NETCONF
// documents, or ACS task parameters depending on the adapter.
type Config map[string]interface{}

// ConnectorContext carries transport-level connection settings,
// supplied by the caller per call. Adapters resolve host/port and
// credentials from an explicit field set or a base_url.
type ConnectorContext struct {
	Connector map[string]interface{} `json:"connector"`
}

// Provisioner is the polymorphic capability each vendor integration
// implements. Adapters are single-shot: they raise transport and
// validation errors directly instead of running a fallback chain.
type Provisioner interface {
	AssignONT(ctx context.Context, pc ConnectorContext, cfg Config) (Result, error)
	PushConfig(ctx context.Context, pc ConnectorContext, cfg Config) (Result, error)
	ConfirmUp(ctx context.Context, pc ConnectorContext, cfg Config) (Result, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[models.Vendor]Provisioner{}
)

// Register installs the provisioner for a vendor, replacing any
// existing registration.
func Register(vendor models.Vendor, p Provisioner) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[vendor] = p
}

// GetProvisioner returns the registered provisioner for a vendor, or a
// fresh StubProvisioner so unknown vendors degrade gracefully instead
// of failing provisioning workflows outright.
func GetProvisioner(vendor models.Vendor) Provisioner {
	registryMu.RLock()
	p, ok := registry[vendor]
	registryMu.RUnlock()
	if ok {
		return p
	}
	return &StubProvisioner{}
}

func init() {
	Register(models.VendorMikrotik, NewMikrotikProvisioner())
	huawei := NewHuaweiProvisioner()
	Register(models.VendorHuawei, huawei)
	// ZTE OLTs speak the same NETCONF dialect we use for Huawei.
	Register(models.VendorZTE, huawei)
	Register(models.VendorGenieACS, NewGenieACSProvisioner())
}

// StubProvisioner accepts every operation and echoes its config. It
// stands in for vendors without an integration so workflows complete
// instead of crashing.
type StubProvisioner struct{}

func (s *StubProvisioner) AssignONT(ctx context.Context, pc ConnectorContext, cfg Config) (Result, error) {
	return stubResult("assign_ont", cfg), nil
}

func (s *StubProvisioner) PushConfig(ctx context.Context, pc ConnectorContext, cfg Config) (Result, error) {
	return stubResult("push_config", cfg), nil
}

func (s *StubProvisioner) ConfirmUp(ctx context.Context, pc ConnectorContext, cfg Config) (Result, error) {
	return stubResult("confirm_up", cfg), nil
}

func stubResult(op string, cfg Config) Result {
	return Result{"status": "ok", "operation": op, "echo": cfg, "stub": true}
}

// connector holds the resolved transport settings.
type connector struct {
	Host     string
	Port     int
	Username string
	Password string
	BaseURL  string
}

// resolveConnector extracts transport settings from the context,
// honoring explicit fields first and falling back to parsing base_url.
func resolveConnector(pc ConnectorContext, defaultPort int) (connector, error) {
	c := connector{Port: defaultPort}
	raw := pc.Connector
	if raw == nil {
		return c, fmt.Errorf("connector configuration missing")
	}

	c.Host = stringField(raw, "host")
	c.Username = stringField(raw, "username")
	c.Password = stringField(raw, "password")
	c.BaseURL = stringField(raw, "base_url")
	if port, ok := intField(raw, "port"); ok {
		c.Port = port
	}

	if c.Host == "" && c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			return c, fmt.Errorf("invalid base_url %q: %w", c.BaseURL, err)
		}
		c.Host = u.Hostname()
		if p := u.Port(); p != "" {
			if n, err := strconv.Atoi(p); err == nil {
				c.Port = n
			}
		}
		if u.User != nil {
			if c.Username == "" {
				c.Username = u.User.Username()
			}
			if pw, ok := u.User.Password(); ok && c.Password == "" {
				c.Password = pw
			}
		}
	}

	if c.Host == "" && c.BaseURL == "" {
		return c, fmt.Errorf("connector has neither host nor base_url")
	}
	return c, nil
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func intField(m map[string]interface{}, key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}

// stringSliceField accepts []string or []interface{} of strings.
func stringSliceField(m map[string]interface{}, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
