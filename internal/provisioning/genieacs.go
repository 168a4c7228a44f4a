package provisioning

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
)

// GenieACSProvisioner manages TR-069 CPEs through a GenieACS NBI. The
// connector supplies the base_url plus optional basic-auth
// credentials; the config identifies the device and the task to queue.
type GenieACSProvisioner struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
}

func NewGenieACSProvisioner() *GenieACSProvisioner {
	return &GenieACSProvisioner{
		client: resty.New().SetTimeout(10 * time.Second),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "genieacs",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// AssignONT queues a setParameterValues task binding the CPE, with a
// connection request so it applies immediately.
func (p *GenieACSProvisioner) AssignONT(ctx context.Context, pc ConnectorContext, cfg Config) (Result, error) {
	return p.queueTask(ctx, pc, cfg, true)
}

// PushConfig queues the configured task without forcing a connection
// request unless asked to.
func (p *GenieACSProvisioner) PushConfig(ctx context.Context, pc ConnectorContext, cfg Config) (Result, error) {
	connectionRequest := false
	if v, ok := cfg["connection_request"].(bool); ok {
		connectionRequest = v
	}
	return p.queueTask(ctx, pc, cfg, connectionRequest)
}

// ConfirmUp queries the NBI for the device and reports whether it has
// informed recently enough to be considered online.
func (p *GenieACSProvisioner) ConfirmUp(ctx context.Context, pc ConnectorContext, cfg Config) (Result, error) {
	baseURL, err := p.baseURL(pc)
	if err != nil {
		return nil, err
	}
	deviceID, err := resolveDeviceID(cfg)
	if err != nil {
		return nil, err
	}

	query := url.QueryEscape(fmt.Sprintf(`{"_id":%q}`, deviceID))
	body, err := p.do(ctx, pc, func(req *resty.Request) (*resty.Response, error) {
		return req.Get(baseURL + "/devices/?query=" + query)
	})
	if err != nil {
		return nil, err
	}

	var devices []map[string]interface{}
	if err := json.Unmarshal(body, &devices); err != nil {
		return nil, fmt.Errorf("genieacs: decode device query: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("genieacs: device %s not found", deviceID)
	}

	lastInform, _ := devices[0]["_lastInform"].(string)
	return Result{
		"status":      "ok",
		"operation":   "confirm_up",
		"device_id":   deviceID,
		"last_inform": lastInform,
	}, nil
}

func (p *GenieACSProvisioner) queueTask(ctx context.Context, pc ConnectorContext, cfg Config, connectionRequest bool) (Result, error) {
	baseURL, err := p.baseURL(pc)
	if err != nil {
		return nil, err
	}
	deviceID, err := resolveDeviceID(cfg)
	if err != nil {
		return nil, err
	}

	taskName := stringField(cfg, "task")
	if taskName == "" {
		taskName = "setParameterValues"
	}
	task := map[string]interface{}{"name": taskName}
	if params, ok := cfg["parameters"]; ok {
		task["parameterValues"] = params
	}

	endpoint := baseURL + "/devices/" + url.PathEscape(deviceID) + "/tasks"
	if connectionRequest {
		endpoint += "?connection_request"
	}

	body, err := p.do(ctx, pc, func(req *resty.Request) (*resty.Response, error) {
		return req.SetBody(task).Post(endpoint)
	})
	if err != nil {
		return nil, err
	}

	result := Result{
		"status":    "ok",
		"device_id": deviceID,
		"task":      taskName,
	}
	var created map[string]interface{}
	if json.Unmarshal(body, &created) == nil {
		if id, ok := created["_id"]; ok {
			result["task_id"] = id
		}
	}
	return result, nil
}

// do runs one NBI request through the circuit breaker.
func (p *GenieACSProvisioner) do(ctx context.Context, pc ConnectorContext, call func(*resty.Request) (*resty.Response, error)) ([]byte, error) {
	conn, _ := resolveConnector(pc, 7557)

	result, err := p.breaker.Execute(func() (interface{}, error) {
		req := p.client.R().SetContext(ctx).SetHeader("Content-Type", "application/json")
		if conn.Username != "" {
			req.SetBasicAuth(conn.Username, conn.Password)
		}
		resp, err := call(req)
		if err != nil {
			return nil, fmt.Errorf("genieacs request: %w", err)
		}
		if resp.StatusCode() >= 300 {
			return nil, fmt.Errorf("genieacs: status %d: %s", resp.StatusCode(), resp.String())
		}
		return resp.Body(), nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("genieacs: circuit open: %w", err)
		}
		return nil, err
	}
	return result.([]byte), nil
}

func (p *GenieACSProvisioner) baseURL(pc ConnectorContext) (string, error) {
	conn, err := resolveConnector(pc, 7557)
	if err != nil {
		return "", fmt.Errorf("genieacs: %w", err)
	}
	if conn.BaseURL != "" {
		return trimTrailingSlash(conn.BaseURL), nil
	}
	return fmt.Sprintf("http://%s:%d", conn.Host, conn.Port), nil
}

// resolveDeviceID accepts an explicit device_id or composes the
// GenieACS identity from OUI, product class, and serial number.
func resolveDeviceID(cfg Config) (string, error) {
	if id := stringField(cfg, "device_id"); id != "" {
		return id, nil
	}
	oui := stringField(cfg, "oui")
	productClass := stringField(cfg, "product_class")
	serial := stringField(cfg, "serial")
	if oui == "" || productClass == "" || serial == "" {
		return "", fmt.Errorf("genieacs: need device_id or oui+product_class+serial")
	}
	return fmt.Sprintf("%s-%s-%s", oui, productClass, serial), nil
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
