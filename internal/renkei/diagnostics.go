package renkei

import (
	"context"
	"strings"
)

const redactedPlaceholder = "**REDACTED**"

// sensitiveKeys are matched as substrings against lowercased field names
var sensitiveKeys = []string{"password", "token", "api_key", "secret", "credential"}

// Diagnostics assembles a point-in-time support report: redacted
// configuration, client counters, the aggregated status snapshot and open
// issues, plus best-effort live queries when connected. Live query failures
// are reported inline rather than failing the report.
func (c *RenkeiClient) Diagnostics(ctx context.Context) map[string]any {
	report := map[string]any{
		"config": redactSensitive(map[string]any{
			"host":                  c.config.Device.Host,
			"port":                  c.config.Device.Port,
			"reconnect_interval":    c.config.Connection.ReconnectInterval,
			"health_check_interval": c.config.Connection.HealthCheckInterval,
			"stabilisation_delay":   c.config.Connection.StabilisationDelay,
			"response_timeout":      c.config.Connection.ResponseTimeout,
		}),
		"client": c.Stats(),
		"status": c.Status(),
		"issues": c.issues.Open(),
	}

	if info := c.Info(); info != nil {
		report["device"] = info
	}

	if !c.Connected() {
		return report
	}

	if msg, err := c.request(ctx, CmdGetStatus, nil, true, probeTimeout); err != nil {
		report["live_status"] = map[string]any{"error": err.Error()}
	} else {
		report["live_status"] = msg.Data
	}

	if msg, err := c.request(ctx, CmdGetInfo, nil, true, probeTimeout); err != nil {
		report["live_info"] = map[string]any{"error": err.Error()}
	} else {
		report["live_info"] = msg.Data
	}

	return report
}

// redactSensitive replaces values whose key looks credential-like,
// descending into nested maps
func redactSensitive(data map[string]any) map[string]any {
	cleaned := make(map[string]any, len(data))
	for key, value := range data {
		if isSensitiveKey(key) {
			cleaned[key] = redactedPlaceholder
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			cleaned[key] = redactSensitive(nested)
			continue
		}
		cleaned[key] = value
	}
	return cleaned
}

func isSensitiveKey(key string) bool {
	lowered := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowered, sensitive) {
			return true
		}
	}
	return false
}
