// Package config handles configuration loading, defaults, environment
// overrides, and validation for the bridge and relay services.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/railbridge/railbridge/internal/storage"
)

// Config is the top-level configuration shared by both service modes.
type Config struct {
	LogLevel string       `json:"log_level,omitempty"`
	Bridge   BridgeConfig `json:"bridge"`
	Relay    RelayConfig  `json:"relay"`
}

// BridgeConfig configures the HTTP bridge.
type BridgeConfig struct {
	Addr      string    `json:"addr,omitempty"`
	AuthToken string    `json:"auth_token,omitempty"` // empty disables auth
	MCP       MCPConfig `json:"mcp"`
}

// MCPConfig describes the wrapped MCP server subprocess.
type MCPConfig struct {
	Command         string            `json:"command,omitempty"`
	Args            []string          `json:"args,omitempty"`
	WorkDir         string            `json:"work_dir,omitempty"`
	Env             map[string]string `json:"env,omitempty"`
	CallTimeout     Duration          `json:"call_timeout,omitempty"`
	RailwayTokenKey string            `json:"railway_token_key,omitempty"` // secret name looked up at startup
}

// RelayConfig configures the mailbox relay.
type RelayConfig struct {
	Addr          string           `json:"addr,omitempty"`
	GatewayURL    string           `json:"gateway_url"`
	GatewayToken  string           `json:"gateway_token,omitempty"`
	Prefix        string           `json:"prefix,omitempty"`
	RequestSuffix string           `json:"request_suffix,omitempty"`
	PollInterval  Duration         `json:"poll_interval,omitempty"`
	HTTPTimeout   Duration         `json:"http_timeout,omitempty"`
	S3            storage.S3Config `json:"s3"`
}

// Duration is a JSON-friendly time.Duration (accepts strings like "30s",
// "5m", or a bare number of seconds).
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		dur, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		d.Duration = dur
	case float64:
		d.Duration = time.Duration(val * float64(time.Second))
	default:
		return fmt.Errorf("invalid duration: %v", v)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Load reads a config file (optional: an empty path yields defaults), layers
// environment overrides on top, and applies defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	cfg.applyDefaults()
	return cfg, nil
}

// ApplyEnv overrides deployment knobs from environment-style variables. The
// lookup function is injected so tests don't touch the real environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	setString := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	setDuration := func(dst *Duration, key string) {
		if v, ok := lookup(key); ok && v != "" {
			if dur, err := time.ParseDuration(v); err == nil {
				dst.Duration = dur
			}
		}
	}

	setString(&c.LogLevel, "LOG_LEVEL")

	if v, ok := lookup("PORT"); ok && v != "" {
		c.Bridge.Addr = ":" + v
	}
	setString(&c.Bridge.AuthToken, "AUTH_TOKEN")
	setString(&c.Bridge.MCP.Command, "MCP_COMMAND")
	setDuration(&c.Bridge.MCP.CallTimeout, "MCP_CALL_TIMEOUT")

	if v, ok := lookup("RELAY_PORT"); ok && v != "" {
		c.Relay.Addr = ":" + v
	}
	setString(&c.Relay.GatewayURL, "MCP_GATEWAY_URL")
	setString(&c.Relay.GatewayToken, "MCP_GATEWAY_TOKEN")
	setString(&c.Relay.Prefix, "REQUESTS_PREFIX")
	setDuration(&c.Relay.PollInterval, "POLL_INTERVAL")
	setString(&c.Relay.S3.Bucket, "BUCKET_NAME")
	setString(&c.Relay.S3.Endpoint, "S3_ENDPOINT")
	setString(&c.Relay.S3.AccessKey, "S3_ACCESS_KEY_ID")
	setString(&c.Relay.S3.SecretKey, "S3_SECRET_ACCESS_KEY")
	setString(&c.Relay.S3.Region, "S3_REGION")
	if v, ok := lookup("S3_USE_SSL"); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Relay.S3.UseSSL = b
		}
	}
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Bridge.Addr == "" {
		c.Bridge.Addr = ":8080"
	}
	if c.Bridge.MCP.Command == "" {
		c.Bridge.MCP.Command = "npx"
		if len(c.Bridge.MCP.Args) == 0 {
			c.Bridge.MCP.Args = []string{"-y", "@railway/mcp-server"}
		}
	}
	if c.Bridge.MCP.CallTimeout.Duration == 0 {
		c.Bridge.MCP.CallTimeout.Duration = 30 * time.Second
	}
	if c.Bridge.MCP.RailwayTokenKey == "" {
		c.Bridge.MCP.RailwayTokenKey = "RAILWAY_API_TOKEN"
	}
	if c.Relay.Addr == "" {
		c.Relay.Addr = ":8081"
	}
	if c.Relay.Prefix == "" {
		c.Relay.Prefix = "requests/"
	}
	if c.Relay.RequestSuffix == "" {
		c.Relay.RequestSuffix = ".json"
	}
	if c.Relay.PollInterval.Duration == 0 {
		c.Relay.PollInterval.Duration = time.Second
	}
	if c.Relay.HTTPTimeout.Duration == 0 {
		c.Relay.HTTPTimeout.Duration = 30 * time.Second
	}
}

// ValidateRelay checks the settings the relay cannot run without. Missing
// credentials abort startup rather than running degraded.
func (c *Config) ValidateRelay() error {
	if c.Relay.GatewayURL == "" {
		return fmt.Errorf("relay.gateway_url is required (MCP_GATEWAY_URL)")
	}
	if c.Relay.S3.Bucket == "" {
		return fmt.Errorf("relay.s3.bucket is required (BUCKET_NAME)")
	}
	if c.Relay.S3.Endpoint == "" {
		return fmt.Errorf("relay.s3.endpoint is required (S3_ENDPOINT)")
	}
	if c.Relay.S3.AccessKey == "" || c.Relay.S3.SecretKey == "" {
		return fmt.Errorf("relay.s3 credentials are required (S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY)")
	}
	return nil
}
