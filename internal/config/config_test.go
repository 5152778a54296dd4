package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if cfg.Bridge.Addr != ":8080" {
		t.Errorf("bridge addr = %q", cfg.Bridge.Addr)
	}
	if cfg.Bridge.MCP.Command != "npx" {
		t.Errorf("mcp command = %q", cfg.Bridge.MCP.Command)
	}
	if len(cfg.Bridge.MCP.Args) != 2 || cfg.Bridge.MCP.Args[1] != "@railway/mcp-server" {
		t.Errorf("mcp args = %v", cfg.Bridge.MCP.Args)
	}
	if cfg.Bridge.MCP.CallTimeout.Duration != 30*time.Second {
		t.Errorf("call timeout = %v", cfg.Bridge.MCP.CallTimeout.Duration)
	}
	if cfg.Bridge.MCP.RailwayTokenKey != "RAILWAY_API_TOKEN" {
		t.Errorf("token key = %q", cfg.Bridge.MCP.RailwayTokenKey)
	}
	if cfg.Relay.Addr != ":8081" {
		t.Errorf("relay addr = %q", cfg.Relay.Addr)
	}
	if cfg.Relay.Prefix != "requests/" {
		t.Errorf("prefix = %q", cfg.Relay.Prefix)
	}
	if cfg.Relay.RequestSuffix != ".json" {
		t.Errorf("suffix = %q", cfg.Relay.RequestSuffix)
	}
	if cfg.Relay.PollInterval.Duration != time.Second {
		t.Errorf("poll interval = %v", cfg.Relay.PollInterval.Duration)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"log_level": "debug",
		"bridge": {
			"addr": ":9090",
			"auth_token": "secret",
			"mcp": {"command": "mcp-server", "call_timeout": "45s"}
		},
		"relay": {
			"gateway_url": "http://gateway:8080/mcp",
			"poll_interval": 5
		}
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if cfg.Bridge.Addr != ":9090" || cfg.Bridge.AuthToken != "secret" {
		t.Errorf("bridge = %+v", cfg.Bridge)
	}
	if cfg.Bridge.MCP.Command != "mcp-server" {
		t.Errorf("command = %q", cfg.Bridge.MCP.Command)
	}
	if cfg.Bridge.MCP.CallTimeout.Duration != 45*time.Second {
		t.Errorf("call timeout = %v", cfg.Bridge.MCP.CallTimeout.Duration)
	}
	// Bare numbers are seconds.
	if cfg.Relay.PollInterval.Duration != 5*time.Second {
		t.Errorf("poll interval = %v", cfg.Relay.PollInterval.Duration)
	}
	if cfg.Relay.GatewayURL != "http://gateway:8080/mcp" {
		t.Errorf("gateway url = %q", cfg.Relay.GatewayURL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"LOG_LEVEL":            "warn",
		"PORT":                 "3000",
		"AUTH_TOKEN":           "tok",
		"MCP_CALL_TIMEOUT":     "10s",
		"RELAY_PORT":           "3001",
		"MCP_GATEWAY_URL":      "http://gw/mcp",
		"MCP_GATEWAY_TOKEN":    "gwtok",
		"REQUESTS_PREFIX":      "inbox/",
		"POLL_INTERVAL":        "250ms",
		"BUCKET_NAME":          "mailbox",
		"S3_ENDPOINT":          "s3.example.com",
		"S3_ACCESS_KEY_ID":     "AK",
		"S3_SECRET_ACCESS_KEY": "SK",
		"S3_USE_SSL":           "true",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := &Config{}
	cfg.ApplyEnv(lookup)
	cfg.applyDefaults()

	if cfg.LogLevel != "warn" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if cfg.Bridge.Addr != ":3000" {
		t.Errorf("bridge addr = %q", cfg.Bridge.Addr)
	}
	if cfg.Bridge.AuthToken != "tok" {
		t.Errorf("auth token = %q", cfg.Bridge.AuthToken)
	}
	if cfg.Bridge.MCP.CallTimeout.Duration != 10*time.Second {
		t.Errorf("call timeout = %v", cfg.Bridge.MCP.CallTimeout.Duration)
	}
	if cfg.Relay.Addr != ":3001" {
		t.Errorf("relay addr = %q", cfg.Relay.Addr)
	}
	if cfg.Relay.GatewayURL != "http://gw/mcp" || cfg.Relay.GatewayToken != "gwtok" {
		t.Errorf("gateway = %q / %q", cfg.Relay.GatewayURL, cfg.Relay.GatewayToken)
	}
	if cfg.Relay.Prefix != "inbox/" {
		t.Errorf("prefix = %q", cfg.Relay.Prefix)
	}
	if cfg.Relay.PollInterval.Duration != 250*time.Millisecond {
		t.Errorf("poll interval = %v", cfg.Relay.PollInterval.Duration)
	}
	if cfg.Relay.S3.Bucket != "mailbox" || cfg.Relay.S3.Endpoint != "s3.example.com" {
		t.Errorf("s3 = %+v", cfg.Relay.S3)
	}
	if cfg.Relay.S3.AccessKey != "AK" || cfg.Relay.S3.SecretKey != "SK" || !cfg.Relay.S3.UseSSL {
		t.Errorf("s3 credentials = %+v", cfg.Relay.S3)
	}
}

func TestApplyEnvIgnoresEmptyValues(t *testing.T) {
	cfg := &Config{}
	cfg.Bridge.AuthToken = "keep"
	cfg.ApplyEnv(func(key string) (string, bool) {
		if key == "AUTH_TOKEN" {
			return "", true
		}
		return "", false
	})
	if cfg.Bridge.AuthToken != "keep" {
		t.Fatalf("auth token = %q", cfg.Bridge.AuthToken)
	}
}

func TestDurationUnmarshal(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
		ok   bool
	}{
		{`"30s"`, 30 * time.Second, true},
		{`"1m30s"`, 90 * time.Second, true},
		{`2`, 2 * time.Second, true},
		{`0.5`, 500 * time.Millisecond, true},
		{`"bogus"`, 0, false},
		{`true`, 0, false},
	}
	for _, tc := range cases {
		var d Duration
		err := json.Unmarshal([]byte(tc.raw), &d)
		if tc.ok != (err == nil) {
			t.Errorf("%s: err = %v", tc.raw, err)
			continue
		}
		if tc.ok && d.Duration != tc.want {
			t.Errorf("%s: got %v, want %v", tc.raw, d.Duration, tc.want)
		}
	}
}

func TestValidateRelay(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.ValidateRelay(); err == nil {
		t.Fatal("defaults validated without gateway or storage settings")
	}

	cfg.Relay.GatewayURL = "http://gw/mcp"
	if err := cfg.ValidateRelay(); err == nil {
		t.Fatal("validated without bucket")
	}
	cfg.Relay.S3.Bucket = "mailbox"
	cfg.Relay.S3.Endpoint = "s3.example.com"
	if err := cfg.ValidateRelay(); err == nil {
		t.Fatal("validated without credentials")
	}
	cfg.Relay.S3.AccessKey = "AK"
	cfg.Relay.S3.SecretKey = "SK"
	if err := cfg.ValidateRelay(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
