package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	// Clear any existing env vars
	os.Unsetenv("TIER1_MIN_VISITORS")
	os.Unsetenv("TIER2_MIN_VISITORS")
	os.Unsetenv("DRY_RUN")
	os.Unsetenv("SEARCH_DIR")

	cfg := NewConfig()

	if cfg.Tier1MinVisitors != 10000 {
		t.Errorf("Expected default tier 1 threshold 10000, got %d", cfg.Tier1MinVisitors)
	}

	if cfg.Tier2MinVisitors != 1000 {
		t.Errorf("Expected default tier 2 threshold 1000, got %d", cfg.Tier2MinVisitors)
	}

	if !cfg.DryRun {
		t.Error("Expected dry run to default to true")
	}

	if cfg.SearchDir != "/var/opt/sites" {
		t.Errorf("Expected default search dir, got %s", cfg.SearchDir)
	}

	if cfg.ServerDefaults.RAMGB != 16 || cfg.ServerDefaults.RecommendedMax != 16 {
		t.Errorf("Unexpected server defaults %+v", cfg.ServerDefaults)
	}

	if cfg.InventoryPath() != filepath.Join("./data", "inventory.json") {
		t.Errorf("Unexpected inventory path %s", cfg.InventoryPath())
	}

	if cfg.HistoryDir() != filepath.Join("./data", "deployments") {
		t.Errorf("Unexpected history dir %s", cfg.HistoryDir())
	}
}

func TestTrafficConfig(t *testing.T) {
	os.Setenv("PROMETHEUS_URL", "http://prometheus:9090")
	os.Setenv("TRAFFIC_TIMEOUT", "5s")
	defer os.Unsetenv("PROMETHEUS_URL")
	defer os.Unsetenv("TRAFFIC_TIMEOUT")

	cfg := NewConfig()

	if cfg.PrometheusURL != "http://prometheus:9090" {
		t.Errorf("Expected Prometheus URL from env, got %q", cfg.PrometheusURL)
	}
	if cfg.TrafficTimeout != 5*time.Second {
		t.Errorf("Expected traffic timeout 5s, got %v", cfg.TrafficTimeout)
	}
	if cfg.VisitorsQuery != "" {
		t.Errorf("Expected empty visitors query to select the built-in default, got %q", cfg.VisitorsQuery)
	}
}

func TestConfigFromEnvironment(t *testing.T) {
	os.Setenv("TIER1_MIN_VISITORS", "20000")
	os.Setenv("DRY_RUN", "false")
	os.Setenv("RESTART_TIMEOUT", "30s")
	defer os.Unsetenv("TIER1_MIN_VISITORS")
	defer os.Unsetenv("DRY_RUN")
	defer os.Unsetenv("RESTART_TIMEOUT")

	cfg := NewConfig()

	if cfg.Tier1MinVisitors != 20000 {
		t.Errorf("Expected tier 1 threshold 20000 from env, got %d", cfg.Tier1MinVisitors)
	}

	if cfg.DryRun {
		t.Error("Expected dry run disabled from env")
	}

	if cfg.RestartTimeout != 30*time.Second {
		t.Errorf("Expected restart timeout 30s, got %v", cfg.RestartTimeout)
	}
}

func TestInvalidEnvValues(t *testing.T) {
	os.Setenv("TIER2_MIN_VISITORS", "invalid")
	os.Setenv("RESTART_TIMEOUT", "soon")
	defer os.Unsetenv("TIER2_MIN_VISITORS")
	defer os.Unsetenv("RESTART_TIMEOUT")

	cfg := NewConfig()

	// Should fall back to default
	if cfg.Tier2MinVisitors != 1000 {
		t.Errorf("Expected fallback to default 1000, got %d", cfg.Tier2MinVisitors)
	}
	if cfg.RestartTimeout != 2*time.Minute {
		t.Errorf("Expected fallback to 2m, got %v", cfg.RestartTimeout)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name          string
		setupConfig   func(*Config)
		expectError   bool
		errorContains string
	}{
		{
			name:        "valid default config",
			setupConfig: func(c *Config) {},
			expectError: false,
		},
		{
			name: "thresholds not ordered",
			setupConfig: func(c *Config) {
				c.Tier1MinVisitors = 500
			},
			expectError:   true,
			errorContains: "must be greater than",
		},
		{
			name: "negative tier 2 threshold",
			setupConfig: func(c *Config) {
				c.Tier2MinVisitors = -1
			},
			expectError:   true,
			errorContains: ">= 0",
		},
		{
			name: "valid edge case - tier 2 zero",
			setupConfig: func(c *Config) {
				c.Tier2MinVisitors = 0
			},
			expectError: false,
		},
		{
			name: "storage without database",
			setupConfig: func(c *Config) {
				c.StorageEnabled = true
				c.DatabaseURL = ""
			},
			expectError:   true,
			errorContains: "DATABASE_URL",
		},
		{
			name: "zero restart timeout",
			setupConfig: func(c *Config) {
				c.RestartTimeout = 0
			},
			expectError:   true,
			errorContains: "restart timeout",
		},
		{
			name: "zero traffic timeout",
			setupConfig: func(c *Config) {
				c.TrafficTimeout = 0
			},
			expectError:   true,
			errorContains: "traffic timeout",
		},
		{
			name: "bad ssh port",
			setupConfig: func(c *Config) {
				c.ServerDefaults.SSHPort = 0
			},
			expectError:   true,
			errorContains: "ssh port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.setupConfig(cfg)

			err := cfg.Validate()

			if tt.expectError && err == nil {
				t.Errorf("Expected error but got none")
			}

			if !tt.expectError && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}

			if tt.expectError && err != nil && tt.errorContains != "" {
				if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Expected error containing '%s', got '%s'",
						tt.errorContains, err.Error())
				}
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("SEARCH_DIR=/srv/sites\nTIER2_MIN_VISITORS=750\n"), 0644); err != nil {
		t.Fatal(err)
	}
	os.Setenv("TIER2_MIN_VISITORS", "900")
	defer os.Unsetenv("SEARCH_DIR")
	defer os.Unsetenv("TIER2_MIN_VISITORS")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error: %v", err)
	}

	cfg := NewConfig()
	if cfg.SearchDir != "/srv/sites" {
		t.Errorf("Expected search dir from .env, got %s", cfg.SearchDir)
	}
	if cfg.Tier2MinVisitors != 900 {
		t.Errorf("Expected existing env to win over .env, got %d", cfg.Tier2MinVisitors)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("Missing .env should be ignored, got %v", err)
	}
}
