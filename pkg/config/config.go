package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Classification
	Tier1MinVisitors int
	Tier2MinVisitors int

	// Deployment
	DryRun         bool
	SearchDir      string
	ConfigDir      string
	RestartTimeout time.Duration

	// Inventory
	DataDir        string
	ServerDefaults ServerDefaults

	// Traffic
	PrometheusURL  string
	VisitorsQuery  string
	PageViewsQuery string
	TrafficTimeout time.Duration

	// Storage
	StorageEnabled bool
	DatabaseURL    string

	// Output
	MetricsTextfile string
	ReportsDir      string
	ListenAddr      string
	LogLevel        string
	LogFormat       string
}

// ServerDefaults is applied to servers first seen through a site import
type ServerDefaults struct {
	CPUCores       int
	RAMGB          int
	DiskGB         int
	RecommendedMax int
	SSHUser        string
	SSHPort        int
}

// LoadDotEnv reads a .env file into the process environment if it exists.
// Variables already set in the environment win.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	return &Config{
		Tier1MinVisitors: getEnvInt("TIER1_MIN_VISITORS", 10000),
		Tier2MinVisitors: getEnvInt("TIER2_MIN_VISITORS", 1000),

		DryRun:         getEnvBool("DRY_RUN", true),
		SearchDir:      getEnv("SEARCH_DIR", "/var/opt/sites"),
		ConfigDir:      getEnv("CONFIG_DIR", "./config"),
		RestartTimeout: getEnvDuration("RESTART_TIMEOUT", 2*time.Minute),

		DataDir: getEnv("DATA_DIR", "./data"),
		ServerDefaults: ServerDefaults{
			CPUCores:       getEnvInt("DEFAULT_SERVER_CPU_CORES", 8),
			RAMGB:          getEnvInt("DEFAULT_SERVER_RAM_GB", 16),
			DiskGB:         getEnvInt("DEFAULT_SERVER_DISK_GB", 500),
			RecommendedMax: getEnvInt("DEFAULT_SERVER_RECOMMENDED_MAX", 16),
			SSHUser:        getEnv("SSH_USER", "deploy"),
			SSHPort:        getEnvInt("SSH_PORT", 22),
		},

		PrometheusURL:  getEnv("PROMETHEUS_URL", ""),
		VisitorsQuery:  getEnv("TRAFFIC_VISITORS_QUERY", ""),
		PageViewsQuery: getEnv("TRAFFIC_PAGEVIEWS_QUERY", ""),
		TrafficTimeout: getEnvDuration("TRAFFIC_TIMEOUT", 30*time.Second),

		StorageEnabled: getEnvBool("STORAGE_ENABLED", false),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		MetricsTextfile: getEnv("METRICS_TEXTFILE", ""),
		ReportsDir:      getEnv("REPORTS_DIR", "./reports"),
		ListenAddr:      getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
	}
}

// InventoryPath is the backing document inside DataDir.
func (c *Config) InventoryPath() string {
	return filepath.Join(c.DataDir, "inventory.json")
}

// HistoryDir holds deployment history when Postgres storage is disabled.
func (c *Config) HistoryDir() string {
	return filepath.Join(c.DataDir, "deployments")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Tier2MinVisitors < 0 {
		return fmt.Errorf("tier 2 threshold must be >= 0")
	}
	if c.Tier1MinVisitors <= c.Tier2MinVisitors {
		return fmt.Errorf("tier 1 threshold (%d) must be greater than tier 2 threshold (%d)",
			c.Tier1MinVisitors, c.Tier2MinVisitors)
	}
	if c.StorageEnabled && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set when storage is enabled")
	}
	if c.TrafficTimeout <= 0 {
		return fmt.Errorf("traffic timeout must be positive")
	}
	if c.RestartTimeout <= 0 {
		return fmt.Errorf("restart timeout must be positive")
	}
	d := c.ServerDefaults
	if d.CPUCores <= 0 || d.RAMGB <= 0 || d.DiskGB <= 0 || d.RecommendedMax <= 0 {
		return fmt.Errorf("default server specs must be positive")
	}
	if d.SSHPort < 1 || d.SSHPort > 65535 {
		return fmt.Errorf("ssh port must be between 1 and 65535")
	}
	return nil
}
