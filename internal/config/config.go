package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/device"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Identity IdentityConfig
	Gateway  GatewayConfig
	Sync     SyncConfig
	Devices  []device.Config `validate:"dive"`
}

type AppConfig struct {
	Port     int
	Env      string
	LogLevel string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string `validate:"required"`
	Name     string
	SSLMode  string
}

// IdentityConfig drives the employee identity resolver.
type IdentityConfig struct {
	Strategy        string `validate:"required"`
	EmailDomain     string
	CacheEnabled    bool
	CacheTTLMinutes float64 `validate:"min=0"`
}

// GatewayConfig drives per-device resilience.
type GatewayConfig struct {
	OperationTimeout  time.Duration `validate:"min=1s"`
	MaxRetries        int           `validate:"min=0,max=10"`
	RetryInitialWait  time.Duration
	RetryMaxWait      time.Duration
	BreakerThreshold  uint32 `validate:"min=1"`
	BreakerCooldown   time.Duration
	ValidationEnabled bool
}

// SyncConfig drives the orchestrator and the scheduled trigger.
type SyncConfig struct {
	ParallelMachines bool
	ScheduleInterval time.Duration
	LookbackHours    int    `validate:"min=1"`
	DuplicatePolicy  string `validate:"oneof=SKIP_DUPLICATES ERROR_ON_DUPLICATE UPDATE_EXISTING"`
	DedupEnabled     bool
	ConflictsEnabled bool
	MaxRetries       int `validate:"min=0,max=10"`
	ScheduleEnabled  bool
}

func Load() (*Config, error) {
	// A missing .env file is fine in containerized deployments; real env
	// vars take precedence either way.
	_ = godotenv.Load()

	config := &Config{}

	appPort, err := strconv.Atoi(getEnv("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}
	config.App = AppConfig{
		Port:     appPort,
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	config.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     dbPort,
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "attendance-sync"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
	}

	cacheTTL, err := strconv.ParseFloat(getEnv("IDENTITY_CACHE_TTL_MINUTES", "30"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid IDENTITY_CACHE_TTL_MINUTES: %w", err)
	}
	config.Identity = IdentityConfig{
		Strategy:        getEnv("IDENTITY_STRATEGY", "email_prefix"),
		EmailDomain:     getEnv("IDENTITY_EMAIL_DOMAIN", ""),
		CacheEnabled:    getEnvBool("IDENTITY_CACHE_ENABLED", true),
		CacheTTLMinutes: cacheTTL,
	}

	config.Gateway = GatewayConfig{
		OperationTimeout:  getEnvDuration("GATEWAY_OPERATION_TIMEOUT", 10*time.Second),
		MaxRetries:        getEnvInt("GATEWAY_MAX_RETRIES", 3),
		RetryInitialWait:  getEnvDuration("GATEWAY_RETRY_INITIAL_WAIT", 500*time.Millisecond),
		RetryMaxWait:      getEnvDuration("GATEWAY_RETRY_MAX_WAIT", 5*time.Second),
		BreakerThreshold:  uint32(getEnvInt("GATEWAY_BREAKER_THRESHOLD", 5)),
		BreakerCooldown:   getEnvDuration("GATEWAY_BREAKER_COOLDOWN", 60*time.Second),
		ValidationEnabled: getEnvBool("GATEWAY_VALIDATION_ENABLED", true),
	}

	config.Sync = SyncConfig{
		ParallelMachines: getEnvBool("SYNC_PARALLEL_MACHINES", false),
		ScheduleInterval: getEnvDuration("SYNC_SCHEDULE_INTERVAL", 15*time.Minute),
		LookbackHours:    getEnvInt("SYNC_LOOKBACK_HOURS", 24),
		DuplicatePolicy:  getEnv("SYNC_DUPLICATE_POLICY", "SKIP_DUPLICATES"),
		DedupEnabled:     getEnvBool("SYNC_DEDUP_ENABLED", true),
		ConflictsEnabled: getEnvBool("SYNC_CONFLICTS_ENABLED", true),
		MaxRetries:       getEnvInt("SYNC_MAX_RETRIES", 3),
		ScheduleEnabled:  getEnvBool("SYNC_SCHEDULE_ENABLED", true),
	}

	devices, err := loadDevices()
	if err != nil {
		return nil, err
	}
	config.Devices = devices

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// loadDevices reads the device list from DEVICES_FILE (a JSON file) or the
// inline DEVICES env var. An empty list is valid; jobs then fail with "no
// enabled devices" rather than at startup.
func loadDevices() ([]device.Config, error) {
	raw := []byte(os.Getenv("DEVICES"))
	if path := os.Getenv("DEVICES_FILE"); path != "" {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read DEVICES_FILE: %w", err)
		}
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var devices []device.Config
	if err := json.Unmarshal(raw, &devices); err != nil {
		return nil, fmt.Errorf("parse device list: %w", err)
	}
	return devices, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Identity.Strategy == "email_prefix" && c.Identity.EmailDomain == "" {
		return fmt.Errorf("IDENTITY_EMAIL_DOMAIN is required for the email_prefix strategy")
	}
	seen := make(map[string]bool, len(c.Devices))
	for _, d := range c.Devices {
		if seen[d.ID] {
			return fmt.Errorf("duplicate device id %q in device list", d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
