package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/symptom-ledger-server/internal/database"
	"github.com/symptom-ledger-server/internal/domain"
)

var _ domain.ConfigManager = (*Manager)(nil)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	config     *domain.Config
	configFile string
	knownTypes map[string]bool
}

// Option customizes a Manager
type Option func(*Manager)

// WithConfigFile reads the given file instead of searching the default paths
func WithConfigFile(path string) Option {
	return func(m *Manager) {
		m.configFile = path
	}
}

// WithKnownAssessmentTypes restricts assessments.enabled_types to the given
// registered types during Validate.
func WithKnownAssessmentTypes(types ...string) Option {
	return func(m *Manager) {
		m.knownTypes = make(map[string]bool, len(types))
		for _, t := range types {
			m.knownTypes[t] = true
		}
	}
}

// NewManager creates a new configuration manager
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from the config file, environment and defaults
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/symptom-ledger/")
	}

	// SYMPTOM_LEDGER_DATABASE_HOST overrides database.host
	v.SetEnvPrefix("SYMPTOM_LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.Assessments.EnabledTypes = normalizeTypes(config.Assessments.EnabledTypes)

	m.v = v
	m.config = config
	return nil
}

// normalizeTypes splits comma separated entries, so that both a YAML list and
// SYMPTOM_LEDGER_ASSESSMENTS_ENABLED_TYPES="sleep,energy" are accepted.
func normalizeTypes(raw []string) []string {
	var out []string
	for _, entry := range raw {
		for _, t := range strings.Split(entry, ",") {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "symptom_ledger")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.migrations_path", "./migrations")

	// Cache defaults
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	v.SetDefault("cache.default_ttl", "15m")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")
	v.SetDefault("cache.key_prefix", "symptom-ledger:")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Assessment defaults; an empty list enables every registered type
	v.SetDefault("assessments.enabled_types", []string{})
	v.SetDefault("assessments.provider.base_url", "http://localhost:8081/api/v1")
	v.SetDefault("assessments.provider.api_key", "")
	v.SetDefault("assessments.provider.timeout", "10s")
	v.SetDefault("assessments.provider.rate_limit", 20)
	v.SetDefault("assessments.provider.max_types_in_flight", 4)

	// Ledger defaults
	v.SetDefault("ledger.max_conflict_retries", 3)
	v.SetDefault("ledger.store_timeout", "5s")

	v.SetDefault("environment", "development")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetAssessmentsConfig returns the assessment section
func (m *Manager) GetAssessmentsConfig() *domain.AssessmentsConfig {
	return &m.config.Assessments
}

// GetLedgerConfig returns the ledger section
func (m *Manager) GetLedgerConfig() *domain.LedgerConfig {
	return &m.config.Ledger
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if config.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if config.Database.Username == "" {
		return fmt.Errorf("database username is required")
	}

	if config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required")
	}

	if config.Assessments.Provider.BaseURL == "" {
		return fmt.Errorf("assessment provider base URL is required")
	}
	if config.Assessments.Provider.MaxTypesInFlight < 0 {
		return fmt.Errorf("invalid max_types_in_flight: %d", config.Assessments.Provider.MaxTypesInFlight)
	}
	if err := m.validateAssessmentTypes(); err != nil {
		return err
	}

	if config.Ledger.MaxConflictRetries < 0 {
		return fmt.Errorf("invalid max_conflict_retries: %d", config.Ledger.MaxConflictRetries)
	}
	if config.Ledger.StoreTimeout < 0 {
		return fmt.Errorf("invalid store_timeout: %s", config.Ledger.StoreTimeout)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}
	switch strings.ToLower(config.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}

	return nil
}

func (m *Manager) validateAssessmentTypes() error {
	seen := make(map[string]bool)
	for _, t := range m.config.Assessments.EnabledTypes {
		if seen[t] {
			return fmt.Errorf("assessment type %q is enabled twice", t)
		}
		seen[t] = true
		if m.knownTypes != nil && !m.knownTypes[t] {
			return fmt.Errorf("%w: %q is enabled but has no extractor", domain.ErrUnknownAssessmentType, t)
		}
	}
	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetDatabaseURL returns the postgres:// URL used by migrations and lib/pq
func (m *Manager) GetDatabaseURL() string {
	return database.FromDatabaseConfig(m.config.Database).URL()
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.v.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.v.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}
