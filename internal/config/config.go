package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "DONG"
	defaultHTTPAddress         = "0.0.0.0:8080"
	defaultDatabaseDriver      = DriverSQLite
	defaultDatabasePath        = "dong.db"
	defaultLogLevel            = "info"
	defaultSessionIssuer       = "dong-auth"
	defaultSessionCookieName   = "app_session"
	defaultAnonymousCookieName = "anon_session"
	defaultIngestBatchSize     = 500
	defaultMergeBatchSize      = 500
	defaultRebuildLeaseTTL     = 30 * time.Minute
	defaultServiceName         = "dong"
)

const (
	// DriverSQLite selects the embedded pure-Go SQLite driver.
	DriverSQLite = "sqlite"
	// DriverPostgres selects the PostgreSQL driver.
	DriverPostgres = "postgres"
)

// AppConfig captures runtime configuration shared by the API server and the batch commands.
type AppConfig struct {
	HTTPAddress         string
	AllowedOrigins      []string
	DatabaseDriver      string
	DatabasePath        string
	DatabaseDSN         string
	LogLevel            string
	SessionSigningKey   string
	SessionIssuer       string
	SessionCookieName   string
	AnonymousCookieName string
	IngestBatchSize     int
	MergeBatchSize      int
	RedisURL            string
	RebuildLeaseTTL     time.Duration
	OTLPEndpoint        string
	ServiceName         string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("session.cookie_name", defaultSessionCookieName)
	configViper.SetDefault("session.anonymous_cookie_name", defaultAnonymousCookieName)
	configViper.SetDefault("ingest.batch_size", defaultIngestBatchSize)
	configViper.SetDefault("merge.batch_size", defaultMergeBatchSize)
	configViper.SetDefault("redis.url", "")
	configViper.SetDefault("rebuild.lease_ttl", defaultRebuildLeaseTTL)
	configViper.SetDefault("telemetry.otlp_endpoint", "")
	configViper.SetDefault("telemetry.service_name", defaultServiceName)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		AllowedOrigins:      cleanOrigins(configViper.GetStringSlice("http.allowed_origins")),
		DatabaseDriver:      strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:        configViper.GetString("database.path"),
		DatabaseDSN:         configViper.GetString("database.dsn"),
		LogLevel:            configViper.GetString("log.level"),
		SessionSigningKey:   configViper.GetString("session.signing_secret"),
		SessionIssuer:       configViper.GetString("session.issuer"),
		SessionCookieName:   configViper.GetString("session.cookie_name"),
		AnonymousCookieName: configViper.GetString("session.anonymous_cookie_name"),
		IngestBatchSize:     configViper.GetInt("ingest.batch_size"),
		MergeBatchSize:      configViper.GetInt("merge.batch_size"),
		RedisURL:            configViper.GetString("redis.url"),
		RebuildLeaseTTL:     configViper.GetDuration("rebuild.lease_ttl"),
		OTLPEndpoint:        configViper.GetString("telemetry.otlp_endpoint"),
		ServiceName:         configViper.GetString("telemetry.service_name"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// ValidateServer checks the settings only the HTTP server needs.
func (c AppConfig) ValidateServer() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if strings.TrimSpace(c.SessionSigningKey) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if strings.TrimSpace(c.AnonymousCookieName) == "" {
		return fmt.Errorf("session.anonymous_cookie_name is required")
	}
	for _, origin := range c.AllowedOrigins {
		if !strings.HasPrefix(origin, "https://") && !strings.HasPrefix(origin, "http://") {
			return fmt.Errorf("http.allowed_origins entry %q must be an http or https origin", origin)
		}
	}
	return nil
}

// cleanOrigins accepts both a list and a single comma-separated value, as set through env.
func cleanOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			origin = strings.TrimRight(strings.TrimSpace(origin), "/")
			if origin != "" {
				origins = append(origins, origin)
			}
		}
	}
	return origins
}

func (c AppConfig) validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	if c.IngestBatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive")
	}
	if c.MergeBatchSize <= 0 {
		return fmt.Errorf("merge.batch_size must be positive")
	}
	if c.RedisURL != "" && c.RebuildLeaseTTL <= 0 {
		return fmt.Errorf("rebuild.lease_ttl must be positive when redis.url is set")
	}
	return nil
}
