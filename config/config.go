package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

var configFile string

type Config struct {
	// Database
	DBDriver string `mapstructure:"database.driver"`
	DBSource string `mapstructure:"database.source"`
	DBLogSQL bool   `mapstructure:"database.log_sql"`

	// Device identity
	DeviceID     string `mapstructure:"device.id"`
	DeviceIDFile string `mapstructure:"device.id_file"`

	// HTTP Server
	HTTPServerAddress string        `mapstructure:"server.address"`
	HTTPServerTimeout time.Duration `mapstructure:"server.timeout"`
	CorsEnabled       bool          `mapstructure:"server.cors_enabled"`

	// Usage
	FreeTierLimit int `mapstructure:"usage.free_tier_limit"`

	// Text generation
	AssistantBaseURL string        `mapstructure:"assistant.base_url"`
	AssistantAPIKey  string        `mapstructure:"assistant.api_key"`
	AssistantModel   string        `mapstructure:"assistant.model"`
	AssistantTimeout time.Duration `mapstructure:"assistant.timeout"`

	// Purchase validation
	EntitlementURL     string        `mapstructure:"entitlement.url"`
	EntitlementTimeout time.Duration `mapstructure:"entitlement.timeout"`

	// Elasticsearch
	ElasticSearchURL      string `mapstructure:"elasticsearch.url"`
	ElasticSearchUsername string `mapstructure:"elasticsearch.username"`
	ElasticSearchPassword string `mapstructure:"elasticsearch.password"`
	ElasticSearchPrefix   string `mapstructure:"elasticsearch.prefix"`

	// New Relic
	NewRelicAppName    string `mapstructure:"newrelic.app_name"`
	NewRelicLicenseKey string `mapstructure:"newrelic.license_key"`

	// Background jobs, zero disables a job
	VerifyInterval  time.Duration `mapstructure:"maintenance.verify_interval"`
	ReindexInterval time.Duration `mapstructure:"maintenance.reindex_interval"`

	// Logging
	LogLevel  string `mapstructure:"logging.level"`
	LogFormat string `mapstructure:"logging.format"`
}

func SetConfigFile(file string) {
	configFile = file
}

func LoadConfig() (Config, error) {
	var config Config

	// a private instance so tests can load repeatedly
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("KEEPTEND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// running without a config file is fine, defaults and env apply
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("error loading configuration: %w", err)
		}
	}

	config = Config{
		DBDriver:              v.GetString("database.driver"),
		DBSource:              v.GetString("database.source"),
		DBLogSQL:              v.GetBool("database.log_sql"),
		DeviceID:              v.GetString("device.id"),
		DeviceIDFile:          v.GetString("device.id_file"),
		HTTPServerAddress:     v.GetString("server.address"),
		HTTPServerTimeout:     v.GetDuration("server.timeout"),
		CorsEnabled:           v.GetBool("server.cors_enabled"),
		FreeTierLimit:         v.GetInt("usage.free_tier_limit"),
		AssistantBaseURL:      v.GetString("assistant.base_url"),
		AssistantAPIKey:       v.GetString("assistant.api_key"),
		AssistantModel:        v.GetString("assistant.model"),
		AssistantTimeout:      v.GetDuration("assistant.timeout"),
		EntitlementURL:        v.GetString("entitlement.url"),
		EntitlementTimeout:    v.GetDuration("entitlement.timeout"),
		ElasticSearchURL:      v.GetString("elasticsearch.url"),
		ElasticSearchUsername: v.GetString("elasticsearch.username"),
		ElasticSearchPassword: v.GetString("elasticsearch.password"),
		ElasticSearchPrefix:   v.GetString("elasticsearch.prefix"),
		NewRelicAppName:       v.GetString("newrelic.app_name"),
		NewRelicLicenseKey:    v.GetString("newrelic.license_key"),
		VerifyInterval:        v.GetDuration("maintenance.verify_interval"),
		ReindexInterval:       v.GetDuration("maintenance.reindex_interval"),
		LogLevel:              v.GetString("logging.level"),
		LogFormat:             v.GetString("logging.format"),
	}

	if config.FreeTierLimit < 0 {
		return config, fmt.Errorf("usage.free_tier_limit must not be negative")
	}
	if config.VerifyInterval < 0 || config.ReindexInterval < 0 {
		return config, fmt.Errorf("maintenance intervals must not be negative")
	}

	return config, nil
}

// ResolveDeviceID returns the configured device id, else the one stored in
// the id file, else a new id which is written to the id file
func ResolveDeviceID(cfg Config) (string, error) {
	if id := strings.TrimSpace(cfg.DeviceID); id != "" {
		return id, nil
	}
	if cfg.DeviceIDFile == "" {
		return "", fmt.Errorf("no device id configured and no id file set")
	}

	data, err := os.ReadFile(cfg.DeviceIDFile)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}

	id := "device-" + uuid.New().String()
	if err := os.WriteFile(cfg.DeviceIDFile, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}
	return id, nil
}

// FormatIndex adds the configured prefix to an index name
func FormatIndex(config Config, index string) string {
	return config.ElasticSearchPrefix + "-" + index
}

// Set default configuration values
func setDefaults(v *viper.Viper) {
	// Database
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.source", "keeptend.db")
	v.SetDefault("database.log_sql", false)

	// Device
	v.SetDefault("device.id", "")
	v.SetDefault("device.id_file", ".device_id")

	// HTTP Server
	v.SetDefault("server.address", "127.0.0.1:8080")
	v.SetDefault("server.timeout", "30s")
	v.SetDefault("server.cors_enabled", false)

	// Usage
	v.SetDefault("usage.free_tier_limit", 3)

	// Text generation
	v.SetDefault("assistant.base_url", "")
	v.SetDefault("assistant.api_key", "")
	v.SetDefault("assistant.model", "gpt-4o-mini")
	v.SetDefault("assistant.timeout", "60s")

	// Purchase validation
	v.SetDefault("entitlement.url", "")
	v.SetDefault("entitlement.timeout", "15s")

	// Elasticsearch
	v.SetDefault("elasticsearch.url", "")
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.prefix", "keeptend")

	// New Relic
	v.SetDefault("newrelic.app_name", "keeptend")
	v.SetDefault("newrelic.license_key", "")

	// Background jobs
	v.SetDefault("maintenance.verify_interval", "1h")
	v.SetDefault("maintenance.reindex_interval", "15m")

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}
