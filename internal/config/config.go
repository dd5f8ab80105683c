// Package config loads the application configuration from a YAML file,
// with defaults and environment-variable overrides (prefix SMD_, dots
// replaced by underscores: SMD_DATABASE_HOST overrides database.host).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the collector.
type Config struct {
	SMD       SMDConfig       `mapstructure:"smd"`
	Collector CollectorConfig `mapstructure:"collector"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SMDConfig locates the utility API and the credential record.
type SMDConfig struct {
	AuthPath         string `mapstructure:"auth_path"`
	TokenURL         string `mapstructure:"token_url"`
	UtilityURL       string `mapstructure:"utility_url"`
	APIPath          string `mapstructure:"api_path"`
	ServiceStatusURL string `mapstructure:"service_status_url"`
	Timezone         string `mapstructure:"timezone"`
}

type CollectorConfig struct {
	ArchiveDir    string `mapstructure:"archive_dir"`
	SeenCacheSize int    `mapstructure:"seen_cache_size"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// ConnString renders the lib/pq connection string.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type ScheduleConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	DailySpec string `mapstructure:"daily_spec"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("SMD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("smd.auth_path", "auth/auth.json")
	v.SetDefault("smd.timezone", "America/Los_Angeles")

	v.SetDefault("collector.archive_dir", "data/espi_xml")
	v.SetDefault("collector.seen_cache_size", 256)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.daily_spec", "0 8 * * *")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
