package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Supabase  SupabaseConfig  `mapstructure:"supabase"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type DatabaseConfig struct {
	Path    string `mapstructure:"path"`
	DataDir string `mapstructure:"data_dir"`
}

type SupabaseConfig struct {
	URL     string `mapstructure:"url"`
	AnonKey string `mapstructure:"anon_key"`
	Bucket  string `mapstructure:"bucket"`
	Table   string `mapstructure:"table"`
	Timeout string `mapstructure:"timeout"`
}

func (s SupabaseConfig) GetTimeout() time.Duration {
	return parseDuration(s.Timeout, 30*time.Second)
}

type SchedulerConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	PeriodicInterval    string `mapstructure:"periodic_interval"`
	PostWriteDelay      string `mapstructure:"post_write_delay"`
	BackoffBase         string `mapstructure:"backoff_base"`
	BackoffBasePeriodic string `mapstructure:"backoff_base_periodic"`
	BackoffMax          string `mapstructure:"backoff_max"`
	ConnectivityRetry   string `mapstructure:"connectivity_retry"`
}

func (s SchedulerConfig) GetPeriodicInterval() time.Duration {
	return parseDuration(s.PeriodicInterval, 15*time.Minute)
}

func (s SchedulerConfig) GetPostWriteDelay() time.Duration {
	return parseDuration(s.PostWriteDelay, 2*time.Second)
}

func (s SchedulerConfig) GetBackoffBase() time.Duration {
	return parseDuration(s.BackoffBase, 10*time.Second)
}

func (s SchedulerConfig) GetBackoffBasePeriodic() time.Duration {
	return parseDuration(s.BackoffBasePeriodic, 30*time.Second)
}

func (s SchedulerConfig) GetBackoffMax() time.Duration {
	return parseDuration(s.BackoffMax, 5*time.Minute)
}

func (s SchedulerConfig) GetConnectivityRetry() time.Duration {
	return parseDuration(s.ConnectivityRetry, 30*time.Second)
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	Host         string   `mapstructure:"host"`
	AuthToken    string   `mapstructure:"auth_token"`
	ReadTimeout  string   `mapstructure:"read_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout"`
	CorsOrigins  []string `mapstructure:"cors_origins"`
}

func (s ServerConfig) GetReadTimeout() time.Duration {
	return parseDuration(s.ReadTimeout, 15*time.Second)
}

func (s ServerConfig) GetWriteTimeout() time.Duration {
	return parseDuration(s.WriteTimeout, 15*time.Second)
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// LoadConfig reads the YAML config file and applies environment overrides
// (SOILSYNC_SUPABASE_ANON_KEY overrides supabase.anon_key, etc).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("database.path", "data/soilsync.db")
	v.SetDefault("database.data_dir", "data")
	v.SetDefault("supabase.bucket", "soil-photos")
	v.SetDefault("supabase.table", "soil_samples")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetEnvPrefix("SOILSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine, defaults plus env are enough to run.
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
