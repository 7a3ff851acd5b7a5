// Package config loads the host configuration. Sources are layered, later ones
// winning: build-time defaults, a .env file, a YAML config file and finally
// TUTOR_* environment variables (TUTOR_BACKEND_URL for backend.url).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/babelforce/tutor-go/config.DefaultBaseURL=https://api.example.com"
var (
	DefaultBaseURL = "http://localhost:8002"
	DefaultAPIKey  = ""
)

const (
	EnvPrefix         = "TUTOR"
	DefaultConfigName = "tutor"
	DefaultEnvFile    = ".env"
)

type Backend struct {
	URL        string        `mapstructure:"url"`
	APIKey     string        `mapstructure:"api_key"`
	StartPath  string        `mapstructure:"start_path"`
	EndPath    string        `mapstructure:"end_path"`
	HealthPath string        `mapstructure:"health_path"`
	StatusPath string        `mapstructure:"status_path"`
	Timeout    time.Duration `mapstructure:"timeout"`

	// StatusInterval is how often a live session is checked for having
	// ended remotely.
	StatusInterval time.Duration `mapstructure:"status_interval"`
}

type Connectivity struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type HTTP struct {
	Addr string `mapstructure:"addr"`
}

type Journal struct {
	Size int `mapstructure:"size"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Backend      Backend      `mapstructure:"backend"`
	Connectivity Connectivity `mapstructure:"connectivity"`
	HTTP         HTTP         `mapstructure:"http"`
	Journal      Journal      `mapstructure:"journal"`
	Log          Log          `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.url", DefaultBaseURL)
	v.SetDefault("backend.api_key", DefaultAPIKey)
	v.SetDefault("backend.start_path", "/api/chat/start")
	v.SetDefault("backend.end_path", "/chat/end/{conversation_id}")
	v.SetDefault("backend.health_path", "/")
	v.SetDefault("backend.status_path", "/api/chat/status/{conversation_id}")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("backend.status_interval", 15*time.Second)
	v.SetDefault("connectivity.interval", 30*time.Second)
	v.SetDefault("connectivity.timeout", 10*time.Second)
	v.SetDefault("http.addr", "127.0.0.1:8080")
	v.SetDefault("journal.size", 64*1024)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Sources names optional files to read. Empty fields fall back to ./.env and
// ./tutor.yaml, which may be missing; explicitly named files must exist.
type Sources struct {
	ConfigFile string
	EnvFile    string
}

func Load(src Sources) (*Config, error) {
	if err := loadEnvFile(src.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if src.ConfigFile != "" {
		v.SetConfigFile(src.ConfigFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(DefaultConfigName)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if src.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		slog.Debug("using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadEnvFile exports the file's variables without overriding ones already set.
func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}

	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load env file %s: %w", path, err)
}

func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Backend.URL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("backend.url: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("backend.url: unsupported scheme %q", u.Scheme))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("backend.url: missing host"))
	}

	if c.Backend.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("backend.timeout must be positive"))
	}
	if c.Backend.StatusInterval <= 0 {
		errs = append(errs, fmt.Errorf("backend.status_interval must be positive"))
	}
	if c.Connectivity.Interval <= 0 {
		errs = append(errs, fmt.Errorf("connectivity.interval must be positive"))
	}
	if c.Connectivity.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("connectivity.timeout must be positive"))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, fmt.Errorf("http.addr is required"))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, err
	}
	return lvl, nil
}
