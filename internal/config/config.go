// Package config loads process configuration: built-in defaults, then an
// optional uniremote.yaml, then UNIREMOTE_* environment variables. A .env
// file in the working directory is loaded into the environment first.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "UNIREMOTE"
	configName = "uniremote"
)

// dotenvFiles are loaded when present. Existing variables win.
var dotenvFiles = []string{".env"}

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Roku      RokuConfig      `mapstructure:"roku"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	FireTV    FireTVConfig    `mapstructure:"firetv"`
	HTTP      HTTPConfig      `mapstructure:"http"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type RokuConfig struct {
	// Address seeds the settings store when it has no Roku yet.
	Address        string        `mapstructure:"address"`
	UserAgent      string        `mapstructure:"user_agent"`
	KeyTimeout     time.Duration `mapstructure:"key_timeout"`
	PowerOnTimeout time.Duration `mapstructure:"power_on_timeout"`
	PowerOnBackoff time.Duration `mapstructure:"power_on_backoff"`
}

type DiscoveryConfig struct {
	Budget        time.Duration `mapstructure:"budget"`
	PacketTimeout time.Duration `mapstructure:"packet_timeout"`
	InfoTimeout   time.Duration `mapstructure:"info_timeout"`
	Watch         bool          `mapstructure:"watch"`
}

type FireTVConfig struct {
	SDKPlugin        string        `mapstructure:"sdk_plugin"`
	RouteDiscovery   bool          `mapstructure:"route_discovery"`
	InstallDiscovery bool          `mapstructure:"install_discovery"`
	DiscoveryWindow  time.Duration `mapstructure:"discovery_window"`
}

type HTTPConfig struct {
	// Listen enables the HTTP API when non-empty, e.g. "127.0.0.1:8787".
	Listen string `mapstructure:"listen"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.path", defaultStorePath())
	v.SetDefault("roku.address", "")
	v.SetDefault("roku.user_agent", "")
	v.SetDefault("roku.key_timeout", 2*time.Second)
	v.SetDefault("roku.power_on_timeout", 5*time.Second)
	v.SetDefault("roku.power_on_backoff", 400*time.Millisecond)
	v.SetDefault("discovery.budget", 3000*time.Millisecond)
	v.SetDefault("discovery.packet_timeout", 750*time.Millisecond)
	v.SetDefault("discovery.info_timeout", time.Second)
	v.SetDefault("discovery.watch", false)
	v.SetDefault("firetv.sdk_plugin", "")
	v.SetDefault("firetv.route_discovery", true)
	v.SetDefault("firetv.install_discovery", true)
	v.SetDefault("firetv.discovery_window", 2*time.Second)
	v.SetDefault("http.listen", "")
}

// Load reads configuration. An explicit path must exist; otherwise a
// missing config file is not an error.
func Load(path string) (*Config, error) {
	for _, f := range dotenvFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("load %s: %w", f, err)
			}
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		if dir := defaultConfigDir(); dir != "" {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}

// ParseLogLevel maps a level name to slog. ok is false for unknown names,
// which fall back to info.
func ParseLogLevel(raw string) (level slog.Level, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return slog.LevelInfo, true
	case "debug":
		return slog.LevelDebug, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, configName)
}

func defaultStorePath() string {
	if dir := defaultConfigDir(); dir != "" {
		return filepath.Join(dir, "settings.db")
	}
	return "uniremote-settings.db"
}
