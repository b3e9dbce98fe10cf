// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/ColonelBlimp/stringtuner/internal/catalog"
)

const (
	AppName       = "stringtuner"
	ConfigType    = "yaml"
	DefaultConfig = `# String Tuner Configuration

# Audio input
device_id: ""           # Capture device id from 'stringtuner devices' (empty = system default)
sample_rate: 44100      # Capture sample rate in Hz

# Detection
cadence: 400ms          # Length of each capture-analyze cycle
                        # Lower = faster updates but coarser frequency resolution (sample_rate / samples)
                        # Higher = slower updates but finer resolution
green_threshold: 2      # Hz - in tune when the reading is within this much of the target
red_threshold: 50       # Hz - far off when the reading is further than this from the target

# Tuning catalog
catalog_source: local   # local, server or file
catalog_url: "` + catalog.DefaultURL + `"
catalog_file: ""        # .csv, .yaml or .json file used when catalog_source is file
catalog_timeout: 5s     # Timeout for fetching the catalog from the server
tuning: "Standard"      # Tuning selected at startup
note: ""                # String selected at startup (index or note name, empty = none)

# Services
serve_addr: ":5000"     # Listen address for 'stringtuner serve'
metrics_addr: ""        # Prometheus /metrics listen address while tuning (empty = disabled)
trace_file: ""          # Write detection cycle spans as JSON to this file ("-" = stderr, empty = disabled)

# Output
log_level: info         # debug, info, warn or error
debug: false            # Enable debug output (same as log_level: debug)
`
)

// Catalog sources accepted by catalog_source.
const (
	SourceLocal  = "local"
	SourceServer = "server"
	SourceFile   = "file"
)

// Settings holds all application configuration
type Settings struct {
	// Audio input
	DeviceID   string `mapstructure:"device_id"`
	SampleRate int    `mapstructure:"sample_rate"`

	// Detection
	Cadence        time.Duration `mapstructure:"cadence"`
	GreenThreshold float64       `mapstructure:"green_threshold"`
	RedThreshold   float64       `mapstructure:"red_threshold"`

	// Tuning catalog
	CatalogSource  string        `mapstructure:"catalog_source"`
	CatalogURL     string        `mapstructure:"catalog_url"`
	CatalogFile    string        `mapstructure:"catalog_file"`
	CatalogTimeout time.Duration `mapstructure:"catalog_timeout"`
	Tuning         string        `mapstructure:"tuning"`
	Note           string        `mapstructure:"note"`

	// Services
	ServeAddr   string `mapstructure:"serve_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	TraceFile   string `mapstructure:"trace_file"`

	// Output
	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/stringtuner/
func Init() error {
	setDefaults()

	// Support both config.yaml and .config.yaml
	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("read config: %w", err)
		}
		// No config found - create default in ~/.config/stringtuner/
		if err = ensureConfigExists(filepath.Join(configDir, AppName)); err != nil {
			return err
		}
		if err = viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("device_id", "")
	viper.SetDefault("sample_rate", 44100)
	viper.SetDefault("cadence", 400*time.Millisecond)
	viper.SetDefault("green_threshold", 2.0)
	viper.SetDefault("red_threshold", 50.0)
	viper.SetDefault("catalog_source", SourceLocal)
	viper.SetDefault("catalog_url", catalog.DefaultURL)
	viper.SetDefault("catalog_file", "")
	viper.SetDefault("catalog_timeout", 5*time.Second)
	viper.SetDefault("tuning", "Standard")
	viper.SetDefault("note", "")
	viper.SetDefault("serve_addr", ":5000")
	viper.SetDefault("metrics_addr", "")
	viper.SetDefault("trace_file", "")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("debug", false)
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// Watch calls fn with freshly validated settings whenever the config file
// is written. fn runs on the watcher goroutine.
func Watch(fn func(*Settings, error)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		fn(Get())
	})
	viper.WatchConfig()
}

// Validate checks that all settings are within acceptable ranges
func (s *Settings) Validate() error {
	var errs []error

	// Audio input
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", s.SampleRate))
	}

	// Detection
	if s.Cadence < 50*time.Millisecond || s.Cadence > 5*time.Second {
		errs = append(errs, fmt.Errorf("cadence must be between 50ms and 5s, got %v", s.Cadence))
	}
	if s.GreenThreshold < 0 {
		errs = append(errs, fmt.Errorf("green_threshold must be non-negative, got %v", s.GreenThreshold))
	}
	if s.GreenThreshold >= s.RedThreshold {
		errs = append(errs, fmt.Errorf("green_threshold (%v Hz) must be less than red_threshold (%v Hz)", s.GreenThreshold, s.RedThreshold))
	}

	// Tuning catalog
	switch s.CatalogSource {
	case SourceLocal:
	case SourceServer:
		if u, err := url.Parse(s.CatalogURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("catalog_url must be an http(s) URL, got %q", s.CatalogURL))
		}
	case SourceFile:
		if s.CatalogFile == "" {
			errs = append(errs, errors.New("catalog_file is required when catalog_source is file"))
		}
	default:
		errs = append(errs, fmt.Errorf("catalog_source must be one of local, server, file, got %q", s.CatalogSource))
	}
	if s.CatalogTimeout <= 0 {
		errs = append(errs, fmt.Errorf("catalog_timeout must be positive, got %v", s.CatalogTimeout))
	}

	// Output
	if _, err := parseLevel(s.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Level returns the slog level for the settings. Debug overrides log_level.
func (s *Settings) Level() slog.Level {
	if s.Debug {
		return slog.LevelDebug
	}
	l, err := parseLevel(s.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", name)
	}
}
