package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func resetViper() {
	viper.Reset()
}

// isolate points the user config dir at a temp HOME and returns it.
func isolate(t *testing.T) string {
	t.Helper()
	resetViper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	return tmpDir
}

func writeXDGConfig(t *testing.T, home, content string) {
	t.Helper()
	configDir := filepath.Join(home, ".config", AppName)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

// chdir switches to dir for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	origDir, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(origDir); err != nil {
			t.Logf("failed to restore dir: %v", err)
		}
	})
}

func TestInit_WithDefaults(t *testing.T) {
	home := isolate(t)
	writeXDGConfig(t, home, "# empty\n")

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	tests := []struct {
		key      string
		expected interface{}
	}{
		{"device_id", ""},
		{"sample_rate", 44100},
		{"cadence", 400 * time.Millisecond},
		{"green_threshold", 2.0},
		{"red_threshold", 50.0},
		{"catalog_source", "local"},
		{"catalog_url", "http://localhost:5000/api/tunings"},
		{"catalog_timeout", 5 * time.Second},
		{"tuning", "Standard"},
		{"serve_addr", ":5000"},
		{"metrics_addr", ""},
		{"trace_file", ""},
		{"log_level", "info"},
		{"debug", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := viper.Get(tt.key)
			if got != tt.expected {
				t.Errorf("viper.Get(%q) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestInit_CreatesConfigIfMissing(t *testing.T) {
	home := isolate(t)
	chdir(t, home)

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	configPath := filepath.Join(home, ".config", AppName, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Errorf("Init() did not create config file at %s", configPath)
	}
	if viper.ConfigFileUsed() != configPath {
		t.Errorf("ConfigFileUsed() = %q, want %q", viper.ConfigFileUsed(), configPath)
	}
}

func TestInit_ReadsLocalConfigFirst(t *testing.T) {
	home := isolate(t)
	writeXDGConfig(t, home, "green_threshold: 3")
	chdir(t, home)

	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte("green_threshold: 4"), 0644); err != nil {
		t.Fatalf("failed to write local config: %v", err)
	}

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if got := viper.GetFloat64("green_threshold"); got != 4 {
		t.Errorf("viper.GetFloat64(green_threshold) = %v, want 4 (local config)", got)
	}
}

func TestInit_DotConfigTakesPrecedence(t *testing.T) {
	home := isolate(t)
	chdir(t, home)

	if err := os.WriteFile(filepath.Join(home, ".config.yaml"), []byte("tuning: Drop D"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte("tuning: Open G Tuning"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if got := viper.GetString("tuning"); got != "Drop D" {
		t.Errorf("tuning = %q, want %q from .config.yaml", got, "Drop D")
	}
}

func TestInit_InvalidConfigFile(t *testing.T) {
	home := isolate(t)
	writeXDGConfig(t, home, "invalid: yaml: content: [[[")

	if err := Init(); err == nil {
		t.Error("Init() should return error for invalid YAML")
	}
}

func TestGet_ReturnsSettings(t *testing.T) {
	home := isolate(t)
	writeXDGConfig(t, home, DefaultConfig)

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	settings, err := Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	want := Settings{
		DeviceID:       "",
		SampleRate:     44100,
		Cadence:        400 * time.Millisecond,
		GreenThreshold: 2,
		RedThreshold:   50,
		CatalogSource:  SourceLocal,
		CatalogURL:     "http://localhost:5000/api/tunings",
		CatalogTimeout: 5 * time.Second,
		Tuning:         "Standard",
		ServeAddr:      ":5000",
		LogLevel:       "info",
	}
	if *settings != want {
		t.Errorf("Get() = %+v, want %+v", *settings, want)
	}
}

func TestGet_ParsesDurationsAndOverrides(t *testing.T) {
	home := isolate(t)
	writeXDGConfig(t, home, `cadence: 250ms
catalog_source: server
catalog_url: "http://tunings.local:5000/api/tunings"
catalog_timeout: 2s
device_id: "0a1b2c"
`)

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	s, err := Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if s.Cadence != 250*time.Millisecond {
		t.Errorf("Cadence = %v, want 250ms", s.Cadence)
	}
	if s.CatalogTimeout != 2*time.Second {
		t.Errorf("CatalogTimeout = %v, want 2s", s.CatalogTimeout)
	}
	if s.CatalogSource != SourceServer || s.DeviceID != "0a1b2c" {
		t.Errorf("settings = %+v", s)
	}
}

func TestGet_InvalidSettings(t *testing.T) {
	home := isolate(t)
	writeXDGConfig(t, home, "green_threshold: 60\n")

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	_, err := Get()
	if err == nil || !strings.Contains(err.Error(), "red_threshold") {
		t.Errorf("Get() error = %v, want threshold ordering error", err)
	}
}

func TestEnsureConfigExists_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config")

	if err := ensureConfigExists(configPath); err != nil {
		t.Fatalf("ensureConfigExists() error = %v", err)
	}

	content, err := os.ReadFile(filepath.Join(configPath, "config.yaml"))
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}
	if string(content) != DefaultConfig {
		t.Errorf("config content does not match DefaultConfig")
	}
}

func TestEnsureConfigExists_DoesNotOverwrite(t *testing.T) {
	tmpDir := t.TempDir()

	configFile := filepath.Join(tmpDir, "config.yaml")
	existingContent := "existing: true"
	if err := os.WriteFile(configFile, []byte(existingContent), 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	if err := ensureConfigExists(tmpDir); err != nil {
		t.Fatalf("ensureConfigExists() error = %v", err)
	}

	content, err := os.ReadFile(configFile)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}
	if string(content) != existingContent {
		t.Errorf("ensureConfigExists() overwrote existing config")
	}
}

func TestEnsureConfigExists_WriteError(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("skipping test when running as root")
	}

	configPath := filepath.Join(t.TempDir(), "readonly")
	if err := os.MkdirAll(configPath, 0555); err != nil {
		t.Fatalf("failed to create readonly dir: %v", err)
	}
	defer func() {
		if err := os.Chmod(configPath, 0755); err != nil {
			t.Logf("failed to restore permissions: %v", err)
		}
	}()

	if err := ensureConfigExists(filepath.Join(configPath, "subdir")); err == nil {
		t.Error("ensureConfigExists() should return error for read-only directory")
	}
}

func TestConstants(t *testing.T) {
	if AppName != "stringtuner" {
		t.Errorf("AppName = %q, want %q", AppName, "stringtuner")
	}
	if ConfigType != "yaml" {
		t.Errorf("ConfigType = %q, want %q", ConfigType, "yaml")
	}
}

func TestDefaultConfig_ContainsExpectedKeys(t *testing.T) {
	keys := []string{
		"device_id:", "sample_rate:", "cadence:", "green_threshold:", "red_threshold:",
		"catalog_source:", "catalog_url:", "catalog_file:", "catalog_timeout:",
		"tuning:", "note:", "serve_addr:", "metrics_addr:", "trace_file:", "log_level:", "debug:",
	}
	for _, key := range keys {
		if !strings.Contains(DefaultConfig, key) {
			t.Errorf("DefaultConfig missing key %q", key)
		}
	}
}

// validSettings returns a Settings struct with all valid values
func validSettings() *Settings {
	return &Settings{
		SampleRate:     44100,
		Cadence:        400 * time.Millisecond,
		GreenThreshold: 2,
		RedThreshold:   50,
		CatalogSource:  SourceLocal,
		CatalogURL:     "http://localhost:5000/api/tunings",
		CatalogTimeout: 5 * time.Second,
		Tuning:         "Standard",
		ServeAddr:      ":5000",
		LogLevel:       "info",
	}
}

func TestSettings_Validate_ValidSettings(t *testing.T) {
	if err := validSettings().Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil for valid settings", err)
	}
}

func TestSettings_Validate_SampleRate(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate int
		wantErr    bool
	}{
		{"too low", 7999, true},
		{"minimum", 8000, false},
		{"typical 44100", 44100, false},
		{"typical 48000", 48000, false},
		{"maximum", 192000, false},
		{"too high", 192001, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			s.SampleRate = tt.sampleRate
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSettings_Validate_Cadence(t *testing.T) {
	tests := []struct {
		name    string
		cadence time.Duration
		wantErr bool
	}{
		{"zero", 0, true},
		{"too short", 49 * time.Millisecond, true},
		{"minimum", 50 * time.Millisecond, false},
		{"default", 400 * time.Millisecond, false},
		{"maximum", 5 * time.Second, false},
		{"too long", 5*time.Second + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			s.Cadence = tt.cadence
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSettings_Validate_Thresholds(t *testing.T) {
	tests := []struct {
		name       string
		green, red float64
		wantErr    bool
	}{
		{"default", 2, 50, false},
		{"zero green", 0, 1, false},
		{"negative green", -1, 50, true},
		{"equal", 10, 10, true},
		{"inverted", 50, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			s.GreenThreshold, s.RedThreshold = tt.green, tt.red
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSettings_Validate_CatalogSource(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"local", func(s *Settings) { s.CatalogSource = SourceLocal }, false},
		{"server", func(s *Settings) { s.CatalogSource = SourceServer }, false},
		{"server https", func(s *Settings) {
			s.CatalogSource = SourceServer
			s.CatalogURL = "https://example.com/api/tunings"
		}, false},
		{"server bad url", func(s *Settings) {
			s.CatalogSource = SourceServer
			s.CatalogURL = "localhost:5000"
		}, true},
		{"server ftp", func(s *Settings) {
			s.CatalogSource = SourceServer
			s.CatalogURL = "ftp://example.com/tunings"
		}, true},
		{"file", func(s *Settings) {
			s.CatalogSource = SourceFile
			s.CatalogFile = "tunings.csv"
		}, false},
		{"file missing path", func(s *Settings) { s.CatalogSource = SourceFile }, true},
		{"unknown", func(s *Settings) { s.CatalogSource = "cloud" }, true},
		{"zero timeout", func(s *Settings) { s.CatalogTimeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSettings_Validate_LogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "error", "INFO", ""} {
		s := validSettings()
		s.LogLevel = level
		if err := s.Validate(); err != nil {
			t.Errorf("Validate(log_level=%q) error = %v", level, err)
		}
	}
	s := validSettings()
	s.LogLevel = "verbose"
	if err := s.Validate(); err == nil {
		t.Error("Validate(log_level=verbose) should fail")
	}
}

func TestSettings_Validate_MultipleErrors(t *testing.T) {
	s := &Settings{
		SampleRate:     0,       // invalid
		Cadence:        0,       // invalid
		GreenThreshold: 5,       // invalid (>= red)
		RedThreshold:   1,       // invalid
		CatalogSource:  "cloud", // invalid
		CatalogTimeout: 0,       // invalid
		LogLevel:       "loud",  // invalid
	}

	err := s.Validate()
	if err == nil {
		t.Fatal("Validate() should return error for multiple invalid fields")
	}

	errStr := err.Error()
	for _, substr := range []string{"sample_rate", "cadence", "red_threshold", "catalog_source", "catalog_timeout", "log_level"} {
		if !strings.Contains(errStr, substr) {
			t.Errorf("Validate() error should mention %q, got: %v", substr, errStr)
		}
	}
}

func TestSettings_Level(t *testing.T) {
	tests := []struct {
		level string
		debug bool
		want  slog.Level
	}{
		{"info", false, slog.LevelInfo},
		{"warn", false, slog.LevelWarn},
		{"error", false, slog.LevelError},
		{"debug", false, slog.LevelDebug},
		{"error", true, slog.LevelDebug},
		{"bogus", false, slog.LevelInfo},
	}
	for _, tt := range tests {
		s := validSettings()
		s.LogLevel, s.Debug = tt.level, tt.debug
		if got := s.Level(); got != tt.want {
			t.Errorf("Level(%q, debug=%v) = %v, want %v", tt.level, tt.debug, got, tt.want)
		}
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	home := isolate(t)
	writeXDGConfig(t, home, "green_threshold: 2\n")

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	got := make(chan *Settings, 4)
	Watch(func(s *Settings, err error) {
		if err == nil {
			got <- s
		}
	})

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeXDGConfig(t, home, "green_threshold: 3\n")

	deadline := time.After(3 * time.Second)
	for {
		select {
		case s := <-got:
			if s.GreenThreshold == 3 {
				return
			}
		case <-deadline:
			t.Fatal("Watch callback not invoked with the new threshold")
		}
	}
}
