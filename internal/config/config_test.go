package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:           8080,
			Address:        "0.0.0.0",
			SessionTimeout: 300,
			SendQueueSize:  256,
		},
		Audio: AudioConfig{
			WindowSeconds:    5.0,
			MinWindowSeconds: 1.0,
			MaxWindowSeconds: 10.0,
			MaxFrameSamples:  1048576,
		},
		Model: ModelConfig{
			Endpoint:      "http://localhost:9000/score",
			SampleRate:    48000,
			WindowSamples: 480000,
			Timeout:       30,
			CooldownMS:    500,
			MaxPrompts:    16,
		},
		Display: DisplayConfig{
			Width:           240,
			SpectrogramBins: 64,
			SlideSpeed:      3,
			Normalizer:      "clamp",
			TickRate:        60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "invalid server port",
			mutate:      func(c *Config) { c.Server.Port = 70000 },
			expectError: true,
		},
		{
			name:        "empty bind address",
			mutate:      func(c *Config) { c.Server.Address = "" },
			expectError: true,
		},
		{
			name:        "window below minimum",
			mutate:      func(c *Config) { c.Audio.WindowSeconds = 0.5 },
			expectError: true,
		},
		{
			name:        "inverted window bounds",
			mutate:      func(c *Config) { c.Audio.MaxWindowSeconds = 0.5 },
			expectError: true,
		},
		{
			name:        "empty model endpoint",
			mutate:      func(c *Config) { c.Model.Endpoint = "" },
			expectError: true,
		},
		{
			name:        "model window shorter than one second",
			mutate:      func(c *Config) { c.Model.WindowSamples = 1000 },
			expectError: true,
		},
		{
			name:        "negative cooldown",
			mutate:      func(c *Config) { c.Model.CooldownMS = -1 },
			expectError: true,
		},
		{
			name:        "slide speed out of range",
			mutate:      func(c *Config) { c.Display.SlideSpeed = 6 },
			expectError: true,
		},
		{
			name:        "unknown normalizer",
			mutate:      func(c *Config) { c.Display.Normalizer = "sigmoid" },
			expectError: true,
		},
		{
			name:        "tick rate too high",
			mutate:      func(c *Config) { c.Display.TickRate = 200 },
			expectError: true,
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
		},
		{
			name:        "invalid log format",
			mutate:      func(c *Config) { c.Logging.Format = "xml" },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)

			err := config.Validate()
			if tt.expectError && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
server:
  port: 9090
  address: "127.0.0.1"
  session_timeout: 120
  send_queue_size: 64
audio:
  window_seconds: 2.0
  min_window_seconds: 1.0
  max_window_seconds: 10.0
  max_frame_samples: 65536
model:
  endpoint: "http://model:9000/score"
  api_key: "secret"
  sample_rate: 48000
  window_samples: 480000
  timeout: 20
  cooldown_ms: 250
  max_prompts: 8
display:
  width: 120
  spectrogram_bins: 32
  slide_speed: 2
  normalizer: "relative"
  tick_rate: 30
logging:
  level: "debug"
  format: "text"
  output: "stderr"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Model.APIKey != "secret" {
		t.Errorf("API key not loaded")
	}
	if cfg.Display.Normalizer != "relative" {
		t.Errorf("Expected relative normalizer, got %s", cfg.Display.Normalizer)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing file")
	}

	dir := t.TempDir()
	badYAML := filepath.Join(dir, "bad.yaml")
	os.WriteFile(badYAML, []byte("server: [not a map"), 0644)
	if _, err := Load(badYAML); err == nil {
		t.Error("Expected error for malformed YAML")
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	os.WriteFile(invalid, []byte("server:\n  port: -5\n"), 0644)
	if _, err := Load(invalid); err == nil {
		t.Error("Expected validation error")
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := validConfig()

	if cfg.Server.GetSessionTimeoutDuration() != 300*time.Second {
		t.Errorf("Unexpected session timeout: %v", cfg.Server.GetSessionTimeoutDuration())
	}
	if cfg.Audio.GetWindowDuration() != 5*time.Second {
		t.Errorf("Unexpected window duration: %v", cfg.Audio.GetWindowDuration())
	}
	if cfg.Model.GetCooldownDuration() != 500*time.Millisecond {
		t.Errorf("Unexpected cooldown: %v", cfg.Model.GetCooldownDuration())
	}
	if cfg.Display.GetTickInterval() != time.Second/60 {
		t.Errorf("Unexpected tick interval: %v", cfg.Display.GetTickInterval())
	}
}
