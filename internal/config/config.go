package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Audio   AudioConfig   `yaml:"audio"`
	Model   ModelConfig   `yaml:"model"`
	Display DisplayConfig `yaml:"display"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP/WebSocket server configuration
type ServerConfig struct {
	Port           int    `yaml:"port"`
	Address        string `yaml:"address"`
	SessionTimeout int    `yaml:"session_timeout"` // seconds of inactivity before a session is reaped
	SendQueueSize  int    `yaml:"send_queue_size"` // outbound WebSocket event queue depth
}

// AudioConfig contains capture-side audio parameters
type AudioConfig struct {
	WindowSeconds    float64 `yaml:"window_seconds"`     // default analysis window duration
	MinWindowSeconds float64 `yaml:"min_window_seconds"` // lower bound for hot reconfiguration
	MaxWindowSeconds float64 `yaml:"max_window_seconds"` // upper bound for hot reconfiguration
	MaxFrameSamples  int     `yaml:"max_frame_samples"`  // largest accepted single capture frame
}

// ModelConfig contains similarity model endpoint configuration
type ModelConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	SampleRate    int    `yaml:"sample_rate"`    // rate the model requires (48000 for FLAM)
	WindowSamples int    `yaml:"window_samples"` // exact input length the model requires
	Timeout       int    `yaml:"timeout"`        // seconds
	CooldownMS    int    `yaml:"cooldown_ms"`    // minimum interval between submissions
	MaxPrompts    int    `yaml:"max_prompts"`
}

// DisplayConfig contains render surface configuration
type DisplayConfig struct {
	Width           int    `yaml:"width"`            // columns on both scrolling surfaces
	SpectrogramBins int    `yaml:"spectrogram_bins"` // frequency rows on the spectrogram surface
	SlideSpeed      int    `yaml:"slide_speed"`      // 1 (slowest) to 5 (fastest)
	Normalizer      string `yaml:"normalizer"`       // "clamp" or "relative"
	TickRate        int    `yaml:"tick_rate"`        // render ticks per second
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model config: %w", err)
	}

	if err := c.Display.Validate(); err != nil {
		return fmt.Errorf("display config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.SessionTimeout < 1 {
		return fmt.Errorf("session_timeout must be at least 1 second, got %d", s.SessionTimeout)
	}

	if s.SendQueueSize < 1 {
		return fmt.Errorf("send_queue_size must be at least 1, got %d", s.SendQueueSize)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.MinWindowSeconds <= 0 {
		return fmt.Errorf("min_window_seconds must be positive, got %f", a.MinWindowSeconds)
	}

	if a.MaxWindowSeconds <= a.MinWindowSeconds {
		return fmt.Errorf("max_window_seconds (%f) must be greater than min_window_seconds (%f)",
			a.MaxWindowSeconds, a.MinWindowSeconds)
	}

	if a.WindowSeconds < a.MinWindowSeconds || a.WindowSeconds > a.MaxWindowSeconds {
		return fmt.Errorf("window_seconds must be between %f and %f, got %f",
			a.MinWindowSeconds, a.MaxWindowSeconds, a.WindowSeconds)
	}

	if a.MaxFrameSamples < 128 {
		return fmt.Errorf("max_frame_samples must be at least 128, got %d", a.MaxFrameSamples)
	}

	return nil
}

// Validate validates model configuration
func (m *ModelConfig) Validate() error {
	if m.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if m.SampleRate < 8000 {
		return fmt.Errorf("sample_rate must be at least 8000 Hz, got %d", m.SampleRate)
	}

	if m.WindowSamples < m.SampleRate {
		return fmt.Errorf("window_samples must cover at least one second (%d samples), got %d",
			m.SampleRate, m.WindowSamples)
	}

	if m.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", m.Timeout)
	}

	if m.CooldownMS < 0 {
		return fmt.Errorf("cooldown_ms cannot be negative, got %d", m.CooldownMS)
	}

	if m.MaxPrompts < 1 {
		return fmt.Errorf("max_prompts must be at least 1, got %d", m.MaxPrompts)
	}

	return nil
}

// Validate validates display configuration
func (d *DisplayConfig) Validate() error {
	if d.Width < 32 {
		return fmt.Errorf("width must be at least 32 columns, got %d", d.Width)
	}

	if d.SpectrogramBins < 8 {
		return fmt.Errorf("spectrogram_bins must be at least 8, got %d", d.SpectrogramBins)
	}

	if d.SlideSpeed < 1 || d.SlideSpeed > 5 {
		return fmt.Errorf("slide_speed must be between 1 and 5, got %d", d.SlideSpeed)
	}

	validNormalizers := map[string]bool{"clamp": true, "relative": true}
	if !validNormalizers[d.Normalizer] {
		return fmt.Errorf("normalizer must be 'clamp' or 'relative', got '%s'", d.Normalizer)
	}

	if d.TickRate < 1 || d.TickRate > 120 {
		return fmt.Errorf("tick_rate must be between 1 and 120, got %d", d.TickRate)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetSessionTimeoutDuration returns the session timeout as a time.Duration
func (s *ServerConfig) GetSessionTimeoutDuration() time.Duration {
	return time.Duration(s.SessionTimeout) * time.Second
}

// GetWindowDuration returns the default window duration as a time.Duration
func (a *AudioConfig) GetWindowDuration() time.Duration {
	return time.Duration(a.WindowSeconds * float64(time.Second))
}

// GetTimeoutDuration returns the model request timeout as a time.Duration
func (m *ModelConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(m.Timeout) * time.Second
}

// GetCooldownDuration returns the minimum resubmission interval as a time.Duration
func (m *ModelConfig) GetCooldownDuration() time.Duration {
	return time.Duration(m.CooldownMS) * time.Millisecond
}

// GetTickInterval returns the render tick interval as a time.Duration
func (d *DisplayConfig) GetTickInterval() time.Duration {
	return time.Second / time.Duration(d.TickRate)
}
