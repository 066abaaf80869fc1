// Package config provides configuration loading and validation for the SonoTag service.
// It handles YAML-based configuration with per-section struct validation covering the
// server, audio capture, similarity model, display, and logging parameters.
package config
