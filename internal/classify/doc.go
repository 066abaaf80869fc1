// Package classify provides the HTTP client for the external audio-text
// similarity model and the single-flight scheduler that gates submissions
// from the capture pipeline.
package classify
