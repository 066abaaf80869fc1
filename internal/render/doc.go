// Package render drives the scrolling spectrogram and prompt heatmap
// surfaces, keeping both aligned on a shared time axis.
package render
