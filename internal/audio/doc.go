// Package audio handles capture-side audio processing: frame accumulation into
// analysis windows, deterministic sample-rate conversion, window packaging to the
// model's fixed input length, WAV encoding, and spectral column extraction.
package audio
