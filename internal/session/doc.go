// Package session ties one capture source to the full scoring pipeline:
// frame accumulation, window packaging, single-flight classification,
// normalization, and the scrolling render surfaces.
package session
