// Package score defines similarity score containers and the pure
// normalization strategies that turn raw model scores into bounded
// display intensities.
package score
