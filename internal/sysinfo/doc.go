// Package sysinfo inventories the host for the monitoring API and derives a
// recommended analysis window duration from it.
package sysinfo
