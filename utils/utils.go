// Package utils provides shared utility functions across the polymarket-agent project.
package utils

import (
	"strings"
)

// NormalizeAddress normalizes an Ethereum address to lowercase with trimmed spaces.
func NormalizeAddress(addr string) string {
	return strings.TrimSpace(strings.ToLower(addr))
}

// ShortAddress returns a truncated address for display (0x1234...5678).
func ShortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// ShortHash returns a truncated transaction hash for display.
func ShortHash(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:16]
}

// MinFloat returns the minimum of two float64 values.
func MinFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// MaxFloat returns the maximum of two float64 values.
func MaxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
