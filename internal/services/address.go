package services

import "strings"

// normalizeAddress resolves the authoritative address: a non-empty address
// wins, otherwise a usable legacy location is promoted. Empty means unknown.
func normalizeAddress(address, location string) string {
	if trimmed := strings.TrimSpace(address); trimmed != "" {
		return trimmed
	}
	if trimmed := strings.TrimSpace(location); trimmed != "" && trimmed != "-" {
		return trimmed
	}
	return ""
}

// normalizeLocation resolves the displayed location, with "-" marking rows
// that have neither an address nor a legacy location.
func normalizeLocation(location, address string) string {
	if resolved := normalizeAddress(address, location); resolved != "" {
		return resolved
	}
	return "-"
}
