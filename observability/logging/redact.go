package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"vault":     {},
	"kind":      {},
	"id":        {},
	"event":     {},
}

// IsAllowlisted reports whether the provided key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField returns a slog.Attr that redacts the supplied value unless the key is
// explicitly allowlisted.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskAddress keeps the human-readable prefix and the last four characters of
// a bech32 account so log lines stay correlatable without exposing holders.
func MaskAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	sep := strings.LastIndexByte(addr, '1')
	if sep <= 0 || len(addr)-sep <= 8 {
		return RedactedValue
	}
	return addr[:sep+1] + "..." + addr[len(addr)-4:]
}
