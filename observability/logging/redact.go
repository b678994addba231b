package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue replaces sensitive values in logs.
const RedactedValue = "[REDACTED]"

// publicKeys are log keys whose values are on-chain identifiers or process
// metadata and never carry credentials.
var publicKeys = map[string]bool{
	"service": true, "env": true, "message": true, "severity": true, "timestamp": true,
	"error": true, "reason": true, "source": true,
	"kind": true, "block": true, "tx": true, "logindex": true, "contract": true,
	"line": true, "position": true, "token": true, "lender": true, "escrow": true,
	"spigot": true, "controller": true, "proposal": true, "selector": true,
}

// IsAllowlisted reports whether values under key are logged verbatim.
func IsAllowlisted(key string) bool {
	return publicKeys[strings.ToLower(strings.TrimSpace(key))]
}

// MaskValue hides a non-empty value.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField builds an attribute that is redacted unless key is public.
func MaskField(key, value string) slog.Attr {
	if IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}

// MaskURL keeps the scheme and host of an endpoint and redacts the path,
// query and user info, where RPC providers embed API keys.
func MaskURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return RedactedValue
	}
	masked := u.Scheme + "://" + u.Host
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.User != nil {
		masked += "/" + RedactedValue
	}
	return masked
}
