// Package security holds the request-level helpers shared by every route:
// client identification, input validation and CORS headers.
package security

import (
	"encoding/hex"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// UnknownClient is returned when no client address can be derived.
const UnknownClient = "unknown"

const maxEmailLength = 254

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Headers is anything that can look up a request header.
type Headers interface {
	Get(key string) string
}

// HeaderFunc adapts a lookup function to Headers.
type HeaderFunc func(key string) string

func (f HeaderFunc) Get(key string) string { return f(key) }

// ClientIP returns the first X-Forwarded-For entry, then X-Real-IP, then "unknown".
func ClientIP(h Headers) string {
	if h == nil {
		return UnknownClient
	}
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(h.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return UnknownClient
}

// IsValidUUID accepts only canonical 36-character RFC 4122 UUIDs of versions 1 to 5.
func IsValidUUID(value string) bool {
	if len(value) != 36 {
		return false
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return false
	}
	if v := id.Version(); v < 1 || v > 5 {
		return false
	}
	return id.Variant() == uuid.RFC4122
}

// SanitizeString truncates value to maxLength characters, drops NUL characters
// and HTML-encodes & < > " '. The result is safe as HTML text content only.
func SanitizeString(value string, maxLength int) string {
	if maxLength <= 0 || value == "" {
		return ""
	}
	if !utf8.ValidString(value) {
		value = strings.ToValidUTF8(value, "")
	}
	if utf8.RuneCountInString(value) > maxLength {
		value = string([]rune(value)[:maxLength])
	}
	value = strings.ReplaceAll(value, "\x00", "")
	return html.EscapeString(value)
}

// IsValidEmail is a coarse local@domain.tld shape check.
func IsValidEmail(value string) bool {
	return len(value) <= maxEmailLength && emailPattern.MatchString(value)
}

// OneOf reports whether value is in allowed.
func OneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// CORSHeaders returns the header set for a response to origin. Any origin is
// allowed: the public endpoints are embedded on arbitrary customer sites.
func CORSHeaders(origin string) map[string]string {
	if origin == "" {
		origin = "*"
	}
	return map[string]string{
		"Access-Control-Allow-Origin":  origin,
		"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type, Authorization",
		"Access-Control-Max-Age":       "86400",
		"Vary":                         "Origin",
	}
}

// HashIP returns a keyed BLAKE2b-128 digest of ip, hex encoded.
func HashIP(salt, ip string) string {
	key := []byte(salt)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	h, err := blake2b.New(16, key)
	if err != nil {
		return ""
	}
	h.Write([]byte(ip))
	return hex.EncodeToString(h.Sum(nil))
}
