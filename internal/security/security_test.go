package security_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"poplift/internal/security"
)

func headers(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers security.Headers
		want    string
	}{
		{"first forwarded entry", headers("X-Forwarded-For", "1.2.3.4, 5.6.6.7"), "1.2.3.4"},
		{"forwarded entry is trimmed", headers("X-Forwarded-For", "  10.0.0.1 ,10.0.0.2"), "10.0.0.1"},
		{"single forwarded entry", headers("X-Forwarded-For", "2001:db8::1"), "2001:db8::1"},
		{"real ip fallback", headers("X-Real-IP", "9.9.9.9"), "9.9.9.9"},
		{"forwarded wins over real ip", headers("X-Forwarded-For", "1.1.1.1", "X-Real-IP", "2.2.2.2"), "1.1.1.1"},
		{"empty forwarded falls through", headers("X-Forwarded-For", " , 3.3.3.3", "X-Real-IP", "4.4.4.4"), "4.4.4.4"},
		{"no headers", headers(), "unknown"},
		{"nil headers", nil, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, security.ClientIP(tt.headers))
		})
	}
}

func TestClientIPHeaderFunc(t *testing.T) {
	h := security.HeaderFunc(func(key string) string {
		if key == "X-Forwarded-For" {
			return "8.8.8.8"
		}
		return ""
	})
	assert.Equal(t, "8.8.8.8", security.ClientIP(h))
}

func TestIsValidUUID(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"550e8400-e29b-41d4-a716-446655440000", true},
		{"550E8400-E29B-41D4-A716-446655440000", true},
		{"6ba7b810-9dad-11d1-80b4-00c04fd430c8", true},
		{"not-a-uuid", false},
		{"", false},
		{"550e8400e29b41d4a716446655440000", false},
		{"{550e8400-e29b-41d4-a716-446655440000}", false},
		{"urn:uuid:550e8400-e29b-41d4-a716-446655440000", false},
		{"550e8400-e29b-61d4-a716-446655440000", false},
		{"550e8400-e29b-01d4-a716-446655440000", false},
		{"550e8400-e29b-41d4-c716-446655440000", false},
		{"550e8400-e29b-41d4-a716-44665544000g", false},
		{"00000000-0000-0000-0000-000000000000", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, security.IsValidUUID(tt.value))
		})
	}
}

func TestSanitizeString(t *testing.T) {
	t.Run("encodes markup", func(t *testing.T) {
		got := security.SanitizeString("<script>alert(1)</script>", 1000)
		assert.NotContains(t, got, "<")
		assert.NotContains(t, got, ">")
		assert.Contains(t, got, "script")
		assert.Contains(t, got, "alert(1)")
	})

	t.Run("encodes ampersand and quotes", func(t *testing.T) {
		got := security.SanitizeString(`Tom & "Jerry" 's`, 100)
		assert.Equal(t, "Tom &amp; &#34;Jerry&#34; &#39;s", got)
	})

	t.Run("truncates by characters before encoding", func(t *testing.T) {
		assert.Equal(t, "héll", security.SanitizeString("héllo wörld", 4))
		assert.Equal(t, "&lt;a", security.SanitizeString("<abc", 2))
	})

	t.Run("strips NUL", func(t *testing.T) {
		assert.Equal(t, "abc", security.SanitizeString("a\x00b\x00c", 10))
	})

	t.Run("empty and zero length", func(t *testing.T) {
		assert.Equal(t, "", security.SanitizeString("", 10))
		assert.Equal(t, "", security.SanitizeString("abc", 0))
	})
}

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"user@example.com", true},
		{"first.last+tag@sub.example.co.uk", true},
		{"user@localhost", false},
		{"user example@x.com", false},
		{"@example.com", false},
		{"user@", false},
		{"", false},
		{strings.Repeat("a", 245) + "@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, security.IsValidEmail(tt.value))
		})
	}
}

func TestOneOf(t *testing.T) {
	assert.True(t, security.OneOf("click", "impression", "click"))
	assert.False(t, security.OneOf("Click", "impression", "click"))
	assert.False(t, security.OneOf("click"))
}

func TestCORSHeaders(t *testing.T) {
	t.Run("echoes origin", func(t *testing.T) {
		h := security.CORSHeaders("https://shop.example.com")
		assert.Equal(t, "https://shop.example.com", h["Access-Control-Allow-Origin"])
		assert.Equal(t, "GET, POST, OPTIONS", h["Access-Control-Allow-Methods"])
		assert.Equal(t, "Content-Type, Authorization", h["Access-Control-Allow-Headers"])
		assert.Equal(t, "86400", h["Access-Control-Max-Age"])
		assert.Equal(t, "Origin", h["Vary"])
	})

	t.Run("wildcard without origin", func(t *testing.T) {
		assert.Equal(t, "*", security.CORSHeaders("")["Access-Control-Allow-Origin"])
	})
}

func TestHashIP(t *testing.T) {
	a := security.HashIP("salt", "1.2.3.4")
	assert.Len(t, a, 32)
	assert.Equal(t, a, security.HashIP("salt", "1.2.3.4"))
	assert.NotEqual(t, a, security.HashIP("salt", "1.2.3.5"))
	assert.NotEqual(t, a, security.HashIP("other", "1.2.3.4"))
	assert.NotContains(t, a, "1.2.3.4")

	assert.Len(t, security.HashIP(strings.Repeat("k", 100), "1.2.3.4"), 32)
}
