package http

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"poplift/internal/server"
)

const (
	maxPageURLLength   = 2048
	maxSessionIDLength = 64
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// decodeJSON unmarshals the request body. An empty body decodes to the zero value.
func decodeJSON(ctx *server.Context, dst any) error {
	body := ctx.Body()
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, dst)
}

func invalidJSON(ctx *server.Context) error {
	return ctx.Fail(fiber.StatusBadRequest, "invalid_json", "request body must be valid JSON")
}

// unavailable logs err and answers with the generic upstream failure.
func unavailable(ctx *server.Context, msg string, err error) error {
	ctx.Logger.Error(msg,
		zap.Error(err),
		zap.String("path", ctx.Path()),
		zap.String("request_id", requestID(ctx)),
	)
	return ctx.Fail(fiber.StatusInternalServerError, "upstream_unavailable", "service temporarily unavailable")
}

func requestID(ctx *server.Context) string {
	id, _ := ctx.Locals("requestid").(string)
	return id
}

// clampURL keeps absolute http(s) page URLs, bounded and unescaped.
// Anything else is dropped.
func clampURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	if len(raw) > maxPageURLLength {
		raw = raw[:maxPageURLLength]
	}
	if !utf8.ValidString(raw) {
		raw = strings.ToValidUTF8(raw, "")
	}
	return raw
}

// cleanSessionID drops identifiers that are not short opaque tokens.
func cleanSessionID(raw string) string {
	if len(raw) > maxSessionIDLength || !sessionIDPattern.MatchString(raw) {
		return ""
	}
	return raw
}
