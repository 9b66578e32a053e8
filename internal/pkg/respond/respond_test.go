package respond_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poplift/internal/pkg/ratelimit"
	"poplift/internal/pkg/respond"
)

func soft() *respond.Policy {
	return &respond.Policy{
		Tag:      "popups",
		Limit:    100,
		Window:   time.Minute,
		SoftFail: true,
		Fallback: func() fiber.Map { return fiber.Map{"popups": []any{}, "count": 0} },
	}
}

func hard() *respond.Policy {
	return &respond.Policy{Tag: "cancel", Limit: 5, Window: time.Hour}
}

func run(t *testing.T, p *respond.Policy, h fiber.Handler) (int, map[string]any, string) {
	t.Helper()
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		if p != nil {
			respond.Attach(c, p)
		}
		return h(c)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body, resp.Header.Get(fiber.HeaderRetryAfter)
}

func TestFailSoftRoute(t *testing.T) {
	t.Run("client error", func(t *testing.T) {
		status, body, _ := run(t, soft(), func(c *fiber.Ctx) error {
			return respond.Fail(c, fiber.StatusBadRequest, "invalid_user_id", "user id must be a UUID")
		})
		assert.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, "invalid_user_id", body["code"])
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "user id must be a UUID", body["error"])
		assert.Equal(t, []any{}, body["popups"])
	})

	t.Run("upstream failure", func(t *testing.T) {
		status, body, _ := run(t, soft(), func(c *fiber.Ctx) error {
			return respond.Fail(c, fiber.StatusInternalServerError, "upstream_unavailable", "popups temporarily unavailable")
		})
		assert.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, "upstream_unavailable", body["code"])
		assert.Equal(t, "popups temporarily unavailable", body["warning"])
		assert.NotContains(t, body, "success")
		assert.EqualValues(t, 0, body["count"])
	})
}

func TestFailHardRoute(t *testing.T) {
	t.Run("client error keeps status and message", func(t *testing.T) {
		status, body, _ := run(t, hard(), func(c *fiber.Ctx) error {
			return respond.Fail(c, fiber.StatusForbidden, "forbidden", "cannot modify another account")
		})
		assert.Equal(t, fiber.StatusForbidden, status)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "forbidden", body["error"])
		assert.Equal(t, "cannot modify another account", body["message"])
	})

	t.Run("server error hides message", func(t *testing.T) {
		status, body, _ := run(t, hard(), func(c *fiber.Ctx) error {
			return respond.Fail(c, fiber.StatusInternalServerError, "database_error", "pq: relation does not exist")
		})
		assert.Equal(t, fiber.StatusInternalServerError, status)
		assert.Equal(t, respond.GenericServerError, body["message"])
	})

	t.Run("no policy behaves as hard", func(t *testing.T) {
		status, body, _ := run(t, nil, func(c *fiber.Ctx) error {
			return respond.Fail(c, fiber.StatusNotFound, "not_found", "missing")
		})
		assert.Equal(t, fiber.StatusNotFound, status)
		assert.Equal(t, "not_found", body["error"])
	})
}

func TestRateLimited(t *testing.T) {
	decision := ratelimit.Decision{Allowed: false, ResetIn: 42*time.Minute + 300*time.Millisecond}

	t.Run("soft route answers 200", func(t *testing.T) {
		status, body, retry := run(t, soft(), func(c *fiber.Ctx) error {
			return respond.RateLimited(c, decision)
		})
		assert.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, true, body["rate_limited"])
		assert.Equal(t, "rate_limited", body["code"])
		assert.NotEmpty(t, body["warning"])
		assert.Empty(t, retry)
	})

	t.Run("hard route answers 429 with Retry-After", func(t *testing.T) {
		status, body, retry := run(t, hard(), func(c *fiber.Ctx) error {
			return respond.RateLimited(c, decision)
		})
		assert.Equal(t, fiber.StatusTooManyRequests, status)
		assert.Equal(t, "2521", retry)
		assert.Equal(t, "rate_limited", body["error"])
		assert.EqualValues(t, 2521, body["retry_after"])
	})
}

func TestPolicy(t *testing.T) {
	p := hard()
	assert.Equal(t, "cancel_1.2.3.4", p.Identifier("1.2.3.4"))
	assert.True(t, p.Limited())
	assert.False(t, (&respond.Policy{Tag: "x"}).Limited())

	var nilPolicy *respond.Policy
	assert.False(t, nilPolicy.Limited())
}

func TestSoftRender(t *testing.T) {
	p := soft()
	var got fiber.Map
	p.Render = func(c *fiber.Ctx, body fiber.Map) error {
		got = body
		return c.JSON(fiber.Map{"rendered": true})
	}

	status, body, _ := run(t, p, func(c *fiber.Ctx) error {
		return respond.RateLimited(c, ratelimit.Decision{ResetIn: time.Second})
	})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["rendered"])
	assert.Equal(t, "rate_limited", got["code"])
}
