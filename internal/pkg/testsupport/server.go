package testsupport

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"poplift/internal/auth"
	"poplift/internal/config"
	"poplift/internal/database"
	"poplift/internal/pkg/ratelimit"
	"poplift/internal/server"
)

const (
	TestJWTSecret = "test-jwt-secret-0123456789abcdef"
	TestAnonSalt  = "test-anon-salt"
)

// Harness is a fully wired server backed by an in-memory database, with the
// limiter and request clock driven by a FakeClock.
type Harness struct {
	Server    *server.Server
	Config    *config.Config
	Clock     *FakeClock
	Limiter   *ratelimit.Limiter
	DBManager *database.Manager
}

// TestConfig returns a configuration for an in-memory test environment.
func TestConfig() *config.Config {
	return &config.Config{
		AppName:                 "poplift-test",
		Environment:             config.EnvironmentTest,
		Port:                    "0",
		LogLevel:                config.LogLevelError,
		AppURL:                  "https://app.poplift.test",
		DatabaseURL:             ":memory:",
		AutoMigrate:             true,
		JWTSecret:               TestJWTSecret,
		JWTAudience:             "authenticated",
		AnonSalt:                TestAnonSalt,
		RateLimitSweepThreshold: ratelimit.DefaultSweepThreshold,
		AnalyticsRetentionDays:  400,
		MaxConcurrentWrites:     4,
	}
}

// NewServer builds a harness and mounts routes with mount.
func NewServer(t *testing.T, mount func(*server.Server)) *Harness {
	t.Helper()

	cfg := TestConfig()
	log := zap.NewNop()
	clock := NewFakeClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	manager := database.NewManager(cfg, log)
	t.Cleanup(func() { _ = manager.Close() })

	db, err := manager.Connect()
	require.NoError(t, err, "failed to open test database")
	require.NoError(t, database.Migrate(db), "failed to migrate test database")

	limiter := ratelimit.NewLimiter(ratelimit.WithClock(clock.Now))

	srvCfg := server.DefaultConfig()
	srvCfg.Config = cfg
	srvCfg.Logger = log
	srvCfg.DBManager = manager
	srvCfg.Limiter = limiter
	srvCfg.Verifier = auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTAudience)
	srvCfg.Clock = clock.Now
	srvCfg.EnableRequestLogger = false
	srvCfg.EnableCompress = false
	srvCfg.MaxConcurrentWrites = cfg.MaxConcurrentWrites

	srv, err := server.NewServer(srvCfg)
	require.NoError(t, err)
	if mount != nil {
		mount(srv)
	}

	return &Harness{
		Server:    srv,
		Config:    cfg,
		Clock:     clock,
		Limiter:   limiter,
		DBManager: manager,
	}
}

// Token signs a bearer token for userID.
func (h *Harness) Token(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.SignToken(h.Config.JWTSecret, h.Config.JWTAudience, userID, "", time.Hour)
	require.NoError(t, err)
	return token
}

// Request describes a test request.
type Request struct {
	Method  string
	Path    string
	Body    any
	Token   string
	IP      string
	Headers map[string]string
}

// Response is a decoded test response.
type Response struct {
	Status int
	Header http.Header
	Raw    []byte
	JSON   map[string]any
}

// Do performs req against the harness. JSON bodies are decoded into JSON.
func (h *Harness) Do(t *testing.T, req Request) Response {
	t.Helper()

	var body io.Reader
	switch b := req.Body.(type) {
	case nil:
	case string:
		body = bytes.NewBufferString(b)
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		body = bytes.NewBuffer(payload)
	}

	r := httptest.NewRequest(req.Method, req.Path, body)
	if body != nil {
		r.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if req.Token != "" {
		r.Header.Set(fiber.HeaderAuthorization, "Bearer "+req.Token)
	}
	ip := req.IP
	if ip == "" {
		ip = "203.0.113.10"
	}
	r.Header.Set(fiber.HeaderXForwardedFor, ip)
	for k, v := range req.Headers {
		r.Header.Set(k, v)
	}

	resp, err := h.Server.App().Test(r, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := Response{Status: resp.StatusCode, Header: resp.Header, Raw: raw}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out.JSON), "decode body: %s", raw)
	}
	return out
}
