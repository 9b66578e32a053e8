package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"poplift/internal/security"
)

const principalKey = "auth_principal"

var (
	// ErrMissingToken means the request carried no bearer credential.
	ErrMissingToken = errors.New("auth: missing bearer token")
	// ErrInvalidToken covers every verification failure.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Email  string
	Role   string
}

// Verifier turns a bearer credential into a principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// Claims mirrors the access tokens issued by the hosted auth service.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256 tokens signed with the project secret.
type JWTVerifier struct {
	secret   []byte
	audience string
	parser   *jwt.Parser
}

// NewJWTVerifier builds a verifier. An empty audience disables the audience check.
func NewJWTVerifier(secret, audience string) *JWTVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &JWTVerifier{
		secret:   []byte(secret),
		audience: audience,
		parser:   jwt.NewParser(opts...),
	}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}
	if !security.IsValidUUID(claims.Subject) {
		return Principal{}, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}

	return Principal{
		UserID: strings.ToLower(claims.Subject),
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

// SignToken issues a token the verifier accepts. Used by the development CLI and tests.
func SignToken(secret, audience, userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ExtractBearer returns the token from an "Authorization: Bearer <token>" header.
func ExtractBearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// SetPrincipal stores the authenticated principal on the request.
func SetPrincipal(c *fiber.Ctx, p Principal) {
	c.Locals(principalKey, p)
}

// PrincipalFrom returns the request's principal, if one was authenticated.
func PrincipalFrom(c *fiber.Ctx) (Principal, bool) {
	p, ok := c.Locals(principalKey).(Principal)
	return p, ok
}
