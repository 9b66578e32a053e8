package server

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"poplift/internal/auth"
	"poplift/internal/config"
	"poplift/internal/database"
	"poplift/internal/middleware"
	"poplift/internal/pkg/respond"
)

const contextKey = "server_ctx"

// Context provides request-scoped access to application dependencies.
type Context struct {
	*fiber.Ctx
	Logger    *zap.Logger
	Config    *config.Config
	DBManager *database.Manager

	clock    func() time.Time
	db       *gorm.DB
	publicDB *gorm.DB
}

// DB returns the service-tier session bound to the request context.
func (ctx *Context) DB() (*gorm.DB, error) {
	if ctx.db != nil {
		return ctx.db, nil
	}

	db, err := ctx.DBManager.Connect()
	if err != nil {
		ctx.Logger.Error("failed to connect to database", zap.Error(err))
		return nil, fmt.Errorf("server: database connection failed: %w", err)
	}
	ctx.db = db.WithContext(ctx.UserContext())
	return ctx.db, nil
}

// PublicDB returns the anon-tier session used by public routes.
func (ctx *Context) PublicDB() (*gorm.DB, error) {
	if ctx.publicDB != nil {
		return ctx.publicDB, nil
	}

	db, err := ctx.DBManager.ConnectAnon()
	if err != nil {
		ctx.Logger.Error("failed to connect to anon database", zap.Error(err))
		return nil, fmt.Errorf("server: anon database connection failed: %w", err)
	}
	ctx.publicDB = db.WithContext(ctx.UserContext())
	return ctx.publicDB, nil
}

// Now returns the server clock's current time in UTC.
func (ctx *Context) Now() time.Time {
	if ctx.clock == nil {
		return time.Now().UTC()
	}
	return ctx.clock().UTC()
}

// Principal returns the authenticated caller, if any.
func (ctx *Context) Principal() (auth.Principal, bool) {
	return auth.PrincipalFrom(ctx.Ctx)
}

// TargetUser returns the account id validated by the ownership check.
func (ctx *Context) TargetUser() string {
	return middleware.TargetUser(ctx.Ctx)
}

// ClientIP returns the caller's address as seen through proxies.
func (ctx *Context) ClientIP() string {
	return middleware.ClientIP(ctx.Ctx)
}

// Policy returns the route's failure policy.
func (ctx *Context) Policy() *respond.Policy {
	return respond.From(ctx.Ctx)
}

// Fail answers with an error shaped by the route policy.
func (ctx *Context) Fail(status int, code, message string) error {
	return respond.Fail(ctx.Ctx, status, code, message)
}
