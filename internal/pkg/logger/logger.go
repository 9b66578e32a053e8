package logger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"poplift/internal/config"
)

var whitespace = regexp.MustCompile(`\s+`)

// Initialize sets up structured logging to stdout and a rotating file.
func Initialize(cfg *config.Config) (*zap.Logger, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	consoleConfig := encoderConfig
	consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	fileConfig := encoderConfig
	fileConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	if err := os.MkdirAll(cfg.LogsDirectory, 0o755); err != nil {
		return nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogsDirectory, "poplift.log"),
		MaxSize:    cfg.LogsMaxSizeInMB,
		MaxBackups: cfg.LogsMaxBackups,
		MaxAge:     cfg.LogsMaxAgeInDays,
	}

	level := ZapLevel(cfg.LogLevel)
	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), zapcore.AddSync(os.Stdout), level),
		zapcore.NewCore(zapcore.NewJSONEncoder(fileConfig), zapcore.AddSync(rotator), level),
	)

	return zap.New(core, zap.AddCaller()).With(zap.String("app", cfg.AppName)), nil
}

// ZapLevel maps a configured level to zap's; unknown values mean info.
func ZapLevel(level config.LogLevel) zapcore.Level {
	switch level {
	case config.LogLevelDebug:
		return zapcore.DebugLevel
	case config.LogLevelWarn:
		return zapcore.WarnLevel
	case config.LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// GormLogger adapts zap to gorm's logger.Interface.
type GormLogger struct {
	zapLogger                 *zap.Logger
	level                     logger.LogLevel
	slowThreshold             time.Duration
	ignoreRecordNotFoundError bool
}

// NewGormLogger creates a gorm-compatible logger backed by zap.
func NewGormLogger(zapLogger *zap.Logger, level config.LogLevel) logger.Interface {
	gormLevel := logger.Warn
	switch level {
	case config.LogLevelDebug:
		gormLevel = logger.Info
	case config.LogLevelError:
		gormLevel = logger.Error
	}

	return &GormLogger{
		zapLogger:                 zapLogger,
		level:                     gormLevel,
		slowThreshold:             200 * time.Millisecond,
		ignoreRecordNotFoundError: true,
	}
}

func (l *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	sql = sanitizeSQL(sql)

	switch {
	case err != nil && l.ignoreRecordNotFoundError && errors.Is(err, gorm.ErrRecordNotFound):
		return
	case err != nil:
		l.zapLogger.Error("gorm query failed",
			zap.Duration("elapsed", elapsed),
			zap.Int64("rows", rows),
			zap.String("sql", sql),
			zap.Error(err),
		)
	case elapsed > l.slowThreshold && l.level >= logger.Warn:
		l.zapLogger.Warn("gorm slow query",
			zap.Duration("elapsed", elapsed),
			zap.Int64("rows", rows),
			zap.String("sql", sql),
		)
	case l.level >= logger.Info:
		l.zapLogger.Debug("gorm query",
			zap.Duration("elapsed", elapsed),
			zap.Int64("rows", rows),
			zap.String("sql", sql),
		)
	}
}

func sanitizeSQL(sql string) string {
	sql = whitespace.ReplaceAllString(strings.TrimSpace(sql), " ")
	if len(sql) > 500 {
		return sql[:500] + "..."
	}
	return sql
}
