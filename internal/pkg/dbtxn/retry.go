package dbtxn

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxRetries = 8
	baseDelay  = 50 * time.Millisecond
	maxDelay   = 2 * time.Second
)

// WithRetry runs fn inside a transaction, retrying when the store reports
// contention: SQLite busy/locked errors or Postgres serialization failures.
// fn must only use the tx it is given.
func WithRetry(ctx context.Context, logger *zap.Logger, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoff(attempt)
			logger.Info("retrying transaction",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("dbtxn: %w (last error: %v)", ctx.Err(), err)
			case <-time.After(delay):
			}
		}

		tx := db.WithContext(ctx).Session(&gorm.Session{SkipDefaultTransaction: true}).Begin()
		if tx.Error != nil {
			return fmt.Errorf("dbtxn: begin transaction: %w", tx.Error)
		}

		err = fn(tx)
		if err != nil {
			tx.Rollback()
			if isRetryable(err) {
				continue
			}
			return err
		}

		if err = tx.Commit().Error; err != nil {
			tx.Rollback()
			if isRetryable(err) {
				continue
			}
			return fmt.Errorf("dbtxn: commit transaction: %w", err)
		}
		return nil
	}

	return fmt.Errorf("dbtxn: transaction failed after %d attempts: %w", maxRetries, err)
}

func backoff(attempt int) time.Duration {
	delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt-1)))
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay + time.Duration(rand.Float64()*0.2*float64(delay))
}

func isRetryable(err error) bool {
	return isBusyError(err) || isSerializationFailure(err)
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database is busy") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQL statements in progress")
}

// 40001 serialization_failure, 40P01 deadlock_detected.
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}
