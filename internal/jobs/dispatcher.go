package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// JobContext provides job-scoped access to application dependencies.
type JobContext struct {
	context.Context
	Logger *zap.Logger
	DB     *gorm.DB
	Now    time.Time
}

// Processor defines the interface for processing a batch of work.
type Processor interface {
	Name() string
	ProcessBatch(ctx *JobContext) error
}

// Connector hands out the database used by a batch.
type Connector interface {
	Connect() (*gorm.DB, error)
}

// Dispatcher runs processors periodically in a background loop.
type Dispatcher struct {
	logger     *zap.Logger
	db         Connector
	processors []Processor
	interval   time.Duration
	clock      func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDispatcher creates a new background job dispatcher.
func NewDispatcher(logger *zap.Logger, db Connector, interval time.Duration, processors ...Processor) *Dispatcher {
	return &Dispatcher{
		logger:     logger.Named("dispatcher"),
		db:         db,
		processors: processors,
		interval:   interval,
		clock:      time.Now,
	}
}

// WithClock replaces the time source passed to processors.
func (d *Dispatcher) WithClock(clock func() time.Time) *Dispatcher {
	d.clock = clock
	return d
}

// Start begins the background processing loop.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.running = true
	d.wg.Add(1)
	go d.loop(ctx)
	return nil
}

// Stop terminates the dispatcher and waits for completion.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.cancel()
	d.running = false
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer d.wg.Done()

	d.logger.Info("dispatcher started",
		zap.Int("processors", len(d.processors)),
		zap.Duration("interval", d.interval),
	)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	// Run immediately on startup
	d.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			d.RunOnce(ctx)
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return
		}
	}
}

// RunOnce runs every processor a single time. Processor failures are logged
// and do not stop the others; the number of failures is returned.
func (d *Dispatcher) RunOnce(ctx context.Context) int {
	db, err := d.db.Connect()
	if err != nil {
		d.logger.Error("failed to connect to database", zap.Error(err))
		return len(d.processors)
	}

	jobCtx := &JobContext{
		Context: ctx,
		Logger:  d.logger,
		DB:      db.WithContext(ctx),
		Now:     d.clock().UTC(),
	}

	failures := 0
	for _, processor := range d.processors {
		if ctx.Err() != nil {
			return failures
		}
		if err := processor.ProcessBatch(jobCtx); err != nil {
			failures++
			d.logger.Error("processor failed", zap.String("processor", processor.Name()), zap.Error(err))
		}
	}
	return failures
}

// IsRunning returns whether the dispatcher is currently running.
func (d *Dispatcher) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}
