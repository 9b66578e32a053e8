package database

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"poplift/internal/config"
	"poplift/internal/pkg/logger"
)

// Tier selects which credential set a connection uses.
type Tier string

const (
	// TierService carries the service role and is used by account routes.
	TierService Tier = "service"
	// TierAnon carries the anon role and is used by public routes.
	TierAnon Tier = "anon"
)

type pool struct {
	once sync.Once
	db   *gorm.DB
	err  error
}

// Manager owns the connection lifecycle for both credential tiers.
type Manager struct {
	cfg    *config.Config
	logger *zap.Logger

	mu    sync.Mutex
	pools map[Tier]*pool
}

// NewManager constructs a database manager for the provided configuration and logger.
func NewManager(cfg *config.Config, log *zap.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: log,
		pools:  make(map[Tier]*pool),
	}
}

// Connect returns the service-tier connection, opening it on first use.
func (m *Manager) Connect() (*gorm.DB, error) {
	return m.connect(TierService, m.cfg.DatabaseDSN())
}

// ConnectAnon returns the anon-tier connection. Without an anon DSN the
// service connection is shared.
func (m *Manager) ConnectAnon() (*gorm.DB, error) {
	dsn := m.cfg.AnonDatabaseDSN()
	if dsn == "" {
		return m.Connect()
	}
	return m.connect(TierAnon, dsn)
}

func (m *Manager) connect(tier Tier, dsn string) (*gorm.DB, error) {
	m.mu.Lock()
	p, ok := m.pools[tier]
	if !ok {
		p = &pool{}
		m.pools[tier] = p
	}
	m.mu.Unlock()

	p.once.Do(func() {
		p.db, p.err = m.open(tier, dsn)
	})
	if p.err != nil {
		return nil, p.err
	}
	return p.db.Session(&gorm.Session{}), nil
}

// Close closes every opened pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for tier, p := range m.pools {
		if p.db == nil {
			continue
		}
		sqlDB, err := p.db.DB()
		if err == nil {
			err = sqlDB.Close()
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("database: close %s pool: %w", tier, err)
		}
	}
	m.pools = make(map[Tier]*pool)
	return firstErr
}

// CheckpointWAL forces a WAL checkpoint with the given mode. It is a no-op on Postgres.
func (m *Manager) CheckpointWAL(mode string) error {
	if config.UsesPostgres(m.cfg.DatabaseDSN()) {
		return nil
	}
	conn, err := m.Connect()
	if err != nil {
		return err
	}
	return conn.Exec("PRAGMA wal_checkpoint(" + mode + ");").Error
}

func (m *Manager) open(tier Tier, dsn string) (*gorm.DB, error) {
	log := m.logger.With(zap.String("component", "gorm"), zap.String("tier", string(tier)))
	gormConfig := &gorm.Config{
		Logger:                 logger.NewGormLogger(log, m.cfg.LogLevel),
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var (
		db     *gorm.DB
		err    error
		driver string
	)
	if config.UsesPostgres(dsn) {
		driver = "postgres"
		db, err = openPostgres(dsn, gormConfig)
	} else {
		driver = "sqlite"
		db, err = openSQLite(dsn, gormConfig, log)
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: access sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(m.cfg.GetMaxOpenConns())
	sqlDB.SetMaxIdleConns(m.cfg.GetMaxIdleConns())
	if !isMemoryDSN(dsn) {
		sqlDB.SetConnMaxLifetime(10 * time.Minute)
	}

	m.logger.Info("database connection established",
		zap.String("driver", driver),
		zap.String("tier", string(tier)),
		zap.Int("max_open", m.cfg.GetMaxOpenConns()),
		zap.Int("max_idle", m.cfg.GetMaxIdleConns()),
	)
	return db, nil
}

func openPostgres(dsn string, gormConfig *gorm.Config) (*gorm.DB, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open postgres: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("database: ping postgres: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("database: open postgres dialect: %w", err)
	}
	return db, nil
}

func openSQLite(dsn string, gormConfig *gorm.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn+"?_txlock=immediate"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("database: open sqlite: %w", err)
	}
	if err := applySQLitePragmas(db, log); err != nil {
		return nil, err
	}
	return db, nil
}

func applySQLitePragmas(db *gorm.DB, log *zap.Logger) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			log.Error("failed to apply pragma", zap.String("pragma", pragma), zap.Error(err))
			return fmt.Errorf("database: apply pragma %s: %w", pragma, err)
		}
	}
	return nil
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
