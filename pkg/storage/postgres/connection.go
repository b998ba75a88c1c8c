package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// ConnectionManager owns the PostgreSQL connection pool
type ConnectionManager struct {
	db     *sql.DB
	config ConnectionConfig
}

// NewConnectionManager opens and pings the database
func NewConnectionManager(config ConnectionConfig) (*ConnectionManager, error) {
	db, err := sql.Open("postgres", config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	cm, err := newConnectionManager(db, config)
	if err != nil {
		db.Close()
		return nil, err
	}
	return cm, nil
}

// newConnectionManager configures an already opened pool; split out so tests can
// hand in a sqlmock connection.
func newConnectionManager(db *sql.DB, config ConnectionConfig) (*ConnectionManager, error) {
	if config.MaxConns > 0 {
		db.SetMaxOpenConns(config.MaxConns)
	}
	if config.MinConns > 0 {
		db.SetMaxIdleConns(config.MinConns)
	}
	db.SetConnMaxLifetime(config.MaxLifetime)
	db.SetConnMaxIdleTime(config.MaxIdleTime)

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &ConnectionManager{db: db, config: config}, nil
}

// DB returns the connection pool
func (cm *ConnectionManager) DB() *sql.DB {
	return cm.db
}

// HealthCheck pings the database
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Stats returns pool statistics
func (cm *ConnectionManager) Stats() sql.DBStats {
	return cm.db.Stats()
}

// Close closes the pool
func (cm *ConnectionManager) Close() error {
	if err := cm.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// StartStatsRoutine reports pool statistics to record every interval until ctx is done
func (cm *ConnectionManager) StartStatsRoutine(ctx context.Context, interval time.Duration, record func(sql.DBStats)) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				record(cm.db.Stats())
			}
		}
	}()
}
