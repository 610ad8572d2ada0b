// Package db provides PostgreSQL connection handling for scanhub.
// It owns connection configuration, pool tuning, and the schema migration
// for the scheduled-scan table used by the scheduler's Postgres store.
package db

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/scanhub/scanhub/internal/errors"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnectTimeout  = 10 * time.Second
)

// Config holds database connection configuration.
type Config struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Database string `yaml:"database" json:"database"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	SSLMode  string `yaml:"ssl_mode" json:"ssl_mode"`

	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// DefaultConfig returns a default database configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		Host:            "localhost",
		Port:            5432,
		Database:        "scanhub",
		Username:        "scanhub",
		SSLMode:         "disable",
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
	}
}

// DSN assembles the connection string for lib/pq.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode,
	)
}

// Addr returns the host:port pair for logging.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DB wraps the sqlx connection pool.
type DB struct {
	*sqlx.DB
	config Config
}

// Connect opens a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg Config) (*DB, error) {
	sqlxDB, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, errors.WrapScheduleError(errors.CodeDatabaseConnection, "failed to open database", err)
	}

	sqlxDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlxDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	if err := sqlxDB.PingContext(pingCtx); err != nil {
		_ = sqlxDB.Close()
		return nil, errors.WrapScheduleError(errors.CodeDatabaseConnection,
			fmt.Sprintf("failed to connect to database at %s", cfg.Addr()), err)
	}

	return &DB{DB: sqlxDB, config: cfg}, nil
}

// Ping checks database connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.DB.Close()
}

// schedulesSchema is the table backing the scheduler's Postgres store.
const schedulesSchema = `
CREATE TABLE IF NOT EXISTS schedules (
    id              UUID PRIMARY KEY,
    target          TEXT NOT NULL,
    ports           TEXT NOT NULL DEFAULT '',
    preset          TEXT NOT NULL DEFAULT 'basic',
    flags           TEXT NOT NULL DEFAULT '',
    threads         INTEGER NOT NULL DEFAULT 0,
    run_at          TEXT NOT NULL,
    days_of_week    INTEGER[] NOT NULL DEFAULT '{}',
    active          BOOLEAN NOT NULL DEFAULT TRUE,
    next_run_time   TIMESTAMPTZ,
    last_run_status TEXT,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Migrate creates the schedules table if it does not exist.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schedulesSchema); err != nil {
		return errors.WrapScheduleError(errors.CodeDatabaseQuery, "failed to migrate schedules table", err)
	}
	return nil
}
