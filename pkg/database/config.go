package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// MemoryPath selects a private in-memory database that lives as long as the
// process holds its connection.
const MemoryPath = ":memory:"

// Config holds SQLite connection settings.
type Config struct {
	DatabasePath    string        `json:"database_path"`
	MaxConnections  int           `json:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	BusyTimeout     time.Duration `json:"busy_timeout"`
}

// DefaultConfig returns an in-memory configuration.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:    MemoryPath,
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		BusyTimeout:     5 * time.Second,
	}
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("database path cannot be empty")
	}
	if c.MaxConnections <= 0 {
		return errors.New("max connections must be greater than 0")
	}
	if c.ConnMaxLifetime <= 0 {
		return errors.New("connection max lifetime must be greater than 0")
	}
	if c.ConnMaxIdleTime <= 0 {
		return errors.New("connection max idle time must be greater than 0")
	}
	if c.BusyTimeout < 0 {
		return errors.New("busy timeout cannot be negative")
	}
	return nil
}

// IsMemory reports whether the database only exists in memory.
func (c *Config) IsMemory() bool {
	return c.DatabasePath == MemoryPath || strings.Contains(c.DatabasePath, "mode=memory")
}

// DSN builds the go-sqlite3 connection string. Transactions take the write
// lock up front so read-modify-write updates cannot deadlock each other.
func (c *Config) DSN() string {
	path := c.DatabasePath
	if path == MemoryPath {
		path = "file::memory:"
	} else if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_busy_timeout=%d&_foreign_keys=on&_txlock=immediate",
		path, sep, c.BusyTimeout.Milliseconds())
}

const sqliteFilePragmas = `
	PRAGMA journal_mode = WAL;
	PRAGMA synchronous = NORMAL;
	PRAGMA temp_store = MEMORY;
`

// Open opens the database and applies connection pool settings.
// An in-memory database is pinned to one connection that is never recycled,
// otherwise each pooled connection would see its own empty database.
func Open(c *Config) (*sql.DB, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", c.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if c.IsMemory() {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	} else {
		db.SetMaxOpenConns(c.MaxConnections)
		db.SetConnMaxLifetime(c.ConnMaxLifetime)
		db.SetConnMaxIdleTime(c.ConnMaxIdleTime)
		if _, err := db.Exec(sqliteFilePragmas); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply SQLite pragmas: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}
