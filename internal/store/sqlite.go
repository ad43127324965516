package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"codepair/pkg/database"
	"codepair/pkg/interfaces"
	"codepair/pkg/types"
)

// SQLiteStore keeps sessions in SQLite. Reads use the pool directly; every
// write is funneled through a single writer goroutine.
type SQLiteStore struct {
	db       *sql.DB
	logger   *zap.Logger
	writeCh  chan writeOperation
	shutdown chan struct{}
	wg       sync.WaitGroup
	closed   bool
	mu       sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

const selectSessionSQL = `
	SELECT id, name, language, document, created_at
	FROM sessions
	WHERE id = ?
`

// NewSQLiteStore opens the database, applies the embedded migrations and
// starts the writer goroutine.
func NewSQLiteStore(cfg *database.Config, logger *zap.Logger) (*SQLiteStore, error) {
	if cfg == nil {
		cfg = database.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if err := database.NewSchemaValidator(db).Validate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	s := &SQLiteStore{
		db:       db,
		logger:   logger,
		writeCh:  make(chan writeOperation),
		shutdown: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	logger.Info("sqlite session store ready",
		zap.String("path", cfg.DatabasePath),
		zap.Bool("memory", cfg.IsMemory()))
	return s, nil
}

func (s *SQLiteStore) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeCh:
			err := op.operation(s.db)
			if err != nil && !isDomainError(err) {
				s.logger.Warn("sqlite write failed", zap.Error(err))
			}
			op.result <- err

		case <-s.shutdown:
			s.logger.Debug("sqlite write loop shutting down")
			return
		}
	}
}

// executeWrite hands operation to the writer goroutine and waits for it.
// writeCh is unbuffered, so an accepted operation always produces a result.
func (s *SQLiteStore) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case s.writeCh <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-ctx.Done():
		return ctx.Err()
	case <-s.shutdown:
		return ErrStoreClosed
	}
}

func (s *SQLiteStore) Create(ctx context.Context, session *types.Session) error {
	return s.executeWrite(ctx, func(db *sql.DB) error {
		now := time.Now().UTC()
		_, err := db.ExecContext(ctx, `
			INSERT INTO sessions (id, name, language, document, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			session.ID,
			session.Name,
			session.Language,
			session.Document,
			session.CreatedAt.UTC(),
			now,
		)
		if err != nil {
			var sqliteErr sqlite3.Error
			if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
				return interfaces.ErrSessionExists
			}
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*types.Session, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return scanSession(s.db.QueryRowContext(ctx, selectSessionSQL, id))
}

// Update reads, mutates and writes the row inside one immediate transaction
// on the writer goroutine.
func (s *SQLiteStore) Update(ctx context.Context, id string, mutate interfaces.MutateFunc) (*types.Session, error) {
	var updated *types.Session

	err := s.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		current, err := scanSession(tx.QueryRowContext(ctx, selectSessionSQL, id))
		if err != nil {
			return err
		}

		next, err := applyMutation(current, mutate)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE sessions
			SET language = ?, document = ?, updated_at = ?
			WHERE id = ?
		`, next.Language, next.Document, time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit session update: %w", err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Close stops the writer goroutine and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()
	return s.db.Close()
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*types.Session, error) {
	var session types.Session
	err := row.Scan(
		&session.ID,
		&session.Name,
		&session.Language,
		&session.Document,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	session.CreatedAt = session.CreatedAt.UTC()
	return &session, nil
}

func isDomainError(err error) bool {
	return errors.Is(err, interfaces.ErrSessionNotFound) ||
		errors.Is(err, interfaces.ErrSessionExists) ||
		errors.Is(err, context.Canceled)
}
