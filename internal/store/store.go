package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"classhub/pkg/database"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// Store implements the persistence collaborator on SQLite. Reads run
// concurrently through the pool; all writes funnel through a single writer
// goroutine, which SQLite's locking model rewards.
type Store struct {
	db           *sql.DB
	config       *database.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // guards closed
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewStore opens the database, applies the schema, and starts the writer
// goroutine.
func NewStore(config *database.Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := database.InitSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			err := op.operation(s.db)
			if err != nil {
				// One retry after a short pause covers transient lock
				// contention; a second failure is surfaced to the caller.
				log.Printf("database write failed, retrying: %v", err)
				time.Sleep(250 * time.Millisecond)
				err = op.operation(s.db)
			}
			op.result <- err
		case <-s.shutdown:
			return
		}
	}
}

func (s *Store) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
		select {
		case err := <-result:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-s.shutdown:
		return ErrStoreClosed
	}
}

// SaveMessage persists one chat message.
func (s *Store) SaveMessage(ctx context.Context, msg *types.ChatMessage) error {
	if msg == nil {
		return ErrNilMessage
	}
	return s.executeWrite(ctx, func(db *sql.DB) error {
		query := `
			INSERT INTO messages (id, room_id, sender_id, content, created_at)
			VALUES (?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			msg.ID, msg.RoomID, msg.SenderID, msg.Content, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
}

// RoomHistory returns the limit most recent messages for a room in
// ascending timestamp order.
func (s *Store) RoomHistory(ctx context.Context, roomID string, limit int) ([]*types.ChatMessage, error) {
	query := `
		SELECT id, room_id, sender_id, content, created_at FROM (
			SELECT id, room_id, sender_id, content, created_at
			FROM messages
			WHERE room_id = ?
			ORDER BY created_at DESC
			LIMIT ?
		) ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var messages []*types.ChatMessage
	for rows.Next() {
		var msg types.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// ClassRoster returns the identities enrolled in a class.
func (s *Store) ClassRoster(ctx context.Context, classID string) ([]types.Member, error) {
	query := `
		SELECT identity_id, role
		FROM enrollments
		WHERE class_id = ?
	`
	rows, err := s.db.QueryContext(ctx, query, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to query roster: %w", err)
	}
	defer rows.Close()

	var members []types.Member
	for rows.Next() {
		var m types.Member
		if err := rows.Scan(&m.IdentityID, &m.Role); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, interfaces.ErrClassNotFound
	}
	return members, nil
}

// AddEnrollment records a class membership. The roster is owned by the CRUD
// backend in deployment; this write path exists for tooling and tests.
func (s *Store) AddEnrollment(ctx context.Context, classID, identityID, role string) error {
	return s.executeWrite(ctx, func(db *sql.DB) error {
		query := `
			INSERT OR REPLACE INTO enrollments (class_id, identity_id, role)
			VALUES (?, ?, ?)
		`
		if _, err := db.ExecContext(ctx, query, classID, identityID, role); err != nil {
			return fmt.Errorf("failed to insert enrollment: %w", err)
		}
		return nil
	})
}

// HealthCheck verifies connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close stops the writer goroutine and closes the database. Idempotent.
func (s *Store) Close() error {
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
