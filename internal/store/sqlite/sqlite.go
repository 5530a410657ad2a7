package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/campuschat/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file, or ":memory:".
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Set connection pool limits
	db.SetMaxOpenConns(1) // SQLite works best with single connection
	db.SetMaxIdleConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== SequenceStore implementation ====

// NextSequence atomically increments the room counter and returns the new value.
func (s *SQLiteStore) NextSequence(ctx context.Context, roomID, kind string) (int64, error) {
	query := `
		INSERT INTO rooms (room_id, kind, last_seq, created_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(room_id) DO UPDATE SET last_seq = rooms.last_seq + 1
		RETURNING last_seq
	`
	var seq int64
	if err := s.db.QueryRowContext(ctx, query, roomID, kind, time.Now().UnixMilli()).Scan(&seq); err != nil {
		return 0, fmt.Errorf("increment room sequence: %w", err)
	}
	return seq, nil
}

// ReleaseSequence undoes an allocation if seq is still the latest value.
func (s *SQLiteStore) ReleaseSequence(ctx context.Context, roomID string, seq int64) (bool, error) {
	query := `
		UPDATE rooms SET last_seq = last_seq - 1
		WHERE room_id = ? AND last_seq = ?
	`
	result, err := s.db.ExecContext(ctx, query, roomID, seq)
	if err != nil {
		return false, fmt.Errorf("release room sequence: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return affected == 1, nil
}

// LastSequence returns the current counter value, 0 for unknown rooms.
func (s *SQLiteStore) LastSequence(ctx context.Context, roomID string) (int64, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return room.LastSeq, nil
}

// ==== MessageStore implementation ====

// SaveMessage persists a message and raises the room counter to at least msg.Seq.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	insert := `
		INSERT INTO messages (room_id, seq, sender_id, body, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(room_id, seq) DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, insert, msg.RoomID, msg.Seq, msg.SenderID, msg.Body, msg.CreatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	upsertRoom := `
		INSERT INTO rooms (room_id, kind, last_seq, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET last_seq = max(rooms.last_seq, excluded.last_seq)
	`
	if _, err := tx.ExecContext(ctx, upsertRoom, msg.RoomID, msg.RoomKind, msg.Seq, msg.CreatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("upsert room: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit message: %w", err)
	}
	return nil
}

// MessageExists reports whether (roomID, seq) has been persisted.
func (s *SQLiteStore) MessageExists(ctx context.Context, roomID string, seq int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE room_id = ? AND seq = ?`, roomID, seq).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query message: %w", err)
	}
	return true, nil
}

// ListRecent returns the newest limit messages of a room in ascending order.
func (s *SQLiteStore) ListRecent(ctx context.Context, roomID string, limit int) ([]*store.Message, error) {
	query := `
		SELECT room_id, seq, sender_id, body, created_at
		FROM messages
		WHERE room_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`
	messages, err := s.queryMessages(ctx, query, roomID, limit)
	if err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		j := len(messages) - 1 - i
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ListAfterSeq returns up to limit messages with seq > afterSeq in ascending order.
func (s *SQLiteStore) ListAfterSeq(ctx context.Context, roomID string, afterSeq int64, limit int) ([]*store.Message, error) {
	query := `
		SELECT room_id, seq, sender_id, body, created_at
		FROM messages
		WHERE room_id = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`
	return s.queryMessages(ctx, query, roomID, afterSeq, limit)
}

// ListAfterTime returns up to limit messages created strictly after since, ascending by seq.
func (s *SQLiteStore) ListAfterTime(ctx context.Context, roomID string, since time.Time, limit int) ([]*store.Message, error) {
	query := `
		SELECT room_id, seq, sender_id, body, created_at
		FROM messages
		WHERE room_id = ? AND created_at > ?
		ORDER BY seq ASC
		LIMIT ?
	`
	return s.queryMessages(ctx, query, roomID, since.UnixMilli(), limit)
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		var msg store.Message
		var createdAt int64
		if err := rows.Scan(&msg.RoomID, &msg.Seq, &msg.SenderID, &msg.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt = time.UnixMilli(createdAt).UTC()
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

// PurgeMessages removes all messages of a room. The rooms row and its
// last_seq stay in place.
func (s *SQLiteStore) PurgeMessages(ctx context.Context, roomID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE room_id = ?`, roomID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

// GetRoom retrieves the room record.
func (s *SQLiteStore) GetRoom(ctx context.Context, roomID string) (*store.RoomRecord, error) {
	query := `
		SELECT room_id, kind, last_seq, created_at
		FROM rooms
		WHERE room_id = ?
	`
	var room store.RoomRecord
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, roomID).Scan(&room.RoomID, &room.Kind, &room.LastSeq, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", roomID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	room.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &room, nil
}

// ==== EnrollmentStore implementation ====

// Enroll records that userID takes courseID.
func (s *SQLiteStore) Enroll(ctx context.Context, userID, courseID string) error {
	query := `
		INSERT INTO enrollments (user_id, course_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, course_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, userID, courseID, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

// IsEnrolled checks if userID is enrolled in courseID.
func (s *SQLiteStore) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM enrollments WHERE user_id = ? AND course_id = ?`, userID, courseID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query enrollment: %w", err)
	}
	return true, nil
}
