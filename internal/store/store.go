package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Message represents a persisted chat message, keyed by (RoomID, Seq).
type Message struct {
	RoomID string
	// RoomKind is recorded on the room row when the message creates it.
	RoomKind  string
	Seq       int64
	SenderID  string
	Body      string
	CreatedAt time.Time
}

// RoomRecord tracks the sequence counter of a room.
type RoomRecord struct {
	RoomID    string
	Kind      string
	LastSeq   int64
	CreatedAt time.Time
}

// Enrollment links a user to a course.
type Enrollment struct {
	UserID    string
	CourseID  string
	CreatedAt time.Time
}

// SequenceStore allocates per-room message sequence numbers.
type SequenceStore interface {
	// NextSequence atomically increments the room counter and returns the new value.
	// The room record is created on first use.
	NextSequence(ctx context.Context, roomID, kind string) (int64, error)

	// ReleaseSequence undoes an allocation if seq is still the room's latest value.
	// Returns false when the counter has moved on.
	ReleaseSequence(ctx context.Context, roomID string, seq int64) (bool, error)

	// LastSequence returns the current counter value, 0 for unknown rooms.
	LastSequence(ctx context.Context, roomID string) (int64, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message. Saving the same (room, seq) twice is a no-op.
	SaveMessage(ctx context.Context, msg *Message) error

	// MessageExists reports whether (roomID, seq) has been persisted.
	MessageExists(ctx context.Context, roomID string, seq int64) (bool, error)

	// ListRecent returns the newest limit messages of a room in ascending order.
	ListRecent(ctx context.Context, roomID string, limit int) ([]*Message, error)

	// ListAfterSeq returns up to limit messages with seq > afterSeq in ascending order.
	ListAfterSeq(ctx context.Context, roomID string, afterSeq int64, limit int) ([]*Message, error)

	// ListAfterTime returns up to limit messages created strictly after since, ascending.
	ListAfterTime(ctx context.Context, roomID string, since time.Time, limit int) ([]*Message, error)

	// PurgeMessages removes every message of a room. The room counter is kept
	// so ids are never reissued.
	PurgeMessages(ctx context.Context, roomID string) error

	// GetRoom retrieves the room record.
	GetRoom(ctx context.Context, roomID string) (*RoomRecord, error)
}

// EnrollmentStore answers course membership questions owned by the course layer.
type EnrollmentStore interface {
	// Enroll records that userID takes courseID. Enrolling twice is a no-op.
	Enroll(ctx context.Context, userID, courseID string) error

	// IsEnrolled checks if userID is enrolled in courseID.
	IsEnrolled(ctx context.Context, userID, courseID string) (bool, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	SequenceStore
	MessageStore
	EnrollmentStore

	// Close closes the underlying database connection.
	Close() error
}
