package core

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/campuschat/internal/store"
)

// Sequencer allocates per-room message ids.
type Sequencer interface {
	NextSequence(ctx context.Context, roomID, kind string) (int64, error)
	ReleaseSequence(ctx context.Context, roomID string, seq int64) (bool, error)
	LastSequence(ctx context.Context, roomID string) (int64, error)
}

// MessageLog is the durable message history.
type MessageLog interface {
	SaveMessage(ctx context.Context, msg *store.Message) error
	MessageExists(ctx context.Context, roomID string, seq int64) (bool, error)
	ListRecent(ctx context.Context, roomID string, limit int) ([]*store.Message, error)
	ListAfterSeq(ctx context.Context, roomID string, afterSeq int64, limit int) ([]*store.Message, error)
	ListAfterTime(ctx context.Context, roomID string, since time.Time, limit int) ([]*store.Message, error)
	PurgeMessages(ctx context.Context, roomID string) error
}

// Relay commits messages durably before they are broadcast.
type Relay struct {
	messages MessageLog
	seq      Sequencer
	attempts int
	backoff  time.Duration
	log      *zerolog.Logger
}

// NewRelay builds a relay. attempts bounds each storage call including the first try.
func NewRelay(messages MessageLog, seq Sequencer, attempts int, initialBackoff time.Duration, logger *zerolog.Logger) *Relay {
	if attempts < 1 {
		attempts = 1
	}
	return &Relay{
		messages: messages,
		seq:      seq,
		attempts: attempts,
		backoff:  initialBackoff,
		log:      logger,
	}
}

// Commit assigns msg its room sequence number and persists it. On success msg
// is marked persisted. On failure the id is handed back when nothing else has
// been allocated after it, so the room keeps a gap-free sequence.
//
// The caller must hold the room's send lock.
func (r *Relay) Commit(ctx context.Context, kind RoomKind, msg *Message) error {
	// A disconnecting sender must not abandon a half-committed message.
	ctx = context.WithoutCancel(ctx)
	msg.DeliveryState = DeliveryPending

	// An allocation that failed may still have advanced the counter. Nothing
	// else moves it while the send lock is held, so a counter one past
	// before is an id this call owns.
	before, beforeErr := r.seq.LastSequence(ctx, msg.RoomID)

	var seq int64
	err := r.retry(ctx, "allocate sequence", msg.RoomID, func() error {
		var err error
		seq, err = r.seq.NextSequence(ctx, msg.RoomID, string(kind))
		if err != nil && beforeErr == nil {
			if last, lastErr := r.seq.LastSequence(ctx, msg.RoomID); lastErr == nil && last == before+1 {
				seq = last
				return nil
			}
		}
		return err
	})
	if err != nil {
		msg.DeliveryState = DeliveryFailed
		return ErrSendFailed
	}
	msg.ID = seq

	rec := msg.record(kind)
	err = r.retry(ctx, "persist message", msg.RoomID, func() error {
		return r.messages.SaveMessage(ctx, rec)
	})
	if err == nil {
		msg.DeliveryState = DeliveryPersisted
		return nil
	}

	// The last attempt may have landed even though it reported an error.
	if exists, existsErr := r.messages.MessageExists(ctx, msg.RoomID, seq); existsErr == nil && exists {
		msg.DeliveryState = DeliveryPersisted
		return nil
	}

	// released is false only if another instance allocated past seq, which
	// leaves a permanent gap; rooms are expected to be served by one instance.
	released, relErr := r.seq.ReleaseSequence(ctx, msg.RoomID, seq)
	r.log.Error().
		Err(err).
		Str("room_id", msg.RoomID).
		Int64("seq", seq).
		Bool("released", released).
		AnErr("release_err", relErr).
		Msg("message dropped after retries")

	msg.ID = 0
	msg.DeliveryState = DeliveryFailed
	return ErrSendFailed
}

func (r *Relay) retry(ctx context.Context, op, roomID string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.backoff
	b.MaxInterval = r.backoff * 16
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.attempts-1)), ctx)
	attempt := 1
	return backoff.RetryNotify(fn, policy, func(err error, wait time.Duration) {
		r.log.Warn().
			Err(err).
			Str("op", op).
			Str("room_id", roomID).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("storage call failed")
		attempt++
	})
}
