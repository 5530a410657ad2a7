// Package redis provides a shared sequence counter so several relay instances
// can allocate message positions for the same room without racing.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vovakirdan/campuschat/internal/store"
)

// raiseScript lifts the counter to ARGV[1] if it is lower.
var raiseScript = goredis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local floor = tonumber(ARGV[1])
if cur < floor then
	redis.call('SET', KEYS[1], floor)
end
return 1
`)

// releaseScript decrements the counter only if it still equals ARGV[1].
var releaseScript = goredis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if cur == tonumber(ARGV[1]) then
	redis.call('DECR', KEYS[1])
	return 1
end
return 0
`)

// Sequencer allocates room sequence numbers with INCR.
// Counters are seeded from the durable store the first time a room is seen,
// so a flushed Redis never hands out a position that already has a message.
type Sequencer struct {
	client goredis.UniversalClient
	prefix string
	floor  store.SequenceStore
	seeded sync.Map // roomID -> struct{}
}

// NewSequencer creates a Redis-backed sequencer. floor may be nil.
func NewSequencer(client goredis.UniversalClient, prefix string, floor store.SequenceStore) *Sequencer {
	return &Sequencer{
		client: client,
		prefix: prefix,
		floor:  floor,
	}
}

func (s *Sequencer) key(roomID string) string {
	return s.prefix + "seq:" + roomID
}

// NextSequence atomically increments the room counter and returns the new value.
func (s *Sequencer) NextSequence(ctx context.Context, roomID, _ string) (int64, error) {
	if err := s.seed(ctx, roomID); err != nil {
		return 0, err
	}
	seq, err := s.client.Incr(ctx, s.key(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("incr room sequence: %w", err)
	}
	return seq, nil
}

// ReleaseSequence undoes an allocation if seq is still the latest value.
func (s *Sequencer) ReleaseSequence(ctx context.Context, roomID string, seq int64) (bool, error) {
	released, err := releaseScript.Run(ctx, s.client, []string{s.key(roomID)}, seq).Int64()
	if err != nil {
		return false, fmt.Errorf("release room sequence: %w", err)
	}
	return released == 1, nil
}

// LastSequence returns the current counter value.
func (s *Sequencer) LastSequence(ctx context.Context, roomID string) (int64, error) {
	raw, err := s.client.Get(ctx, s.key(roomID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			if s.floor == nil {
				return 0, nil
			}
			return s.floor.LastSequence(ctx, roomID)
		}
		return 0, fmt.Errorf("get room sequence: %w", err)
	}
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse room sequence: %w", err)
	}
	return seq, nil
}

func (s *Sequencer) seed(ctx context.Context, roomID string) error {
	if s.floor == nil {
		return nil
	}
	if _, ok := s.seeded.Load(roomID); ok {
		return nil
	}
	last, err := s.floor.LastSequence(ctx, roomID)
	if err != nil {
		return fmt.Errorf("load durable sequence: %w", err)
	}
	if err := raiseScript.Run(ctx, s.client, []string{s.key(roomID)}, last).Err(); err != nil {
		return fmt.Errorf("seed room sequence: %w", err)
	}
	s.seeded.Store(roomID, struct{}{})
	return nil
}
