package redis

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/campuschat/internal/store/sqlite"
)

// Requires Redis running on localhost:6379.
const testRedisAddr = "localhost:6379"

func setupTestSequencer(t *testing.T, prefix string) (*Sequencer, *sqlite.SQLiteStore) {
	t.Helper()

	client := goredis.NewClient(&goredis.Options{Addr: testRedisAddr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}
	cleanupKeys(ctx, client, prefix+"*")

	floor, err := sqlite.New(":memory:")
	require.NoError(t, err)

	t.Cleanup(func() {
		cleanupKeys(ctx, client, prefix+"*")
		_ = client.Close()
		_ = floor.Close()
	})

	return NewSequencer(client, prefix, floor), floor
}

func cleanupKeys(ctx context.Context, client *goredis.Client, pattern string) {
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return
		}
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
}

func TestSequencerIncrementsPerRoom(t *testing.T) {
	seq, _ := setupTestSequencer(t, "test:seq:incr:")
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := seq.NextSequence(ctx, "course_1", "course")
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	got, err := seq.NextSequence(ctx, "course_2", "course")
	require.NoError(t, err)
	require.Equal(t, int64(1), got)
}

func TestSequencerSeedsFromDurableStore(t *testing.T) {
	seq, floor := setupTestSequencer(t, "test:seq:seed:")
	ctx := context.Background()

	for range 4 {
		_, err := floor.NextSequence(ctx, "course_1", "course")
		require.NoError(t, err)
	}

	got, err := seq.NextSequence(ctx, "course_1", "course")
	require.NoError(t, err)
	require.Equal(t, int64(5), got)
}

func TestSequencerRelease(t *testing.T) {
	seq, _ := setupTestSequencer(t, "test:seq:release:")
	ctx := context.Background()

	first, err := seq.NextSequence(ctx, "private-a-b", "private")
	require.NoError(t, err)
	second, err := seq.NextSequence(ctx, "private-a-b", "private")
	require.NoError(t, err)

	ok, err := seq.ReleaseSequence(ctx, "private-a-b", first)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = seq.ReleaseSequence(ctx, "private-a-b", second)
	require.NoError(t, err)
	require.True(t, ok)

	last, err := seq.LastSequence(ctx, "private-a-b")
	require.NoError(t, err)
	require.Equal(t, first, last)
}
