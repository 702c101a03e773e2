package billing

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T) (*RedisRecorder, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRecorder(client, ""), mr
}

func TestRecordReservationIncrements(t *testing.T) {
	r, _ := newTestRecorder(t)
	ctx := context.Background()

	require.NoError(t, r.RecordReservation(ctx, "merchant-pk", "root-1", "2024-06"))
	require.NoError(t, r.RecordReservation(ctx, "merchant-pk", "root-2", "2024-06"))

	n, err := r.Count(ctx, "merchant-pk", "2024-06")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRecordReservationSeparatesMonths(t *testing.T) {
	r, _ := newTestRecorder(t)
	ctx := context.Background()

	require.NoError(t, r.RecordReservation(ctx, "merchant-pk", "root-1", "2024-06"))
	require.NoError(t, r.RecordReservation(ctx, "merchant-pk", "root-2", "2024-07"))

	june, err := r.Count(ctx, "merchant-pk", "2024-06")
	require.NoError(t, err)
	july, err := r.Count(ctx, "merchant-pk", "2024-07")
	require.NoError(t, err)
	assert.Equal(t, int64(1), june)
	assert.Equal(t, int64(1), july)
}

func TestCountMissingKeyIsZero(t *testing.T) {
	r, _ := newTestRecorder(t)

	n, err := r.Count(context.Background(), "unknown", "2024-06")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecordReservationNotIdempotent(t *testing.T) {
	// Recording the same thread twice double-counts: there is no dedup key
	// beyond (merchant, month). Callers must not retry a reported success.
	r, _ := newTestRecorder(t)
	ctx := context.Background()

	require.NoError(t, r.RecordReservation(ctx, "merchant-pk", "root-1", "2024-06"))
	require.NoError(t, r.RecordReservation(ctx, "merchant-pk", "root-1", "2024-06"))

	n, err := r.Count(ctx, "merchant-pk", "2024-06")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestNopRecorder(t *testing.T) {
	assert.NoError(t, NopRecorder{}.RecordReservation(context.Background(), "m", "r", "2024-06"))
}
