// Package billing records confirmed reservations for usage accounting.
// Calls are best effort: the caller path that reports delivery success never
// waits on or fails because of billing.
package billing

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Recorder is the billing collaborator consumed by the messenger.
type Recorder interface {
	// RecordReservation counts one confirmed reservation for the merchant
	// in the given month ("2006-01" format). threadRootID identifies the
	// conversation; the count is an unconditional increment.
	RecordReservation(ctx context.Context, merchantPubkey, threadRootID, month string) error
}

// RedisRecorder counts reservations in redis, one counter per merchant and
// month, and keeps the last thread root seen for traceability.
type RedisRecorder struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisRecorder creates a recorder on the given client. keyPrefix
// defaults to "billing".
func NewRedisRecorder(client *redis.Client, keyPrefix string) *RedisRecorder {
	if keyPrefix == "" {
		keyPrefix = "billing"
	}
	return &RedisRecorder{client: client, keyPrefix: keyPrefix}
}

// RecordReservation increments the merchant's monthly counter.
func (r *RedisRecorder) RecordReservation(ctx context.Context, merchantPubkey, threadRootID, month string) error {
	key := fmt.Sprintf("%s:%s:%s", r.keyPrefix, merchantPubkey, month)
	pipe := r.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Set(ctx, key+":last_thread", threadRootID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record reservation: %w", err)
	}
	return nil
}

// Count returns the merchant's counter for a month. Missing keys are zero.
func (r *RedisRecorder) Count(ctx context.Context, merchantPubkey, month string) (int64, error) {
	key := fmt.Sprintf("%s:%s:%s", r.keyPrefix, merchantPubkey, month)
	n, err := r.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read reservation count: %w", err)
	}
	return n, nil
}

// NopRecorder discards every record. Used when billing is not configured.
type NopRecorder struct{}

func (NopRecorder) RecordReservation(context.Context, string, string, string) error {
	return nil
}
