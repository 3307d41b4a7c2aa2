package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIdempotencyStore struct {
	keys    map[string]struct{}
	setErr  error
	deleted []string
}

func newStubIdempotencyStore() *stubIdempotencyStore {
	return &stubIdempotencyStore{keys: map[string]struct{}{}}
}

func (s *stubIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	if _, ok := s.keys[key]; ok {
		return "1", nil
	}
	return "", errors.New("not found")
}

func (s *stubIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if s.setErr != nil {
		return false, s.setErr
	}
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = struct{}{}
	return true, nil
}

func (s *stubIdempotencyStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("sf:idempotency:%s:%s", scope, id)
}

func (s *stubIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.keys, key)
		s.deleted = append(s.deleted, key)
	}
	return nil
}

func TestIdempotencyGuardMarksFirstDelivery(t *testing.T) {
	guard, err := NewIdempotencyGuard(newStubIdempotencyStore(), time.Hour, "stripe-webhook")
	require.NoError(t, err)

	seen, err := guard.CheckAndMark(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.CheckAndMark(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestIdempotencyGuardDeleteAllowsRetry(t *testing.T) {
	store := newStubIdempotencyStore()
	guard, err := NewIdempotencyGuard(store, time.Hour, "stripe-webhook")
	require.NoError(t, err)

	_, err = guard.CheckAndMark(context.Background(), "evt_2")
	require.NoError(t, err)
	require.NoError(t, guard.Delete(context.Background(), "evt_2"))

	seen, err := guard.CheckAndMark(context.Background(), "evt_2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIdempotencyGuardRequiresEventID(t *testing.T) {
	guard, err := NewIdempotencyGuard(newStubIdempotencyStore(), time.Hour, "stripe-webhook")
	require.NoError(t, err)

	_, err = guard.CheckAndMark(context.Background(), "")
	assert.Error(t, err)
}
