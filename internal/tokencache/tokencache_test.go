package tokencache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCache_ReusesTokenUntilBufferedExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	cache := New(store)

	calls := 0
	fetch := func(context.Context) (string, time.Duration, error) {
		calls++
		return "token-" + string(rune('0'+calls)), 5 * time.Minute, nil
	}

	tok, err := cache.Token(ctx, "keycloak", fetch)
	require.NoError(t, err)
	require.Equal(t, "token-1", tok)

	now = now.Add(3*time.Minute + 59*time.Second)
	tok, err = cache.Token(ctx, "keycloak", fetch)
	require.NoError(t, err)
	require.Equal(t, "token-1", tok)

	// 60 seconds before the real expiry the cached token is dropped.
	now = now.Add(time.Second)
	tok, err = cache.Token(ctx, "keycloak", fetch)
	require.NoError(t, err)
	require.Equal(t, "token-2", tok)
	require.Equal(t, 2, calls)
}

func TestCache_ShortLivedTokensAreNotCached(t *testing.T) {
	ctx := context.Background()
	cache := New(NewMemoryStore())

	calls := 0
	fetch := func(context.Context) (string, time.Duration, error) {
		calls++
		return "short", 30 * time.Second, nil
	}

	_, err := cache.Token(ctx, "k", fetch)
	require.NoError(t, err)
	_, err = cache.Token(ctx, "k", fetch)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestCache_FetchErrorPropagates(t *testing.T) {
	boom := errors.New("upstream down")
	_, err := New(NewMemoryStore()).Token(context.Background(), "k", func(context.Context) (string, time.Duration, error) {
		return "", 0, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	cache := New(NewMemoryStore())
	calls := 0
	fetch := func(context.Context) (string, time.Duration, error) {
		calls++
		return "tok", time.Hour, nil
	}

	_, err := cache.Token(ctx, "k", fetch)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, "k"))
	_, err = cache.Token(ctx, "k", fetch)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}
