package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kneutral-org/escalator/internal/catalog"
)

func TestMatcher_Match(t *testing.T) {
	m := NewMatcher()
	host := &catalog.Host{ID: 10, Name: "web-01", GroupIDs: []uint64{2, 4}}

	tests := []struct {
		name    string
		window  *Window
		matched bool
		typ     MatchType
	}{
		{"global", window("all", 0, time.Hour, nil, nil), true, MatchTypeGlobal},
		{"by host", window("h", 0, time.Hour, []uint64{9, 10}, nil), true, MatchTypeHost},
		{"by group", window("g", 0, time.Hour, nil, []uint64{4}), true, MatchTypeGroup},
		{"other host", window("h", 0, time.Hour, []uint64{11}, nil), false, ""},
		{"other group", window("g", 0, time.Hour, []uint64{11}, []uint64{7}), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := m.Match(host, tt.window)
			assert.Equal(t, tt.matched, result.Matched)
			assert.Equal(t, tt.typ, result.MatchType)
			assert.NotEmpty(t, result.Reason)
		})
	}
}

type countingStore struct {
	*MemoryStore
	calls int
	err   error
}

func (s *countingStore) ListActive(ctx context.Context, at time.Time) ([]*Window, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.MemoryStore.ListActive(ctx, at)
}

func TestChecker_Check(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, err := store.Create(ctx, window("db", 0, time.Hour, []uint64{20}, nil))
	require.NoError(t, err)
	_, err = store.Create(ctx, window("web", 0, time.Hour, nil, []uint64{2}))
	require.NoError(t, err)

	checker := NewChecker(store, zerolog.Nop())

	t.Run("host in maintenance by group", func(t *testing.T) {
		result, err := checker.Check(ctx, &catalog.Host{ID: 10, GroupIDs: []uint64{2}}, base.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, result.InMaintenance)
		assert.Equal(t, "web", result.Window.Name)
		assert.Equal(t, MatchTypeGroup, result.Match.MatchType)
	})

	t.Run("host not covered", func(t *testing.T) {
		result, err := checker.Check(ctx, &catalog.Host{ID: 30}, base.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, result.InMaintenance)
		assert.Nil(t, result.Window)
	})

	t.Run("window over", func(t *testing.T) {
		in, err := checker.HostInMaintenance(ctx, &catalog.Host{ID: 20}, base.Add(2*time.Hour))
		require.NoError(t, err)
		assert.False(t, in)
	})
}

func TestChecker_CheckAll(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, err := store.Create(ctx, window("host", 0, time.Hour, []uint64{10}, nil))
	require.NoError(t, err)
	_, err = store.Create(ctx, window("group", 0, time.Hour, nil, []uint64{2}))
	require.NoError(t, err)
	_, err = store.Create(ctx, window("other", 0, time.Hour, []uint64{11}, nil))
	require.NoError(t, err)

	checker := NewChecker(store, zerolog.Nop())
	results, err := checker.CheckAll(ctx, &catalog.Host{ID: 10, GroupIDs: []uint64{2}}, base)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, MatchTypeHost, results[0].Match.MatchType)
	assert.Equal(t, MatchTypeGroup, results[1].Match.MatchType)
}

func TestChecker_Cache(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	ctx := context.Background()
	_, err := store.Create(ctx, window("all", 0, time.Hour, nil, nil))
	require.NoError(t, err)

	checker := NewChecker(store, zerolog.Nop(), WithCacheTTL(time.Minute))
	host := &catalog.Host{ID: 10}

	for i := 0; i < 3; i++ {
		in, err := checker.HostInMaintenance(ctx, host, base)
		require.NoError(t, err)
		assert.True(t, in)
	}
	assert.Equal(t, 1, store.calls)

	_, err = checker.HostInMaintenance(ctx, host, base.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}

func TestChecker_StoreError(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore(), err: errors.New("connection reset")}
	checker := NewChecker(store, zerolog.Nop())

	_, err := checker.HostInMaintenance(context.Background(), &catalog.Host{ID: 10}, base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
