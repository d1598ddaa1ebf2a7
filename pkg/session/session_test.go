package session

import (
	"context"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var idPattern = regexp.MustCompile(`^thread-\d+-[0-9a-z]+$`)

func TestSession_FirstLoadCreatesAndPersists(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s := New(store)
	res, err := s.Init(ctx)
	require.NoError(t, err)
	require.True(t, res.Created)
	require.Regexp(t, idPattern, res.ID)
	require.Equal(t, res.ID, s.ID())

	stored, err := store.Get(ctx, StorageKey)
	require.NoError(t, err)
	require.Equal(t, res.ID, stored)

	again, err := New(store).Init(ctx)
	require.NoError(t, err)
	require.False(t, again.Created)
	require.Equal(t, res.ID, again.ID)
}

func TestSession_DeterministicID(t *testing.T) {
	s := New(NewMemoryStore(),
		WithClock(func() time.Time { return time.UnixMilli(1700000000123) }),
		WithSuffixFunc(func() string { return "abc123xyz0" }),
	)
	res, err := s.Init(context.Background())
	require.NoError(t, err)
	require.Equal(t, "thread-1700000000123-abc123xyz0", res.ID)
}

func TestSession_ClearForcesNewID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	n := 0
	s := New(store, WithSuffixFunc(func() string {
		n++
		return []string{"first", "second"}[n-1]
	}))

	first, err := s.Init(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx))
	require.Equal(t, "", s.ID())

	_, err = store.Get(ctx, StorageKey)
	require.ErrorIs(t, err, ErrNotFound)

	second, err := s.Init(ctx)
	require.NoError(t, err)
	require.True(t, second.Created)
	require.NotEqual(t, first.ID, second.ID)
}

func TestSession_FixedIDSkipsStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	res, err := New(store, WithFixedID(" thread-1-x ")).Init(ctx)
	require.NoError(t, err)
	require.Equal(t, "thread-1-x", res.ID)
	require.False(t, res.Created)

	_, err = store.Get(ctx, StorageKey)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSession_ClearOfFixedIDKeepsStoredID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, StorageKey, "thread-1-stored"))
	s := New(store, WithFixedID("thread-1-pinned"), WithSuffixFunc(func() string { return "fresh" }))

	res, err := s.Init(ctx)
	require.NoError(t, err)
	require.Equal(t, "thread-1-pinned", res.ID)

	require.NoError(t, s.Clear(ctx))
	require.Equal(t, "", s.ID())

	res, err = s.Init(ctx)
	require.NoError(t, err)
	require.True(t, res.Created)
	require.Regexp(t, `^thread-\d+-fresh$`, res.ID)

	stored, err := store.Get(ctx, StorageKey)
	require.NoError(t, err)
	require.Equal(t, "thread-1-stored", stored)
}

func TestSession_ConcurrentInitAndClear(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryStore(), WithFixedID("thread-1-pinned"))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.Init(ctx)
		}()
		go func() {
			defer wg.Done()
			_ = s.Clear(ctx)
		}()
	}
	wg.Wait()
}

type failingStore struct{ MemoryStore }

func (f *failingStore) Get(context.Context, string) (string, error) {
	return "", errors.New("disk on fire")
}

func TestSession_StoreErrorIsReturned(t *testing.T) {
	_, err := New(&failingStore{}).Init(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk on fire")
}

func TestRandomSuffix(t *testing.T) {
	for i := 0; i < 50; i++ {
		s := RandomSuffix()
		require.NotEmpty(t, s)
		require.LessOrEqual(t, len(s), 10)
		require.Regexp(t, `^[0-9a-z]+$`, s)
	}
}

func TestSession_WorksWithPersistentStores(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	fileStore, err := NewFileStore(filepath.Join(dir, "nested", "session.yaml"))
	require.NoError(t, err)

	dsn, err := SQLiteDSNForFile(filepath.Join(dir, "session.db"))
	require.NoError(t, err)
	sqliteStore, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	for name, store := range map[string]Store{"file": fileStore, "sqlite": sqliteStore} {
		t.Run(name, func(t *testing.T) {
			created, err := New(store).Init(ctx)
			require.NoError(t, err)
			require.True(t, created.Created)

			reused, err := New(store).Init(ctx)
			require.NoError(t, err)
			require.False(t, reused.Created)
			require.Equal(t, created.ID, reused.ID)
		})
	}
}
