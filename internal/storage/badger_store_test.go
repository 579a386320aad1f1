package storage

import (
	"testing"
	"time"

	"github.com/dusk-indust/codesweep/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Compile-time check that BadgerStore satisfies the KV shape history needs.
var _ history.KV = (*BadgerStore)(nil)

func TestBadgerStore_GetSetDelete(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("k", []byte("v")))
	v, ok, err := s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, s.Delete("k"))
	_, ok, err = s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.Delete("never-existed"))
}

func TestBadgerStore_ScanStripsPrefix(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("hash:/r/a.go", []byte("1")))
	require.NoError(t, s.Set("hash:/r/b.go", []byte("2")))
	require.NoError(t, s.Set("timing:/r/a.go", []byte("3")))

	got := map[string]string{}
	require.NoError(t, s.Scan("hash:", func(k string, v []byte) error {
		got[k] = string(v)
		return nil
	}))
	assert.Equal(t, map[string]string{"/r/a.go": "1", "/r/b.go": "2"}, got)
}

func TestBadgerStore_HashesRoundTripWithDeletion(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveHashes(map[string]string{"/r/a.go": "aa", "/r/b.go": "bb"}))
	require.NoError(t, s.SaveHashes(map[string]string{"/r/b.go": "b2"}))

	got, err := s.LoadHashes()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"/r/b.go": "b2"}, got, "dropped paths must be removed")
}

func TestBadgerStore_BacksTimingStore(t *testing.T) {
	s := newTestStore(t)

	ts, err := history.NewKVTimingStore(s, 8, nil)
	require.NoError(t, err)
	ts.Set("/r/a.go", 15*time.Millisecond)

	fresh, err := history.NewKVTimingStore(s, 8, nil)
	require.NoError(t, err)
	d, ok := fresh.Get("/r/a.go")
	require.True(t, ok)
	assert.Equal(t, 15*time.Millisecond, d)
}
