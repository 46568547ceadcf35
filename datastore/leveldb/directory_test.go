package leveldb

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"opinionnet/datamodel/address"
)

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	d, err := NewDirectory()
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestDirectoryPutGet(t *testing.T) {
	d := newTestDirectory(t)

	_, ok, err := d.Get("alice")
	require.NoError(t, err)
	require.False(t, ok)

	rec := address.Record{Address: "192.168.1.10", Port: 4000}
	require.NoError(t, d.Put("alice", rec))

	got, ok, err := d.Get("alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec, got)
}

func TestDirectoryLastWriteWins(t *testing.T) {
	d := newTestDirectory(t)
	require.NoError(t, d.Put("alice", address.Record{Address: "10.0.0.1", Port: 4000}))
	require.NoError(t, d.Put("alice", address.Record{Address: "10.0.0.9", Port: 4001}))

	got, ok, err := d.Get("alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, address.Record{Address: "10.0.0.9", Port: 4001}, got)
}

func TestDirectoryEnumerate(t *testing.T) {
	d := newTestDirectory(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Put(fmt.Sprintf("user%d", i), address.Record{Address: "127.0.0.1", Port: 5000 + i}))
	}

	entries, err := d.Enumerate()
	require.NoError(t, err)
	require.Len(t, entries, 5)
	// Keys share a prefix and LevelDB iterates in key order
	require.Equal(t, "user0", entries[0].UserID)
	require.Equal(t, 5004, entries[4].Record.Port)
}

func TestDirectoryConcurrentAccess(t *testing.T) {
	d := newTestDirectory(t)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := fmt.Sprintf("user%d", w)
			for i := 1; i <= 50; i++ {
				if err := d.Put(id, address.Record{Address: "127.0.0.1", Port: i}); err != nil {
					t.Errorf("put: %v", err)
					return
				}
				rec, ok, err := d.Get(id)
				if err != nil || !ok || rec.Port != i {
					t.Errorf("%s: got %+v (ok=%v, err=%v) after writing %d", id, rec, ok, err, i)
					return
				}
			}
		}(w)
	}
	wg.Wait()
}
