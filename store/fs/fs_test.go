package fs

import (
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiddenface/hiddenface/store"
)

func newTestStore(t *testing.T) (*File, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	f, err := New(Config{Path: path}, log.New(os.Stderr, "", log.LstdFlags))
	require.NoError(t, err)
	return f, path
}

func TestRoomRoundtrip(t *testing.T) {
	f, _ := newTestStore(t)

	r := store.Room{ID: "r1", Name: "den", Capacity: 8, CreatedAt: time.Now()}
	require.NoError(t, f.AddRoom(r, time.Hour))

	got, err := f.GetRoom("r1")
	require.NoError(t, err)
	assert.Equal(t, "den", got.Name)

	require.NoError(t, f.RemoveRoom("r1"))
	_, err = f.GetRoom("r1")
	assert.ErrorIs(t, err, store.ErrRoomNotFound)
}

func TestSnapshotSurvivesReload(t *testing.T) {
	f, path := newTestStore(t)

	require.NoError(t, f.AddRoom(store.Room{ID: "r1", Name: "den", Capacity: 8, CreatedAt: time.Now()}, time.Hour))
	require.NoError(t, f.Set("k", []byte("v")))
	f.save()

	// The snapshot write is asynchronous.
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	reloaded, err := New(Config{Path: path}, log.New(os.Stderr, "", log.LstdFlags))
	require.NoError(t, err)

	got, err := reloaded.GetRoom("r1")
	require.NoError(t, err)
	assert.Equal(t, "den", got.Name)

	v, err := reloaded.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestCleanupDropsExpired(t *testing.T) {
	f, _ := newTestStore(t)

	require.NoError(t, f.AddRoom(store.Room{ID: "old", CreatedAt: time.Now()}, -time.Minute))
	require.NoError(t, f.AddRoom(store.Room{ID: "fresh", CreatedAt: time.Now()}, time.Hour))

	f.cleanup()

	_, err := f.GetRoom("old")
	assert.ErrorIs(t, err, store.ErrRoomNotFound)
	_, err = f.GetRoom("fresh")
	assert.NoError(t, err)
}
