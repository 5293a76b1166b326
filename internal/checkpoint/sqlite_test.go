package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestSaveAndGetObject(t *testing.T) {
	store := newStore(t)

	record := &ObjectRecord{
		SrcBucket: "alpha",
		DstBucket: "alpha-mig",
		Key:       "photos/cat.jpg",
		Size:      1024,
		Status:    StatusCompleted,
	}
	require.NoError(t, store.SaveObject(record))

	got, err := store.GetObject("alpha", "photos/cat.jpg")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "alpha-mig", got.DstBucket)
	assert.Equal(t, int64(1024), got.Size)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestGetObjectMissing(t *testing.T) {
	store := newStore(t)

	got, err := store.GetObject("alpha", "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveObjectUpsert(t *testing.T) {
	store := newStore(t)

	record := &ObjectRecord{
		SrcBucket: "alpha",
		DstBucket: "alpha",
		Key:       "k",
		Size:      10,
		Status:    StatusFailed,
		LastError: "network down",
	}
	require.NoError(t, store.SaveObject(record))

	// The retried object overwrites the failed record
	record.Status = StatusCompleted
	record.LastError = ""
	require.NoError(t, store.SaveObject(record))

	got, err := store.GetObject("alpha", "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Empty(t, got.LastError)
}

func TestListFailed(t *testing.T) {
	store := newStore(t)

	require.NoError(t, store.SaveObject(&ObjectRecord{
		SrcBucket: "alpha", DstBucket: "alpha", Key: "ok", Size: 1, Status: StatusCompleted,
	}))
	require.NoError(t, store.SaveObject(&ObjectRecord{
		SrcBucket: "alpha", DstBucket: "alpha", Key: "bad", Size: 2, Status: StatusFailed, LastError: "boom",
	}))

	failed, err := store.ListFailed()
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "bad", failed[0].Key)
	assert.Equal(t, "boom", failed[0].LastError)
}
