package transfer_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"s3migrate/internal/metrics"
	"s3migrate/internal/storage"
	"s3migrate/internal/storage/storagetest"
	"s3migrate/internal/transfer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const chunkSize = 5 * 1024 * 1024

func newTransferer(src, dst storage.Client) *transfer.Transferer {
	return transfer.NewTransferer(src, dst, transfer.Config{
		ChunkSize:       chunkSize,
		PartConcurrency: 4,
	}, metrics.New(), zap.NewNop())
}

// payload produces deterministic non-repeating content so reassembly
// mistakes (reordered or duplicated chunks) are caught.
func payload(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func seedObject(src *storagetest.FakeClient, bucket, key string, size int) []byte {
	data := payload(size)
	src.PutBytes(bucket, key, data)
	return data
}

func task(key string, size int) transfer.Task {
	return transfer.Task{
		SrcBucket: "src",
		DstBucket: "dst",
		Key:       key,
		Size:      int64(size),
	}
}

func TestTransferSinglePart(t *testing.T) {
	src := storagetest.NewFakeClient()
	dst := storagetest.NewFakeClient()
	dst.PutBytes("dst", "seed", nil) // ensure bucket exists
	require.NoError(t, dst.RemoveObject(context.Background(), "dst", "seed"))

	want := seedObject(src, "src", "small.bin", 3*1024*1024)

	err := newTransferer(src, dst).Transfer(context.Background(), task("small.bin", 3*1024*1024))
	require.NoError(t, err)

	got, ok := dst.ObjectBytes("dst", "small.bin")
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Empty(t, dst.Completed, "small objects must not open multipart sessions")
}

func TestTransferZeroLength(t *testing.T) {
	src := storagetest.NewFakeClient()
	dst := storagetest.NewFakeClient()
	dst.PutBytes("dst", "seed", nil)

	src.PutBytes("src", "empty", []byte{})

	err := newTransferer(src, dst).Transfer(context.Background(), task("empty", 0))
	require.NoError(t, err)

	_, ok := dst.ObjectBytes("dst", "empty")
	assert.True(t, ok)
	assert.Empty(t, dst.Completed)
}

func TestTransferChunkedTwoParts(t *testing.T) {
	src := storagetest.NewFakeClient()
	dst := storagetest.NewFakeClient()
	dst.PutBytes("dst", "seed", nil)

	// 8MiB: one full 5MiB part plus a 3MiB tail
	want := seedObject(src, "src", "big.bin", 8*1024*1024)

	err := newTransferer(src, dst).Transfer(context.Background(), task("big.bin", 8*1024*1024))
	require.NoError(t, err)

	got, ok := dst.ObjectBytes("dst", "big.bin")
	require.True(t, ok)
	assert.Equal(t, want, got, "reassembled payload must match the source byte for byte")
	assert.Len(t, dst.Completed, 1)
	assert.Empty(t, dst.Aborted)
	assert.Zero(t, dst.OpenUploads(), "no session may stay open")
}

func TestTransferChunkedExactChunkSize(t *testing.T) {
	src := storagetest.NewFakeClient()
	dst := storagetest.NewFakeClient()
	dst.PutBytes("dst", "seed", nil)

	want := seedObject(src, "src", "exact.bin", chunkSize)

	err := newTransferer(src, dst).Transfer(context.Background(), task("exact.bin", chunkSize))
	require.NoError(t, err)

	got, ok := dst.ObjectBytes("dst", "exact.bin")
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Len(t, dst.Completed, 1, "a payload of exactly the chunk size goes through a session")
}

func TestTransferChunkedManyParts(t *testing.T) {
	src := storagetest.NewFakeClient()
	dst := storagetest.NewFakeClient()
	dst.PutBytes("dst", "seed", nil)

	// 23MiB: four full parts plus a 3MiB tail
	size := 23 * 1024 * 1024
	want := seedObject(src, "src", "huge.bin", size)

	err := newTransferer(src, dst).Transfer(context.Background(), task("huge.bin", size))
	require.NoError(t, err)

	got, ok := dst.ObjectBytes("dst", "huge.bin")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestTransferPartFailureAborts(t *testing.T) {
	src := storagetest.NewFakeClient()
	dst := storagetest.NewFakeClient()
	dst.PutBytes("dst", "seed", nil)

	seedObject(src, "src", "big.bin", 12*1024*1024)

	dst.UploadPartErr = func(bucket, key string, partNumber int) error {
		if partNumber == 2 {
			return fmt.Errorf("part %d rejected", partNumber)
		}
		return nil
	}

	err := newTransferer(src, dst).Transfer(context.Background(), task("big.bin", 12*1024*1024))
	require.Error(t, err)

	var partErr *transfer.PartUploadError
	require.True(t, errors.As(err, &partErr))
	assert.Equal(t, "big.bin", partErr.Key)

	assert.Len(t, dst.Aborted, 1, "the session must be aborted")
	assert.Empty(t, dst.Completed)
	assert.Zero(t, dst.OpenUploads(), "no session may stay open after a failure")

	_, ok := dst.ObjectBytes("dst", "big.bin")
	assert.False(t, ok, "an aborted session leaves no partial object")
}

func TestTransferSessionOpenFailure(t *testing.T) {
	src := storagetest.NewFakeClient()
	dst := storagetest.NewFakeClient()
	dst.PutBytes("dst", "seed", nil)

	seedObject(src, "src", "big.bin", 8*1024*1024)
	dst.NewMultipartErr = errors.New("access denied")

	err := newTransferer(src, dst).Transfer(context.Background(), task("big.bin", 8*1024*1024))
	require.Error(t, err)

	var openErr *transfer.SessionOpenError
	require.True(t, errors.As(err, &openErr))

	assert.Empty(t, dst.Aborted, "nothing to abort when the session never opened")
	assert.Zero(t, dst.OpenUploads())
}

func TestTransferMissingSourceObject(t *testing.T) {
	src := storagetest.NewFakeClient()
	dst := storagetest.NewFakeClient()
	src.PutBytes("src", "other", []byte("x"))
	dst.PutBytes("dst", "seed", nil)

	err := newTransferer(src, dst).Transfer(context.Background(), task("gone.bin", 123))
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}
