package sweep_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"s3migrate/internal/metrics"
	"s3migrate/internal/storage/storagetest"
	"s3migrate/internal/sweep"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSweeper(client *storagetest.FakeClient) *sweep.Sweeper {
	return sweep.New(client, metrics.New(), zap.NewNop())
}

func TestSweepPaginatesAndDeletesEverything(t *testing.T) {
	client := storagetest.NewFakeClient()

	// 2500 objects force at least three 1000-key pages
	for i := 0; i < 2500; i++ {
		client.PutBytes("b", fmt.Sprintf("obj-%04d", i), []byte("data"))
	}

	err := newSweeper(client).Run(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, client.ListCalls, 3, "2500 objects need at least 3 pages")
	assert.False(t, client.HasBucket("b"), "the emptied bucket must be deleted")
}

func TestSweepMultipleBuckets(t *testing.T) {
	client := storagetest.NewFakeClient()

	client.PutBytes("one", "a", []byte("x"))
	client.PutBytes("two", "b", []byte("y"))
	client.PutBytes("two", "c", []byte("z"))

	err := newSweeper(client).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, client.HasBucket("one"))
	assert.False(t, client.HasBucket("two"))
}

func TestSweepKeepsBucketOnDeleteFailure(t *testing.T) {
	client := storagetest.NewFakeClient()

	client.PutBytes("b", "stuck", []byte("x"))
	client.PutBytes("b", "ok", []byte("y"))
	client.PutBytes("other", "a", []byte("z"))

	client.RemoveObjectErr = func(bucket, key string) error {
		if key == "stuck" {
			return errors.New("delete denied")
		}
		return nil
	}

	err := newSweeper(client).Run(context.Background())
	require.Error(t, err, "the failed bucket is surfaced")

	assert.True(t, client.HasBucket("b"), "a non-empty bucket must not be deleted")
	_, stuckRemains := client.ObjectBytes("b", "stuck")
	assert.True(t, stuckRemains)

	// Failure isolation: other buckets are still swept
	assert.False(t, client.HasBucket("other"))
}

func TestSweepEmptyBucket(t *testing.T) {
	client := storagetest.NewFakeClient()

	client.PutBytes("empty", "seed", []byte("x"))
	require.NoError(t, client.RemoveObject(context.Background(), "empty", "seed"))

	err := newSweeper(client).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, client.HasBucket("empty"))
}
