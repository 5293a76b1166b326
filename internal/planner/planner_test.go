package planner_test

import (
	"context"
	"errors"
	"testing"

	"s3migrate/internal/metrics"
	"s3migrate/internal/planner"
	"s3migrate/internal/storage/storagetest"
	"s3migrate/internal/transfer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const chunkSize = 5 * 1024 * 1024

func newPlanner(src, dst *storagetest.FakeClient, cfg planner.Config) *planner.Planner {
	if cfg.MaxSourceKeys == 0 {
		cfg.MaxSourceKeys = 1000000
	}

	collector := metrics.New()
	transferer := transfer.NewTransferer(src, dst, transfer.Config{
		ChunkSize:       chunkSize,
		PartConcurrency: 4,
	}, collector, zap.NewNop())

	return planner.New(src, dst, transferer, nil, collector, zap.NewNop(), cfg)
}

func payload(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestRunMigratesAllBuckets(t *testing.T) {
	src := storagetest.NewFakeClient()
	dst := storagetest.NewFakeClient()

	src.PutBytes("alpha", "a1", []byte("one"))
	src.PutBytes("alpha", "a2", []byte("two"))
	src.PutBytes("beta", "b1", []byte("three"))

	err := newPlanner(src, dst, planner.Config{ContinueOnError: true}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a1", "a2"}, dst.Keys("alpha"))
	assert.Equal(t, []string{"b1"}, dst.Keys("beta"))
}

func TestRunIsIdempotent(t *testing.T) {
	src := storagetest.NewFakeClient()
	dst := storagetest.NewFakeClient()

	src.PutBytes("alpha", "a1", []byte("one"))
	src.PutBytes("alpha", "a2", []byte("two"))

	p := newPlanner(src, dst, planner.Config{ContinueOnError: true})
	require.NoError(t, p.Run(context.Background()))

	firstRunPuts := dst.PutCalls
	assert.Equal(t, 2, firstRunPuts)

	// Second run with no new source objects must transfer nothing
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, firstRunPuts, dst.PutCalls, "second run must perform zero transfers")
}

func TestPendingSetAcrossPaginationBoundaries(t *testing.T) {
	src := storagetest.NewFakeClient()
	dst := storagetest.NewFakeClient()

	keys := []string{"k01", "k02", "k03", "k04", "k05", "k06", "k07"}
	for _, k := range keys {
		src.PutBytes("alpha", k, []byte(k))
	}
	// Destination already holds every other key, listed two per page
	dst.PutBytes("alpha", "k02", []byte("k02"))
	dst.PutBytes("alpha", "k04", []byte("k04"))
	dst.PutBytes("alpha", "k06", []byte("k06"))
	dst.PageSize = 2

	err := newPlanner(src, dst, planner.Config{ContinueOnError: true}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, keys, dst.Keys("alpha"))
	// 7 source keys, 3 already present: exactly 4 single-part transfers
	assert.Equal(t, 4, dst.PutCalls)
}

func TestBucketNameConflictUsesSuffix(t *testing.T) {
	src := storagetest.NewFakeClient()
	dst := storagetest.NewFakeClient()

	src.PutBytes("alpha", "a1", []byte("one"))
	dst.ForeignBuckets["alpha"] = true

	err := newPlanner(src, dst, planner.Config{BucketSuffix: "-mig", ContinueOnError: true}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "alpha-mig"}, dst.MakeBucketCalls, "exactly one suffix retry")
	assert.Equal(t, []string{"a1"}, dst.Keys("alpha-mig"))
}

func TestBucketOwnedByYouDoesNotRetrySuffix(t *testing.T) {
	src := storagetest.NewFakeClient()
	dst := storagetest.NewFakeClient()

	src.PutBytes("alpha", "a1", []byte("one"))
	dst.PutBytes("alpha", "existing", []byte("x")) // our own pre-existing bucket

	err := newPlanner(src, dst, planner.Config{BucketSuffix: "-mig", ContinueOnError: true}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha"}, dst.MakeBucketCalls)
	assert.False(t, dst.HasBucket("alpha-mig"))
}

func TestBucketNameExhaustedIsFatal(t *testing.T) {
	src := storagetest.NewFakeClient()
	dst := storagetest.NewFakeClient()

	src.PutBytes("alpha", "a1", []byte("one"))
	src.PutBytes("zeta", "z1", []byte("z"))
	dst.ForeignBuckets["alpha"] = true
	dst.ForeignBuckets["alpha-mig"] = true

	err := newPlanner(src, dst, planner.Config{BucketSuffix: "-mig", ContinueOnError: true}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, planner.ErrBucketNameExhausted))

	// Fatal: no further buckets are attempted
	assert.False(t, dst.HasBucket("zeta"))
}

func TestBucketConflictWithoutSuffixIsFatal(t *testing.T) {
	src := storagetest.NewFakeClient()
	dst := storagetest.NewFakeClient()

	src.PutBytes("alpha", "a1", []byte("one"))
	dst.ForeignBuckets["alpha"] = true

	err := newPlanner(src, dst, planner.Config{ContinueOnError: true}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, planner.ErrNoSuffixConfigured))
}

func TestContinueOnErrorKeepsQueueGoing(t *testing.T) {
	src := storagetest.NewFakeClient()
	dst := storagetest.NewFakeClient()

	src.PutBytes("alpha", "bad", []byte("bad"))
	src.PutBytes("alpha", "good", []byte("good"))

	dst.PutObjectErr = func(bucket, key string) error {
		if key == "bad" {
			return errors.New("simulated failure")
		}
		return nil
	}

	err := newPlanner(src, dst, planner.Config{ContinueOnError: true}).Run(context.Background())
	require.Error(t, err, "the run reports the failed object")

	_, ok := dst.ObjectBytes("alpha", "good")
	assert.True(t, ok, "remaining objects still transfer after a failure")
}

func TestHaltOnErrorStopsQueue(t *testing.T) {
	src := storagetest.NewFakeClient()
	dst := storagetest.NewFakeClient()

	src.PutBytes("alpha", "bad", []byte("bad"))
	src.PutBytes("alpha", "good", []byte("good"))

	dst.PutObjectErr = func(bucket, key string) error {
		if key == "bad" {
			return errors.New("simulated failure")
		}
		return nil
	}

	err := newPlanner(src, dst, planner.Config{ContinueOnError: false}).Run(context.Background())
	require.Error(t, err)

	_, ok := dst.ObjectBytes("alpha", "good")
	assert.False(t, ok, "halt policy stops at the first failed object")
}

func TestSourceListingCap(t *testing.T) {
	src := storagetest.NewFakeClient()
	dst := storagetest.NewFakeClient()

	for _, k := range []string{"k1", "k2", "k3", "k4", "k5"} {
		src.PutBytes("alpha", k, []byte(k))
	}

	err := newPlanner(src, dst, planner.Config{MaxSourceKeys: 3, ContinueOnError: true}).Run(context.Background())
	require.NoError(t, err)

	// Only the first MaxSourceKeys keys in listing order are migrated
	assert.Equal(t, []string{"k1", "k2", "k3"}, dst.Keys("alpha"))
}

func TestEndToEndMixedSizes(t *testing.T) {
	src := storagetest.NewFakeClient()
	dst := storagetest.NewFakeClient()

	smallPayload := payload(3 * 1024 * 1024)
	bigPayload := payload(8 * 1024 * 1024)
	src.PutBytes("a", "x", smallPayload)
	src.PutBytes("a", "y", bigPayload)

	// Destination bucket "a" pre-exists with "x" already migrated
	dst.PutBytes("a", "x", smallPayload)

	err := newPlanner(src, dst, planner.Config{BucketSuffix: "-mig", ContinueOnError: true}).Run(context.Background())
	require.NoError(t, err)

	// Name stays "a": the pre-existing bucket is ours
	assert.False(t, dst.HasBucket("a-mig"))
	assert.Equal(t, []string{"x", "y"}, dst.Keys("a"))

	got, ok := dst.ObjectBytes("a", "y")
	require.True(t, ok)
	assert.Equal(t, bigPayload, got)

	// "y" went through a session (two parts: 5MiB + 3MiB); "x" was skipped
	assert.Len(t, dst.Completed, 1)
	assert.Zero(t, dst.PutCalls, "the only pending object is chunked")
}

func TestDestinationListingFailureIsFatalForBucket(t *testing.T) {
	src := storagetest.NewFakeClient()
	dst := storagetest.NewFakeClient()

	src.PutBytes("alpha", "a1", []byte("one"))

	listErr := errors.New("listing exploded")
	dst.ListObjectsErr = func(bucket string) error {
		if bucket == "alpha" {
			return listErr
		}
		return nil
	}

	err := newPlanner(src, dst, planner.Config{ContinueOnError: false}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, listErr))
}
