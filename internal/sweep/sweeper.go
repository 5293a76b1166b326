package sweep

import (
	"context"
	"fmt"

	"s3migrate/internal/metrics"
	"s3migrate/internal/storage"

	"go.uber.org/zap"
)

// listPageSize is the page size used when enumerating objects.
const listPageSize = 1000

// Sweeper deletes every object and bucket at one endpoint. Each bucket
// fails or succeeds independently; a bucket that could not be emptied is
// left in place and reported.
type Sweeper struct {
	client  storage.Client
	metrics *metrics.Collector
	logger  *zap.Logger
}

// New creates a sweeper against one storage client
func New(client storage.Client, collector *metrics.Collector, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		client:  client,
		metrics: collector,
		logger:  logger,
	}
}

// Run enumerates all buckets and deletes their objects, then the buckets
// themselves.
func (s *Sweeper) Run(ctx context.Context) error {
	buckets, err := s.client.ListBuckets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list buckets: %w", err)
	}

	s.logger.Info("Sweeping endpoint", zap.Int("buckets", len(buckets)))

	var failed int
	for _, bucket := range buckets {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := s.sweepBucket(ctx, bucket.Name); err != nil {
			failed++
			s.logger.Error("Bucket sweep failed, continuing",
				zap.String("bucket", bucket.Name),
				zap.Error(err),
			)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d buckets could not be swept", failed, len(buckets))
	}

	s.logger.Info("Sweep completed", zap.Int("buckets", len(buckets)))
	return nil
}

// sweepBucket deletes all objects in the bucket, then the bucket itself.
// Any object-delete failure leaves the bucket in place.
func (s *Sweeper) sweepBucket(ctx context.Context, bucket string) error {
	var deleted, deleteFailed int
	marker := ""

	for {
		page, err := s.client.ListObjectsPage(ctx, bucket, marker, listPageSize)
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Objects {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if err := s.client.RemoveObject(ctx, bucket, obj.Key); err != nil {
				deleteFailed++
				s.logger.Error("Failed to delete object",
					zap.String("bucket", bucket),
					zap.String("key", obj.Key),
					zap.Error(err),
				)
				continue
			}

			deleted++
			if s.metrics != nil {
				s.metrics.IncSweepObjectDeleted()
			}
			s.logger.Debug("Deleted object",
				zap.String("bucket", bucket),
				zap.String("key", obj.Key),
			)
		}

		if !page.Truncated {
			break
		}
		marker = page.NextMarker
	}

	if deleteFailed > 0 {
		return fmt.Errorf("bucket %s not deleted: %d objects could not be removed", bucket, deleteFailed)
	}

	if err := s.client.RemoveBucket(ctx, bucket); err != nil {
		return fmt.Errorf("failed to delete bucket %s: %w", bucket, err)
	}

	if s.metrics != nil {
		s.metrics.IncSweepBucketDeleted()
	}
	s.logger.Info("Deleted bucket",
		zap.String("bucket", bucket),
		zap.Int("objects", deleted),
	)

	return nil
}
