package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"s3migrate/internal/checkpoint"
	"s3migrate/internal/metrics"
	"s3migrate/internal/storage"
	"s3migrate/internal/transfer"

	"go.uber.org/zap"
)

// listPageSize is the page size for destination and source listings.
const listPageSize = 1000

// Fatal bucket-name resolution errors. Both halt the whole run.
var (
	// ErrBucketNameExhausted means the suffixed name also conflicted.
	ErrBucketNameExhausted = errors.New("bucket name exhausted after suffix retry")

	// ErrNoSuffixConfigured means a name conflict occurred and no suffix
	// is available to retry with.
	ErrNoSuffixConfigured = errors.New("bucket name conflict and no suffix configured")
)

// Config contains planner policy
type Config struct {
	// BucketSuffix is appended on a destination name conflict. Empty
	// means a conflict is fatal.
	BucketSuffix string
	// MaxSourceKeys caps the source listing per bucket. Keys beyond the
	// cap are not migrated in this run.
	MaxSourceKeys int
	// ContinueOnError keeps the bucket queue going after a per-object or
	// per-bucket listing failure.
	ContinueOnError bool
}

// Planner walks all source buckets, resolves their destination names,
// computes the pending set against the destination listing and dispatches
// transfers one object at a time.
type Planner struct {
	src        storage.Client
	dst        storage.Client
	transferer *transfer.Transferer
	ledger     checkpoint.Store
	metrics    *metrics.Collector
	logger     *zap.Logger
	config     Config
}

// New creates a planner
func New(
	src, dst storage.Client,
	transferer *transfer.Transferer,
	ledger checkpoint.Store,
	collector *metrics.Collector,
	logger *zap.Logger,
	config Config,
) *Planner {
	return &Planner{
		src:        src,
		dst:        dst,
		transferer: transferer,
		ledger:     ledger,
		metrics:    collector,
		logger:     logger,
		config:     config,
	}
}

// Run migrates every source bucket. Re-running after an interruption is
// safe: the pending set is recomputed against the destination's current
// listing, so finished objects are skipped and unfinished ones retried.
func (p *Planner) Run(ctx context.Context) error {
	buckets, err := p.src.ListBuckets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list source buckets: %w", err)
	}

	p.logger.Info("Discovered source buckets", zap.Int("count", len(buckets)))

	var failedBuckets int
	for _, bucket := range buckets {
		if err := p.migrateBucket(ctx, bucket.Name); err != nil {
			if errors.Is(err, ErrBucketNameExhausted) || errors.Is(err, ErrNoSuffixConfigured) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !p.config.ContinueOnError {
				return err
			}

			failedBuckets++
			p.logger.Error("Bucket migration failed, continuing",
				zap.String("bucket", bucket.Name),
				zap.Error(err),
			)
		}
	}

	if failedBuckets > 0 {
		return fmt.Errorf("%d of %d buckets failed to migrate fully", failedBuckets, len(buckets))
	}

	return nil
}

func (p *Planner) migrateBucket(ctx context.Context, srcBucket string) error {
	dstBucket, err := p.resolveBucketName(ctx, srcBucket)
	if err != nil {
		return err
	}

	p.logger.Info("Migrating bucket",
		zap.String("source", srcBucket),
		zap.String("destination", dstBucket),
	)

	// Snapshot of keys already at the destination. Must be exhaustive to
	// avoid re-copying, so this listing is never capped.
	migrated, err := p.listDestinationKeys(ctx, dstBucket)
	if err != nil {
		return fmt.Errorf("failed to list destination bucket %s: %w", dstBucket, err)
	}

	objects, truncated, err := p.listSourceObjects(ctx, srcBucket)
	if err != nil {
		return fmt.Errorf("failed to list source bucket %s: %w", srcBucket, err)
	}
	if truncated {
		p.logger.Warn("Source listing hit the key cap; remaining objects are not migrated in this run",
			zap.String("bucket", srcBucket),
			zap.Int("cap", p.config.MaxSourceKeys),
		)
	}

	// Pending set: source keys minus destination keys, in source listing
	// order. Comparison is by key name only.
	pending := make([]storage.ObjectInfo, 0, len(objects))
	var pendingBytes int64
	for _, obj := range objects {
		if _, ok := migrated[obj.Key]; ok {
			p.metrics.IncSkippedWithBytes(obj.Size)
			continue
		}
		pending = append(pending, obj)
		pendingBytes += obj.Size
	}

	p.metrics.SetTotalCounts(int64(len(pending)), pendingBytes)
	p.logger.Info("Computed pending set",
		zap.String("bucket", srcBucket),
		zap.Int("source_objects", len(objects)),
		zap.Int("already_migrated", len(objects)-len(pending)),
		zap.Int("pending", len(pending)),
	)

	var failed int
	for _, obj := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := p.transferObject(ctx, srcBucket, dstBucket, obj); err != nil {
			failed++
			if !p.config.ContinueOnError {
				return err
			}
		}
	}

	p.metrics.GetProgressTracker().BucketDone()

	if failed > 0 {
		return fmt.Errorf("%d of %d objects failed in bucket %s", failed, len(pending), srcBucket)
	}

	return nil
}

// resolveBucketName creates-or-reuses the destination bucket. A name held
// by another owner triggers exactly one retry with the configured suffix.
func (p *Planner) resolveBucketName(ctx context.Context, name string) (string, error) {
	err := p.dst.MakeBucket(ctx, name)
	if err == nil || errors.Is(err, storage.ErrBucketOwnedByYou) {
		return name, nil
	}

	if !errors.Is(err, storage.ErrBucketExists) {
		return "", fmt.Errorf("failed to create destination bucket %s: %w", name, err)
	}

	if p.config.BucketSuffix == "" {
		return "", fmt.Errorf("bucket %s: %w", name, ErrNoSuffixConfigured)
	}

	suffixed := name + p.config.BucketSuffix
	p.logger.Warn("Destination bucket name taken, retrying with suffix",
		zap.String("bucket", name),
		zap.String("suffixed", suffixed),
	)

	err = p.dst.MakeBucket(ctx, suffixed)
	if err == nil || errors.Is(err, storage.ErrBucketOwnedByYou) {
		return suffixed, nil
	}

	if errors.Is(err, storage.ErrBucketExists) {
		return "", fmt.Errorf("bucket %s: %w", suffixed, ErrBucketNameExhausted)
	}

	return "", fmt.Errorf("failed to create destination bucket %s: %w", suffixed, err)
}

// listDestinationKeys paginates the destination bucket to exhaustion
func (p *Planner) listDestinationKeys(ctx context.Context, bucket string) (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	marker := ""

	for {
		page, err := p.dst.ListObjectsPage(ctx, bucket, marker, listPageSize)
		if err != nil {
			return nil, err
		}

		for _, obj := range page.Objects {
			keys[obj.Key] = struct{}{}
		}

		if !page.Truncated {
			return keys, nil
		}
		marker = page.NextMarker
	}
}

// listSourceObjects paginates the source bucket up to MaxSourceKeys,
// reporting whether the cap cut the listing short.
func (p *Planner) listSourceObjects(ctx context.Context, bucket string) ([]storage.ObjectInfo, bool, error) {
	var objects []storage.ObjectInfo
	marker := ""

	for {
		pageSize := listPageSize
		if remaining := p.config.MaxSourceKeys - len(objects); remaining < pageSize {
			pageSize = remaining
		}
		if pageSize <= 0 {
			return objects, true, nil
		}

		page, err := p.src.ListObjectsPage(ctx, bucket, marker, pageSize)
		if err != nil {
			return nil, false, err
		}

		objects = append(objects, page.Objects...)

		if !page.Truncated {
			return objects, false, nil
		}
		if len(objects) >= p.config.MaxSourceKeys {
			return objects, true, nil
		}
		marker = page.NextMarker
	}
}

func (p *Planner) transferObject(ctx context.Context, srcBucket, dstBucket string, obj storage.ObjectInfo) error {
	task := transfer.Task{
		SrcBucket:   srcBucket,
		DstBucket:   dstBucket,
		Key:         obj.Key,
		Size:        obj.Size,
		ContentType: obj.ContentType,
		Metadata:    obj.Metadata,
	}

	start := time.Now()
	err := p.transferer.Transfer(ctx, task)
	if err != nil {
		p.metrics.IncFailed()
		p.recordOutcome(srcBucket, dstBucket, obj, checkpoint.StatusFailed, err)
		p.logger.Error("Object transfer failed",
			zap.String("bucket", srcBucket),
			zap.String("key", obj.Key),
			zap.Error(err),
		)
		return fmt.Errorf("transfer %s/%s: %w", srcBucket, obj.Key, err)
	}

	p.metrics.IncSuccessWithBytes(obj.Size)
	p.metrics.ObserveDuration(time.Since(start))
	p.recordOutcome(srcBucket, dstBucket, obj, checkpoint.StatusCompleted, nil)
	p.logger.Info("Object migrated",
		zap.String("bucket", srcBucket),
		zap.String("key", obj.Key),
		zap.Int64("size", obj.Size),
		zap.Duration("duration", time.Since(start)),
	)

	return nil
}

func (p *Planner) recordOutcome(srcBucket, dstBucket string, obj storage.ObjectInfo, status checkpoint.ObjectStatus, cause error) {
	if p.ledger == nil {
		return
	}

	record := &checkpoint.ObjectRecord{
		SrcBucket: srcBucket,
		DstBucket: dstBucket,
		Key:       obj.Key,
		Size:      obj.Size,
		Status:    status,
	}
	if cause != nil {
		record.LastError = cause.Error()
	}

	if err := p.ledger.SaveObject(record); err != nil {
		p.logger.Error("Failed to record object outcome",
			zap.String("bucket", srcBucket),
			zap.String("key", obj.Key),
			zap.Error(err),
		)
	}
}
