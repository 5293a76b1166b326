package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"s3migrate/internal/metrics"
	"s3migrate/internal/storage"

	"go.uber.org/zap"
)

// Config contains transfer tuning
type Config struct {
	// ChunkSize is both the chunked-transfer threshold and the part size
	ChunkSize int64
	// PartConcurrency bounds concurrent part uploads within one session
	PartConcurrency int
}

// Task identifies one object to move from source to destination
type Task struct {
	SrcBucket   string
	DstBucket   string
	Key         string
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// Transferer moves single objects between two storage clients, routing by
// payload size through Select.
type Transferer struct {
	src     storage.Client
	dst     storage.Client
	config  Config
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewTransferer creates a transferer between src and dst
func NewTransferer(src, dst storage.Client, config Config, collector *metrics.Collector, logger *zap.Logger) *Transferer {
	return &Transferer{
		src:     src,
		dst:     dst,
		config:  config,
		metrics: collector,
		logger:  logger,
	}
}

// Transfer copies one object to the destination. Small payloads go up in
// a single put; payloads of at least ChunkSize bytes run through a
// multipart session that either completes or aborts, never stays open.
func (t *Transferer) Transfer(ctx context.Context, task Task) error {
	srcObj, err := t.src.GetObject(ctx, task.SrcBucket, task.Key)
	if err != nil {
		return fmt.Errorf("failed to get source object: %w", err)
	}
	defer srcObj.Close()

	strategy := Select(task.Size, t.config.ChunkSize)
	t.logger.Debug("Transferring object",
		zap.String("key", task.Key),
		zap.Int64("size", task.Size),
		zap.String("strategy", strategy.String()),
	)

	if strategy == SinglePart {
		return t.uploadSingle(ctx, task, srcObj)
	}

	return t.uploadChunked(ctx, task, srcObj)
}

func (t *Transferer) uploadSingle(ctx context.Context, task Task, reader io.Reader) error {
	// Buffer the payload (< ChunkSize by selection) so the storage layer
	// can replay it across retries.
	payload := make([]byte, task.Size)
	if _, err := io.ReadFull(reader, payload); err != nil {
		return fmt.Errorf("failed to read source payload for %s: %w", task.Key, err)
	}

	return t.dst.PutObject(ctx, task.DstBucket, task.Key, bytes.NewReader(payload), task.Size, t.putOptions(task))
}

func (t *Transferer) uploadChunked(ctx context.Context, task Task, reader io.Reader) error {
	uploadID, err := t.dst.NewMultipartUpload(ctx, task.DstBucket, task.Key, t.putOptions(task))
	if err != nil {
		return &SessionOpenError{Bucket: task.DstBucket, Key: task.Key, Err: err}
	}

	chunkSize := t.config.ChunkSize
	partCount := int((task.Size + chunkSize - 1) / chunkSize)

	// Indexed by part number, so the completion list is ordered no matter
	// which upload finishes first.
	parts := make([]storage.CompletedPart, partCount)

	var g errgroup.Group
	g.SetLimit(t.config.PartConcurrency)

	// Chunks are cut sequentially from the stream; uploads fan out up to
	// PartConcurrency. The group waits for every launched upload before
	// the complete-or-abort decision is made.
	var readErr error
	for partNum := 1; partNum <= partCount; partNum++ {
		partSize := chunkSize
		if remaining := task.Size - int64(partNum-1)*chunkSize; remaining < partSize {
			partSize = remaining
		}

		chunk := make([]byte, partSize)
		if _, err := io.ReadFull(reader, chunk); err != nil {
			readErr = fmt.Errorf("failed to read chunk %d: %w", partNum, err)
			break
		}

		partNum := partNum
		g.Go(func() error {
			etag, err := t.dst.UploadPart(ctx, task.DstBucket, task.Key, uploadID, partNum,
				bytes.NewReader(chunk), int64(len(chunk)))
			if err != nil {
				return fmt.Errorf("part %d: %w", partNum, err)
			}

			parts[partNum-1] = storage.CompletedPart{PartNumber: partNum, ETag: etag}
			if t.metrics != nil {
				t.metrics.IncPartUploaded(int64(len(chunk)))
			}
			return nil
		})
	}

	uploadErr := g.Wait()

	if readErr != nil || uploadErr != nil {
		if abortErr := t.dst.AbortMultipartUpload(ctx, task.DstBucket, task.Key, uploadID); abortErr != nil {
			t.logger.Error("Failed to abort multipart session",
				zap.String("bucket", task.DstBucket),
				zap.String("key", task.Key),
				zap.String("upload_id", uploadID),
				zap.Error(abortErr),
			)
		}
		if readErr != nil {
			return &PartUploadError{Bucket: task.DstBucket, Key: task.Key, Err: readErr}
		}
		return &PartUploadError{Bucket: task.DstBucket, Key: task.Key, Err: uploadErr}
	}

	if err := t.dst.CompleteMultipartUpload(ctx, task.DstBucket, task.Key, uploadID, parts); err != nil {
		return fmt.Errorf("failed to complete multipart upload for %s: %w", task.Key, err)
	}

	return nil
}

func (t *Transferer) putOptions(task Task) storage.PutOptions {
	contentType := task.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return storage.PutOptions{
		ContentType: contentType,
		Metadata:    task.Metadata,
	}
}
