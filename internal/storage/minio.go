package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const maxRetryBackoff = 30 * time.Second

// MinIOClient implements the Client interface using minio-go. Every
// operation retries transparently on transient failures; semantic errors
// (name conflicts, not-found) are returned immediately.
type MinIOClient struct {
	client       *minio.Client
	core         *minio.Core
	region       string
	maxRetries   int
	retryBackoff time.Duration
}

// NewMinIOClient creates a new MinIO client
func NewMinIOClient(cfg Config) (*MinIOClient, error) {
	// Clean and validate endpoint
	endpoint, secure, err := cleanEndpoint(cfg.Endpoint, cfg.Secure)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	creds, err := buildCredentials(cfg)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: secure,
		Region: cfg.Region,
		// Path-style addressing for non-AWS providers
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, err
	}

	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	return &MinIOClient{
		client:       client,
		core:         &minio.Core{Client: client},
		region:       cfg.Region,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: backoff,
	}, nil
}

func buildCredentials(cfg Config) (*credentials.Credentials, error) {
	if cfg.CredentialsFile != "" {
		// AWS-format credentials file ([profile] / aws_access_key_id / ...)
		return credentials.NewFileAWSCredentials(cfg.CredentialsFile, cfg.Profile), nil
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("either a credentials file or an access/secret key pair is required")
	}
	return credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""), nil
}

// cleanEndpoint reduces an endpoint to host:port form. A URL scheme, when
// present, decides the TLS mode and overrides the configured one.
func cleanEndpoint(endpoint string, secure bool) (string, bool, error) {
	if endpoint == "" {
		return "", false, fmt.Errorf("endpoint cannot be empty")
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if strings.Contains(endpoint, "/") {
			return "", false, fmt.Errorf("endpoint contains path but no protocol")
		}
		return endpoint, secure, nil
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("failed to parse endpoint URL: %w", err)
	}

	if parsedURL.Path != "" && parsedURL.Path != "/" {
		return "", false, fmt.Errorf("endpoint URL cannot have paths, only host:port is allowed (got path: %s)", parsedURL.Path)
	}

	return parsedURL.Host, parsedURL.Scheme == "https", nil
}

// ListBuckets lists all buckets at the endpoint
func (c *MinIOClient) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	var buckets []BucketInfo
	err := c.withRetry(ctx, func() error {
		infos, err := c.client.ListBuckets(ctx)
		if err != nil {
			return err
		}
		buckets = make([]BucketInfo, 0, len(infos))
		for _, b := range infos {
			buckets = append(buckets, BucketInfo{Name: b.Name, CreationDate: b.CreationDate})
		}
		return nil
	})
	return buckets, err
}

// MakeBucket creates a bucket. Name conflicts surface as ErrBucketExists
// or ErrBucketOwnedByYou and are never retried.
func (c *MinIOClient) MakeBucket(ctx context.Context, bucket string) error {
	return c.withRetry(ctx, func() error {
		err := c.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.region})
		return mapSemanticError(err)
	})
}

// RemoveBucket deletes an empty bucket
func (c *MinIOClient) RemoveBucket(ctx context.Context, bucket string) error {
	return c.withRetry(ctx, func() error {
		return mapSemanticError(c.client.RemoveBucket(ctx, bucket))
	})
}

// ListObjectsPage lists one page of object keys starting after marker
func (c *MinIOClient) ListObjectsPage(ctx context.Context, bucket, marker string, maxKeys int) (ObjectPage, error) {
	var page ObjectPage
	err := c.withRetry(ctx, func() error {
		result, err := c.core.ListObjects(bucket, "", marker, "", maxKeys)
		if err != nil {
			return mapSemanticError(err)
		}

		page = ObjectPage{
			Objects:    make([]ObjectInfo, 0, len(result.Contents)),
			NextMarker: result.NextMarker,
			Truncated:  result.IsTruncated,
		}
		for _, obj := range result.Contents {
			page.Objects = append(page.Objects, ObjectInfo{
				Key:          obj.Key,
				Size:         obj.Size,
				ETag:         obj.ETag,
				LastModified: obj.LastModified,
				ContentType:  obj.ContentType,
			})
		}

		// Without a delimiter some providers omit NextMarker; the last
		// returned key serves as the marker then.
		if page.Truncated && page.NextMarker == "" && len(page.Objects) > 0 {
			page.NextMarker = page.Objects[len(page.Objects)-1].Key
		}
		return nil
	})
	return page, err
}

// GetObject retrieves an object stream
func (c *MinIOClient) GetObject(ctx context.Context, bucket, key string) (Object, error) {
	obj, err := c.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapSemanticError(err)
	}
	return &minioObject{obj}, nil
}

// PutObject uploads an object. Seekable readers are rewound before each
// retry attempt; non-seekable bodies get a single attempt.
func (c *MinIOClient) PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts PutOptions) error {
	putOpts := minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	}

	seeker, seekable := reader.(io.Seeker)
	return c.withRetryBody(ctx, seekable, func() error {
		if seekable {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return err
			}
		}
		_, err := c.client.PutObject(ctx, bucket, key, reader, size, putOpts)
		return mapSemanticError(err)
	})
}

// StatObject gets object metadata
func (c *MinIOClient) StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	var info ObjectInfo
	err := c.withRetry(ctx, func() error {
		stat, err := c.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
		if err != nil {
			return mapSemanticError(err)
		}
		info = ObjectInfo{
			Key:          stat.Key,
			Size:         stat.Size,
			ETag:         stat.ETag,
			LastModified: stat.LastModified,
			ContentType:  stat.ContentType,
			Metadata:     stat.UserMetadata,
		}
		return nil
	})
	return info, err
}

// RemoveObject deletes an object
func (c *MinIOClient) RemoveObject(ctx context.Context, bucket, key string) error {
	return c.withRetry(ctx, func() error {
		return mapSemanticError(c.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}))
	})
}

// NewMultipartUpload initiates a multipart upload
func (c *MinIOClient) NewMultipartUpload(ctx context.Context, bucket, key string, opts PutOptions) (string, error) {
	putOpts := minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	}

	var uploadID string
	err := c.withRetry(ctx, func() error {
		id, err := c.core.NewMultipartUpload(ctx, bucket, key, putOpts)
		if err != nil {
			return mapSemanticError(err)
		}
		uploadID = id
		return nil
	})
	return uploadID, err
}

// UploadPart uploads a part
func (c *MinIOClient) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, reader io.Reader, size int64) (string, error) {
	seeker, seekable := reader.(io.Seeker)

	var etag string
	err := c.withRetryBody(ctx, seekable, func() error {
		if seekable {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return err
			}
		}
		part, err := c.core.PutObjectPart(ctx, bucket, key, uploadID, partNumber, reader, size, minio.PutObjectPartOptions{})
		if err != nil {
			return mapSemanticError(err)
		}
		etag = part.ETag
		return nil
	})
	return etag, err
}

// CompleteMultipartUpload completes a multipart upload
func (c *MinIOClient) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) error {
	minioParts := make([]minio.CompletePart, len(parts))
	for i, part := range parts {
		minioParts[i] = minio.CompletePart{
			PartNumber: part.PartNumber,
			ETag:       part.ETag,
		}
	}

	return c.withRetry(ctx, func() error {
		_, err := c.core.CompleteMultipartUpload(ctx, bucket, key, uploadID, minioParts, minio.PutObjectOptions{})
		return mapSemanticError(err)
	})
}

// AbortMultipartUpload aborts a multipart upload
func (c *MinIOClient) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	return c.withRetry(ctx, func() error {
		return mapSemanticError(c.core.AbortMultipartUpload(ctx, bucket, key, uploadID))
	})
}

// withRetry runs op, retrying transient failures with exponential backoff.
// With MaxRetries <= 0 it keeps retrying until the context is cancelled.
func (c *MinIOClient) withRetry(ctx context.Context, op func() error) error {
	return c.withRetryBody(ctx, true, op)
}

func (c *MinIOClient) withRetryBody(ctx context.Context, retriable bool, op func() error) error {
	backoff := c.retryBackoff

	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !retriable || !isTransient(err) {
			return err
		}
		if c.maxRetries > 0 && attempt >= c.maxRetries {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
	}
}

// mapSemanticError converts provider error codes into sentinel errors so
// callers can branch without string matching.
func mapSemanticError(err error) error {
	if err == nil {
		return nil
	}

	switch minio.ToErrorResponse(err).Code {
	case "BucketAlreadyExists":
		return fmt.Errorf("%w: %v", ErrBucketExists, err)
	case "BucketAlreadyOwnedByYou":
		return fmt.Errorf("%w: %v", ErrBucketOwnedByYou, err)
	case "NoSuchBucket", "NoSuchKey":
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	return err
}

// isTransient classifies errors worth retrying: network failures,
// throttling and server-side 5xx responses.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable", "Throttling", "ThrottlingException":
		return true
	}
	if resp.StatusCode >= 500 || resp.StatusCode == 429 {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "temporary") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "dns") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "eof")
}

// minioObject wraps minio.Object to implement our Object interface
type minioObject struct {
	*minio.Object
}

func (o *minioObject) Stat() (ObjectInfo, error) {
	info, err := o.Object.Stat()
	if err != nil {
		return ObjectInfo{}, err
	}

	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ETag:         info.ETag,
		LastModified: info.LastModified,
		ContentType:  info.ContentType,
		Metadata:     info.UserMetadata,
	}, nil
}
