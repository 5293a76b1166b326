package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Sentinel errors for semantic (non-retriable) storage failures.
var (
	// ErrBucketExists is returned by MakeBucket when the name is taken by
	// another owner.
	ErrBucketExists = errors.New("bucket name already exists")

	// ErrBucketOwnedByYou is returned by MakeBucket when the bucket already
	// exists and belongs to the caller.
	ErrBucketOwnedByYou = errors.New("bucket already owned by you")

	// ErrNotFound is returned when a bucket or object does not exist.
	ErrNotFound = errors.New("not found")
)

// Client defines the interface for S3-compatible storage operations
type Client interface {
	// Bucket operations
	ListBuckets(ctx context.Context) ([]BucketInfo, error)
	MakeBucket(ctx context.Context, bucket string) error
	RemoveBucket(ctx context.Context, bucket string) error

	// Object operations
	ListObjectsPage(ctx context.Context, bucket, marker string, maxKeys int) (ObjectPage, error)
	GetObject(ctx context.Context, bucket, key string) (Object, error)
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts PutOptions) error
	StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, key string) error

	// Multipart operations
	NewMultipartUpload(ctx context.Context, bucket, key string, opts PutOptions) (string, error)
	UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, reader io.Reader, size int64) (string, error)
	CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) error
	AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error
}

// Object represents an object stream
type Object interface {
	io.ReadCloser
	Stat() (ObjectInfo, error)
}

// BucketInfo contains bucket metadata
type BucketInfo struct {
	Name         string
	CreationDate time.Time
}

// ObjectInfo contains object metadata
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	ContentType  string
	Metadata     map[string]string
}

// ObjectPage is one page of a marker-based object listing.
type ObjectPage struct {
	Objects []ObjectInfo
	// NextMarker is the marker for the next page; only meaningful when
	// Truncated is true.
	NextMarker string
	Truncated  bool
}

// PutOptions contains options for put operations
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// CompletedPart represents a completed multipart upload part
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// Config contains client configuration
type Config struct {
	Endpoint        string
	Region          string
	AccessKey       string
	SecretKey       string
	CredentialsFile string
	Profile         string
	Secure          bool

	// MaxRetries bounds transparent retries of transient failures.
	// Zero or negative means retry until the context is cancelled.
	MaxRetries int
	// RetryBackoff is the initial backoff between retries. Doubled per
	// attempt, capped at 30s. Zero means 500ms.
	RetryBackoff time.Duration
}
