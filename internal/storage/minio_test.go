package storage

import (
	"errors"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		endpoint   string
		secure     bool
		wantHost   string
		wantSecure bool
		wantErr    bool
	}{
		{"host port", "minio.local:9000", false, "minio.local:9000", false, false},
		{"host port secure flag", "minio.local:9000", true, "minio.local:9000", true, false},
		{"http url", "http://minio.local:9000", true, "minio.local:9000", false, false},
		{"https url", "https://s3.wasabisys.com", false, "s3.wasabisys.com", true, false},
		{"url with path", "https://minio.local:9000/bucket", false, "", false, true},
		{"bare path no scheme", "minio.local/path", false, "", false, true},
		{"empty", "", false, "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, secure, err := cleanEndpoint(tt.endpoint, tt.secure)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantSecure, secure)
		})
	}
}

func TestMapSemanticError(t *testing.T) {
	assert.NoError(t, mapSemanticError(nil))

	err := mapSemanticError(minio.ErrorResponse{Code: "BucketAlreadyExists", Message: "taken"})
	assert.True(t, errors.Is(err, ErrBucketExists))

	err = mapSemanticError(minio.ErrorResponse{Code: "BucketAlreadyOwnedByYou"})
	assert.True(t, errors.Is(err, ErrBucketOwnedByYou))

	err = mapSemanticError(minio.ErrorResponse{Code: "NoSuchKey"})
	assert.True(t, errors.Is(err, ErrNotFound))

	err = mapSemanticError(minio.ErrorResponse{Code: "NoSuchBucket"})
	assert.True(t, errors.Is(err, ErrNotFound))

	// Unknown codes pass through untouched
	plain := errors.New("boom")
	assert.Equal(t, plain, mapSemanticError(plain))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, isTransient(nil))

	// Throttling and server-side failures are retriable
	assert.True(t, isTransient(minio.ErrorResponse{Code: "SlowDown"}))
	assert.True(t, isTransient(minio.ErrorResponse{Code: "RequestTimeout"}))
	assert.True(t, isTransient(minio.ErrorResponse{Code: "InternalError"}))
	assert.True(t, isTransient(minio.ErrorResponse{StatusCode: http.StatusServiceUnavailable}))
	assert.True(t, isTransient(minio.ErrorResponse{StatusCode: http.StatusTooManyRequests}))

	// Network-shaped errors are retriable
	assert.True(t, isTransient(errors.New("dial tcp: connection refused")))
	assert.True(t, isTransient(errors.New("read: request timeout exceeded")))

	// Semantic errors are not
	assert.False(t, isTransient(minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}))
	assert.False(t, isTransient(errors.New("bucket name invalid")))
}
