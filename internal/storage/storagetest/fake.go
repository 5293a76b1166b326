// Package storagetest provides an in-memory storage.Client for tests.
package storagetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"s3migrate/internal/storage"
)

// FakeClient is an in-memory implementation of storage.Client. Listing is
// marker-paginated over lexicographically sorted keys, like S3. Error
// hooks inject failures per operation.
type FakeClient struct {
	mu sync.Mutex

	buckets map[string]map[string][]byte

	// ForeignBuckets simulates names taken by another account: MakeBucket
	// on them returns storage.ErrBucketExists.
	ForeignBuckets map[string]bool

	// PageSize forces a smaller page than the caller's maxKeys when set.
	PageSize int

	uploads   map[string]*fakeUpload
	uploadSeq int

	// Error hooks
	PutObjectErr    func(bucket, key string) error
	UploadPartErr   func(bucket, key string, partNumber int) error
	RemoveObjectErr func(bucket, key string) error
	ListObjectsErr  func(bucket string) error
	NewMultipartErr error

	// Call records
	ListCalls       int
	PutCalls        int
	MakeBucketCalls []string
	Completed       []string
	Aborted         []string
}

var _ storage.Client = (*FakeClient)(nil)

type fakeUpload struct {
	bucket string
	key    string
	parts  map[int][]byte
}

// NewFakeClient creates an empty fake endpoint
func NewFakeClient() *FakeClient {
	return &FakeClient{
		buckets:        make(map[string]map[string][]byte),
		ForeignBuckets: make(map[string]bool),
		uploads:        make(map[string]*fakeUpload),
	}
}

// PutBytes seeds an object, creating the bucket if needed
func (f *FakeClient) PutBytes(bucket, key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.buckets[bucket] == nil {
		f.buckets[bucket] = make(map[string][]byte)
	}
	f.buckets[bucket][key] = data
}

// ObjectBytes returns a stored payload and whether it exists
func (f *FakeClient) ObjectBytes(bucket, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	objs, ok := f.buckets[bucket]
	if !ok {
		return nil, false
	}
	data, ok := objs[key]
	return data, ok
}

// Keys returns the sorted keys of a bucket
func (f *FakeClient) Keys(bucket string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.sortedKeysLocked(bucket)
}

// HasBucket reports whether the bucket exists
func (f *FakeClient) HasBucket(bucket string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.buckets[bucket]
	return ok
}

// OpenUploads returns the number of multipart sessions not yet completed
// or aborted.
func (f *FakeClient) OpenUploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.uploads)
}

func (f *FakeClient) sortedKeysLocked(bucket string) []string {
	objs := f.buckets[bucket]
	keys := make([]string, 0, len(objs))
	for k := range objs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ListBuckets lists all buckets sorted by name
func (f *FakeClient) ListBuckets(ctx context.Context) ([]storage.BucketInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.buckets))
	for name := range f.buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	buckets := make([]storage.BucketInfo, 0, len(names))
	for _, name := range names {
		buckets = append(buckets, storage.BucketInfo{Name: name, CreationDate: time.Now()})
	}
	return buckets, nil
}

// MakeBucket creates a bucket or reports the appropriate conflict
func (f *FakeClient) MakeBucket(ctx context.Context, bucket string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.MakeBucketCalls = append(f.MakeBucketCalls, bucket)

	if f.ForeignBuckets[bucket] {
		return fmt.Errorf("%w: %s", storage.ErrBucketExists, bucket)
	}
	if _, ok := f.buckets[bucket]; ok {
		return fmt.Errorf("%w: %s", storage.ErrBucketOwnedByYou, bucket)
	}

	f.buckets[bucket] = make(map[string][]byte)
	return nil
}

// RemoveBucket deletes an empty bucket
func (f *FakeClient) RemoveBucket(ctx context.Context, bucket string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	objs, ok := f.buckets[bucket]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, bucket)
	}
	if len(objs) > 0 {
		return fmt.Errorf("bucket %s is not empty", bucket)
	}

	delete(f.buckets, bucket)
	return nil
}

// ListObjectsPage lists one page of objects after marker
func (f *FakeClient) ListObjectsPage(ctx context.Context, bucket, marker string, maxKeys int) (storage.ObjectPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ListCalls++

	if f.ListObjectsErr != nil {
		if err := f.ListObjectsErr(bucket); err != nil {
			return storage.ObjectPage{}, err
		}
	}

	objs, ok := f.buckets[bucket]
	if !ok {
		return storage.ObjectPage{}, fmt.Errorf("%w: %s", storage.ErrNotFound, bucket)
	}

	pageSize := maxKeys
	if f.PageSize > 0 && f.PageSize < pageSize {
		pageSize = f.PageSize
	}

	var page storage.ObjectPage
	for _, key := range f.sortedKeysLocked(bucket) {
		if key <= marker {
			continue
		}
		if len(page.Objects) == pageSize {
			page.Truncated = true
			page.NextMarker = page.Objects[len(page.Objects)-1].Key
			break
		}
		page.Objects = append(page.Objects, storage.ObjectInfo{
			Key:  key,
			Size: int64(len(objs[key])),
			ETag: fmt.Sprintf("etag-%s", key),
		})
	}

	return page, nil
}

// GetObject returns a stream over the stored payload
func (f *FakeClient) GetObject(ctx context.Context, bucket, key string) (storage.Object, error) {
	data, ok := f.ObjectBytes(bucket, key)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", storage.ErrNotFound, bucket, key)
	}

	return &fakeObject{
		Reader: bytes.NewReader(data),
		info:   storage.ObjectInfo{Key: key, Size: int64(len(data))},
	}, nil
}

// PutObject stores an object
func (f *FakeClient) PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts storage.PutOptions) error {
	if f.PutObjectErr != nil {
		if err := f.PutObjectErr(bucket, key); err != nil {
			return err
		}
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: declared %d, read %d", size, len(data))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.buckets[bucket]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, bucket)
	}
	f.buckets[bucket][key] = data
	f.PutCalls++
	return nil
}

// StatObject returns object metadata
func (f *FakeClient) StatObject(ctx context.Context, bucket, key string) (storage.ObjectInfo, error) {
	data, ok := f.ObjectBytes(bucket, key)
	if !ok {
		return storage.ObjectInfo{}, fmt.Errorf("%w: %s/%s", storage.ErrNotFound, bucket, key)
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

// RemoveObject deletes an object
func (f *FakeClient) RemoveObject(ctx context.Context, bucket, key string) error {
	if f.RemoveObjectErr != nil {
		if err := f.RemoveObjectErr(bucket, key); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	objs, ok := f.buckets[bucket]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, bucket)
	}
	delete(objs, key)
	return nil
}

// NewMultipartUpload opens a multipart session
func (f *FakeClient) NewMultipartUpload(ctx context.Context, bucket, key string, opts storage.PutOptions) (string, error) {
	if f.NewMultipartErr != nil {
		return "", f.NewMultipartErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.buckets[bucket]; !ok {
		return "", fmt.Errorf("%w: %s", storage.ErrNotFound, bucket)
	}

	f.uploadSeq++
	uploadID := fmt.Sprintf("upload-%d", f.uploadSeq)
	f.uploads[uploadID] = &fakeUpload{
		bucket: bucket,
		key:    key,
		parts:  make(map[int][]byte),
	}
	return uploadID, nil
}

// UploadPart stores one part of a session
func (f *FakeClient) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, reader io.Reader, size int64) (string, error) {
	if f.UploadPartErr != nil {
		if err := f.UploadPartErr(bucket, key, partNumber); err != nil {
			return "", err
		}
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	upload, ok := f.uploads[uploadID]
	if !ok {
		return "", fmt.Errorf("%w: upload %s", storage.ErrNotFound, uploadID)
	}

	upload.parts[partNumber] = data
	return fmt.Sprintf("etag-part-%d", partNumber), nil
}

// CompleteMultipartUpload merges the parts, in the given order, into one
// object and closes the session. Part numbers must be contiguous from 1.
func (f *FakeClient) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []storage.CompletedPart) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	upload, ok := f.uploads[uploadID]
	if !ok {
		return fmt.Errorf("%w: upload %s", storage.ErrNotFound, uploadID)
	}

	var payload []byte
	for i, part := range parts {
		if part.PartNumber != i+1 {
			return fmt.Errorf("parts out of order: got %d at position %d", part.PartNumber, i)
		}
		data, ok := upload.parts[part.PartNumber]
		if !ok {
			return fmt.Errorf("part %d was never uploaded", part.PartNumber)
		}
		payload = append(payload, data...)
	}

	f.buckets[upload.bucket][upload.key] = payload
	delete(f.uploads, uploadID)
	f.Completed = append(f.Completed, uploadID)
	return nil
}

// AbortMultipartUpload discards the session and its parts
func (f *FakeClient) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.uploads[uploadID]; !ok {
		return fmt.Errorf("%w: upload %s", storage.ErrNotFound, uploadID)
	}

	delete(f.uploads, uploadID)
	f.Aborted = append(f.Aborted, uploadID)
	return nil
}

type fakeObject struct {
	*bytes.Reader
	info storage.ObjectInfo
}

func (o *fakeObject) Close() error { return nil }

func (o *fakeObject) Stat() (storage.ObjectInfo, error) { return o.info, nil }
