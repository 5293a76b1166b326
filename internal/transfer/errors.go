package transfer

import "fmt"

// SessionOpenError means the multipart session could not be started; no
// session exists at the destination, so there is nothing to abort.
type SessionOpenError struct {
	Bucket string
	Key    string
	Err    error
}

func (e *SessionOpenError) Error() string {
	return fmt.Sprintf("open multipart session for %s/%s: %v", e.Bucket, e.Key, e.Err)
}

func (e *SessionOpenError) Unwrap() error { return e.Err }

// PartUploadError means at least one part upload failed after the storage
// client's retry budget; the session has been aborted.
type PartUploadError struct {
	Bucket string
	Key    string
	Err    error
}

func (e *PartUploadError) Error() string {
	return fmt.Sprintf("upload parts for %s/%s: %v", e.Bucket, e.Key, e.Err)
}

func (e *PartUploadError) Unwrap() error { return e.Err }
