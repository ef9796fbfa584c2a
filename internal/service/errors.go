package service

import (
	"errors"
	"fmt"
)

var (
	ErrIdentityNotFound = errors.New("identity not found")
	ErrRemoteImageEmpty = errors.New("remote image is empty")
	ErrUploadFailed     = errors.New("avatar upload failed")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("avatar not found")
)

// UploadError reports why an upload was refused. It matches both
// ErrUploadFailed and its cause.
type UploadError struct {
	Cause error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %v", ErrUploadFailed, e.Cause)
}

func (e *UploadError) Unwrap() []error {
	return []error{ErrUploadFailed, e.Cause}
}

func uploadFailed(format string, args ...any) error {
	return &UploadError{Cause: fmt.Errorf(format, args...)}
}
