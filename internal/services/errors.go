package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no listing matched the id or slug.
	ErrNotFound = errors.New("listing not found")
	// ErrInvalidListing wraps a listing payload that failed validation on the write path.
	ErrInvalidListing = errors.New("invalid listing")
)

// UpstreamError is a failure of the backing store. It is never retried here.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}
