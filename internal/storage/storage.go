// Package storage defines the object-store contract consumed by the
// tiered-storage core, plus the backends shipped with the plug-in.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrKeyNotFound reports a permanently missing object.
var ErrKeyNotFound = errors.New("storage: key not found")

// ErrForbidden reports a permanently denied object access.
var ErrForbidden = errors.New("storage: access denied")

// IsPermanent reports whether the error is not worth retrying.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrKeyNotFound) || errors.Is(err, ErrForbidden)
}

// Backend is a blocking object-store driver. Implementations must be safe
// for concurrent use. Retry policy is the caller's concern.
type Backend interface {
	// Upload stores the full contents of r under key, overwriting any
	// existing object.
	Upload(ctx context.Context, key string, r io.Reader) error
	// Fetch returns a reader over the whole object. Caller owns Close.
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)
	// FetchRange returns a reader over bytes [from, to] inclusive. A `to`
	// past the end of the object is clamped. Caller owns Close.
	FetchRange(ctx context.Context, key string, from, to int64) (io.ReadCloser, error)
	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
