package storage

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("object not found")
	ErrKeyExists    = errors.New("object already exists")
	ErrInvalidKey   = errors.New("invalid storage key")
	ErrAccessDenied = errors.New("access denied")
)

// Operation names carried by StorageError.
const (
	opPut = "put"
	opGet = "get"
	opURL = "url"
)

// StorageError records which operation on which key failed. Match the cause
// with errors.Is against the sentinels above.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func opError(op, key string, err error) error {
	return &StorageError{Op: op, Key: key, Err: err}
}

// IsNotFound reports whether err means the export object does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
