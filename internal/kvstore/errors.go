package kvstore

import "errors"

// ErrDuplicate is returned by Create when a uniqueness constraint declared
// on the record schema is violated.
var ErrDuplicate = errors.New("kvstore: duplicate record")

// ErrNotFound is returned by Get when no record exists for the given id.
var ErrNotFound = errors.New("kvstore: record not found")
