// Package storage provides the durable record layer the session store persists into.
package storage

import "errors"

// ErrNotFound is returned when a namespace or key does not exist.
var ErrNotFound = errors.New("record not found")

// Repository stores records under a namespace and key.
//
// Implementations copy records on the way in and out, so callers may mutate
// what they pass or receive. Deleting a missing key is not an error.
type Repository interface {
	Put(namespace, key string, record *Record) error
	Get(namespace, key string) (*Record, error)
	Delete(namespace, key string) error
	List(namespace string) ([]string, error)
}
