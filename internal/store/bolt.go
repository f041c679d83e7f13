package store

import (
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "session"

// ErrNotFound is returned by Get when a key has no value
var ErrNotFound = errors.New("key not found")

// KV defines the raw byte storage the session mirror writes to
type KV interface {
	// Get returns the value stored under key or ErrNotFound
	Get(key string) ([]byte, error)

	// Put stores value under key, replacing any previous value
	Put(key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Close releases the underlying database
	Close() error
}

// BoltKV implements KV using BoltDB
type BoltKV struct {
	db *bbolt.DB
}

// NewBoltKV opens (or creates) the database at path
func NewBoltKV(path string) (*BoltKV, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltKV{db: db}, nil
}

// Get returns a copy of the value stored under key
func (b *BoltKV) Get(key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		// bolt values are only valid inside the transaction
		out = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Put stores value under key
func (b *BoltKV) Put(key string, value []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), value)
	})
}

// Delete removes key
func (b *BoltKV) Delete(key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(key))
	})
}

// Close closes the database connection
func (b *BoltKV) Close() error {
	return b.db.Close()
}
