package store

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var boltBucket = []byte("dragonmail")

// BoltKV implements KV in a single bbolt bucket.
type BoltKV struct {
	db *bbolt.DB
}

// NewBoltKV opens (or creates) a bbolt database at path.
func NewBoltKV(path string) (*BoltKV, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(boltBucket); err != nil {
			return fmt.Errorf("creating bucket %s: %w", boltBucket, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltKV{db: db}, nil
}

// Close closes the database.
func (b *BoltKV) Close() error {
	return b.db.Close()
}

// Get returns a copy of the value stored under key, or ErrNotFound.
func (b *BoltKV) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(boltBucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// Values are only valid inside the transaction.
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores value under key.
func (b *BoltKV) Set(_ context.Context, key string, value []byte) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// Delete removes key. A missing key is not an error.
func (b *BoltKV) Delete(_ context.Context, key string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}
