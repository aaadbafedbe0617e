package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"investly/internal/domain"
)

var (
	messagesBucket = []byte("messages")
	threadsBucket  = []byte("scope_threads")
)

// BoltMessageStore implements domain.MessageStore in a single BoltDB file.
// Records live in one bucket keyed by id; a second bucket maps each scope
// to the thread of its newest record.
type BoltMessageStore struct {
	db *bolt.DB
}

// OpenBoltMessageStore opens (or creates) the store at path
func OpenBoltMessageStore(path string) (*BoltMessageStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open message store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(messagesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(threadsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltMessageStore{db: db}, nil
}

// Close releases the file lock
func (s *BoltMessageStore) Close() error {
	return s.db.Close()
}

// Save stores the record and moves the scope's thread pointer to it
func (s *BoltMessageStore) Save(ctx context.Context, record *domain.MessageRecord) (uuid.UUID, error) {
	prepareRecord(record)

	data, err := json.Marshal(record)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode message: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(messagesBucket).Put(record.ID[:], data); err != nil {
			return err
		}
		if record.ThreadID == "" {
			return nil
		}
		return tx.Bucket(threadsBucket).Put([]byte(record.Scope), []byte(record.ThreadID))
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to save message: %w", err)
	}

	return record.ID, nil
}

// FindLatestOpenThread returns the thread id of the scope's newest record
func (s *BoltMessageStore) FindLatestOpenThread(ctx context.Context, scope string) (string, bool, error) {
	var threadID string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(threadsBucket).Get([]byte(scope)); v != nil {
			threadID = string(v)
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to find thread for scope %s: %w", scope, err)
	}
	return threadID, threadID != "", nil
}

// History returns the scope's records oldest first
func (s *BoltMessageStore) History(ctx context.Context, scope string) ([]domain.MessageRecord, error) {
	var out []domain.MessageRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(messagesBucket).ForEach(func(k, v []byte) error {
			var rec domain.MessageRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				// skip malformed entries
				return nil
			}
			if rec.Scope == scope {
				out = append(out, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	sortByCreated(out)
	return out, nil
}
