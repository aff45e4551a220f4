// Package state keeps local ingestion state in a bbolt file: one marker per
// collection recording the last completed run, and a cache of embeddings.
package state

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	markersBucket    = "ingest_markers"
	embeddingsBucket = "embeddings"
)

// ErrCorrupt is returned when a stored value cannot be decoded.
var ErrCorrupt = errors.New("state: corrupt value")

// Marker records a completed ingestion run for one collection.
type Marker struct {
	Collection  string    `json:"collection"`
	Fingerprint string    `json:"fingerprint"`
	RunID       string    `json:"run_id"`
	Points      int       `json:"points"`
	Batches     int       `json:"batches"`
	CompletedAt time.Time `json:"completed_at"`
}

// Store is a bbolt-backed state file. Safe for concurrent use.
type Store struct {
	db   *bbolt.DB
	path string
}

// Open opens or creates the state file at path, creating parent directories.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("state: mkdir %s: %w", dir, err)
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("state: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range []string{markersBucket, embeddingsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("state: init %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Close releases the file lock.
func (s *Store) Close() error { return s.db.Close() }

// Marker returns the marker for collection, if any.
func (s *Store) Marker(_ context.Context, collection string) (Marker, bool, error) {
	var (
		m     Marker
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(markersBucket)).Get([]byte(collection))
		if data == nil {
			return nil
		}
		found = true
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("%w: marker %s: %v", ErrCorrupt, collection, err)
		}
		return nil
	})
	if err != nil {
		return Marker{}, false, fmt.Errorf("state: marker: %w", err)
	}
	return m, found, nil
}

// PutMarker stores m under m.Collection, replacing any previous marker.
func (s *Store) PutMarker(_ context.Context, m Marker) error {
	if m.Collection == "" {
		return errors.New("state: put marker: empty collection")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("state: put marker: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(markersBucket)).Put([]byte(m.Collection), data)
	})
}

// DeleteMarker removes the marker for collection. Missing markers are not an error.
func (s *Store) DeleteMarker(_ context.Context, collection string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(markersBucket)).Delete([]byte(collection))
	})
}

// GetEmbedding returns the cached vector for key.
func (s *Store) GetEmbedding(_ context.Context, key string) ([]float32, bool, error) {
	var vec []float32
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(embeddingsBucket)).Get([]byte(key))
		if data == nil {
			return nil
		}
		v, err := decodeVector(data)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("state: get embedding: %w", err)
	}
	return vec, vec != nil, nil
}

// PutEmbedding caches vec under key.
func (s *Store) PutEmbedding(_ context.Context, key string, vec []float32) error {
	if len(vec) == 0 {
		return errors.New("state: put embedding: empty vector")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(embeddingsBucket)).Put([]byte(key), encodeVector(vec))
	})
}

// EmbeddingCount returns the number of cached vectors.
func (s *Store) EmbeddingCount() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(embeddingsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

// Vectors are stored as little-endian float32s.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: vector of %d bytes", ErrCorrupt, len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vec, nil
}
