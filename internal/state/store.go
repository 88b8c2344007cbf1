package state

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSessions = []byte("sessions")
	bucketMeta     = []byte("meta")
	keyLatest      = []byte("latest")
)

// BoltStore implements Store using BoltDB. Every session is kept under its
// ID; Load returns the most recently saved one.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore creates a new BoltDB-backed session store.
func NewBoltStore(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSessions); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltStore{db: db, path: path}, nil
}

// Save saves the session state and marks it as the latest.
func (s *BoltStore) Save(state *SessionState) error {
	if state.ID == "" {
		return fmt.Errorf("session state has no id")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)
		meta := tx.Bucket(bucketMeta)
		if sessions == nil || meta == nil {
			return fmt.Errorf("bucket not found")
		}
		if err := sessions.Put([]byte(state.ID), data); err != nil {
			return err
		}
		return meta.Put(keyLatest, []byte(state.ID))
	})
}

// Load loads the latest session state. It returns nil, nil when empty.
func (s *BoltStore) Load() (*SessionState, error) {
	var id []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			return fmt.Errorf("bucket not found")
		}
		if v := meta.Get(keyLatest); v != nil {
			id = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || id == nil {
		return nil, err
	}
	return s.LoadSession(string(id))
}

// LoadSession loads one session by ID. It returns nil, nil when not found.
func (s *BoltStore) LoadSession(id string) (*SessionState, error) {
	var state SessionState
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}

		found = true
		return json.Unmarshal(data, &state)
	})
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, nil
	}

	return &state, nil
}

// Sessions lists stored session IDs in sorted order.
func (s *BoltStore) Sessions() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	sort.Strings(ids)
	return ids, err
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// FileStore implements Store using a JSON file.
type FileStore struct {
	path       string
	compressed bool
}

// NewFileStore creates a new file-based session store. Compressed stores
// write to path + ".gz".
func NewFileStore(path string, compressed bool) *FileStore {
	return &FileStore{
		path:       path,
		compressed: compressed,
	}
}

// Save saves the session state to a file.
func (s *FileStore) Save(state *SessionState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if s.compressed {
		return s.saveCompressed(data)
	}

	return os.WriteFile(s.path, data, 0644)
}

func (s *FileStore) saveCompressed(data []byte) error {
	file, err := os.Create(s.path + ".gz")
	if err != nil {
		return err
	}
	defer file.Close()

	gw := gzip.NewWriter(file)
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return err
	}
	return gw.Close()
}

// Load loads the session state from a file. A missing file is not an error.
func (s *FileStore) Load() (*SessionState, error) {
	var data []byte
	var err error

	if s.compressed {
		data, err = s.loadCompressed()
	} else {
		data, err = os.ReadFile(s.path)
	}

	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return &state, nil
}

func (s *FileStore) loadCompressed() ([]byte, error) {
	file, err := os.Open(s.path + ".gz")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gr, err := gzip.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer gr.Close()

	return io.ReadAll(gr)
}

// Close is a no-op for FileStore.
func (s *FileStore) Close() error {
	return nil
}

// MemoryStore implements Store in memory.
type MemoryStore struct {
	mu    sync.Mutex
	state *SessionState
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save keeps state in memory.
func (s *MemoryStore) Save(state *SessionState) error {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	return nil
}

// Load returns the stored state.
func (s *MemoryStore) Load() (*SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// Open picks a store for path by extension: ".db" and ".bolt" use BoltDB,
// ".gz" a compressed JSON file, anything else a plain JSON file.
func Open(path string) (Store, error) {
	switch filepath.Ext(path) {
	case ".db", ".bolt":
		return NewBoltStore(path)
	case ".gz":
		return NewFileStore(path[:len(path)-len(".gz")], true), nil
	default:
		return NewFileStore(path, false), nil
	}
}
