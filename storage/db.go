package storage

import (
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// ErrKeyNotFound is returned by Get when a key has never been written.
var ErrKeyNotFound = errors.New("storage: key not found")

// Database is a minimal key-value store abstraction so the ledger can run on
// an in-memory backend in tests and LevelDB in deployments.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Close() error
}

// MemDB is an in-memory Database, safe for concurrent use.
type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemDB returns an empty in-memory database.
func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

// Put inserts or updates a key-value pair.
func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

// Get retrieves the value stored under key.
func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), value...), nil
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() error { return nil }

// LevelDB is a persistent Database backed by goleveldb.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves the value stored under key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	return value, err
}

// Close flushes and closes the underlying database files.
func (ldb *LevelDB) Close() error {
	return ldb.db.Close()
}
