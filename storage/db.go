package storage

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	gethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// Database is a generic interface for a key-value store.
// The ledger state trie and node metadata (head root, sequence) share one backend.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	TrieDB() *triedb.Database
	Close()
}

// backend adapts any go-ethereum key-value store to Database and lazily binds
// the trie database on first use.
type backend struct {
	kv ethdb.Database

	once   sync.Once
	trieDB *triedb.Database
}

func (b *backend) Put(key []byte, value []byte) error {
	return b.kv.Put(key, value)
}

func (b *backend) Get(key []byte) ([]byte, error) {
	ok, err := b.kv.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("key not found")
	}
	return b.kv.Get(key)
}

func (b *backend) Has(key []byte) (bool, error) {
	return b.kv.Has(key)
}

func (b *backend) Delete(key []byte) error {
	return b.kv.Delete(key)
}

func (b *backend) TrieDB() *triedb.Database {
	b.once.Do(func() {
		b.trieDB = triedb.NewDatabase(b.kv, nil)
	})
	return b.trieDB
}

func (b *backend) Close() {
	if b.trieDB != nil {
		b.trieDB.Close()
	}
	b.kv.Close()
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	*backend
}

func NewMemDB() *MemDB {
	return &MemDB{backend: &backend{kv: rawdb.NewMemoryDatabase()}}
}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	*backend
}

// LevelDBOptions tunes the goleveldb instance backing the store.
type LevelDBOptions struct {
	CacheMB   int
	Handles   int
	Namespace string
}

// NewLevelDB creates or opens a LevelDB database at the specified path with default tuning.
func NewLevelDB(path string) (*LevelDB, error) {
	return NewLevelDBWithOptions(path, LevelDBOptions{})
}

// NewLevelDBWithOptions opens a LevelDB database applying the provided cache and handle limits.
func NewLevelDBWithOptions(path string, opts LevelDBOptions) (*LevelDB, error) {
	if opts.CacheMB <= 0 {
		opts.CacheMB = 16
	}
	if opts.Handles <= 0 {
		opts.Handles = 64
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "augmint/db/state/"
	}
	kv, err := gethleveldb.NewCustom(path, namespace, func(o *opt.Options) {
		o.OpenFilesCacheCapacity = opts.Handles
		o.BlockCacheCapacity = opts.CacheMB / 2 * opt.MiB
		o.WriteBuffer = opts.CacheMB / 4 * opt.MiB
	})
	if err != nil {
		return nil, err
	}
	return &LevelDB{backend: &backend{kv: rawdb.NewDatabase(kv)}}, nil
}
