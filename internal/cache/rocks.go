// Package cache persists GitHub ETag-validated responses in RocksDB so a
// restarted server keeps its conditional-request state.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/linxGnu/grocksdb"
)

var (
	ErrReadOnlyMode   = errors.New("operation not allowed in read-only mode")
	ErrDatabaseClosed = errors.New("database is closed")
)

// entry is the stored value for one request URL
type entry struct {
	ETag string `json:"etag"`
	Body []byte `json:"body"`
}

// Rocks is a RocksDB-backed github.ResponseCache
type Rocks struct {
	mu       sync.RWMutex
	db       *grocksdb.DB
	ro       *grocksdb.ReadOptions
	wo       *grocksdb.WriteOptions
	readOnly bool
}

func Open(path string) (*Rocks, error) {
	return OpenWithOptions(path, false)
}

func OpenReadOnly(path string) (*Rocks, error) {
	return OpenWithOptions(path, true)
}

func OpenWithOptions(path string, readOnly bool) (*Rocks, error) {
	opts := grocksdb.NewDefaultOptions()

	var db *grocksdb.DB
	var err error
	if readOnly {
		opts.SetCreateIfMissing(false)
		db, err = grocksdb.OpenDbForReadOnly(opts, path, false)
	} else {
		opts.SetCreateIfMissing(true)
		db, err = grocksdb.OpenDb(opts, path)
	}
	if err != nil {
		return nil, fmt.Errorf("cache: opening %s: %w", path, err)
	}

	return &Rocks{
		db:       db,
		ro:       grocksdb.NewDefaultReadOptions(),
		wo:       grocksdb.NewDefaultWriteOptions(),
		readOnly: readOnly,
	}, nil
}

// Get implements github.ResponseCache. A missing, unreadable or corrupt
// entry is a miss.
func (r *Rocks) Get(url string) (string, []byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return "", nil, false
	}

	val, err := r.db.Get(r.ro, []byte(url))
	if err != nil {
		return "", nil, false
	}
	defer val.Free()
	if !val.Exists() {
		return "", nil, false
	}

	var e entry
	if err := json.Unmarshal(val.Data(), &e); err != nil || e.ETag == "" {
		return "", nil, false
	}
	return e.ETag, e.Body, true
}

// Put implements github.ResponseCache
func (r *Rocks) Put(url, etag string, body []byte) error {
	if etag == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return ErrDatabaseClosed
	}
	if r.readOnly {
		return ErrReadOnlyMode
	}

	data, err := json.Marshal(entry{ETag: etag, Body: body})
	if err != nil {
		return err
	}
	return r.db.Put(r.wo, []byte(url), data)
}

func (r *Rocks) IsReadOnly() bool {
	return r.readOnly
}

// Close releases the database. It is safe to call more than once.
func (r *Rocks) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return
	}
	r.db.Close()
	r.ro.Destroy()
	r.wo.Destroy()
	r.db = nil
}
