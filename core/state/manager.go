package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"lineledger/storage"
)

// Manager is the upsert-by-id entity store backing the ledger. Writes are
// last-writer-wins; the ledger applies events strictly in order so no
// transactional rollback is needed.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// KVPut encodes value as JSON and stores it under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("kv: decode %s: %w", key, err)
	}
	return true, nil
}

func load[T any](m *Manager, key []byte) (*T, bool, error) {
	out := new(T)
	ok, err := m.KVGet(key, out)
	if err != nil || !ok {
		return nil, ok, err
	}
	return out, true, nil
}

func scan[T any](m *Manager, prefix []byte, fn func(*T) bool) error {
	var decodeErr error
	err := m.db.Iterate(prefix, func(key, value []byte) bool {
		item := new(T)
		if err := json.Unmarshal(value, item); err != nil {
			decodeErr = fmt.Errorf("kv: decode %s: %w", key, err)
			return false
		}
		return fn(item)
	})
	if err != nil {
		return err
	}
	return decodeErr
}

// Cursor is the position of the last fully applied log.
type Cursor struct {
	Block    uint64
	LogIndex uint64
}

// Cursor returns the resume point. The boolean is false on a fresh store.
func (m *Manager) Cursor() (Cursor, bool, error) {
	var cursor Cursor
	data, err := m.db.Get(cursorKey)
	if errors.Is(err, storage.ErrNotFound) {
		return cursor, false, nil
	}
	if err != nil {
		return cursor, false, err
	}
	if err := rlp.DecodeBytes(data, &cursor); err != nil {
		return cursor, false, err
	}
	return cursor, true, nil
}

// SetCursor records (block, logIndex) as applied.
func (m *Manager) SetCursor(block uint64, logIndex uint) error {
	encoded, err := rlp.EncodeToBytes(&Cursor{Block: block, LogIndex: uint64(logIndex)})
	if err != nil {
		return err
	}
	return m.db.Put(cursorKey, encoded)
}

// After reports whether (block, logIndex) lies strictly after the cursor.
func (c Cursor) After(block uint64, logIndex uint) bool {
	if block != c.Block {
		return block > c.Block
	}
	return uint64(logIndex) > c.LogIndex
}

// Watched returns the contract addresses whose logs the indexer follows.
func (m *Manager) Watched() ([]common.Address, error) {
	var addrs []common.Address
	if _, err := m.KVGet(watchedKey, &addrs); err != nil {
		return nil, err
	}
	return addrs, nil
}

// PutWatched replaces the watched contract set.
func (m *Manager) PutWatched(addrs []common.Address) error {
	return m.KVPut(watchedKey, addrs)
}

// Scanned returns the last block whose logs were fully fetched and applied.
func (m *Manager) Scanned() (uint64, bool, error) {
	var block uint64
	ok, err := m.KVGet(scannedKey, &block)
	return block, ok, err
}

// SetScanned records block as fully scanned.
func (m *Manager) SetScanned(block uint64) error {
	return m.KVPut(scannedKey, block)
}
