package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()
	if _, err := db.Get([]byte("line/missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, key := range []string{"line/b", "line/a", "position/a", "line/c"} {
		if err := db.Put([]byte(key), []byte("v:"+key)); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	if err := db.Put([]byte("line/a"), []byte("v2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	value, err := db.Get([]byte("line/a"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != "v2" {
		t.Fatalf("expected last writer to win, got %q", value)
	}
	ok, err := db.Has([]byte("position/a"))
	if err != nil || !ok {
		t.Fatalf("expected position/a to exist: %v", err)
	}

	var keys []string
	if err := db.Iterate([]byte("line/"), func(key, _ []byte) bool {
		keys = append(keys, string(key))
		return true
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(keys) != 3 || keys[0] != "line/a" || keys[1] != "line/b" || keys[2] != "line/c" {
		t.Fatalf("unexpected iteration order: %v", keys)
	}

	count := 0
	_ = db.Iterate([]byte("line/"), func(_, _ []byte) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("expected early stop after one key, got %d", count)
	}

	if err := db.Delete([]byte("line/b")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := db.Has([]byte("line/b")); ok {
		t.Fatalf("expected line/b to be deleted")
	}
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	t.Cleanup(db.Close)
	exerciseDatabase(t, db)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "ldb"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	t.Cleanup(db.Close)
	exerciseDatabase(t, db)
}

func TestBoltDB(t *testing.T) {
	db, err := NewBoltDB(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	t.Cleanup(db.Close)
	exerciseDatabase(t, db)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	if _, err := Open("rocksdb", t.TempDir()); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
	db, err := Open("", "")
	if err != nil {
		t.Fatalf("default backend: %v", err)
	}
	db.Close()
}
