package state

import (
	"math/big"
	"testing"

	"omnivault/storage"
)

type record struct {
	Name  string
	Value *big.Int
}

func TestKVRoundTrip(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	key := []byte("test/record")

	var out record
	found, err := manager.KVGet(key, &out)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if found {
		t.Fatalf("expected miss before first put")
	}

	in := record{Name: "pool", Value: big.NewInt(12345)}
	if err := manager.KVPut(key, &in); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	found, err = manager.KVGet(key, &out)
	if err != nil || !found {
		t.Fatalf("get failed: found=%v err=%v", found, err)
	}
	if out.Name != in.Name || out.Value.Cmp(in.Value) != 0 {
		t.Fatalf("round trip mismatch: %+v", out)
	}

	if err := manager.KVDelete(key); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	found, err = manager.KVGet(key, &out)
	if err != nil || found {
		t.Fatalf("expected miss after delete, found=%v err=%v", found, err)
	}
	// Double delete is a no-op.
	if err := manager.KVDelete(key); err != nil {
		t.Fatalf("second delete failed: %v", err)
	}
}

func TestKVGetDecodeError(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)
	key := []byte("test/bad")
	if err := db.Put(key, []byte{0xc1, 0xc1}); err != nil {
		t.Fatalf("raw put failed: %v", err)
	}
	var out record
	if _, err := manager.KVGet(key, &out); err == nil {
		t.Fatalf("expected decode error for corrupt record")
	}
}
