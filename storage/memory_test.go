package storage

import (
	"context"
	"errors"
	"sort"
	"testing"
)

func TestKeys(t *testing.T) {
	if got, want := StoreKey("u1"), "scanorder:u1:store"; got != want {
		t.Errorf("StoreKey(%q) = %q, want %q", "u1", got, want)
	}
	if got, want := CartKey("u1", "TX1"), "scanorder:u1:cart:TX1"; got != want {
		t.Errorf("CartKey(%q, %q) = %q, want %q", "u1", "TX1", got, want)
	}
	if CartKey("u1", "A") == CartKey("u1", "B") || CartKey("u1", "A") == CartKey("u2", "A") {
		t.Error("cart keys collide across stores or sessions")
	}
}

// sessionStoreContract runs the behaviour every SessionStore must share.
func sessionStoreContract(t *testing.T, s SessionStore, prefix string) {
	t.Helper()
	ctx := context.Background()
	key := prefix + ":k"

	if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.Set(ctx, key, []byte("one")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, key, []byte("two")); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, err := s.Get(ctx, key)
	if err != nil || string(got) != "two" {
		t.Errorf("Get = %q, %v; want %q", got, err, "two")
	}
	if err := s.Remove(ctx, key); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove(ctx, key); err != nil {
		t.Errorf("Remove(missing) = %v, want nil", err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Remove error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore(t *testing.T) {
	sessionStoreContract(t, NewMemoryStore(), "test")
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	in := []byte("abc")
	s.Set(ctx, "k", in)
	in[0] = 'X'
	out, _ := s.Get(ctx, "k")
	if string(out) != "abc" {
		t.Errorf("stored value changed with caller's slice: %q", out)
	}
	out[1] = 'Y'
	again, _ := s.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value changed with returned slice: %q", again)
	}
}

func TestMemoryStoreKeys(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Set(ctx, StoreKey("u1"), []byte("{}"))
	s.Set(ctx, CartKey("u1", "X"), []byte("[]"))
	keys := s.Keys()
	sort.Strings(keys)
	want := []string{"scanorder:u1:cart:X", "scanorder:u1:store"}
	if len(keys) != 2 || keys[0] != want[0] || keys[1] != want[1] {
		t.Errorf("Keys() = %v, want %v", keys, want)
	}
}
