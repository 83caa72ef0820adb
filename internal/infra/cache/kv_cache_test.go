package cache

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

type countingStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	gets   int
	putErr error
}

func (c *countingStore) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (c *countingStore) Put(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.putErr != nil {
		return c.putErr
	}
	c.data[key] = append([]byte(nil), value...)
	return nil
}

func newTestStore(t *testing.T) (*CachedStore, *countingStore) {
	t.Helper()
	backing := &countingStore{data: map[string][]byte{}}
	l := logrus.New()
	l.SetOutput(io.Discard)
	s, err := NewCachedStore(backing, logrus.NewEntry(l))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	t.Cleanup(s.Close)
	return s, backing
}

func TestGetReadsThroughOnce(t *testing.T) {
	ctx := context.Background()
	s, backing := newTestStore(t)
	backing.data["k"] = []byte("v1")

	for i := 0; i < 3; i++ {
		got, err := s.Get(ctx, "k")
		if err != nil || string(got) != "v1" {
			t.Fatalf("get %d: %q, %v", i, got, err)
		}
	}
	if backing.gets != 1 {
		t.Fatalf("expected one backing read, got %d", backing.gets)
	}
}

func TestMissingKeyIsNotCached(t *testing.T) {
	ctx := context.Background()
	s, backing := newTestStore(t)
	if got, err := s.Get(ctx, "absent"); got != nil || err != nil {
		t.Fatalf("expected nil, nil; got %q, %v", got, err)
	}
	backing.data["absent"] = []byte("now here")
	if got, _ := s.Get(ctx, "absent"); string(got) != "now here" {
		t.Fatalf("expected fresh value, got %q", got)
	}
}

func TestPutReplacesCachedValue(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	if err := s.Put(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if got, _ := s.Get(ctx, "k"); string(got) != "v2" {
		t.Fatalf("expected v2, got %q", got)
	}
}

func TestFailedPutEvictsEntry(t *testing.T) {
	ctx := context.Background()
	s, backing := newTestStore(t)
	s.Put(ctx, "k", []byte("v1"))
	backing.putErr = errors.New("db down")
	if err := s.Put(ctx, "k", []byte("v2")); err == nil {
		t.Fatalf("expected put error")
	}
	backing.putErr = nil
	if got, _ := s.Get(ctx, "k"); string(got) != "v1" {
		t.Fatalf("expected backing value v1 after failed put, got %q", got)
	}
}

func TestReturnedSlicesAreCopies(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	s.Put(ctx, "k", []byte("abc"))
	got, _ := s.Get(ctx, "k")
	got[0] = 'X'
	if again, _ := s.Get(ctx, "k"); string(again) != "abc" {
		t.Fatalf("cached value mutated: %q", again)
	}
}
