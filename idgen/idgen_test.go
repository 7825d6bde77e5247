// Copyright (c) 2023 BVK Chaitanya

package idgen

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestSequence(t *testing.T) {
	g1 := New("session-2025-01-17", 0)
	ids := make([]uuid.UUID, 0, 20)
	for i := 0; i < 20; i++ {
		ids = append(ids, g1.NextID())
	}

	g2 := New("session-2025-01-17", 5)
	for i := 5; i < 20; i++ {
		if got := g2.NextID(); got != ids[i] {
			t.Fatalf("want %v, got %v", ids[i], got)
		}
	}
	if g2.Offset() != 20 {
		t.Fatalf("want 20, got %d", g2.Offset())
	}

	g3 := New("session-2025-01-18", 0)
	if g3.NextID() == ids[0] {
		t.Fatalf("different seeds must produce different ids")
	}
}

func TestConcurrentUnique(t *testing.T) {
	g := New(t.Name(), 0)

	var mu sync.Mutex
	seen := make(map[uuid.UUID]bool)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := g.NextID()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != 400 {
		t.Fatalf("want 400 unique ids, got %d", len(seen))
	}
}
