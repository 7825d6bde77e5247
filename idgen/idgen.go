// Copyright (c) 2023 BVK Chaitanya

// Package idgen derives a reproducible sequence of uuids from a seed string,
// so that bracket group ids of a trading session can be recomputed from the
// session name and the group's position in the session.
package idgen

import (
	"crypto/md5"
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
)

type Generator struct {
	mu sync.Mutex

	base uuid.UUID
	next uint64
}

// New returns a generator whose first id is the id at the given offset.
func New(seed string, offset uint64) *Generator {
	return &Generator{base: uuid.UUID(md5.Sum([]byte(seed))), next: offset}
}

// Offset returns the position of the next id.
func (v *Generator) Offset() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.next
}

// NextID returns the id at the current offset and advances the offset.
func (v *Generator) NextID() uuid.UUID {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := At(v.base, v.next)
	v.next++
	return id
}

// At returns the id at a position of the sequence for a base id.
func At(base uuid.UUID, pos uint64) uuid.UUID {
	var buf [16 + 8]byte
	copy(buf[:16], base[:])
	binary.BigEndian.PutUint64(buf[16:], pos)
	return uuid.UUID(md5.Sum(buf[:]))
}
