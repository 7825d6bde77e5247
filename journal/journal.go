// Copyright (c) 2025 BVK Chaitanya

// Package journal keeps the bracket groups and engine transitions of a
// trading session in a kv database.
package journal

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/bvk/orbtrader/kvutil"
	"github.com/bvk/orbtrader/order"
	"github.com/bvkgo/kv"
	"github.com/google/uuid"
)

const (
	GroupsKeyspace      = "/groups"
	TransitionsKeyspace = "/transitions"
)

// Transition is one engine state change.
type Transition struct {
	Seq    uint64
	Time   time.Time
	From   string
	To     string
	Reason string
}

type Journal struct {
	db kv.Database
}

func New(db kv.Database) *Journal {
	return &Journal{db: db}
}

func groupKey(id uuid.UUID) string {
	return path.Join(GroupsKeyspace, id.String())
}

func transitionKey(seq uint64) string {
	return path.Join(TransitionsKeyspace, fmt.Sprintf("%016d", seq))
}

// SaveGroup overwrites the saved state of a bracket group.
func (j *Journal) SaveGroup(ctx context.Context, g *order.Group) error {
	if err := kvutil.SetDB(ctx, j.db, groupKey(g.ID), g); err != nil {
		return fmt.Errorf("could not save group %s: %w", g.ID, err)
	}
	return nil
}

func (j *Journal) LoadGroup(ctx context.Context, id uuid.UUID) (*order.Group, error) {
	return kvutil.GetDB[order.Group](ctx, j.db, groupKey(id))
}

// Groups returns all saved groups ordered by their keys.
func (j *Journal) Groups(ctx context.Context) ([]*order.Group, error) {
	var groups []*order.Group
	collect := func(_ context.Context, _ kv.Reader, _ string, g *order.Group) error {
		groups = append(groups, g)
		return nil
	}
	begin, end := kvutil.PathRange(GroupsKeyspace)
	if err := kvutil.AscendDB(ctx, j.db, begin, end, collect); err != nil {
		return nil, fmt.Errorf("could not scan saved groups: %w", err)
	}
	return groups, nil
}

func (j *Journal) SaveTransition(ctx context.Context, t *Transition) error {
	if err := kvutil.SetDB(ctx, j.db, transitionKey(t.Seq), t); err != nil {
		return fmt.Errorf("could not save transition %d: %w", t.Seq, err)
	}
	return nil
}

// Transitions returns the saved engine transitions in order.
func (j *Journal) Transitions(ctx context.Context) ([]*Transition, error) {
	var ts []*Transition
	collect := func(_ context.Context, _ kv.Reader, _ string, t *Transition) error {
		ts = append(ts, t)
		return nil
	}
	begin, end := kvutil.PathRange(TransitionsKeyspace)
	if err := kvutil.AscendDB(ctx, j.db, begin, end, collect); err != nil {
		return nil, fmt.Errorf("could not scan saved transitions: %w", err)
	}
	return ts, nil
}
