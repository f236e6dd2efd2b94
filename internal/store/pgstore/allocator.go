package pgstore

import (
	"context"
	"fmt"
)

// Allocator issues entity IDs from a Postgres sequence, so every replica
// draws from the same number line.
type Allocator struct {
	db       DB
	sequence string
}

func NewAllocator(db DB) *Allocator {
	return &Allocator{db: db, sequence: "entity_ids"}
}

func (a *Allocator) NextID(ctx context.Context) (uint64, error) {
	var id uint64
	err := a.db.QueryRow(ctx, `SELECT nextval($1)`, a.sequence).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("pgstore: next id: %w", err)
	}
	return id, nil
}
