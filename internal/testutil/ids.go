package testutil

import (
	"fmt"
	"sync/atomic"
)

// SequentialIDs generates predictable UUID-shaped identifiers:
// 00000000-0000-7000-8000-000000000001, ...000002, and so on.
//
// Stands in for uuid.NewV7 where trace ids or media file names must be stable
// across runs (golden files, exact path assertions).
type SequentialIDs struct {
	n atomic.Int64
}

// Next returns the next identifier.
func (g *SequentialIDs) Next() string {
	return fmt.Sprintf("00000000-0000-7000-8000-%012d", g.n.Add(1))
}

// FixedID returns a generator that always yields id.
func FixedID(id string) func() string {
	if id == "" {
		id = "00000000-0000-7000-8000-000000000000"
	}
	return func() string { return id }
}
