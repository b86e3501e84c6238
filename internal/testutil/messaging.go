package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

// FakeMessaging records every batch handed to HandleEvents.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeMessaging struct {
	mu      sync.Mutex
	batches [][]ir.PositionedEvents

	// Err, if set, is returned by HandleEvents. The batch is not recorded.
	Err error
}

// HandleEvents records positions.
func (m *FakeMessaging) HandleEvents(_ context.Context, positions []ir.PositionedEvents) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.batches = append(m.batches, slices.Clone(positions))
	return nil
}

// Batches returns the recorded batches in call order.
func (m *FakeMessaging) Batches() [][]ir.PositionedEvents {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.batches)
}

// Positions returns every recorded position, flattened in call order.
func (m *FakeMessaging) Positions() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int64
	for _, batch := range m.batches {
		for _, p := range batch {
			out = append(out, p.Position)
		}
	}
	return out
}
