package testutil

import (
	"context"
	"testing"

	"github.com/HerbHall/nubilus-agent/internal/state"
)

// NewStateStore creates an in-memory state store for testing.
// The store is automatically closed when the test completes.
func NewStateStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.Open(context.Background(), state.MemoryPath)
	if err != nil {
		t.Fatalf("testutil.NewStateStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
