// Package memory contains an in-memory publisher for tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/joblens/harvester/internal/harvest"
)

// Publisher stores published outcomes for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []harvest.Outcome
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the outcome and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, out harvest.Outcome) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, out)
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []harvest.Outcome {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]harvest.Outcome, len(p.messages))
	copy(out, p.messages)
	return out
}
