// Package noop drops outcome events when publishing is disabled.
package noop

import (
	"context"

	"github.com/joblens/harvester/internal/harvest"
)

// Publisher discards every outcome.
type Publisher struct{}

// New returns a no-op Publisher.
func New() *Publisher { return &Publisher{} }

// Publish discards the outcome.
func (p *Publisher) Publish(context.Context, harvest.Outcome) (string, error) {
	return "", nil
}
