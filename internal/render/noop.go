package render

import "context"

// Noop always reports rendering as disabled.
type Noop struct{}

// NewNoop returns a renderer stub for deployments without Chrome.
func NewNoop() *Noop { return &Noop{} }

// Render always fails with ErrDisabled.
func (n *Noop) Render(context.Context, string) ([]byte, error) {
	return nil, ErrDisabled
}
