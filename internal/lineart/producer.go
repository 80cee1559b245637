package lineart

import "context"

// Producer exposes the local filter as a race candidate. It never reports
// "unavailable": there is no credential or network to be missing.
type Producer struct {
	Variant Variant
}

// Name identifies this candidate in race logs.
func (p Producer) Name() string { return "local" }

// Render satisfies the race producer contract. The context is accepted for
// interface symmetry; the filter is pure compute with bounded latency.
func (p Producer) Render(_ context.Context, src []byte) ([]byte, error) {
	return Render(src, p.Variant)
}
