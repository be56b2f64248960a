package testutil

import "strconv"

// FixedRequestIDs generates request identifiers from a fixed prefix and a
// counter, so outgoing requests are reproducible in tests.
//
// Thread-safety: Generate is safe for concurrent use.
type FixedRequestIDs struct {
	prefix string
	clock  *DeterministicClock
}

// NewFixedRequestIDs creates a generator. If prefix is empty, "test-request"
// is used. The first identifier is "<prefix>-1".
func NewFixedRequestIDs(prefix string) *FixedRequestIDs {
	if prefix == "" {
		prefix = "test-request"
	}
	return &FixedRequestIDs{prefix: prefix, clock: NewDeterministicClock()}
}

// Generate returns the next identifier.
func (g *FixedRequestIDs) Generate() string {
	return g.prefix + "-" + strconv.FormatInt(g.clock.Next(), 10)
}
