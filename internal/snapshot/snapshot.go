package snapshot

import (
	"slices"
	"time"

	"quoteboard/internal/provider"
)

// Skip records a symbol that produced no quote during a cycle.
type Skip struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// Snapshot is the immutable result of one fetch cycle. Quotes keep issuance order.
type Snapshot struct {
	generation uint64
	fetchedAt  time.Time
	quotes     []provider.Quote
	skipped    []Skip
}

// New builds a snapshot; the slices are copied.
func New(generation uint64, fetchedAt time.Time, quotes []provider.Quote, skipped []Skip) Snapshot {
	return Snapshot{
		generation: generation,
		fetchedAt:  fetchedAt,
		quotes:     slices.Clone(quotes),
		skipped:    slices.Clone(skipped),
	}
}

func (s Snapshot) Generation() uint64   { return s.generation }
func (s Snapshot) FetchedAt() time.Time { return s.fetchedAt }
func (s Snapshot) Len() int             { return len(s.quotes) }
func (s Snapshot) IsZero() bool         { return s.generation == 0 && s.fetchedAt.IsZero() && s.quotes == nil }

// Quotes returns a copy of the quotes in issuance order.
func (s Snapshot) Quotes() []provider.Quote { return slices.Clone(s.quotes) }

// Skipped returns a copy of the symbols that were soft-skipped.
func (s Snapshot) Skipped() []Skip { return slices.Clone(s.skipped) }

// WithGeneration returns a copy stamped with gen.
func (s Snapshot) WithGeneration(gen uint64) Snapshot {
	s.generation = gen
	return s
}
