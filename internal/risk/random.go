package risk

import (
	"math"
	"math/rand/v2"
)

// optimizerStream is reserved for the weight search. Simulation blocks use
// stream ids counting up from zero, so the two never share draws.
const optimizerStream = math.MaxUint64

// Source hands out reproducible random streams derived from a single seed.
// Every consumer of randomness in a run takes its stream from the same Source,
// so one seed pins down the whole run.
type Source struct {
	seed uint64
}

// NewSource creates a new Source for the given seed
func NewSource(seed uint64) *Source {
	return &Source{seed: seed}
}

// Seed returns the seed the source was created with
func (s *Source) Seed() uint64 {
	return s.seed
}

// PCG returns a fresh generator for the given stream id. Calling it twice with
// the same id yields two generators producing the same sequence.
func (s *Source) PCG(stream uint64) *rand.PCG {
	return rand.NewPCG(splitmix64(s.seed^splitmix64(stream)), splitmix64(stream+0x9e3779b97f4a7c15))
}

// Stream returns a *rand.Rand over PCG(stream)
func (s *Source) Stream(stream uint64) *rand.Rand {
	return rand.New(s.PCG(stream))
}

// splitmix64 scrambles nearby integers into unrelated PCG seeds
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
