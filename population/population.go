// Package population implements the Population type: an ordered,
// append-only bag of floating-point samples with mean and confidence
// interval queries (spec.md C2).
package population

import "github.com/businessperformancetuning/repcontrol/stat"

// Population is an ordered sequence of samples. Insertion order is the
// replication order in which samples were added; nothing is ever removed.
type Population struct {
	samples []float64
}

// New returns an empty Population.
func New() *Population {
	return &Population{}
}

// AddSample appends a sample to the population.
func (p *Population) AddSample(x float64) {
	p.samples = append(p.samples, x)
}

// Size returns the number of samples in the population.
func (p *Population) Size() int {
	return len(p.samples)
}

// Sample returns the i-th sample in insertion order. ok is false if i is
// out of range.
func (p *Population) Sample(i int) (value float64, ok bool) {
	if i < 0 || i >= len(p.samples) {
		return 0, false
	}
	return p.samples[i], true
}

// Mean returns the arithmetic mean of the population.
func (p *Population) Mean() stat.Result {
	return stat.Mean(p.samples)
}

// ConfidenceInterval returns the half-width confidence interval at
// confidence level cl.
func (p *Population) ConfidenceInterval(cl float64) stat.Result {
	return stat.ConfidenceHalfWidth(p.samples, cl)
}

// Samples returns a defensive copy of the underlying samples, in
// insertion order. Intended for diagnostics (debug dumps), not for
// mutation.
func (p *Population) Samples() []float64 {
	out := make([]float64, len(p.samples))
	copy(out, p.samples)
	return out
}
