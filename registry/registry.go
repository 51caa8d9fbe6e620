// Package registry implements the metric registry (spec.md C5): a keyed
// collection of averaged and distribution measures, plus the
// relative-confidence check predicate used by the control loop.
package registry

import "github.com/businessperformancetuning/repcontrol/measure"

// Registry is a keyed collection of averaged and distribution measures,
// one of each per metric name.
type Registry struct {
	avg map[string]*measure.Averaged
	dst map[string]*measure.Distribution
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		avg: make(map[string]*measure.Averaged),
		dst: make(map[string]*measure.Distribution),
	}
}

// AddAvgSample records a sample for the averaged measure named m at idx,
// creating the measure lazily on first use.
func (r *Registry) AddAvgSample(m string, x float64, idx uint32) {
	r.averaged(m).AddSample(x, idx)
}

// AddDistSample records a sample for the distribution measure named m at
// idx/bin, creating the measure lazily on first use.
func (r *Registry) AddDistSample(m string, x float64, idx, bin uint32) {
	r.distribution(m).AddSample(x, idx, bin)
}

// SetBinSize sets the bin width of distribution measure m.
func (r *Registry) SetBinSize(m string, binSize float64) {
	r.distribution(m).SetBinSize(binSize)
}

// SetDistLower sets the distribution lower bound of distribution measure
// m.
func (r *Registry) SetDistLower(m string, distLower float64) {
	r.distribution(m).SetDistLower(distLower)
}

func (r *Registry) averaged(m string) *measure.Averaged {
	a, ok := r.avg[m]
	if !ok {
		a = measure.NewAveraged()
		r.avg[m] = a
	}
	return a
}

func (r *Registry) distribution(m string) *measure.Distribution {
	d, ok := r.dst[m]
	if !ok {
		d = measure.NewDistribution()
		r.dst[m] = d
	}
	return d
}

// Averaged returns the averaged measure named m, if any.
func (r *Registry) Averaged(m string) (*measure.Averaged, bool) {
	a, ok := r.avg[m]
	return a, ok
}

// Distribution returns the distribution measure named m, if any.
func (r *Registry) Distribution(m string) (*measure.Distribution, bool) {
	d, ok := r.dst[m]
	return d, ok
}

// AveragedMeasures returns the full averaged-measure collection, keyed by
// metric name. Intended for iteration by the control loop and debug dumps.
func (r *Registry) AveragedMeasures() map[string]*measure.Averaged {
	return r.avg
}

// DistributionMeasures returns the full distribution-measure collection,
// keyed by metric name.
func (r *Registry) DistributionMeasures() map[string]*measure.Distribution {
	return r.dst
}

// CheckConfidence implements spec.md §4.5's relative-confidence check: it
// returns true iff, for every averaged measure whose name is in names, for
// every index visited by that measure's cursor, either the mean is <= 0
// or (2*CI(cl))/mean <= th. A population of size 1 fails immediately.
//
// A mean of exactly 0 is treated as "cannot compute a relative interval,
// accept" — a known asymmetry preserved for compatibility (spec.md §4.5,
// §9 open question 1).
func (r *Registry) CheckConfidence(names map[string]struct{}, cl, th float64) bool {
	for name := range names {
		a, ok := r.avg[name]
		if !ok {
			continue
		}
		c := a.Cursor()
		for !c.AtEnd() {
			p := c.Population()
			if p.Size() == 1 {
				return false
			}
			mean := p.Mean()
			if mean.OK() && mean.Value > 0 {
				ci := p.ConfidenceInterval(cl)
				if !ci.OK() {
					return false
				}
				if (2.0*ci.Value)/mean.Value > th {
					return false
				}
			}
			c.Next()
		}
	}
	return true
}
