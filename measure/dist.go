package measure

import (
	"errors"

	"github.com/businessperformancetuning/repcontrol/population"
)

// ErrUnknownIndex is returned when a distribution-measure operation names
// an index that has never received a sample.
var ErrUnknownIndex = errors.New("measure: unknown index")

// ErrUnknownBin is returned when a bin has never been written for a given
// index.
var ErrUnknownBin = errors.New("measure: unknown bin")

// ErrBinParamsNotSet is returned when derived statistics are requested
// before both the bin size and the distribution lower bound have been
// set.
var ErrBinParamsNotSet = errors.New("measure: bin size or distribution lower bound not set")

// ErrInvalidSample is returned when computing derived statistics
// encounters a run for which one of the required bin populations has no
// sample (a malformed grid: spec.md invariant requires identical bin
// population sizes within an index).
var ErrInvalidSample = errors.New("measure: missing sample while computing derived statistics")

// Distribution is a two-dimensional (index x bin) grid of populations,
// its parallel running-cumulative-sum grid, and the four derived
// per-index populations computed from them (spec.md C4).
//
// The cumulative accumulator used while ingesting samples lives on this
// struct, one per metric, instead of as a process-wide mutable static as
// in the original DstMeasure::addSample. That keeps two distribution
// metrics ingested in an interleaved fashion from corrupting each other's
// CDF (spec.md §9, REDESIGN); behaviour for the documented single-metric-
// at-a-time wire format (spec.md §4.3 note) is unchanged.
type Distribution struct {
	pmf   map[uint32][]*population.Population
	cdf   map[uint32][]*population.Population
	valid map[uint32][]bool

	binSize      float64
	distLower    float64
	binSizeSet   bool
	distLowerSet bool

	cumulative float64

	meanPop   map[uint32]*population.Population
	medianPop map[uint32]*population.Population
	q95Pop    map[uint32]*population.Population
	q99Pop    map[uint32]*population.Population
	lastRun   map[uint32]int
}

// NewDistribution returns an empty Distribution measure.
func NewDistribution() *Distribution {
	return &Distribution{
		pmf:       make(map[uint32][]*population.Population),
		cdf:       make(map[uint32][]*population.Population),
		valid:     make(map[uint32][]bool),
		meanPop:   make(map[uint32]*population.Population),
		medianPop: make(map[uint32]*population.Population),
		q95Pop:    make(map[uint32]*population.Population),
		q99Pop:    make(map[uint32]*population.Population),
		lastRun:   make(map[uint32]int),
	}
}

// AddSample records one sample of idx's bin-th bin (spec.md §4.3).
//
// The simulator is required to emit a full distribution (bins 0..B-1, in
// order) for a given (metric, idx) before starting another: the
// cumulative accumulator is reset only when bin == 0 is observed, and
// relies on that ordering to produce a meaningful running sum.
func (d *Distribution) AddSample(x float64, idx, bin uint32) {
	if bin == 0 {
		d.cumulative = 0
	}
	d.cumulative += x

	d.growIndex(idx, bin)
	d.pmf[idx][bin].AddSample(x)
	d.cdf[idx][bin].AddSample(d.cumulative)
	d.valid[idx][bin] = true
}

func (d *Distribution) growIndex(idx, bin uint32) {
	if _, ok := d.pmf[idx]; !ok {
		d.pmf[idx] = nil
		d.cdf[idx] = nil
		d.valid[idx] = nil
	}
	for uint32(len(d.pmf[idx])) <= bin {
		d.pmf[idx] = append(d.pmf[idx], population.New())
		d.cdf[idx] = append(d.cdf[idx], population.New())
		d.valid[idx] = append(d.valid[idx], false)
	}
}

// SetBinSize sets the bin width. Once set it must not change (spec.md §3
// invariant); callers are trusted to uphold this, matching the original's
// unchecked setBinSize.
func (d *Distribution) SetBinSize(s float64) {
	d.binSize = s
	d.binSizeSet = true
}

// SetDistLower sets the distribution lower bound.
func (d *Distribution) SetDistLower(s float64) {
	d.distLower = s
	d.distLowerSet = true
}

// BinSize returns the configured bin width.
func (d *Distribution) BinSize() float64 { return d.binSize }

// DistLower returns the configured distribution lower bound.
func (d *Distribution) DistLower() float64 { return d.distLower }

// Size returns the number of indices tracked by this measure.
func (d *Distribution) Size() int {
	return len(d.pmf)
}

// NumBins returns the number of bins recorded for idx.
func (d *Distribution) NumBins(idx uint32) (int, error) {
	bins, ok := d.pmf[idx]
	if !ok {
		return 0, ErrUnknownIndex
	}
	return len(bins), nil
}

// Valid reports whether idx/bin has ever been written.
func (d *Distribution) Valid(idx, bin uint32) (bool, error) {
	bins, ok := d.valid[idx]
	if !ok {
		return false, ErrUnknownIndex
	}
	if bin >= uint32(len(bins)) {
		return false, ErrUnknownBin
	}
	return bins[bin], nil
}

// PMF returns the pmf population for idx/bin.
func (d *Distribution) PMF(idx, bin uint32) (*population.Population, error) {
	return d.bin(d.pmf, idx, bin)
}

// CDF returns the cdf population for idx/bin.
func (d *Distribution) CDF(idx, bin uint32) (*population.Population, error) {
	return d.bin(d.cdf, idx, bin)
}

func (d *Distribution) bin(grid map[uint32][]*population.Population, idx, bin uint32) (*population.Population, error) {
	bins, ok := grid[idx]
	if !ok {
		return nil, ErrUnknownIndex
	}
	if bin >= uint32(len(bins)) || !d.valid[idx][bin] {
		return nil, ErrUnknownBin
	}
	return bins[bin], nil
}

// Indices returns the set of indices tracked by this measure, in no
// particular order. Intended for driving the confidence check and debug
// dumps, both of which visit every index.
func (d *Distribution) Indices() []uint32 {
	out := make([]uint32, 0, len(d.pmf))
	for idx := range d.pmf {
		out = append(out, idx)
	}
	return out
}

// computeDerived folds any newly-completed runs of idx into the four
// derived populations (spec.md §4.4). It is idempotent: repeated calls
// with no new runs are no-ops.
func (d *Distribution) computeDerived(idx uint32) error {
	bins, ok := d.pmf[idx]
	if !ok {
		return ErrUnknownIndex
	}
	if !d.binSizeSet || !d.distLowerSet {
		return ErrBinParamsNotSet
	}

	d.ensureDerived(idx)

	if len(bins) == 0 {
		return nil
	}
	runs := bins[0].Size()
	start := d.lastRun[idx]
	if runs == start {
		return nil
	}

	cdfBins := d.cdf[idx]
	for r := start; r < runs; r++ {
		mean := 0.0
		for b, pop := range bins {
			x, ok := pop.Sample(r)
			if !ok {
				return ErrInvalidSample
			}
			mean += x * (d.distLower + d.binSize*(float64(b)+1))
		}

		median, q95, q99 := 0.0, 0.0, 0.0
		for b := len(cdfBins) - 1; b >= 0; b-- {
			c, ok := cdfBins[b].Sample(r)
			if !ok {
				return ErrInvalidSample
			}
			edge := d.distLower + d.binSize*(float64(b)+1)
			if c > 0.50 {
				median = edge
			}
			if c > 0.95 {
				q95 = edge
			}
			if c > 0.99 {
				q99 = edge
			}
		}

		d.meanPop[idx].AddSample(mean)
		d.medianPop[idx].AddSample(median)
		d.q95Pop[idx].AddSample(q95)
		d.q99Pop[idx].AddSample(q99)
	}
	d.lastRun[idx] = runs
	return nil
}

func (d *Distribution) ensureDerived(idx uint32) {
	if _, ok := d.meanPop[idx]; ok {
		return
	}
	d.meanPop[idx] = population.New()
	d.medianPop[idx] = population.New()
	d.q95Pop[idx] = population.New()
	d.q99Pop[idx] = population.New()
	d.lastRun[idx] = 0
}

// MeanPopulation returns the derived mean population for idx, computing
// any outstanding runs first.
func (d *Distribution) MeanPopulation(idx uint32) (*population.Population, error) {
	if err := d.computeDerived(idx); err != nil {
		return nil, err
	}
	return d.meanPop[idx], nil
}

// MedianPopulation returns the derived median population for idx.
func (d *Distribution) MedianPopulation(idx uint32) (*population.Population, error) {
	if err := d.computeDerived(idx); err != nil {
		return nil, err
	}
	return d.medianPop[idx], nil
}

// Q95Population returns the derived 95th-percentile population for idx.
func (d *Distribution) Q95Population(idx uint32) (*population.Population, error) {
	if err := d.computeDerived(idx); err != nil {
		return nil, err
	}
	return d.q95Pop[idx], nil
}

// Q99Population returns the derived 99th-percentile population for idx.
func (d *Distribution) Q99Population(idx uint32) (*population.Population, error) {
	if err := d.computeDerived(idx); err != nil {
		return nil, err
	}
	return d.q99Pop[idx], nil
}
