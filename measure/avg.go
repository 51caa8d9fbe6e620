// Package measure implements the averaged and distribution measures
// (spec.md C3, C4): mappings from metric index to Population, and the
// two-dimensional PMF/CDF grids with their derived statistics.
package measure

import (
	"sort"

	"github.com/businessperformancetuning/repcontrol/population"
)

// Averaged is a mapping from metric index to Population (spec.md C3).
// Unlike the original AvgMeasure, the traversal cursor is not part of this
// type: ascending-order iteration is a separate Cursor value, so random
// access via Get and sequential access via a Cursor can never alias each
// other's state (spec.md §9, REDESIGN).
type Averaged struct {
	populations map[uint32]*population.Population
}

// NewAveraged returns an empty Averaged measure.
func NewAveraged() *Averaged {
	return &Averaged{populations: make(map[uint32]*population.Population)}
}

// AddSample appends x to the population for idx, creating it lazily on
// first use.
func (a *Averaged) AddSample(x float64, idx uint32) {
	p, ok := a.populations[idx]
	if !ok {
		p = population.New()
		a.populations[idx] = p
	}
	p.AddSample(x)
}

// Has reports whether a population exists for idx.
func (a *Averaged) Has(idx uint32) bool {
	_, ok := a.populations[idx]
	return ok
}

// Get returns the population for idx. ok is false if no such population
// exists; callers must check Has (or ok) before using the result, rather
// than relying on a panic/exception as the original AvgMeasure::getPopulation
// did.
func (a *Averaged) Get(idx uint32) (p *population.Population, ok bool) {
	p, ok = a.populations[idx]
	return p, ok
}

// Size returns the number of populations (distinct indices) in this
// measure.
func (a *Averaged) Size() int {
	return len(a.populations)
}

// Cursor iterates the measure's indices in ascending order. The set of
// indices is a snapshot taken at creation time, so indices added to the
// measure while a Cursor is live are not visited by it. Population looks
// the current index up in the live measure, so samples appended to an
// already-snapshotted index are visible.
type Cursor struct {
	measure *Averaged
	ids     []uint32
	pos     int
}

// Cursor returns a new Cursor positioned at the first index, if any.
func (a *Averaged) Cursor() *Cursor {
	ids := make([]uint32, 0, len(a.populations))
	for id := range a.populations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return &Cursor{measure: a, ids: ids, pos: 0}
}

// AtEnd reports whether the cursor has exhausted all indices.
func (c *Cursor) AtEnd() bool {
	return c.pos >= len(c.ids)
}

// Next advances the cursor to the next index.
func (c *Cursor) Next() {
	c.pos++
}

// ID returns the current index. Calling it when AtEnd is true panics: this
// is a programming error, not a data-dependent failure mode.
func (c *Cursor) ID() uint32 {
	if c.AtEnd() {
		panic("measure: Cursor.ID called at end")
	}
	return c.ids[c.pos]
}

// Population returns the population at the current index.
func (c *Cursor) Population() *population.Population {
	if c.AtEnd() {
		panic("measure: Cursor.Population called at end")
	}
	p, _ := c.measure.Get(c.ids[c.pos])
	return p
}
