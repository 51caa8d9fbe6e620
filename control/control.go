// Package control implements the replication control loop (spec.md C9):
// driving a simulator over a GO/STOP command channel, durably saving
// every accepted run before the next command is issued, and evaluating
// the confidence-interval stop condition after each run.
package control

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/businessperformancetuning/repcontrol/config"
	"github.com/businessperformancetuning/repcontrol/ingest"
	"github.com/businessperformancetuning/repcontrol/measure"
	"github.com/businessperformancetuning/repcontrol/population"
	"github.com/businessperformancetuning/repcontrol/registry"
	"github.com/davecgh/go-spew/spew"
	"github.com/inhies/go-bytesize"
)

const (
	cmdStop uint32 = 0
	cmdGo   uint32 = 1
)

// Controller drives one replication experiment: it owns the metric
// registry accumulated from the save file and from new runs, and decides
// when the simulator has run long enough.
type Controller struct {
	cfg *config.Config
	reg *registry.Registry
	in  *ingest.Ingester
}

// New returns a Controller configured by cfg.
func New(cfg *config.Config) *Controller {
	reg := registry.New()
	return &Controller{cfg: cfg, reg: reg, in: ingest.New(cfg, reg)}
}

// Registry returns the controller's metric registry, for diagnostics and
// text dumps.
func (c *Controller) Registry() *registry.Registry {
	return c.reg
}

// LoadData runs the full control loop (spec.md §4.8): load the save
// file, announce what is already saved, then alternate evaluating the
// stop condition with reading one run at a time from fileIn until the
// stop condition is satisfied. A clean end-of-file on fileIn before a
// run id reopens fileIn and reads again; an I/O or decode error ends the
// loop and is returned.
//
// oneMetric, when non-empty, restricts ingestion to samples of that
// metric name (the CLI's -o/--metric flag), the same filter
// Ingester.ReadRun already applies to a single call.
func (c *Controller) LoadData(fileIn, fileOut, oneMetric string) error {
	saveFile, err := os.OpenFile(c.cfg.SavePath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("control: open save file: %w", err)
	}
	defer saveFile.Close()

	if err := c.in.ReadAll(saveFile, nil, false, false, oneMetric); err != nil {
		return fmt.Errorf("control: load save file: %w", err)
	}
	if fi, err := saveFile.Stat(); err == nil {
		log.Infof("loaded save file %v (%v, %d runs)", c.cfg.SavePath, bytesize.New(float64(fi.Size())), len(c.in.RunIDs()))
	}

	out, err := os.OpenFile(fileOut, os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("control: open command channel: %w", err)
	}
	defer out.Close()

	ids := c.in.RunIDs()
	if err := writeU32(out, uint32(len(ids))); err != nil {
		return err
	}
	for _, id := range ids {
		if err := writeU32(out, id); err != nil {
			return err
		}
	}

	if c.StopCondition(len(ids)) {
		return writeU32(out, cmdStop)
	}
	if err := writeU32(out, cmdGo); err != nil {
		return err
	}

	for {
		in, err := os.Open(fileIn)
		if err != nil {
			return fmt.Errorf("control: open run channel: %w", err)
		}
		ok, err := c.in.ReadRun(in, saveFile, false, false, oneMetric)
		closeErr := in.Close()
		if err != nil {
			return fmt.Errorf("control: read run: %w", err)
		}
		if closeErr != nil {
			return closeErr
		}
		if !ok {
			// Clean EOF before any run_id: the simulator hasn't written
			// the next run yet. Retry the open without consuming the GO
			// token already issued.
			continue
		}

		if c.StopCondition(len(c.in.RunIDs())) {
			return writeU32(out, cmdStop)
		}
		if err := writeU32(out, cmdGo); err != nil {
			return err
		}
	}
}

// StopCondition implements spec.md §4.8's stop condition: n_runs ≥
// max_runs (when max_runs is set), or n_runs ≥ max(min_runs, 2) and the
// confidence predicate holds over every check==true sub-metric.
func (c *Controller) StopCondition(nRuns int) bool {
	if c.cfg.MaxRuns > 0 && uint32(nRuns) >= c.cfg.MaxRuns {
		return true
	}
	minBound := c.cfg.MinRuns
	if minBound < 2 {
		minBound = 2
	}
	if uint32(nRuns) < minBound {
		return false
	}
	return c.CheckConfidence()
}

// CheckConfidence walks every averaged and distribution descriptor with
// check == true and returns false at the first one that fails its
// relative-confidence bound (spec.md §4.8).
func (c *Controller) CheckConfidence() bool {
	for _, name := range c.cfg.MetricNames() {
		for _, d := range c.cfg.AvgDescriptors(name) {
			if d.Check && !c.checkAvgDescriptor(name, d) {
				return false
			}
		}
		for _, d := range c.cfg.DistDescriptors(name) {
			if d.Check && !c.checkDistDescriptor(name, d) {
				return false
			}
		}
	}
	return true
}

// checkAvgDescriptor evaluates one averaged metric's stop condition. A
// missing measure/population or an invalid statistic is treated as
// "retain not-yet-converged" (spec.md §7): it fails the check rather
// than being skipped.
func (c *Controller) checkAvgDescriptor(name string, d *config.AvgDescriptor) bool {
	a, ok := c.reg.Averaged(name)
	if !ok {
		return false
	}
	p, ok := a.Get(d.Idx)
	if !ok {
		return false
	}
	return relativeConfidenceOK(p, d.CheckCL, d.Threshold, true)
}

// checkDistDescriptor evaluates one distribution sub-metric's stop
// condition. Unlike the averaged case, an invalid statistic here skips
// the sub-metric for this pass rather than failing it (spec.md §7),
// mirroring the original's silent skip when a population's mean cannot
// be read.
func (c *Controller) checkDistDescriptor(name string, d *config.DistDescriptor) bool {
	dist, ok := c.reg.Distribution(name)
	if !ok {
		return true
	}
	switch d.Sub {
	case "pmf", "cdf":
		n, err := dist.NumBins(d.Idx)
		if err != nil {
			return true
		}
		for bin := 0; bin < n; bin++ {
			var p *population.Population
			var err error
			if d.Sub == "pmf" {
				p, err = dist.PMF(d.Idx, uint32(bin))
			} else {
				p, err = dist.CDF(d.Idx, uint32(bin))
			}
			if err != nil {
				continue
			}
			if !relativeConfidenceOK(p, d.CheckCL, d.Threshold, false) {
				return false
			}
		}
		return true
	default:
		p, err := derivedPopulation(dist, d.Idx, d.Sub)
		if err != nil {
			return true
		}
		return relativeConfidenceOK(p, d.CheckCL, d.Threshold, false)
	}
}

func derivedPopulation(dist *measure.Distribution, idx uint32, sub string) (*population.Population, error) {
	switch sub {
	case "mean":
		return dist.MeanPopulation(idx)
	case "median":
		return dist.MedianPopulation(idx)
	case "q95":
		return dist.Q95Population(idx)
	case "q99":
		return dist.Q99Population(idx)
	}
	return nil, fmt.Errorf("control: unknown sub-metric %q", sub)
}

// relativeConfidenceOK evaluates "mean ≤ 0, or 2·CI(cl)/mean ≤
// threshold". failOnInvalid selects what an unreadable statistic means:
// true for the averaged-metric convention (not-yet-converged), false for
// the distribution-metric convention (skip, treat as acceptable).
func relativeConfidenceOK(p *population.Population, cl, threshold float64, failOnInvalid bool) bool {
	mean := p.Mean()
	if !mean.OK() {
		return !failOnInvalid
	}
	if mean.Value <= 0 {
		return true
	}
	ci := p.ConfidenceInterval(cl)
	if !ci.OK() {
		return !failOnInvalid
	}
	return (2.0*ci.Value)/mean.Value <= threshold
}

// CheckSavedData loads path under cfg's relevance rules and reports
// whether its confidence requirements are already satisfied, without
// running the control loop (supplemented feature, grounded on the
// original's Input::checkSavedData).
func CheckSavedData(path string, cfg *config.Config) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	reg := registry.New()
	in := ingest.New(cfg, reg)
	if err := in.ReadAll(f, nil, false, false, ""); err != nil {
		return false, err
	}
	if len(in.RunIDs()) <= 1 {
		return false, nil
	}

	c := &Controller{cfg: cfg, reg: reg, in: in}
	return c.CheckConfidence(), nil
}

// DumpDebug writes a human-readable snapshot of every tracked metric to
// w: the number of runs seen, then one line per averaged population with
// its size, mean, confidence interval at cl, and raw samples, then one
// line per distribution index with its bin count only (supplemented
// feature, grounded on the original's debug dump of Metrics state). If oneMetric is
// non-empty, only that metric's populations are written, mirroring the
// CLI's -o/--metric selection for what gets "printed at exit".
func (c *Controller) DumpDebug(w io.Writer, cl float64, oneMetric string) error {
	ids := c.in.RunIDs()
	if _, err := fmt.Fprintf(w, "runs: %d\n", len(ids)); err != nil {
		return err
	}
	for name, a := range c.reg.AveragedMeasures() {
		if oneMetric != "" && name != oneMetric {
			continue
		}
		cur := a.Cursor()
		for !cur.AtEnd() {
			p := cur.Population()
			mean := p.Mean()
			ci := p.ConfidenceInterval(cl)
			if _, err := fmt.Fprintf(w, "avg %s[%d]: n=%d mean=%v ci(%.3g)=%v samples=%v\n",
				name, cur.ID(), p.Size(), mean, cl, ci, p.Samples()); err != nil {
				return err
			}
			cur.Next()
		}
	}
	for name, d := range c.reg.DistributionMeasures() {
		if oneMetric != "" && name != oneMetric {
			continue
		}
		for _, idx := range d.Indices() {
			n, _ := d.NumBins(idx)
			if _, err := fmt.Fprintf(w, "dist %s[%d]: bins=%d\n", name, idx, n); err != nil {
				return err
			}
		}
	}
	return nil
}

// DumpRegistry writes a full structural dump of the underlying registry
// to w via go-spew, for diagnosing population/measure internals that
// DumpDebug's summary view doesn't surface. It is the trace-level
// diagnostic the CLI enables under -d trace.
func (c *Controller) DumpRegistry(w io.Writer) {
	spew.Fdump(w, c.reg)
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}
