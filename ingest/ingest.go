// Package ingest implements run-record ingestion and save-file recovery
// (spec.md C8): decoding run records (via codec), applying configuration
// relevance and the recover/only-avg/one-metric filters, feeding samples
// into a metric registry, and repairing a save file found to be corrupt.
package ingest

import (
	"errors"
	"io"
	"os"

	"github.com/businessperformancetuning/repcontrol/codec"
	"github.com/businessperformancetuning/repcontrol/config"
	"github.com/businessperformancetuning/repcontrol/registry"
	"github.com/inhies/go-bytesize"
)

// Ingester tracks the set of run ids already folded into a registry, so
// that duplicate records arriving later in the same stream are dropped
// without being re-ingested or re-mirrored.
type Ingester struct {
	cfg   *config.Config
	reg   *registry.Registry
	seen  map[uint32]bool
	order []uint32
}

// New returns an Ingester that writes samples into reg, consulting cfg
// for per-index relevance when recover is false.
func New(cfg *config.Config, reg *registry.Registry) *Ingester {
	return &Ingester{cfg: cfg, reg: reg, seen: make(map[uint32]bool)}
}

// RunIDs returns the distinct run ids ingested so far, in first-seen
// order.
func (in *Ingester) RunIDs() []uint32 {
	return in.order
}

// ReadRun reads and ingests a single run record from r, optionally
// mirroring newly-seen bytes to mirror. See codec.ReadRun for the ok/dup
// return semantics.
//
// If recover is true, every sample is ingested regardless of
// configuration relevance. If onlyAvg is true, distribution samples are
// decoded (so the stream stays byte-aligned and mirrors correctly) but
// not added to the registry. If oneMetric is non-empty, only samples of
// that metric name are ingested.
func (in *Ingester) ReadRun(r io.Reader, mirror io.Writer, recover, onlyAvg bool, oneMetric string) (ok bool, err error) {
	run, ok, dup, err := codec.ReadRun(r, mirror, in.seen)
	if err != nil || !ok || dup {
		return ok, err
	}
	in.seen[run.RunID] = true
	in.order = append(in.order, run.RunID)
	in.apply(run, recover, onlyAvg, oneMetric)
	return true, nil
}

func (in *Ingester) apply(run codec.Run, recover, onlyAvg bool, oneMetric string) {
	for _, rec := range run.Avg {
		if oneMetric != "" && rec.Name != oneMetric {
			continue
		}
		for _, s := range rec.Samples {
			relevant := recover
			if !relevant {
				_, relevant = in.cfg.GetDescAvg(rec.Name, s.Idx)
			}
			if relevant {
				in.reg.AddAvgSample(rec.Name, s.Value, s.Idx)
			}
		}
	}

	for _, rec := range run.Dist {
		nameOK := oneMetric == "" || rec.Name == oneMetric
		if nameOK && !onlyAvg {
			for _, idxRec := range rec.Indices {
				relevant := recover || in.cfg.DistRelevant(rec.Name, idxRec.Idx)
				if !relevant {
					continue
				}
				for bin, v := range idxRec.Bins {
					in.reg.AddDistSample(rec.Name, v, idxRec.Idx, uint32(bin))
				}
			}
		}
		in.reg.SetBinSize(rec.Name, rec.BinSize)
		in.reg.SetDistLower(rec.Name, rec.DistLower)
	}
}

// ReadAll ingests every record in r, in order, until clean EOF.
func (in *Ingester) ReadAll(r io.Reader, mirror io.Writer, recover, onlyAvg bool, oneMetric string) error {
	for {
		ok, err := in.ReadRun(r, mirror, recover, onlyAvg, oneMetric)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

// Recover implements spec.md §4.7: it reads every record of the save
// file at path in recover mode. If a corrupt record is found, the file
// is copied to "<path>.old", and the first N-1 known-good records (N
// being the number of distinct run ids seen before the corruption) are
// re-decoded from the backup and rewritten to a fresh save file at path.
// It returns false when data loss occurred during recovery, true when
// the file was already intact.
func Recover(path string, onlyAvg bool, oneMetric string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}

	seen := make(map[uint32]bool)
	n := 0
	var corrupt *codec.CorruptError
readLoop:
	for {
		run, ok, dup, err := codec.ReadRun(f, nil, seen)
		if err != nil {
			var ce *codec.CorruptError
			if errors.As(err, &ce) {
				corrupt = ce
				break readLoop
			}
			f.Close()
			return false, err
		}
		if !ok {
			break readLoop
		}
		if !dup {
			seen[run.RunID] = true
			n++
		}
	}
	f.Close()

	if corrupt == nil {
		return true, nil
	}
	return false, repair(path, n)
}

// repair copies the damaged save file aside and rewrites it with the
// first keep known-good records re-decoded from the backup.
func repair(path string, keep int) error {
	oldPath := path + ".old"
	if err := copyFile(path, oldPath); err != nil {
		return err
	}
	if fi, err := os.Stat(oldPath); err == nil {
		log.Warnf("save file corrupt, backed up %v (%v) before recovery", oldPath, bytesize.New(float64(fi.Size())))
	}
	if keep > 0 {
		keep--
	}

	oldFile, err := os.Open(oldPath)
	if err != nil {
		return err
	}
	defer oldFile.Close()

	newFile, err := os.Create(path)
	if err != nil {
		return err
	}
	defer newFile.Close()

	recSeen := make(map[uint32]bool)
	for i := 0; i < keep; i++ {
		run, ok, dup, err := codec.ReadRun(oldFile, newFile, recSeen)
		if err != nil || !ok {
			break
		}
		if !dup {
			recSeen[run.RunID] = true
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
