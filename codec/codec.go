// Package codec implements the binary run-record wire format (spec.md C7,
// §4.6): one run per record, little-endian u32/f64 fields, optionally
// mirrored byte-for-byte to a save file as it is read.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxMetricName is the largest accepted metric name length, in bytes,
// including the trailing NUL. A longer name_len field marks the record
// as corrupt.
const MaxMetricName = 1024

// CorruptError reports a malformed run record: a short read inside the
// record (as opposed to a clean end-of-file before the run_id field,
// which is not an error) or a name_len exceeding MaxMetricName.
type CorruptError struct {
	Reason string
	Err    error
}

func (e *CorruptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec: corrupt run record: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("codec: corrupt run record: %s", e.Reason)
}

func (e *CorruptError) Unwrap() error { return e.Err }

func corrupt(reason string, err error) error {
	return &CorruptError{Reason: reason, Err: err}
}

// AvgSample is one (index, value) pair of an averaged metric record.
type AvgSample struct {
	Idx   uint32
	Value float64
}

// AvgRecord is one averaged metric's contribution to a run.
type AvgRecord struct {
	Name    string
	Samples []AvgSample
}

// DistIndex is one index's full bin vector within a distribution metric
// record.
type DistIndex struct {
	Idx  uint32
	Bins []float64
}

// DistRecord is one distribution metric's contribution to a run.
type DistRecord struct {
	Name      string
	BinSize   float64
	DistLower float64
	Indices   []DistIndex
}

// Run is one fully-decoded run record.
type Run struct {
	RunID uint32
	Avg   []AvgRecord
	Dist  []DistRecord
}

// ReadRun reads a single run record from r.
//
// If mirror is non-nil and the record is newly seen, every byte consumed
// for this record (after the initial run_id) is also written to mirror;
// the run_id itself is written first. If seen already contains the
// record's run_id, the record is skipped byte-exact without touching
// mirror at all — a duplicate run is already durable and must not be
// appended to the save file again (spec.md §5).
//
// ok is false only at a clean end-of-file encountered before any byte of
// the run_id could be read; that is the sole non-error termination of a
// read loop. dup reports whether the record was a duplicate (in which
// case run only carries RunID). Any other short read, or a name_len
// exceeding MaxMetricName, yields a *CorruptError.
func ReadRun(r io.Reader, mirror io.Writer, seen map[uint32]bool) (run Run, ok bool, dup bool, err error) {
	var idBuf [4]byte
	n, err := io.ReadFull(r, idBuf[:])
	if n == 0 && errors.Is(err, io.EOF) {
		return Run{}, false, false, nil
	}
	if err != nil {
		return Run{}, false, false, corrupt("run_id", err)
	}
	id := binary.LittleEndian.Uint32(idBuf[:])

	if seen != nil && seen[id] {
		if err := skipBody(r); err != nil {
			return Run{}, true, true, err
		}
		return Run{RunID: id}, true, true, nil
	}

	body := r
	if mirror != nil {
		if _, err := mirror.Write(idBuf[:]); err != nil {
			return Run{}, true, false, err
		}
		body = io.TeeReader(r, mirror)
	}

	run, err = decodeBody(body, id)
	if err != nil {
		return Run{}, true, false, err
	}
	return run, true, false, nil
}

// Skip advances r past one run record's body (everything after the
// run_id, which the caller is assumed to have already consumed), without
// retaining any of its data. It is byte-exact: every field is parsed
// enough to compute its length, then discarded.
func Skip(r io.Reader) error {
	return skipBody(r)
}

// Decode reads exactly one run record (including its run_id) from r with
// no deduplication and no mirroring. It is the inverse of Encode and is
// used for round-trip testing and one-off record inspection.
func Decode(r io.Reader) (run Run, ok bool, err error) {
	run, ok, _, err = ReadRun(r, nil, nil)
	return run, ok, err
}

func decodeBody(r io.Reader, id uint32) (Run, error) {
	run := Run{RunID: id}

	nAvg, err := readU32(r, "n_avg")
	if err != nil {
		return Run{}, err
	}
	run.Avg = make([]AvgRecord, 0, nAvg)
	for i := uint32(0); i < nAvg; i++ {
		rec, err := decodeAvgRecord(r)
		if err != nil {
			return Run{}, err
		}
		run.Avg = append(run.Avg, rec)
	}

	nDst, err := readU32(r, "n_dst")
	if err != nil {
		return Run{}, err
	}
	run.Dist = make([]DistRecord, 0, nDst)
	for i := uint32(0); i < nDst; i++ {
		rec, err := decodeDistRecord(r)
		if err != nil {
			return Run{}, err
		}
		run.Dist = append(run.Dist, rec)
	}

	return run, nil
}

func decodeAvgRecord(r io.Reader) (AvgRecord, error) {
	nIdx, err := readU32(r, "avg n_idx")
	if err != nil {
		return AvgRecord{}, err
	}
	name, err := readName(r)
	if err != nil {
		return AvgRecord{}, err
	}
	rec := AvgRecord{Name: name, Samples: make([]AvgSample, 0, nIdx)}
	for j := uint32(0); j < nIdx; j++ {
		idx, err := readU32(r, "avg metric_idx")
		if err != nil {
			return AvgRecord{}, err
		}
		v, err := readF64(r, "avg sample")
		if err != nil {
			return AvgRecord{}, err
		}
		rec.Samples = append(rec.Samples, AvgSample{Idx: idx, Value: v})
	}
	return rec, nil
}

func decodeDistRecord(r io.Reader) (DistRecord, error) {
	nIdx, err := readU32(r, "dist n_idx")
	if err != nil {
		return DistRecord{}, err
	}
	name, err := readName(r)
	if err != nil {
		return DistRecord{}, err
	}
	binSize, err := readF64(r, "dist bin_size")
	if err != nil {
		return DistRecord{}, err
	}
	distLower, err := readF64(r, "dist dist_lower")
	if err != nil {
		return DistRecord{}, err
	}
	nBins, err := readU32(r, "dist n_bins")
	if err != nil {
		return DistRecord{}, err
	}

	rec := DistRecord{Name: name, BinSize: binSize, DistLower: distLower, Indices: make([]DistIndex, 0, nIdx)}
	for j := uint32(0); j < nIdx; j++ {
		idx, err := readU32(r, "dist metric_idx")
		if err != nil {
			return DistRecord{}, err
		}
		bins := make([]float64, nBins)
		for k := uint32(0); k < nBins; k++ {
			v, err := readF64(r, "dist sample")
			if err != nil {
				return DistRecord{}, err
			}
			bins[k] = v
		}
		rec.Indices = append(rec.Indices, DistIndex{Idx: idx, Bins: bins})
	}
	return rec, nil
}

// Encode writes run in the wire format (the reverse of Decode).
func Encode(w io.Writer, run Run) error {
	if err := writeU32(w, run.RunID); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(run.Avg))); err != nil {
		return err
	}
	for _, rec := range run.Avg {
		if err := writeU32(w, uint32(len(rec.Samples))); err != nil {
			return err
		}
		if err := writeName(w, rec.Name); err != nil {
			return err
		}
		for _, s := range rec.Samples {
			if err := writeU32(w, s.Idx); err != nil {
				return err
			}
			if err := writeF64(w, s.Value); err != nil {
				return err
			}
		}
	}

	if err := writeU32(w, uint32(len(run.Dist))); err != nil {
		return err
	}
	for _, rec := range run.Dist {
		if err := writeU32(w, uint32(len(rec.Indices))); err != nil {
			return err
		}
		if err := writeName(w, rec.Name); err != nil {
			return err
		}
		if err := writeF64(w, rec.BinSize); err != nil {
			return err
		}
		if err := writeF64(w, rec.DistLower); err != nil {
			return err
		}
		nBins := uint32(0)
		if len(rec.Indices) > 0 {
			nBins = uint32(len(rec.Indices[0].Bins))
		}
		if err := writeU32(w, nBins); err != nil {
			return err
		}
		for _, idx := range rec.Indices {
			if err := writeU32(w, idx.Idx); err != nil {
				return err
			}
			for _, v := range idx.Bins {
				if err := writeF64(w, v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// skipBody discards one run record's body (everything after the run_id),
// byte-exact, without allocating per-sample storage.
func skipBody(r io.Reader) error {
	nAvg, err := readU32(r, "n_avg")
	if err != nil {
		return err
	}
	for i := uint32(0); i < nAvg; i++ {
		nIdx, err := readU32(r, "avg n_idx")
		if err != nil {
			return err
		}
		nameLen, err := readU32(r, "avg name_len")
		if err != nil {
			return err
		}
		if nameLen > MaxMetricName {
			return corrupt("avg name_len too long", nil)
		}
		if err := discard(r, int64(nameLen)+int64(nIdx)*12); err != nil {
			return err
		}
	}

	nDst, err := readU32(r, "n_dst")
	if err != nil {
		return err
	}
	for i := uint32(0); i < nDst; i++ {
		nIdx, err := readU32(r, "dist n_idx")
		if err != nil {
			return err
		}
		nameLen, err := readU32(r, "dist name_len")
		if err != nil {
			return err
		}
		if nameLen > MaxMetricName {
			return corrupt("dist name_len too long", nil)
		}
		if err := discard(r, int64(nameLen)+16); err != nil { // name + bin_size + dist_lower
			return err
		}
		nBins, err := readU32(r, "dist n_bins")
		if err != nil {
			return err
		}
		if err := discard(r, int64(nIdx)*(4+int64(nBins)*8)); err != nil {
			return err
		}
	}
	return nil
}

func discard(r io.Reader, n int64) error {
	if n == 0 {
		return nil
	}
	k, err := io.CopyN(io.Discard, r, n)
	if err != nil {
		return corrupt("short read while skipping", err)
	}
	if k != n {
		return corrupt("short read while skipping", io.ErrUnexpectedEOF)
	}
	return nil
}

func readU32(r io.Reader, field string) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, corrupt(field, err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readF64(r io.Reader, field string) (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, corrupt(field, err)
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[:])), nil
}

func readName(r io.Reader) (string, error) {
	nameLen, err := readU32(r, "name_len")
	if err != nil {
		return "", err
	}
	if nameLen > MaxMetricName {
		return "", corrupt("name_len too long", nil)
	}
	buf := make([]byte, nameLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", corrupt("name", err)
	}
	// trim the trailing NUL the wire format requires name_len to include.
	if nameLen > 0 && buf[nameLen-1] == 0 {
		buf = buf[:nameLen-1]
	}
	return string(buf), nil
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeF64(w io.Writer, v float64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	_, err := w.Write(buf[:])
	return err
}

func writeName(w io.Writer, name string) error {
	buf := append([]byte(name), 0)
	if err := writeU32(w, uint32(len(buf))); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}
