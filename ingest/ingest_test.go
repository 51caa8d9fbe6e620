package ingest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/businessperformancetuning/repcontrol/codec"
	"github.com/businessperformancetuning/repcontrol/config"
	"github.com/businessperformancetuning/repcontrol/registry"
)

func runWithAvg(id uint32, name string, idx uint32, value float64) codec.Run {
	return codec.Run{
		RunID: id,
		Avg: []codec.AvgRecord{
			{Name: name, Samples: []codec.AvgSample{{Idx: idx, Value: value}}},
		},
	}
}

func TestReadRunAppliesConfigRelevance(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader("s latency 0 out 0.95\n"))
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}
	reg := registry.New()
	in := New(cfg, reg)

	var buf bytes.Buffer
	if err := codec.Encode(&buf, runWithAvg(1, "latency", 0, 1.0)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := codec.Encode(&buf, runWithAvg(2, "other", 0, 2.0)); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if err := in.ReadAll(&buf, nil, false, false, ""); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	a, ok := reg.Averaged("latency")
	if !ok || a.Size() != 1 {
		t.Fatalf("expected latency to be ingested")
	}
	if _, ok := reg.Averaged("other"); ok {
		t.Fatalf("expected unconfigured metric 'other' to be skipped")
	}
}

func TestReadRunRecoverIgnoresRelevance(t *testing.T) {
	cfg := config.New()
	reg := registry.New()
	in := New(cfg, reg)

	var buf bytes.Buffer
	if err := codec.Encode(&buf, runWithAvg(1, "latency", 0, 1.0)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := in.ReadAll(&buf, nil, true, false, ""); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if a, ok := reg.Averaged("latency"); !ok || a.Size() != 1 {
		t.Fatalf("expected recover mode to ingest regardless of configuration")
	}
}

func TestReadRunDeduplicatesAcrossCalls(t *testing.T) {
	cfg := config.New()
	reg := registry.New()
	in := New(cfg, reg)

	var buf bytes.Buffer
	r := runWithAvg(7, "latency", 0, 1.0)
	if err := codec.Encode(&buf, r); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := codec.Encode(&buf, r); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if err := in.ReadAll(&buf, nil, true, false, ""); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	a, _ := reg.Averaged("latency")
	if a.Size() != 1 {
		t.Fatalf("want 1 sample after dedup, got %d", a.Size())
	}
	if len(in.RunIDs()) != 1 {
		t.Fatalf("want 1 distinct run id, got %d", len(in.RunIDs()))
	}
}

func TestReadRunOneMetricFilter(t *testing.T) {
	cfg := config.New()
	reg := registry.New()
	in := New(cfg, reg)

	var buf bytes.Buffer
	if err := codec.Encode(&buf, runWithAvg(1, "latency", 0, 1.0)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := codec.Encode(&buf, runWithAvg(2, "size", 0, 2.0)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := in.ReadAll(&buf, nil, true, false, "latency"); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if _, ok := reg.Averaged("size"); ok {
		t.Fatalf("expected 'size' to be excluded by one_metric filter")
	}
	if a, ok := reg.Averaged("latency"); !ok || a.Size() != 1 {
		t.Fatalf("expected 'latency' to be ingested")
	}
}

func TestRecoverIntactFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "save.dat")

	var buf bytes.Buffer
	if err := codec.Encode(&buf, runWithAvg(1, "latency", 0, 1.0)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ok, err := Recover(path, false, "")
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if !ok {
		t.Fatalf("expected intact file to report ok=true")
	}
}

func TestRecoverTruncatesOnCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "save.dat")

	var buf bytes.Buffer
	for id := uint32(1); id <= 3; id++ {
		if err := codec.Encode(&buf, runWithAvg(id, "latency", 0, float64(id))); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}
	good := buf.Bytes()
	corrupted := append(append([]byte{}, good...), []byte{1, 2, 3}...) // a truncated trailing record

	if err := os.WriteFile(path, corrupted, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ok, err := Recover(path, false, "")
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if ok {
		t.Fatalf("expected corrupted file to report ok=false")
	}

	if _, err := os.Stat(path + ".old"); err != nil {
		t.Fatalf("expected backup file to exist: %v", err)
	}

	cfg := config.New()
	reg := registry.New()
	in := New(cfg, reg)
	recovered, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open recovered save file: %v", err)
	}
	defer recovered.Close()
	if err := in.ReadAll(recovered, nil, true, false, ""); err != nil {
		t.Fatalf("ReadAll recovered: %v", err)
	}
	// 3 good runs in, N-1 = 2 kept.
	if len(in.RunIDs()) != 2 {
		t.Fatalf("want 2 recovered records, got %d", len(in.RunIDs()))
	}
}
