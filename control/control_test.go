package control

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/businessperformancetuning/repcontrol/codec"
	"github.com/businessperformancetuning/repcontrol/config"
)

func TestStopConditionMaxRuns(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader("save /tmp/x.save\nmaxruns 5\ns latency 0 check 0.95 0.0001\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c := New(cfg)
	if !c.StopCondition(5) {
		t.Fatalf("expected stop at n_runs == maxruns")
	}
	if c.StopCondition(4) {
		t.Fatalf("expected no stop below maxruns absent convergence")
	}
}

func TestStopConditionConvergence(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader(
		"save /tmp/x.save\nminruns 2\nmaxruns 100\ns latency 0 check 0.95 0.5\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c := New(cfg)
	for i := 0; i < 10; i++ {
		c.Registry().AddAvgSample("latency", 10.0, 0)
	}
	if !c.StopCondition(10) {
		t.Fatalf("expected stop condition satisfied once converged")
	}
}

func TestStopConditionBelowMinRuns(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader(
		"save /tmp/x.save\nminruns 5\nmaxruns 100\ns latency 0 check 0.95 0.5\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c := New(cfg)
	for i := 0; i < 3; i++ {
		c.Registry().AddAvgSample("latency", 10.0, 0)
	}
	if c.StopCondition(3) {
		t.Fatalf("expected no stop before minruns reached")
	}
}

func TestCheckAvgDescriptorMissingPopulationNotConverged(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader("save /tmp/x.save\ns latency 0 check 0.95 0.5\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c := New(cfg)
	if c.CheckConfidence() != false {
		t.Fatalf("expected an unreported averaged metric to fail the confidence check")
	}
}

func TestLoadDataWritesStopWhenAlreadyConverged(t *testing.T) {
	dir := t.TempDir()
	savePath := filepath.Join(dir, "save.dat")

	var saveBuf bytes.Buffer
	for id := uint32(1); id <= 5; id++ {
		run := codec.Run{
			RunID: id,
			Avg: []codec.AvgRecord{
				{Name: "latency", Samples: []codec.AvgSample{{Idx: 0, Value: 10.0}}},
			},
		}
		if err := codec.Encode(&saveBuf, run); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}
	if err := os.WriteFile(savePath, saveBuf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := config.Parse(strings.NewReader(
		"save " + savePath + "\nminruns 2\nmaxruns 100\ns latency 0 check 0.95 0.5\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	fileIn := filepath.Join(dir, "in.pipe")
	fileOut := filepath.Join(dir, "out.pipe")
	if err := os.WriteFile(fileIn, nil, 0o644); err != nil {
		t.Fatalf("WriteFile fileIn: %v", err)
	}
	if err := os.WriteFile(fileOut, nil, 0o644); err != nil {
		t.Fatalf("WriteFile fileOut: %v", err)
	}

	c := New(cfg)
	if err := c.LoadData(fileIn, fileOut, ""); err != nil {
		t.Fatalf("LoadData: %v", err)
	}

	out, err := os.ReadFile(fileOut)
	if err != nil {
		t.Fatalf("ReadFile fileOut: %v", err)
	}
	// u32 n_saved, 5 u32 ids, then a u32 STOP token.
	if len(out) != 4+5*4+4 {
		t.Fatalf("unexpected command channel length: %d", len(out))
	}
	stop := binary.LittleEndian.Uint32(out[len(out)-4:])
	if stop != cmdStop {
		t.Fatalf("expected STOP token, got %d", stop)
	}
}

func TestCheckSavedDataRequiresMoreThanOneRun(t *testing.T) {
	dir := t.TempDir()
	savePath := filepath.Join(dir, "save.dat")

	var buf bytes.Buffer
	run := codec.Run{
		RunID: 1,
		Avg: []codec.AvgRecord{
			{Name: "latency", Samples: []codec.AvgSample{{Idx: 0, Value: 10.0}}},
		},
	}
	if err := codec.Encode(&buf, run); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := os.WriteFile(savePath, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := config.Parse(strings.NewReader(
		"save " + savePath + "\ns latency 0 check 0.95 0.5\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	ok, err := CheckSavedData(savePath, cfg)
	if err != nil {
		t.Fatalf("CheckSavedData: %v", err)
	}
	if ok {
		t.Fatalf("expected a single saved run never to satisfy CheckSavedData")
	}
}

func TestDumpDebugFiltersByMetricAndIncludesSamples(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader("save /tmp/x.save\ns latency 0 out 0.95\nd sizes 0 pmf out 0.95\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c := New(cfg)
	c.Registry().AddAvgSample("latency", 1.5, 0)
	c.Registry().AddAvgSample("latency", 2.5, 0)
	c.Registry().AddAvgSample("other", 9.0, 0)

	var buf bytes.Buffer
	if err := c.DumpDebug(&buf, 0.95, "latency"); err != nil {
		t.Fatalf("DumpDebug: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "avg latency[0]") {
		t.Fatalf("expected latency population in dump, got %q", out)
	}
	if strings.Contains(out, "avg other[0]") {
		t.Fatalf("expected oneMetric filter to exclude \"other\", got %q", out)
	}
	if !strings.Contains(out, "1.5") || !strings.Contains(out, "2.5") {
		t.Fatalf("expected raw samples in dump, got %q", out)
	}
}

func TestDumpRegistryWritesStructuralDump(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader("save /tmp/x.save\ns latency 0 out 0.95\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c := New(cfg)
	c.Registry().AddAvgSample("latency", 4.0, 0)

	var buf bytes.Buffer
	c.DumpRegistry(&buf)
	if !strings.Contains(buf.String(), "latency") {
		t.Fatalf("expected spew dump to mention metric name, got %q", buf.String())
	}
}
