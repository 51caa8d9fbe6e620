package registry

import "testing"

func TestRegistryAddAndGet(t *testing.T) {
	r := New()
	r.AddAvgSample("latency", 1.0, 0)
	r.AddAvgSample("latency", 3.0, 0)
	r.AddDistSample("latency", 0.5, 0, 0)
	r.SetBinSize("latency", 1)
	r.SetDistLower("latency", 0)

	a, ok := r.Averaged("latency")
	if !ok {
		t.Fatalf("expected averaged measure to exist")
	}
	p, ok := a.Get(0)
	if !ok || p.Size() != 2 {
		t.Fatalf("want 2 samples at idx 0, got ok=%v", ok)
	}

	d, ok := r.Distribution("latency")
	if !ok {
		t.Fatalf("expected distribution measure to exist")
	}
	if d.BinSize() != 1 || d.DistLower() != 0 {
		t.Fatalf("bin params not applied")
	}

	if _, ok := r.Averaged("unknown"); ok {
		t.Fatalf("expected unknown metric to be absent")
	}
}

func TestRegistryCheckConfidenceAcceptsTightSamples(t *testing.T) {
	r := New()
	for i := 0; i < 10; i++ {
		r.AddAvgSample("m", 10.0, 0)
	}
	names := map[string]struct{}{"m": {}}
	if !r.CheckConfidence(names, 0.95, 0.5) {
		t.Fatalf("expected identical samples to satisfy confidence check")
	}
}

func TestRegistryCheckConfidenceRejectsSingleSample(t *testing.T) {
	r := New()
	r.AddAvgSample("m", 10.0, 0)
	names := map[string]struct{}{"m": {}}
	if r.CheckConfidence(names, 0.95, 0.5) {
		t.Fatalf("expected a population of size 1 to fail the confidence check")
	}
}

func TestRegistryCheckConfidenceSkipsNonPositiveMean(t *testing.T) {
	r := New()
	r.AddAvgSample("m", -1.0, 0)
	r.AddAvgSample("m", 1.0, 0)
	names := map[string]struct{}{"m": {}}
	if !r.CheckConfidence(names, 0.95, 0.0001) {
		t.Fatalf("expected a non-positive mean to be treated as acceptable")
	}
}

func TestRegistryCheckConfidenceIgnoresUnrelatedMetrics(t *testing.T) {
	r := New()
	r.AddAvgSample("m", 10.0, 0)
	names := map[string]struct{}{"other": {}}
	if !r.CheckConfidence(names, 0.95, 0.0001) {
		t.Fatalf("expected check over an unreferenced metric name to trivially pass")
	}
}
