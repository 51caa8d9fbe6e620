// Package stat implements the statistics kernel: sample mean, sample
// variance, and the Student-t two-sided half-width confidence interval used
// throughout the rest of the module.
//
// Every function here returns a Result instead of taking a C++-style
// "bool &valid" out-parameter or throwing on bad input: the caller decides
// what "do not evaluate yet" means for its own context.
package stat

import (
	"errors"
	"math"

	gonumstat "gonum.org/v1/gonum/stat"
)

// ErrEmptyPopulation is returned when a mean or variance is requested over
// zero samples.
var ErrEmptyPopulation = errors.New("stat: empty population")

// ErrInsufficientSamples is returned when a confidence interval is
// requested with too few samples to compute one.
var ErrInsufficientSamples = errors.New("stat: fewer than two samples")

// ErrUndefinedQuantile is returned for the one Student-t cell the source
// table leaves undefined: cl == 0.975 with more than 30 degrees of
// freedom. See t_student in the original measure/stat.cc: the table
// returns a sentinel -1 there and is never guarded against at the call
// site. We surface it instead of silently substituting the normal
// quantile (spec.md §9, open question 2).
var ErrUndefinedQuantile = errors.New("stat: t-quantile undefined for cl=0.975, df>30")

// RangeCL is the sentinel confidence-level value that requests a fixed
// half-range (stddev/2) instead of a Student-t confidence interval.
const RangeCL = 2.0

// Result is the tagged result of a statistics computation: either a valid
// Value, or a non-nil Err explaining why none could be computed.
type Result struct {
	Value float64
	Err   error
}

// OK reports whether the result carries a usable value.
func (r Result) OK() bool {
	return r.Err == nil
}

// tTable holds the two-tailed Student-t critical values for degrees of
// freedom 1..30 at confidence levels 0.90, 0.95, 0.975 and 0.99,
// transcribed literally from the standard table (spec.md §4.1).
var tTable = [30][4]float64{
	{6.314, 12.706, 25.452, 63.657},
	{2.920, 4.303, 6.205, 9.925},
	{2.353, 3.182, 4.177, 5.841},
	{2.132, 2.776, 3.495, 4.604},
	{2.015, 2.571, 3.163, 4.032},
	{1.943, 2.447, 2.969, 3.707},
	{1.895, 2.365, 2.841, 3.499},
	{1.860, 2.306, 2.752, 3.355},
	{1.833, 2.262, 2.685, 3.250},
	{1.812, 2.228, 2.634, 3.169},
	{1.796, 2.201, 2.593, 3.106},
	{1.782, 2.179, 2.560, 3.055},
	{1.771, 2.160, 2.533, 3.012},
	{1.761, 2.145, 2.510, 2.977},
	{1.753, 2.131, 2.490, 2.947},
	{1.746, 2.120, 2.473, 2.921},
	{1.740, 2.110, 2.458, 2.898},
	{1.734, 2.101, 2.445, 2.878},
	{1.729, 2.093, 2.433, 2.861},
	{1.725, 2.086, 2.423, 2.845},
	{1.721, 2.080, 2.414, 2.831},
	{1.717, 2.074, 2.405, 2.819},
	{1.714, 2.069, 2.398, 2.807},
	{1.711, 2.064, 2.391, 2.797},
	{1.708, 2.060, 2.385, 2.787},
	{1.706, 2.056, 2.379, 2.779},
	{1.703, 2.052, 2.373, 2.771},
	{1.701, 2.048, 2.368, 2.763},
	{1.699, 2.045, 2.364, 2.756},
	{1.697, 2.042, 2.360, 2.750},
}

// asymptotic normal quantiles used in place of the table for df > 30, in
// the same column order as tTable.
var normalQuantile = [4]float64{1.65, 1.96, math.NaN(), 2.58}

// tStudent returns the two-tailed Student-t critical value for the given
// confidence level and degrees of freedom, following the same column
// thresholds (<=0.90, <=0.95, <=0.975, else) as the original t_student.
func tStudent(cl float64, df int) (float64, error) {
	col := 3
	switch {
	case cl <= 0.90:
		col = 0
	case cl <= 0.95:
		col = 1
	case cl <= 0.975:
		col = 2
	}

	if df > 30 {
		if col == 2 {
			return 0, ErrUndefinedQuantile
		}
		return normalQuantile[col], nil
	}
	return tTable[df-1][col], nil
}

// Mean returns the arithmetic mean of samples. It fails on an empty
// population.
func Mean(samples []float64) Result {
	if len(samples) == 0 {
		return Result{Err: ErrEmptyPopulation}
	}
	return Result{Value: gonumstat.Mean(samples, nil)}
}

// Variance returns the sample variance (Bessel's correction, n-1
// denominator). It fails on fewer than two samples.
func Variance(samples []float64) Result {
	if len(samples) < 2 {
		return Result{Err: ErrInsufficientSamples}
	}
	return Result{Value: gonumstat.Variance(samples, nil)}
}

// ConfidenceHalfWidth returns the half-width of the two-sided confidence
// interval at confidence level cl for samples.
//
// cl == RangeCL is a special mode that returns sqrt(variance)/2, a fixed
// range rather than a confidence interval, and still requires at least
// two samples. Any other cl is mapped onto a table column by tStudent's
// thresholds; a cl outside (0,1) is not rejected.
func ConfidenceHalfWidth(samples []float64, cl float64) Result {
	n := len(samples)
	if n <= 1 {
		return Result{Err: ErrInsufficientSamples}
	}

	v := Variance(samples)
	if !v.OK() {
		return v
	}

	if cl == RangeCL {
		return Result{Value: math.Sqrt(v.Value) / 2.0}
	}

	t, err := tStudent(cl, n-1)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Value: t * math.Sqrt(v.Value/float64(n))}
}
