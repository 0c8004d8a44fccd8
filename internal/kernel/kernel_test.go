package kernel

import (
	"context"
	"math"
	"testing"
)

func pamPoint(snr, rate float64, metrics ...string) Point {
	return Point{
		Modulation: Modulation{Kind: ModPAM, M: 4},
		SNRLinear:  snr,
		Rate:       rate,
		Diversity:  1,
		CodeLength: 100,
		Threshold:  1e-6,
		Metrics:    metrics,
	}
}

func TestCompute_ErrorExponent_FiniteAndNonNegative(t *testing.T) {
	m, err := Compute(context.Background(), pamPoint(10, 0.5, MetricErrorExponent))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	v, ok := m[MetricErrorExponent]
	if !ok {
		t.Fatalf("missing error_exponent in %+v", m)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		t.Fatalf("error_exponent=%v, want finite and >= 0", v)
	}
}

func TestCompute_HigherSNR_NeverDecreasesExponent(t *testing.T) {
	low, err := Compute(context.Background(), pamPoint(1, 0.5, MetricErrorExponent))
	if err != nil {
		t.Fatalf("Compute(low): %v", err)
	}
	high, err := Compute(context.Background(), pamPoint(20, 0.5, MetricErrorExponent))
	if err != nil {
		t.Fatalf("Compute(high): %v", err)
	}
	if high[MetricErrorExponent] < low[MetricErrorExponent] {
		t.Fatalf("exponent should not decrease with SNR: low=%v high=%v", low, high)
	}
}

func TestCompute_MutualInformation_BoundedByLog2M(t *testing.T) {
	m, err := Compute(context.Background(), pamPoint(10, 0.5, MetricMutualInfo))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	mi := m[MetricMutualInfo]
	if mi < -1e-6 || mi > math.Log2(4)+1e-6 {
		t.Fatalf("mutual_information=%v out of [0, log2(M)] bounds", mi)
	}
}

func TestCompute_CutoffRate_NonNegative(t *testing.T) {
	m, err := Compute(context.Background(), pamPoint(10, 0.5, MetricCutoffRate))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if m[MetricCutoffRate] < 0 {
		t.Fatalf("cutoff_rate should be >= 0, got %v", m[MetricCutoffRate])
	}
}

func TestCompute_AllMetricsTogether(t *testing.T) {
	metrics := []string{
		MetricErrorProbability, MetricErrorExponent, MetricOptimalRho,
		MetricMutualInfo, MetricCutoffRate, MetricCriticalRate,
	}
	m, err := Compute(context.Background(), pamPoint(10, 0.5, metrics...))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for _, name := range metrics {
		if _, ok := m[name]; !ok {
			t.Fatalf("missing metric %q in %+v", name, m)
		}
	}
	if m[MetricOptimalRho] < 0 || m[MetricOptimalRho] > 1 {
		t.Fatalf("optimal_rho=%v out of [0,1]", m[MetricOptimalRho])
	}
	if p := m[MetricErrorProbability]; p < 0 || p > 1 {
		t.Fatalf("error_probability=%v out of [0,1]", p)
	}
}

func TestCompute_CustomConstellation(t *testing.T) {
	p := Point{
		Modulation: Modulation{Custom: []ConstellationPoint{
			{Real: -1, Prob: 0.5},
			{Real: 1, Prob: 0.5},
		}},
		SNRLinear:  5,
		Rate:       0.5,
		Diversity:  1,
		CodeLength: 50,
		Threshold:  1e-6,
		Metrics:    []string{MetricErrorExponent},
	}
	m, err := Compute(context.Background(), p)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if _, ok := m[MetricErrorExponent]; !ok {
		t.Fatalf("missing error_exponent: %+v", m)
	}
}

func TestCompute_InvalidParameter_BadM(t *testing.T) {
	p := pamPoint(10, 0.5, MetricErrorExponent)
	p.Modulation.M = 1
	_, err := Compute(context.Background(), p)
	var kerr *Error
	if !asKernelError(err, &kerr) || kerr.Kind != ErrInvalidParameter {
		t.Fatalf("expected InvalidParameter, got %v", err)
	}
}

func TestCompute_InvalidParameter_NonSquareQAM(t *testing.T) {
	p := pamPoint(10, 0.5, MetricErrorExponent)
	p.Modulation = Modulation{Kind: ModQAM, M: 8}
	_, err := Compute(context.Background(), p)
	var kerr *Error
	if !asKernelError(err, &kerr) || kerr.Kind != ErrInvalidParameter {
		t.Fatalf("expected InvalidParameter for non-square QAM, got %v", err)
	}
}

func TestCompute_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Compute(ctx, pamPoint(10, 0.5, MetricErrorExponent))
	var kerr *Error
	if !asKernelError(err, &kerr) || kerr.Kind != ErrNumericalFailure {
		t.Fatalf("expected NumericalFailure on cancelled context, got %v", err)
	}
}

func asKernelError(err error, out **Error) bool {
	k, ok := err.(*Error)
	if ok {
		*out = k
	}
	return ok
}
