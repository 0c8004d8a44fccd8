package cost

import (
	"testing"

	"github.com/arnauranchal/epcalc-server/internal/kernel"
)

func TestEstimate_WithinBounds(t *testing.T) {
	c, err := Estimate(1, kernel.Modulation{Kind: kernel.ModPAM, M: 4}, []string{kernel.MetricErrorExponent}, TypeSingle)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if c < 1 || c > 1_000_000_000 {
		t.Fatalf("cost=%d out of [1, 1e9]", c)
	}
}

func TestEstimate_ScalesWithPointCount(t *testing.T) {
	mod := kernel.Modulation{Kind: kernel.ModPAM, M: 4}
	metrics := []string{kernel.MetricErrorExponent}

	one, err := Estimate(1, mod, metrics, TypeSingle)
	if err != nil {
		t.Fatalf("Estimate(1): %v", err)
	}
	many, err := Estimate(1000, mod, metrics, TypeSweep)
	if err != nil {
		t.Fatalf("Estimate(1000): %v", err)
	}
	if many <= one {
		t.Fatalf("cost did not scale with point count: one=%d many=%d", one, many)
	}
}

func TestEstimate_ScalesWithConstellationSize(t *testing.T) {
	metrics := []string{kernel.MetricErrorExponent}
	small, err := Estimate(100, kernel.Modulation{Kind: kernel.ModPAM, M: 4}, metrics, TypeSweep)
	if err != nil {
		t.Fatalf("Estimate(M=4): %v", err)
	}
	large, err := Estimate(100, kernel.Modulation{Kind: kernel.ModQAM, M: 256}, metrics, TypeSweep)
	if err != nil {
		t.Fatalf("Estimate(M=256): %v", err)
	}
	if large <= small {
		t.Fatalf("cost did not scale with constellation size: small=%d large=%d", small, large)
	}
}

func TestEstimate_MutualInformationCostsMoreThanErrorExponent(t *testing.T) {
	mod := kernel.Modulation{Kind: kernel.ModPAM, M: 4}
	plain, err := Estimate(100, mod, []string{kernel.MetricErrorExponent}, TypeSweep)
	if err != nil {
		t.Fatalf("Estimate(error_exponent): %v", err)
	}
	withMI, err := Estimate(100, mod, []string{kernel.MetricErrorExponent, kernel.MetricMutualInfo}, TypeSweep)
	if err != nil {
		t.Fatalf("Estimate(+mutual_information): %v", err)
	}
	if withMI <= plain {
		t.Fatalf("expected mutual_information to add cost: plain=%d withMI=%d", plain, withMI)
	}
}

func TestEstimate_NeverBelowOne(t *testing.T) {
	c, err := Estimate(0, kernel.Modulation{Custom: nil}, nil, TypeSingle)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if c < 1 {
		t.Fatalf("cost=%d, want >= 1", c)
	}
}
