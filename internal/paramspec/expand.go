package paramspec

import (
	"fmt"
	"math"

	"github.com/arnauranchal/epcalc-server/internal/kernel"
)

type resolvedAxis struct {
	name   string
	values []float64 // as declared by the caller (dB stays dB)
	kernel []float64 // as the kernel consumes them (SNR always linear)
	unit   string
	scalar bool
}

// Expand resolves every axis's
// ParamValue into a concrete value list, clamps each to its declared
// domain, takes the Cartesian product of the non-scalar axes in the order
// they were declared, and attaches the resolved modulation and requested
// metric set to every resulting point. It refuses before computing a single
// point if the product would exceed maxPoints.
func Expand(spec RequestSpec, maxPoints int) ([]ExpandedPoint, []Axis, string, error) {
	modulation, err := resolveModulationInput(spec.Modulation)
	if err != nil {
		return nil, nil, "", err
	}
	if len(spec.Metrics) == 0 {
		return nil, nil, "", fmt.Errorf("at least one metric must be requested")
	}

	resolved := make([]resolvedAxis, 0, len(spec.Axes))
	seen := make(map[string]bool, len(spec.Axes))
	for _, ax := range spec.Axes {
		if ax.Name == "" {
			return nil, nil, "", fmt.Errorf("axis name must not be empty")
		}
		if seen[ax.Name] {
			return nil, nil, "", fmt.Errorf("duplicate axis name %q", ax.Name)
		}
		seen[ax.Name] = true

		values, err := ax.Value.expand(ax.Integer)
		if err != nil {
			return nil, nil, "", fmt.Errorf("axis %q: %w", ax.Name, err)
		}

		// SNR in dB converts to linear exactly once, here. The axis
		// descriptor and per-point params keep the values the caller
		// declared, in the caller's unit; only the kernel-facing copy is
		// converted.
		unit := ""
		kernelValues := values
		if ax.Name == "SNR" {
			if modulation.snrUnit == "dB" {
				unit = "dB"
				kernelValues = make([]float64, len(values))
				for i, v := range values {
					kernelValues[i] = math.Pow(10, v/10)
				}
			} else {
				unit = "linear"
			}
		}

		// Domain clamping applies to the kernel-facing values (linear SNR).
		for i, v := range kernelValues {
			clamped, err := clampDomain(ax.Name, v)
			if err != nil {
				return nil, nil, "", err
			}
			kernelValues[i] = clamped
		}

		resolved = append(resolved, resolvedAxis{
			name:   ax.Name,
			values: values,
			kernel: kernelValues,
			unit:   unit,
			scalar: ax.Value.Kind == KindScalar,
		})
	}

	// Edge case (a): no non-scalar axes means exactly one point, flat.
	var nonScalar []resolvedAxis
	for _, r := range resolved {
		if !r.scalar {
			nonScalar = append(nonScalar, r)
		}
	}

	layout := spec.Layout
	if layout == "" {
		layout = "flat"
	}
	if len(nonScalar) != 2 {
		// Matrix layout only makes sense for exactly two swept axes.
		layout = "flat"
	}

	total := 1
	for _, r := range nonScalar {
		total *= len(r.values)
		if total > maxPoints {
			return nil, nil, "", fmt.Errorf("expansion would produce more than %d points", maxPoints)
		}
	}
	if total == 0 {
		return nil, nil, "", fmt.Errorf("expansion produced zero points")
	}

	axes := make([]Axis, len(nonScalar))
	for i, r := range nonScalar {
		axes[i] = Axis{Name: r.name, Values: append([]float64(nil), r.values...), Unit: r.unit}
	}

	metrics := append([]string(nil), spec.Metrics...)

	points := make([]ExpandedPoint, 0, total)
	indices := make([]int, len(nonScalar))
	for {
		values := make(map[string]float64, len(resolved))
		kernelValues := make(map[string]float64, len(resolved))
		for _, r := range resolved {
			if r.scalar {
				values[r.name] = r.values[0]
				kernelValues[r.name] = r.kernel[0]
			}
		}
		for i, r := range nonScalar {
			values[r.name] = r.values[indices[i]]
			kernelValues[r.name] = r.kernel[indices[i]]
		}

		// Fingerprinting over the kernel-facing values means a request in dB
		// and its linear equivalent address the same cache entry.
		fp := fingerprint(kernelValues, modulation.resolved, metrics, layout)
		points = append(points, ExpandedPoint{
			Values:       values,
			KernelValues: kernelValues,
			Modulation:   modulation.resolved,
			Metrics:      metrics,
			Layout:       layout,
			Fingerprint:  fp,
		})

		if !incrementIndices(indices, nonScalar) {
			break
		}
	}

	return points, axes, layout, nil
}

// CountPoints computes the Cartesian product size without paying for a full
// Expand: it resolves each axis's ParamValue to its concrete length (no
// domain clamping, no Cartesian product) and multiplies the non-scalar axes
// together, so cost estimation and admission can run before expansion.
func CountPoints(spec RequestSpec) (total int, nonScalarAxisCount int, err error) {
	total = 1
	for _, ax := range spec.Axes {
		values, err := ax.Value.expand(ax.Integer)
		if err != nil {
			return 0, 0, fmt.Errorf("axis %q: %w", ax.Name, err)
		}
		if ax.Value.Kind == KindScalar {
			continue
		}
		nonScalarAxisCount++
		total *= len(values)
	}
	return total, nonScalarAxisCount, nil
}

func incrementIndices(indices []int, axes []resolvedAxis) bool {
	for i := len(indices) - 1; i >= 0; i-- {
		indices[i]++
		if indices[i] < len(axes[i].values) {
			return true
		}
		indices[i] = 0
	}
	return false
}

type resolvedModulation struct {
	resolved kernel.Modulation
	snrUnit  string
}

func resolveModulationInput(m ModulationInput) (resolvedModulation, error) {
	switch {
	case m.Standard != nil && m.Custom != nil:
		return resolvedModulation{}, fmt.Errorf("modulation must be either standard or custom, not both")
	case m.Standard != nil:
		if m.Standard.M < 2 {
			return resolvedModulation{}, fmt.Errorf("M must be >= 2, got %d", m.Standard.M)
		}
		unit := m.Standard.SNRUnit
		if unit == "" {
			unit = "linear"
		}
		if unit != "dB" && unit != "linear" {
			return resolvedModulation{}, fmt.Errorf("unknown SNR unit %q", unit)
		}
		return resolvedModulation{
			resolved: kernel.Modulation{Kind: m.Standard.Kind, M: m.Standard.M},
			snrUnit:  unit,
		}, nil
	case len(m.Custom) > 0:
		var probSum float64
		for _, p := range m.Custom {
			probSum += p.Prob
		}
		if math.Abs(probSum-1) > 1e-6 {
			return resolvedModulation{}, fmt.Errorf("custom constellation probabilities must sum to 1, got %v", probSum)
		}
		return resolvedModulation{
			resolved: kernel.Modulation{Custom: m.Custom},
			snrUnit:  "linear",
		}, nil
	default:
		return resolvedModulation{}, fmt.Errorf("modulation descriptor is required")
	}
}

// clampDomain enforces the per-axis domains the kernel depends on. Axes it
// does not recognize pass through unclamped.
func clampDomain(name string, v float64) (float64, error) {
	switch name {
	case "SNR":
		if v < 0 {
			return 0, fmt.Errorf("SNR (linear) must be >= 0, got %v", v)
		}
	case "R":
		if v < 0 {
			return 0, fmt.Errorf("rate R must be >= 0, got %v", v)
		}
	case "N":
		if v < 0 {
			return 0, fmt.Errorf("diversity N must be >= 0, got %v", v)
		}
	case "n":
		if v < 1 {
			return 0, fmt.Errorf("code length n must be >= 1, got %v", v)
		}
	case "threshold":
		if v <= 0 {
			return 0, fmt.Errorf("threshold must be > 0, got %v", v)
		}
	}
	return v, nil
}
