// Package paramspec is the request expander: it turns polymorphic per-axis
// parameter values (a scalar, an explicit list, or one of two range forms)
// into a concrete Cartesian point set plus axis metadata. The polymorphism
// is a tagged sum type with four constructors and a single expand
// operation, not dynamic dispatch on value shape.
package paramspec

import (
	"fmt"
	"math"
)

// Kind tags which of the four ParamValue shapes a value holds.
type Kind int

const (
	KindScalar Kind = iota
	KindList
	KindRangeStep
	KindRangePoints
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindRangeStep:
		return "range_step"
	case KindRangePoints:
		return "range_points"
	default:
		return "unknown"
	}
}

// ParamValue is the tagged variant: Scalar(x), List([x1,...]),
// RangeStep(min,max,step), or RangePoints(min,max,points).
type ParamValue struct {
	Kind Kind

	Scalar float64
	List   []float64

	Min, Max float64
	Step     float64
	Points   int
}

// Scalar constructs a fixed, non-swept value.
func Scalar(x float64) ParamValue { return ParamValue{Kind: KindScalar, Scalar: x} }

// List constructs an explicit enumeration of values.
func List(xs []float64) ParamValue {
	cp := make([]float64, len(xs))
	copy(cp, xs)
	return ParamValue{Kind: KindList, List: cp}
}

// RangeStep constructs an arithmetic range: min, min+step, ..., up to max.
func RangeStep(min, max, step float64) ParamValue {
	return ParamValue{Kind: KindRangeStep, Min: min, Max: max, Step: step}
}

// RangePoints constructs a linearly spaced range of exactly `points` values,
// inclusive of both endpoints.
func RangePoints(min, max float64, points int) ParamValue {
	return ParamValue{Kind: KindRangePoints, Min: min, Max: max, Points: points}
}

// expand resolves one ParamValue into its concrete value list, applying
// half-to-even integer rounding when integer is true. It does not
// apply domain clamping — that is Expand's job, once the axis name is
// known.
func (p ParamValue) expand(integer bool) ([]float64, error) {
	switch p.Kind {
	case KindScalar:
		return []float64{roundIfInteger(p.Scalar, integer)}, nil

	case KindList:
		if len(p.List) == 0 {
			return nil, fmt.Errorf("list value must contain at least one element")
		}
		out := make([]float64, len(p.List))
		for i, v := range p.List {
			out[i] = roundIfInteger(v, integer)
		}
		return out, nil

	case KindRangeStep:
		if p.Min > p.Max {
			return nil, fmt.Errorf("range_step: min (%v) must be <= max (%v)", p.Min, p.Max)
		}
		if p.Step <= 0 {
			return nil, fmt.Errorf("range_step: step must be > 0, got %v", p.Step)
		}
		if integer && !isIntegerValued(p.Step) {
			return nil, fmt.Errorf("range_step: step must be an integer for an integer-only axis, got %v", p.Step)
		}
		count := int(math.Floor((p.Max-p.Min)/p.Step)) + 1
		out := make([]float64, count)
		for i := 0; i < count; i++ {
			out[i] = roundIfInteger(p.Min+float64(i)*p.Step, integer)
		}
		return out, nil

	case KindRangePoints:
		if p.Min > p.Max {
			return nil, fmt.Errorf("range_points: min (%v) must be <= max (%v)", p.Min, p.Max)
		}
		if p.Points < 1 {
			return nil, fmt.Errorf("range_points: points must be >= 1, got %d", p.Points)
		}
		if p.Points == 1 {
			// Documented edge case: RangePoints(a,b,1) yields one value, a.
			return []float64{roundIfInteger(p.Min, integer)}, nil
		}
		out := make([]float64, p.Points)
		step := (p.Max - p.Min) / float64(p.Points-1)
		for i := 0; i < p.Points; i++ {
			out[i] = p.Min + float64(i)*step
		}
		// Force the last value to exactly Max: floating-point accumulation
		// of `step` across p.Points-1 additions can otherwise land a few
		// ulps away from Max, and the last value must equal Max exactly.
		out[p.Points-1] = p.Max
		if integer {
			for i := range out {
				out[i] = roundIfInteger(out[i], true)
			}
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unknown ParamValue kind %d", p.Kind)
	}
}

func roundIfInteger(v float64, integer bool) float64 {
	if !integer {
		return v
	}
	return math.RoundToEven(v)
}

func isIntegerValued(v float64) bool {
	return v == math.Trunc(v)
}
