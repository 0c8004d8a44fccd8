package paramspec

import "github.com/arnauranchal/epcalc-server/internal/kernel"

// AxisInput is one named parameter in a request, in the order the caller
// declared it. Order matters: it is preserved into the axis descriptor list
// and into the row-major iteration order for flat/matrix layout.
type AxisInput struct {
	Name    string
	Value   ParamValue
	Integer bool // true for axes such as "n" (code length) that must land on integers
}

// ModulationInput is the request's modulation descriptor: either a standard
// triple or an explicit custom constellation, never both.
type ModulationInput struct {
	Standard *StandardModulation
	Custom   []kernel.ConstellationPoint
}

// StandardModulation is the {kind, M, SNR unit} triple. SNRUnit
// governs how values on an axis named "SNR" are interpreted before they
// reach the kernel (always converted to linear once, at expansion time).
type StandardModulation struct {
	Kind    kernel.ModulationKind
	M       int
	SNRUnit string // "dB" | "linear"
}

// RequestSpec is the fully-parsed, not-yet-expanded request body.
type RequestSpec struct {
	Axes       []AxisInput
	Modulation ModulationInput
	Metrics    []string
	Layout     string // "flat" | "matrix" | "" (flat)
}

// Axis is one non-scalar axis descriptor returned alongside the expanded
// points: its name, the concrete values it took in expansion order, and the
// unit those values were expressed in on input.
type Axis struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
	Unit   string    `json:"unit,omitempty"`
}

// ExpandedPoint is one fully concrete point ready for the cache/pool/kernel
// pipeline. Values holds each axis in the unit the
// caller declared it (so result params line up with the axis descriptor);
// KernelValues holds the same assignment with SNR already converted to
// linear, which is what the kernel and the fingerprint consume.
type ExpandedPoint struct {
	Values       map[string]float64
	KernelValues map[string]float64
	Modulation   kernel.Modulation
	Metrics      []string
	Layout       string
	Fingerprint  string
}
