// Package httpapi is the thin net/http adapter between the wire protocol
// and the coordinator: it decodes JSON request bodies into
// paramspec.RequestSpec values, translates resp.Result into an
// http.ResponseWriter call, and otherwise holds no business logic of its
// own.
package httpapi

import (
	"encoding/json"
	"fmt"

	"github.com/arnauranchal/epcalc-server/internal/kernel"
	"github.com/arnauranchal/epcalc-server/internal/paramspec"
)

// constellationPointWire is one (real, imag, prob) entry of a custom
// constellation, as accepted over the wire.
type constellationPointWire struct {
	Real float64 `json:"real"`
	Imag float64 `json:"imag"`
	Prob float64 `json:"prob"`
}

// computeRequestWire is the wire shape of POST /compute/standard and
// POST /compute/custom bodies: a flat document naming the modulation
// descriptor and the five axes the kernel understands directly (SNR, R, N,
// n, threshold), rather than an open-ended axis map.
type computeRequestWire struct {
	M              *int                     `json:"M,omitempty"`
	TypeModulation string                   `json:"typeModulation,omitempty"`
	SNRUnit        string                   `json:"snrUnit,omitempty"`
	Constellation  []constellationPointWire `json:"constellation,omitempty"`

	SNR       json.RawMessage `json:"SNR"`
	R         json.RawMessage `json:"R"`
	N         json.RawMessage `json:"N"`
	CodeN     json.RawMessage `json:"n"`
	Threshold json.RawMessage `json:"threshold"`

	Metrics []string `json:"metrics"`
	Format  string   `json:"format"`
}

type axisDecl struct {
	name    string
	raw     json.RawMessage
	integer bool
}

// parseComputeRequest decodes and validates a compute request body into a
// paramspec.RequestSpec. custom selects whether the modulation descriptor
// must be a constellation (/compute/custom) or a standard triple
// (/compute/standard) — the two endpoints never accept the other's shape.
func parseComputeRequest(body []byte, custom bool) (paramspec.RequestSpec, error) {
	var w computeRequestWire
	if err := json.Unmarshal(body, &w); err != nil {
		return paramspec.RequestSpec{}, fmt.Errorf("malformed request body: %w", err)
	}

	decls := []axisDecl{
		{"SNR", w.SNR, false},
		{"R", w.R, false},
		{"N", w.N, false},
		{"n", w.CodeN, true},
		{"threshold", w.Threshold, false},
	}

	axes := make([]paramspec.AxisInput, 0, len(decls))
	for _, d := range decls {
		if len(d.raw) == 0 {
			return paramspec.RequestSpec{}, fmt.Errorf("missing required axis %q", d.name)
		}
		pv, err := parseAxisValue(d.raw)
		if err != nil {
			return paramspec.RequestSpec{}, fmt.Errorf("axis %q: %w", d.name, err)
		}
		axes = append(axes, paramspec.AxisInput{Name: d.name, Value: pv, Integer: d.integer})
	}

	var modulation paramspec.ModulationInput
	if custom {
		if len(w.Constellation) == 0 {
			return paramspec.RequestSpec{}, fmt.Errorf("custom constellation must have at least one point")
		}
		pts := make([]kernel.ConstellationPoint, len(w.Constellation))
		for i, p := range w.Constellation {
			pts[i] = kernel.ConstellationPoint{Real: p.Real, Imag: p.Imag, Prob: p.Prob}
		}
		modulation.Custom = pts
	} else {
		if w.M == nil || w.TypeModulation == "" {
			return paramspec.RequestSpec{}, fmt.Errorf("standard modulation requires M and typeModulation")
		}
		modulation.Standard = &paramspec.StandardModulation{
			Kind:    kernel.ModulationKind(w.TypeModulation),
			M:       *w.M,
			SNRUnit: w.SNRUnit,
		}
	}

	if len(w.Metrics) == 0 {
		return paramspec.RequestSpec{}, fmt.Errorf("at least one metric must be requested")
	}

	return paramspec.RequestSpec{
		Axes:       axes,
		Modulation: modulation,
		Metrics:    w.Metrics,
		Layout:     w.Format,
	}, nil
}

// parseAxisValue detects which of the four ParamValue shapes raw encodes:
// a bare number (Scalar), an array (List), or an object carrying either
// "step" (RangeStep) or "points" (RangePoints).
func parseAxisValue(raw json.RawMessage) (paramspec.ParamValue, error) {
	var scalar float64
	if err := json.Unmarshal(raw, &scalar); err == nil {
		return paramspec.Scalar(scalar), nil
	}

	var list []float64
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return paramspec.ParamValue{}, fmt.Errorf("list value must contain at least one element")
		}
		return paramspec.List(list), nil
	}

	var obj struct {
		Min    *float64 `json:"min"`
		Max    *float64 `json:"max"`
		Step   *float64 `json:"step"`
		Points *int     `json:"points"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Min != nil && obj.Max != nil {
		switch {
		case obj.Step != nil:
			return paramspec.RangeStep(*obj.Min, *obj.Max, *obj.Step), nil
		case obj.Points != nil:
			return paramspec.RangePoints(*obj.Min, *obj.Max, *obj.Points), nil
		}
	}

	return paramspec.ParamValue{}, fmt.Errorf("must be a number, an array, or a {min,max,step|points} object")
}
