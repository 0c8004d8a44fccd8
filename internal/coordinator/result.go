package coordinator

import (
	"encoding/json"

	"github.com/arnauranchal/epcalc-server/internal/paramspec"
)

// ResultPoint is one point's outcome. Metrics values are pointers so a
// kernel failure on one metric can be surfaced as JSON null without failing
// the rest of the batch.
type ResultPoint struct {
	Params            map[string]float64  `json:"params"`
	Metrics           map[string]*float64 `json:"metrics"`
	Cached            bool                `json:"cached"`
	ComputationTimeMs int64               `json:"computation_time_ms"`
}

// Meta is the unified result schema's summary block.
type Meta struct {
	TotalPoints            int   `json:"total_points"`
	CachedPoints           int   `json:"cached_points"`
	TotalComputationTimeMs int64 `json:"total_computation_time_ms"`
}

// UnifiedResult is the response body shared by both compute endpoints.
// Exactly one of ResultsFlat and ResultsMatrix is populated, selected by
// Format.
type UnifiedResult struct {
	Format        string           `json:"format"`
	Axes          []paramspec.Axis `json:"axes"`
	ResultsFlat   []ResultPoint    `json:"results,omitempty"`
	ResultsMatrix [][]ResultPoint  `json:"-"`
	Meta          Meta             `json:"meta"`
}

// MarshalJSON picks the single "results" key from whichever of
// ResultsFlat/ResultsMatrix is populated, so the wire shape is always a
// lone "results" array (of points, or of rows for matrix).
func (u UnifiedResult) MarshalJSON() ([]byte, error) {
	type wire struct {
		Format  string           `json:"format"`
		Axes    []paramspec.Axis `json:"axes"`
		Results any              `json:"results"`
		Meta    Meta             `json:"meta"`
	}
	w := wire{Format: u.Format, Axes: u.Axes, Meta: u.Meta}
	if u.Format == "matrix" {
		w.Results = u.ResultsMatrix
	} else {
		w.Results = u.ResultsFlat
	}
	return json.Marshal(w)
}
