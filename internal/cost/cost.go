// Package cost is the cost calculator: a cheap estimate used only for
// admission and metering, never billing.
package cost

import (
	"github.com/arnauranchal/epcalc-server/internal/kernel"
	"github.com/arnauranchal/epcalc-server/internal/paramspec"
)

// RequestType names the shape of a request for the type multiplier.
type RequestType string

const (
	TypeSingle  RequestType = "single"
	TypeSweep   RequestType = "sweep"
	TypeContour RequestType = "contour"
	TypeSurface RequestType = "surface"
)

const (
	minCost int64 = 1
	maxCost int64 = 1_000_000_000

	// mutualInfoSurcharge accounts for the extra derivative-estimate pass
	// mutual_information and critical_rate require.
	mutualInfoSurcharge = 1.3
)

// Estimate computes the admission/metering estimate for one request.
// pointCount is len(points) from paramspec.Expand; mod is the request's
// resolved modulation (constellation size drives per-point complexity).
func Estimate(pointCount int, mod kernel.Modulation, metrics []string, reqType RequestType) (int64, error) {
	if pointCount <= 0 {
		pointCount = 1
	}

	size := constellationSize(mod)
	perPoint := float64(size)
	for _, m := range metrics {
		switch m {
		case kernel.MetricMutualInfo, kernel.MetricCriticalRate:
			perPoint *= mutualInfoSurcharge
		}
	}

	// The type multiplier is 1 for every request shape: the product of
	// axis sizes baked into pointCount already dominates the estimate for
	// sweep/contour/surface requests.
	multiplier := 1.0

	raw := float64(pointCount) * perPoint * multiplier
	c := int64(raw)
	if c < minCost {
		c = minCost
	}
	if c > maxCost {
		c = maxCost
	}
	return c, nil
}

// EstimateFromPoints is a convenience wrapper over Estimate for callers
// that already hold the paramspec.Expand output.
func EstimateFromPoints(points []paramspec.ExpandedPoint, reqType RequestType) (int64, error) {
	if len(points) == 0 {
		return minCost, nil
	}
	return Estimate(len(points), points[0].Modulation, points[0].Metrics, reqType)
}

func constellationSize(mod kernel.Modulation) int {
	if mod.Kind != "" {
		return mod.M
	}
	return len(mod.Custom)
}
