package paramspec

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"

	"github.com/arnauranchal/epcalc-server/internal/kernel"
)

// fingerprint builds the canonical, content-addressed cache key for one
// expanded point: axis values sorted by name, fixed-width numeric encoding
// so equal floats always produce equal bytes, the resolved modulation in a
// canonical form, the requested metric set (order independent), and the
// layout hint. SHA-256 gives a 256-bit digest.
func fingerprint(values map[string]float64, mod kernel.Modulation, metrics []string, layout string) string {
	h := sha256.New()

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		writeString(h, name)
		writeFloat(h, values[name])
	}

	writeModulation(h, mod)

	sortedMetrics := append([]string(nil), metrics...)
	sort.Strings(sortedMetrics)
	for _, m := range sortedMetrics {
		writeString(h, m)
	}

	writeString(h, layout)

	return hex.EncodeToString(h.Sum(nil))
}

func writeString(h interface{ Write([]byte) (int, error) }, s string) {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(s)))
	h.Write(lenBuf[:])
	h.Write([]byte(s))
}

func writeFloat(h interface{ Write([]byte) (int, error) }, v float64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
	h.Write(buf[:])
}

func writeModulation(h interface{ Write([]byte) (int, error) }, mod kernel.Modulation) {
	if mod.Kind != "" {
		writeString(h, "std")
		writeString(h, string(mod.Kind))
		writeFloat(h, float64(mod.M))
		return
	}

	writeString(h, "custom")
	pts := append([]kernel.ConstellationPoint(nil), mod.Custom...)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].Real != pts[j].Real {
			return pts[i].Real < pts[j].Real
		}
		if pts[i].Imag != pts[j].Imag {
			return pts[i].Imag < pts[j].Imag
		}
		return pts[i].Prob < pts[j].Prob
	})
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(pts)))
	h.Write(lenBuf[:])
	for _, p := range pts {
		writeFloat(h, p.Real)
		writeFloat(h, p.Imag)
		writeFloat(h, p.Prob)
	}
}
