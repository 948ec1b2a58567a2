package reembed

import (
	"math"

	"github.com/poiesic/yellowbook/core"
)

// Magnitude returns the Euclidean length of v.
func Magnitude(v core.Vector) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// NormalizeVector returns v scaled to unit length. Cosine ranking does not
// depend on length, but unit vectors keep stored values comparable across
// providers. A zero vector comes back as zeros of the same length.
func NormalizeVector(v core.Vector) core.Vector {
	if len(v) == 0 {
		return v
	}
	result := make(core.Vector, len(v))
	m := Magnitude(v)
	if m == 0 {
		return result
	}
	for i, x := range v {
		result[i] = float32(float64(x) / m)
	}
	return result
}
