package dynamo

import "math"

const twoPi = 2 * math.Pi

// FastAtan2MaxError bounds the angular error of FastAtan2 over the full
// circle, in radians.
const FastAtan2MaxError = 2e-5

// Minimax coefficients for atan(z), z in [0, 1] (Abramowitz & Stegun 4.4.49).
const (
	atanC1 = 0.9998660
	atanC3 = -0.3302995
	atanC5 = 0.1801410
	atanC7 = -0.0851330
	atanC9 = 0.0208351
)

// WrapPmPi maps x into (-pi, pi].
func WrapPmPi(x float64) float64 {
	r := math.Mod(x+math.Pi, twoPi)
	if r <= 0 {
		r += twoPi
	}
	w := r - math.Pi
	// r can be a subnormal above zero that vanishes in the subtraction
	if w <= -math.Pi {
		w += twoPi
	}
	return w
}

// FastAtan2 is a branch-reduced polynomial arctangent. It resolves all four
// quadrants, returns 0 for (0, 0) and stays within FastAtan2MaxError of
// math.Atan2. The result can land on -pi for y == -0; callers that need
// (-pi, pi] wrap it.
func FastAtan2(y, x float64) float64 {
	ax, ay := math.Abs(x), math.Abs(y)
	if ax == 0 && ay == 0 {
		return 0
	}

	var z float64
	if ay > ax {
		z = ax / ay
	} else {
		z = ay / ax
	}
	s := z * z
	r := ((((atanC9*s+atanC7)*s+atanC5)*s+atanC3)*s + atanC1) * z

	if ay > ax {
		r = math.Pi/2 - r
	}
	if x < 0 {
		r = math.Pi - r
	}
	if math.Signbit(y) {
		r = -r
	}
	return r
}

// TrigTable provides precomputed sin/cos values for fast lookup.
// Uses linear interpolation for values between table entries.
type TrigTable struct {
	sin []float64
	cos []float64
	n   int
}

// DefaultTrigTable has 4096 entries, ~0.0015 rad resolution.
var DefaultTrigTable = NewTrigTable(4096)

// NewTrigTable creates a precomputed trig lookup table
func NewTrigTable(n int) *TrigTable {
	t := &TrigTable{
		sin: make([]float64, n),
		cos: make([]float64, n),
		n:   n,
	}

	for i := 0; i < n; i++ {
		angle := float64(i) * twoPi / float64(n)
		t.sin[i] = math.Sin(angle)
		t.cos[i] = math.Cos(angle)
	}

	return t
}

// SinCos returns interpolated sin and cos of x.
func (t *TrigTable) SinCos(x float64) (sin, cos float64) {
	x = math.Mod(x, twoPi)
	if x < 0 {
		x += twoPi
	}

	idx := x * float64(t.n) / twoPi
	i := int(idx)
	frac := idx - float64(i)

	i0 := i % t.n
	i1 := (i + 1) % t.n

	sin = t.sin[i0]*(1-frac) + t.sin[i1]*frac
	cos = t.cos[i0]*(1-frac) + t.cos[i1]*frac
	return
}

// Rotate returns the vector (mag, 0) rotated by angle.
func (t *TrigTable) Rotate(mag, angle float64) (x, y float64) {
	s, c := t.SinCos(angle)
	return mag * c, mag * s
}

// FastSinCos uses the default table
func FastSinCos(x float64) (float64, float64) {
	return DefaultTrigTable.SinCos(x)
}
