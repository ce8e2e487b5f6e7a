package control

// PI is a per-axis current regulator in the stationary frame. It corrects
// what the feed-forward voltage misses (parameter error, bus clamp).
type PI struct {
	Kp       float64 // [V/A]
	Ki       float64 // [V/(A s)]
	Limit    float64 // integrator clamp [V], 0 disables
	integral float64
	prevT    float64
	first    bool
}

func NewPI(kp, ki, limit float64) *PI {
	return &PI{Kp: kp, Ki: ki, Limit: limit, first: true}
}

func (p *PI) Update(err, t float64) float64 {
	if p.first {
		p.prevT = t
		p.first = false
		return p.Kp * err
	}

	if dt := t - p.prevT; dt > 0 {
		p.integral += p.Ki * err * dt
		if p.Limit > 0 {
			p.integral = clamp(p.integral, -p.Limit, p.Limit)
		}
	}
	p.prevT = t
	return p.Kp*err + p.integral
}

// Reset clears the integrator.
func (p *PI) Reset() {
	p.integral = 0
	p.first = true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
