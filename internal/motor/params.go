package motor

import (
	"fmt"
	"math"

	"github.com/san-kum/sensorless/internal/dynamo"
)

// Params describes a surface PMSM. Inductance is the same on both axes.
type Params struct {
	Resistance  float64 `yaml:"resistance" json:"resistance"`     // [ohm] per phase
	Inductance  float64 `yaml:"inductance" json:"inductance"`     // [H] per phase
	FluxLinkage float64 `yaml:"flux_linkage" json:"flux_linkage"` // [Wb]
	PolePairs   int     `yaml:"pole_pairs" json:"pole_pairs"`
	Inertia     float64 `yaml:"inertia" json:"inertia"`   // [kg m^2]
	Friction    float64 `yaml:"friction" json:"friction"` // [N m s/rad] viscous, mechanical side
}

// DefaultParams is a small hobby outrunner on the bench.
func DefaultParams() Params {
	return Params{
		Resistance:  0.05,
		Inductance:  20e-6,
		FluxLinkage: 1.58e-3,
		PolePairs:   7,
		Inertia:     2e-5,
		Friction:    1e-5,
	}
}

func (p Params) Validate() error {
	check := func(name string, v float64, allowZero bool) error {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || (!allowZero && v == 0) {
			return fmt.Errorf("%w: motor %s = %g", dynamo.ErrParameterBounds, name, v)
		}
		return nil
	}
	if err := check("resistance", p.Resistance, true); err != nil {
		return err
	}
	if err := check("inductance", p.Inductance, false); err != nil {
		return err
	}
	if err := check("flux_linkage", p.FluxLinkage, false); err != nil {
		return err
	}
	if err := check("inertia", p.Inertia, false); err != nil {
		return err
	}
	if err := check("friction", p.Friction, true); err != nil {
		return err
	}
	if p.PolePairs < 1 {
		return fmt.Errorf("%w: motor pole_pairs = %d", dynamo.ErrParameterBounds, p.PolePairs)
	}
	return nil
}

// TorqueConstant returns Kt = 1.5*p*psi in N m per amp of q-axis current.
func (p Params) TorqueConstant() float64 {
	return 1.5 * float64(p.PolePairs) * p.FluxLinkage
}
