package estimator

import (
	"errors"
	"math"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/san-kum/sensorless/internal/dynamo"
)

// rotatingMotor produces exact measurements for a rotor spinning at a
// constant electrical speed with a constant current vector. The voltage
// returned for tick k is the one that, applied over (k+1, k+2], moves the
// stator flux linkage from its tick k+1 value to its tick k+2 value.
type rotatingMotor struct {
	cfg       Config
	omega     float64
	current   float64
	loadAngle float64
	theta0    float64
}

func (r rotatingMotor) theta(k int) float64 {
	return r.theta0 + r.omega*float64(k)*r.cfg.SamplePeriod
}

func (r rotatingMotor) currentAt(k int) [2]float64 {
	angle := r.theta(k) + r.loadAngle
	return [2]float64{r.current * math.Cos(angle), r.current * math.Sin(angle)}
}

func (r rotatingMotor) linkage(k int) [2]float64 {
	th := r.theta(k)
	i := r.currentAt(k)
	return [2]float64{
		r.cfg.PMFluxLinkage*math.Cos(th) + r.cfg.PhaseInductance*i[0],
		r.cfg.PMFluxLinkage*math.Sin(th) + r.cfg.PhaseInductance*i[1],
	}
}

func (r rotatingMotor) measurement(k int) Measurement {
	i := r.currentAt(k)
	phB := -0.5*i[0] + math.Sqrt(3)/2*i[1]
	phC := -0.5*i[0] - math.Sqrt(3)/2*i[1]

	next, after := r.linkage(k+1), r.linkage(k+2)
	iAfter := r.currentAt(k + 2)
	ts := r.cfg.SamplePeriod
	return Measurement{
		PhaseB: phB,
		PhaseC: phC,
		VAlpha: (after[0]-next[0])/ts + r.cfg.PhaseResistance*iAfter[0],
		VBeta:  (after[1]-next[1])/ts + r.cfg.PhaseResistance*iAfter[1],
	}
}

func inWrapRange(x float64) bool {
	return x > -math.Pi && x <= math.Pi
}

var _ = Describe("Estimator", func() {
	var (
		mockCtrl *gomock.Controller
		cfg      Config
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		cfg = DefaultConfig()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("when the PLL gain violates the sample period", func() {
		DescribeTable("rejects the tick without touching state",
			func(period float64, gains Gains) {
				cfg.SamplePeriod = period
				est := NewWithGains(cfg, gains)

				reporter := NewMockErrorReporter(mockCtrl)
				reporter.EXPECT().
					ReportError(gomock.Any()).
					Do(func(err error) {
						Expect(errors.Is(err, ErrTimingViolation)).To(BeTrue())
					})
				est.SetReporter(reporter)

				pos, vel, phase := 42.0, 43.0, 44.0
				before := est.State()
				err := est.Update(Measurement{PhaseB: 3, PhaseC: -1, VAlpha: 5, VBeta: 2}, &pos, &vel, &phase)

				Expect(err).To(MatchError(ErrTimingViolation))
				var timing *TimingError
				Expect(errors.As(err, &timing)).To(BeTrue())
				Expect(timing.Kp).To(Equal(gains.Kp))
				Expect(est.State()).To(Equal(before))
				Expect(pos).To(Equal(42.0))
				Expect(vel).To(Equal(43.0))
				Expect(phase).To(Equal(44.0))
			},
			Entry("exactly at the limit", 0.5, Gains{Kp: 2, Ki: 1}),
			Entry("slow loop with default bandwidth", 1.0/1000, NewGains(DefaultPLLBandwidth)),
			Entry("far past the limit", 1.0/8000, Gains{Kp: 1e6, Ki: 1}),
		)

		It("returns the error without a reporter installed", func() {
			cfg.SamplePeriod = 0.01
			est := New(cfg)

			_, err := est.Step(Measurement{PhaseB: 1})
			Expect(err).To(MatchError(ErrTimingViolation))
			Expect(est.State()).To(Equal(Snapshot{}))
		})

		It("keeps rejecting on every later tick", func() {
			cfg.SamplePeriod = 0.01
			est := New(cfg)

			reporter := NewMockErrorReporter(mockCtrl)
			reporter.EXPECT().ReportError(gomock.Any()).Times(5)
			est.SetReporter(reporter)

			for k := 0; k < 5; k++ {
				Expect(est.Update(Measurement{VAlpha: 1}, nil, nil, nil)).NotTo(Succeed())
			}
			Expect(est.State()).To(Equal(Snapshot{}))
		})
	})

	It("never reports the fault on a valid configuration", func() {
		est := New(cfg)
		reporter := NewMockErrorReporter(mockCtrl)
		reporter.EXPECT().ReportError(gomock.Any()).Times(0)
		est.SetReporter(reporter)

		for k := 0; k < 100; k++ {
			Expect(est.Update(Measurement{PhaseB: 1, VAlpha: 2}, nil, nil, nil)).To(Succeed())
		}
	})

	It("keeps position and phase wrapped for arbitrary input", func() {
		rng := rand.New(rand.NewSource(7))
		est := New(cfg)

		for k := 0; k < 20000; k++ {
			m := Measurement{
				PhaseB: rng.NormFloat64() * 50,
				PhaseC: rng.NormFloat64() * 50,
				VAlpha: rng.NormFloat64() * 30,
				VBeta:  rng.NormFloat64() * 30,
			}
			out, err := est.Step(m)
			Expect(err).NotTo(HaveOccurred())
			Expect(inWrapRange(out.Position)).To(BeTrue(), "position %v at tick %d", out.Position, k)
			Expect(inWrapRange(out.Phase)).To(BeTrue(), "phase %v at tick %d", out.Phase, k)
		}
	})

	DescribeTable("stays finite and wrapped under a saturating voltage",
		func(volts float64) {
			est := New(cfg)

			for k := 0; k < 2000; k++ {
				out, err := est.Step(Measurement{VAlpha: volts})
				Expect(err).NotTo(HaveOccurred())
				Expect(inWrapRange(out.Position)).To(BeTrue(), "position %v at tick %d", out.Position, k)
				Expect(inWrapRange(out.Phase)).To(BeTrue(), "phase %v at tick %d", out.Phase, k)
				Expect(math.IsNaN(out.Velocity) || math.IsInf(out.Velocity, 0)).To(BeFalse())
			}

			s := est.State()
			for _, x := range []float64{s.FluxState[0], s.FluxState[1], s.Eta[0], s.Eta[1], s.EtaFactor} {
				Expect(math.IsNaN(x) || math.IsInf(x, 0)).To(BeFalse(), "state %+v", s)
			}
		},
		Entry("100 V", 100.0),
		Entry("200 V", 200.0),
		Entry("1 kV", 1000.0),
		Entry("1 MV", 1e6),
		Entry("near overflow", 1e300),
	)

	It("holds the phase and coasts on a non-finite measurement", func() {
		motor := rotatingMotor{cfg: cfg, omega: 628.3, current: 5, loadAngle: math.Pi / 2}
		est := New(cfg)

		var last Estimate
		for k := 0; k < 2000; k++ {
			var err error
			last, err = est.Step(motor.measurement(k))
			Expect(err).NotTo(HaveOccurred())
		}
		flux := est.State().FluxState

		bad := motor.measurement(2000)
		bad.PhaseB = math.NaN()
		out, err := est.Step(bad)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Phase).To(Equal(last.Phase))
		Expect(out.Velocity).To(Equal(last.Velocity))
		Expect(out.Position).To(BeNumerically("~", dynamo.WrapPmPi(last.Position+cfg.SamplePeriod*last.Velocity), 1e-12))
		Expect(est.State().FluxState).To(Equal(flux))
		Expect(est.State().VoltageQueued).To(Equal([2]float64{bad.VAlpha, bad.VBeta}))

		for k := 2001; k < 4000; k++ {
			out, err := est.Step(motor.measurement(k))
			Expect(err).NotTo(HaveOccurred())
			Expect(inWrapRange(out.Position)).To(BeTrue())
			Expect(inWrapRange(out.Phase)).To(BeTrue())
			Expect(math.IsNaN(out.Velocity)).To(BeFalse())
		}
	})

	It("skips the probe on a dropped tick", func() {
		est := New(cfg)
		probe := NewMockProbe(mockCtrl)
		probe.EXPECT().ObserveCorrection(gomock.Any(), gomock.Any()).Times(10)
		est.SetProbe(probe)

		motor := rotatingMotor{cfg: cfg, omega: 400, current: 2, loadAngle: math.Pi / 2}
		for k := 0; k < 11; k++ {
			m := motor.measurement(k)
			if k == 5 {
				m.PhaseC = math.Inf(1)
			}
			Expect(est.Update(m, nil, nil, nil)).To(Succeed())
		}
	})

	It("keeps position wrapped while tracking a fast rotor", func() {
		motor := rotatingMotor{cfg: cfg, omega: 5000, current: 8, loadAngle: math.Pi / 2}
		est := New(cfg)

		for k := 0; k < 16000; k++ {
			out, err := est.Step(motor.measurement(k))
			Expect(err).NotTo(HaveOccurred())
			Expect(inWrapRange(out.Position)).To(BeTrue())
			Expect(inWrapRange(out.Phase)).To(BeTrue())
		}
	})

	DescribeTable("converges on a rotor at constant speed",
		func(omega, current, loadAngle, theta0 float64) {
			motor := rotatingMotor{
				cfg:       cfg,
				omega:     omega,
				current:   current,
				loadAngle: loadAngle,
				theta0:    theta0,
			}
			est := New(cfg)

			ticks := 8000
			var out Estimate
			for k := 0; k < ticks; k++ {
				var err error
				out, err = est.Step(motor.measurement(k))
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(out.Velocity).To(BeNumerically("~", omega, 0.01*math.Abs(omega)))
			posErr := dynamo.WrapPmPi(out.Position - motor.theta(ticks-1))
			Expect(math.Abs(posErr)).To(BeNumerically("<", 3*math.Pi/180))
		},
		Entry("forward 100 Hz", 628.3, 10.0, math.Pi/2, 0.3),
		Entry("reverse", -1000.0, 5.0, math.Pi/2, 2.0),
		Entry("slow with field weakening current", 300.0, 3.0, 0.5, -2.5),
	)

	It("consumes a commanded voltage two ticks later", func() {
		est := New(cfg)

		Expect(est.Update(Measurement{VAlpha: 1}, nil, nil, nil)).To(Succeed())
		Expect(est.State().FluxState).To(Equal([2]float64{}))
		Expect(est.State().VoltageQueued).To(Equal([2]float64{1, 0}))

		Expect(est.Update(Measurement{}, nil, nil, nil)).To(Succeed())
		Expect(est.State().FluxState).To(Equal([2]float64{}))
		Expect(est.State().VoltageMemory).To(Equal([2]float64{}))

		Expect(est.Update(Measurement{}, nil, nil, nil)).To(Succeed())
		flux := est.State().FluxState
		Expect(flux[0]).To(BeNumerically(">", 0))
		Expect(flux[1]).To(BeZero())
	})

	It("stays at rest with zero input", func() {
		est := New(cfg)

		for k := 0; k < 10000; k++ {
			out, err := est.Step(Measurement{})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(Estimate{}))
		}

		s := est.State()
		Expect(s.FluxState).To(Equal([2]float64{}))
		Expect(s.Eta).To(Equal([2]float64{}))
		Expect(s.PLLPos).To(BeZero())
		Expect(s.PLLVel).To(BeZero())
	})

	It("evolves identically whichever outputs are requested", func() {
		motor := rotatingMotor{cfg: cfg, omega: 700, current: 6, loadAngle: math.Pi / 2, theta0: 1}
		full := New(cfg)
		partial := []*Estimator{New(cfg), New(cfg), New(cfg), New(cfg)}

		for k := 0; k < 3000; k++ {
			m := motor.measurement(k)
			var pos, vel, phase float64
			Expect(full.Update(m, &pos, &vel, &phase)).To(Succeed())
			Expect(partial[0].Update(m, nil, nil, nil)).To(Succeed())
			Expect(partial[1].Update(m, &pos, nil, nil)).To(Succeed())
			Expect(partial[2].Update(m, nil, &vel, nil)).To(Succeed())
			Expect(partial[3].Update(m, nil, nil, &phase)).To(Succeed())
		}

		for _, est := range partial {
			Expect(est.State()).To(Equal(full.State()))
		}
	})

	It("feeds every successful tick to the probe", func() {
		est := New(cfg)
		probe := NewMockProbe(mockCtrl)
		probe.EXPECT().
			ObserveCorrection(gomock.Any(), gomock.Any()).
			Do(func(etaFactor, flux float64) {
				Expect(flux).To(BeNumerically(">=", 0))
			}).
			Times(25)
		est.SetProbe(probe)

		motor := rotatingMotor{cfg: cfg, omega: 400, current: 2, loadAngle: math.Pi / 2}
		for k := 0; k < 25; k++ {
			Expect(est.Update(motor.measurement(k), nil, nil, nil)).To(Succeed())
		}
	})

	It("forgets everything on reset", func() {
		motor := rotatingMotor{cfg: cfg, omega: 900, current: 4, loadAngle: math.Pi / 2}
		est := New(cfg)
		for k := 0; k < 500; k++ {
			_, err := est.Step(motor.measurement(k))
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(est.State().PLLVel).NotTo(BeZero())

		est.Reset()

		Expect(est.State()).To(Equal(Snapshot{}))
		Expect(est.Gains()).To(Equal(NewGains(cfg.PLLBandwidth)))
		Expect(est.Config()).To(Equal(cfg))
	})
})
