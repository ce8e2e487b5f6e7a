package viz

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/sensorless/internal/metrics"
	"github.com/san-kum/sensorless/internal/sim"
)

const (
	dialWidth        = 30
	dialHeight       = 15
	historyCapacity  = 400
	maxTicksPerFrame = 4096
	frameRate        = 30
)

type TickMsg time.Time

// Model steps a simulator in real time and draws the estimate against the
// true rotor.
type Model struct {
	sim    *sim.Simulator
	cfg    sim.Config
	title  string
	canvas *Canvas

	ticksPerFrame int
	totalTicks    int
	ticks         int
	running       bool
	done          bool
	err           error
	showHelp      bool

	last    sim.Sample
	errHist []float64 // [deg]
}

// NewModel arms s with cfg. The run ends after cfg.Duration or on the first
// estimator fault.
func NewModel(s *sim.Simulator, cfg sim.Config, title string) (Model, error) {
	if err := s.Start(cfg); err != nil {
		return Model{}, err
	}

	// about 1/50 of real time at 8 kHz and 30 frames per second
	perFrame := max(1, int(math.Round(1/(s.Period()*frameRate*50))))
	return Model{
		sim:           s,
		cfg:           cfg,
		title:         title,
		canvas:        NewCanvas(dialWidth, dialHeight),
		ticksPerFrame: perFrame,
		totalTicks:    int(math.Round(cfg.Duration / s.Period())),
		running:       true,
		errHist:       make([]float64, 0, historyCapacity),
	}, nil
}

func frame() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return frame()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.restart()
		case "+", "=":
			m.ticksPerFrame = min(m.ticksPerFrame*2, maxTicksPerFrame)
		case "-", "_":
			m.ticksPerFrame = max(m.ticksPerFrame/2, 1)
		case "t":
			NextTheme()
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if m.running && !m.done {
			m.advance(m.ticksPerFrame)
		}
		return m, frame()
	}
	return m, nil
}

// advance runs up to n ticks and records the angle error of each.
func (m *Model) advance(n int) {
	for i := 0; i < n; i++ {
		if m.ticks >= m.totalTicks {
			m.done = true
			return
		}

		s, err := m.sim.Tick()
		if err != nil {
			m.err = err
			m.done = true
			return
		}
		m.ticks++
		m.last = s

		m.errHist = append(m.errHist, s.PositionError()*180/math.Pi)
		if len(m.errHist) > historyCapacity {
			m.errHist = m.errHist[1:]
		}
	}
}

func (m *Model) restart() {
	if err := m.sim.Start(m.cfg); err != nil {
		m.err = err
		m.done = true
		return
	}
	m.ticks = 0
	m.done = false
	m.err = nil
	m.last = sim.Sample{}
	m.errHist = m.errHist[:0]
}

// Locked reports whether the latest estimate is within the lock band.
func (m Model) Locked() bool {
	return m.ticks > 0 && math.Abs(m.last.PositionError()) <= metrics.LockBand
}

func (m Model) Err() error { return m.err }
func (m Model) Ticks() int { return m.ticks }

func (m Model) status() string {
	switch {
	case m.err != nil:
		return statusFault.Render("FAULT")
	case m.done:
		return statusPaused.Render("DONE")
	case !m.running:
		return statusPaused.Render("PAUSED")
	case m.Locked():
		return statusLocked.Render("LOCKED")
	default:
		return statusLocking.Render("SEARCHING")
	}
}

func (m *Model) drawDial() {
	c := m.canvas
	c.Clear()
	cx, cy := c.Center()
	r := c.Radius()
	c.DrawCircle(cx, cy, r)
	if m.ticks == 0 {
		return
	}
	c.DrawNeedle(cx, cy, float64(r-1), m.last.TrueTheta)
	c.DrawNeedle(cx, cy, 0.6*float64(r), m.last.Position)
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value) + "\n"
}

func (m Model) View() string {
	m.drawDial()
	dial := dialStyle.Render(m.canvas.String())

	const toDeg = 180 / math.Pi
	s := m.last
	var b strings.Builder
	b.WriteString(headerStyle.Render(strings.ToUpper(m.title)) + "\n")
	b.WriteString(m.status() + "\n\n")

	b.WriteString(row("Time", fmt.Sprintf("%.4f s", s.T)))
	b.WriteString(row("Progress", ProgressBar(float64(m.ticks)/float64(max(m.totalTicks, 1)), 20)))
	b.WriteString(row("True angle", fmt.Sprintf("%7.1f°", s.TrueTheta*toDeg)))
	b.WriteString(row("Estimate", fmt.Sprintf("%7.1f°", s.Position*toDeg)))
	b.WriteString(row("Error", fmt.Sprintf("%7.2f°", s.PositionError()*toDeg)))
	b.WriteString(row("True speed", fmt.Sprintf("%8.1f rad/s", s.TrueOmega)))
	b.WriteString(row("Est. speed", fmt.Sprintf("%8.1f rad/s", s.Velocity)))
	b.WriteString(row("|eta|", fmt.Sprintf("%.3e Wb", math.Hypot(s.EtaAlpha, s.EtaBeta))))
	b.WriteString(row("Ticks/frame", fmt.Sprintf("%d", m.ticksPerFrame)))

	if len(m.errHist) > 1 {
		chart := asciigraph.Plot(m.errHist,
			asciigraph.Height(6),
			asciigraph.Width(36),
			asciigraph.Caption("angle error [deg]"))
		b.WriteString(graphStyle.Render(chart) + "\n")
	}
	if m.err != nil {
		b.WriteString(statusFault.Render(m.err.Error()) + "\n")
	}
	b.WriteString(helpStyle.Render("SP:Pause R:Restart +/-:Speed T:Theme ?:Help Q:Quit"))

	view := lipgloss.JoinHorizontal(lipgloss.Top, dial, panelStyle.Render(b.String()))
	if m.showHelp {
		return helpOverlay + "\n" + view
	}
	return view
}

const helpOverlay = `
  long needle   true electrical angle
  short needle  estimated position
  LOCKED        error within 5°
  Space pause, R restart, +/- ticks per frame, T theme, Q quit
`
