package viz

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/sensorless/internal/config"
	"github.com/san-kum/sensorless/internal/estimator"
	"github.com/san-kum/sensorless/internal/experiment"
	"github.com/san-kum/sensorless/internal/sim"
)

func newTestModel(t *testing.T, preset string, duration float64) Model {
	t.Helper()
	cfg := config.GetPreset(preset)
	s, err := experiment.Build(cfg)
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewModel(s, sim.Config{Duration: duration}, preset)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestCanvasDial(t *testing.T) {
	c := NewCanvas(10, 5)
	if cx, cy := c.Center(); cx != 10 || cy != 10 {
		t.Errorf("center (%d, %d)", cx, cy)
	}
	if r := c.Radius(); r != 9 {
		t.Errorf("radius %d", r)
	}

	c.DrawNeedle(10, 10, 8, 0)
	// a horizontal needle lights the middle row only
	for i, row := range c.Grid {
		lit := strings.Trim(string(row), "⠀") != ""
		if lit != (i == 2) {
			t.Errorf("row %d lit=%v", i, lit)
		}
	}

	c.Clear()
	if strings.Trim(strings.ReplaceAll(c.String(), "\n", ""), "⠀") != "" {
		t.Error("clear left dots behind")
	}

	c.Set(-1, 0)
	c.Set(1000, 1000)
}

func TestModelAdvancesAndLocks(t *testing.T) {
	m := newTestModel(t, "nominal", 0.5)

	for i := 0; i < 1000 && !m.done; i++ {
		m = update(m, TickMsg{})
	}

	if m.Ticks() != 4000 {
		t.Errorf("ran %d ticks, want 4000", m.Ticks())
	}
	if !m.done || m.Err() != nil {
		t.Errorf("done=%v err=%v", m.done, m.Err())
	}
	if !m.Locked() {
		t.Errorf("not locked at the end, error %.2f rad", m.last.PositionError())
	}
	if len(m.errHist) != historyCapacity {
		t.Errorf("history length %d", len(m.errHist))
	}

	view := m.View()
	for _, want := range []string{"NOMINAL", "DONE", "angle error [deg]", "True speed"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModelKeys(t *testing.T) {
	m := newTestModel(t, "nominal", 0.1)
	perFrame := m.ticksPerFrame

	m = update(m, key("+"))
	if m.ticksPerFrame != 2*perFrame {
		t.Errorf("ticks per frame %d after +", m.ticksPerFrame)
	}
	m = update(m, key("-"))
	m = update(m, key("-"))
	if m.ticksPerFrame != max(perFrame/2, 1) {
		t.Errorf("ticks per frame %d after -", m.ticksPerFrame)
	}

	m = update(m, key(" "))
	m = update(m, TickMsg{})
	if m.Ticks() != 0 {
		t.Errorf("paused model advanced %d ticks", m.Ticks())
	}
	if !strings.Contains(m.View(), "PAUSED") {
		t.Error("view does not show PAUSED")
	}

	m = update(m, key(" "))
	m = update(m, TickMsg{})
	if m.Ticks() == 0 {
		t.Error("resumed model did not advance")
	}

	m = update(m, key("r"))
	if m.Ticks() != 0 || len(m.errHist) != 0 {
		t.Error("restart did not clear the run")
	}

	theme := CurrentTheme.Name
	m = update(m, key("t"))
	if CurrentTheme.Name == theme {
		t.Error("theme did not change")
	}
	SetTheme(theme)

	if _, cmd := m.Update(key("q")); cmd == nil {
		t.Error("q should return a quit command")
	}
}

func TestModelFault(t *testing.T) {
	m := newTestModel(t, "unstable", 0.1)
	m = update(m, TickMsg{})

	if !errors.Is(m.Err(), estimator.ErrTimingViolation) {
		t.Fatalf("expected timing violation, got %v", m.Err())
	}
	if !strings.Contains(m.View(), "FAULT") {
		t.Error("view does not show FAULT")
	}

	// further frames do nothing
	m = update(m, TickMsg{})
	if m.Ticks() != 0 {
		t.Errorf("faulted model ran %d ticks", m.Ticks())
	}
}

func TestNewModelRejectsBadConfig(t *testing.T) {
	s, err := experiment.Build(config.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewModel(s, sim.Config{}, "x"); err == nil {
		t.Error("expected error for zero duration")
	}
}

func TestThemes(t *testing.T) {
	if got := strings.Join(ThemeNames(), ","); got != "ocean,retro,minimal" {
		t.Errorf("themes %s", got)
	}
	if GetTheme("nope").Name != "ocean" {
		t.Error("unknown theme should fall back to ocean")
	}
}
