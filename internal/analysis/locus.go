package analysis

import (
	"math"
	"strings"

	"github.com/san-kum/sensorless/internal/sim"
)

type Point struct{ X, Y float64 }

// FluxLocus holds the observed magnet flux trajectory in the alpha-beta
// plane. A converged observer traces a circle of radius psi.
type FluxLocus struct {
	Points []Point
	Radius float64 // expected radius, drawn as a reference
}

// NewFluxLocus keeps every stride-th sample.
func NewFluxLocus(samples []sim.Sample, radius float64, stride int) *FluxLocus {
	if stride < 1 {
		stride = 1
	}
	locus := &FluxLocus{Radius: radius, Points: make([]Point, 0, len(samples)/stride+1)}
	for i := 0; i < len(samples); i += stride {
		locus.Points = append(locus.Points, Point{X: samples[i].EtaAlpha, Y: samples[i].EtaBeta})
	}
	return locus
}

// ASCII renders the locus with the reference circle and axes. The plot is
// square in data units and centred on the origin.
func (l *FluxLocus) ASCII(width, height int) string {
	if l == nil || len(l.Points) == 0 || width < 3 || height < 3 {
		return ""
	}

	extent := l.Radius
	for _, p := range l.Points {
		extent = math.Max(extent, math.Max(math.Abs(p.X), math.Abs(p.Y)))
	}
	if extent == 0 {
		extent = 1
	}
	extent *= 1.1

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
		for j := range canvas[i] {
			canvas[i][j] = ' '
		}
	}

	toCell := func(x, y float64) (int, int) {
		col := int((x + extent) / (2 * extent) * float64(width-1))
		row := height - 1 - int((y+extent)/(2*extent)*float64(height-1))
		return row, col
	}
	put := func(x, y float64, r rune, over bool) {
		row, col := toCell(x, y)
		if row >= 0 && row < height && col >= 0 && col < width && (over || canvas[row][col] == ' ') {
			canvas[row][col] = r
		}
	}

	zeroRow, zeroCol := toCell(0, 0)
	for col := 0; col < width; col++ {
		canvas[zeroRow][col] = '─'
	}
	for row := 0; row < height; row++ {
		canvas[row][zeroCol] = '│'
	}
	canvas[zeroRow][zeroCol] = '┼'

	if l.Radius > 0 {
		for k := 0; k < 360; k++ {
			a := float64(k) * math.Pi / 180
			put(l.Radius*math.Cos(a), l.Radius*math.Sin(a), '·', true)
		}
	}
	for _, p := range l.Points {
		put(p.X, p.Y, '•', true)
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}
