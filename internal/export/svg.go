// Package export renders run traces as standalone SVG plots.
package export

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/san-kum/sensorless/internal/sim"
)

// Series is one polyline of a plot.
type Series struct {
	Name  string
	Color string
	X, Y  []float64
}

type bounds struct{ minX, maxX, minY, maxY float64 }

func seriesBounds(series []Series) bounds {
	b := bounds{math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1)}
	for _, s := range series {
		for i := range s.X {
			b.minX = math.Min(b.minX, s.X[i])
			b.maxX = math.Max(b.maxX, s.X[i])
			b.minY = math.Min(b.minY, s.Y[i])
			b.maxY = math.Max(b.maxY, s.Y[i])
		}
	}

	// 10% padding, and a unit range for flat data
	rangeX, rangeY := b.maxX-b.minX, b.maxY-b.minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	b.minX -= rangeX * 0.1
	b.maxX += rangeX * 0.1
	b.minY -= rangeY * 0.1
	b.maxY += rangeY * 0.1
	return b
}

// SeriesSVG plots every series on shared axes. Series with fewer than two
// points are skipped; with nothing to draw it returns "".
func SeriesSVG(series []Series, width, height int, title string) string {
	drawable := make([]Series, 0, len(series))
	for _, s := range series {
		if len(s.X) >= 2 && len(s.X) == len(s.Y) {
			drawable = append(drawable, s)
		}
	}
	if len(drawable) == 0 {
		return ""
	}

	b := seriesBounds(drawable)
	w, h := float64(width), float64(height)
	px := func(x float64) float64 { return (x - b.minX) / (b.maxX - b.minX) * w }
	py := func(y float64) float64 { return h - (y-b.minY)/(b.maxY-b.minY)*h }

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	if b.minY < 0 && b.maxY > 0 {
		fmt.Fprintf(&sb, `<line x1="0" y1="%.1f" x2="%d" y2="%.1f" stroke="#333333" stroke-width="1"/>
`, py(0), width, py(0))
	}
	if title != "" {
		fmt.Fprintf(&sb, `<text x="8" y="16" fill="#cccccc" font-family="monospace" font-size="12">%s</text>
`, escape(title))
	}

	for i, s := range drawable {
		fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="M`, s.Color)
		for j := range s.X {
			if j > 0 {
				sb.WriteString(" L")
			}
			fmt.Fprintf(&sb, "%.1f,%.1f", px(s.X[j]), py(s.Y[j]))
		}
		sb.WriteString(`"/>` + "\n")

		if s.Name != "" {
			fmt.Fprintf(&sb, `<text x="%d" y="%d" fill="%s" font-family="monospace" font-size="11">%s</text>
`, width-140, 16+14*i, s.Color, escape(s.Name))
		}
	}

	sb.WriteString("</svg>")
	return sb.String()
}

func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}

// TrackingSeries returns the true and estimated electrical angle in degrees
// against time, keeping every stride-th sample.
func TrackingSeries(samples []sim.Sample, stride int) []Series {
	if stride < 1 {
		stride = 1
	}
	n := (len(samples) + stride - 1) / stride
	truth := Series{Name: "true angle", Color: "#00ff88", X: make([]float64, 0, n), Y: make([]float64, 0, n)}
	est := Series{Name: "estimate", Color: "#ff00ff", X: make([]float64, 0, n), Y: make([]float64, 0, n)}

	for i := 0; i < len(samples); i += stride {
		s := samples[i]
		truth.X = append(truth.X, s.T)
		truth.Y = append(truth.Y, s.TrueTheta*180/math.Pi)
		est.X = append(est.X, s.T)
		est.Y = append(est.Y, s.Position*180/math.Pi)
	}
	return []Series{truth, est}
}

// ErrorSeries is the wrapped angle error in degrees against time.
func ErrorSeries(samples []sim.Sample, stride int) Series {
	if stride < 1 {
		stride = 1
	}
	s := Series{Name: "angle error [deg]", Color: "#ffcc00"}
	for i := 0; i < len(samples); i += stride {
		s.X = append(s.X, samples[i].T)
		s.Y = append(s.Y, samples[i].PositionError()*180/math.Pi)
	}
	return s
}

// WriteTrackingSVG writes a plot of the true and estimated angle followed by
// the angle error, stacked, to w.
func WriteTrackingSVG(w io.Writer, samples []sim.Sample, title string) error {
	stride := max(1, len(samples)/2000)

	angles := SeriesSVG(TrackingSeries(samples, stride), 800, 300, title)
	errs := SeriesSVG([]Series{ErrorSeries(samples, stride)}, 800, 200, "")
	if angles == "" {
		return fmt.Errorf("not enough samples to plot: %d", len(samples))
	}

	_, err := fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="800" height="500">
<g>%s</g>
<g transform="translate(0,300)">%s</g>
</svg>
`, stripHeader(angles), stripHeader(errs))
	return err
}

func stripHeader(svg string) string {
	return strings.TrimPrefix(svg, `<?xml version="1.0" encoding="UTF-8"?>`+"\n")
}
