// Package monitor renders fit diagnostics as PNG plots.
package monitor

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/trackfit/internal/effect"
	"github.com/banshee-data/trackfit/internal/fit"
	"github.com/banshee-data/trackfit/internal/trajectory"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// samplesPerNs sets the density of trajectory points in the projection plots.
const samplesPerNs = 20

// FitSample is the recorded state of one fit.
type FitSample struct {
	Label      string
	Fitted     *trajectory.Piecewise
	Truth      *trajectory.Piecewise // optional
	Iterations []fit.IterationSummary
	Hits       []HitSample
}

// HitSample is one hit residual, normalised to its error.
type HitSample struct {
	Time   float64
	Pull   float64
	Active bool
	Kind   effect.ResidualKind
}

// FitPlotter collects fit results and writes diagnostic plots: the
// transverse projection of the fitted and true trajectories, the hit pulls
// against time and the chi² per iteration.
type FitPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string
	samples   []FitSample
}

// NewFitPlotter creates a disabled plotter.
func NewFitPlotter() *FitPlotter {
	return &FitPlotter{}
}

// Start enables recording into outputDir, creating it if needed.
func (fp *FitPlotter) Start(outputDir string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	fp.outputDir = outputDir
	fp.enabled = true
	fp.samples = nil
	return nil
}

// Stop disables recording. Call GeneratePlots() to produce output files.
func (fp *FitPlotter) Stop() {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.enabled = false
}

// IsEnabled returns true if the plotter is currently recording.
func (fp *FitPlotter) IsEnabled() bool {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.enabled
}

// Record stores a fit result and the final state of its hits. It is a no-op
// when the plotter is not enabled or the fit failed.
func (fp *FitPlotter) Record(label string, res fit.Result, hits []*effect.WireHit, truth *trajectory.Piecewise) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if !fp.enabled || res.Trajectory == nil {
		return
	}
	s := FitSample{
		Label:      label,
		Fitted:     res.Trajectory.Clone(),
		Truth:      truth,
		Iterations: res.Iterations,
	}
	for _, h := range hits {
		r := h.LastResidual()
		if r.Variance <= 0 {
			continue
		}
		s.Hits = append(s.Hits, HitSample{
			Time:   h.Time(),
			Pull:   r.Value / math.Sqrt(r.Variance),
			Active: h.Active(),
			Kind:   r.Kind,
		})
	}
	fp.samples = append(fp.samples, s)
}

// SampleCount returns the number of recorded fits.
func (fp *FitPlotter) SampleCount() int {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return len(fp.samples)
}

// OutputDir returns the current output directory for plots.
func (fp *FitPlotter) OutputDir() string {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.outputDir
}

// GeneratePlots writes the plots of every recorded fit plus a chi² summary
// and returns the number of files written.
func (fp *FitPlotter) GeneratePlots() (int, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if fp.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}
	if len(fp.samples) == 0 {
		return 0, nil
	}

	files := 0
	for i, s := range fp.samples {
		n, err := fp.generateFitPlots(i, s)
		files += n
		if err != nil {
			return files, fmt.Errorf("fit %d (%s): %w", i, s.Label, err)
		}
	}
	if err := fp.generateChi2Plot(); err != nil {
		return files, err
	}
	return files + 1, nil
}

func (fp *FitPlotter) generateFitPlots(idx int, s FitSample) (int, error) {
	prefix := fmt.Sprintf("fit_%03d", idx)

	pXY := plot.New()
	pXY.Title.Text = fmt.Sprintf("%s - transverse projection", s.Label)
	pXY.X.Label.Text = "x (mm)"
	pXY.Y.Label.Text = "y (mm)"

	colors := generateColors(s.Fitted.Len())
	for i, h := range s.Fitted.Pieces() {
		pts := sampleXY(h, h.Range())
		if len(pts) < 2 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return 0, err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		pXY.Add(line)
		if i == 0 {
			pXY.Legend.Add("fit", line)
		}
	}
	if s.Truth != nil {
		var pts plotter.XYs
		for _, h := range s.Truth.Pieces() {
			pts = append(pts, sampleXY(h, h.Range())...)
		}
		if len(pts) > 1 {
			line, err := plotter.NewLine(pts)
			if err != nil {
				return 0, err
			}
			line.Color = color.Gray{Y: 96}
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
			pXY.Add(line)
			pXY.Legend.Add("truth", line)
		}
	}
	pXY.Legend.Top = true
	pXY.Legend.Left = false

	xyFile := filepath.Join(fp.outputDir, prefix+"_xy.png")
	if err := pXY.Save(8*vg.Inch, 8*vg.Inch, xyFile); err != nil {
		return 0, fmt.Errorf("save projection plot: %w", err)
	}

	pPull := plot.New()
	pPull.Title.Text = fmt.Sprintf("%s - hit pulls", s.Label)
	pPull.X.Label.Text = "time (ns)"
	pPull.Y.Label.Text = "residual / sigma"

	byKind := map[string]plotter.XYs{}
	for _, h := range s.Hits {
		key := h.Kind.String()
		if !h.Active {
			key = "inactive"
		}
		byKind[key] = append(byKind[key], plotter.XY{X: h.Time, Y: h.Pull})
	}
	keys := make([]string, 0, len(byKind))
	for k := range byKind {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kindColors := generateColors(len(keys))
	for i, k := range keys {
		sc, err := plotter.NewScatter(byKind[k])
		if err != nil {
			return 1, err
		}
		sc.GlyphStyle.Color = kindColors[i]
		sc.GlyphStyle.Radius = vg.Points(2)
		pPull.Add(sc)
		pPull.Legend.Add(k, sc)
	}
	pPull.Add(plotter.NewGrid())
	pPull.Legend.Top = true
	pPull.Legend.Left = false

	pullFile := filepath.Join(fp.outputDir, prefix+"_pulls.png")
	if err := pPull.Save(14*vg.Inch, 6*vg.Inch, pullFile); err != nil {
		return 1, fmt.Errorf("save pull plot: %w", err)
	}
	return 2, nil
}

// generateChi2Plot draws chi²/ndof against iteration for every fit.
func (fp *FitPlotter) generateChi2Plot() error {
	p := plot.New()
	p.Title.Text = "chi2 / ndof per iteration"
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "chi2 / ndof"

	colors := generateColors(len(fp.samples))
	for i, s := range fp.samples {
		pts := make(plotter.XYs, 0, len(s.Iterations))
		for _, it := range s.Iterations {
			pts = append(pts, plotter.XY{X: float64(it.Iteration), Y: it.Chi2PerNDOF()})
		}
		if len(pts) == 0 {
			continue
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return err
		}
		line.Color = colors[i]
		points.Color = colors[i]
		p.Add(line, points)
		p.Legend.Add(s.Label, line)
	}
	p.Legend.Top = true
	p.Legend.Left = false

	file := filepath.Join(fp.outputDir, "chi2_iterations.png")
	if err := p.Save(10*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save chi2 plot: %w", err)
	}
	return nil
}

// sampleXY returns the global x-y positions of h over r.
func sampleXY(h *trajectory.Helix, r trajectory.TimeRange) plotter.XYs {
	n := int(math.Ceil(r.Span()*samplesPerNs)) + 1
	if n < 2 {
		n = 2
	}
	pts := make(plotter.XYs, n)
	for i := range pts {
		t := r.Low + r.Span()*float64(i)/float64(n-1)
		pos := h.Position(t)
		pts[i] = plotter.XY{X: pos.X, Y: pos.Y}
	}
	return pts
}

// generateColors creates a palette of distinct colors
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64
	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

// MakePlotOutputDir returns baseDir/label/<timestamp> with label reduced to
// a safe file name.
func MakePlotOutputDir(baseDir, label string) string {
	return filepath.Join(baseDir, SanitizeFilename(label), time.Now().Format("20060102_150405"))
}

// SanitizeFilename makes a safe filename from an arbitrary label. Characters
// other than ASCII letters, digits, dot, underscore and dash become a single
// underscore, and the result is trimmed to 128 bytes.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
