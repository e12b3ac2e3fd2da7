package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/hitreco/internal/hits"
)

// ClusterPlotter accumulates clusters over a run and renders them after
// the run. It satisfies pipeline.PublishSink.
type ClusterPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string
	histBins  int

	// samples holds every recorded cluster keyed by layer.
	samples map[int][]ClusterSample
	events  int
}

// ClusterSample is the part of a cluster that gets plotted.
type ClusterSample struct {
	Event int
	X, Y  float64
	R, Z  float64
	E     float64 // GeV
}

// NewClusterPlotter creates a plotter whose energy histogram uses
// histBins bins (minimum 1).
func NewClusterPlotter(histBins int) *ClusterPlotter {
	if histBins < 1 {
		histBins = 1
	}
	return &ClusterPlotter{
		histBins: histBins,
		samples:  make(map[int][]ClusterSample),
	}
}

// Start initializes the plotter for a new run.
func (cp *ClusterPlotter) Start(outputDir string) error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	cp.outputDir = outputDir
	cp.enabled = true
	cp.events = 0
	cp.samples = make(map[int][]ClusterSample)
	return nil
}

// Stop disables sampling. Call GeneratePlots() to produce output files.
func (cp *ClusterPlotter) Stop() {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.enabled = false
}

// IsEnabled returns true if the plotter is currently recording.
func (cp *ClusterPlotter) IsEnabled() bool {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.enabled
}

// PublishEvent records the clusters of one event.
func (cp *ClusterPlotter) PublishEvent(event int, clusters []*hits.Cluster) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if !cp.enabled {
		return
	}
	cp.events++
	for _, cl := range clusters {
		cp.samples[cl.Layer] = append(cp.samples[cl.Layer], ClusterSample{
			Event: event,
			X:     cl.Position[0],
			Y:     cl.Position[1],
			R:     cl.R(),
			Z:     cl.Z(),
			E:     cl.E,
		})
	}
}

// GetSampleCount returns the total number of clusters collected.
func (cp *ClusterPlotter) GetSampleCount() int {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	count := 0
	for _, s := range cp.samples {
		count += len(s)
	}
	return count
}

// GetOutputDir returns the current output directory for plots.
func (cp *ClusterPlotter) GetOutputDir() string {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.outputDir
}

// GeneratePlots writes clusters_xy.png, clusters_rz.png and
// cluster_energy.png. Returns the number of plots written.
func (cp *ClusterPlotter) GeneratePlots() (int, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if cp.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}
	if len(cp.samples) == 0 {
		return 0, nil
	}

	var layers []int
	for layer := range cp.samples {
		layers = append(layers, layer)
	}
	sort.Ints(layers)
	colors := generateColors(len(layers))

	pXY := plot.New()
	pXY.Title.Text = fmt.Sprintf("Cluster positions, %d events (x-y)", cp.events)
	pXY.X.Label.Text = "x (cm)"
	pXY.Y.Label.Text = "y (cm)"

	pRZ := plot.New()
	pRZ.Title.Text = fmt.Sprintf("Cluster positions, %d events (r-z)", cp.events)
	pRZ.X.Label.Text = "z (cm)"
	pRZ.Y.Label.Text = "r (cm)"

	var energies plotter.Values
	for i, layer := range layers {
		samples := cp.samples[layer]
		xy := make(plotter.XYs, len(samples))
		rz := make(plotter.XYs, len(samples))
		for k, s := range samples {
			xy[k] = plotter.XY{X: s.X, Y: s.Y}
			rz[k] = plotter.XY{X: s.Z, Y: s.R}
			energies = append(energies, s.E*1e6)
		}
		label := fmt.Sprintf("layer %d", layer)

		sXY, err := newScatter(xy, colors[i])
		if err != nil {
			return 0, fmt.Errorf("layer %d: %w", layer, err)
		}
		pXY.Add(sXY)
		pXY.Legend.Add(label, sXY)

		sRZ, err := newScatter(rz, colors[i])
		if err != nil {
			return 0, fmt.Errorf("layer %d: %w", layer, err)
		}
		pRZ.Add(sRZ)
		pRZ.Legend.Add(label, sRZ)
	}
	for _, p := range []*plot.Plot{pXY, pRZ} {
		p.Legend.Top = true
		p.Legend.Left = false
		p.Legend.XOffs = -10
		p.Legend.YOffs = -10
	}

	pE := plot.New()
	pE.Title.Text = "Cluster energy"
	pE.X.Label.Text = "E (keV)"
	pE.Y.Label.Text = "Clusters"
	hist, err := plotter.NewHist(energies, cp.histBins)
	if err != nil {
		return 0, fmt.Errorf("energy histogram: %w", err)
	}
	pE.Add(hist)

	plotCount := 0
	for _, out := range []struct {
		p    *plot.Plot
		name string
		w, h vg.Length
	}{
		{pXY, "clusters_xy.png", 8 * vg.Inch, 8 * vg.Inch},
		{pRZ, "clusters_rz.png", 14 * vg.Inch, 6 * vg.Inch},
		{pE, "cluster_energy.png", 10 * vg.Inch, 6 * vg.Inch},
	} {
		if err := out.p.Save(out.w, out.h, filepath.Join(cp.outputDir, out.name)); err != nil {
			return plotCount, fmt.Errorf("save %s: %w", out.name, err)
		}
		plotCount++
	}
	return plotCount, nil
}

func newScatter(pts plotter.XYs, c color.Color) (*plotter.Scatter, error) {
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Radius = vg.Points(1.5)
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	return s, nil
}

// generateColors creates a palette of distinct colors for layers
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
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
