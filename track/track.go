// Package track forwards training scalars and diagnostic figures to an
// observability sink.
//
// The sink is an injected interface: the training loop talks to a Tracker
// and never knows whether anything is listening. Discard is the no-op
// default; RunTracker persists everything under the run's log directory --
// scalars as JSONL plot points (the same format the GoMLX plotters consume)
// and figures as self-contained plotly HTML files. Sink failures are logged
// and swallowed: observability must never abort a training run.
package track

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	grob "github.com/MetalBlueberry/go-plotly/generated/v2.34.0/graph_objects"
	"github.com/gomlx/gomlx/ui/plots"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Tracker receives scalars and figures produced during training, keyed by
// the global step. Implementations must tolerate being called with any
// channel name.
type Tracker interface {
	// AddScalar records one scalar channel value at the given step.
	AddScalar(name string, step int, value float64)

	// AddFigure records one rendered diagnostic figure at the given step.
	AddFigure(name string, step int, fig *grob.Fig)

	// Close flushes pending writes. The Tracker must not be used afterwards.
	Close() error
}

// Discard is a Tracker that drops everything. It is the default sink when no
// tracking infrastructure is attached.
var Discard Tracker = discard{}

type discard struct{}

func (discard) AddScalar(string, int, float64)   {}
func (discard) AddFigure(string, int, *grob.Fig) {}
func (discard) Close() error                     { return nil }

// RunTracker persists scalars and figures under a run directory.
type RunTracker struct {
	figuresDir string
	points     chan<- plots.Point
	errReport  <-chan error
}

// NewRunTracker returns a Tracker that appends scalars to
// training_plot_points.json in runDir and writes figures into
// runDir/figures/.
func NewRunTracker(runDir string) (*RunTracker, error) {
	figuresDir := filepath.Join(runDir, "figures")
	if err := os.MkdirAll(figuresDir, 0777); err != nil {
		return nil, errors.Wrapf(err, "failed to create figures directory %q", figuresDir)
	}
	points, errReport := plots.CreatePointsWriter(filepath.Join(runDir, plots.TrainingPlotFileName))
	return &RunTracker{figuresDir: figuresDir, points: points, errReport: errReport}, nil
}

// metricType groups scalar channels for plotting: error-like channels on one
// plot, losses on another.
func metricType(name string) string {
	if strings.Contains(strings.ToLower(name), "error") {
		return "error"
	}
	return "loss"
}

// AddScalar implements Tracker.
func (t *RunTracker) AddScalar(name string, step int, value float64) {
	t.points <- plots.Point{
		MetricName: name,
		MetricType: metricType(name),
		Step:       float64(step),
		Value:      value,
	}
}

// figureHTML wraps a plotly figure spec into a minimal self-contained page.
const figureHTML = `<!DOCTYPE html>
<html><head><script src="https://cdn.plot.ly/plotly-2.34.0.min.js"></script></head>
<body><div id="fig"></div>
<script>var fig = %s; Plotly.newPlot("fig", fig.data, fig.layout);</script>
</body></html>
`

// AddFigure implements Tracker, writing the figure to
// figures/<name>_step_<step>.html. Failures are logged, never fatal.
func (t *RunTracker) AddFigure(name string, step int, fig *grob.Fig) {
	if fig == nil {
		return
	}
	encoded, err := json.Marshal(fig)
	if err != nil {
		klog.Errorf("Failed to encode figure %q at step %d: %+v", name, step, err)
		return
	}
	fileName := fmt.Sprintf("%s_step_%d.html", strings.ReplaceAll(name, "/", "_"), step)
	filePath := filepath.Join(t.figuresDir, fileName)
	if err = os.WriteFile(filePath, []byte(fmt.Sprintf(figureHTML, encoded)), 0664); err != nil {
		klog.Errorf("Failed to write figure %q: %+v", filePath, err)
	}
}

// Close implements Tracker, flushing the scalar writer.
func (t *RunTracker) Close() error {
	close(t.points)
	return <-t.errReport
}
