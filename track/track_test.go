package track

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/gomlx/ui/plots"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscard(t *testing.T) {
	Discard.AddScalar("train_loss", 0, 1.0)
	Discard.AddFigure("reconstruction", 0, nil)
	assert.NoError(t, Discard.Close())
}

func readPoints(t *testing.T, path string) []plots.Point {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	var points []plots.Point
	dec := json.NewDecoder(f)
	for {
		var p plots.Point
		if err := dec.Decode(&p); err == io.EOF {
			return points
		} else if err != nil {
			t.Fatalf("failed to decode plot point: %v", err)
		}
		points = append(points, p)
	}
}

func TestRunTrackerScalars(t *testing.T) {
	runDir := t.TempDir()
	tracker, err := NewRunTracker(runDir)
	require.NoError(t, err)

	tracker.AddScalar("train_loss", 0, 0.5)
	tracker.AddScalar("test/loss", 7, 0.25)
	tracker.AddScalar("test/rel_Error", 7, 0.1)
	require.NoError(t, tracker.Close())

	points := readPoints(t, filepath.Join(runDir, plots.TrainingPlotFileName))
	require.Len(t, points, 3)
	assert.Equal(t, "train_loss", points[0].MetricName)
	assert.Equal(t, "loss", points[0].MetricType)
	assert.Equal(t, 0.5, points[0].Value)
	assert.Equal(t, float64(7), points[1].Step)
	assert.Equal(t, "error", points[2].MetricType)
}

func TestRunTrackerFigures(t *testing.T) {
	runDir := t.TempDir()
	tracker, err := NewRunTracker(runDir)
	require.NoError(t, err)

	fig := LatentsFigure(codeTensor(3, 2))
	tracker.AddFigure("latents", 700, fig)
	tracker.AddFigure("nil figure", 700, nil)
	require.NoError(t, tracker.Close())

	path := filepath.Join(runDir, "figures", "latents_step_700.html")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Plotly.newPlot")
	assert.Contains(t, string(content), "latent 0")

	entries, err := os.ReadDir(filepath.Join(runDir, "figures"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "nil figures are dropped")
}

func TestFigureNameSanitized(t *testing.T) {
	runDir := t.TempDir()
	tracker, err := NewRunTracker(runDir)
	require.NoError(t, err)

	tracker.AddFigure("test/reconstruction", 5, LatentsFigure(codeTensor(2, 1)))
	require.NoError(t, tracker.Close())

	entries, err := os.ReadDir(filepath.Join(runDir, "figures"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.Contains(entries[0].Name(), "/"))
	assert.Equal(t, "test_reconstruction_step_5.html", entries[0].Name())
}
