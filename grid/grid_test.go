package grid

import (
	"sync"
	"testing"

	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/simplego"
)

var (
	backendOnce sync.Once
	testBackend backends.Backend
)

func getTestBackend() backends.Backend {
	backendOnce.Do(func() {
		backends.DefaultConfig = "go"
		testBackend = backends.MustNew()
	})
	return testBackend
}

// mesh returns rows x cols coordinate arrays with X varying along columns and
// Y along rows, both with the given spacing.
func mesh(rows, cols int, spacing float64) (x, y [][]float64) {
	x = make([][]float64, rows)
	y = make([][]float64, rows)
	for i := range x {
		x[i] = make([]float64, cols)
		y[i] = make([]float64, cols)
		for j := range x[i] {
			x[i][j] = float64(j) * spacing
			y[i][j] = float64(i) * spacing
		}
	}
	return
}

func TestNewDerivesSpacing(t *testing.T) {
	x, y := mesh(10, 10, 0.5)
	g, err := New(x, y)
	require.NoError(t, err)
	assert.Equal(t, 0.5, g.DX())
	assert.Equal(t, 0.5, g.DY())
	assert.Equal(t, 10, g.Height())
	assert.Equal(t, 10, g.Width())
}

func TestNewFallbackSpacing(t *testing.T) {
	// Transposed sweep: X varies along rows, Y along columns, so the first
	// candidate delta of each axis is zero and the fallback applies.
	y, x := mesh(4, 4, 2.0)
	g, err := New(x, y)
	require.NoError(t, err)
	assert.Equal(t, 2.0, g.DX())
	assert.Equal(t, 2.0, g.DY())
}

func TestNewDegenerateGrid(t *testing.T) {
	constant := make([][]float64, 3)
	for i := range constant {
		constant[i] = []float64{7, 7, 7}
	}
	x, y := mesh(3, 3, 1.0)
	_, err := New(constant, y)
	require.Error(t, err)
	_, err = New(x, constant)
	require.Error(t, err)

	_, err = New(x[:1], y[:1])
	require.Error(t, err)
}

func TestDerivativesOfLinearRamp(t *testing.T) {
	backend := getTestBackend()
	x, y := mesh(5, 5, 0.5)
	g, err := New(x, y)
	require.NoError(t, err)

	// f = 3*row + 2*col in index units: df/dx = 3/dx, df/dy = 2/dy except on
	// the replicated leading edge, which differences against itself.
	field := make([][]float64, 5)
	for i := range field {
		field[i] = make([]float64, 5)
		for j := range field[i] {
			field[i][j] = 3*float64(i) + 2*float64(j)
		}
	}
	exec := MustNewExec(backend, func(f *Node) (dfdx, dfdy *Node) {
		op := g.Operators(f.Graph(), f.DType())
		return op.DerivX(f), op.DerivY(f)
	})
	input := [][][][]float64{{field}}
	dfdx, dfdy := exec.MustExec2(input)

	gotX := dfdx.Value().([][][][]float64)[0][0]
	gotY := dfdy.Value().([][][][]float64)[0][0]
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			wantX := 3 / g.DX()
			if i == 0 {
				wantX = 0
			}
			wantY := 2 / g.DY()
			if j == 0 {
				wantY = 0
			}
			assert.InDeltaf(t, wantX, gotX[i][j], 1e-6, "dfdx at (%d,%d)", i, j)
			assert.InDeltaf(t, wantY, gotY[i][j], 1e-6, "dfdy at (%d,%d)", i, j)
		}
	}
}

func TestGradientMagnitudeOfConstantField(t *testing.T) {
	backend := getTestBackend()
	x, y := mesh(6, 6, 1.0)
	g, err := New(x, y)
	require.NoError(t, err)

	exec := MustNewExec(backend, func(f *Node) *Node {
		op := g.Operators(f.Graph(), f.DType())
		return op.GradientMagnitude(f)
	})
	field := make([][]float64, 6)
	for i := range field {
		field[i] = []float64{4, 4, 4, 4, 4, 4}
	}
	got := exec.MustExec1([][][][]float64{{field}}).Value().([][][]float64)
	for i := range got[0] {
		for j := range got[0][i] {
			assert.Zerof(t, got[0][i][j], "gradient magnitude at (%d,%d)", i, j)
		}
	}
}
