package track

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fieldTensor returns an [n, 1, height, width] tensor with distinct values.
func fieldTensor(n, height, width int) *tensors.Tensor {
	batch := make([][][][]float64, n)
	for i := range batch {
		batch[i] = make([][][]float64, 1)
		batch[i][0] = make([][]float64, height)
		for r := range batch[i][0] {
			batch[i][0][r] = make([]float64, width)
			for c := range batch[i][0][r] {
				batch[i][0][r][c] = float64(i*height*width + r*width + c)
			}
		}
	}
	return tensors.FromValue(batch)
}

// codeTensor returns an [n, latentDim] float64 tensor.
func codeTensor(n, latentDim int) *tensors.Tensor {
	code := make([][]float64, n)
	for i := range code {
		code[i] = make([]float64, latentDim)
		for d := range code[i] {
			code[i][d] = float64(i + d)
		}
	}
	return tensors.FromValue(code)
}

func TestFieldRows(t *testing.T) {
	rows := fieldRows(fieldTensor(2, 3, 4), 1)
	require.Len(t, rows, 3)
	require.Len(t, rows[0], 4)
	assert.Equal(t, 12.0, rows[0][0])
	assert.Equal(t, 23.0, rows[2][3])

	assert.Panics(t, func() { fieldRows(fieldTensor(2, 3, 4), 2) })
	assert.Panics(t, func() { fieldRows(codeTensor(2, 3), 0) })
}

func TestPanelStrip(t *testing.T) {
	a := [][]float64{{1, 2}, {3, 4}}
	b := [][]float64{{5, 6}, {7, 8}}
	strip := panelStrip(a, b)
	require.Len(t, strip, 2)
	require.Len(t, strip[0], 5)
	assert.Equal(t, 1.0, strip[0][0])
	assert.Nil(t, strip[0][2], "gutter column between panels")
	assert.Equal(t, 5.0, strip[0][3])
	assert.Equal(t, 8.0, strip[1][4])
}

func TestReconstructionFigure(t *testing.T) {
	truth := fieldTensor(2, 3, 4)
	reco := fieldTensor(2, 3, 4)

	fig := ReconstructionFigure(truth, reco, nil, 1)
	require.Len(t, fig.Data, 1)

	withPhi := ReconstructionFigure(truth, reco, fieldTensor(2, 3, 4), 0)
	require.Len(t, withPhi.Data, 1)
}

func TestModesFigure(t *testing.T) {
	fig := ModesFigure(fieldTensor(3, 2, 2))
	require.Len(t, fig.Data, 1)
}

func TestLatentsFigure(t *testing.T) {
	fig := LatentsFigure(codeTensor(5, 3))
	require.Len(t, fig.Data, 3, "one trace per latent dimension")

	assert.Panics(t, func() { LatentsFigure(fieldTensor(1, 2, 2)) })
}
