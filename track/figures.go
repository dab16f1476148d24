package track

import (
	"fmt"

	grob "github.com/MetalBlueberry/go-plotly/generated/v2.34.0/graph_objects"
	ptypes "github.com/MetalBlueberry/go-plotly/pkg/types"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// fieldRows extracts one sample of a [n, 1, height, width] field tensor as a
// row-major [height][width] matrix of float64.
func fieldRows(t *tensors.Tensor, sample int) [][]float64 {
	shape := t.Shape()
	if shape.Rank() != 4 || shape.Dimensions[1] != 1 {
		exceptions.Panicf("figures expect field tensors shaped [n, 1, height, width], got %s", shape)
	}
	if sample < 0 || sample >= shape.Dimensions[0] {
		exceptions.Panicf("sample %d out of range for tensor shaped %s", sample, shape)
	}
	height, width := shape.Dimensions[2], shape.Dimensions[3]
	var flat []float64
	switch shape.DType {
	case dtypes.Float64:
		flat = tensors.MustCopyFlatData[float64](t)
	case dtypes.Float32:
		flat32 := tensors.MustCopyFlatData[float32](t)
		flat = make([]float64, len(flat32))
		for i, v := range flat32 {
			flat[i] = float64(v)
		}
	default:
		exceptions.Panicf("figures support float32/float64 fields, got %s", shape.DType)
	}
	offset := sample * height * width
	rows := make([][]float64, height)
	for i := range rows {
		rows[i] = flat[offset+i*width : offset+(i+1)*width]
	}
	return rows
}

// panelStrip lays several equally-sized panels side by side in one heatmap,
// separated by one column of nulls so plotly renders a visible gutter.
func panelStrip(panels ...[][]float64) [][]any {
	height := len(panels[0])
	strip := make([][]any, height)
	for i := range strip {
		for p, panel := range panels {
			if p > 0 {
				strip[i] = append(strip[i], nil)
			}
			for _, v := range panel[i] {
				strip[i] = append(strip[i], v)
			}
		}
	}
	return strip
}

func heatmapFigure(title string, strip [][]any) *grob.Fig {
	return &grob.Fig{
		Data: []ptypes.Trace{
			&grob.Heatmap{
				Z: ptypes.DataArray(strip),
			},
		},
		Layout: &grob.Layout{
			Title: &grob.LayoutTitle{Text: ptypes.S(title)},
		},
	}
}

// ReconstructionFigure renders one test sample as a strip of panels:
// truth, reconstruction, absolute error and (when given) the latent phi
// field.
func ReconstructionFigure(truth, reco, phi *tensors.Tensor, sample int) *grob.Fig {
	truthRows := fieldRows(truth, sample)
	recoRows := fieldRows(reco, sample)
	errRows := make([][]float64, len(truthRows))
	for i := range truthRows {
		errRows[i] = make([]float64, len(truthRows[i]))
		for j := range truthRows[i] {
			d := recoRows[i][j] - truthRows[i][j]
			if d < 0 {
				d = -d
			}
			errRows[i][j] = d
		}
	}
	panels := [][][]float64{truthRows, recoRows, errRows}
	title := "truth | reconstruction | abs error"
	if phi != nil {
		panels = append(panels, fieldRows(phi, sample))
		title += " | phi"
	}
	return heatmapFigure(title, panelStrip(panels...))
}

// ModesFigure renders the decoder's spatial modes ([k, 1, height, width])
// side by side.
func ModesFigure(modes *tensors.Tensor) *grob.Fig {
	numModes := modes.Shape().Dimensions[0]
	panels := make([][][]float64, numModes)
	for k := 0; k < numModes; k++ {
		panels[k] = fieldRows(modes, k)
	}
	return heatmapFigure(fmt.Sprintf("%d decoder modes", numModes), panelStrip(panels...))
}

// LatentsFigure renders the trajectory of each code dimension across the
// samples of a [n, latentDim] code tensor.
func LatentsFigure(code *tensors.Tensor) *grob.Fig {
	shape := code.Shape()
	if shape.Rank() != 2 {
		exceptions.Panicf("latents figure expects codes shaped [n, latentDim], got %s", shape)
	}
	n, latentDim := shape.Dimensions[0], shape.Dimensions[1]
	var flat []float64
	switch shape.DType {
	case dtypes.Float64:
		flat = tensors.MustCopyFlatData[float64](code)
	case dtypes.Float32:
		flat32 := tensors.MustCopyFlatData[float32](code)
		flat = make([]float64, len(flat32))
		for i, v := range flat32 {
			flat[i] = float64(v)
		}
	default:
		exceptions.Panicf("latents figure supports float32/float64 codes, got %s", shape.DType)
	}
	steps := make([]float64, n)
	for i := range steps {
		steps[i] = float64(i)
	}
	fig := &grob.Fig{
		Layout: &grob.Layout{
			Title: &grob.LayoutTitle{Text: ptypes.S("latent code trajectories")},
		},
	}
	for d := 0; d < latentDim; d++ {
		ys := make([]float64, n)
		for i := 0; i < n; i++ {
			ys[i] = flat[i*latentDim+d]
		}
		fig.Data = append(fig.Data, &grob.Scatter{
			Name: ptypes.S(fmt.Sprintf("latent %d", d)),
			Mode: "lines",
			X:    ptypes.DataArray(steps),
			Y:    ptypes.DataArray(ys),
		})
	}
	return fig
}
