// Package grid derives the geometry of a structured 2D mesh and builds the
// discrete finite-difference operators used by the smoothness loss.
//
// The mesh is given as two coordinate arrays X and Y of identical shape,
// assumed axis-aligned with uniform spacing along each axis. From those the
// package derives the scalar spacings dx and dy, and exposes graph operations
// that compute first-order spatial derivatives of fields shaped
// [batch, 1, height, width] (channels-first), preserving the field size by
// replicating the leading edge before the valid convolution.
package grid

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	timage "github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/pkg/errors"
)

// Grid holds the derived spacings of a uniform, axis-aligned 2D mesh.
// Immutable after construction.
type Grid struct {
	height, width int
	dx, dy        float64
}

// New derives the grid spacings from the coordinate arrays X and Y, which
// must be non-degenerate 2D arrays of the same shape.
//
// dx is taken from X[0][1]-X[0][0], falling back to X[1][0]-X[0][0] when the
// first pair is degenerate -- this tolerates coordinate arrays organized as
// either row-major or column-major spatial sweeps. dy mirrors the policy on
// Y, probing the rows first. If both candidate deltas of an axis are zero the
// operators would divide by zero, so construction fails instead.
func New(x, y [][]float64) (*Grid, error) {
	if len(x) < 2 || len(x[0]) < 2 {
		return nil, errors.Errorf("coordinate arrays must be at least 2x2, got %dx%d", len(x), len(x[0]))
	}
	if len(y) != len(x) || len(y[0]) != len(x[0]) {
		return nil, errors.Errorf("coordinate arrays must have the same shape, got X=%dx%d, Y=%dx%d",
			len(x), len(x[0]), len(y), len(y[0]))
	}
	g := &Grid{height: len(x), width: len(x[0])}
	g.dx = x[0][1] - x[0][0]
	if g.dx == 0 {
		g.dx = x[1][0] - x[0][0]
	}
	g.dy = y[1][0] - y[0][0]
	if g.dy == 0 {
		g.dy = y[0][1] - y[0][0]
	}
	if g.dx == 0 {
		return nil, errors.New("degenerate grid: both candidate spacings along x are zero")
	}
	if g.dy == 0 {
		return nil, errors.New("degenerate grid: both candidate spacings along y are zero")
	}
	return g, nil
}

// DX returns the uniform spacing along the x axis.
func (g *Grid) DX() float64 { return g.dx }

// DY returns the uniform spacing along the y axis.
func (g *Grid) DY() float64 { return g.dy }

// Height returns the number of grid rows.
func (g *Grid) Height() int { return g.height }

// Width returns the number of grid columns.
func (g *Grid) Width() int { return g.width }

// Operators are the finite-difference convolution kernels of a Grid,
// materialized as constants of one computation graph. Build them once per
// graph with Grid.Operators.
type Operators struct {
	grid *Grid

	// DxKernel is shaped [1, 1, 2, 1] (output channels, input channels,
	// height, width) holding {-1/dx, +1/dx}: a first-order difference along
	// the height axis, scaled by the inverse cell size. DyKernel is the
	// [1, 1, 1, 2] analogue for the width axis.
	DxKernel, DyKernel *Node
}

// Operators builds the Dx and Dy convolution kernels as constants of the
// given graph, with the dtype of the fields they will be applied to.
func (g *Grid) Operators(graph *Graph, dtype dtypes.DType) *Operators {
	return &Operators{
		grid:     g,
		DxKernel: ConstAsDType(graph, dtype, [][][][]float64{{{{-1 / g.dx}, {1 / g.dx}}}}),
		DyKernel: ConstAsDType(graph, dtype, [][][][]float64{{{{-1 / g.dy, 1 / g.dy}}}}),
	}
}

// assertField panics unless x is a [batch, 1, height, width] field matching
// the grid.
func (op *Operators) assertField(x *Node) {
	dims := x.Shape().Dimensions
	if x.Rank() != 4 || dims[1] != 1 {
		exceptions.Panicf("grid operators expect fields shaped [batch, 1, height, width], got %s", x.Shape())
	}
	if dims[2] != op.grid.height || dims[3] != op.grid.width {
		exceptions.Panicf("field shaped %s does not match %dx%d grid", x.Shape(), op.grid.height, op.grid.width)
	}
}

// PadTop pads x by one cell on the leading edge of the height axis,
// replicating the edge values.
func PadTop(x *Node) *Node {
	return Concatenate([]*Node{SliceAxis(x, 2, AxisElem(0)), x}, 2)
}

// PadLeft pads x by one cell on the leading edge of the width axis,
// replicating the edge values.
func PadLeft(x *Node) *Node {
	return Concatenate([]*Node{SliceAxis(x, 3, AxisElem(0)), x}, 3)
}

// DerivX returns the first-order derivative of the field along the height
// axis, same shape as x. The leading row is differenced against its
// replicated copy and therefore comes out as zero.
func (op *Operators) DerivX(x *Node) *Node {
	op.assertField(x)
	return Convolve(PadTop(x), op.DxKernel).
		ChannelsAxis(timage.ChannelsFirst).
		NoPadding().Done()
}

// DerivY returns the first-order derivative of the field along the width
// axis, same shape as x.
func (op *Operators) DerivY(x *Node) *Node {
	op.assertField(x)
	return Convolve(PadLeft(x), op.DyKernel).
		ChannelsAxis(timage.ChannelsFirst).
		NoPadding().Done()
}

// GradientMagnitude returns the pointwise Euclidean norm of the spatial
// gradient of the field, shaped [batch, height, width].
func (op *Operators) GradientMagnitude(x *Node) *Node {
	dfdx := op.DerivX(x)
	dfdy := op.DerivY(x)
	stacked := Concatenate([]*Node{dfdx, dfdy}, 1)
	return Sqrt(ReduceSum(Square(stacked), 1))
}
