package nets

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	timage "github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
)

// Modal is a bottleneck autoencoder: a dense encoder maps each snapshot to a
// low-dimensional code, and the decoder reconstructs the field as a mixture
// of learned spatial modes. The mode fields are the natural target for the
// smoothness regularization and can be inspected directly.
type Modal struct {
	// DType of the variables and of the batches Apply accepts.
	// Defaults to Float32.
	DType dtypes.DType

	height, width int
	latentDim     int
	hiddenDim     int
}

// NewModal returns a bottleneck autoencoder for fields on a height x width
// grid, with latentDim modes. hiddenDim sets the size of the encoder's
// hidden layer; when 0 it defaults to 8*latentDim.
func NewModal(height, width, latentDim, hiddenDim int) *Modal {
	if hiddenDim <= 0 {
		hiddenDim = 8 * latentDim
	}
	return &Modal{
		DType:     dtypes.Float32,
		height:    height,
		width:     width,
		latentDim: latentDim,
		hiddenDim: hiddenDim,
	}
}

// HasBottleneck implements Network. Always true for Modal.
func (m *Modal) HasBottleneck() bool { return true }

// HasModeExtraction implements Network. Always true for Modal.
func (m *Modal) HasModeExtraction() bool { return true }

// modesVar returns (creating on first use) the [latentDim, height*width]
// variable holding the flattened spatial modes.
func (m *Modal) modesVar(ctx *context.Context) *context.Variable {
	return ctx.In("decoder").
		VariableWithShape("modes", shapes.Make(m.DType, m.latentDim, m.height*m.width))
}

// Apply implements Network. The batch must be shaped
// [batch, 1, height, width] matching the grid given at construction.
func (m *Modal) Apply(ctx *context.Context, batch *Node) *Outputs {
	dims := batch.Shape().Dimensions
	if batch.Rank() != 4 || dims[1] != 1 || dims[2] != m.height || dims[3] != m.width {
		exceptions.Panicf("Modal network expects batches shaped [batch, 1, %d, %d], got %s",
			m.height, m.width, batch.Shape())
	}
	if batch.DType() != m.DType {
		exceptions.Panicf("Modal network built for dtype %s, got batch of %s", m.DType, batch.DType())
	}
	batchSize := dims[0]
	g := batch.Graph()

	// Encoder: flatten -> hidden -> code.
	x := Reshape(batch, batchSize, m.height*m.width)
	hidden := Tanh(layers.DenseWithBias(ctx.In("encoder").In("hidden"), x, m.hiddenDim))
	code := layers.DenseWithBias(ctx.In("encoder").In("code"), hidden, m.latentDim)

	// Decoder: phi is the mixture of the spatial modes; a final convolution
	// refines it into the reconstruction.
	modes := m.modesVar(ctx).ValueGraph(g)
	phi := Reshape(MatMul(code, modes), batchSize, 1, m.height, m.width)
	reco := layers.Convolution(ctx.In("decoder").In("refine"), phi).
		Filters(1).KernelSize(3).PadSame().
		ChannelsAxis(timage.ChannelsFirst).
		Done()
	reco = Add(reco, phi)

	return &Outputs{Reconstruction: reco, Phi: phi, Code: code}
}

// Modes implements Network, returning the spatial modes shaped
// [latentDim, 1, height, width].
func (m *Modal) Modes(ctx *context.Context, g *Graph) *Node {
	modes := m.modesVar(ctx).ValueGraph(g)
	return Reshape(modes, m.latentDim, 1, m.height, m.width)
}
