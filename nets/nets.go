// Package nets defines the network contract consumed by the training core,
// along with two reference autoencoder variants for 2D field snapshots:
//
//   - Direct: a convolutional autoencoder whose latent "phi" is itself a
//     spatially structured field, with no explicit bottleneck.
//   - Modal: a bottleneck autoencoder whose decoder mixes a small set of
//     learned spatial modes; the code is the low-dimensional representation
//     and the modes are exposed for regularization and interpretation.
//
// Networks are graph-building objects: Apply is called while building the
// computation graph, and the variables live in the context scope given at
// construction. Capabilities are declared up front (HasBottleneck,
// HasModeExtraction) so callers never probe at call time.
package nets

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// Outputs of one forward application of a Network.
type Outputs struct {
	// Reconstruction of the input batch, same shape as the input.
	Reconstruction *Node

	// Phi is the intermediate latent field, spatially structured
	// ([batch, 1, height, width]).
	Phi *Node

	// Code is the low-dimensional representation, shaped [batch, latentDim].
	// It is nil for networks without a bottleneck.
	Code *Node
}

// Network is the contract between the training core and a model. All methods
// are graph-building: they may only be called while a graph is being built,
// and they panic (in the gomlx style) on shape mismatches.
type Network interface {
	// Apply builds the forward computation for a batch shaped
	// [batch, channels, height, width] and returns all of its outputs.
	Apply(ctx *context.Context, batch *Node) *Outputs

	// HasBottleneck reports whether Apply produces a Code.
	HasBottleneck() bool

	// HasModeExtraction reports whether the decoder exposes named spatial
	// basis fields via Modes.
	HasModeExtraction() bool

	// Modes returns the decoder's spatial modes shaped
	// [numModes, 1, height, width]. Only valid when HasModeExtraction.
	Modes(ctx *context.Context, g *Graph) *Node
}
