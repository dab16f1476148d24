package nets

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	timage "github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
)

// Direct is a convolutional autoencoder without an explicit bottleneck: the
// latent phi is itself a single-channel field on the same grid as the input,
// produced by the encoder stack; the decoder maps it back to a
// reconstruction. With no bottleneck there is no code and no mode
// extraction, so the smoothness penalty applies to phi directly.
type Direct struct {
	hiddenChannels int
}

// NewDirect returns a direct (bottleneck-free) autoencoder.
// hiddenChannels sets the width of the intermediate convolution layers; when
// 0 it defaults to 8.
func NewDirect(hiddenChannels int) *Direct {
	if hiddenChannels <= 0 {
		hiddenChannels = 8
	}
	return &Direct{hiddenChannels: hiddenChannels}
}

// HasBottleneck implements Network. Always false for Direct.
func (d *Direct) HasBottleneck() bool { return false }

// HasModeExtraction implements Network. Always false for Direct.
func (d *Direct) HasModeExtraction() bool { return false }

// Modes implements Network. Direct networks have no modes; calling this is a
// contract violation.
func (d *Direct) Modes(ctx *context.Context, g *Graph) *Node {
	exceptions.Panicf("Direct network does not extract modes; check HasModeExtraction before calling Modes")
	return nil
}

func (d *Direct) conv(ctx *context.Context, x *Node, channels int) *Node {
	return layers.Convolution(ctx, x).
		Filters(channels).KernelSize(3).PadSame().
		ChannelsAxis(timage.ChannelsFirst).
		Done()
}

// Apply implements Network. The batch must be shaped
// [batch, 1, height, width].
func (d *Direct) Apply(ctx *context.Context, batch *Node) *Outputs {
	if batch.Rank() != 4 || batch.Shape().Dimensions[1] != 1 {
		exceptions.Panicf("Direct network expects batches shaped [batch, 1, height, width], got %s",
			batch.Shape())
	}

	// Encoder: two convolutions narrowing back to a single-channel phi field.
	x := activations.Relu(d.conv(ctx.In("encoder").In("conv0"), batch, d.hiddenChannels))
	phi := d.conv(ctx.In("encoder").In("conv1"), x, 1)

	// Decoder: widen, then project back to the input channel.
	y := activations.Relu(d.conv(ctx.In("decoder").In("conv0"), phi, d.hiddenChannels))
	reco := d.conv(ctx.In("decoder").In("conv1"), y, 1)

	return &Outputs{Reconstruction: reco, Phi: phi}
}
