// Package fieldtrain trains an autoencoder on snapshots of a 2D field,
// minimizing a composite of the relative reconstruction error and a
// finite-difference smoothness penalty on the network's latent field (or on
// its decoder modes, when it extracts them).
//
// A Trainer owns the GoMLX context holding the network parameters and the
// optimizer state, and drives the whole iterate-evaluate-checkpoint cycle
// synchronously: each step computes the loss on the training set, applies one
// Adam update and, on the configured cadences, evaluates the held-out set,
// persists step-tagged and best-so-far weights and forwards scalars and
// figures to the observability sink.
package fieldtrain

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers/cosineschedule"

	"github.com/fieldml/fieldae/grid"
	"github.com/fieldml/fieldae/nets"
	"github.com/fieldml/fieldae/track"
)

// ModelScope is the context scope under which the network builds its
// variables. Weight files hold exactly the variables of this scope, so
// optimizer state and step counters are never checkpointed.
const ModelScope = context.RootScope + "model"

// Config carries the hyperparameters of a training session. The zero value is
// not usable: fill at least TrainSteps; the remaining fields have the
// defaults documented on each.
type Config struct {
	// LearningRate of the Adam optimizer. Defaults to 1e-3.
	LearningRate float64

	// MinLearningRate, when positive, turns on a cosine annealing schedule
	// decaying LearningRate down to this floor over TrainSteps. When zero the
	// learning rate stays constant.
	MinLearningRate float64

	// SmoothnessWeight scales the smoothness penalty in the composite loss.
	// When zero the penalty is skipped entirely.
	SmoothnessWeight float64

	// TrainSteps is the total number of optimizer steps. Required.
	TrainSteps int

	// TestEvery is the cadence, in steps, of held-out evaluation and
	// best-model tracking. Defaults to 500.
	TestEvery int

	// SaveEvery is the cadence, in steps, of step-tagged weight checkpoints.
	// Defaults to 5000.
	SaveEvery int

	// LogDir is the directory under which the timestamped run directory is
	// created. Defaults to "logs".
	LogDir string

	// RunName prefixes the run directory name, before the timestamp.
	RunName string

	// Tracker receives scalars and diagnostic figures. Defaults to
	// track.Discard.
	Tracker track.Tracker

	// TrackRun, when set and no Tracker is injected, persists scalars and
	// figures under the run directory with a track.RunTracker owned by the
	// session.
	TrackRun bool
}

func (c *Config) setDefaults() {
	if c.LearningRate == 0 {
		c.LearningRate = 1e-3
	}
	if c.TestEvery <= 0 {
		c.TestEvery = 500
	}
	if c.SaveEvery <= 0 {
		c.SaveEvery = 5000
	}
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	if c.Tracker == nil {
		c.Tracker = track.Discard
	}
}

// LossPoint is one sample of a loss log: the scalar loss observed at a step.
type LossPoint struct {
	Step  int
	Value float64
}

// Trainer holds one training session: the network, its parameters and
// optimizer state, the grid operators and the compiled computations. Not safe
// for concurrent use; the whole cycle is sequential.
type Trainer struct {
	backend   backends.Backend
	ctx       *context.Context
	grid      *grid.Grid
	net       nets.Network
	cfg       Config
	optimizer optimizers.Interface

	trainStep *context.Exec
	evalLoss  *context.Exec
	recoError *context.Exec
	forward   *context.Exec
	modes     *context.Exec
	subset    *Exec
}

// NewTrainer builds a session for the given network on the given grid. The
// backend fixes the compute device for the session's lifetime.
func NewTrainer(backend backends.Backend, g *grid.Grid, net nets.Network, cfg Config) *Trainer {
	cfg.setDefaults()
	if cfg.TrainSteps <= 0 {
		exceptions.Panicf("Config.TrainSteps must be positive, got %d", cfg.TrainSteps)
	}
	ctx := context.New()
	ctx.SetParam(optimizers.ParamLearningRate, cfg.LearningRate)
	t := &Trainer{
		backend:   backend,
		ctx:       ctx,
		grid:      g,
		net:       net,
		cfg:       cfg,
		optimizer: optimizers.Adam().Done(),
	}
	t.trainStep = context.MustNewExec(backend, ctx, t.trainStepGraph)
	t.evalLoss = context.MustNewExec(backend, ctx, func(ctx *context.Context, batch *Node) *Node {
		ctx.SetTraining(batch.Graph(), false)
		return t.lossGraph(ctx, batch)
	})
	t.recoError = context.MustNewExec(backend, ctx, t.recoErrorGraph)
	if net.HasBottleneck() {
		t.forward = context.MustNewExec(backend, ctx,
			func(ctx *context.Context, batch *Node) (reco, phi, code *Node) {
				ctx.SetTraining(batch.Graph(), false)
				out := t.net.Apply(ctx.In("model"), batch)
				return out.Reconstruction, out.Phi, out.Code
			})
	} else {
		t.forward = context.MustNewExec(backend, ctx,
			func(ctx *context.Context, batch *Node) (reco, phi *Node) {
				ctx.SetTraining(batch.Graph(), false)
				out := t.net.Apply(ctx.In("model"), batch)
				return out.Reconstruction, out.Phi
			})
	}
	if net.HasModeExtraction() {
		t.modes = context.MustNewExec(backend, ctx, func(ctx *context.Context, g *Graph) *Node {
			ctx.SetTraining(g, false)
			return t.net.Modes(ctx.In("model"), g)
		})
	}
	t.subset = MustNewExec(backend, func(data, indices *Node) *Node {
		return Gather(data, InsertAxes(indices, -1))
	})
	return t
}

// Context exposes the session's context, holding the network variables under
// ModelScope. Useful to load pre-trained weights before training.
func (t *Trainer) Context() *context.Context { return t.ctx }

// lossGraph builds the composite loss of one batch: reconstruction loss plus
// the weighted smoothness penalty on the decoder modes (when the network
// extracts them) or on the latent phi field.
func (t *Trainer) lossGraph(ctx *context.Context, batch *Node) *Node {
	out := t.net.Apply(ctx.In("model"), batch)
	loss := ReconstructionLoss(out.Reconstruction, batch)
	if t.cfg.SmoothnessWeight != 0 {
		op := t.grid.Operators(batch.Graph(), batch.DType())
		target := out.Phi
		if t.net.HasModeExtraction() {
			target = t.net.Modes(ctx.In("model"), batch.Graph())
		}
		loss = Add(loss, MulScalar(SmoothnessLoss(op, target), t.cfg.SmoothnessWeight))
	}
	return loss
}

// trainStepGraph builds one optimizer step: composite loss, learning rate
// schedule and the Adam update, returning the loss before the update.
func (t *Trainer) trainStepGraph(ctx *context.Context, batch *Node) *Node {
	g := batch.Graph()
	ctx.SetTraining(g, true)
	loss := t.lossGraph(ctx, batch)
	if t.cfg.MinLearningRate > 0 {
		cosineschedule.New(ctx, g, batch.DType()).
			LearningRate(t.cfg.LearningRate).
			MinLearningRate(t.cfg.MinLearningRate).
			PeriodInSteps(t.cfg.TrainSteps).
			Done()
	}
	t.optimizer.UpdateGraph(ctx, g, loss)
	return loss
}

func (t *Trainer) recoErrorGraph(ctx *context.Context, batch *Node) *Node {
	ctx.SetTraining(batch.Graph(), false)
	out := t.net.Apply(ctx.In("model"), batch)
	return Div(L2Norm(Sub(out.Reconstruction, batch)), L2Norm(batch))
}

// Loss evaluates the composite loss on a batch with the network in inference
// mode. It mutates neither parameters nor optimizer state.
func (t *Trainer) Loss(batch *tensors.Tensor) float64 {
	return scalarF64(t.evalLoss.MustExec1(batch))
}

// RecoError evaluates the relative Frobenius reconstruction error
// |batch - reco|_F / |batch|_F on a batch, unsquared and over the whole
// batch. It is the model-quality metric driving best-so-far tracking.
func (t *Trainer) RecoError(batch *tensors.Tensor) float64 {
	return scalarF64(t.recoError.MustExec1(batch))
}

// Subset gathers the samples of data at the given indices into a new batch,
// so Loss and RecoError can be evaluated on a pre-selected index subset.
func (t *Trainer) Subset(data *tensors.Tensor, indices []int32) *tensors.Tensor {
	return t.subset.MustExec1(data, tensors.FromValue(indices))
}

func scalarF64(t *tensors.Tensor) float64 {
	return shapes.ConvertTo[float64](t.Value())
}
