// fieldae trains a field autoencoder on a synthetic travelling-front
// dataset: snapshots of a smooth front moving across a uniform 2D grid. It is
// both a demo and a smoke test of the full training cycle -- loss, optimizer,
// evaluation, checkpoints and the run tracker.
package main

import (
	"flag"
	"fmt"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"

	"github.com/fieldml/fieldae/fieldtrain"
	"github.com/fieldml/fieldae/grid"
	"github.com/fieldml/fieldae/nets"
)

var (
	flagGridSize   = flag.Int("grid_size", 32, "Height and width of the square grid")
	flagSamples    = flag.Int("samples", 64, "Number of snapshots to generate; even indices train, odd test")
	flagNet        = flag.String("net", "modal", "Network variant: \"modal\" (bottleneck) or \"direct\"")
	flagLatentDim  = flag.Int("latent_dim", 4, "Number of modes of the modal network")
	flagSteps      = flag.Int("steps", 2000, "Number of optimizer steps")
	flagLR         = flag.Float64("learning_rate", 1e-3, "Adam learning rate")
	flagLRMin      = flag.Float64("learning_rate_min", 0, "Floor of the cosine annealing schedule; 0 keeps the rate constant")
	flagSmooth     = flag.Float64("smooth_phi", 0.1, "Weight of the smoothness penalty")
	flagTestEvery  = flag.Int("test_every", 200, "Steps between held-out evaluations")
	flagSaveEvery  = flag.Int("save_every", 1000, "Steps between weight checkpoints")
	flagLogDir     = flag.String("log_dir", "logs", "Directory holding the run directories")
	flagRunName    = flag.String("run_name", "front_", "Prefix of the run directory name")
	flagNoTracking = flag.Bool("no_tracking", false, "Disable the run tracker (scalars and figures)")
)

// uniformMesh returns size x size coordinate arrays with the given spacing,
// X varying along columns and Y along rows.
func uniformMesh(size int, spacing float64) (x, y [][]float64) {
	x = make([][]float64, size)
	y = make([][]float64, size)
	for i := range x {
		x[i] = make([]float64, size)
		y[i] = make([]float64, size)
		for j := range x[i] {
			x[i][j] = float64(j) * spacing
			y[i][j] = float64(i) * spacing
		}
	}
	return
}

// buildFronts generates n snapshots of a smooth front sweeping the grid along
// the width axis: q = (1 - tanh((col - c_t)/delta)) / 2, with the front
// position c_t advancing linearly over the samples.
func buildFronts(backend backends.Backend, n, size int) *tensors.Tensor {
	e := MustNewExec(backend, func(g *Graph) *Node {
		col := Iota(g, shapes.Make(dtypes.Float32, n, 1, size, size), 3)
		step := Iota(g, shapes.Make(dtypes.Float32, n, 1, 1, 1), 0)
		center := MulScalar(step, float64(size)/float64(n))
		delta := float64(size) / 16
		front := Tanh(DivScalar(Sub(col, center), delta))
		return DivScalar(OneMinus(front), 2)
	})
	return e.MustExec1()
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	backend := backends.MustNew()
	klog.Infof("Backend: %s, %s", backend.Name(), backend.Description())

	size := *flagGridSize
	xCoords, yCoords := uniformMesh(size, 1.0)
	mesh := must.M1(grid.New(xCoords, yCoords))

	var net nets.Network
	switch *flagNet {
	case "modal":
		net = nets.NewModal(size, size, *flagLatentDim, 0)
	case "direct":
		net = nets.NewDirect(0)
	default:
		klog.Fatalf("Unknown -net %q: want \"modal\" or \"direct\"", *flagNet)
	}

	cfg := fieldtrain.Config{
		LearningRate:     *flagLR,
		MinLearningRate:  *flagLRMin,
		SmoothnessWeight: *flagSmooth,
		TrainSteps:       *flagSteps,
		TestEvery:        *flagTestEvery,
		SaveEvery:        *flagSaveEvery,
		LogDir:           *flagLogDir,
		RunName:          *flagRunName,
	}
	cfg.TrackRun = !*flagNoTracking

	trainer := fieldtrain.NewTrainer(backend, mesh, net, cfg)

	snapshots := buildFronts(backend, *flagSamples, size)
	trainIdx := make([]int32, 0, *flagSamples/2)
	testIdx := make([]int32, 0, *flagSamples/2)
	for i := 0; i < *flagSamples; i++ {
		if i%2 == 0 {
			trainIdx = append(trainIdx, int32(i))
		} else {
			testIdx = append(testIdx, int32(i))
		}
	}
	trainSet := trainer.Subset(snapshots, trainIdx)
	testSet := trainer.Subset(snapshots, testIdx)

	trainLog, testLog := must.M2(trainer.Train(trainSet, testSet))

	fmt.Printf("Final training loss: %.5g\n", trainLog[len(trainLog)-1].Value)
	if len(testLog) > 0 {
		fmt.Printf("Final test loss:     %.5g\n", testLog[len(testLog)-1].Value)
	}
	fmt.Printf("Final test error:    %.3e\n", trainer.RecoError(testSet))
}
