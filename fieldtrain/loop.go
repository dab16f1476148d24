package fieldtrain

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/fieldml/fieldae/track"
	"github.com/fieldml/fieldae/weights"
)

const (
	// runTimestampLayout tags run directories with the session start time.
	runTimestampLayout = "2006_01_02__15-04"

	// weightsDirName is the subdirectory of the run directory holding weight
	// files.
	weightsDirName = "net_weights"

	// bestWeightsName and bestRecordName are the fixed filenames of the
	// best-so-far weights and their provenance record. Later improvements
	// overwrite them in place.
	bestWeightsName = "best_results.pt"
	bestRecordName  = "best_results.txt"
)

// Train runs the full training cycle over the configured number of steps,
// training on trainSet and evaluating on testSet (both shaped
// [n, 1, height, width] matching the grid). It creates a timestamped run
// directory under Config.LogDir, snapshots the source tree into it and
// returns the training and held-out loss logs in step order.
//
// Any failure aborts the run: there are no retries and partially written
// artifacts of the failed step are left as-is.
func (t *Trainer) Train(trainSet, testSet *tensors.Tensor) (trainLog, testLog []LossPoint, err error) {
	runDir := filepath.Join(t.cfg.LogDir, t.cfg.RunName+time.Now().Format(runTimestampLayout))
	weightsDir := filepath.Join(runDir, weightsDirName)
	if err = os.MkdirAll(weightsDir, 0777); err != nil {
		return nil, nil, errors.Wrapf(err, "failed to create run directory %q", weightsDir)
	}
	if err = snapshotSource(".", runDir); err != nil {
		return nil, nil, err
	}
	klog.Infof("Training for %d steps, run directory %q", t.cfg.TrainSteps, runDir)

	tracker := t.cfg.Tracker
	if tracker == track.Discard && t.cfg.TrackRun {
		runTracker, trackerErr := track.NewRunTracker(runDir)
		if trackerErr != nil {
			return nil, nil, trackerErr
		}
		defer func() {
			if closeErr := runTracker.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}()
		tracker = runTracker
	}
	bestError := math.Inf(1)
	lastTestLoss := 0.0 // Reported as zero until the first evaluation.
	for step := 0; step < t.cfg.TrainSteps; step++ {
		loss := scalarF64(t.trainStep.MustExec1(trainSet))
		trainLog = append(trainLog, LossPoint{Step: step, Value: loss})
		tracker.AddScalar("train_loss", step, loss)

		if (step+1)%t.cfg.SaveEvery == 0 {
			path := filepath.Join(weightsDir, fmt.Sprintf("step_%d.pt", step))
			if err = weights.Save(t.ctx, ModelScope, path); err != nil {
				return trainLog, testLog, err
			}
		}

		if (step+1)%t.cfg.TestEvery == 0 {
			lastTestLoss = t.Loss(testSet)
			testLog = append(testLog, LossPoint{Step: step, Value: lastTestLoss})
			recoError := t.RecoError(testSet)
			if recoError < bestError {
				bestError = recoError
				if err = t.saveBest(weightsDir, step, recoError); err != nil {
					return trainLog, testLog, err
				}
			}
			tracker.AddScalar("test/loss", step, lastTestLoss)
			tracker.AddScalar("test/rel_Error", step, recoError)
			t.reportFigures(tracker, testSet, step)
		}

		if step%100 == 0 {
			fmt.Printf("\r%d: loss=%.5g; test_loss=%.5g", step, loss, lastTestLoss)
		}
	}
	fmt.Println()
	return trainLog, testLog, nil
}

// saveBest overwrites the fixed best-so-far weight file and its sibling text
// record of the step and error at the time of the save.
func (t *Trainer) saveBest(weightsDir string, step int, recoError float64) error {
	if err := weights.Save(t.ctx, ModelScope, filepath.Join(weightsDir, bestWeightsName)); err != nil {
		return err
	}
	record := fmt.Sprintf("step: %d ;  Error: %.3e\n", step, recoError)
	recordPath := filepath.Join(weightsDir, bestRecordName)
	return errors.Wrapf(os.WriteFile(recordPath, []byte(record), 0664),
		"failed to write best-results record %q", recordPath)
}

// reportFigures renders the diagnostic figures on the held-out set and
// forwards them to the tracker: the reconstruction panel always, the modes
// panel when the network extracts modes and the latent trajectories when it
// has a bottleneck.
func (t *Trainer) reportFigures(tracker track.Tracker, testSet *tensors.Tensor, step int) {
	if tracker == track.Discard {
		return
	}
	var reco, phi, code *tensors.Tensor
	if t.net.HasBottleneck() {
		reco, phi, code = t.forward.MustExec3(testSet)
	} else {
		reco, phi = t.forward.MustExec2(testSet)
	}
	tracker.AddFigure("reconstruction", step, track.ReconstructionFigure(testSet, reco, phi, 0))
	if t.modes != nil {
		tracker.AddFigure("modes", step, track.ModesFigure(t.modes.MustExec1()))
	}
	if code != nil {
		tracker.AddFigure("latents", step, track.LatentsFigure(code))
	}
}
