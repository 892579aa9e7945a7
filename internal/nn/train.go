package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"go.uber.org/zap"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Metric selects how validation accuracy is computed.
type Metric int

const (
	// MetricCategorical scores argmax agreement against one-hot targets.
	MetricCategorical Metric = iota
	// MetricBinary scores element-wise agreement of thresholded sigmoid
	// outputs against multi-label targets.
	MetricBinary
)

// TrainConfig controls the training loop. Zero values fall back to sane
// defaults.
type TrainConfig struct {
	Epochs    int
	BatchSize int
	LearnRate float64

	// EarlyStopPatience is the number of epochs without validation-loss
	// improvement before training stops and the best weights are restored.
	EarlyStopPatience int
	// PlateauPatience/PlateauFactor shrink the learning rate after that many
	// epochs without validation-loss improvement.
	PlateauPatience int
	PlateauFactor   float64

	// CheckpointPath, when set, receives the weights every time validation
	// accuracy reaches a new best.
	CheckpointPath string

	Metric Metric
	Seed   int64
	Logger *zap.Logger
}

func (c *TrainConfig) applyDefaults() {
	if c.Epochs <= 0 {
		c.Epochs = 50
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.LearnRate <= 0 {
		c.LearnRate = 1e-3
	}
	if c.EarlyStopPatience <= 0 {
		c.EarlyStopPatience = 10
	}
	if c.PlateauPatience <= 0 {
		c.PlateauPatience = 5
	}
	if c.PlateauFactor <= 0 || c.PlateauFactor >= 1 {
		c.PlateauFactor = 0.5
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// History records per-epoch training progress.
type History struct {
	TrainLoss   []float64
	ValLoss     []float64
	ValAccuracy []float64

	BestValLoss     float64
	BestValAccuracy float64
	StoppedEarly    bool
}

const lossImprovementDelta = 1e-4

// Train fits the model with Adam, early stopping on validation loss with
// best-weights restore, plateau learning-rate decay and checkpointing on
// best validation accuracy.
func Train(model Model, train, val Dataset, cfg TrainConfig) (*History, error) {
	cfg.applyDefaults()
	if train == nil || train.Len() < cfg.BatchSize {
		return nil, fmt.Errorf("training set needs at least %d samples", cfg.BatchSize)
	}
	if val == nil || val.Len() < cfg.BatchSize {
		return nil, fmt.Errorf("validation set needs at least %d samples", cfg.BatchSize)
	}

	tg, err := model.TrainGraph(cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("build training graph: %w", err)
	}
	if _, err := gorgonia.Grad(tg.Loss, tg.Learnables...); err != nil {
		return nil, fmt.Errorf("differentiate loss: %w", err)
	}
	vm := gorgonia.NewTapeMachine(tg.ExprGraph, gorgonia.BindDualValues(tg.Learnables...))
	defer vm.Close()

	eg, err := model.EvalGraph(cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("build eval graph: %w", err)
	}
	evalVM := gorgonia.NewTapeMachine(eg.ExprGraph)
	defer evalVM.Close()

	lr := cfg.LearnRate
	solver := gorgonia.NewAdamSolver(gorgonia.WithLearnRate(lr), gorgonia.WithBatchSize(float64(cfg.BatchSize)))

	rng := rand.New(rand.NewSource(cfg.Seed))
	indices := make([]int, train.Len())
	for i := range indices {
		indices[i] = i
	}

	history := &History{BestValLoss: math.Inf(1), BestValAccuracy: -1}
	var best [][]float32
	sinceImproved := 0
	sincePlateau := 0

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		epochLoss := 0.0
		batches := 0
		for start := 0; start+cfg.BatchSize <= len(indices); start += cfg.BatchSize {
			x, y, err := train.Batch(indices[start : start+cfg.BatchSize])
			if err != nil {
				return nil, fmt.Errorf("epoch %d: %w", epoch, err)
			}
			if err := gorgonia.Let(tg.Input, x); err != nil {
				return nil, fmt.Errorf("bind input: %w", err)
			}
			if err := gorgonia.Let(tg.Target, y); err != nil {
				return nil, fmt.Errorf("bind target: %w", err)
			}
			vm.Reset()
			if err := vm.RunAll(); err != nil {
				return nil, fmt.Errorf("epoch %d training step: %w", epoch, err)
			}
			epochLoss += scalarValue(tg.Loss)
			batches++
			if err := solver.Step(gorgonia.NodesToValueGrads(tg.Learnables)); err != nil {
				return nil, fmt.Errorf("epoch %d solver step: %w", epoch, err)
			}
		}
		if batches == 0 {
			return nil, errors.New("no full training batches")
		}

		valLoss, valAcc, err := evaluate(eg, evalVM, val, cfg)
		if err != nil {
			return nil, fmt.Errorf("epoch %d validation: %w", epoch, err)
		}

		trainLoss := epochLoss / float64(batches)
		history.TrainLoss = append(history.TrainLoss, trainLoss)
		history.ValLoss = append(history.ValLoss, valLoss)
		history.ValAccuracy = append(history.ValAccuracy, valAcc)

		cfg.Logger.Info("epoch complete",
			zap.Int("epoch", epoch),
			zap.Float64("train_loss", trainLoss),
			zap.Float64("val_loss", valLoss),
			zap.Float64("val_accuracy", valAcc),
			zap.Float64("learn_rate", lr))

		if valAcc > history.BestValAccuracy {
			history.BestValAccuracy = valAcc
			if cfg.CheckpointPath != "" {
				if err := SaveCheckpoint(cfg.CheckpointPath, model.Weights()); err != nil {
					return nil, fmt.Errorf("checkpoint: %w", err)
				}
				cfg.Logger.Info("checkpoint saved",
					zap.String("path", cfg.CheckpointPath),
					zap.Float64("val_accuracy", valAcc))
			}
		}

		if valLoss < history.BestValLoss-lossImprovementDelta {
			history.BestValLoss = valLoss
			best = snapshotWeights(model.Weights())
			sinceImproved = 0
			sincePlateau = 0
		} else {
			sinceImproved++
			sincePlateau++
		}

		if sincePlateau >= cfg.PlateauPatience && epoch < cfg.Epochs {
			lr *= cfg.PlateauFactor
			// Rebuilding the solver resets Adam's moments; acceptable for the
			// rare decay step.
			solver = gorgonia.NewAdamSolver(gorgonia.WithLearnRate(lr), gorgonia.WithBatchSize(float64(cfg.BatchSize)))
			sincePlateau = 0
			cfg.Logger.Info("learning rate reduced", zap.Float64("learn_rate", lr))
		}

		if sinceImproved >= cfg.EarlyStopPatience {
			history.StoppedEarly = true
			cfg.Logger.Info("early stopping", zap.Int("epoch", epoch))
			break
		}
	}

	if best != nil {
		restoreWeights(model.Weights(), best)
	}
	return history, nil
}

// evaluate runs the eval graph over the full validation set (dropping a
// trailing partial batch) and returns mean loss and accuracy.
func evaluate(eg *Graph, vm gorgonia.VM, val Dataset, cfg TrainConfig) (float64, float64, error) {
	indices := make([]int, cfg.BatchSize)
	totalLoss := 0.0
	totalAcc := 0.0
	batches := 0

	for start := 0; start+cfg.BatchSize <= val.Len(); start += cfg.BatchSize {
		for i := range indices {
			indices[i] = start + i
		}
		x, y, err := val.Batch(indices)
		if err != nil {
			return 0, 0, err
		}
		if err := gorgonia.Let(eg.Input, x); err != nil {
			return 0, 0, err
		}
		if err := gorgonia.Let(eg.Target, y); err != nil {
			return 0, 0, err
		}
		vm.Reset()
		if err := vm.RunAll(); err != nil {
			return 0, 0, err
		}

		totalLoss += scalarValue(eg.Loss)
		totalAcc += accuracy(eg.Output.Value().(*tensor.Dense), y, cfg.Metric)
		batches++
	}
	if batches == 0 {
		return 0, 0, errors.New("no full validation batches")
	}
	return totalLoss / float64(batches), totalAcc / float64(batches), nil
}

// accuracy scores one batch of predictions against its targets.
func accuracy(pred, target *tensor.Dense, metric Metric) float64 {
	p := pred.Data().([]float32)
	t := target.Data().([]float32)
	rows := pred.Shape()[0]
	cols := pred.Shape()[1]

	switch metric {
	case MetricBinary:
		matches := 0
		for i := range p {
			if (p[i] > 0.5) == (t[i] > 0.5) {
				matches++
			}
		}
		return float64(matches) / float64(len(p))
	default:
		matches := 0
		for r := 0; r < rows; r++ {
			if argmaxRow(p, r, cols) == argmaxRow(t, r, cols) {
				matches++
			}
		}
		return float64(matches) / float64(rows)
	}
}

func argmaxRow(data []float32, row, cols int) int {
	best := 0
	for c := 1; c < cols; c++ {
		if data[row*cols+c] > data[row*cols+best] {
			best = c
		}
	}
	return best
}

func scalarValue(n *gorgonia.Node) float64 {
	switch v := n.Value().Data().(type) {
	case float32:
		return float64(v)
	case float64:
		return v
	case []float32:
		if len(v) > 0 {
			return float64(v[0])
		}
	}
	return 0
}

func snapshotWeights(ws []*Weight) [][]float32 {
	snap := make([][]float32, len(ws))
	for i, w := range ws {
		data := w.Value.Data().([]float32)
		snap[i] = make([]float32, len(data))
		copy(snap[i], data)
	}
	return snap
}

func restoreWeights(ws []*Weight, snap [][]float32) {
	for i, w := range ws {
		copy(w.Value.Data().([]float32), snap[i])
	}
}
