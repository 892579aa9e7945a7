package forecast

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Dataset adapts pre-split feature/label arrays to the network trainer.
// Features are N sequences of LookbackDays x FeatureCount values; labels are
// N vectors of ForecastDays per-day order indicators.
type Dataset struct {
	features [][][]float64
	labels   [][]float64
}

// NewDataset validates the array shapes and wraps them for training.
func NewDataset(features [][][]float64, labels [][]float64) (*Dataset, error) {
	if len(features) != len(labels) {
		return nil, fmt.Errorf("got %d feature sequences but %d labels", len(features), len(labels))
	}
	for i, seq := range features {
		if len(seq) != LookbackDays {
			return nil, fmt.Errorf("sequence %d has %d timesteps, want %d", i, len(seq), LookbackDays)
		}
		for t, row := range seq {
			if len(row) != FeatureCount {
				return nil, fmt.Errorf("sequence %d timestep %d has %d features, want %d", i, t, len(row), FeatureCount)
			}
		}
	}
	for i, label := range labels {
		if len(label) != ForecastDays {
			return nil, fmt.Errorf("label %d has %d days, want %d", i, len(label), ForecastDays)
		}
	}
	return &Dataset{features: features, labels: labels}, nil
}

// Len returns the number of sequences.
func (d *Dataset) Len() int { return len(d.features) }

// Batch packs the selected sequences into the time-major (lookback, batch,
// features) layout the demand network consumes, plus a (batch, days) label
// tensor.
func (d *Dataset) Batch(indices []int) (*tensor.Dense, *tensor.Dense, error) {
	batch := len(indices)
	xs := make([]float32, LookbackDays*batch*FeatureCount)
	ys := make([]float32, batch*ForecastDays)

	for b, idx := range indices {
		if idx < 0 || idx >= len(d.features) {
			return nil, nil, fmt.Errorf("index %d out of range [0,%d)", idx, len(d.features))
		}
		for t := 0; t < LookbackDays; t++ {
			base := t*batch*FeatureCount + b*FeatureCount
			for f := 0; f < FeatureCount; f++ {
				xs[base+f] = float32(d.features[idx][t][f])
			}
		}
		for day := 0; day < ForecastDays; day++ {
			ys[b*ForecastDays+day] = float32(d.labels[idx][day])
		}
	}

	x := tensor.New(tensor.WithShape(LookbackDays, batch, FeatureCount), tensor.WithBacking(xs))
	y := tensor.New(tensor.WithShape(batch, ForecastDays), tensor.WithBacking(ys))
	return x, y, nil
}
