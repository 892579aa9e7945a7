package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeFeatures(n int) [][]float64 {
	features := make([][]float64, n)
	for i := range features {
		row := make([]float64, FeatureCount)
		for j := range row {
			row[j] = float64(i) + float64(j)/10
		}
		features[i] = row
	}
	return features
}

func TestPrepareSequenceShortHistory(t *testing.T) {
	features := makeFeatures(4)
	sequence := PrepareSequence(features)

	require.Len(t, sequence, LookbackDays)
	for i := 0; i < LookbackDays-4; i++ {
		assert.Equal(t, make([]float64, FeatureCount), sequence[i], "row %d should be zero padding", i)
	}
	for i, row := range features {
		assert.Equal(t, row, sequence[LookbackDays-4+i], "padded rows keep original order")
	}
}

func TestPrepareSequenceLongHistory(t *testing.T) {
	features := makeFeatures(35)
	sequence := PrepareSequence(features)

	require.Len(t, sequence, LookbackDays)
	for i := 0; i < LookbackDays; i++ {
		assert.Equal(t, features[5+i], sequence[i], "truncation drops the oldest rows")
	}
}

func TestPrepareSequenceExactWindow(t *testing.T) {
	features := makeFeatures(LookbackDays)
	sequence := PrepareSequence(features)

	require.Len(t, sequence, LookbackDays)
	assert.Equal(t, features, sequence)
}

func TestFlattenSequence(t *testing.T) {
	sequence := PrepareSequence(makeFeatures(2))
	flat := flattenSequence(sequence)

	require.Len(t, flat, LookbackDays*FeatureCount)
	// Last two rows carry the data, everything before is padding.
	assert.Zero(t, flat[0])
	assert.InDelta(t, 0.1, float64(flat[(LookbackDays-2)*FeatureCount+1]), 1e-6)
	assert.InDelta(t, 1.1, float64(flat[(LookbackDays-1)*FeatureCount+1]), 1e-6)
}
