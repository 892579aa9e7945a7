package forecast

// PrepareSequence fits a feature sequence to the model's fixed lookback
// window: histories shorter than LookbackDays are left-padded with zero
// vectors, longer histories keep only the most recent LookbackDays rows
// (truncated from the front, oldest first in what remains).
func PrepareSequence(features [][]float64) [][]float64 {
	sequence := make([][]float64, LookbackDays)

	pad := LookbackDays - len(features)
	if pad < 0 {
		pad = 0
		features = features[len(features)-LookbackDays:]
	}

	for i := 0; i < pad; i++ {
		sequence[i] = make([]float64, FeatureCount)
	}
	for i, row := range features {
		sequence[pad+i] = row
	}
	return sequence
}

// flattenSequence converts a prepared sequence into the row-major float32
// tensor the model consumes.
func flattenSequence(sequence [][]float64) []float32 {
	flat := make([]float32, 0, len(sequence)*FeatureCount)
	for _, row := range sequence {
		for _, v := range row {
			flat = append(flat, float32(v))
		}
	}
	return flat
}
