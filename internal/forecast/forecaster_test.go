package forecast

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubModel returns canned probabilities so the surrounding feature and
// report logic can be tested without a trained network.
type stubModel struct {
	probs []float32
	err   error

	inputs [][]float32
}

func (s *stubModel) Predict(input []float32) ([]float32, error) {
	s.inputs = append(s.inputs, input)
	if s.err != nil {
		return nil, s.err
	}
	return s.probs, nil
}

func newTestForecaster(t *testing.T, model Predictor) *Forecaster {
	t.Helper()
	f, err := New("", WithPredictor(model))
	require.NoError(t, err)
	return f
}

func TestPredictNextOrder(t *testing.T) {
	model := &stubModel{probs: []float32{0.1, 0.85, 0.3, 0.2, 0.1, 0.05, 0.02}}
	f := newTestForecaster(t, model)

	prediction := f.PredictNextOrder(exampleCustomer())
	require.Empty(t, prediction.Error)

	assert.Equal(t, "CUST123", prediction.CustomerID)
	assert.Equal(t, NewDate(2024, time.March, 28), prediction.LastOrderDate)
	assert.Equal(t, NewDate(2024, time.March, 30), prediction.PredictedOrderDate, "highest probability is day offset 2")
	assert.InDelta(t, 0.85, prediction.Confidence, 1e-6)
	assert.False(t, prediction.Timestamp.IsZero())

	require.Len(t, prediction.Forecast, ForecastDays)
	for i, day := range prediction.Forecast {
		assert.Equal(t, i+1, day.DayOffset)
		assert.Equal(t, NewDate(2024, time.March, 28).AddDays(i+1), day.Date)
	}
	assert.InDelta(t, 0.1, prediction.Forecast[0].Probability, 1e-6)

	require.NotNil(t, prediction.UsagePattern)
	assert.Equal(t, PatternRegularUser, prediction.UsagePattern.Pattern)

	// The model sees the full padded lookback window.
	require.Len(t, model.inputs, 1)
	assert.Len(t, model.inputs[0], LookbackDays*FeatureCount)
}

func TestPredictNextOrderRecommendation(t *testing.T) {
	tests := []struct {
		name    string
		probs   []float32
		action  string
		urgency string
	}{
		{"urgent within 3 days", []float32{0.1, 0.85, 0.3, 0.2, 0.1, 0.05, 0.02}, "send_urgent_reminder", "high"},
		{"medium within 5 days", []float32{0.1, 0.2, 0.3, 0.65, 0.1, 0.05, 0.02}, "send_reminder", "medium"},
		{"monitor otherwise", []float32{0.1, 0.2, 0.3, 0.2, 0.1, 0.5, 0.02}, "monitor", "low"},
		{"high probability too far out", []float32{0.1, 0.2, 0.3, 0.2, 0.1, 0.05, 0.9}, "monitor", "low"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestForecaster(t, &stubModel{probs: tt.probs})
			prediction := f.PredictNextOrder(exampleCustomer())
			require.Empty(t, prediction.Error)
			require.NotNil(t, prediction.Recommendation)
			assert.Equal(t, tt.action, prediction.Recommendation.Action)
			assert.Equal(t, tt.urgency, prediction.Recommendation.Urgency)
		})
	}
}

func TestPredictNextOrderErrors(t *testing.T) {
	t.Run("no order history", func(t *testing.T) {
		f := newTestForecaster(t, &stubModel{probs: make([]float32, ForecastDays)})
		prediction := f.PredictNextOrder(Customer{CustomerID: "C9"})
		assert.Equal(t, "C9", prediction.CustomerID)
		assert.NotEmpty(t, prediction.Error)
		assert.False(t, prediction.Timestamp.IsZero())
	})

	t.Run("missing customer id reports unknown", func(t *testing.T) {
		f := newTestForecaster(t, &stubModel{probs: make([]float32, ForecastDays)})
		prediction := f.PredictNextOrder(Customer{})
		assert.Equal(t, "unknown", prediction.CustomerID)
		assert.NotEmpty(t, prediction.Error)
	})

	t.Run("model failure is captured", func(t *testing.T) {
		f := newTestForecaster(t, &stubModel{err: errors.New("session exploded")})
		prediction := f.PredictNextOrder(exampleCustomer())
		assert.Equal(t, "CUST123", prediction.CustomerID)
		assert.Contains(t, prediction.Error, "session exploded")
	})

	t.Run("wrong output width is captured", func(t *testing.T) {
		f := newTestForecaster(t, &stubModel{probs: []float32{0.5}})
		prediction := f.PredictNextOrder(exampleCustomer())
		assert.NotEmpty(t, prediction.Error)
	})
}

func TestBatchPredictIsolatesFailures(t *testing.T) {
	f := newTestForecaster(t, &stubModel{probs: []float32{0.1, 0.85, 0.3, 0.2, 0.1, 0.05, 0.02}})

	predictions := f.BatchPredict([]Customer{
		{CustomerID: "bad"}, // no orders
		exampleCustomer(),
	})

	require.Len(t, predictions, 2)
	assert.NotEmpty(t, predictions[0].Error)
	assert.Equal(t, "bad", predictions[0].CustomerID)
	assert.Empty(t, predictions[1].Error)
	assert.Equal(t, "CUST123", predictions[1].CustomerID)
}

func TestDateJSONRoundTrip(t *testing.T) {
	var order Order
	require.NoError(t, order.Date.UnmarshalJSON([]byte(`"2024-01-15"`)))
	assert.Equal(t, NewDate(2024, time.January, 15), order.Date)

	encoded, err := order.Date.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2024-01-15"`, string(encoded))
}
