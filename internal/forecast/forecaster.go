package forecast

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/quickgas/cylinder-ai/internal/nn"
	"github.com/quickgas/cylinder-ai/internal/onnx"
)

// Predictor is the narrow contract the forecaster needs from a sequence
// model: a flattened 30x7 feature tensor in, 7 per-day probabilities out.
type Predictor interface {
	Predict(input []float32) ([]float32, error)
}

// Forecaster predicts next-order timing for customers. The model is loaded
// once at construction and treated as read-only; the forecaster itself is
// stateless across calls.
type Forecaster struct {
	model  Predictor
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Forecaster.
type Option func(*Forecaster)

// WithPredictor injects a sequence model, bypassing model-file resolution.
func WithPredictor(p Predictor) Option {
	return func(f *Forecaster) { f.model = p }
}

// WithLogger attaches a logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Forecaster) { f.logger = l }
}

// New builds a Forecaster backed by the model at modelPath. An ".onnx" file
// is served through an ONNX Runtime session, any other existing file is
// restored as a training checkpoint, and a missing file yields a fresh
// untrained network that is never persisted automatically.
func New(modelPath string, opts ...Option) (*Forecaster, error) {
	f := &Forecaster{
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.model == nil {
		model, err := resolveModel(modelPath, f.logger)
		if err != nil {
			return nil, err
		}
		f.model = model
	}
	return f, nil
}

func resolveModel(path string, logger *zap.Logger) (Predictor, error) {
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat model %s: %w", path, err)
		}
		logger.Info("demand model not found, building untrained network", zap.String("path", path))
		return nn.NewDemandNet(), nil
	}
	if filepath.Ext(path) == ".onnx" {
		logger.Info("loading demand model", zap.String("path", path))
		return onnx.NewSession(path,
			[]int64{1, LookbackDays, FeatureCount},
			[]int64{1, ForecastDays})
	}
	logger.Info("restoring demand model checkpoint", zap.String("path", path))
	net := nn.NewDemandNet()
	if err := net.Restore(path); err != nil {
		return nil, err
	}
	return net, nil
}

// Close releases the underlying model if it holds native resources.
func (f *Forecaster) Close() {
	if closer, ok := f.model.(io.Closer); ok {
		_ = closer.Close()
	}
}

// PredictNextOrder forecasts the customer's next order. It never returns an
// error: any failure, including a panic inside the model runtime, comes back
// as a Prediction with the Error field set.
func (f *Forecaster) PredictNextOrder(customer Customer) (prediction *Prediction) {
	defer func() {
		if r := recover(); r != nil {
			prediction = f.errorPrediction(customer, fmt.Errorf("prediction panicked: %v", r))
		}
	}()

	result, err := f.predict(customer)
	if err != nil {
		return f.errorPrediction(customer, err)
	}
	return result
}

func (f *Forecaster) predict(customer Customer) (*Prediction, error) {
	if len(customer.Orders) == 0 {
		return nil, errors.New("customer has no order history")
	}

	features := ExtractFeatures(customer)
	sequence := PrepareSequence(features)

	probabilities, err := f.model.Predict(flattenSequence(sequence))
	if err != nil {
		return nil, fmt.Errorf("sequence model inference: %w", err)
	}
	if len(probabilities) != ForecastDays {
		return nil, fmt.Errorf("sequence model returned %d probabilities, want %d", len(probabilities), ForecastDays)
	}

	lastOrderDate := customer.Orders[len(customer.Orders)-1].Date

	forecast := make([]ForecastDay, ForecastDays)
	bestDay := 0
	for day := 0; day < ForecastDays; day++ {
		forecast[day] = ForecastDay{
			Date:        lastOrderDate.AddDays(day + 1),
			Probability: float64(probabilities[day]),
			DayOffset:   day + 1,
		}
		if probabilities[day] > probabilities[bestDay] {
			bestDay = day
		}
	}

	pattern := AnalyzeUsagePattern(customer)

	f.logger.Debug("next-order forecast",
		zap.String("customer_id", customer.CustomerID),
		zap.Int("day_offset", bestDay+1),
		zap.Float64("confidence", float64(probabilities[bestDay])))

	return &Prediction{
		CustomerID:         customer.CustomerID,
		LastOrderDate:      lastOrderDate,
		PredictedOrderDate: lastOrderDate.AddDays(bestDay + 1),
		Confidence:         float64(probabilities[bestDay]),
		Forecast:           forecast,
		UsagePattern:       &pattern,
		Recommendation:     buildRecommendation(probabilities),
		Timestamp:          f.now(),
	}, nil
}

func (f *Forecaster) errorPrediction(customer Customer, err error) *Prediction {
	id := customer.CustomerID
	if id == "" {
		id = "unknown"
	}
	f.logger.Warn("next-order prediction failed",
		zap.String("customer_id", id),
		zap.Error(err))
	return &Prediction{
		CustomerID: id,
		Error:      err.Error(),
		Timestamp:  f.now(),
	}
}

// BatchPredict forecasts for each customer strictly in order. A failed
// prediction produces an error-shaped entry and does not stop the batch.
func (f *Forecaster) BatchPredict(customers []Customer) []*Prediction {
	predictions := make([]*Prediction, 0, len(customers))
	for _, customer := range customers {
		predictions = append(predictions, f.PredictNextOrder(customer))
	}
	return predictions
}
