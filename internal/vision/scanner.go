package vision

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/quickgas/cylinder-ai/internal/nn"
	"github.com/quickgas/cylinder-ai/internal/onnx"
)

// Predictor is the narrow contract the scanner needs from a classifier: a
// flattened 3x224x224 image tensor in, one probability per defect class out.
type Predictor interface {
	Predict(input []float32) ([]float32, error)
}

// Scanner scores cylinder images for visible safety defects. The model is
// loaded once at construction and treated as read-only; the scanner itself
// is stateless across calls.
type Scanner struct {
	model  Predictor
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithPredictor injects a classifier, bypassing model-file resolution.
func WithPredictor(p Predictor) Option {
	return func(s *Scanner) { s.model = p }
}

// WithLogger attaches a logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// New builds a Scanner backed by the model at modelPath. An ".onnx" file is
// served through an ONNX Runtime session, any other existing file is
// restored as a training checkpoint, and a missing file yields a fresh
// untrained network that is never persisted automatically.
func New(modelPath string, opts ...Option) (*Scanner, error) {
	s := &Scanner{
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.model == nil {
		model, err := resolveModel(modelPath, s.logger)
		if err != nil {
			return nil, err
		}
		s.model = model
	}
	return s, nil
}

func resolveModel(path string, logger *zap.Logger) (Predictor, error) {
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat model %s: %w", path, err)
		}
		logger.Info("safety model not found, building untrained network", zap.String("path", path))
		return nn.NewCylinderNet(), nil
	}
	if filepath.Ext(path) == ".onnx" {
		logger.Info("loading safety model", zap.String("path", path))
		return onnx.NewSession(path,
			[]int64{1, imageChannels, ImageSize, ImageSize},
			[]int64{1, int64(len(Classes))})
	}
	logger.Info("restoring safety model checkpoint", zap.String("path", path))
	net := nn.NewCylinderNet()
	if err := net.Restore(path); err != nil {
		return nil, err
	}
	return net, nil
}

// Close releases the underlying model if it holds native resources.
func (s *Scanner) Close() {
	if closer, ok := s.model.(io.Closer); ok {
		_ = closer.Close()
	}
}

// Scan runs the full safety scan on one image. It never returns an error:
// any failure, including a panic inside the model runtime, comes back as a
// Report with the Error field set.
func (s *Scanner) Scan(imagePath string) (report *Report) {
	defer func() {
		if r := recover(); r != nil {
			report = s.errorReport(fmt.Errorf("scan panicked: %v", r))
		}
	}()

	result, err := s.scan(imagePath)
	if err != nil {
		s.logger.Warn("cylinder scan failed", zap.String("image", imagePath), zap.Error(err))
		return s.errorReport(err)
	}
	return result
}

func (s *Scanner) scan(imagePath string) (*Report, error) {
	input, err := Preprocess(imagePath)
	if err != nil {
		return nil, err
	}

	probabilities, err := s.model.Predict(input)
	if err != nil {
		return nil, fmt.Errorf("classifier inference: %w", err)
	}
	if len(probabilities) != len(Classes) {
		return nil, fmt.Errorf("classifier returned %d probabilities, want %d", len(probabilities), len(Classes))
	}

	detections := topDetections(probabilities, 3)
	primary := detections[0]

	rustDetected, err := detectRust(imagePath)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("cylinder scanned",
		zap.String("image", imagePath),
		zap.String("primary_issue", string(primary.Issue)),
		zap.Float64("confidence", primary.Confidence))

	return &Report{
		Timestamp:     s.now(),
		ImagePath:     imagePath,
		PrimaryIssue:  primary.Issue,
		Confidence:    primary.Confidence,
		SeverityLevel: primary.Severity,
		AllDetections: detections,
		RustAnalysis: &RustAnalysis{
			Detected: rustDetected,
			Method:   "color_analysis",
		},
		ExpiryAnalysis: detectExpiry(),
		IsSafe:         primary.Issue == IssueSafe && primary.Confidence > 0.7,
		Recommendation: recommendationFor(primary.Issue),
	}, nil
}

// topDetections ranks the class probabilities descending and keeps the first
// n as (issue, confidence, severity) triples.
func topDetections(probabilities []float32, n int) []Detection {
	order := make([]int, len(probabilities))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return probabilities[order[a]] > probabilities[order[b]]
	})

	if n > len(order) {
		n = len(order)
	}
	detections := make([]Detection, 0, n)
	for _, idx := range order[:n] {
		issue := Classes[idx]
		detections = append(detections, Detection{
			Issue:      issue,
			Confidence: float64(probabilities[idx]),
			Severity:   SeverityLevel(issue),
		})
	}
	return detections
}

func (s *Scanner) errorReport(err error) *Report {
	return &Report{
		Timestamp: s.now(),
		Error:     err.Error(),
	}
}

// SaveReport writes the report as indented JSON, creating parent directories
// as needed.
func (s *Scanner) SaveReport(report *Report, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	s.logger.Info("report saved", zap.String("path", path))
	return nil
}
