package vision

import (
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubModel returns canned class probabilities so the report logic can be
// tested without a trained network.
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

func newTestScanner(t *testing.T, model Predictor) *Scanner {
	t.Helper()
	s, err := New("", WithPredictor(model))
	require.NoError(t, err)
	return s
}

// writeTestImage writes a uniformly colored PNG and returns its path.
func writeTestImage(t *testing.T, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	path := filepath.Join(t.TempDir(), "cylinder.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestScan(t *testing.T) {
	model := &stubModel{probs: []float32{0.1, 0.6, 0.1, 0.1, 0.05, 0.05}}
	scanner := newTestScanner(t, model)
	path := writeTestImage(t, color.RGBA{R: 40, G: 60, B: 180, A: 255})

	report := scanner.Scan(path)
	require.Empty(t, report.Error)

	assert.Equal(t, path, report.ImagePath)
	assert.Equal(t, IssueRust, report.PrimaryIssue)
	assert.InDelta(t, 0.6, report.Confidence, 1e-6)
	assert.Equal(t, 2, report.SeverityLevel)
	assert.False(t, report.IsSafe)
	assert.Equal(t, "Minor rust detected. Monitor condition. Replace if rust increases.", report.Recommendation)
	assert.False(t, report.Timestamp.IsZero())

	require.Len(t, report.AllDetections, 3)
	assert.Equal(t, IssueRust, report.AllDetections[0].Issue)
	// Ties keep model output order.
	assert.Equal(t, IssueSafe, report.AllDetections[1].Issue)
	assert.Equal(t, IssueDent, report.AllDetections[2].Issue)
	assert.GreaterOrEqual(t, report.AllDetections[1].Confidence, report.AllDetections[2].Confidence)

	require.NotNil(t, report.RustAnalysis)
	assert.Equal(t, "color_analysis", report.RustAnalysis.Method)
	assert.False(t, report.RustAnalysis.Detected, "blue image has no rust-colored pixels")

	require.NotNil(t, report.ExpiryAnalysis)
	assert.False(t, report.ExpiryAnalysis.Expired)
	assert.Nil(t, report.ExpiryAnalysis.ExpiryDate)
	assert.Zero(t, report.ExpiryAnalysis.Confidence)

	// The model sees a full preprocessed image tensor.
	require.Len(t, model.inputs, 1)
	assert.Len(t, model.inputs[0], 3*ImageSize*ImageSize)
}

func TestScanIsSafeBoundary(t *testing.T) {
	tests := []struct {
		name       string
		confidence float32
		want       bool
	}{
		{"exactly 0.7 is not safe", 0.7, false},
		{"just above 0.7 is safe", 0.70001, true},
		{"well above 0.7 is safe", 0.95, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probs := []float32{tt.confidence, 0.01, 0.01, 0.01, 0.01, 0.01}
			scanner := newTestScanner(t, &stubModel{probs: probs})
			path := writeTestImage(t, color.RGBA{R: 40, G: 60, B: 180, A: 255})

			report := scanner.Scan(path)
			require.Empty(t, report.Error)
			assert.Equal(t, IssueSafe, report.PrimaryIssue)
			assert.Equal(t, tt.want, report.IsSafe)
		})
	}
}

func TestScanErrors(t *testing.T) {
	t.Run("unreadable image", func(t *testing.T) {
		scanner := newTestScanner(t, &stubModel{probs: make([]float32, 6)})
		report := scanner.Scan(filepath.Join(t.TempDir(), "missing.jpg"))
		assert.NotEmpty(t, report.Error)
		assert.False(t, report.Timestamp.IsZero())
		assert.Empty(t, report.PrimaryIssue)
	})

	t.Run("undecodable image", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.png")
		require.NoError(t, os.WriteFile(path, []byte("not a png"), 0o644))
		scanner := newTestScanner(t, &stubModel{probs: make([]float32, 6)})
		report := scanner.Scan(path)
		assert.NotEmpty(t, report.Error)
	})

	t.Run("model failure", func(t *testing.T) {
		scanner := newTestScanner(t, &stubModel{err: errors.New("session exploded")})
		path := writeTestImage(t, color.RGBA{R: 40, G: 60, B: 180, A: 255})
		report := scanner.Scan(path)
		assert.Contains(t, report.Error, "session exploded")
	})

	t.Run("wrong output width", func(t *testing.T) {
		scanner := newTestScanner(t, &stubModel{probs: []float32{0.5}})
		path := writeTestImage(t, color.RGBA{R: 40, G: 60, B: 180, A: 255})
		report := scanner.Scan(path)
		assert.NotEmpty(t, report.Error)
	})
}

func TestRecommendationFor(t *testing.T) {
	assert.Equal(t, "Cylinder is in good condition. Safe to use.", recommendationFor(IssueSafe))
	assert.Equal(t, "Unknown issue. Contact support.", recommendationFor(Issue("smudge")))
}

func TestSeverityLevels(t *testing.T) {
	assert.Equal(t, 0, SeverityLevel(IssueSafe))
	assert.Equal(t, 2, SeverityLevel(IssueRust))
	assert.Equal(t, 3, SeverityLevel(IssueDent))
	assert.Equal(t, 4, SeverityLevel(IssueValveDamage))
	assert.Equal(t, 5, SeverityLevel(IssueExpired))
	assert.Equal(t, 5, SeverityLevel(IssueLeaking))
}

func TestSaveReport(t *testing.T) {
	scanner := newTestScanner(t, &stubModel{probs: make([]float32, 6)})
	path := filepath.Join(t.TempDir(), "nested", "reports", "scan.json")

	report := &Report{PrimaryIssue: IssueSafe, Confidence: 0.9, IsSafe: true}
	require.NoError(t, scanner.SaveReport(report, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, IssueSafe, decoded.PrimaryIssue)
	assert.True(t, decoded.IsSafe)
}
