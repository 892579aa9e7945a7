// Package onnx wraps an ONNX Runtime inference session behind the flat
// tensor-in/tensor-out contract the pipelines expect from a trained model.
package onnx

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	initOnce sync.Once
	initErr  error
)

// initEnvironment initializes the ONNX Runtime once per process. The
// environment is deliberately never destroyed: sessions for both pipelines
// share it for the process lifetime.
func initEnvironment() error {
	initOnce.Do(func() {
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return fmt.Errorf("initialize ONNX environment: %w", initErr)
	}
	return nil
}

// Session is a loaded ONNX model with pre-allocated input and output
// tensors. It is not safe for concurrent use; the pipelines run inference
// synchronously on a single goroutine.
type Session struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewSession loads the model at modelPath, binding one float32 input and one
// float32 output of the given shapes.
func NewSession(modelPath string, inputShape, outputShape []int64) (*Session, error) {
	if err := initEnvironment(); err != nil {
		return nil, err
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(inputShape...))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(outputShape...))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output},
		nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create ONNX session for %s: %w", modelPath, err)
	}

	return &Session{session: session, input: input, output: output}, nil
}

// Predict copies the input into the bound tensor, runs the session and
// returns a copy of the output.
func (s *Session) Predict(input []float32) ([]float32, error) {
	data := s.input.GetData()
	if len(input) != len(data) {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input), len(data))
	}
	copy(data, input)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := s.output.GetData()
	result := make([]float32, len(out))
	copy(result, out)
	return result, nil
}

// Close destroys the session and its tensors.
func (s *Session) Close() error {
	if s.input != nil {
		s.input.Destroy()
	}
	if s.output != nil {
		s.output.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	return nil
}
