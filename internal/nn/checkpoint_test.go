package nn

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func testWeight(name string, shape []int, fill float32) *Weight {
	data := make([]float32, tensor.Shape(shape).TotalSize())
	for i := range data {
		data[i] = fill + float32(i)
	}
	return &Weight{
		Name:  name,
		Value: tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)),
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "net.ckpt")

	saved := []*Weight{
		testWeight("dense1_w", []int{4, 3}, 0.5),
		testWeight("dense1_b", []int{1, 3}, -2),
	}
	require.NoError(t, SaveCheckpoint(path, saved))

	restored := []*Weight{
		testWeight("dense1_w", []int{4, 3}, 0),
		testWeight("dense1_b", []int{1, 3}, 0),
	}
	require.NoError(t, LoadCheckpoint(path, restored))

	for i := range saved {
		assert.Equal(t, saved[i].Value.Data().([]float32), restored[i].Value.Data().([]float32))
	}
}

func TestLoadCheckpointMissingWeight(t *testing.T) {
	path := filepath.Join(t.TempDir(), "net.ckpt")
	require.NoError(t, SaveCheckpoint(path, []*Weight{testWeight("a", []int{2, 2}, 1)}))

	err := LoadCheckpoint(path, []*Weight{testWeight("b", []int{2, 2}, 0)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing weight b")
}

func TestLoadCheckpointShapeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "net.ckpt")
	require.NoError(t, SaveCheckpoint(path, []*Weight{testWeight("a", []int{2, 2}, 1)}))

	err := LoadCheckpoint(path, []*Weight{testWeight("a", []int{2, 3}, 0)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shape")
}

func TestLoadCheckpointMissingFile(t *testing.T) {
	err := LoadCheckpoint(filepath.Join(t.TempDir(), "nope.ckpt"), nil)
	assert.Error(t, err)
}
