package vision

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeClassImage(t *testing.T, dir string, class Issue, name string) {
	t.Helper()
	classDir := filepath.Join(dir, string(class))
	require.NoError(t, os.MkdirAll(classDir, 0o755))

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	f, err := os.Create(filepath.Join(classDir, name))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestLoadDataset(t *testing.T) {
	dir := t.TempDir()
	writeClassImage(t, dir, IssueSafe, "a.png")
	writeClassImage(t, dir, IssueSafe, "b.png")
	writeClassImage(t, dir, IssueRust, "c.png")

	ds, err := LoadDataset(dir, false, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())
}

func TestLoadDatasetEmpty(t *testing.T) {
	_, err := LoadDataset(t.TempDir(), false, 1)
	assert.Error(t, err)
}

func TestDatasetBatch(t *testing.T) {
	dir := t.TempDir()
	writeClassImage(t, dir, IssueSafe, "a.png")
	writeClassImage(t, dir, IssueRust, "b.png")

	ds, err := LoadDataset(dir, false, 1)
	require.NoError(t, err)

	x, y, err := ds.Batch([]int{0, 1})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 3, ImageSize, ImageSize}, []int(x.Shape()))
	assert.Equal(t, []int{2, len(Classes)}, []int(y.Shape()))

	labels := y.Data().([]float32)
	assert.Equal(t, float32(1), labels[0], "first sample is class safe")
	assert.Equal(t, float32(1), labels[len(Classes)+1], "second sample is class rust")
}

func TestDatasetBatchAugmented(t *testing.T) {
	dir := t.TempDir()
	writeClassImage(t, dir, IssueDent, "a.png")

	ds, err := LoadDataset(dir, true, 1)
	require.NoError(t, err)

	x, _, err := ds.Batch([]int{0})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, ImageSize, ImageSize}, []int(x.Shape()))
}

func TestDatasetBatchOutOfRange(t *testing.T) {
	dir := t.TempDir()
	writeClassImage(t, dir, IssueSafe, "a.png")

	ds, err := LoadDataset(dir, false, 1)
	require.NoError(t, err)

	_, _, err = ds.Batch([]int{5})
	assert.Error(t, err)
}
