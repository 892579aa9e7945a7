package vision

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/nfnt/resize"
)

// Classifier input geometry: a single 224x224 RGB image in channel-first
// layout with pixel intensities scaled to [0,1].
const (
	ImageSize     = 224
	imageChannels = 3
)

// Preprocess decodes the image at path and converts it into the flat tensor
// the classifier consumes, with an implicit leading batch dimension of 1.
func Preprocess(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not read image %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("could not decode image %s: %w", path, err)
	}
	return tensorFromImage(img), nil
}

// tensorFromImage resizes to the model input size and normalizes into CHW
// float32 order.
func tensorFromImage(img image.Image) []float32 {
	resized := resize.Resize(ImageSize, ImageSize, img, resize.Lanczos3)

	data := make([]float32, imageChannels*ImageSize*ImageSize)
	plane := ImageSize * ImageSize
	for y := 0; y < ImageSize; y++ {
		for x := 0; x < ImageSize; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			idx := y*ImageSize + x
			data[idx] = float32(r) / 65535.0
			data[plane+idx] = float32(g) / 65535.0
			data[2*plane+idx] = float32(b) / 65535.0
		}
	}
	return data
}
