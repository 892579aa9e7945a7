package vision

import (
	"fmt"
	"image"
	"os"
)

// Rust-colored band in OpenCV-scaled HSV: hue 0-20 on the 0-180 scale
// (brownish red), with saturation and value of at least 50 on the 0-255
// scale. An image is flagged when more than 5% of its pixels fall inside
// the band.
const (
	rustHueMax       = 20.0
	rustSatMin       = 50.0
	rustValMin       = 50.0
	rustPercentLimit = 5.0
)

// detectRust runs the color-analysis heuristic on the original-size image.
// It is a non-learned signal reported alongside the classifier's verdict and
// never overrides it.
func detectRust(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("could not read image %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return false, fmt.Errorf("could not decode image %s: %w", path, err)
	}
	return rustPercentage(img) > rustPercentLimit, nil
}

// rustPercentage returns the share of pixels, in percent, inside the rust
// color band.
func rustPercentage(img image.Image) float64 {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0
	}

	rusty := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			h, s, v := rgbToHSV(float64(r16>>8), float64(g16>>8), float64(b16>>8))
			if h <= rustHueMax && s >= rustSatMin && v >= rustValMin {
				rusty++
			}
		}
	}
	return float64(rusty) / float64(total) * 100
}

// rgbToHSV converts 8-bit RGB to OpenCV's 8-bit HSV scaling: hue in [0,180),
// saturation and value in [0,255].
func rgbToHSV(r, g, b float64) (h, s, v float64) {
	maxC := r
	if g > maxC {
		maxC = g
	}
	if b > maxC {
		maxC = b
	}
	minC := r
	if g < minC {
		minC = g
	}
	if b < minC {
		minC = b
	}

	v = maxC
	delta := maxC - minC
	if maxC > 0 {
		s = 255 * delta / maxC
	}
	if delta == 0 {
		return 0, s, v
	}

	var degrees float64
	switch maxC {
	case r:
		degrees = 60 * (g - b) / delta
	case g:
		degrees = 120 + 60*(b-r)/delta
	default:
		degrees = 240 + 60*(r-g)/delta
	}
	if degrees < 0 {
		degrees += 360
	}
	return degrees / 2, s, v
}
