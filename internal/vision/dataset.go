package vision

import (
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"gorgonia.org/tensor"
)

// Augmentation ranges, applied independently per sample per epoch.
const (
	augRotateDegrees = 20.0
	augShiftFraction = 0.2
	augShearFactor   = 0.2
	augZoomFraction  = 0.2
)

// Dataset is a labeled cylinder image set loaded from a directory tree laid
// out as dir/<class>/<image>. Decoded images are kept in memory; training
// datasets re-augment every batch.
type Dataset struct {
	samples []sample
	augment bool
	rng     *rand.Rand
}

type sample struct {
	img   image.Image
	class int
}

// LoadDataset walks dir and decodes every JPEG/PNG under the per-class
// subdirectories named after Classes. Class directories may be missing;
// undecodable files are an error.
func LoadDataset(dir string, augment bool, seed int64) (*Dataset, error) {
	ds := &Dataset{
		augment: augment,
		rng:     rand.New(rand.NewSource(seed)),
	}

	for classIdx, class := range Classes {
		classDir := filepath.Join(dir, string(class))
		entries, err := os.ReadDir(classDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read class directory %s: %w", classDir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !isImageFile(entry.Name()) {
				continue
			}
			path := filepath.Join(classDir, entry.Name())
			img, err := decodeImage(path)
			if err != nil {
				return nil, err
			}
			ds.samples = append(ds.samples, sample{img: img, class: classIdx})
		}
	}

	if len(ds.samples) == 0 {
		return nil, fmt.Errorf("no labeled images found under %s", dir)
	}
	return ds, nil
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not read image %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("could not decode image %s: %w", path, err)
	}
	return img, nil
}

// Len returns the number of labeled samples.
func (d *Dataset) Len() int { return len(d.samples) }

// Batch packs the selected samples into an NCHW image tensor and a one-hot
// label tensor, applying random augmentation when the dataset was loaded for
// training.
func (d *Dataset) Batch(indices []int) (*tensor.Dense, *tensor.Dense, error) {
	batch := len(indices)
	stride := imageChannels * ImageSize * ImageSize
	xs := make([]float32, batch*stride)
	ys := make([]float32, batch*len(Classes))

	for b, idx := range indices {
		if idx < 0 || idx >= len(d.samples) {
			return nil, nil, fmt.Errorf("index %d out of range [0,%d)", idx, len(d.samples))
		}
		img := d.samples[idx].img
		if d.augment {
			img = d.augmentImage(img)
		}
		copy(xs[b*stride:(b+1)*stride], tensorFromImage(img))
		ys[b*len(Classes)+d.samples[idx].class] = 1
	}

	x := tensor.New(tensor.WithShape(batch, imageChannels, ImageSize, ImageSize), tensor.WithBacking(xs))
	y := tensor.New(tensor.WithShape(batch, len(Classes)), tensor.WithBacking(ys))
	return x, y, nil
}

// augmentImage applies a random horizontal flip, rotation, shift, shear and
// zoom, matching the augmentation the exported classifier was trained with.
func (d *Dataset) augmentImage(img image.Image) image.Image {
	out := imaging.Clone(img)

	if d.rng.Float64() < 0.5 {
		out = imaging.FlipH(out)
	}

	angle := (d.rng.Float64()*2 - 1) * augRotateDegrees
	out = imaging.Rotate(out, angle, color.Black)

	w := out.Bounds().Dx()
	h := out.Bounds().Dy()

	dx := int((d.rng.Float64()*2 - 1) * augShiftFraction * float64(w))
	dy := int((d.rng.Float64()*2 - 1) * augShiftFraction * float64(h))
	canvas := imaging.New(w, h, color.Black)
	out = imaging.Paste(canvas, out, image.Pt(dx, dy))

	out = shearH(out, (d.rng.Float64()*2-1)*augShearFactor)

	zoom := 1 + (d.rng.Float64()*2-1)*augZoomFraction
	zw := int(float64(w) / zoom)
	zh := int(float64(h) / zoom)
	if zw > 0 && zh > 0 && (zw != w || zh != h) {
		if zw <= w && zh <= h {
			out = imaging.Resize(imaging.CropCenter(out, zw, zh), w, h, imaging.Lanczos)
		} else {
			shrunk := imaging.Resize(out, int(float64(w)*zoom), int(float64(h)*zoom), imaging.Lanczos)
			canvas = imaging.New(w, h, color.Black)
			out = imaging.Paste(canvas, shrunk, image.Pt((w-shrunk.Bounds().Dx())/2, (h-shrunk.Bounds().Dy())/2))
		}
	}
	return out
}

// shearH shears the image horizontally by factor k, sampling with an inverse
// map and filling exposed pixels with black.
func shearH(img *image.NRGBA, k float64) *image.NRGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		offset := k * (float64(y) - float64(h)/2)
		for x := 0; x < w; x++ {
			srcX := x + int(offset)
			if srcX < 0 || srcX >= w {
				continue
			}
			out.Set(x, y, img.NRGBAAt(srcX, y))
		}
	}
	return out
}
