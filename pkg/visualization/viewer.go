// Package visualization renders quality-control slices of a skull-stripped
// volume with the outline of its brain mask drawn on top.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"swistrip/internal/models"
)

// OutlineColor is drawn on mask voxels that touch background in the slice plane
var OutlineColor = color.RGBA{R: 255, A: 255}

// Viewer extracts 2D slices from a volume and overlays the mask outline
type Viewer struct {
	volume *models.Volume
	mask   *models.Mask

	// scale maps intensities to 0..255
	scale float64
}

// NewViewer creates a viewer for vol. The mask may be nil, in which case no
// outline is drawn.
func NewViewer(vol *models.Volume, mask *models.Mask) (*Viewer, error) {
	if err := vol.Validate(); err != nil {
		return nil, err
	}
	if mask != nil && !vol.SameExtents(mask) {
		return nil, fmt.Errorf("mask %dx%dx%d does not match volume %dx%dx%d",
			mask.Width, mask.Height, mask.Depth, vol.Width, vol.Height, vol.Depth)
	}

	scale := 0.0
	if peak := floats.Max(vol.Data); peak > 0 {
		scale = 255 / peak
	}

	return &Viewer{volume: vol, mask: mask, scale: scale}, nil
}

// plane maps slice pixel (u, v) back to a voxel for the given axis and
// reports the image size
func (v *Viewer) plane(axis string, position int) (func(u, w int) (int, int, int), int, int, error) {
	if position < 0 {
		return nil, 0, 0, fmt.Errorf("position must be non-negative")
	}

	vol := v.volume
	switch axis {
	case "x", "X":
		// sagittal: YZ plane
		if position >= vol.Width {
			return nil, 0, 0, fmt.Errorf("position %d exceeds width %d", position, vol.Width)
		}
		return func(u, w int) (int, int, int) { return position, w, u }, vol.Depth, vol.Height, nil

	case "y", "Y":
		// coronal: XZ plane
		if position >= vol.Height {
			return nil, 0, 0, fmt.Errorf("position %d exceeds height %d", position, vol.Height)
		}
		return func(u, w int) (int, int, int) { return u, position, w }, vol.Width, vol.Depth, nil

	case "z", "Z":
		// axial: XY plane
		if position >= vol.Depth {
			return nil, 0, 0, fmt.Errorf("position %d exceeds depth %d", position, vol.Depth)
		}
		return func(u, w int) (int, int, int) { return u, w, position }, vol.Width, vol.Height, nil
	}

	return nil, 0, 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// ExtractSlice renders one slice along axis as an RGBA image
func (v *Viewer) ExtractSlice(axis string, position int) (*image.RGBA, error) {
	voxel, width, height, err := v.plane(axis, position)
	if err != nil {
		return nil, err
	}

	inMask := func(u, w int) bool {
		if v.mask == nil || u < 0 || w < 0 || u >= width || w >= height {
			return false
		}
		return v.mask.At(voxel(u, w))
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for w := 0; w < height; w++ {
		for u := 0; u < width; u++ {
			if inMask(u, w) && !(inMask(u-1, w) && inMask(u+1, w) && inMask(u, w-1) && inMask(u, w+1)) {
				img.SetRGBA(u, w, OutlineColor)
				continue
			}

			g := uint8(math.Max(0, math.Min(255, v.volume.At(voxel(u, w))*v.scale)))
			img.SetRGBA(u, w, color.RGBA{R: g, G: g, B: g, A: 255})
		}
	}

	return img, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: 90}); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SaveMidSlices writes the sagittal, coronal and axial slices through the
// volume centre into dir and returns the file names
func (v *Viewer) SaveMidSlices(dir, prefix string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	views := []struct {
		axis, name string
		position   int
	}{
		{"x", "sagittal", v.volume.Width / 2},
		{"y", "coronal", v.volume.Height / 2},
		{"z", "axial", v.volume.Depth / 2},
	}

	var files []string
	for _, view := range views {
		img, err := v.ExtractSlice(view.axis, view.position)
		if err != nil {
			return files, err
		}

		filename := filepath.Join(dir, fmt.Sprintf("%sqc_%s.jpg", prefix, view.name))
		if err := v.SaveSlice(img, filename); err != nil {
			return files, fmt.Errorf("failed to save %s slice: %w", view.name, err)
		}
		files = append(files, filename)
	}

	return files, nil
}
