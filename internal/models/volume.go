package models

import "fmt"

// Volume represents a 3D intensity volume loaded from a NIfTI file
type Volume struct {
	// Data is the 3D volume data as a 1D array, x fastest then y then z
	Data []float64

	// Width is the number of voxels along x
	Width int

	// Height is the number of voxels along y
	Height int

	// Depth is the number of voxels along z
	Depth int

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize struct {
		X, Y, Z float64
	}

	// Header is the raw on-disk header (including extensions). It is never
	// interpreted by the refinement code, only forwarded to derived outputs.
	Header []byte
}

// NewVolume allocates a zero-filled volume with the given extents and unit voxels
func NewVolume(width, height, depth int) *Volume {
	v := &Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
	v.VoxelSize.X, v.VoxelSize.Y, v.VoxelSize.Z = 1, 1, 1
	return v
}

// Index returns the flat offset of voxel (x, y, z)
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// At returns the intensity at (x, y, z)
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores an intensity at (x, y, z)
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// Len returns the number of voxels
func (v *Volume) Len() int {
	return v.Width * v.Height * v.Depth
}

// Validate checks that the data length matches the extents
func (v *Volume) Validate() error {
	if v.Width <= 0 || v.Height <= 0 || v.Depth <= 0 {
		return fmt.Errorf("invalid volume extents %dx%dx%d", v.Width, v.Height, v.Depth)
	}
	if len(v.Data) != v.Len() {
		return fmt.Errorf("volume data has %d voxels, extents %dx%dx%d need %d",
			len(v.Data), v.Width, v.Height, v.Depth, v.Len())
	}
	return nil
}

// ForegroundMask returns the mask of voxels with positive intensity.
// Coarse strippers zero everything they remove, so this recovers their mask.
func (v *Volume) ForegroundMask() *Mask {
	m := NewMask(v.Width, v.Height, v.Depth)
	for i, value := range v.Data {
		m.Data[i] = value > 0
	}
	return m
}

// ApplyMask returns a copy of the volume with every voxel outside the mask
// set to zero. The header and voxel size are carried over unchanged.
func (v *Volume) ApplyMask(m *Mask) *Volume {
	out := &Volume{
		Data:      make([]float64, len(v.Data)),
		Width:     v.Width,
		Height:    v.Height,
		Depth:     v.Depth,
		VoxelSize: v.VoxelSize,
		Header:    v.Header,
	}
	for i, value := range v.Data {
		if m.Data[i] {
			out.Data[i] = value
		}
	}
	return out
}

// SameExtents reports whether the mask has the same extents as the volume
func (v *Volume) SameExtents(m *Mask) bool {
	return v.Width == m.Width && v.Height == m.Height && v.Depth == m.Depth
}
