package models

// Mask is a binary foreground classification with the same layout as Volume
type Mask struct {
	// Data holds one flag per voxel, x fastest then y then z
	Data []bool

	// Width, Height, Depth are the extents along x, y and z
	Width, Height, Depth int
}

// Column identifies the voxels at a fixed (X, Y) across all z
type Column struct {
	X, Y int
}

// NewMask allocates an all-background mask
func NewMask(width, height, depth int) *Mask {
	return &Mask{
		Data:   make([]bool, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
}

// Index returns the flat offset of voxel (x, y, z)
func (m *Mask) Index(x, y, z int) int {
	return z*m.Width*m.Height + y*m.Width + x
}

// At reports whether (x, y, z) is foreground
func (m *Mask) At(x, y, z int) bool {
	return m.Data[m.Index(x, y, z)]
}

// Set marks (x, y, z) as foreground or background
func (m *Mask) Set(x, y, z int, value bool) {
	m.Data[m.Index(x, y, z)] = value
}

// Clone returns a deep copy
func (m *Mask) Clone() *Mask {
	out := &Mask{
		Data:   make([]bool, len(m.Data)),
		Width:  m.Width,
		Height: m.Height,
		Depth:  m.Depth,
	}
	copy(out.Data, m.Data)
	return out
}

// Count returns the number of foreground voxels
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Empty reports whether the mask has no foreground
func (m *Mask) Empty() bool {
	for _, v := range m.Data {
		if v {
			return false
		}
	}
	return true
}

// Top returns the highest z with foreground in the column, or -1 if the
// column is entirely background
func (m *Mask) Top(c Column) int {
	for z := m.Depth - 1; z >= 0; z-- {
		if m.At(c.X, c.Y, z) {
			return z
		}
	}
	return -1
}

// SubsetOf reports whether every foreground voxel of m is foreground in other
func (m *Mask) SubsetOf(other *Mask) bool {
	if len(m.Data) != len(other.Data) {
		return false
	}
	for i, v := range m.Data {
		if v && !other.Data[i] {
			return false
		}
	}
	return true
}

// Intersect clears every voxel of m that is background in other
func (m *Mask) Intersect(other *Mask) {
	for i, v := range m.Data {
		if v && !other.Data[i] {
			m.Data[i] = false
		}
	}
}

// Equal reports whether both masks have identical extents and content
func (m *Mask) Equal(other *Mask) bool {
	if m.Width != other.Width || m.Height != other.Height || m.Depth != other.Depth {
		return false
	}
	for i, v := range m.Data {
		if v != other.Data[i] {
			return false
		}
	}
	return true
}

// Float64 converts the mask into 0/1 voxel values
func (m *Mask) Float64() []float64 {
	out := make([]float64, len(m.Data))
	for i, v := range m.Data {
		if v {
			out[i] = 1
		}
	}
	return out
}
