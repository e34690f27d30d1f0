package morphology

import (
	"swistrip/internal/models"
)

// Erode applies binary erosion with s the given number of times.
// A voxel survives an iteration only if every offset of s lands on
// foreground inside the volume.
func Erode(m *models.Mask, s Structure, iterations int) *models.Mask {
	out := m.Clone()
	for i := 0; i < iterations; i++ {
		next := erodeOnce(out, s)
		if next.Equal(out) {
			// further iterations cannot change a fixed point
			break
		}
		out = next
	}
	return out
}

// Open erodes then dilates with s, removing structures thinner than s
func Open(m *models.Mask, s Structure) *models.Mask {
	return dilateOnce(erodeOnce(m, s), s)
}

// Close dilates then erodes with s, filling gaps narrower than s
func Close(m *models.Mask, s Structure) *models.Mask {
	return erodeOnce(dilateOnce(m, s), s)
}

func erodeOnce(m *models.Mask, s Structure) *models.Mask {
	out := models.NewMask(m.Width, m.Height, m.Depth)
	w, h, d := m.Width, m.Height, m.Depth

	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				idx := m.Index(x, y, z)
				if !m.Data[idx] {
					continue
				}

				keep := true
				for _, o := range s {
					nx, ny, nz := x+o.X, y+o.Y, z+o.Z
					if nx < 0 || ny < 0 || nz < 0 || nx >= w || ny >= h || nz >= d {
						keep = false
						break
					}
					if !m.Data[m.Index(nx, ny, nz)] {
						keep = false
						break
					}
				}
				out.Data[idx] = keep
			}
		}
	}

	return out
}

func dilateOnce(m *models.Mask, s Structure) *models.Mask {
	out := models.NewMask(m.Width, m.Height, m.Depth)
	w, h, d := m.Width, m.Height, m.Depth

	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if !m.Data[m.Index(x, y, z)] {
					continue
				}

				for _, o := range s {
					nx, ny, nz := x+o.X, y+o.Y, z+o.Z
					if nx < 0 || ny < 0 || nz < 0 || nx >= w || ny >= h || nz >= d {
						continue
					}
					out.Data[out.Index(nx, ny, nz)] = true
				}
			}
		}
	}

	return out
}
