package morphology

import (
	"swistrip/internal/models"
)

// Labeling is the result of connected component labelling
type Labeling struct {
	// Labels holds one label per voxel, 0 for background
	Labels []int32

	// Sizes holds the voxel count per label; Sizes[0] is unused
	Sizes []int

	// Count is the number of components found
	Count int
}

// Label partitions the foreground of m into connected components.
// Two voxels are connected when their displacement is one of the
// neighbour offsets of s. Labels are assigned in raster order, x fastest,
// so label 1 holds the first foreground voxel encountered.
func Label(m *models.Mask, s Structure) *Labeling {
	w, h, d := m.Width, m.Height, m.Depth
	neighbors := s.Neighbors()

	result := &Labeling{
		Labels: make([]int32, len(m.Data)),
		Sizes:  []int{0},
	}

	queue := make([]int, 0, 1024)
	for start, fg := range m.Data {
		if !fg || result.Labels[start] != 0 {
			continue
		}

		result.Count++
		label := int32(result.Count)
		result.Labels[start] = label
		size := 0

		queue = append(queue[:0], start)
		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			size++

			x, y, z := idx%w, (idx/w)%h, idx/(w*h)
			for _, o := range neighbors {
				nx, ny, nz := x+o.X, y+o.Y, z+o.Z
				if nx < 0 || ny < 0 || nz < 0 || nx >= w || ny >= h || nz >= d {
					continue
				}
				nidx := nz*w*h + ny*w + nx
				if m.Data[nidx] && result.Labels[nidx] == 0 {
					result.Labels[nidx] = label
					queue = append(queue, nidx)
				}
			}
		}

		result.Sizes = append(result.Sizes, size)
	}

	return result
}

// Largest returns the label with the most voxels, or 0 when there are no
// components. Ties go to the lowest label.
func (l *Labeling) Largest() int32 {
	best, bestSize := int32(0), 0
	for label := 1; label <= l.Count; label++ {
		if l.Sizes[label] > bestSize {
			best, bestSize = int32(label), l.Sizes[label]
		}
	}
	return best
}

// Mask returns the mask of voxels carrying the given label
func (l *Labeling) Mask(label int32, width, height, depth int) *models.Mask {
	out := models.NewMask(width, height, depth)
	if label == 0 {
		return out
	}
	for i, v := range l.Labels {
		out.Data[i] = v == label
	}
	return out
}

// LargestComponent keeps only the largest connected component of m and
// reports how many components m had
func LargestComponent(m *models.Mask, s Structure) (*models.Mask, int) {
	labels := Label(m, s)
	return labels.Mask(labels.Largest(), m.Width, m.Height, m.Depth), labels.Count
}

// FillHoles sets every background voxel that cannot reach the volume border
// through background (connected by s) to foreground.
func FillHoles(m *models.Mask, s Structure) *models.Mask {
	w, h, d := m.Width, m.Height, m.Depth
	neighbors := s.Neighbors()

	outside := make([]bool, len(m.Data))
	queue := make([]int, 0, 1024)

	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if x != 0 && y != 0 && z != 0 && x != w-1 && y != h-1 && z != d-1 {
					continue
				}
				idx := m.Index(x, y, z)
				if !m.Data[idx] && !outside[idx] {
					outside[idx] = true
					queue = append(queue, idx)
				}
			}
		}
	}

	for len(queue) > 0 {
		idx := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		x, y, z := idx%w, (idx/w)%h, idx/(w*h)
		for _, o := range neighbors {
			nx, ny, nz := x+o.X, y+o.Y, z+o.Z
			if nx < 0 || ny < 0 || nz < 0 || nx >= w || ny >= h || nz >= d {
				continue
			}
			nidx := nz*w*h + ny*w + nx
			if !m.Data[nidx] && !outside[nidx] {
				outside[nidx] = true
				queue = append(queue, nidx)
			}
		}
	}

	out := models.NewMask(w, h, d)
	for i := range out.Data {
		out.Data[i] = m.Data[i] || !outside[i]
	}
	return out
}
