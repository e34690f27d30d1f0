// Package stl exports the boundary surface of a binary mask as an STL mesh.
package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"swistrip/internal/models"
)

// Triangle is one facet of the mesh with its outward unit normal
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// face is one side of a unit voxel: the neighbour it borders and its corners
// in counter-clockwise order seen from outside
type face struct {
	dx, dy, dz int
	normal     [3]float32
	corners    [4][3]float32
}

var faces = [6]face{
	{1, 0, 0, [3]float32{1, 0, 0}, [4][3]float32{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}}},
	{-1, 0, 0, [3]float32{-1, 0, 0}, [4][3]float32{{0, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 1, 0}}},
	{0, 1, 0, [3]float32{0, 1, 0}, [4][3]float32{{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}}},
	{0, -1, 0, [3]float32{0, -1, 0}, [4][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}}},
	{0, 0, 1, [3]float32{0, 0, 1}, [4][3]float32{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}}},
	{0, 0, -1, [3]float32{0, 0, -1}, [4][3]float32{{0, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}}},
}

// Surface builds a voxel-face mesh: every face between a mask voxel and
// background (or the volume border) becomes two triangles
type Surface struct {
	mask *models.Mask

	// physical size of a voxel along each axis
	xScale float32
	yScale float32
	zScale float32
}

// NewSurface creates a surface extractor with unit voxel size
func NewSurface(mask *models.Mask) *Surface {
	return &Surface{
		mask:   mask,
		xScale: 1,
		yScale: 1,
		zScale: 1,
	}
}

// SetScale sets the voxel size used for vertex coordinates
func (s *Surface) SetScale(x, y, z float32) {
	s.xScale = x
	s.yScale = y
	s.zScale = z
}

// GenerateTriangles returns the boundary facets in raster order of their voxels
func (s *Surface) GenerateTriangles() []Triangle {
	m := s.mask
	var triangles []Triangle

	for z := 0; z < m.Depth; z++ {
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				if !m.At(x, y, z) {
					continue
				}

				for _, f := range faces {
					nx, ny, nz := x+f.dx, y+f.dy, z+f.dz
					if nx >= 0 && ny >= 0 && nz >= 0 && nx < m.Width && ny < m.Height && nz < m.Depth && m.At(nx, ny, nz) {
						continue
					}

					var v [4][3]float32
					for i, c := range f.corners {
						v[i] = [3]float32{
							(float32(x) + c[0]) * s.xScale,
							(float32(y) + c[1]) * s.yScale,
							(float32(z) + c[2]) * s.zScale,
						}
					}
					triangles = append(triangles,
						Triangle{Normal: f.normal, Vertex1: v[0], Vertex2: v[1], Vertex3: v[2]},
						Triangle{Normal: f.normal, Vertex1: v[0], Vertex2: v[2], Vertex3: v[3]},
					)
				}
			}
		}
	}

	return triangles
}

// SaveToSTL writes triangles as a binary STL file
func SaveToSTL(filename string, triangles []Triangle) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(file)

	var header [80]byte
	copy(header[:], "swistrip brain mask surface")
	if _, err := w.Write(header[:]); err != nil {
		file.Close()
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(triangles))); err != nil {
		file.Close()
		return err
	}

	for i := range triangles {
		t := &triangles[i]
		record := struct {
			Normal, V1, V2, V3 [3]float32
			Attribute          uint16
		}{t.Normal, t.Vertex1, t.Vertex2, t.Vertex3, 0}

		if err := binary.Write(w, binary.LittleEndian, &record); err != nil {
			file.Close()
			return fmt.Errorf("failed to write triangle %d: %w", i, err)
		}
	}

	if err := w.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
