// Package morphology implements 3D binary morphology on models.Mask:
// structuring elements, erosion, dilation, opening, closing, connected
// component labelling and hole filling.
//
// Border handling follows the usual image-processing convention: voxels
// outside the volume are background, so erosion eats into masks touching
// the volume edge while dilation simply drops anything that would land
// outside.
package morphology

import (
	"fmt"
	"sort"
)

// Offset is a voxel displacement relative to the structuring element origin
type Offset struct {
	X, Y, Z int
}

// Structure is a structuring element, stored as the set of offsets it covers.
// All elements built by this package are symmetric and contain the origin.
type Structure []Offset

// Connectivity returns the 3x3x3 element of the given connectivity rank:
// rank 1 connects faces (6 neighbours), rank 2 adds edges (18) and rank 3
// adds corners (26).
func Connectivity(rank int) (Structure, error) {
	if rank < 1 || rank > 3 {
		return nil, fmt.Errorf("connectivity rank must be 1, 2 or 3, got %d", rank)
	}

	var s Structure
	for z := -1; z <= 1; z++ {
		for y := -1; y <= 1; y++ {
			for x := -1; x <= 1; x++ {
				if abs(x)+abs(y)+abs(z) <= rank {
					s = append(s, Offset{x, y, z})
				}
			}
		}
	}
	return s, nil
}

// MustConnectivity is like Connectivity but panics on an invalid rank
func MustConnectivity(rank int) Structure {
	s, err := Connectivity(rank)
	if err != nil {
		panic(err)
	}
	return s
}

// Iterate grows the element by dilating it with itself so that it reaches
// radius steps from the origin. Iterate(1) returns a copy of s.
func (s Structure) Iterate(radius int) Structure {
	current := make(map[Offset]struct{}, len(s))
	for _, o := range s {
		current[o] = struct{}{}
	}

	for i := 1; i < radius; i++ {
		next := make(map[Offset]struct{}, len(current)*2)
		for a := range current {
			for _, b := range s {
				next[Offset{a.X + b.X, a.Y + b.Y, a.Z + b.Z}] = struct{}{}
			}
		}
		current = next
	}

	out := make(Structure, 0, len(current))
	for o := range current {
		out = append(out, o)
	}
	out.sort()
	return out
}

// Neighbors returns the offsets of s without the origin
func (s Structure) Neighbors() []Offset {
	out := make([]Offset, 0, len(s))
	for _, o := range s {
		if o != (Offset{}) {
			out = append(out, o)
		}
	}
	return out
}

// sort orders offsets z-major so that iteration over an element is stable
func (s Structure) sort() {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Z != s[j].Z {
			return s[i].Z < s[j].Z
		}
		if s[i].Y != s[j].Y {
			return s[i].Y < s[j].Y
		}
		return s[i].X < s[j].X
	})
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
