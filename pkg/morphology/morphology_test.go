package morphology

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swistrip/internal/models"
)

// fillBox marks the inclusive box [x0,x1]x[y0,y1]x[z0,z1] as foreground
func fillBox(m *models.Mask, x0, y0, z0, x1, y1, z1 int) {
	for z := z0; z <= z1; z++ {
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				m.Set(x, y, z, true)
			}
		}
	}
}

func TestConnectivity(t *testing.T) {
	for rank, want := range map[int]int{1: 7, 2: 19, 3: 27} {
		s, err := Connectivity(rank)
		require.NoError(t, err)
		assert.Len(t, s, want, "rank %d", rank)
		assert.Contains(t, s, Offset{})
	}

	_, err := Connectivity(0)
	assert.Error(t, err)
	_, err = Connectivity(4)
	assert.Error(t, err)
}

func TestIterate(t *testing.T) {
	base := MustConnectivity(1)

	// L1 balls: 1 + sum of 4r^2+2 over the shells
	assert.Len(t, base.Iterate(1), 7)
	assert.Len(t, base.Iterate(2), 25)
	assert.Len(t, base.Iterate(3), 63)
	assert.Contains(t, base.Iterate(3), Offset{0, 0, 3})

	for _, o := range base.Iterate(3) {
		assert.LessOrEqual(t, abs(o.X)+abs(o.Y)+abs(o.Z), 3)
	}
}

func TestErode(t *testing.T) {
	s := MustConnectivity(1)

	t.Run("CubeShrinksByOneLayer", func(t *testing.T) {
		m := models.NewMask(9, 9, 9)
		fillBox(m, 2, 2, 2, 6, 6, 6)

		eroded := Erode(m, s, 1)
		assert.Equal(t, 27, eroded.Count())
		assert.True(t, eroded.SubsetOf(m))
		assert.True(t, eroded.At(4, 4, 4))
		assert.False(t, eroded.At(2, 4, 4))
	})

	t.Run("BorderCountsAsBackground", func(t *testing.T) {
		m := models.NewMask(5, 5, 5)
		fillBox(m, 0, 0, 0, 4, 4, 4)

		eroded := Erode(m, s, 1)
		assert.Equal(t, 27, eroded.Count())
		assert.False(t, eroded.At(0, 2, 2))
	})

	t.Run("RepeatedErosionEmpties", func(t *testing.T) {
		m := models.NewMask(9, 9, 9)
		fillBox(m, 2, 2, 2, 6, 6, 6)

		assert.Equal(t, 1, Erode(m, s, 2).Count())
		assert.True(t, Erode(m, s, 8).Empty())
	})
}

func TestDilateOnce(t *testing.T) {
	m := models.NewMask(5, 5, 5)
	m.Set(2, 2, 2, true)
	face := MustConnectivity(1)

	assert.Equal(t, 7, dilateOnce(m, face).Count())
	assert.Equal(t, 25, dilateOnce(dilateOnce(m, face), face).Count())
	assert.Equal(t, 27, dilateOnce(m, MustConnectivity(3)).Count())

	corner := models.NewMask(5, 5, 5)
	corner.Set(0, 0, 0, true)
	assert.Equal(t, 4, dilateOnce(corner, face).Count())
}

func TestOpenRemovesSpeckle(t *testing.T) {
	m := models.NewMask(20, 20, 20)
	fillBox(m, 3, 3, 3, 12, 12, 12)
	m.Set(17, 17, 17, true)

	opened := Open(m, MustConnectivity(1).Iterate(2))
	assert.False(t, opened.At(17, 17, 17))
	assert.True(t, opened.At(7, 7, 7))
	assert.True(t, opened.SubsetOf(m))
}

func TestCloseBridgesGap(t *testing.T) {
	m := models.NewMask(15, 15, 15)
	// two slabs separated by a one voxel gap at z=7
	fillBox(m, 3, 3, 3, 11, 11, 6)
	fillBox(m, 3, 3, 8, 11, 11, 11)

	closed := Close(m, MustConnectivity(1))
	for y := 4; y <= 10; y++ {
		for x := 4; x <= 10; x++ {
			assert.True(t, closed.At(x, y, 7), "x=%d y=%d", x, y)
		}
	}
	assert.True(t, m.SubsetOf(closed))
	assert.Equal(t, 1, Label(closed, MustConnectivity(1)).Count)
}

func TestLabel(t *testing.T) {
	s := MustConnectivity(1)

	t.Run("KeepsLargerBlob", func(t *testing.T) {
		m := models.NewMask(20, 20, 20)
		// 30 voxels, first in raster order
		fillBox(m, 1, 1, 1, 5, 3, 2)
		// 50 voxels
		fillBox(m, 10, 10, 10, 14, 14, 11)

		labels := Label(m, s)
		require.Equal(t, 2, labels.Count)
		assert.Equal(t, 30, labels.Sizes[1])
		assert.Equal(t, 50, labels.Sizes[2])

		kept, count := LargestComponent(m, s)
		assert.Equal(t, 2, count)
		assert.Equal(t, 50, kept.Count())
		assert.True(t, kept.At(12, 12, 10))
		assert.False(t, kept.At(1, 1, 1))
	})

	t.Run("TieGoesToFirstInRasterOrder", func(t *testing.T) {
		m := models.NewMask(10, 10, 10)
		fillBox(m, 6, 6, 6, 7, 7, 7)
		fillBox(m, 1, 1, 1, 2, 2, 2)

		kept, _ := LargestComponent(m, s)
		assert.Equal(t, 8, kept.Count())
		assert.True(t, kept.At(1, 1, 1))
	})

	t.Run("ConnectivityRank", func(t *testing.T) {
		m := models.NewMask(4, 4, 4)
		m.Set(1, 1, 1, true)
		m.Set(2, 2, 2, true)

		assert.Equal(t, 2, Label(m, MustConnectivity(1)).Count)
		assert.Equal(t, 2, Label(m, MustConnectivity(2)).Count)
		assert.Equal(t, 1, Label(m, MustConnectivity(3)).Count)
	})

	t.Run("Empty", func(t *testing.T) {
		m := models.NewMask(4, 4, 4)
		labels := Label(m, s)
		assert.Equal(t, 0, labels.Count)
		assert.Equal(t, int32(0), labels.Largest())
		kept, count := LargestComponent(m, s)
		assert.True(t, kept.Empty())
		assert.Equal(t, 0, count)
	})
}

func TestFillHolesHollowSphere(t *testing.T) {
	size := 17
	center := float64(size-1) / 2
	m := models.NewMask(size, size, size)
	interior := models.NewMask(size, size, size)

	for z := 0; z < size; z++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				dx, dy, dz := float64(x)-center, float64(y)-center, float64(z)-center
				r := math.Sqrt(dx*dx + dy*dy + dz*dz)
				switch {
				case r >= 4 && r <= 6:
					m.Set(x, y, z, true)
				case r < 4:
					interior.Set(x, y, z, true)
				}
			}
		}
	}

	filled := FillHoles(m, MustConnectivity(1))

	assert.True(t, m.SubsetOf(filled))
	assert.True(t, interior.SubsetOf(filled))
	assert.Equal(t, m.Count()+interior.Count(), filled.Count())
	assert.False(t, filled.At(0, 0, 0))
	assert.False(t, filled.At(int(center), int(center), 0))
}

func TestFillHolesOpenCavity(t *testing.T) {
	m := models.NewMask(9, 9, 9)
	fillBox(m, 1, 1, 1, 7, 7, 7)
	for z := 3; z <= 5; z++ {
		for y := 3; y <= 5; y++ {
			for x := 3; x <= 5; x++ {
				m.Set(x, y, z, false)
			}
		}
	}
	// tunnel from the cavity to the outside
	for z := 6; z <= 7; z++ {
		m.Set(4, 4, z, false)
	}

	filled := FillHoles(m, MustConnectivity(1))
	assert.True(t, filled.Equal(m))

	assert.True(t, FillHoles(models.NewMask(3, 3, 3), MustConnectivity(1)).Empty())
}
