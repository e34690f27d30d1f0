package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVolumeIndexing(t *testing.T) {
	vol := NewVolume(4, 3, 2)
	vol.Set(3, 2, 1, 7)

	assert.Equal(t, 24, vol.Len())
	assert.Equal(t, 1*4*3+2*4+3, vol.Index(3, 2, 1))
	assert.Equal(t, 7.0, vol.Data[23])
	assert.Equal(t, 7.0, vol.At(3, 2, 1))
	assert.NoError(t, vol.Validate())

	vol.Data = vol.Data[:10]
	assert.Error(t, vol.Validate())
}

func TestApplyMask(t *testing.T) {
	vol := NewVolume(2, 2, 1)
	vol.Data = []float64{1, 2, 0, 4}
	vol.Header = []byte{1, 2, 3}

	fg := vol.ForegroundMask()
	assert.Equal(t, []bool{true, true, false, true}, fg.Data)

	fg.Set(1, 0, 0, false)
	brain := vol.ApplyMask(fg)
	assert.Equal(t, []float64{1, 0, 0, 4}, brain.Data)
	assert.Equal(t, vol.Header, brain.Header)
	assert.Equal(t, []float64{1, 2, 0, 4}, vol.Data, "input must not change")
}

func TestMaskColumnsAndSets(t *testing.T) {
	m := NewMask(3, 3, 5)
	assert.True(t, m.Empty())
	assert.Equal(t, -1, m.Top(Column{X: 1, Y: 1}))

	m.Set(1, 1, 0, true)
	m.Set(1, 1, 3, true)
	assert.Equal(t, 3, m.Top(Column{X: 1, Y: 1}))
	assert.Equal(t, 2, m.Count())

	other := m.Clone()
	other.Set(0, 0, 0, true)
	assert.True(t, m.SubsetOf(other))
	assert.False(t, other.SubsetOf(m))
	assert.False(t, m.Equal(other))

	other.Intersect(m)
	assert.True(t, other.Equal(m))
	assert.Equal(t, 1.0, m.Float64()[m.Index(1, 1, 3)])
}
