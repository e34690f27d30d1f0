package nifti

import (
	"encoding/binary"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swistrip/internal/models"
)

// createTestVolume returns a small volume with a gradient pattern and a
// header of the given datatype
func createTestVolume(t *testing.T, datatype int16) *models.Volume {
	t.Helper()

	vol := models.NewVolume(6, 5, 4)
	vol.VoxelSize.X, vol.VoxelSize.Y, vol.VoxelSize.Z = 0.5, 0.5, 2
	for z := 0; z < 4; z++ {
		for y := 0; y < 5; y++ {
			for x := 0; x < 6; x++ {
				vol.Set(x, y, z, float64(x+10*y+50*z))
			}
		}
	}

	h, err := NewHeader(6, 5, 4, [3]float64{0.5, 0.5, 2}, datatype)
	require.NoError(t, err)
	vol.Header = h.Bytes()
	return vol
}

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"swi.nii", "swi.nii.gz"} {
		for _, datatype := range []int16{DTUint8, DTInt16, DTUint16, DTInt32, DTFloat32, DTFloat64} {
			vol := createTestVolume(t, datatype)
			path := filepath.Join(t.TempDir(), name)

			require.NoError(t, Write(path, vol), "datatype %d", datatype)

			loaded, err := Read(path)
			require.NoError(t, err)
			assert.Equal(t, 6, loaded.Width)
			assert.Equal(t, 5, loaded.Height)
			assert.Equal(t, 4, loaded.Depth)
			assert.Equal(t, vol.Data, loaded.Data, "datatype %d", datatype)
			assert.Equal(t, vol.Header, loaded.Header)
			assert.Equal(t, 0.5, loaded.VoxelSize.X)
			assert.Equal(t, 2.0, loaded.VoxelSize.Z)
		}
	}
}

func TestScaledIntegers(t *testing.T) {
	vol := createTestVolume(t, DTInt16)
	h, err := ParseHeader(vol.Header)
	require.NoError(t, err)
	h.putFloat32(offSclSlope, 2)
	h.putFloat32(offSclInter, 10)

	// stored 0..n maps to 10, 12, 14, ...
	for i := range vol.Data {
		vol.Data[i] = float64(10 + 2*i)
	}

	path := filepath.Join(t.TempDir(), "scaled.nii.gz")
	require.NoError(t, Write(path, vol))

	loaded, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, vol.Data, loaded.Data)
	assert.Equal(t, vol.Header, loaded.Header)
}

func TestScalingWithoutExactZero(t *testing.T) {
	vol := createTestVolume(t, DTInt16)
	h, err := ParseHeader(vol.Header)
	require.NoError(t, err)
	// stored zero would be -0.5, which int16 cannot hold
	h.putFloat32(offSclSlope, 2)
	h.putFloat32(offSclInter, 1)

	for i := range vol.Data {
		vol.Data[i] = 0
	}
	vol.Data[0] = 201

	path := filepath.Join(t.TempDir(), "masked.nii.gz")
	require.NoError(t, Write(path, vol))

	loaded, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, vol.Data, loaded.Data)

	out, err := ParseHeader(loaded.Header)
	require.NoError(t, err)
	assert.Equal(t, DTFloat32, out.Datatype())
	slope, inter := out.Scaling()
	assert.Equal(t, 1.0, slope)
	assert.Equal(t, 0.0, inter)
	nx, ny, nz, _ := out.Dims()
	assert.Equal(t, []int{vol.Width, vol.Height, vol.Depth}, []int{nx, ny, nz})
}

func TestWriteMask(t *testing.T) {
	vol := createTestVolume(t, DTFloat32)
	mask := models.NewMask(6, 5, 4)
	mask.Set(1, 2, 3, true)
	mask.Set(5, 4, 0, true)

	path := filepath.Join(t.TempDir(), "mask.nii.gz")
	require.NoError(t, WriteMask(path, mask, vol))

	loaded, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 1.0, loaded.At(1, 2, 3))
	assert.Equal(t, 1.0, loaded.At(5, 4, 0))
	assert.Equal(t, 2.0, sum(loaded.Data))

	h, err := ParseHeader(loaded.Header)
	require.NoError(t, err)
	assert.Equal(t, DTUint8, h.Datatype())

	// only datatype, bitpix and scaling differ from the reference header
	for i := range vol.Header {
		if i >= offDatatype && i < offBitpix+2 || i >= offSclSlope && i < offSclInter+4 {
			continue
		}
		assert.Equal(t, vol.Header[i], loaded.Header[i], "header byte %d", i)
	}
}

func TestBigEndian(t *testing.T) {
	h, err := newHeader(binary.BigEndian, 2, 2, 2, [3]float64{1, 1, 1}, DTInt16)
	require.NoError(t, err)

	values := []float64{-3, -2, -1, 0, 1, 2, 3, 400}
	data, err := Encode(h, values)
	require.NoError(t, err)

	vol, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, values, vol.Data)
}

func TestWriteWithoutHeader(t *testing.T) {
	vol := models.NewVolume(3, 3, 3)
	vol.Set(1, 1, 1, 123.5)

	path := filepath.Join(t.TempDir(), "bare.nii")
	require.NoError(t, Write(path, vol))

	loaded, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 123.5, loaded.At(1, 1, 1))
	assert.Len(t, loaded.Header, minOffset)
}

func TestDecodeErrors(t *testing.T) {
	t.Run("Garbage", func(t *testing.T) {
		_, err := Decode(make([]byte, 400))
		assert.True(t, errors.Is(err, ErrBadHeader))
	})

	t.Run("Truncated", func(t *testing.T) {
		h, err := NewHeader(10, 10, 10, [3]float64{1, 1, 1}, DTFloat32)
		require.NoError(t, err)
		_, err = Decode(append(h.Bytes(), make([]byte, 100)...))
		assert.True(t, errors.Is(err, ErrBadHeader))
	})

	t.Run("FourDimensional", func(t *testing.T) {
		h, err := NewHeader(2, 2, 2, [3]float64{1, 1, 1}, DTUint8)
		require.NoError(t, err)
		h.putInt16(offDim, 4)
		h.putInt16(offDim+8, 3)
		_, err = Decode(append(h.Bytes(), make([]byte, 24)...))
		assert.True(t, errors.Is(err, ErrUnsupported))
	})

	t.Run("HigherDimensions", func(t *testing.T) {
		h, err := NewHeader(2, 2, 2, [3]float64{1, 1, 1}, DTUint8)
		require.NoError(t, err)
		h.putInt16(offDim, 5)
		h.putInt16(offDim+8, 1)
		h.putInt16(offDim+10, 3) // vector image
		_, err = Decode(append(h.Bytes(), make([]byte, 24)...))
		assert.True(t, errors.Is(err, ErrUnsupported))
	})

	t.Run("Datatype", func(t *testing.T) {
		h, err := NewHeader(2, 2, 2, [3]float64{1, 1, 1}, DTUint8)
		require.NoError(t, err)
		h.putInt16(offDatatype, 128) // RGB24
		_, err = Decode(append(h.Bytes(), make([]byte, 24)...))
		assert.True(t, errors.Is(err, ErrUnsupported))
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Read(filepath.Join(t.TempDir(), "missing.nii.gz"))
		assert.True(t, errors.Is(err, fs.ErrNotExist))
	})

	t.Run("NotGzip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plain.nii.gz")
		require.NoError(t, os.WriteFile(path, []byte("definitely not gzip"), 0644))
		_, err := Read(path)
		assert.Error(t, err)
	})
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}
