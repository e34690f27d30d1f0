package nifti

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"swistrip/internal/models"
)

// isGzip reports whether the path names a compressed file
func isGzip(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}

// Read loads a 3D NIfTI-1 volume. Stored values are converted to float64
// with scl_slope/scl_inter applied. The raw header bytes up to vox_offset
// are kept in Volume.Header.
func Read(path string) (*models.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if isGzip(path) {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	vol, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return vol, nil
}

// Decode parses a complete single-file NIfTI-1 image held in memory
func Decode(data []byte) (*models.Volume, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: file is only %d bytes", ErrBadHeader, len(data))
	}
	h, err := ParseHeader(data[:headerSize])
	if err != nil {
		return nil, err
	}

	nx, ny, nz, nt := h.Dims()
	if nt > 1 {
		return nil, fmt.Errorf("%w: %d 3D blocks beyond the spatial dimensions", ErrUnsupported, nt)
	}

	datatype := h.Datatype()
	bitpix, ok := bitsPerVoxel[datatype]
	if !ok {
		return nil, fmt.Errorf("%w: datatype %d", ErrUnsupported, datatype)
	}

	offset := h.VoxOffset()
	n := nx * ny * nz
	size := n * int(bitpix) / 8
	if len(data) < offset+size {
		return nil, fmt.Errorf("%w: need %d bytes of voxel data, have %d",
			ErrBadHeader, size, len(data)-offset)
	}

	vol := models.NewVolume(nx, ny, nz)
	// keep the header and extensions, detached from the input buffer
	vol.Header = append([]byte(nil), data[:offset]...)
	h.raw = vol.Header
	voxel := h.VoxelSize()
	vol.VoxelSize.X, vol.VoxelSize.Y, vol.VoxelSize.Z = voxel[0], voxel[1], voxel[2]

	decodeVoxels(vol.Data, data[offset:offset+size], datatype, h.order)

	slope, inter := h.Scaling()
	if slope != 1 || inter != 0 {
		for i, v := range vol.Data {
			vol.Data[i] = v*slope + inter
		}
	}

	return vol, nil
}

// Write stores the volume using the datatype and scaling of its own header,
// so the header is forwarded byte for byte. Volumes without a header, and
// volumes whose scaling cannot store an exact zero, are written as float32.
func Write(path string, vol *models.Volume) error {
	h, err := headerFor(vol, 0)
	if err != nil {
		return err
	}
	return writeFile(path, h, vol.Data)
}

// WriteMask stores a binary mask as uint8 0/1 using the geometry of the
// reference volume's header
func WriteMask(path string, mask *models.Mask, reference *models.Volume) error {
	h, err := headerFor(reference, DTUint8)
	if err != nil {
		return err
	}
	return writeFile(path, h, mask.Float64())
}

// headerFor returns the header to write vol with. A non-zero datatype
// replaces the stored datatype and resets scaling. Without one, a header
// that would turn background into a non-zero value falls back to float32.
func headerFor(vol *models.Volume, datatype int16) (*Header, error) {
	if err := vol.Validate(); err != nil {
		return nil, err
	}

	var h *Header
	if len(vol.Header) == 0 {
		var err error
		size := [3]float64{vol.VoxelSize.X, vol.VoxelSize.Y, vol.VoxelSize.Z}
		h, err = NewHeader(vol.Width, vol.Height, vol.Depth, size, DTFloat32)
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		h, err = ParseHeader(vol.Header)
		if err != nil {
			return nil, err
		}
		nx, ny, nz, _ := h.Dims()
		if nx != vol.Width || ny != vol.Height || nz != vol.Depth {
			return nil, fmt.Errorf("%w: header extents %dx%dx%d differ from volume %dx%dx%d",
				ErrBadHeader, nx, ny, nz, vol.Width, vol.Height, vol.Depth)
		}
	}

	if datatype == 0 && !h.zeroExact() {
		datatype = DTFloat32
	}
	if datatype != 0 {
		return h.WithDatatype(datatype)
	}
	return h, nil
}

// Encode renders header and voxel values as a single-file NIfTI-1 image
func Encode(h *Header, values []float64) ([]byte, error) {
	datatype := h.Datatype()
	bitpix, ok := bitsPerVoxel[datatype]
	if !ok {
		return nil, fmt.Errorf("%w: datatype %d", ErrUnsupported, datatype)
	}

	offset := h.VoxOffset()
	raw := h.Bytes()

	var buf bytes.Buffer
	buf.Grow(offset + len(values)*int(bitpix)/8)
	buf.Write(raw)
	// pad up to vox_offset when the header was shorter
	for i := len(raw); i < offset; i++ {
		buf.WriteByte(0)
	}

	slope, inter := h.Scaling()
	stored := make([]byte, len(values)*int(bitpix)/8)
	encodeVoxels(stored, values, datatype, h.order, slope, inter)
	buf.Write(stored)

	return buf.Bytes(), nil
}

func writeFile(path string, h *Header, values []float64) error {
	data, err := Encode(h, values)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	var w io.Writer = f
	var gz *gzip.Writer
	if isGzip(path) {
		gz = gzip.NewWriter(f)
		w = gz
	}

	if _, err := w.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			f.Close()
			return fmt.Errorf("failed to finish gzip stream %s: %w", path, err)
		}
	}
	return f.Close()
}

// clampRound rounds v to the nearest integer inside [lo, hi]
func clampRound(v, lo, hi float64) float64 {
	v = math.Round(v)
	return math.Max(lo, math.Min(hi, v))
}
