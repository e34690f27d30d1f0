// Package nifti reads and writes single-file NIfTI-1 volumes (.nii and
// .nii.gz). Only the fields needed to decode voxel data are interpreted;
// the rest of the header, including extensions, is carried as raw bytes.
package nifti

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Header field offsets within the 348 byte NIfTI-1 header
const (
	headerSize = 348
	minOffset  = 352

	offSizeofHdr = 0
	offDim       = 40
	offDatatype  = 70
	offBitpix    = 72
	offPixdim    = 76
	offVoxOffset = 108
	offSclSlope  = 112
	offSclInter  = 116
	offMagic     = 344
)

// NIfTI-1 datatype codes
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
	DTInt8    int16 = 256
	DTUint16  int16 = 512
	DTUint32  int16 = 768
)

var (
	// ErrBadHeader is returned for files that are not NIfTI-1
	ErrBadHeader = errors.New("not a NIfTI-1 header")

	// ErrUnsupported is returned for valid files this package cannot decode
	ErrUnsupported = errors.New("unsupported NIfTI-1 content")
)

// bitsPerVoxel maps supported datatypes to their bitpix
var bitsPerVoxel = map[int16]int16{
	DTUint8:   8,
	DTInt8:    8,
	DTInt16:   16,
	DTUint16:  16,
	DTInt32:   32,
	DTUint32:  32,
	DTFloat32: 32,
	DTFloat64: 64,
}

// Header is a decoded view over the raw header bytes
type Header struct {
	raw   []byte
	order binary.ByteOrder
}

// ParseHeader wraps raw header bytes (at least 348 long) and detects their
// byte order from sizeof_hdr
func ParseHeader(raw []byte) (*Header, error) {
	if len(raw) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadHeader, len(raw))
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(raw[offSizeofHdr:]) == headerSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(raw[offSizeofHdr:]) == headerSize:
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: sizeof_hdr is not 348", ErrBadHeader)
	}

	magic := string(raw[offMagic : offMagic+3])
	if magic != "n+1" {
		if magic == "ni1" {
			return nil, fmt.Errorf("%w: detached header/image pairs", ErrUnsupported)
		}
		return nil, fmt.Errorf("%w: magic %q", ErrBadHeader, magic)
	}

	return &Header{raw: raw, order: order}, nil
}

// NewHeader builds a little-endian NIfTI-1 header for a 3D volume
func NewHeader(width, height, depth int, voxelSize [3]float64, datatype int16) (*Header, error) {
	return newHeader(binary.LittleEndian, width, height, depth, voxelSize, datatype)
}

func newHeader(order binary.ByteOrder, width, height, depth int, voxelSize [3]float64, datatype int16) (*Header, error) {
	bitpix, ok := bitsPerVoxel[datatype]
	if !ok {
		return nil, fmt.Errorf("%w: datatype %d", ErrUnsupported, datatype)
	}

	h := &Header{raw: make([]byte, minOffset), order: order}
	h.putInt32(offSizeofHdr, headerSize)
	h.putInt16(offDim, 3)
	h.putInt16(offDim+2, int16(width))
	h.putInt16(offDim+4, int16(height))
	h.putInt16(offDim+6, int16(depth))
	for i := 4; i < 8; i++ {
		h.putInt16(offDim+2*i, 1)
	}
	h.putInt16(offDatatype, datatype)
	h.putInt16(offBitpix, bitpix)
	h.putFloat32(offPixdim, 1)
	for i, v := range voxelSize {
		h.putFloat32(offPixdim+4*(i+1), float32(v))
	}
	h.putFloat32(offVoxOffset, minOffset)
	h.putFloat32(offSclSlope, 1)
	copy(h.raw[offMagic:], "n+1\x00")
	return h, nil
}

// Bytes returns the raw header, including extension bytes
func (h *Header) Bytes() []byte {
	return h.raw
}

// Dims returns the spatial extents and the number of 3D blocks, the
// product of dim[4] through dim[7]
func (h *Header) Dims() (nx, ny, nz, nt int) {
	ndim := int(h.getInt16(offDim))
	dim := func(i int) int {
		if i > ndim {
			return 1
		}
		v := int(h.getInt16(offDim + 2*i))
		if v < 1 {
			return 1
		}
		return v
	}
	nt = 1
	for i := 4; i <= 7; i++ {
		nt *= dim(i)
	}
	return dim(1), dim(2), dim(3), nt
}

// Datatype returns the datatype code
func (h *Header) Datatype() int16 {
	return h.getInt16(offDatatype)
}

// VoxelSize returns pixdim[1..3]
func (h *Header) VoxelSize() [3]float64 {
	var out [3]float64
	for i := range out {
		out[i] = math.Abs(float64(h.getFloat32(offPixdim + 4*(i+1))))
		if out[i] == 0 {
			out[i] = 1
		}
	}
	return out
}

// VoxOffset returns the byte offset of the voxel data
func (h *Header) VoxOffset() int {
	off := int(h.getFloat32(offVoxOffset))
	if off < minOffset {
		off = minOffset
	}
	return off
}

// Scaling returns the slope and intercept applied to stored values.
// A zero or non-finite slope means no scaling.
func (h *Header) Scaling() (slope, inter float64) {
	slope = float64(h.getFloat32(offSclSlope))
	inter = float64(h.getFloat32(offSclInter))
	if slope == 0 || math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 1, 0
	}
	if math.IsNaN(inter) || math.IsInf(inter, 0) {
		inter = 0
	}
	return slope, inter
}

// WithDatatype returns a copy of the header storing voxels as datatype
// without scaling. Every other byte is preserved.
func (h *Header) WithDatatype(datatype int16) (*Header, error) {
	bitpix, ok := bitsPerVoxel[datatype]
	if !ok {
		return nil, fmt.Errorf("%w: datatype %d", ErrUnsupported, datatype)
	}

	out := &Header{raw: append([]byte(nil), h.raw...), order: h.order}
	out.putInt16(offDatatype, datatype)
	out.putInt16(offBitpix, bitpix)
	out.putFloat32(offSclSlope, 1)
	out.putFloat32(offSclInter, 0)
	return out, nil
}

// zeroExact reports whether a voxel value of 0 reads back as exactly 0
// once stored with the header's datatype and scaling
func (h *Header) zeroExact() bool {
	datatype := h.Datatype()
	bitpix, ok := bitsPerVoxel[datatype]
	if !ok {
		return true
	}

	slope, inter := h.Scaling()
	buf := make([]byte, bitpix/8)
	encodeVoxels(buf, []float64{0}, datatype, h.order, slope, inter)
	var back [1]float64
	decodeVoxels(back[:], buf, datatype, h.order)
	return back[0]*slope+inter == 0
}

func (h *Header) getInt16(off int) int16 {
	return int16(h.order.Uint16(h.raw[off:]))
}

func (h *Header) getFloat32(off int) float32 {
	return math.Float32frombits(h.order.Uint32(h.raw[off:]))
}

func (h *Header) putInt16(off int, v int16) {
	h.order.PutUint16(h.raw[off:], uint16(v))
}

func (h *Header) putInt32(off int, v int32) {
	h.order.PutUint32(h.raw[off:], uint32(v))
}

func (h *Header) putFloat32(off int, v float32) {
	h.order.PutUint32(h.raw[off:], math.Float32bits(v))
}
