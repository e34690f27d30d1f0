package nifti

import (
	"encoding/binary"
	"math"
)

// decodeVoxels converts stored voxel bytes to float64 without scaling
func decodeVoxels(dst []float64, src []byte, datatype int16, order binary.ByteOrder) {
	switch datatype {
	case DTUint8:
		for i := range dst {
			dst[i] = float64(src[i])
		}
	case DTInt8:
		for i := range dst {
			dst[i] = float64(int8(src[i]))
		}
	case DTInt16:
		for i := range dst {
			dst[i] = float64(int16(order.Uint16(src[2*i:])))
		}
	case DTUint16:
		for i := range dst {
			dst[i] = float64(order.Uint16(src[2*i:]))
		}
	case DTInt32:
		for i := range dst {
			dst[i] = float64(int32(order.Uint32(src[4*i:])))
		}
	case DTUint32:
		for i := range dst {
			dst[i] = float64(order.Uint32(src[4*i:]))
		}
	case DTFloat32:
		for i := range dst {
			dst[i] = float64(math.Float32frombits(order.Uint32(src[4*i:])))
		}
	case DTFloat64:
		for i := range dst {
			dst[i] = math.Float64frombits(order.Uint64(src[8*i:]))
		}
	}
}

// encodeVoxels stores values in datatype after undoing slope/intercept.
// Integer types are rounded and clamped to their range.
func encodeVoxels(dst []byte, values []float64, datatype int16, order binary.ByteOrder, slope, inter float64) {
	stored := func(v float64) float64 {
		return (v - inter) / slope
	}

	switch datatype {
	case DTUint8:
		for i, v := range values {
			dst[i] = uint8(clampRound(stored(v), 0, math.MaxUint8))
		}
	case DTInt8:
		for i, v := range values {
			dst[i] = uint8(int8(clampRound(stored(v), math.MinInt8, math.MaxInt8)))
		}
	case DTInt16:
		for i, v := range values {
			order.PutUint16(dst[2*i:], uint16(int16(clampRound(stored(v), math.MinInt16, math.MaxInt16))))
		}
	case DTUint16:
		for i, v := range values {
			order.PutUint16(dst[2*i:], uint16(clampRound(stored(v), 0, math.MaxUint16)))
		}
	case DTInt32:
		for i, v := range values {
			order.PutUint32(dst[4*i:], uint32(int32(clampRound(stored(v), math.MinInt32, math.MaxInt32))))
		}
	case DTUint32:
		for i, v := range values {
			order.PutUint32(dst[4*i:], uint32(clampRound(stored(v), 0, math.MaxUint32)))
		}
	case DTFloat32:
		for i, v := range values {
			order.PutUint32(dst[4*i:], math.Float32bits(float32(stored(v))))
		}
	case DTFloat64:
		for i, v := range values {
			order.PutUint64(dst[8*i:], math.Float64bits(stored(v)))
		}
	}
}
