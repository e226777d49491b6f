package geometry

import (
	"errors"
	"fmt"
)

// Triangulation errors.
var (
	ErrInvalidStride   = errors.New("invalid corner stride")
	ErrIndexCount      = errors.New("index count is not a whole number of triangles")
	ErrVCountMismatch  = errors.New("face corner counts do not match index count")
	ErrNegativeCorners = errors.New("negative face corner count")
)

// Triangulate turns an interleaved corner index array into a triangle list
// with the same stride. Faces listed in vcount are fanned around their first
// corner: k corners yield k-2 triangles (c0, ci, ci+1). Faces with fewer
// than three corners produce nothing. A nil vcount means the input is
// already a triangle list.
func Triangulate(indices []int32, vcount []int, stride int) ([]int32, error) {
	if stride <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStride, stride)
	}

	if vcount == nil {
		if len(indices)%(3*stride) != 0 {
			return nil, fmt.Errorf("%w: %d indices, stride %d", ErrIndexCount, len(indices), stride)
		}
		return indices, nil
	}

	corners, tris := 0, 0
	for _, k := range vcount {
		if k < 0 {
			return nil, fmt.Errorf("%w: %d", ErrNegativeCorners, k)
		}
		corners += k
		if k >= 3 {
			tris += k - 2
		}
	}
	if corners*stride != len(indices) {
		return nil, fmt.Errorf("%w: %d corners × %d != %d indices",
			ErrVCountMismatch, corners, stride, len(indices))
	}

	out := make([]int32, 0, tris*3*stride)
	base := 0
	for _, k := range vcount {
		face := indices[base*stride : (base+k)*stride]
		first := face[:stride]
		for i := 1; i+1 < k; i++ {
			out = append(out, first...)
			out = append(out, face[i*stride:(i+2)*stride]...)
		}
		base += k
	}
	return out, nil
}
