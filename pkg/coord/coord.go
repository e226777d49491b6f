// Package coord normalizes authoring-tool coordinate conventions (up axis and
// handedness) into the engine's Y-up space.
//
// Every function here is pure. The Y/Z swap and the X mirror are both
// self-inverse, so applying a conversion twice returns the input.
package coord

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// UpAxis names as written by authoring tools.
const (
	UpAxisX = "X_UP"
	UpAxisY = "Y_UP"
	UpAxisZ = "Z_UP"
)

// UnitMeter is the unit name that needs no root scaling.
const UnitMeter = "meter"

// Convention describes how source data must be remapped.
type Convention struct {
	ZUp   bool // swap Y and Z on every vector and matrix
	FlipX bool // mirror X on the root to fix handedness
}

// ConventionFor derives the convention from a declared up-axis string.
// An empty string means the document did not declare one.
func ConventionFor(upAxis string) Convention {
	switch upAxis {
	case "":
		return Convention{}
	case UpAxisZ:
		return Convention{ZUp: true}
	default:
		return Convention{FlipX: true}
	}
}

// ReverseWinding reports whether triangle indices must be emitted backwards.
// True when exactly one of ZUp and FlipX holds.
func (c Convention) ReverseWinding() bool {
	return c.ZUp != c.FlipX
}

// NormalizeVector swaps Y and Z when zUp is set.
func NormalizeVector(v mgl32.Vec3, zUp bool) mgl32.Vec3 {
	if !zUp {
		return v
	}
	return mgl32.Vec3{v[0], v[2], v[1]}
}

// NormalizeXYZ is NormalizeVector for three loose components.
func NormalizeXYZ(x, y, z float32, zUp bool) mgl32.Vec3 {
	return NormalizeVector(mgl32.Vec3{x, y, z}, zUp)
}

// swapYZ is the permutation matrix that exchanges Y and Z.
var swapYZ = mgl32.Mat4{
	1, 0, 0, 0,
	0, 0, 1, 0,
	0, 1, 0, 0,
	0, 0, 0, 1,
}

// NormalizeMatrix conjugates m by the Y/Z swap when zUp is set (S·m·S).
// Rows and columns 1 and 2 trade places, so translation, rotation and scale
// all land on the swapped axes.
func NormalizeMatrix(m mgl32.Mat4, zUp bool) mgl32.Mat4 {
	if !zUp {
		return m
	}
	return swapYZ.Mul4(m).Mul4(swapYZ)
}

// NormalizeQuat remaps a rotation into swapped space. Conjugating a rotation
// by a reflection swaps the axis components and negates the angle, which for
// a unit quaternion means swapping and negating the vector part.
func NormalizeQuat(q mgl32.Quat, zUp bool) mgl32.Quat {
	if !zUp {
		return q
	}
	return mgl32.Quat{W: q.W, V: mgl32.Vec3{-q.V[0], -q.V[2], -q.V[1]}}
}

// NormalizeAxisAngle returns the rotation matrix for an axis-angle pair given
// in source space. Angles are in degrees.
func NormalizeAxisAngle(axis mgl32.Vec3, degrees float32, zUp bool) mgl32.Mat4 {
	angle := mgl32.DegToRad(degrees)
	if zUp {
		axis = NormalizeVector(axis, true)
		angle = -angle
	}
	return mgl32.QuatRotate(angle, axis).Normalize().Mat4()
}

// MirrorX negates the X component.
func MirrorX(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{-v[0], v[1], v[2]}
}

// RootCorrection builds the matrix pre-multiplied into the synthetic root node
// so every descendant stays consistent: an X mirror for handedness, a 180°
// turn around Y for Z-up sources, then the unit scale.
func RootCorrection(c Convention, unitName string, unitScale float32) mgl32.Mat4 {
	m := mgl32.Ident4()
	if c.FlipX {
		m = mgl32.Scale3D(-1, 1, 1)
	}
	if c.ZUp {
		m = m.Mul4(mgl32.HomogRotate3DY(gomath.Pi))
	}
	if unitName != UnitMeter {
		m = m.Mul4(UnitScale(unitName, unitScale))
	}
	return m
}

// UnitScale returns the uniform scale matrix for a declared unit. A unit
// named meter, or a non-positive meter value, scales by one.
func UnitScale(unitName string, meter float32) mgl32.Mat4 {
	if unitName == UnitMeter || meter <= 0 {
		return mgl32.Ident4()
	}
	return mgl32.Scale3D(meter, meter, meter)
}

// FromRowMajor loads 16 floats written row by row, as interchange formats
// store them, into a column-major matrix.
func FromRowMajor(f []float32) mgl32.Mat4 {
	var m mgl32.Mat4
	if len(f) < 16 {
		return mgl32.Ident4()
	}
	copy(m[:], f[:16])
	return m.Transpose()
}

// LoadMatrix reads a row-major source matrix and normalizes it.
func LoadMatrix(f []float32, zUp bool) mgl32.Mat4 {
	return NormalizeMatrix(FromRowMajor(f), zUp)
}
