package geometry

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/spatial/r3"
)

// minTexArea is the smallest texcoord determinant a triangle needs to
// contribute a tangent frame.
const minTexArea = 1e-12

// tangents computes a per-vertex tangent frame from positions, normals and
// texcoord set 0. Triangle directions are summed per vertex, the tangent is
// made orthogonal to the normal and the binormal is rebuilt from the cross
// product with the handedness stored in TangentW. flip inverts the
// handedness for normal maps authored with a downward green channel.
func tangents(vertices []Vertex, indices []uint32, flip bool) {
	accT := make([]r3.Vec, len(vertices))
	accB := make([]r3.Vec, len(vertices))
	for t := 0; t+2 < len(indices); t += 3 {
		i0, i1, i2 := indices[t], indices[t+1], indices[t+2]
		v0, v1, v2 := &vertices[i0], &vertices[i1], &vertices[i2]

		p0 := toR3(v0.Position)
		e1 := r3.Sub(toR3(v1.Position), p0)
		e2 := r3.Sub(toR3(v2.Position), p0)
		du1 := float64(v1.Tex0[0] - v0.Tex0[0])
		dv1 := float64(v1.Tex0[1] - v0.Tex0[1])
		du2 := float64(v2.Tex0[0] - v0.Tex0[0])
		dv2 := float64(v2.Tex0[1] - v0.Tex0[1])

		det := du1*dv2 - du2*dv1
		if math.Abs(det) < minTexArea {
			continue
		}
		r := 1 / det
		tan := r3.Scale(r, r3.Sub(r3.Scale(dv2, e1), r3.Scale(dv1, e2)))
		bin := r3.Scale(r, r3.Sub(r3.Scale(du1, e2), r3.Scale(du2, e1)))
		for _, i := range [3]uint32{i0, i1, i2} {
			accT[i] = r3.Add(accT[i], tan)
			accB[i] = r3.Add(accB[i], bin)
		}
	}

	for i := range vertices {
		v := &vertices[i]
		n := toR3(v.Normal)
		if r3.Norm(n) == 0 {
			n = r3.Vec{Z: 1}
		} else {
			n = r3.Unit(n)
		}

		t := r3.Sub(accT[i], r3.Scale(r3.Dot(n, accT[i]), n))
		if r3.Norm(t) < minTexArea {
			t = perpendicular(n)
		}
		t = r3.Unit(t)

		w := 1.0
		if r3.Dot(r3.Cross(n, t), accB[i]) < 0 {
			w = -1
		}
		if flip {
			w = -w
		}

		v.Tangent = fromR3(t)
		v.Binormal = fromR3(r3.Scale(w, r3.Cross(n, t)))
		v.TangentW = float32(w)
	}
}

// perpendicular returns a vector orthogonal to the unit vector n, built
// against the axis n is least aligned with.
func perpendicular(n r3.Vec) r3.Vec {
	axis := r3.Vec{X: 1}
	if math.Abs(n.X) > math.Abs(n.Y) {
		axis = r3.Vec{Y: 1}
	}
	return r3.Cross(axis, n)
}

func fromR3(v r3.Vec) mgl32.Vec3 {
	return mgl32.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}
