package geometry

import (
	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/spatial/r3"
)

// smoothNormals sets every vertex normal to the area-weighted sum of the
// face normals around it. Sums are kept in float64. When negate is set the
// result is flipped to match a mirrored root.
func smoothNormals(vertices []Vertex, indices []uint32, negate bool) {
	acc := make([]r3.Vec, len(vertices))
	for t := 0; t+2 < len(indices); t += 3 {
		i0, i1, i2 := indices[t], indices[t+1], indices[t+2]
		p0 := toR3(vertices[i0].Position)
		e1 := r3.Sub(toR3(vertices[i1].Position), p0)
		e2 := r3.Sub(toR3(vertices[i2].Position), p0)
		// the cross product length is twice the triangle area
		n := r3.Cross(e1, e2)
		acc[i0] = r3.Add(acc[i0], n)
		acc[i1] = r3.Add(acc[i1], n)
		acc[i2] = r3.Add(acc[i2], n)
	}

	sign := 1.0
	if negate {
		sign = -1
	}
	for i, n := range acc {
		l := r3.Norm(n)
		if l == 0 {
			vertices[i].Normal = mgl32.Vec3{}
			continue
		}
		n = r3.Scale(sign/l, n)
		vertices[i].Normal = mgl32.Vec3{float32(n.X), float32(n.Y), float32(n.Z)}
	}
}

func toR3(v mgl32.Vec3) r3.Vec {
	return r3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
}
