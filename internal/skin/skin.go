// Package skin binds joint influences to assembled vertices.
package skin

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/meshforge/internal/geometry"
)

// MaxInfluences is the number of bone slots per vertex.
const MaxInfluences = 4

// DefaultGPUBonesCount is the joint count at which a mesh falls back to
// software skinning.
const DefaultGPUBonesCount = 64

// Fact is one authored influence: source vertex, joint index, weight.
type Fact struct {
	VertexID uint32
	Bone     int32
	Weight   float32
}

// SkinVertex is an output vertex with up to four bone influences.
type SkinVertex struct {
	geometry.Vertex
	Bones   [MaxInfluences]int32
	Weights [MaxInfluences]float32
	Count   int // influences offered to the vertex
}

// Accept offers one influence. The first four fill the slots in order.
// After that the smallest slot (first on ties) is replaced only when w is
// strictly larger.
func (v *SkinVertex) Accept(bone int32, w float32) {
	n := v.Count
	v.Count++
	if n < MaxInfluences {
		v.Bones[n] = bone
		v.Weights[n] = w
		return
	}
	m := 0
	for i := 1; i < MaxInfluences; i++ {
		if v.Weights[i] < v.Weights[m] {
			m = i
		}
	}
	if w > v.Weights[m] {
		v.Bones[m] = bone
		v.Weights[m] = w
	}
}

// Sum returns the total of the retained weights.
func (v *SkinVertex) Sum() float32 {
	var s float32
	for _, w := range v.Weights {
		s += w
	}
	return s
}

// Normalize rescales the retained weights to sum to one. Vertices offered
// fewer than four influences keep their authored weights.
func (v *SkinVertex) Normalize() {
	if v.Count < MaxInfluences {
		return
	}
	s := v.Sum()
	if s <= 0 {
		return
	}
	for i := range v.Weights {
		v.Weights[i] /= s
	}
}

// Bind fans every fact out to the output vertices created from its source
// vertex and packs the influences. Facts are applied in order.
func Bind(vertices []geometry.Vertex, facts []Fact, remap geometry.RemapTable) []SkinVertex {
	out := make([]SkinVertex, len(vertices))
	for i, v := range vertices {
		out[i].Vertex = v
	}
	for _, f := range facts {
		for _, idx := range remap.Lookup(int32(f.VertexID)) {
			if int(idx) < len(out) {
				out[idx].Accept(f.Bone, f.Weight)
			}
		}
	}
	for i := range out {
		out[i].Normalize()
	}
	return out
}

// Joint is a resolved skin joint.
type Joint struct {
	Name        string
	InverseBind mgl32.Mat4
	BindPose    mgl32.Mat4 // InverseBind × BindShape
	EntityIndex int        // -1 when unresolved
}

// Resolved reports whether the joint found its entity.
func (j *Joint) Resolved() bool {
	return j.EntityIndex >= 0
}
