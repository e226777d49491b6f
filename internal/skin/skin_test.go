package skin

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Faultbox/meshforge/internal/diag"
	"github.com/Faultbox/meshforge/internal/geometry"
	"github.com/Faultbox/meshforge/pkg/scene"
)

func slots(v SkinVertex) map[int32]float32 {
	out := make(map[int32]float32)
	for i := 0; i < MaxInfluences && i < v.Count; i++ {
		out[v.Bones[i]] = v.Weights[i]
	}
	return out
}

func TestSkinVertex_Eviction(t *testing.T) {
	var v SkinVertex
	v.Accept(0, 0.1)
	v.Accept(1, 0.3)
	v.Accept(2, 0.25)
	v.Accept(3, 0.2)
	v.Accept(4, 0.15)

	assert.Equal(t, 5, v.Count)
	assert.Equal(t, map[int32]float32{1: 0.3, 2: 0.25, 3: 0.2, 4: 0.15}, slots(v))
}

func TestSkinVertex_EvictionRules(t *testing.T) {
	tests := []struct {
		name  string
		bones []int32
		ws    []float32
		want  map[int32]float32
	}{
		{
			name:  "equal weight does not replace",
			bones: []int32{0, 1, 2, 3, 4},
			ws:    []float32{0.2, 0.2, 0.2, 0.2, 0.2},
			want:  map[int32]float32{0: 0.2, 1: 0.2, 2: 0.2, 3: 0.2},
		},
		{
			name:  "first minimum on ties is replaced",
			bones: []int32{0, 1, 2, 3, 4},
			ws:    []float32{0.3, 0.1, 0.4, 0.1, 0.5},
			want:  map[int32]float32{0: 0.3, 4: 0.5, 2: 0.4, 3: 0.1},
		},
		{
			name:  "true minimum beyond a larger slot",
			bones: []int32{0, 1, 2, 3, 4},
			ws:    []float32{0.4, 0.3, 0.2, 0.1, 0.15},
			want:  map[int32]float32{0: 0.4, 1: 0.3, 2: 0.2, 4: 0.15},
		},
		{
			name:  "smaller weight is ignored",
			bones: []int32{0, 1, 2, 3, 4},
			ws:    []float32{0.4, 0.3, 0.2, 0.1, 0.05},
			want:  map[int32]float32{0: 0.4, 1: 0.3, 2: 0.2, 3: 0.1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v SkinVertex
			for i := range tt.bones {
				v.Accept(tt.bones[i], tt.ws[i])
			}
			assert.Equal(t, tt.want, slots(v))
		})
	}
}

func TestSkinVertex_EvictionIsDeterministic(t *testing.T) {
	run := func() SkinVertex {
		var v SkinVertex
		for i, w := range []float32{0.5, 0.1, 0.1, 0.1, 0.2, 0.1, 0.3} {
			v.Accept(int32(i), w)
		}
		return v
	}
	first := run()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, run())
	}
}

func TestSkinVertex_Normalize(t *testing.T) {
	var few SkinVertex
	few.Accept(0, 0.3)
	few.Accept(1, 0.2)
	few.Normalize()
	assert.Equal(t, [MaxInfluences]float32{0.3, 0.2, 0, 0}, few.Weights, "fewer than four keep authored weights")

	var full SkinVertex
	for i, w := range []float32{0.1, 0.3, 0.25, 0.2, 0.15} {
		full.Accept(int32(i), w)
	}
	full.Normalize()
	assert.InDelta(t, 1, full.Sum(), 1e-5)
	assert.InDelta(t, 0.3/0.9, full.Weights[1], 1e-6)
}

func TestBind_FansOutThroughRemap(t *testing.T) {
	vertices := make([]geometry.Vertex, 3)
	remap := geometry.RemapTable{}
	remap.Add(0, 0)
	remap.Add(0, 2) // source vertex 0 was split into outputs 0 and 2
	remap.Add(1, 1)

	facts := []Fact{
		{VertexID: 0, Bone: 0, Weight: 0.1},
		{VertexID: 0, Bone: 1, Weight: 0.3},
		{VertexID: 0, Bone: 2, Weight: 0.25},
		{VertexID: 0, Bone: 3, Weight: 0.2},
		{VertexID: 0, Bone: 4, Weight: 0.15},
		{VertexID: 1, Bone: 7, Weight: 0.5},
		{VertexID: 9, Bone: 1, Weight: 1},
	}

	out := Bind(vertices, facts, remap)
	require.Len(t, out, 3)

	for _, i := range []int{0, 2} {
		got := slots(out[i])
		assert.ElementsMatch(t, []int32{1, 2, 3, 4}, keys(got))
		assert.InDelta(t, 1, out[i].Sum(), 1e-5)
	}
	assert.Equal(t, out[0], out[2])

	assert.Equal(t, 1, out[1].Count)
	assert.Equal(t, float32(0.5), out[1].Weights[0], "authored weight kept")
}

func keys(m map[int32]float32) []int32 {
	out := make([]int32, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

type registry map[string]int

func (r registry) LookupJoint(name string) (int, string, bool) {
	e, ok := r[name]
	return e, name, ok
}

func TestResolveJoints_TokenJoin(t *testing.T) {
	ctrl := &scene.Controller{
		ID:         "skin",
		Joints:     make([]scene.Joint, 3),
		NameTokens: []string{"Hip", "Left", "Arm", "Head"},
	}
	reg := registry{"Hip": 1, "Left Arm": 2, "Head": 3}

	report := diag.NewReport(zaptest.NewLogger(t))
	joints := ResolveJoints(ctrl, false, reg, report)
	require.Len(t, joints, 3)

	assert.Equal(t, "Hip", joints[0].Name)
	assert.Equal(t, "Left Arm", joints[1].Name)
	assert.Equal(t, 2, joints[1].EntityIndex)
	assert.Equal(t, "Head", joints[2].Name)
	assert.Equal(t, 0, report.Len())
}

func TestResolveJoints_Unresolved(t *testing.T) {
	ctrl := &scene.Controller{
		ID:         "skin",
		Joints:     make([]scene.Joint, 3),
		NameTokens: []string{"Hip", "Ghost", "Head"},
		Facts: []scene.WeightFact{
			{Vertex: 0, Joint: 0, Weight: 0.5},
			{Vertex: 0, Joint: 1, Weight: 0.5},
			{Vertex: 1, Joint: 2, Weight: 1},
			{Vertex: 1, Joint: 5, Weight: 1},
		},
	}
	reg := registry{"Hip": 1, "Head": 3}

	report := diag.NewReport(zaptest.NewLogger(t))
	joints := ResolveJoints(ctrl, false, reg, report)

	assert.False(t, joints[1].Resolved())
	assert.Equal(t, "Ghost", joints[1].Name)
	assert.True(t, joints[2].Resolved(), "an unresolved joint consumes one token")
	assert.Equal(t, 1, report.Count(diag.KindUnresolvedBone))

	facts := Facts(ctrl, joints, report)
	assert.Equal(t, []Fact{
		{VertexID: 0, Bone: 0, Weight: 0.5},
		{VertexID: 1, Bone: 2, Weight: 1},
	}, facts)
	assert.Equal(t, 1, report.Count(diag.KindIndexRange))
}

func TestResolveJoints_DirectNames(t *testing.T) {
	ctrl := &scene.Controller{Joints: []scene.Joint{{Name: "Left Arm"}}}
	joints := ResolveJoints(ctrl, false, registry{"Left Arm": 4}, nil)
	assert.Equal(t, 4, joints[0].EntityIndex)
}

func TestResolveJoints_BindPose(t *testing.T) {
	rowMajor := func(m mgl32.Mat4) []float32 {
		t := m.Transpose()
		return t[:]
	}
	inv := mgl32.Translate3D(0, -2, 0)
	shape := mgl32.Scale3D(2, 2, 2)

	ctrl := &scene.Controller{
		BindShape: rowMajor(shape),
		Joints:    []scene.Joint{{Name: "Hip", InverseBind: rowMajor(inv)}},
	}
	joints := ResolveJoints(ctrl, false, registry{"Hip": 0}, nil)
	assert.Equal(t, inv, joints[0].InverseBind)
	assert.Equal(t, inv.Mul4(shape), joints[0].BindPose)

	zUp := ResolveJoints(ctrl, true, registry{"Hip": 0}, nil)
	assert.Equal(t, mgl32.Translate3D(0, 0, -2), zUp[0].InverseBind)
}

func TestBinder_Bind(t *testing.T) {
	buf := &geometry.Buffer{Vertices: make([]geometry.Vertex, 2), Remap: geometry.RemapTable{0: {0}, 1: {1}}}
	ctrl := &scene.Controller{
		ID:     "skin",
		Joints: []scene.Joint{{Name: "A"}, {Name: "B"}},
		Facts:  []scene.WeightFact{{Vertex: 0, Joint: 0, Weight: 1}, {Vertex: 1, Joint: 1, Weight: 1}},
	}

	tests := []struct {
		gpuBones int
		software bool
	}{
		{0, false},
		{3, false},
		{2, true},
	}
	for _, tt := range tests {
		b := NewBinder(Options{GPUBonesCount: tt.gpuBones}, zaptest.NewLogger(t), nil)
		m := b.Bind(ctrl, []*geometry.Buffer{buf}, registry{"A": 1, "B": 2})
		assert.Equal(t, tt.software, m.SoftwareSkinning, "gpu bones %d", tt.gpuBones)
		require.Len(t, m.Buffers, 1)
		assert.Same(t, buf, m.Buffers[0].Source)
		assert.Equal(t, int32(1), m.Buffers[0].Vertices[1].Bones[0])
	}
}

func TestBinder_ReportsUnweightedVertices(t *testing.T) {
	first := &geometry.Buffer{Vertices: make([]geometry.Vertex, 3), Remap: geometry.RemapTable{0: {0}, 1: {1}, 2: {2}}}
	second := &geometry.Buffer{Vertices: make([]geometry.Vertex, 2), Remap: geometry.RemapTable{0: {0}, 3: {1}}}
	ctrl := &scene.Controller{
		ID:     "skin",
		Joints: []scene.Joint{{Name: "A"}},
		Facts:  []scene.WeightFact{{Vertex: 0, Joint: 0, Weight: 1}, {Vertex: 1, Joint: 0, Weight: 1}},
	}

	report := diag.NewReport(zaptest.NewLogger(t))
	m := NewBinder(Options{}, zaptest.NewLogger(t), report).Bind(ctrl, []*geometry.Buffer{first, second}, registry{"A": 1})
	require.Len(t, m.Buffers, 2)
	assert.Zero(t, m.Buffers[0].Vertices[2].Count)
	assert.Zero(t, m.Buffers[1].Vertices[1].Count)

	require.Equal(t, 1, report.Count(diag.KindUnweightedVertex), "one issue per controller")
	issue := report.Issues()[0]
	assert.Equal(t, "skin", issue.Element)
	assert.Contains(t, issue.Message, "2 vertices")
	assert.ErrorIs(t, issue, diag.ErrUnweightedVertex)
}

func TestBinder_FullyWeightedIsQuiet(t *testing.T) {
	buf := &geometry.Buffer{Vertices: make([]geometry.Vertex, 1), Remap: geometry.RemapTable{0: {0}}}
	ctrl := &scene.Controller{
		ID:     "skin",
		Joints: []scene.Joint{{Name: "A"}},
		Facts:  []scene.WeightFact{{Vertex: 0, Joint: 0, Weight: 1}},
	}
	report := diag.NewReport(zaptest.NewLogger(t))
	NewBinder(Options{}, zaptest.NewLogger(t), report).Bind(ctrl, []*geometry.Buffer{buf}, registry{"A": 1})
	assert.Zero(t, report.Len())
}

func TestBind_KeepsTangentFrame(t *testing.T) {
	vs := []geometry.Vertex{{
		Normal:   mgl32.Vec3{0, 0, 1},
		Tangent:  mgl32.Vec3{1, 0, 0},
		Binormal: mgl32.Vec3{0, -1, 0},
		TangentW: -1,
	}}
	out := Bind(vs, []Fact{{VertexID: 0, Bone: 2, Weight: 1}}, geometry.RemapTable{0: {0}})
	require.Len(t, out, 1)
	assert.Equal(t, vs[0].Tangent, out[0].Tangent)
	assert.Equal(t, vs[0].Binormal, out[0].Binormal)
	assert.Equal(t, float32(-1), out[0].TangentW)
	assert.Equal(t, int32(2), out[0].Bones[0])
}
