package geometry

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Faultbox/meshforge/internal/diag"
	"github.com/Faultbox/meshforge/pkg/coord"
	"github.com/Faultbox/meshforge/pkg/scene"
)

func quadPositions() *AttributeBuffer {
	return &AttributeBuffer{Name: "pos", Stride: 3, Data: []float32{
		0, 0, 0,
		1, 0, 0,
		1, 1, 0,
		0, 1, 0,
	}}
}

func assemble(t *testing.T, opts Options, groups ...TriangleGroup) ([]*Buffer, *diag.Report) {
	t.Helper()
	report := diag.NewReport(zaptest.NewLogger(t))
	a := NewAssembler(opts, zaptest.NewLogger(t), report)
	return a.Assemble(Input{Name: "mesh", Groups: groups}), report
}

func TestAssemble_Quad(t *testing.T) {
	g := NewTriangleGroup("mat", 1)
	g.Bind(AttrPosition, 0, quadPositions())
	g.Indices = []int32{0, 1, 2, 3}
	g.VCount = []int{4}

	bufs, report := assemble(t, Options{}, g)
	require.Len(t, bufs, 1)
	b := bufs[0]

	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, b.Indices)
	assert.Len(t, b.Vertices, 4)
	assert.Equal(t, "mat", b.Material)
	assert.Equal(t, 2, b.TriangleCount())
	assert.False(t, b.WideIndices())
	assert.True(t, b.GeneratedNormals)
	assert.Equal(t, 0, report.Len())

	for i, v := range b.Vertices {
		assert.Equal(t, []uint32{uint32(i)}, b.Remap.Lookup(int32(i)))
		assert.InDelta(t, 1, v.Normal.Z(), 1e-6)
	}
}

func TestAssemble_Dedup(t *testing.T) {
	uv := &AttributeBuffer{Name: "uv", Stride: 2, Data: []float32{0, 0, 1, 0, 1, 1, 0, 1, 0.5, 0.5}}
	g := NewTriangleGroup("mat", 2)
	g.Bind(AttrPosition, 0, quadPositions())
	g.Bind(AttrTex0, 1, uv)
	// two triangles share corners (0,0) and (2,2); position 0 also appears
	// with a second texcoord
	g.Indices = []int32{
		0, 0, 1, 1, 2, 2,
		0, 0, 2, 2, 3, 3,
		0, 4, 3, 3, 2, 2,
	}

	bufs, _ := assemble(t, Options{}, g)
	require.Len(t, bufs, 1)
	b := bufs[0]

	assert.Len(t, b.Vertices, 5)
	assert.LessOrEqual(t, len(b.Vertices), len(g.Indices)/g.Stride)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3, 4, 3, 2}, b.Indices)
	assert.Equal(t, []uint32{0, 4}, b.Remap.Lookup(0))
	assert.Equal(t, []uint32{2}, b.Remap.Lookup(2))

	seen := make(map[Vertex]bool)
	for _, v := range b.Vertices {
		assert.False(t, seen[v], "duplicate vertex %v", v)
		seen[v] = true
	}
}

func TestAssemble_ZUp(t *testing.T) {
	pos := &AttributeBuffer{Stride: 3, Data: []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}}
	g := NewTriangleGroup("", 1)
	g.Bind(AttrPosition, 0, pos)
	g.Indices = []int32{0, 1, 2}

	bufs, _ := assemble(t, Options{Convention: coord.ConventionFor(coord.UpAxisZ)}, g)
	require.Len(t, bufs, 1)
	b := bufs[0]

	assert.Equal(t, mgl32.Vec3{1, 3, 2}, b.Vertices[0].Position)
	assert.Equal(t, mgl32.Vec3{4, 6, 5}, b.Vertices[1].Position)
	assert.Equal(t, []uint32{2, 1, 0}, b.Indices, "z-up reverses winding")
}

func TestAssemble_Winding(t *testing.T) {
	tests := []struct {
		conv coord.Convention
		want []uint32
	}{
		{coord.Convention{}, []uint32{0, 1, 2}},
		{coord.Convention{ZUp: true}, []uint32{2, 1, 0}},
		{coord.Convention{FlipX: true}, []uint32{2, 1, 0}},
		{coord.Convention{ZUp: true, FlipX: true}, []uint32{0, 1, 2}},
	}
	for _, tt := range tests {
		g := NewTriangleGroup("", 1)
		g.Bind(AttrPosition, 0, quadPositions())
		g.Indices = []int32{0, 1, 2}
		bufs, _ := assemble(t, Options{Convention: tt.conv}, g)
		require.Len(t, bufs, 1)
		assert.Equal(t, tt.want, bufs[0].Indices, "%+v", tt.conv)
	}
}

func TestAssemble_GeneratedNormalsFollowMirror(t *testing.T) {
	for _, conv := range []coord.Convention{{}, {FlipX: true}} {
		g := NewTriangleGroup("", 1)
		g.Bind(AttrPosition, 0, quadPositions())
		g.Indices = []int32{0, 1, 2}
		bufs, _ := assemble(t, Options{Convention: conv}, g)
		require.Len(t, bufs, 1)
		for _, v := range bufs[0].Vertices {
			assert.InDelta(t, 1, v.Normal.Z(), 1e-6, "%+v", conv)
		}
	}
}

func TestAssemble_AuthoredNormals(t *testing.T) {
	nrm := &AttributeBuffer{Stride: 3, Data: []float32{0, 0, 2}}
	g := NewTriangleGroup("", 2)
	g.Bind(AttrPosition, 0, quadPositions())
	g.Bind(AttrNormal, 1, nrm)
	g.Indices = []int32{0, 0, 1, 0, 2, 0}

	bufs, _ := assemble(t, Options{Convention: coord.Convention{ZUp: true}}, g)
	require.Len(t, bufs, 1)
	assert.False(t, bufs[0].GeneratedNormals)
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, bufs[0].Vertices[0].Normal, "normalized and axis swapped")
}

func TestAssemble_FlipV(t *testing.T) {
	uv := &AttributeBuffer{Stride: 2, Data: []float32{0.25, 0.25, 0.5, 0.5, 1, 1}}

	single := NewTriangleGroup("", 1)
	single.Bind(AttrPosition, 0, quadPositions())
	single.Bind(AttrTex0, 0, uv)
	single.Indices = []int32{0, 1, 2}

	multi := NewTriangleGroup("", 2)
	multi.Bind(AttrPosition, 0, quadPositions())
	multi.Bind(AttrTex0, 1, uv)
	multi.Indices = []int32{0, 0, 1, 1, 2, 2}

	bufs, _ := assemble(t, Options{}, single, multi)
	require.Len(t, bufs, 2)
	assert.Equal(t, mgl32.Vec2{0.25, 0.25}, bufs[0].Vertices[0].Tex0)
	assert.Equal(t, mgl32.Vec2{0.25, 0.75}, bufs[1].Vertices[0].Tex0)
}

func TestAssemble_TexCoord2(t *testing.T) {
	uv := &AttributeBuffer{Stride: 2, Data: []float32{0, 0, 1, 0, 1, 1}}
	lightmap := &AttributeBuffer{Stride: 2, Data: []float32{0.5, 0.5}}
	g := NewTriangleGroup("", 3)
	g.Bind(AttrPosition, 0, quadPositions())
	g.Bind(AttrTex0, 1, uv)
	g.Bind(AttrTex1, 2, lightmap)
	g.Indices = []int32{0, 0, 0, 1, 1, 0, 2, 2, 0}

	bufs, _ := assemble(t, Options{}, g)
	require.Len(t, bufs, 1)
	assert.False(t, bufs[0].HasTex1)
	assert.Equal(t, mgl32.Vec2{}, bufs[0].Vertices[0].Tex1)

	bufs, _ = assemble(t, Options{LoadTexCoord2: true}, g)
	require.Len(t, bufs, 1)
	assert.True(t, bufs[0].HasTex1)
	assert.Equal(t, mgl32.Vec2{0.5, 0.5}, bufs[0].Vertices[0].Tex1)
}

func TestAssemble_Diagnostics(t *testing.T) {
	t.Run("bad normal stride falls back to generated normals", func(t *testing.T) {
		g := NewTriangleGroup("", 2)
		g.Bind(AttrPosition, 0, quadPositions())
		g.Bind(AttrNormal, 1, &AttributeBuffer{Name: "n", Stride: 2, Data: []float32{0, 1}})
		g.Indices = []int32{0, 0, 1, 0, 2, 0}

		bufs, report := assemble(t, Options{}, g)
		require.Len(t, bufs, 1)
		assert.True(t, bufs[0].GeneratedNormals)
		assert.Equal(t, 1, report.Count(diag.KindStride))
	})

	t.Run("bad position stride drops group", func(t *testing.T) {
		g := NewTriangleGroup("", 1)
		g.Bind(AttrPosition, 0, &AttributeBuffer{Stride: 2, Data: []float32{0, 0, 1, 1, 2, 2}})
		g.Indices = []int32{0, 1, 2}

		bufs, report := assemble(t, Options{}, g)
		assert.Empty(t, bufs)
		assert.Equal(t, 1, report.Count(diag.KindStride))
	})

	t.Run("missing positions drop group", func(t *testing.T) {
		g := NewTriangleGroup("", 1)
		g.Indices = []int32{0, 1, 2}

		bufs, report := assemble(t, Options{}, g)
		assert.Empty(t, bufs)
		assert.Equal(t, 1, report.Count(diag.KindMissingBuffer))
	})

	t.Run("out of range corner drops triangle", func(t *testing.T) {
		g := NewTriangleGroup("", 1)
		g.Bind(AttrPosition, 0, quadPositions())
		g.Indices = []int32{0, 1, 2, 0, 2, 9, -1, 1, 2}

		bufs, report := assemble(t, Options{}, g)
		require.Len(t, bufs, 1)
		assert.Equal(t, []uint32{0, 1, 2}, bufs[0].Indices)
		assert.Equal(t, 1, report.Count(diag.KindIndexRange))
	})

	t.Run("vcount mismatch drops group", func(t *testing.T) {
		g := NewTriangleGroup("", 1)
		g.Bind(AttrPosition, 0, quadPositions())
		g.Indices = []int32{0, 1, 2}
		g.VCount = []int{4}

		bufs, report := assemble(t, Options{}, g)
		assert.Empty(t, bufs)
		require.Equal(t, 1, report.Len())
		assert.ErrorIs(t, report.Err(), diag.ErrIndexRange)
	})
}

func TestAssemble_BoundsAndUVTile(t *testing.T) {
	uv := &AttributeBuffer{Stride: 2, Data: []float32{0, 0, 20, 0, 1, 1}}
	g := NewTriangleGroup("", 1)
	g.Bind(AttrPosition, 0, &AttributeBuffer{Stride: 3, Data: []float32{-100, 0, 0, 100, 50, 0, 0, 0, 200}})
	g.Bind(AttrTex0, 0, uv)
	g.Indices = []int32{0, 1, 2}

	bufs, _ := assemble(t, Options{UnitScale: 0.01, MaxUVTile: DefaultMaxUVTile}, g)
	require.Len(t, bufs, 1)
	b := bufs[0]

	assert.False(t, b.Bounds.Empty())
	assert.True(t, b.Bounds.Min.ApproxEqual(mgl32.Vec3{-1, 0, 0}))
	assert.True(t, b.Bounds.Max.ApproxEqual(mgl32.Vec3{1, 0.5, 2}))
	assert.True(t, b.UVOverflow)

	bufs, _ = assemble(t, Options{}, g)
	assert.False(t, bufs[0].UVOverflow, "zero limit disables the check")
}

func TestFromScene(t *testing.T) {
	g := &scene.Geometry{
		ID: "mesh",
		Sources: map[string]*scene.Source{
			"p":  {ID: "p", Stride: 3, Data: []float32{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0}},
			"n":  {ID: "n", Stride: 3, Data: []float32{0, 0, 1}},
			"t0": {ID: "t0", Stride: 2, Data: []float32{0, 0}},
			"t1": {ID: "t1", Stride: 2, Data: []float32{1, 1}},
		},
		VerticesID:   "v",
		VertexInputs: []scene.Input{{Semantic: scene.SemanticPosition, Source: "p"}},
		Primitives: []*scene.Primitive{
			{
				Kind:     scene.PrimitivePolylist,
				Material: "skin",
				Inputs: []scene.Input{
					{Semantic: scene.SemanticVertex, Source: "v", Offset: 0},
					{Semantic: scene.SemanticNormal, Source: "n", Offset: 1},
					{Semantic: scene.SemanticTexCoord, Source: "t0", Offset: 2},
					{Semantic: scene.SemanticTexCoord, Source: "t1", Offset: 3, Set: 1},
				},
				VCount: []int{4},
				P:      []int32{0, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0},
			},
			{Kind: scene.PrimitiveUnsupported, Tag: "lines"},
			{
				Kind:   scene.PrimitiveTriangles,
				Inputs: []scene.Input{{Semantic: scene.SemanticVertex, Source: "v"}, {Semantic: scene.SemanticNormal, Source: "gone", Offset: 1}},
				VCount: []int{3},
				P:      []int32{0, 0, 1, 0, 2, 0},
			},
		},
	}

	report := diag.NewReport(zaptest.NewLogger(t))
	in := FromScene(g, report)
	assert.Equal(t, "mesh", in.Name)
	require.Len(t, in.Groups, 2)
	assert.Equal(t, 1, report.Count(diag.KindUnsupportedPrimitive))
	assert.Equal(t, 1, report.Count(diag.KindMissingBuffer))

	poly := in.Groups[0]
	assert.Equal(t, "skin", poly.Material)
	assert.Equal(t, 4, poly.Stride)
	assert.Equal(t, [numAttributes]int{0, 1, 2, 3}, poly.Offsets)
	assert.Equal(t, "t1", poly.Buffers[AttrTex1].Name)
	assert.Equal(t, []int{4}, poly.VCount)

	tri := in.Groups[1]
	assert.Nil(t, tri.VCount, "triangles ignore vcount")
	assert.Equal(t, -1, tri.Offsets[AttrNormal])
	assert.Same(t, poly.Buffers[AttrPosition], tri.Buffers[AttrPosition], "sources are shared")

	bufs := NewAssembler(Options{}, nil, report).Assemble(in)
	require.Len(t, bufs, 2)
	assert.Len(t, bufs[0].Vertices, 4)
	assert.Equal(t, 2, bufs[0].TriangleCount())
}
