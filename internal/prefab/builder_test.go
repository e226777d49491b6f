package prefab

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Faultbox/meshforge/internal/diag"
	"github.com/Faultbox/meshforge/internal/geometry"
	"github.com/Faultbox/meshforge/internal/scenegraph"
	"github.com/Faultbox/meshforge/internal/skin"
	"github.com/Faultbox/meshforge/pkg/scene"
)

func TestBuild_WorldComposition(t *testing.T) {
	ta := mgl32.Translate3D(1, 2, 3).Mul4(mgl32.HomogRotate3DY(0.7))
	tb := mgl32.Translate3D(0, 4, 0).Mul4(mgl32.Scale3D(2, 2, 2))

	a := &scenegraph.Node{Name: "A", Local: ta}
	b := &scenegraph.Node{Name: "B", Local: tb, Parent: a}
	a.Children = []*scenegraph.Node{b}

	p, err := NewBuilder(nil, zaptest.NewLogger(t)).Build(&scenegraph.Forest{Roots: []*scenegraph.Node{a}})
	require.NoError(t, err)

	ea, eb := p.FindByName("A"), p.FindByName("B")
	wa, _ := p.Transform(ea)
	wb, _ := p.Transform(eb)

	assert.Equal(t, ta, wa.World)
	assert.Equal(t, wa.World.Mul4(tb), wb.World)
	assert.Equal(t, ea, wb.Parent)
	assert.Equal(t, 1, wb.Depth)
	assert.Equal(t, tb, wb.Relative)
}

func TestBuild_PreOrder(t *testing.T) {
	leaf := func(name string) *scenegraph.Node {
		return &scenegraph.Node{Name: name, Local: mgl32.Ident4()}
	}
	r1, r2 := leaf("r1"), leaf("r2")
	a, b, c := leaf("a"), leaf("b"), leaf("c")
	r1.Children = []*scenegraph.Node{a, c}
	a.Children = []*scenegraph.Node{b}

	p, err := NewBuilder(nil, nil).Build(&scenegraph.Forest{Roots: []*scenegraph.Node{r1, r2}})
	require.NoError(t, err)

	var order []string
	p.Each(func(i int) {
		order = append(order, p.EntityName(i))
		tr, ok := p.Transform(i)
		require.True(t, ok)
		assert.Less(t, tr.Parent, i, "parents precede children")
	})
	assert.Equal(t, []string{"r1", "a", "b", "c", "r2"}, order)
	assert.Equal(t, "r1", p.Name)
}

func skinnedDoc() *scene.Document {
	doc := scene.NewDocument()
	doc.Materials["body-mat"] = scene.Material{ID: "body-mat", Effect: "body-fx"}
	doc.Geometries = []*scene.Geometry{{
		ID:           "body-mesh",
		Sources:      map[string]*scene.Source{"p": {ID: "p", Stride: 3, Data: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}}},
		VerticesID:   "v",
		VertexInputs: []scene.Input{{Semantic: scene.SemanticPosition, Source: "p"}},
		Primitives: []*scene.Primitive{{
			Kind:     scene.PrimitiveTriangles,
			Material: "skin",
			Inputs:   []scene.Input{{Semantic: scene.SemanticVertex, Source: "v"}},
			P:        []int32{0, 1, 2},
		}},
	}}
	doc.Controllers = []*scene.Controller{{
		ID:     "body-skin",
		Source: "body-mesh",
		Joints: []scene.Joint{{Name: "Hip"}, {Name: "Spine"}, {Name: "Tail"}},
		Facts: []scene.WeightFact{
			{Vertex: 0, Joint: 0, Weight: 1},
			{Vertex: 1, Joint: 1, Weight: 0.5},
			{Vertex: 1, Joint: 2, Weight: 0.5},
			{Vertex: 2, Joint: 1, Weight: 1},
		},
	}}
	doc.Roots = []*scene.NodeDesc{
		{ID: "Hip", Type: scene.NodeTypeJoint, Children: []*scene.NodeDesc{
			{ID: "Spine", SID: "Bone02", Type: scene.NodeTypeJoint},
		}},
		{ID: "Body", Instances: []scene.Instance{{
			Kind:     scene.InstanceController,
			URL:      "body-skin",
			Bindings: []scene.Binding{{Symbol: "skin", Target: "body-mat"}},
		}}},
	}
	return doc
}

func TestBuild_SkinnedMesh(t *testing.T) {
	report := diag.NewReport(zaptest.NewLogger(t))
	forest := scenegraph.Build(skinnedDoc(), "hero", report)

	factory := NewAssemblingFactory(
		geometry.NewAssembler(geometry.Options{Convention: forest.Convention}, nil, report),
		skin.NewBinder(skin.Options{GPUBonesCount: 2}, nil, report),
		forest,
		report,
	)
	p, err := NewBuilder(factory, zaptest.NewLogger(t)).Build(forest)
	require.NoError(t, err)

	assert.Equal(t, "hero", p.Name)
	assert.Equal(t, 4, p.Len())

	root, _ := p.Joint(p.FindByName("hero"))
	require.NotNil(t, root)
	assert.True(t, root.BoneRoot)
	assert.Equal(t, scenegraph.RootSID, root.SID)

	hip := p.FindByName("Hip")
	spine, _ := p.Joint(p.FindByName("Spine"))
	assert.False(t, spine.BoneRoot)

	body := p.FindByName("Body")
	tr, _ := p.Transform(body)
	assert.Equal(t, -1, tr.Parent, "skinned nodes are roots")

	r, ok := p.Render(body)
	require.True(t, ok)
	assert.True(t, r.Skinned)
	assert.True(t, r.SoftwareSkinning, "three joints exceed two GPU bones")

	mesh := r.Mesh
	require.Len(t, mesh.Buffers, 1)
	assert.Equal(t, []MaterialBinding{{Symbol: "skin", Material: "body-mat", Effect: "body-fx"}}, mesh.Materials)
	assert.Equal(t, 3, mesh.VertexCount())

	require.NotNil(t, mesh.Skin)
	joints := mesh.Skin.Joints
	require.Len(t, joints, 3)
	assert.Equal(t, hip, joints[0].EntityIndex)
	assert.Equal(t, p.FindByName("Spine"), joints[1].EntityIndex)
	assert.False(t, joints[2].Resolved())
	assert.Equal(t, 1, report.Count(diag.KindUnresolvedBone))

	verts := mesh.Skin.Buffers[0].Vertices
	assert.Equal(t, int32(0), verts[0].Bones[0])
	assert.Equal(t, float32(1), verts[0].Weights[0])
	assert.Equal(t, 1, verts[1].Count, "facts for the unresolved joint are dropped")
	assert.Equal(t, float32(0.5), verts[1].Weights[0])

	assert.Equal(t, []*Mesh{mesh}, p.Meshes())
}

func TestBuild_SharedGeometry(t *testing.T) {
	doc := skinnedDoc()
	doc.Roots = []*scene.NodeDesc{
		{ID: "a", Instances: []scene.Instance{{Kind: scene.InstanceGeometry, URL: "body-mesh"}}},
		{ID: "b", Instances: []scene.Instance{{Kind: scene.InstanceGeometry, URL: "body-mesh"}}},
	}
	forest := scenegraph.Build(doc, "m", nil)
	factory := NewAssemblingFactory(geometry.NewAssembler(geometry.Options{}, nil, nil), nil, forest, nil)

	p, err := NewBuilder(factory, nil).Build(forest)
	require.NoError(t, err)

	ra, _ := p.Render(p.FindByName("a"))
	rb, _ := p.Render(p.FindByName("b"))
	require.NotNil(t, ra)
	require.NotNil(t, rb)
	assert.NotSame(t, ra.Mesh, rb.Mesh)
	assert.Same(t, ra.Mesh.Buffers[0], rb.Mesh.Buffers[0])
	assert.False(t, ra.Skinned)
	assert.Equal(t, MaterialBinding{Symbol: "skin"}, ra.Mesh.Materials[0])
}
