package prefab

import (
	"fmt"

	"github.com/Faultbox/meshforge/internal/diag"
	"github.com/Faultbox/meshforge/internal/geometry"
	"github.com/Faultbox/meshforge/internal/scenegraph"
	"github.com/Faultbox/meshforge/internal/skin"
	"github.com/Faultbox/meshforge/pkg/scene"
)

// MaterialBinding ties a buffer's material symbol to the bound material and
// its effect, when the document declares them.
type MaterialBinding struct {
	Symbol   string
	Material string
	Effect   string
}

// Mesh is the renderable content of one instance.
type Mesh struct {
	Name      string // geometry or controller id
	Buffers   []*geometry.Buffer
	Materials []MaterialBinding // parallel to Buffers
	Bounds    geometry.Bounds
	Skin      *skin.Mesh
}

// VertexCount returns the total number of vertices.
func (m *Mesh) VertexCount() int {
	n := 0
	for _, b := range m.Buffers {
		n += len(b.Vertices)
	}
	return n
}

// MeshFactory turns instances into meshes.
type MeshFactory interface {
	// CreateMesh builds the mesh for a node's instance.
	CreateMesh(node *scenegraph.Node) (*Mesh, error)
	// BindSkin attaches skin data once every joint is registered.
	BindSkin(mesh *Mesh, node *scenegraph.Node, joints skin.Registry) error
}

// AssemblingFactory builds meshes with a geometry.Assembler and binds skins
// with a skin.Binder. Assembled geometry is shared between instances of the
// same geometry id.
type AssemblingFactory struct {
	assembler *geometry.Assembler
	binder    *skin.Binder
	forest    *scenegraph.Forest
	report    *diag.Report
	buffers   map[string][]*geometry.Buffer
}

// NewAssemblingFactory creates a factory for meshes of forest.
func NewAssemblingFactory(a *geometry.Assembler, b *skin.Binder, forest *scenegraph.Forest, report *diag.Report) *AssemblingFactory {
	return &AssemblingFactory{
		assembler: a,
		binder:    b,
		forest:    forest,
		report:    report,
		buffers:   make(map[string][]*geometry.Buffer),
	}
}

// CreateMesh implements MeshFactory.
func (f *AssemblingFactory) CreateMesh(node *scenegraph.Node) (*Mesh, error) {
	inst := node.Instance
	if inst == nil || inst.Geometry == nil {
		return nil, fmt.Errorf("node %q has no geometry", node.Name)
	}

	g := inst.Geometry
	bufs, ok := f.buffers[g.ID]
	if !ok {
		bufs = f.assembler.Assemble(geometry.FromScene(g, f.report))
		f.buffers[g.ID] = bufs
	}

	m := &Mesh{Name: inst.ID, Buffers: bufs, Materials: make([]MaterialBinding, len(bufs))}
	for i, b := range bufs {
		m.Materials[i] = f.material(b.Material, node.Materials)
		if !b.Bounds.Empty() {
			m.Bounds.Extend(b.Bounds.Min)
			m.Bounds.Extend(b.Bounds.Max)
		}
	}
	return m, nil
}

func (f *AssemblingFactory) material(symbol string, bindings map[string]string) MaterialBinding {
	mb := MaterialBinding{Symbol: symbol}
	target, ok := bindings[symbol]
	if !ok {
		return mb
	}
	mb.Material = target
	var mat scene.Material
	if f.forest != nil {
		mat, ok = f.forest.Materials[target]
	}
	if ok {
		mb.Effect = mat.Effect
	}
	return mb
}

// BindSkin implements MeshFactory.
func (f *AssemblingFactory) BindSkin(mesh *Mesh, node *scenegraph.Node, joints skin.Registry) error {
	if !node.Instance.Skinned() {
		return fmt.Errorf("node %q has no skin controller", node.Name)
	}
	mesh.Skin = f.binder.Bind(node.Instance.Controller, mesh.Buffers, joints)
	return nil
}
