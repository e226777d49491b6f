// Package scenegraph turns a parsed scene.Document into a normalized node
// forest.
//
// Build runs after parsing, so the document's up axis and unit are known
// before any transform is composed, however late the file declares them.
package scenegraph

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/meshforge/internal/diag"
	"github.com/Faultbox/meshforge/pkg/coord"
	"github.com/Faultbox/meshforge/pkg/scene"
)

// RootSID is the short id of the synthetic root node.
const RootSID = "Root"

// Rotations of exactly ±180° are nudged by this many degrees toward zero.
const halfTurnNudge = 0.1

// Instance is a resolved mesh reference. Controller is set for skinned
// meshes; Geometry is always the mesh to assemble.
type Instance struct {
	Kind       scene.InstanceKind
	ID         string
	Geometry   *scene.Geometry
	Controller *scene.Controller
}

// Skinned reports whether the instance carries a skin controller.
func (i *Instance) Skinned() bool {
	return i != nil && i.Controller != nil
}

// Node is a normalized scene node.
type Node struct {
	Name      string
	SID       string
	Type      scene.NodeType
	Local     mgl32.Mat4
	Parent    *Node
	Children  []*Node
	Instance  *Instance
	Materials map[string]string // material symbol -> material id
	Depth     int
}

// IsJoint reports whether the node is a skeleton joint.
func (n *Node) IsJoint() bool {
	return n.Type == scene.NodeTypeJoint
}

// Forest is the composed node hierarchy of one document.
type Forest struct {
	Roots      []*Node
	Convention coord.Convention
	UnitName   string
	UnitScale  float32
	Materials  map[string]scene.Material
}

// Build composes local matrices, adds the synthetic root named modelName and
// re-roots skinned nodes. Unresolvable instances are reported and dropped.
func Build(doc *scene.Document, modelName string, report *diag.Report) *Forest {
	conv := coord.ConventionFor(doc.UpAxis)
	f := &Forest{
		Convention: conv,
		UnitName:   doc.UnitName,
		UnitScale:  doc.UnitMeter,
		Materials:  doc.Materials,
	}

	root := &Node{
		Name:  modelName,
		SID:   RootSID,
		Type:  scene.NodeTypeJoint,
		Local: coord.RootCorrection(conv, doc.UnitName, doc.UnitMeter),
	}

	b := &builder{doc: doc, zUp: conv.ZUp, report: report}
	for _, desc := range doc.Roots {
		b.build(desc, root)
	}

	f.Roots = append([]*Node{root}, b.detached...)
	for _, r := range f.Roots {
		r.Parent = nil
		setDepth(r, 0)
	}
	return f
}

type builder struct {
	doc      *scene.Document
	zUp      bool
	report   *diag.Report
	detached []*Node
}

// build creates the node for desc under parent. A node instancing a skin
// controller is moved out of its parent and queued as an extra root once
// its own subtree is complete.
func (b *builder) build(desc *scene.NodeDesc, parent *Node) *Node {
	n := &Node{
		Name:   desc.DisplayName(),
		SID:    desc.SID,
		Type:   desc.Type,
		Local:  b.compose(desc),
		Parent: parent,
	}
	parent.Children = append(parent.Children, n)

	skinned := false
	for i, inst := range desc.Instances {
		if inst.Kind == scene.InstanceController {
			skinned = true
		}
		target := n
		if i > 0 {
			// extra instances hang off the node as identity children
			target = &Node{
				Name:   fmt.Sprintf("%s-instance-%d", n.Name, i),
				Type:   scene.NodeTypeNode,
				Local:  mgl32.Ident4(),
				Parent: n,
			}
			n.Children = append(n.Children, target)
		}
		target.Instance = b.resolve(n.Name, inst)
		if target.Instance != nil && len(inst.Bindings) > 0 {
			target.Materials = make(map[string]string, len(inst.Bindings))
			for _, bind := range inst.Bindings {
				target.Materials[bind.Symbol] = bind.Target
			}
		}
	}

	for _, child := range desc.Children {
		b.build(child, n)
	}

	if skinned {
		parent.Children = removeChild(parent.Children, n)
		n.Parent = nil
		b.detached = append(b.detached, n)
	}
	return n
}

// resolve looks a URL up as a geometry first, then as a controller.
func (b *builder) resolve(node string, inst scene.Instance) *Instance {
	if g := b.doc.Geometry(inst.URL); g != nil {
		return &Instance{Kind: scene.InstanceGeometry, ID: g.ID, Geometry: g}
	}
	if c := b.doc.Controller(inst.URL); c != nil {
		g := b.doc.Geometry(c.Source)
		if g == nil {
			b.report.Addf(diag.KindUnresolvedInstance, node,
				"controller %q references missing geometry %q", c.ID, c.Source)
			return nil
		}
		return &Instance{Kind: scene.InstanceController, ID: c.ID, Geometry: g, Controller: c}
	}
	b.report.Addf(diag.KindUnresolvedInstance, node, "instance %q matches no geometry or controller", inst.URL)
	return nil
}

// compose post-multiplies the node's operators in document order.
func (b *builder) compose(desc *scene.NodeDesc) mgl32.Mat4 {
	m := mgl32.Ident4()
	for _, op := range desc.Ops {
		m = m.Mul4(OpMatrix(op, b.zUp))
	}
	return m
}

// OpMatrix converts one transform operator into a normalized matrix.
func OpMatrix(op scene.Op, zUp bool) mgl32.Mat4 {
	v := op.Values
	if len(v) < opArity(op.Kind) {
		return mgl32.Ident4()
	}
	switch op.Kind {
	case scene.OpTranslate:
		t := coord.NormalizeXYZ(v[0], v[1], v[2], zUp)
		return mgl32.Translate3D(t[0], t[1], t[2])
	case scene.OpScale:
		s := coord.NormalizeXYZ(v[0], v[1], v[2], zUp)
		return mgl32.Scale3D(s[0], s[1], s[2])
	case scene.OpRotate:
		angle := v[3]
		switch angle {
		case 180:
			angle = 180 - halfTurnNudge
		case -180:
			angle = -180 + halfTurnNudge
		case 0:
			return mgl32.Ident4()
		}
		return coord.NormalizeAxisAngle(mgl32.Vec3{v[0], v[1], v[2]}, angle, zUp)
	case scene.OpMatrix:
		return coord.LoadMatrix(v, zUp)
	}
	return mgl32.Ident4()
}

func opArity(k scene.OpKind) int {
	switch k {
	case scene.OpRotate:
		return 4
	case scene.OpMatrix:
		return 16
	default:
		return 3
	}
}

func removeChild(children []*Node, n *Node) []*Node {
	for i, c := range children {
		if c == n {
			return append(children[:i], children[i+1:]...)
		}
	}
	return children
}

func setDepth(n *Node, depth int) {
	stack := []*Node{n}
	n.Depth = depth
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range cur.Children {
			c.Depth = cur.Depth + 1
			stack = append(stack, c)
		}
	}
}

// Walk visits every node in pre-order: roots in order, children in order.
// Returning false from fn skips the node's children.
func (f *Forest) Walk(fn func(n *Node) bool) {
	stack := make([]*Node, 0, len(f.Roots))
	for i := len(f.Roots) - 1; i >= 0; i-- {
		stack = append(stack, f.Roots[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(n) {
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// Len returns the number of nodes in the forest.
func (f *Forest) Len() int {
	n := 0
	f.Walk(func(*Node) bool {
		n++
		return true
	})
	return n
}

// Release drops every node so the forest's memory can be reclaimed.
func (f *Forest) Release() {
	f.Walk(func(n *Node) bool {
		n.Parent = nil
		n.Instance = nil
		return true
	})
	f.Roots = nil
	f.Materials = nil
}
