package prefab

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/meshforge/internal/scenegraph"
)

// Builder flattens a node forest into a prefab.
type Builder struct {
	factory MeshFactory
	log     *zap.Logger
}

// NewBuilder creates a builder. A nil factory skips mesh creation.
func NewBuilder(factory MeshFactory, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{factory: factory, log: log}
}

type pendingSkin struct {
	entity int
	node   *scenegraph.Node
}

// Build creates one entity per node in pre-order: roots in order, children
// in order. World matrices are composed from the parent's, so an entity's
// parent always has a lower index. Skins are bound after the walk, once
// every joint is registered.
func (b *Builder) Build(f *scenegraph.Forest) (*Prefab, error) {
	name := ""
	if len(f.Roots) > 0 {
		name = f.Roots[0].Name
	}
	p := New(name)
	p.joints = NewJointRegistry(b.log)

	type item struct {
		node   *scenegraph.Node
		parent int
	}
	stack := make([]item, 0, len(f.Roots))
	for i := len(f.Roots) - 1; i >= 0; i-- {
		stack = append(stack, item{f.Roots[i], -1})
	}

	var skins []pendingSkin
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := it.node

		e := p.CreateEntity(n.Name)
		t := TransformData{Parent: it.parent, Relative: n.Local, World: n.Local}
		if pt, ok := p.Transform(it.parent); ok {
			t.Depth = pt.Depth + 1
			t.World = pt.World.Mul4(n.Local)
		}
		p.SetTransform(e, t)

		if n.IsJoint() {
			p.SetJoint(e, JointData{BoneName: n.Name, SID: n.SID, BoneRoot: t.Depth == 0})
			p.joints.Register(e, n.Name, n.SID)
		}

		if n.Instance != nil && b.factory != nil {
			mesh, err := b.factory.CreateMesh(n)
			if err != nil {
				return nil, fmt.Errorf("create mesh for %q: %w", n.Name, err)
			}
			p.SetRender(e, RenderData{Mesh: mesh})
			if n.Instance.Skinned() {
				skins = append(skins, pendingSkin{entity: e, node: n})
			}
		}

		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, item{n.Children[i], e})
		}
	}

	for _, s := range skins {
		r, _ := p.Render(s.entity)
		if err := b.factory.BindSkin(r.Mesh, s.node, p.joints); err != nil {
			return nil, fmt.Errorf("bind skin for %q: %w", s.node.Name, err)
		}
		r.Skinned = true
		r.SoftwareSkinning = r.Mesh.Skin != nil && r.Mesh.Skin.SoftwareSkinning
	}

	b.log.Debug("built prefab",
		zap.String("name", name),
		zap.Int("entities", p.Len()),
		zap.Int("joints", p.joints.Len()),
		zap.Int("skins", len(skins)),
	)
	return p, nil
}
