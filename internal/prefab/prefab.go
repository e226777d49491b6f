// Package prefab holds the flattened result of an import: an entity arena
// with per-entity transform, render and joint data.
package prefab

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Capability is a bitset of the data an entity carries.
type Capability uint8

const (
	CapTransform Capability = 1 << iota
	CapRender
	CapJoint
)

// Has reports whether c includes all of o.
func (c Capability) Has(o Capability) bool {
	return c&o == o
}

// TransformData places an entity in the hierarchy.
type TransformData struct {
	Parent   int // -1 for roots
	Depth    int
	Relative mgl32.Mat4
	World    mgl32.Mat4
}

// RenderData attaches a mesh.
type RenderData struct {
	Mesh             *Mesh
	Skinned          bool
	SoftwareSkinning bool
}

// JointData marks an entity as a skeleton joint.
type JointData struct {
	BoneName string
	SID      string
	BoneRoot bool
}

type entity struct {
	name      string
	alive     bool
	caps      Capability
	transform TransformData
	render    RenderData
	joint     JointData
}

// Prefab is an append-only entity arena addressed by index. Removed slots
// are recycled by CreateEntity.
type Prefab struct {
	Name     string
	entities []entity
	free     []int
	joints   *JointRegistry
}

// New creates an empty prefab.
func New(name string) *Prefab {
	return &Prefab{Name: name, joints: NewJointRegistry(nil)}
}

// CreateEntity returns a fresh entity, reusing a removed slot when one
// exists.
func (p *Prefab) CreateEntity(name string) int {
	if n := len(p.free); n > 0 {
		i := p.free[n-1]
		p.free = p.free[:n-1]
		p.entities[i] = entity{name: name, alive: true}
		return i
	}
	p.entities = append(p.entities, entity{name: name, alive: true})
	return len(p.entities) - 1
}

// RemoveEntity soft-deletes entity i and queues its slot for reuse.
func (p *Prefab) RemoveEntity(i int) {
	if !p.Alive(i) {
		return
	}
	p.entities[i] = entity{}
	p.free = append(p.free, i)
}

// Alive reports whether i addresses a live entity.
func (p *Prefab) Alive(i int) bool {
	return i >= 0 && i < len(p.entities) && p.entities[i].alive
}

// Len returns the number of live entities.
func (p *Prefab) Len() int {
	return len(p.entities) - len(p.free)
}

// Cap returns the arena size, live or not.
func (p *Prefab) Cap() int {
	return len(p.entities)
}

// EntityInfo summarizes one entity.
type EntityInfo struct {
	Index int
	Name  string
	Caps  Capability
}

// Entity returns a summary of entity i, or false when i is not alive.
func (p *Prefab) Entity(i int) (EntityInfo, bool) {
	if !p.Alive(i) {
		return EntityInfo{}, false
	}
	e := &p.entities[i]
	return EntityInfo{Index: i, Name: e.name, Caps: e.caps}, true
}

// EntityName returns the name of entity i.
func (p *Prefab) EntityName(i int) string {
	if !p.Alive(i) {
		return ""
	}
	return p.entities[i].name
}

// Capabilities returns the capability set of entity i.
func (p *Prefab) Capabilities(i int) Capability {
	if !p.Alive(i) {
		return 0
	}
	return p.entities[i].caps
}

// SetTransform attaches transform data to entity i.
func (p *Prefab) SetTransform(i int, t TransformData) {
	if p.Alive(i) {
		p.entities[i].transform = t
		p.entities[i].caps |= CapTransform
	}
}

// SetRender attaches render data to entity i.
func (p *Prefab) SetRender(i int, r RenderData) {
	if p.Alive(i) {
		p.entities[i].render = r
		p.entities[i].caps |= CapRender
	}
}

// SetJoint attaches joint data to entity i.
func (p *Prefab) SetJoint(i int, j JointData) {
	if p.Alive(i) {
		p.entities[i].joint = j
		p.entities[i].caps |= CapJoint
	}
}

// Transform returns the transform data of entity i.
func (p *Prefab) Transform(i int) (*TransformData, bool) {
	if !p.Capabilities(i).Has(CapTransform) {
		return nil, false
	}
	return &p.entities[i].transform, true
}

// Render returns the render data of entity i.
func (p *Prefab) Render(i int) (*RenderData, bool) {
	if !p.Capabilities(i).Has(CapRender) {
		return nil, false
	}
	return &p.entities[i].render, true
}

// Joint returns the joint data of entity i.
func (p *Prefab) Joint(i int) (*JointData, bool) {
	if !p.Capabilities(i).Has(CapJoint) {
		return nil, false
	}
	return &p.entities[i].joint, true
}

// FindByName returns the first live entity named name, or -1.
func (p *Prefab) FindByName(name string) int {
	for i := range p.entities {
		if p.entities[i].alive && p.entities[i].name == name {
			return i
		}
	}
	return -1
}

// Joints returns the joint registry filled while building.
func (p *Prefab) Joints() *JointRegistry {
	return p.joints
}

// Each calls fn for every live entity in index order.
func (p *Prefab) Each(fn func(i int)) {
	for i := range p.entities {
		if p.entities[i].alive {
			fn(i)
		}
	}
}

// Meshes returns every distinct mesh referenced by a render component.
func (p *Prefab) Meshes() []*Mesh {
	seen := make(map[*Mesh]bool)
	var out []*Mesh
	p.Each(func(i int) {
		r, ok := p.Render(i)
		if !ok || r.Mesh == nil || seen[r.Mesh] {
			return
		}
		seen[r.Mesh] = true
		out = append(out, r.Mesh)
	})
	return out
}
