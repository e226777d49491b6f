// Package geometry assembles renderable vertex and index buffers from
// independently indexed attribute streams.
//
// A source corner references one element per stream (position, normal,
// texcoord sets). The assembler flattens each distinct combination into a
// single output vertex, fan-triangulates polygons, applies the document's
// coordinate convention and keeps a table from source positions to output
// vertices so skin weights can follow.
package geometry

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/meshforge/internal/diag"
	"github.com/Faultbox/meshforge/pkg/scene"
)

// Attribute identifies a vertex stream.
type Attribute int

const (
	AttrPosition Attribute = iota
	AttrNormal
	AttrTex0
	AttrTex1

	numAttributes
)

var attributeNames = [numAttributes]string{"position", "normal", "texcoord0", "texcoord1"}

// String returns the attribute name.
func (a Attribute) String() string {
	if a < 0 || a >= numAttributes {
		return "unknown"
	}
	return attributeNames[a]
}

// minStride is the number of components each attribute needs.
var minStride = [numAttributes]int{3, 3, 2, 2}

// AttributeBuffer is a raw float stream with its element stride.
type AttributeBuffer struct {
	Name   string
	Data   []float32
	Stride int
}

// Count returns the number of elements in the buffer.
func (b *AttributeBuffer) Count() int {
	if b == nil || b.Stride <= 0 {
		return 0
	}
	return len(b.Data) / b.Stride
}

// element returns the first n components of element i.
func (b *AttributeBuffer) element(i int32, n int) []float32 {
	off := int(i) * b.Stride
	return b.Data[off : off+n]
}

// TriangleGroup is one primitive: a material symbol and an interleaved
// corner index array. Offsets hold the position of each attribute inside a
// corner, or -1 when the attribute is absent.
type TriangleGroup struct {
	Material string
	Stride   int
	Offsets  [numAttributes]int
	Buffers  [numAttributes]*AttributeBuffer
	Indices  []int32
	VCount   []int // corners per face; nil means triangles
}

// NewTriangleGroup returns a group with every attribute absent.
func NewTriangleGroup(material string, stride int) TriangleGroup {
	g := TriangleGroup{Material: material, Stride: stride}
	for i := range g.Offsets {
		g.Offsets[i] = -1
	}
	return g
}

// Bind attaches buf as attribute a at corner offset.
func (g *TriangleGroup) Bind(a Attribute, offset int, buf *AttributeBuffer) {
	g.Offsets[a] = offset
	g.Buffers[a] = buf
}

// Input is everything the assembler needs for one mesh.
type Input struct {
	Name   string
	Groups []TriangleGroup
}

// VertexKey identifies a unique corner: one index per attribute, -1 when
// the attribute is absent.
type VertexKey struct {
	Position int32
	Normal   int32
	Tex0     int32
	Tex1     int32
}

// Vertex is a flattened output vertex. The tangent frame is only set on
// buffers with HasTangents.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Tex0     mgl32.Vec2
	Tex1     mgl32.Vec2
	Tangent  mgl32.Vec3
	Binormal mgl32.Vec3
	TangentW float32 // binormal handedness, 1 or -1
}

// RemapTable maps a source position index to every output vertex created
// from it, in creation order.
type RemapTable map[int32][]uint32

// Add records that output vertex out was created from source position src.
func (r RemapTable) Add(src int32, out uint32) {
	r[src] = append(r[src], out)
}

// Lookup returns the output vertices created from src.
func (r RemapTable) Lookup(src int32) []uint32 {
	return r[src]
}

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Min, Max mgl32.Vec3
	valid    bool
}

// Extend grows the box to contain p.
func (b *Bounds) Extend(p mgl32.Vec3) {
	if !b.valid {
		b.Min, b.Max, b.valid = p, p, true
		return
	}
	for i := 0; i < 3; i++ {
		b.Min[i] = min(b.Min[i], p[i])
		b.Max[i] = max(b.Max[i], p[i])
	}
}

// Scale multiplies both corners by s.
func (b *Bounds) Scale(s float32) {
	b.Min = b.Min.Mul(s)
	b.Max = b.Max.Mul(s)
}

// Empty reports whether no point was added.
func (b Bounds) Empty() bool {
	return !b.valid
}

// Buffer is one assembled mesh buffer, one per triangle group.
type Buffer struct {
	Name             string // source geometry id
	Material         string // material symbol
	Vertices         []Vertex
	Indices          []uint32
	Remap            RemapTable
	Bounds           Bounds
	GeneratedNormals bool
	HasTex1          bool
	HasTangents      bool
	UVOverflow       bool // a texcoord exceeds the configured tile range
}

// WideIndices reports whether the buffer needs 32-bit indices.
func (b *Buffer) WideIndices() bool {
	return len(b.Vertices) >= 0xFFFF-1
}

// TriangleCount returns the number of triangles.
func (b *Buffer) TriangleCount() int {
	return len(b.Indices) / 3
}

// FromScene converts a parsed geometry into assembler input. Attributes
// bound through the vertices element share the VERTEX offset; the others
// use their own. The first two texcoord inputs become set 0 and set 1.
// Unsupported primitives and missing sources are reported.
func FromScene(g *scene.Geometry, report *diag.Report) Input {
	in := Input{Name: g.ID}
	buffers := make(map[string]*AttributeBuffer)

	lookup := func(id string) *AttributeBuffer {
		if b, ok := buffers[id]; ok {
			return b
		}
		src := g.Source(id)
		if src == nil {
			report.Addf(diag.KindMissingBuffer, g.ID, "source %q not found", id)
			buffers[id] = nil
			return nil
		}
		b := &AttributeBuffer{Name: src.ID, Data: src.Data, Stride: src.Stride}
		buffers[id] = b
		return b
	}

	for _, p := range g.Primitives {
		if p.Kind == scene.PrimitiveUnsupported {
			report.Addf(diag.KindUnsupportedPrimitive, g.ID, "<%s> is not supported", p.Tag)
			continue
		}

		grp := NewTriangleGroup(p.Material, p.Stride())
		grp.Indices = p.P
		if p.Kind != scene.PrimitiveTriangles {
			grp.VCount = p.VCount
		}

		tex := 0
		bind := func(semantic, source string, offset int) {
			var attr Attribute
			switch semantic {
			case scene.SemanticPosition:
				attr = AttrPosition
			case scene.SemanticNormal:
				attr = AttrNormal
			case scene.SemanticTexCoord:
				if tex > 1 {
					return
				}
				attr = AttrTex0 + Attribute(tex)
				tex++
			default:
				return
			}
			if buf := lookup(source); buf != nil {
				grp.Bind(attr, offset, buf)
			}
		}

		for _, input := range p.Inputs {
			if input.Semantic == scene.SemanticVertex {
				for _, vi := range g.VertexInputs {
					bind(vi.Semantic, vi.Source, input.Offset)
				}
				continue
			}
			bind(input.Semantic, input.Source, input.Offset)
		}
		in.Groups = append(in.Groups, grp)
	}
	return in
}
