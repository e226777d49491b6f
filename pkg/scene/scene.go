// Package scene defines the parsed, format-neutral description of an imported
// scene file.
//
// Parsers fill a Document without applying any coordinate conversion; values
// stay exactly as authored. Matrices are stored row-major, the way both
// supported formats write them.
package scene

import "strings"

// NodeType distinguishes plain transform nodes from skeleton joints.
type NodeType uint8

const (
	NodeTypeNode  NodeType = 0
	NodeTypeJoint NodeType = 1
)

// String returns the node type name.
func (t NodeType) String() string {
	if t == NodeTypeJoint {
		return "JOINT"
	}
	return "NODE"
}

// OpKind identifies a transform operator.
type OpKind uint8

const (
	OpTranslate OpKind = iota
	OpRotate
	OpScale
	OpMatrix
)

// Op is one transform operator. Values holds 3 floats for translate and
// scale, 4 (axis xyz, degrees) for rotate and 16 row-major floats for matrix.
type Op struct {
	Kind   OpKind
	Values []float32
}

// InstanceKind identifies what a node instantiates.
type InstanceKind uint8

const (
	InstanceNone       InstanceKind = 0
	InstanceGeometry   InstanceKind = 1
	InstanceController InstanceKind = 2
)

// String returns the instance kind name.
func (k InstanceKind) String() string {
	switch k {
	case InstanceGeometry:
		return "geometry"
	case InstanceController:
		return "controller"
	default:
		return "none"
	}
}

// Binding maps a material symbol used by a primitive to a material id.
type Binding struct {
	Symbol string
	Target string
}

// Instance is a reference from a node to a geometry or controller.
type Instance struct {
	Kind     InstanceKind
	URL      string // target id, without '#'
	Bindings []Binding
}

// NodeDesc is a node as declared in the source file.
type NodeDesc struct {
	ID        string
	Name      string
	SID       string
	Type      NodeType
	Ops       []Op
	Instances []Instance
	Children  []*NodeDesc
}

// DisplayName returns ID, or Name when the node has no id. Skin joint
// arrays reference nodes by id, so the id is the stable name.
func (n *NodeDesc) DisplayName() string {
	if n.ID != "" {
		return n.ID
	}
	return n.Name
}

// Source is a float array with its accessor stride.
type Source struct {
	ID     string
	Stride int
	Data   []float32
	Names  []string // Name_array / IDREF_array tokens
	Params []string // accessor param names
}

// Count returns the number of elements (Data length / Stride).
func (s *Source) Count() int {
	if s == nil || s.Stride <= 0 {
		return 0
	}
	if len(s.Names) > 0 {
		return len(s.Names) / s.Stride
	}
	return len(s.Data) / s.Stride
}

// Input binds a semantic to a source at an offset within the index stream.
type Input struct {
	Semantic string
	Source   string // source id, without '#'
	Offset   int
	Set      int
}

// Semantic names used by inputs.
const (
	SemanticVertex    = "VERTEX"
	SemanticPosition  = "POSITION"
	SemanticNormal    = "NORMAL"
	SemanticTexCoord  = "TEXCOORD"
	SemanticJoint     = "JOINT"
	SemanticWeight    = "WEIGHT"
	SemanticInvBind   = "INV_BIND_MATRIX"
	SemanticTransform = "TRANSFORM"
)

// PrimitiveKind identifies a primitive element.
type PrimitiveKind uint8

const (
	PrimitiveTriangles PrimitiveKind = iota
	PrimitivePolylist
	PrimitivePolygons
	PrimitiveUnsupported
)

// Primitive is one indexed face group.
type Primitive struct {
	Kind     PrimitiveKind
	Tag      string // element name as written
	Material string // material symbol
	Count    int
	Inputs   []Input
	VCount   []int   // corners per face, nil for triangles
	P        []int32 // interleaved corner indices
}

// Stride returns the number of indices per corner: the largest input offset
// plus one.
func (p *Primitive) Stride() int {
	stride := 0
	for _, in := range p.Inputs {
		if in.Offset+1 > stride {
			stride = in.Offset + 1
		}
	}
	return stride
}

// Geometry is a mesh declaration.
type Geometry struct {
	ID           string
	Name         string
	Sources      map[string]*Source
	VerticesID   string
	VertexInputs []Input
	Primitives   []*Primitive
}

// Source returns the source with the given id, or nil.
func (g *Geometry) Source(id string) *Source {
	if g == nil || g.Sources == nil {
		return nil
	}
	return g.Sources[strings.TrimPrefix(id, "#")]
}

// WeightFact is one (vertex, joint, weight) influence as authored.
type WeightFact struct {
	Vertex uint32
	Joint  uint32
	Weight float32
}

// Joint is a skin joint reference with its inverse bind matrix. Name may be
// empty when the file only provides whitespace-separated name tokens.
type Joint struct {
	Name        string
	InverseBind []float32 // 16 row-major floats
}

// Controller is a skin controller bound to a source geometry.
type Controller struct {
	ID        string
	Name      string
	Source    string    // geometry id, without '#'
	BindShape []float32 // 16 row-major floats, nil when absent
	Joints    []Joint
	// NameTokens holds the raw whitespace-split joint name list. Names that
	// contain spaces span several tokens and are recovered at bind time.
	NameTokens []string
	Facts      []WeightFact
}

// Material maps a material id to its effect.
type Material struct {
	ID     string
	Name   string
	Effect string // effect id, without '#'
}

// Document is a complete parsed scene file.
type Document struct {
	UpAxis      string // empty when not declared
	UnitName    string
	UnitMeter   float32
	Materials   map[string]Material
	Images      map[string]string // image id -> file reference
	Geometries  []*Geometry
	Controllers []*Controller
	Roots       []*NodeDesc
	Warnings    []string // recoverable problems found while parsing
}

// NewDocument returns an empty document with meter units.
func NewDocument() *Document {
	return &Document{
		UnitName:  "meter",
		UnitMeter: 1,
		Materials: make(map[string]Material),
		Images:    make(map[string]string),
	}
}

// Geometry returns the geometry with the given id, or nil.
func (d *Document) Geometry(id string) *Geometry {
	id = strings.TrimPrefix(id, "#")
	for _, g := range d.Geometries {
		if g.ID == id {
			return g
		}
	}
	return nil
}

// Controller returns the controller with the given id, or nil.
func (d *Document) Controller(id string) *Controller {
	id = strings.TrimPrefix(id, "#")
	for _, c := range d.Controllers {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Walk visits every node in pre-order. Returning false from fn stops the
// descent into that node's children.
func (d *Document) Walk(fn func(n *NodeDesc, depth int) bool) {
	type item struct {
		node  *NodeDesc
		depth int
	}
	stack := make([]item, 0, len(d.Roots))
	for i := len(d.Roots) - 1; i >= 0; i-- {
		stack = append(stack, item{d.Roots[i], 0})
	}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(it.node, it.depth) {
			continue
		}
		for i := len(it.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, item{it.node.Children[i], it.depth + 1})
		}
	}
}

// NodeCount returns the total number of nodes.
func (d *Document) NodeCount() int {
	n := 0
	d.Walk(func(*NodeDesc, int) bool {
		n++
		return true
	})
	return n
}
