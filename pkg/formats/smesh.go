// SMESH binary scene-graph format parser.
package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/Faultbox/meshforge/pkg/encoding"
	"github.com/Faultbox/meshforge/pkg/scene"
)

// SMESH format errors.
var (
	ErrInvalidSMeshMagic       = errors.New("invalid SMESH magic: expected 'SMSH'")
	ErrUnsupportedSMeshVersion = errors.New("unsupported SMESH version")
	ErrTruncatedSMeshData      = errors.New("truncated SMESH data")
	ErrInvalidSMeshData        = errors.New("invalid SMESH data")
)

// SMeshMagic is the four-byte file signature.
const SMeshMagic = "SMSH"

// Header flag bits.
const (
	SMeshFlagZUp       = 1 << 0
	SMeshFlagFlipX     = 1 << 1
	SMeshFlagHasUpAxis = 1 << 2
)

// SMeshVersion represents the SMESH file version.
type SMeshVersion struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v SMeshVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast returns true if version is >= major.minor.
func (v SMeshVersion) AtLeast(major, minor uint8) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

// Supported reports whether the parser understands this version.
func (v SMeshVersion) Supported() bool {
	return v.Major == 1 && v.Minor <= 1
}

// IsSMesh reports whether data starts with the SMESH signature.
func IsSMesh(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == SMeshMagic
}

// smeshReader reads little-endian fields and remembers the first failure.
type smeshReader struct {
	r     *bytes.Reader
	names *encoding.NameDecoder
	err   error
}

func (s *smeshReader) read(v any) {
	if s.err != nil {
		return
	}
	if err := binary.Read(s.r, binary.LittleEndian, v); err != nil {
		s.err = ErrTruncatedSMeshData
	}
}

func (s *smeshReader) u8() uint8 {
	var v uint8
	s.read(&v)
	return v
}

func (s *smeshReader) i8() int8 {
	var v int8
	s.read(&v)
	return v
}

func (s *smeshReader) u32() uint32 {
	var v uint32
	s.read(&v)
	return v
}

func (s *smeshReader) i32() int32 {
	var v int32
	s.read(&v)
	return v
}

func (s *smeshReader) f32() float32 {
	var v float32
	s.read(&v)
	return v
}

// count reads a u32 element count and checks that elemSize bytes per element
// are still available.
func (s *smeshReader) count(elemSize int) int {
	n := s.u32()
	if s.err != nil {
		return 0
	}
	if elemSize > 0 && uint64(n)*uint64(elemSize) > uint64(s.r.Len()) {
		s.err = ErrTruncatedSMeshData
		return 0
	}
	return int(n)
}

func (s *smeshReader) str() string {
	var n uint16
	s.read(&n)
	if s.err != nil || n == 0 {
		return ""
	}
	if int(n) > s.r.Len() {
		s.err = ErrTruncatedSMeshData
		return ""
	}
	buf := make([]byte, n)
	if _, err := s.r.Read(buf); err != nil {
		s.err = ErrTruncatedSMeshData
		return ""
	}
	return s.names.Decode(buf)
}

func (s *smeshReader) floats(n int) []float32 {
	if s.err != nil || n == 0 {
		return nil
	}
	out := make([]float32, n)
	s.read(out)
	return out
}

func (s *smeshReader) matrix() []float32 {
	return s.floats(16)
}

// ParseSMesh parses SMESH data from a byte slice. Names are decoded with
// names; nil means UTF-8.
func ParseSMesh(data []byte, names *encoding.NameDecoder) (*scene.Document, error) {
	if len(data) < 7 {
		return nil, ErrTruncatedSMeshData
	}
	if !IsSMesh(data) {
		return nil, ErrInvalidSMeshMagic
	}

	s := &smeshReader{r: bytes.NewReader(data[4:]), names: names}
	version := SMeshVersion{Major: s.u8(), Minor: s.u8()}
	if !version.Supported() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSMeshVersion, version)
	}

	doc := scene.NewDocument()
	flags := s.u8()
	switch {
	case flags&SMeshFlagZUp != 0:
		doc.UpAxis = "Z_UP"
	case flags&(SMeshFlagFlipX|SMeshFlagHasUpAxis) != 0:
		doc.UpAxis = "Y_UP"
	}

	doc.UnitName = s.str()
	doc.UnitMeter = s.f32()

	for i, n := 0, s.count(4); i < n && s.err == nil; i++ {
		m := scene.Material{ID: s.str(), Effect: s.str()}
		doc.Materials[m.ID] = m
	}

	for i, n := 0, s.count(4); i < n && s.err == nil; i++ {
		g, err := readSMeshGeometry(s, version)
		if err != nil {
			return nil, fmt.Errorf("geometry %d: %w", i, err)
		}
		doc.Geometries = append(doc.Geometries, g)
	}

	for i, n := 0, s.count(4); i < n && s.err == nil; i++ {
		doc.Controllers = append(doc.Controllers, readSMeshController(s))
	}

	if err := readSMeshNodes(s, doc); err != nil {
		return nil, err
	}

	if s.err != nil {
		return nil, s.err
	}
	if math.IsNaN(float64(doc.UnitMeter)) {
		return nil, fmt.Errorf("%w: unit scale is NaN", ErrInvalidSMeshData)
	}
	return doc, nil
}

func readSMeshGeometry(s *smeshReader, version SMeshVersion) (*scene.Geometry, error) {
	g := &scene.Geometry{
		ID:      s.str(),
		Sources: make(map[string]*scene.Source),
	}
	g.VerticesID = g.ID + "-vertices"

	var ordered []*scene.Source
	for i, n := 0, s.count(7); i < n && s.err == nil; i++ {
		src := &scene.Source{ID: s.str(), Stride: int(s.u8())}
		src.Data = s.floats(s.count(4))
		if src.ID == "" {
			src.ID = fmt.Sprintf("%s-source-%d", g.ID, i)
		}
		g.Sources[src.ID] = src
		ordered = append(ordered, src)
	}

	sourceAt := func(idx int32) (string, error) {
		if idx < 0 {
			return "", nil
		}
		if int(idx) >= len(ordered) {
			return "", fmt.Errorf("%w: source index %d out of range", ErrInvalidSMeshData, idx)
		}
		return ordered[idx].ID, nil
	}

	streams := [4]int32{s.i32(), s.i32(), s.i32(), -1}
	if version.AtLeast(1, 1) {
		streams[3] = s.i32()
	}
	if s.err != nil {
		return nil, s.err
	}
	var ids [4]string
	for i, idx := range streams {
		id, err := sourceAt(idx)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	if ids[0] != "" {
		g.VertexInputs = []scene.Input{{Semantic: scene.SemanticPosition, Source: ids[0]}}
	}

	for i, n := 0, s.count(8); i < n && s.err == nil; i++ {
		prim, err := readSMeshGroup(s, version, g, ids)
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", i, err)
		}
		g.Primitives = append(g.Primitives, prim)
	}
	return g, nil
}

func readSMeshGroup(s *smeshReader, version SMeshVersion, g *scene.Geometry, ids [4]string) (*scene.Primitive, error) {
	prim := &scene.Primitive{
		Kind:     scene.PrimitiveTriangles,
		Tag:      "triangles",
		Material: s.str(),
	}
	stride := int(s.u8())
	offsets := [4]int8{s.i8(), s.i8(), s.i8(), -1}
	if version.AtLeast(1, 1) {
		offsets[3] = s.i8()
	}

	if offsets[0] >= 0 {
		prim.Inputs = append(prim.Inputs, scene.Input{Semantic: scene.SemanticVertex, Source: g.VerticesID, Offset: int(offsets[0])})
	}
	if offsets[1] >= 0 && ids[1] != "" {
		prim.Inputs = append(prim.Inputs, scene.Input{Semantic: scene.SemanticNormal, Source: ids[1], Offset: int(offsets[1])})
	}
	if offsets[2] >= 0 && ids[2] != "" {
		prim.Inputs = append(prim.Inputs, scene.Input{Semantic: scene.SemanticTexCoord, Source: ids[2], Offset: int(offsets[2])})
	}
	if offsets[3] >= 0 && ids[3] != "" {
		prim.Inputs = append(prim.Inputs, scene.Input{Semantic: scene.SemanticTexCoord, Source: ids[3], Offset: int(offsets[3]), Set: 1})
	}

	nface := s.count(0)
	prim.Count = nface
	if s.u8() != 0 {
		prim.Kind = scene.PrimitivePolylist
		prim.Tag = "polylist"
		if nface*4 > s.r.Len() {
			return nil, ErrTruncatedSMeshData
		}
		prim.VCount = make([]int, nface)
		for i := range prim.VCount {
			prim.VCount[i] = int(s.u32())
		}
	}

	nidx := s.count(4)
	if s.err == nil && nidx > 0 {
		prim.P = make([]int32, nidx)
		s.read(prim.P)
	}
	if s.err != nil {
		return nil, s.err
	}

	if stride != prim.Stride() {
		return nil, fmt.Errorf("%w: stride %d does not match offsets (%d)", ErrInvalidSMeshData, stride, prim.Stride())
	}
	return prim, nil
}

func readSMeshController(s *smeshReader) *scene.Controller {
	c := &scene.Controller{
		ID:        s.str(),
		Source:    s.str(),
		BindShape: s.matrix(),
	}
	for i, n := 0, s.count(66); i < n && s.err == nil; i++ {
		c.Joints = append(c.Joints, scene.Joint{Name: s.str(), InverseBind: s.matrix()})
	}
	if n := s.count(12); n > 0 {
		c.Facts = make([]scene.WeightFact, 0, n)
		for i := 0; i < n && s.err == nil; i++ {
			c.Facts = append(c.Facts, scene.WeightFact{Vertex: s.u32(), Joint: s.u32(), Weight: s.f32()})
		}
	}
	return c
}

// readSMeshNodes reads the flat node table and links it into a tree. A node's
// parent must precede it.
func readSMeshNodes(s *smeshReader, doc *scene.Document) error {
	n := s.count(80)
	nodes := make([]*scene.NodeDesc, 0, n)
	for i := 0; i < n && s.err == nil; i++ {
		node := &scene.NodeDesc{ID: s.str(), SID: s.str()}
		if s.u8() == uint8(scene.NodeTypeJoint) {
			node.Type = scene.NodeTypeJoint
		}
		parent := s.i32()
		node.Ops = []scene.Op{{Kind: scene.OpMatrix, Values: s.matrix()}}

		kind := scene.InstanceKind(s.u8())
		url := s.str()
		var bindings []scene.Binding
		for j, nb := 0, s.count(4); j < nb && s.err == nil; j++ {
			bindings = append(bindings, scene.Binding{Symbol: s.str(), Target: s.str()})
		}
		switch kind {
		case scene.InstanceNone:
		case scene.InstanceGeometry, scene.InstanceController:
			node.Instances = []scene.Instance{{Kind: kind, URL: url, Bindings: bindings}}
		default:
			return fmt.Errorf("%w: node %d has unknown instance kind %d", ErrInvalidSMeshData, i, kind)
		}

		if s.err != nil {
			break
		}
		switch {
		case parent < 0:
			doc.Roots = append(doc.Roots, node)
		case int(parent) < len(nodes):
			p := nodes[parent]
			p.Children = append(p.Children, node)
		default:
			return fmt.Errorf("%w: node %d references parent %d", ErrInvalidSMeshData, i, parent)
		}
		nodes = append(nodes, node)
	}
	return s.err
}
