// COLLADA (.dae) scene parser.
package formats

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Faultbox/meshforge/pkg/scene"
	"github.com/Faultbox/meshforge/pkg/xmlreader"
)

// COLLADA format errors.
var (
	ErrNotCollada = errors.New("not a COLLADA document: missing <COLLADA> root")
)

// colladaSignature is searched for in the head of a file to detect COLLADA.
var colladaSignature = []byte("<COLLADA")

// IsCollada reports whether data looks like a COLLADA document.
func IsCollada(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, colladaSignature)
}

type daeParser struct {
	r   *xmlreader.Reader
	doc *scene.Document
}

// ParseDAE parses a COLLADA document. The result keeps every value as
// authored: no up-axis or unit conversion is applied.
func ParseDAE(r io.Reader) (*scene.Document, error) {
	p := &daeParser{
		r:   xmlreader.New(r),
		doc: scene.NewDocument(),
	}

	seenRoot := false
	for p.r.Read() {
		if p.r.Kind() != xmlreader.Element {
			continue
		}
		switch p.r.Name() {
		case "COLLADA":
			seenRoot = true
		case "up_axis":
			p.doc.UpAxis = strings.TrimSpace(p.r.ReadText())
		case "unit":
			p.parseUnit()
		case "image":
			p.parseImage()
		case "material":
			p.parseMaterial()
		case "geometry":
			p.doc.Geometries = append(p.doc.Geometries, p.parseGeometry())
		case "controller":
			if c := p.parseController(); c != nil {
				p.doc.Controllers = append(p.doc.Controllers, c)
			}
		case "visual_scene":
			p.parseVisualScene()
		case "library_effects", "library_animations", "library_animation_clips",
			"library_cameras", "library_lights":
			p.r.Skip()
		}
	}

	if err := p.r.Err(); err != nil {
		return nil, fmt.Errorf("parse collada: %w", err)
	}
	if !seenRoot {
		return nil, ErrNotCollada
	}
	return p.doc, nil
}

func (p *daeParser) warnf(format string, args ...any) {
	p.doc.Warnings = append(p.doc.Warnings, fmt.Sprintf(format, args...))
}

func (p *daeParser) parseUnit() {
	if name, ok := p.r.LookupAttr("name"); ok {
		p.doc.UnitName = name
	}
	if meter, ok := p.r.LookupAttr("meter"); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(meter), 32); err == nil {
			p.doc.UnitMeter = float32(f)
		} else {
			p.warnf("unit: invalid meter value %q", meter)
		}
	}
}

func (p *daeParser) parseImage() {
	id := p.r.Attr("id")
	depth := p.r.Depth()
	for p.r.Read() {
		if p.r.Kind() == xmlreader.EndElement && p.r.Depth() == depth {
			return
		}
		if p.r.IsStart("init_from") {
			p.doc.Images[id] = p.r.ReadText()
		}
	}
}

func (p *daeParser) parseMaterial() {
	m := scene.Material{
		ID:   p.r.Attr("id"),
		Name: p.r.Attr("name"),
	}
	depth := p.r.Depth()
	for p.r.Read() {
		if p.r.Kind() == xmlreader.EndElement && p.r.Depth() == depth {
			break
		}
		if p.r.IsStart("instance_effect") {
			m.Effect = uriToID(p.r.Attr("url"))
		}
	}
	if m.ID != "" {
		p.doc.Materials[m.ID] = m
	}
}

func (p *daeParser) parseGeometry() *scene.Geometry {
	g := &scene.Geometry{
		ID:      p.r.Attr("id"),
		Name:    p.r.Attr("name"),
		Sources: make(map[string]*scene.Source),
	}

	depth := p.r.Depth()
	for p.r.Read() {
		if p.r.Kind() == xmlreader.EndElement && p.r.Depth() == depth {
			break
		}
		if p.r.Kind() != xmlreader.Element {
			continue
		}
		switch name := p.r.Name(); name {
		case "source":
			src := p.parseSource()
			g.Sources[src.ID] = src
		case "vertices":
			g.VerticesID = p.r.Attr("id")
			g.VertexInputs = p.parseInputs()
		case "triangles", "polylist", "polygons":
			g.Primitives = append(g.Primitives, p.parsePrimitive(name))
		case "lines", "linestrips", "tristrips", "trifans":
			g.Primitives = append(g.Primitives, &scene.Primitive{
				Kind:     scene.PrimitiveUnsupported,
				Tag:      name,
				Material: p.r.Attr("material"),
			})
			p.r.Skip()
		}
	}
	return g
}

// parseSource reads a <source> element: its float or name array and the
// accessor stride and param names.
func (p *daeParser) parseSource() *scene.Source {
	src := &scene.Source{ID: p.r.Attr("id"), Stride: 1}
	depth := p.r.Depth()
	for p.r.Read() {
		if p.r.Kind() == xmlreader.EndElement && p.r.Depth() == depth {
			break
		}
		if p.r.Kind() != xmlreader.Element {
			continue
		}
		switch p.r.Name() {
		case "float_array":
			src.Data = p.parseFloats(p.r.ReadText())
		case "Name_array", "IDREF_array":
			src.Names = strings.Fields(p.r.ReadText())
		case "accessor":
			if s := atoi(p.r.Attr("stride")); s > 0 {
				src.Stride = s
			}
		case "param":
			src.Params = append(src.Params, p.r.Attr("name"))
		}
	}
	return src
}

// parseInputs collects <input> children until the current element closes.
func (p *daeParser) parseInputs() []scene.Input {
	var inputs []scene.Input
	depth := p.r.Depth()
	for p.r.Read() {
		if p.r.Kind() == xmlreader.EndElement && p.r.Depth() == depth {
			break
		}
		if p.r.IsStart("input") {
			inputs = append(inputs, p.readInput())
		}
	}
	return inputs
}

func (p *daeParser) readInput() scene.Input {
	return scene.Input{
		Semantic: p.r.Attr("semantic"),
		Source:   uriToID(p.r.Attr("source")),
		Offset:   atoi(p.r.Attr("offset")),
		Set:      atoi(p.r.Attr("set")),
	}
}

func (p *daeParser) parsePrimitive(tag string) *scene.Primitive {
	prim := &scene.Primitive{
		Tag:      tag,
		Material: p.r.Attr("material"),
		Count:    atoi(p.r.Attr("count")),
	}
	switch tag {
	case "triangles":
		prim.Kind = scene.PrimitiveTriangles
	case "polylist":
		prim.Kind = scene.PrimitivePolylist
	default:
		prim.Kind = scene.PrimitivePolygons
	}

	depth := p.r.Depth()
	for p.r.Read() {
		if p.r.Kind() == xmlreader.EndElement && p.r.Depth() == depth {
			break
		}
		if p.r.Kind() != xmlreader.Element {
			continue
		}
		switch p.r.Name() {
		case "input":
			prim.Inputs = append(prim.Inputs, p.readInput())
		case "vcount":
			prim.VCount = p.parseInts(p.r.ReadText())
		case "p":
			indices := p.parseIndices(p.r.ReadText())
			if prim.Kind == scene.PrimitivePolygons {
				// each <p> of a <polygons> element is one face
				if stride := prim.Stride(); stride > 0 {
					prim.VCount = append(prim.VCount, len(indices)/stride)
				}
			}
			prim.P = append(prim.P, indices...)
		case "ph":
			p.warnf("%s: polygons with holes are not supported, face skipped", tag)
			p.r.Skip()
		}
	}
	return prim
}

func (p *daeParser) parseController() *scene.Controller {
	c := &scene.Controller{
		ID:   p.r.Attr("id"),
		Name: p.r.Attr("name"),
	}
	isSkin := false

	depth := p.r.Depth()
	for p.r.Read() {
		if p.r.Kind() == xmlreader.EndElement && p.r.Depth() == depth {
			break
		}
		if p.r.IsStart("skin") {
			isSkin = true
			p.parseSkin(c)
		} else if p.r.IsStart("morph") {
			p.warnf("controller %s: morph targets are not supported", c.ID)
			p.r.Skip()
		}
	}
	if !isSkin {
		return nil
	}
	return c
}

// skinData is the raw content of a <skin> element before source resolution.
type skinData struct {
	sources      []*scene.Source
	jointInputs  []scene.Input
	weightInputs []scene.Input
	vcount       []int
	v            []int32
}

func (p *daeParser) parseSkin(c *scene.Controller) {
	c.Source = uriToID(p.r.Attr("source"))
	var sd skinData

	depth := p.r.Depth()
	for p.r.Read() {
		if p.r.Kind() == xmlreader.EndElement && p.r.Depth() == depth {
			break
		}
		if p.r.Kind() != xmlreader.Element {
			continue
		}
		switch p.r.Name() {
		case "bind_shape_matrix":
			if f := p.parseFloats(p.r.ReadText()); len(f) >= 16 {
				c.BindShape = f[:16]
			}
		case "source":
			sd.sources = append(sd.sources, p.parseSource())
		case "joints":
			sd.jointInputs = p.parseInputs()
		case "vertex_weights":
			p.parseVertexWeights(&sd)
		}
	}

	p.resolveSkin(c, &sd)
}

func (p *daeParser) parseVertexWeights(sd *skinData) {
	depth := p.r.Depth()
	for p.r.Read() {
		if p.r.Kind() == xmlreader.EndElement && p.r.Depth() == depth {
			return
		}
		if p.r.Kind() != xmlreader.Element {
			continue
		}
		switch p.r.Name() {
		case "input":
			sd.weightInputs = append(sd.weightInputs, p.readInput())
		case "vcount":
			sd.vcount = p.parseInts(p.r.ReadText())
		case "v":
			sd.v = p.parseIndices(p.r.ReadText())
		}
	}
}

// resolveSkin binds the joint name, inverse-bind and weight sources and
// expands <vcount>/<v> into weight facts. Sources are found through the
// <joints>/<vertex_weights> inputs, then through accessor param names, then
// through the "-Matrices"/"-Weights" id suffixes some exporters rely on.
func (p *daeParser) resolveSkin(c *scene.Controller, sd *skinData) {
	byID := make(map[string]*scene.Source, len(sd.sources))
	for _, s := range sd.sources {
		byID[s.ID] = s
	}

	find := func(semantic string, inputs ...[]scene.Input) *scene.Source {
		for _, list := range inputs {
			for _, in := range list {
				if in.Semantic == semantic {
					if s := byID[in.Source]; s != nil {
						return s
					}
				}
			}
		}
		return nil
	}
	fallback := func(param, suffix string) *scene.Source {
		for _, s := range sd.sources {
			for _, name := range s.Params {
				if name == param {
					return s
				}
			}
		}
		for _, s := range sd.sources {
			if strings.Contains(s.ID, suffix) {
				return s
			}
		}
		return nil
	}

	names := find(scene.SemanticJoint, sd.jointInputs, sd.weightInputs)
	if names == nil {
		for _, s := range sd.sources {
			if len(s.Names) > 0 {
				names = s
				break
			}
		}
	}
	matrices := find(scene.SemanticInvBind, sd.jointInputs)
	if matrices == nil {
		matrices = fallback(scene.SemanticTransform, "-Matrices")
	}
	weights := find(scene.SemanticWeight, sd.weightInputs)
	if weights == nil {
		weights = fallback(scene.SemanticWeight, "-Weights")
	}

	if matrices == nil {
		p.warnf("controller %s: no inverse bind matrices", c.ID)
		return
	}
	if names != nil {
		c.NameTokens = names.Names
	}

	count := len(matrices.Data) / 16
	c.Joints = make([]scene.Joint, count)
	exact := len(c.NameTokens) == count
	for i := range c.Joints {
		c.Joints[i].InverseBind = matrices.Data[i*16 : i*16+16]
		if exact {
			c.Joints[i].Name = c.NameTokens[i]
		}
	}

	jointOff, weightOff, stride := 0, 1, 2
	if len(sd.weightInputs) > 0 {
		stride = 0
		for _, in := range sd.weightInputs {
			switch in.Semantic {
			case scene.SemanticJoint:
				jointOff = in.Offset
			case scene.SemanticWeight:
				weightOff = in.Offset
			}
			if in.Offset+1 > stride {
				stride = in.Offset + 1
			}
		}
	}
	if weights == nil {
		if len(sd.vcount) > 0 {
			p.warnf("controller %s: no weight source", c.ID)
		}
		return
	}

	id := 0
	for vertex, n := range sd.vcount {
		for k := 0; k < n; k++ {
			if id+stride > len(sd.v) {
				p.warnf("controller %s: vertex weight list truncated at vertex %d", c.ID, vertex)
				return
			}
			joint := sd.v[id+jointOff]
			wi := sd.v[id+weightOff]
			id += stride

			if joint < 0 || wi < 0 || int(wi) >= len(weights.Data) {
				p.warnf("controller %s: weight index out of range at vertex %d", c.ID, vertex)
				continue
			}
			c.Facts = append(c.Facts, scene.WeightFact{
				Vertex: uint32(vertex),
				Joint:  uint32(joint),
				Weight: weights.Data[wi],
			})
		}
	}
}

func (p *daeParser) parseVisualScene() {
	depth := p.r.Depth()
	for p.r.Read() {
		if p.r.Kind() == xmlreader.EndElement && p.r.Depth() == depth {
			return
		}
		if p.r.IsStart("node") {
			p.parseNode(nil)
		}
	}
}

// parseNode reads a <node> element and its subtree and attaches it to parent,
// or to the document roots when parent is nil. Transform operators are
// recorded in document order; composing them is left to the caller.
func (p *daeParser) parseNode(parent *scene.NodeDesc) *scene.NodeDesc {
	n := &scene.NodeDesc{
		ID:   p.r.Attr("id"),
		Name: p.r.Attr("name"),
		SID:  p.r.Attr("sid"),
	}
	if p.r.Attr("type") == "JOINT" {
		n.Type = scene.NodeTypeJoint
	}
	if parent != nil {
		parent.Children = append(parent.Children, n)
	} else {
		p.doc.Roots = append(p.doc.Roots, n)
	}

	depth := p.r.Depth()
	for p.r.Read() {
		if p.r.Kind() == xmlreader.EndElement && p.r.Depth() == depth {
			break
		}
		if p.r.Kind() != xmlreader.Element {
			continue
		}
		switch p.r.Name() {
		case "node":
			p.parseNode(n)
		case "translate":
			n.Ops = append(n.Ops, p.readOp(scene.OpTranslate, 3))
		case "rotate":
			n.Ops = append(n.Ops, p.readOp(scene.OpRotate, 4))
		case "scale":
			n.Ops = append(n.Ops, p.readOp(scene.OpScale, 3))
		case "matrix":
			n.Ops = append(n.Ops, p.readOp(scene.OpMatrix, 16))
		case "instance_geometry":
			n.Instances = append(n.Instances, p.parseInstance(scene.InstanceGeometry))
		case "instance_controller":
			n.Instances = append(n.Instances, p.parseInstance(scene.InstanceController))
		case "instance_node", "instance_camera", "instance_light":
			p.r.Skip()
		case "extra":
			p.r.Skip()
		}
	}
	return n
}

// identityRows is the 4x4 identity in row-major order.
var identityRows = [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// readOp reads a transform element. Missing values of empty or short
// elements are zero, except scale which defaults to one and matrix which
// keeps the identity.
func (p *daeParser) readOp(kind scene.OpKind, want int) scene.Op {
	values := p.parseFloats(p.r.ReadText())
	if len(values) < want {
		full := make([]float32, want)
		switch kind {
		case scene.OpScale:
			full[0], full[1], full[2] = 1, 1, 1
		case scene.OpMatrix:
			copy(full, identityRows[:])
		}
		copy(full, values)
		if len(values) > 0 {
			p.warnf("%s: expected %d values, got %d", opName(kind), want, len(values))
		}
		values = full
	}
	return scene.Op{Kind: kind, Values: values[:want]}
}

func (p *daeParser) parseInstance(kind scene.InstanceKind) scene.Instance {
	inst := scene.Instance{Kind: kind, URL: uriToID(p.r.Attr("url"))}
	depth := p.r.Depth()
	for p.r.Read() {
		if p.r.Kind() == xmlreader.EndElement && p.r.Depth() == depth {
			break
		}
		if p.r.IsStart("instance_material") {
			inst.Bindings = append(inst.Bindings, scene.Binding{
				Symbol: uriToID(p.r.Attr("symbol")),
				Target: uriToID(p.r.Attr("target")),
			})
		}
	}
	return inst
}

func (p *daeParser) parseFloats(text string) []float32 {
	fields := strings.Fields(text)
	out := make([]float32, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			p.warnf("invalid float %q", f)
			v = 0
		}
		out = append(out, float32(v))
	}
	return out
}

func (p *daeParser) parseInts(text string) []int {
	fields := strings.Fields(text)
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			p.warnf("invalid integer %q", f)
		}
		out = append(out, v)
	}
	return out
}

func (p *daeParser) parseIndices(text string) []int32 {
	fields := strings.Fields(text)
	out := make([]int32, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseInt(f, 10, 32)
		if err != nil {
			p.warnf("invalid index %q", f)
			v = -1
		}
		out = append(out, int32(v))
	}
	return out
}

func opName(k scene.OpKind) string {
	switch k {
	case scene.OpTranslate:
		return "translate"
	case scene.OpRotate:
		return "rotate"
	case scene.OpScale:
		return "scale"
	default:
		return "matrix"
	}
}

// uriToID strips the leading '#' of a local URI fragment.
func uriToID(uri string) string {
	return strings.TrimPrefix(strings.TrimSpace(uri), "#")
}

func atoi(s string) int {
	v, _ := strconv.Atoi(strings.TrimSpace(s))
	return v
}
