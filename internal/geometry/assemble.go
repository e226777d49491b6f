package geometry

import (
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/meshforge/internal/diag"
	"github.com/Faultbox/meshforge/pkg/coord"
)

// DefaultMaxUVTile is the texcoord magnitude above which a buffer is
// flagged for UV tile fixing.
const DefaultMaxUVTile = 16

// Options control assembly.
type Options struct {
	Convention    coord.Convention
	UnitScale     float32 // applied to bounds; zero means one
	MaxUVTile     float32 // zero disables the overflow check
	LoadTexCoord2 bool

	// GenerateTangents builds a tangent frame for buffers with texcoord
	// set 0. FlipNormalMap inverts its handedness.
	GenerateTangents bool
	FlipNormalMap    bool
}

// Assembler builds mesh buffers. It keeps no state between calls.
type Assembler struct {
	opts   Options
	log    *zap.Logger
	report *diag.Report
}

// NewAssembler creates an assembler. Recoverable problems go to report.
func NewAssembler(opts Options, log *zap.Logger, report *diag.Report) *Assembler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assembler{opts: opts, log: log, report: report}
}

// Assemble builds one buffer per usable triangle group, in group order.
func (a *Assembler) Assemble(in Input) []*Buffer {
	out := make([]*Buffer, 0, len(in.Groups))
	for i := range in.Groups {
		if b := a.assembleGroup(in.Name, &in.Groups[i]); b != nil {
			out = append(out, b)
		}
	}
	a.log.Debug("assembled geometry",
		zap.String("geometry", in.Name),
		zap.Int("groups", len(in.Groups)),
		zap.Int("buffers", len(out)),
	)
	return out
}

// attributes returns the group's usable attribute buffers. Unusable ones are
// reported and left nil.
func (a *Assembler) attributes(name string, g *TriangleGroup) [numAttributes]*AttributeBuffer {
	var attrs [numAttributes]*AttributeBuffer
	for attr := AttrPosition; attr < numAttributes; attr++ {
		buf, off := g.Buffers[attr], g.Offsets[attr]
		if buf == nil || off < 0 {
			continue
		}
		if attr == AttrTex1 && !a.opts.LoadTexCoord2 {
			continue
		}
		if buf.Stride < minStride[attr] {
			a.report.Addf(diag.KindStride, name, "%s %q has stride %d, need %d",
				attr, buf.Name, buf.Stride, minStride[attr])
			continue
		}
		if off >= g.Stride {
			a.report.Addf(diag.KindStride, name, "%s offset %d outside corner stride %d",
				attr, off, g.Stride)
			continue
		}
		attrs[attr] = buf
	}
	return attrs
}

func (a *Assembler) assembleGroup(name string, g *TriangleGroup) *Buffer {
	attrs := a.attributes(name, g)
	if attrs[AttrPosition] == nil {
		if g.Buffers[AttrPosition] == nil {
			a.report.Addf(diag.KindMissingBuffer, name, "group %q has no position buffer", g.Material)
		}
		return nil
	}

	tris, err := Triangulate(g.Indices, g.VCount, g.Stride)
	if err != nil {
		a.report.Addf(diag.KindIndexRange, name, "group %q: %v", g.Material, err)
		return nil
	}

	b := &Buffer{
		Name:     name,
		Material: g.Material,
		Remap:    make(RemapTable),
		HasTex1:  attrs[AttrTex1] != nil,
	}
	keys := make(map[VertexKey]uint32)
	// V is flipped only for interleaved multi-stream corners
	flipV := g.Stride > 1
	reverse := a.opts.Convention.ReverseWinding()

	var (
		corner  [3]uint32
		dropped int
	)
	step := 3 * g.Stride
	for t := 0; t+step <= len(tris); t += step {
		var tri [3]VertexKey
		ok := true
		for c := 0; c < 3; c++ {
			tri[c] = a.key(tris[t+c*g.Stride:t+(c+1)*g.Stride], g, &attrs)
			if !inRange(tri[c], &attrs) {
				ok = false
				break
			}
		}
		if !ok {
			dropped++
			continue
		}

		for c, key := range tri {
			idx, hit := keys[key]
			if !hit {
				idx = uint32(len(b.Vertices))
				b.Vertices = append(b.Vertices, a.vertex(key, &attrs, flipV))
				keys[key] = idx
				b.Remap.Add(key.Position, idx)
			}
			corner[c] = idx
		}
		if reverse {
			b.Indices = append(b.Indices, corner[2], corner[1], corner[0])
		} else {
			b.Indices = append(b.Indices, corner[0], corner[1], corner[2])
		}
	}

	if dropped > 0 {
		a.report.Addf(diag.KindIndexRange, name, "group %q: dropped %d triangles with out-of-range indices",
			g.Material, dropped)
	}

	if attrs[AttrNormal] == nil {
		smoothNormals(b.Vertices, b.Indices, a.opts.Convention.FlipX)
		b.GeneratedNormals = true
	}

	if a.opts.GenerateTangents {
		if attrs[AttrTex0] != nil {
			tangents(b.Vertices, b.Indices, a.opts.FlipNormalMap)
			b.HasTangents = true
		} else {
			a.log.Debug("no texcoords for tangents",
				zap.String("geometry", name),
				zap.String("material", g.Material),
			)
		}
	}

	a.finish(b, attrs[AttrTex0] != nil)
	return b
}

// key reads one corner's attribute indices.
func (a *Assembler) key(corner []int32, g *TriangleGroup, attrs *[numAttributes]*AttributeBuffer) VertexKey {
	var idx [numAttributes]int32
	for attr := range idx {
		idx[attr] = -1
		if attrs[attr] != nil {
			idx[attr] = corner[g.Offsets[attr]]
		}
	}
	return VertexKey{Position: idx[AttrPosition], Normal: idx[AttrNormal], Tex0: idx[AttrTex0], Tex1: idx[AttrTex1]}
}

func inRange(k VertexKey, attrs *[numAttributes]*AttributeBuffer) bool {
	for attr, i := range [numAttributes]int32{k.Position, k.Normal, k.Tex0, k.Tex1} {
		if attrs[attr] == nil {
			continue
		}
		if i < 0 || int(i) >= attrs[attr].Count() {
			return false
		}
	}
	return true
}

func (a *Assembler) vertex(k VertexKey, attrs *[numAttributes]*AttributeBuffer, flipV bool) Vertex {
	zUp := a.opts.Convention.ZUp
	var v Vertex

	p := attrs[AttrPosition].element(k.Position, 3)
	v.Position = coord.NormalizeXYZ(p[0], p[1], p[2], zUp)

	if k.Normal >= 0 {
		n := attrs[AttrNormal].element(k.Normal, 3)
		v.Normal = coord.NormalizeXYZ(n[0], n[1], n[2], zUp)
		if v.Normal.Len() > 0 {
			v.Normal = v.Normal.Normalize()
		}
	}

	texcoord := func(buf *AttributeBuffer, i int32) mgl32.Vec2 {
		uv := buf.element(i, 2)
		if flipV {
			return mgl32.Vec2{uv[0], 1 - uv[1]}
		}
		return mgl32.Vec2{uv[0], uv[1]}
	}
	if k.Tex0 >= 0 {
		v.Tex0 = texcoord(attrs[AttrTex0], k.Tex0)
	}
	if k.Tex1 >= 0 {
		v.Tex1 = texcoord(attrs[AttrTex1], k.Tex1)
	}
	return v
}

// finish computes bounds and the UV tile flag.
func (a *Assembler) finish(b *Buffer, hasTex bool) {
	limit := a.opts.MaxUVTile
	for _, v := range b.Vertices {
		b.Bounds.Extend(v.Position)
		if hasTex && limit > 0 && !b.UVOverflow {
			if v.Tex0[0] > limit || v.Tex0[0] < -limit || v.Tex0[1] > limit || v.Tex0[1] < -limit {
				b.UVOverflow = true
			}
		}
	}
	if s := a.opts.UnitScale; s != 0 && s != 1 {
		b.Bounds.Scale(s)
	}
}
