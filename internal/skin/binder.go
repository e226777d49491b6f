package skin

import (
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/meshforge/internal/diag"
	"github.com/Faultbox/meshforge/internal/geometry"
	"github.com/Faultbox/meshforge/pkg/coord"
	"github.com/Faultbox/meshforge/pkg/scene"
)

// Registry finds joint entities by SID or name.
type Registry interface {
	LookupJoint(name string) (entity int, boneName string, ok bool)
}

// Options control binding.
type Options struct {
	ZUp           bool
	GPUBonesCount int // zero disables the software skinning flag
}

// Buffer is a skinned copy of one assembled buffer.
type Buffer struct {
	Source   *geometry.Buffer
	Vertices []SkinVertex
}

// Mesh is a bound skin.
type Mesh struct {
	Controller       string
	Joints           []Joint
	Buffers          []Buffer
	SoftwareSkinning bool
}

// Binder resolves controllers against a joint registry.
type Binder struct {
	opts   Options
	log    *zap.Logger
	report *diag.Report
}

// NewBinder creates a binder. Unresolved joints go to report.
func NewBinder(opts Options, log *zap.Logger, report *diag.Report) *Binder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Binder{opts: opts, log: log, report: report}
}

// Bind resolves the controller's joints and packs its weights into every
// buffer assembled from the controller's source geometry.
func (b *Binder) Bind(ctrl *scene.Controller, buffers []*geometry.Buffer, reg Registry) *Mesh {
	joints := ResolveJoints(ctrl, b.opts.ZUp, reg, b.report)
	facts := Facts(ctrl, joints, b.report)

	m := &Mesh{
		Controller:       ctrl.ID,
		Joints:           joints,
		Buffers:          make([]Buffer, len(buffers)),
		SoftwareSkinning: b.opts.GPUBonesCount > 0 && len(joints) >= b.opts.GPUBonesCount,
	}
	unweighted := 0
	for i, buf := range buffers {
		m.Buffers[i] = Buffer{Source: buf, Vertices: Bind(buf.Vertices, facts, buf.Remap)}
		for _, v := range m.Buffers[i].Vertices {
			if v.Count == 0 {
				unweighted++
			}
		}
	}
	if unweighted > 0 {
		b.report.Addf(diag.KindUnweightedVertex, ctrl.ID,
			"%d vertices have no influences and stay at the origin", unweighted)
	}

	b.log.Debug("bound skin",
		zap.String("controller", ctrl.ID),
		zap.Int("joints", len(joints)),
		zap.Int("facts", len(facts)),
		zap.Bool("software", m.SoftwareSkinning),
	)
	return m
}

// ResolveJoints looks every controller joint up in reg and computes its bind
// pose. When the controller carries raw name tokens, names containing
// whitespace are recovered by joining consecutive tokens until one matches.
// A joint that matches nothing consumes one token and stays unresolved.
func ResolveJoints(ctrl *scene.Controller, zUp bool, reg Registry, report *diag.Report) []Joint {
	bindShape := coord.LoadMatrix(ctrl.BindShape, zUp)
	joints := make([]Joint, len(ctrl.Joints))

	tokens := ctrl.NameTokens
	pos := 0
	for i, sj := range ctrl.Joints {
		j := &joints[i]
		j.InverseBind = coord.LoadMatrix(sj.InverseBind, zUp)
		j.BindPose = j.InverseBind.Mul4(bindShape)
		j.EntityIndex = -1

		var (
			name   string
			entity int
			bone   string
			ok     bool
		)
		if len(tokens) == 0 {
			name = sj.Name
			entity, bone, ok = reg.LookupJoint(name)
		} else {
			// leave at least one token for each joint still to come
			limit := len(tokens) - (len(ctrl.Joints) - i - 1)
			var n int
			name, n, entity, bone, ok = joinTokens(tokens, pos, limit, reg)
			if !ok {
				n = 1
				if pos < len(tokens) {
					name = tokens[pos]
				}
			}
			pos += n
		}

		j.Name = name
		if !ok {
			report.Addf(diag.KindUnresolvedBone, ctrl.ID, "joint %q matches no node", name)
			continue
		}
		j.Name = bone
		j.EntityIndex = entity
	}
	return joints
}

// joinTokens tries tokens[pos:k] for growing k up to limit and returns the
// first joined name the registry knows with the number of tokens used.
func joinTokens(tokens []string, pos, limit int, reg Registry) (string, int, int, string, bool) {
	var sb strings.Builder
	for k := pos; k < limit && k < len(tokens); k++ {
		if k > pos {
			sb.WriteByte(' ')
		}
		sb.WriteString(tokens[k])
		if entity, bone, ok := reg.LookupJoint(sb.String()); ok {
			return sb.String(), k - pos + 1, entity, bone, true
		}
	}
	return "", 0, -1, "", false
}

// Facts converts the controller's influences, dropping those that point at
// unresolved or missing joints.
func Facts(ctrl *scene.Controller, joints []Joint, report *diag.Report) []Fact {
	facts := make([]Fact, 0, len(ctrl.Facts))
	outOfRange := 0
	for _, f := range ctrl.Facts {
		if int(f.Joint) >= len(joints) {
			outOfRange++
			continue
		}
		if !joints[f.Joint].Resolved() {
			continue
		}
		facts = append(facts, Fact{VertexID: f.Vertex, Bone: int32(f.Joint), Weight: f.Weight})
	}
	if outOfRange > 0 {
		report.Addf(diag.KindIndexRange, ctrl.ID, "%d weights reference missing joints", outOfRange)
	}
	return facts
}
