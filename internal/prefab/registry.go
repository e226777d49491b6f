package prefab

import "go.uber.org/zap"

// JointRegistry maps joint SIDs and names to entities. The first
// registration of a key wins.
type JointRegistry struct {
	log       *zap.Logger
	bySID     map[string]int
	byName    map[string]int
	names     map[int]string
	ambiguous map[string]bool // SIDs registered more than once
}

// NewJointRegistry creates an empty registry. Ambiguous keys are logged
// through log.
func NewJointRegistry(log *zap.Logger) *JointRegistry {
	if log == nil {
		log = zap.NewNop()
	}
	return &JointRegistry{
		log:       log,
		bySID:     make(map[string]int),
		byName:    make(map[string]int),
		names:     make(map[int]string),
		ambiguous: make(map[string]bool),
	}
}

// Register adds entity under its bone name and SID.
func (r *JointRegistry) Register(entity int, name, sid string) {
	r.names[entity] = name
	if !r.add(r.bySID, "sid", sid, entity) {
		r.ambiguous[sid] = true
	}
	r.add(r.byName, "name", name, entity)
}

// add reports false when key was already taken by another entity.
func (r *JointRegistry) add(m map[string]int, kind, key string, entity int) bool {
	if key == "" {
		return true
	}
	if prev, ok := m[key]; ok {
		r.log.Warn("ambiguous joint "+kind,
			zap.String("key", key),
			zap.Int("kept", prev),
			zap.Int("ignored", entity),
		)
		return false
	}
	m[key] = entity
	return true
}

// LookupJoint resolves a joint reference, trying SIDs before names. A SID
// shared by several joints yields to a name match and is used only when no
// joint has that name.
func (r *JointRegistry) LookupJoint(key string) (int, string, bool) {
	e, ok := r.bySID[key]
	if !ok || r.ambiguous[key] {
		if byName, found := r.byName[key]; found {
			e, ok = byName, true
		}
	}
	if !ok {
		return -1, "", false
	}
	return e, r.names[e], true
}

// Len returns the number of registered joints.
func (r *JointRegistry) Len() int {
	return len(r.names)
}
