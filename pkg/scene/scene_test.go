package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrimitive_Stride(t *testing.T) {
	tests := []struct {
		name   string
		inputs []Input
		want   int
	}{
		{"none", nil, 0},
		{"single", []Input{{Semantic: SemanticVertex, Offset: 0}}, 1},
		{"shared offset", []Input{{Offset: 0}, {Offset: 0}}, 1},
		{"interleaved", []Input{{Offset: 0}, {Offset: 1}, {Offset: 2}}, 3},
		{"gap", []Input{{Offset: 0}, {Offset: 3}}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Primitive{Inputs: tt.inputs}
			assert.Equal(t, tt.want, p.Stride())
		})
	}
}

func TestSource_Count(t *testing.T) {
	assert.Equal(t, 2, (&Source{Stride: 3, Data: make([]float32, 6)}).Count())
	assert.Equal(t, 3, (&Source{Stride: 1, Names: []string{"a", "b", "c"}}).Count())
	assert.Equal(t, 0, (&Source{Stride: 0, Data: make([]float32, 6)}).Count())

	var nilSource *Source
	assert.Equal(t, 0, nilSource.Count())
}

func TestDocument_Lookup(t *testing.T) {
	doc := NewDocument()
	doc.Geometries = append(doc.Geometries, &Geometry{ID: "mesh", Sources: map[string]*Source{"pos": {ID: "pos"}}})
	doc.Controllers = append(doc.Controllers, &Controller{ID: "skin", Source: "mesh"})

	assert.NotNil(t, doc.Geometry("#mesh"))
	assert.Nil(t, doc.Geometry("skin"))
	assert.NotNil(t, doc.Controller("skin"))
	assert.NotNil(t, doc.Geometry("mesh").Source("#pos"))
	assert.Nil(t, doc.Geometry("mesh").Source("nrm"))
}

func TestDocument_Walk(t *testing.T) {
	doc := NewDocument()
	doc.Roots = []*NodeDesc{
		{ID: "a", Children: []*NodeDesc{
			{ID: "b", Children: []*NodeDesc{{ID: "c"}}},
			{ID: "d"},
		}},
		{ID: "e"},
	}

	var order []string
	var depths []int
	doc.Walk(func(n *NodeDesc, depth int) bool {
		order = append(order, n.ID)
		depths = append(depths, depth)
		return true
	})
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, order)
	assert.Equal(t, []int{0, 1, 2, 1, 0}, depths)
	assert.Equal(t, 5, doc.NodeCount())

	order = order[:0]
	doc.Walk(func(n *NodeDesc, _ int) bool {
		order = append(order, n.ID)
		return n.ID != "b"
	})
	assert.Equal(t, []string{"a", "b", "d", "e"}, order)
}

func TestNodeDesc_DisplayName(t *testing.T) {
	assert.Equal(t, "hip-node", (&NodeDesc{ID: "hip-node", Name: "Hip"}).DisplayName())
	assert.Equal(t, "Hip", (&NodeDesc{Name: "Hip"}).DisplayName())
}
