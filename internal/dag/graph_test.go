package dag

import (
	"encoding/json"
	"errors"
	"testing"

	"bytemomo/narwhal/internal/domain"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeRaw(t *testing.T, s string) RawGraph {
	t.Helper()
	var raw RawGraph
	require.NoError(t, json.Unmarshal([]byte(s), &raw))
	return raw
}

func TestNormalizeSynthesizesEdgesFromDependencies(t *testing.T) {
	raw := decodeRaw(t, `{"nodes":[
		{"id":"enum","phase":"enumerate","description":"list /export"},
		{"id":"trig","phase":"trigger","description":"request ../../etc/passwd","dependencies":["enum"]},
		{"id":"obs","phase":"observe","description":"check response body","dependencies":["trig"]}
	]}`)

	g, warnings := Normalize(raw)
	assert.Empty(t, warnings)

	want := []domain.TaskEdge{{Src: "enum", Dst: "trig"}, {Src: "trig", Dst: "obs"}}
	if diff := cmp.Diff(want, g.Edges); diff != "" {
		t.Fatalf("edges mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeAcceptsAlternateEdgeKeys(t *testing.T) {
	raw := decodeRaw(t, `{"nodes":[
		{"id":1,"phase":"enumerate","description":"a"},
		{"id":2,"phase":"Trigger","description":"b"}
	],
	"edges":[{"source":1,"target":2},{"src":"1","dst":"2"}],
	"annotation":"200 with passwd contents"}`)

	g, warnings := Normalize(raw)
	assert.Empty(t, warnings)
	assert.Equal(t, []domain.TaskEdge{{Src: "1", Dst: "2"}}, g.Edges, "duplicate spellings collapse")
	assert.Equal(t, domain.TaskTrigger, g.Nodes[1].Phase)
	assert.Equal(t, "200 with passwd contents", g.EvidenceCriteria)
}

func TestNormalizeDropsInvalidNodesAndEdges(t *testing.T) {
	raw := decodeRaw(t, `{"nodes":[
		{"id":"a","phase":"enumerate","description":"ok"},
		{"phase":"trigger","description":"no id"},
		{"id":"b","description":"no phase"},
		{"id":"c","phase":"observe"},
		{"id":"d","phase":"exploit","description":"unknown phase"},
		{"id":"a","phase":"compare","description":"duplicate"},
		{"id":"e","phase":"compare","description":"ok","dependencies":["a","ghost"]}
	],
	"edges":[{"src":"a","dst":"e"},{"src":"a","dst":"ghost"},{"src":"d","dst":"e"}]}`)

	g, warnings := Normalize(raw)

	ids := []string{}
	for _, n := range g.Nodes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"a", "e"}, ids)
	assert.Equal(t, []domain.TaskEdge{{Src: "a", Dst: "e"}}, g.Edges)
	assert.Equal(t, []string{"a"}, g.Nodes[1].Dependencies)
	assert.Len(t, warnings, 7)
}

func TestOrderIsTopological(t *testing.T) {
	tests := []struct {
		name  string
		graph domain.TaskGraph
		want  []string
	}{
		{
			name: "chain",
			graph: graphOf([]string{"obs", "trig", "enum"},
				[2]string{"enum", "trig"}, [2]string{"trig", "obs"}),
			want: []string{"enum", "trig", "obs"},
		},
		{
			name: "diamond keeps declaration order among ready nodes",
			graph: graphOf([]string{"a", "c", "b", "d"},
				[2]string{"a", "b"}, [2]string{"a", "c"}, [2]string{"b", "d"}, [2]string{"c", "d"}),
			want: []string{"a", "c", "b", "d"},
		},
		{
			name:  "no edges",
			graph: graphOf([]string{"x", "y"}),
			want:  []string{"x", "y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := Order(tt.graph)
			require.NoError(t, err)
			assert.Equal(t, tt.want, order)
			assert.True(t, IsTopological(tt.graph, order))
		})
	}
}

func TestOrderCycleFallsBackToDeclaration(t *testing.T) {
	g := graphOf([]string{"a", "b", "c", "d"},
		[2]string{"a", "b"}, [2]string{"b", "c"}, [2]string{"c", "b"}, [2]string{"c", "d"})

	for i := 0; i < 3; i++ {
		order, err := Order(g)
		var cycle *domain.GraphCycleError
		require.True(t, errors.As(err, &cycle))
		assert.Equal(t, []string{"b", "c", "d"}, cycle.Remaining)
		assert.Equal(t, []string{"a", "b", "c", "d"}, order, "fallback is deterministic")
		assert.False(t, IsTopological(g, order))
	}
}

func TestOrderSelfLoopIsACycle(t *testing.T) {
	g := graphOf([]string{"a"}, [2]string{"a", "a"})
	order, err := Order(g)
	assert.Error(t, err)
	assert.Equal(t, []string{"a"}, order)
}

func TestFallbackGraph(t *testing.T) {
	g := Fallback("read /flag")
	order, err := Order(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"enumerate", "trigger"}, order)
	assert.Equal(t, domain.TaskEnumerate, g.Nodes[0].Phase)
	assert.Equal(t, domain.TaskTrigger, g.Nodes[1].Phase)
}

func graphOf(ids []string, edges ...[2]string) domain.TaskGraph {
	g := domain.TaskGraph{}
	for _, id := range ids {
		g.Nodes = append(g.Nodes, domain.TaskNode{ID: id, Phase: domain.TaskEnumerate, Description: id})
	}
	for _, e := range edges {
		g.Edges = append(g.Edges, domain.TaskEdge{Src: e[0], Dst: e[1]})
	}
	return g
}
