package dag

import (
	"encoding/json"
	"fmt"
	"strings"

	"bytemomo/narwhal/internal/domain"
)

// text accepts a JSON string or number so that numeric ids survive decoding.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(b))
	}
	*t = text(n.String())
	return nil
}

type rawNode struct {
	ID           text   `json:"id"`
	Phase        string `json:"phase"`
	Description  string `json:"description"`
	Dependencies []text `json:"dependencies"`
}

type rawEdge struct {
	Src    text `json:"src"`
	Source text `json:"source"`
	Dst    text `json:"dst"`
	Target text `json:"target"`
}

// RawGraph is the task graph exactly as the reasoning collaborator sent it.
type RawGraph struct {
	Nodes            []rawNode `json:"nodes"`
	Edges            []rawEdge `json:"edges"`
	EvidenceCriteria string    `json:"evidence_criteria"`
	Annotation       string    `json:"annotation"`
}

// Normalize turns an untrusted payload into a canonical graph. Nodes missing
// id, phase or description, nodes with an unknown phase and duplicate ids are
// dropped. When no edges are given they are synthesized from dependencies.
// Edges and dependencies that reference unknown nodes are dropped. Every
// drop is reported as a warning.
func Normalize(raw RawGraph) (domain.TaskGraph, []string) {
	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	g := domain.TaskGraph{EvidenceCriteria: strings.TrimSpace(raw.EvidenceCriteria)}
	if g.EvidenceCriteria == "" {
		g.EvidenceCriteria = strings.TrimSpace(raw.Annotation)
	}

	known := map[string]struct{}{}
	for i, rn := range raw.Nodes {
		id := strings.TrimSpace(string(rn.ID))
		phase := domain.TaskPhase(strings.ToLower(strings.TrimSpace(rn.Phase)))
		desc := strings.TrimSpace(rn.Description)

		switch {
		case id == "":
			warn("node %d dropped: missing id", i)
			continue
		case phase == "":
			warn("node %s dropped: missing phase", id)
			continue
		case desc == "":
			warn("node %s dropped: missing description", id)
			continue
		case !phase.Valid():
			warn("node %s dropped: unknown phase %q", id, phase)
			continue
		}
		if _, dup := known[id]; dup {
			warn("node %s dropped: duplicate id", id)
			continue
		}
		known[id] = struct{}{}

		var deps []string
		for _, d := range rn.Dependencies {
			if s := strings.TrimSpace(string(d)); s != "" {
				deps = append(deps, s)
			}
		}
		g.Nodes = append(g.Nodes, domain.TaskNode{ID: id, Phase: phase, Description: desc, Dependencies: deps})
	}

	var candidates []domain.TaskEdge
	if len(raw.Edges) > 0 {
		for _, re := range raw.Edges {
			src := strings.TrimSpace(string(re.Src))
			if src == "" {
				src = strings.TrimSpace(string(re.Source))
			}
			dst := strings.TrimSpace(string(re.Dst))
			if dst == "" {
				dst = strings.TrimSpace(string(re.Target))
			}
			candidates = append(candidates, domain.TaskEdge{Src: src, Dst: dst})
		}
	} else {
		for _, n := range g.Nodes {
			for _, d := range n.Dependencies {
				candidates = append(candidates, domain.TaskEdge{Src: d, Dst: n.ID})
			}
		}
	}

	seen := map[domain.TaskEdge]struct{}{}
	for _, e := range candidates {
		_, okSrc := known[e.Src]
		_, okDst := known[e.Dst]
		if !okSrc || !okDst {
			warn("edge %s -> %s dropped: unknown endpoint", e.Src, e.Dst)
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		g.Edges = append(g.Edges, e)
	}

	for i := range g.Nodes {
		n := &g.Nodes[i]
		kept := n.Dependencies[:0]
		for _, d := range n.Dependencies {
			if _, ok := known[d]; ok {
				kept = append(kept, d)
			}
		}
		n.Dependencies = kept
		if len(n.Dependencies) == 0 {
			n.Dependencies = nil
		}
	}

	return g, warnings
}

// Fallback is the minimal enumerate -> trigger chain used when no usable
// graph could be built.
func Fallback(objective string) domain.TaskGraph {
	return domain.TaskGraph{
		Nodes: []domain.TaskNode{
			{ID: "enumerate", Phase: domain.TaskEnumerate, Description: "Enumerate the attack surface relevant to: " + objective},
			{ID: "trigger", Phase: domain.TaskTrigger, Description: "Attempt to trigger and confirm: " + objective, Dependencies: []string{"enumerate"}},
		},
		Edges:            []domain.TaskEdge{{Src: "enumerate", Dst: "trigger"}},
		EvidenceCriteria: "output demonstrates the objective",
	}
}

// Order returns a topological order of g. Among ready nodes the one declared
// first runs first, so the result is deterministic. On a cycle it returns the
// declaration order together with a *domain.GraphCycleError.
func Order(g domain.TaskGraph) ([]string, error) {
	index := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		index[n.ID] = i
	}

	inDegree := make([]int, len(g.Nodes))
	dependents := make([][]int, len(g.Nodes))
	for _, e := range g.Edges {
		src, okSrc := index[e.Src]
		dst, okDst := index[e.Dst]
		if !okSrc || !okDst {
			continue
		}
		dependents[src] = append(dependents[src], dst)
		inDegree[dst]++
	}

	done := make([]bool, len(g.Nodes))
	order := make([]string, 0, len(g.Nodes))
	for len(order) < len(g.Nodes) {
		next := -1
		for i := range g.Nodes {
			if !done[i] && inDegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			break
		}
		done[next] = true
		order = append(order, g.Nodes[next].ID)
		for _, d := range dependents[next] {
			inDegree[d]--
		}
	}

	if len(order) < len(g.Nodes) {
		var remaining []string
		for i, n := range g.Nodes {
			if !done[i] {
				remaining = append(remaining, n.ID)
			}
		}
		return declarationOrder(g), &domain.GraphCycleError{Remaining: remaining}
	}
	return order, nil
}

func declarationOrder(g domain.TaskGraph) []string {
	ids := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// IsTopological reports whether order runs every edge source before its
// destination and covers each node exactly once.
func IsTopological(g domain.TaskGraph, order []string) bool {
	if len(order) != len(g.Nodes) {
		return false
	}
	pos := make(map[string]int, len(order))
	for i, id := range order {
		if _, dup := pos[id]; dup {
			return false
		}
		pos[id] = i
	}
	for _, n := range g.Nodes {
		if _, ok := pos[n.ID]; !ok {
			return false
		}
	}
	for _, e := range g.Edges {
		if pos[e.Src] >= pos[e.Dst] {
			return false
		}
	}
	return true
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
