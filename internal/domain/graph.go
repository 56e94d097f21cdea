package domain

type TaskPhase string

const (
	TaskEnumerate TaskPhase = "enumerate"
	TaskTrigger   TaskPhase = "trigger"
	TaskObserve   TaskPhase = "observe"
	TaskCompare   TaskPhase = "compare"
)

func (p TaskPhase) Valid() bool {
	switch p {
	case TaskEnumerate, TaskTrigger, TaskObserve, TaskCompare:
		return true
	}
	return false
}

type TaskNode struct {
	ID           string    `json:"id"`
	Phase        TaskPhase `json:"phase"`
	Description  string    `json:"description"`
	Dependencies []string  `json:"dependencies,omitempty"`
}

type TaskEdge struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// TaskGraph is the canonical, normalized form of a task DAG. Node ids are
// unique and every edge endpoint references a declared node.
type TaskGraph struct {
	Nodes            []TaskNode `json:"nodes"`
	Edges            []TaskEdge `json:"edges"`
	EvidenceCriteria string     `json:"evidence_criteria,omitempty"`
}

func (g TaskGraph) Node(id string) (TaskNode, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return TaskNode{}, false
}
