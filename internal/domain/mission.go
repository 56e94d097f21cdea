package domain

import "time"

// Node is a state of the mission state machine.
type Node string

const (
	NodeRecon Node = "recon"
	NodeScout Node = "scout"
	NodeEnd   Node = "end"
)

// ParseNode accepts only the three known states, never a default.
func ParseNode(s string) (Node, bool) {
	switch Node(s) {
	case NodeRecon, NodeScout, NodeEnd:
		return Node(s), true
	}
	return "", false
}

// RouterSource is the src recorded for every routing decision.
const RouterSource = "scout-router"

type Redirection struct {
	Src     string `json:"src"`
	Dst     Node   `json:"dst"`
	Insight string `json:"insight"`
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// MissionState is owned by exactly one mission and never shared.
type MissionState struct {
	ID           string        `json:"id"`
	Code         string        `json:"code"`
	Transcript   []Message     `json:"transcript"`
	Targets      []Target      `json:"targets"`
	Findings     []Finding     `json:"findings"`
	ReconReport  string        `json:"recon_report,omitempty"`
	Objective    string        `json:"objective,omitempty"`
	Plan         *Plan         `json:"plan,omitempty"`
	Memory       []MemoryEntry `json:"memory,omitempty"`
	Flag         string        `json:"flag,omitempty"`
	Redirections []Redirection `json:"redirections"`
	DAG          *TaskGraph    `json:"dag,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
}

func NewMissionState(id, code string, targets []Target) *MissionState {
	s := &MissionState{ID: id, Code: code, StartedAt: time.Now().UTC()}
	s.AddTargets(targets...)
	return s
}

// AddTargets merges targets on (ip, port). The first-seen entry keeps its
// position; a later duplicate only fills in a missing annotation.
func (s *MissionState) AddTargets(targets ...Target) {
	for _, t := range targets {
		if t.IP == "" {
			continue
		}
		dup := false
		for i := range s.Targets {
			if s.Targets[i].IP == t.IP && s.Targets[i].Port == t.Port {
				if s.Targets[i].Annotation == "" {
					s.Targets[i].Annotation = t.Annotation
				}
				dup = true
				break
			}
		}
		if !dup {
			s.Targets = append(s.Targets, t)
		}
	}
}

func (s *MissionState) AddFindings(findings ...Finding) {
	now := time.Now().UTC()
	for _, f := range findings {
		if f.Timestamp.IsZero() {
			f.Timestamp = now
		}
		s.Findings = append(s.Findings, f)
	}
}

func (s *MissionState) AppendMessage(role Role, content string) {
	s.Transcript = append(s.Transcript, Message{Role: role, Content: content})
}

// PrimaryTarget is the first target ever recorded for the mission.
func (s *MissionState) PrimaryTarget() (Target, bool) {
	if len(s.Targets) == 0 {
		return Target{}, false
	}
	return s.Targets[0], true
}

func (s *MissionState) Redirect(src string, dst Node, insight string) {
	s.Redirections = append(s.Redirections, Redirection{Src: src, Dst: dst, Insight: insight})
}

func (s *MissionState) LastRedirection() (Redirection, bool) {
	if len(s.Redirections) == 0 {
		return Redirection{}, false
	}
	return s.Redirections[len(s.Redirections)-1], true
}
