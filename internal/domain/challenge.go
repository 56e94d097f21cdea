package domain

type TargetInfo struct {
	IP    string `json:"ip" yaml:"ip"`
	Ports []int  `json:"port" yaml:"ports"`
}

// WorkItem is one challenge of a campaign as served by the challenge API.
type WorkItem struct {
	Code       string     `json:"challenge_code" yaml:"code"`
	Difficulty string     `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	Points     int        `json:"points,omitempty" yaml:"points,omitempty"`
	HintViewed bool       `json:"hint_viewed,omitempty" yaml:"hint_viewed,omitempty"`
	Solved     bool       `json:"solved" yaml:"solved,omitempty"`
	TargetInfo TargetInfo `json:"target_info" yaml:"target"`
}

// Targets expands the item into one target per port.
func (w WorkItem) Targets() []Target {
	if w.TargetInfo.IP == "" {
		return nil
	}
	if len(w.TargetInfo.Ports) == 0 {
		return []Target{{IP: w.TargetInfo.IP}}
	}
	out := make([]Target, 0, len(w.TargetInfo.Ports))
	for _, p := range w.TargetInfo.Ports {
		out = append(out, Target{IP: w.TargetInfo.IP, Port: p})
	}
	return out
}

type AnswerResult struct {
	Correct      bool `json:"correct"`
	EarnedPoints int  `json:"earned_points"`
	IsSolved     bool `json:"is_solved"`
}

// Accepted reports whether the submission solved the item.
func (a AnswerResult) Accepted() bool { return a.Correct || a.IsSolved }

type Hint struct {
	Content       string `json:"hint_content"`
	PenaltyPoints int    `json:"penalty_points"`
	FirstUse      bool   `json:"first_use"`
}
