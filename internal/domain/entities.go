package domain

import (
	"strconv"
	"time"
)

type Target struct {
	IP         string `json:"ip" yaml:"ip"`
	Port       int    `json:"port" yaml:"port"`
	Annotation string `json:"annotation,omitempty" yaml:"annotation,omitempty"`
}

// Label renders the target as "ip:port", or the bare ip when no port is known.
func (t Target) Label() string {
	if t.Port <= 0 {
		return t.IP
	}
	return t.IP + ":" + strconv.Itoa(t.Port)
}

// Level grades both severity and confidence.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

func (l Level) Valid() bool {
	switch l {
	case LevelLow, LevelMedium, LevelHigh:
		return true
	}
	return false
}

type Finding struct {
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Severity    Level          `json:"severity"`
	Confidence  Level          `json:"confidence"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Feedback    string         `json:"feedback,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

type PhaseStatus string

const (
	PhasePending        PhaseStatus = "pending"
	PhaseActive         PhaseStatus = "active"
	PhaseDone           PhaseStatus = "done"
	PhaseBlocked        PhaseStatus = "blocked"
	PhasePartialFailure PhaseStatus = "partial_failure"
)

type PlanPhase struct {
	ID       int         `json:"id"`
	Title    string      `json:"title"`
	Status   PhaseStatus `json:"status"`
	Criteria string      `json:"criteria"`
	Notes    string      `json:"notes,omitempty"`
}

// Plan is the single active operational plan of a mission.
type Plan struct {
	Objective    string      `json:"objective"`
	CurrentPhase int         `json:"current_phase"`
	TotalPhases  int         `json:"total_phases"`
	Phases       []PlanPhase `json:"phases"`
	Summary      string      `json:"summary,omitempty"`
}

type MemoryCategory string

const (
	MemoryPlan       MemoryCategory = "plan"
	MemoryFinding    MemoryCategory = "finding"
	MemoryReflection MemoryCategory = "reflection"
	MemoryNote       MemoryCategory = "note"
)

// MemoryEntry is immutable once written. Key is generated and never reused.
type MemoryEntry struct {
	Key       string         `json:"key"`
	Timestamp time.Time      `json:"timestamp"`
	Category  MemoryCategory `json:"category"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
