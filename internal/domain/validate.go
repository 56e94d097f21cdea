package domain

import "fmt"

func (p Plan) Validate() error {
	if p.Objective == "" {
		return fmt.Errorf("plan: objective is required")
	}
	if p.TotalPhases < 0 || p.CurrentPhase < 0 {
		return fmt.Errorf("plan: phase counters must be non-negative")
	}
	for i, ph := range p.Phases {
		switch ph.Status {
		case PhasePending, PhaseActive, PhaseDone, PhaseBlocked, PhasePartialFailure:
		default:
			return fmt.Errorf("plan: phase %d has unknown status %q", i, ph.Status)
		}
		if ph.Title == "" {
			return fmt.Errorf("plan: phase %d has no title", i)
		}
	}
	return nil
}

func (c MemoryCategory) Validate() error {
	switch c {
	case MemoryPlan, MemoryFinding, MemoryReflection, MemoryNote:
		return nil
	}
	return fmt.Errorf("memory: unknown category %q", c)
}

func (f Finding) Validate() error {
	if f.Type == "" {
		return fmt.Errorf("finding: type is required")
	}
	if !f.Severity.Valid() {
		return fmt.Errorf("finding %s: invalid severity %q", f.Type, f.Severity)
	}
	if !f.Confidence.Valid() {
		return fmt.Errorf("finding %s: invalid confidence %q", f.Type, f.Confidence)
	}
	return nil
}
