package mission

import (
	"bytemomo/narwhal/internal/dag"
	"bytemomo/narwhal/internal/domain"
)

func contextFor(state *domain.MissionState, memories []domain.MemoryEntry) dag.MissionContext {
	if memories == nil {
		memories = state.Memory
	}
	return dag.MissionContext{
		MissionID:   state.ID,
		Code:        state.Code,
		Targets:     state.Targets,
		ReconReport: state.ReconReport,
		Plan:        state.Plan,
		Findings:    state.Findings,
		Memory:      memories,
	}
}
