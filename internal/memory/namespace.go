package memory

import (
	"strings"

	"bytemomo/narwhal/internal/domain"
)

const (
	Prefix         = "scout"
	GlobalLabel    = "global"
	CategoryPlan   = "plan"
	CategoryMemory = "memory"
	// ActivePlanKey is the single key plans are stored under.
	ActivePlanKey = "active"
)

// Namespace scopes store access to (prefix, target-label, category).
type Namespace struct {
	Prefix   string
	Target   string
	Category string
}

func (n Namespace) String() string {
	return strings.Join([]string{n.Prefix, n.Target, n.Category}, "/")
}

// NamespaceFor derives the namespace from the mission's primary target.
func NamespaceFor(state *domain.MissionState, category string) Namespace {
	label := GlobalLabel
	if state != nil {
		if t, ok := state.PrimaryTarget(); ok {
			label = t.Label()
		}
	}
	return Namespace{Prefix: Prefix, Target: label, Category: category}
}
