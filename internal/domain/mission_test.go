package domain

import (
	"testing"
)

func TestAddTargetsMergesOnIPAndPort(t *testing.T) {
	s := NewMissionState("m1", "WEB01", []Target{{IP: "10.0.0.5", Port: 80}})

	s.AddTargets(
		Target{IP: "10.0.0.5", Port: 80, Annotation: "nginx 1.18"},
		Target{IP: "10.0.0.5", Port: 8080},
		Target{IP: "10.0.0.5", Port: 80, Annotation: "ignored"},
		Target{Port: 22},
	)

	if len(s.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d: %+v", len(s.Targets), s.Targets)
	}
	if s.Targets[0].Annotation != "nginx 1.18" {
		t.Errorf("expected annotation to be filled from first duplicate, got %q", s.Targets[0].Annotation)
	}
	primary, ok := s.PrimaryTarget()
	if !ok || primary.Label() != "10.0.0.5:80" {
		t.Errorf("primary target moved: %+v", primary)
	}
}

func TestParseNode(t *testing.T) {
	tests := []struct {
		in   string
		want Node
		ok   bool
	}{
		{"recon", NodeRecon, true},
		{"scout", NodeScout, true},
		{"end", NodeEnd, true},
		{"END", "", false},
		{"", "", false},
		{"exploit", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseNode(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseNode(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestWorkItemTargets(t *testing.T) {
	item := WorkItem{Code: "X", TargetInfo: TargetInfo{IP: "10.0.0.9", Ports: []int{80, 443}}}
	got := item.Targets()
	if len(got) != 2 || got[1].Label() != "10.0.0.9:443" {
		t.Fatalf("unexpected targets: %+v", got)
	}

	bare := WorkItem{TargetInfo: TargetInfo{IP: "10.0.0.9"}}
	if l := bare.Targets()[0].Label(); l != "10.0.0.9" {
		t.Errorf("expected bare ip label, got %q", l)
	}

	if (WorkItem{}).Targets() != nil {
		t.Error("expected no targets without an ip")
	}
}

func TestPlanValidate(t *testing.T) {
	ok := Plan{Objective: "read /flag", TotalPhases: 1, Phases: []PlanPhase{{ID: 1, Title: "enum", Status: PhaseActive}}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := ok
	bad.Phases = []PlanPhase{{ID: 1, Title: "enum", Status: "running"}}
	if err := bad.Validate(); err == nil {
		t.Error("expected unknown status to be rejected")
	}

	if err := (Plan{}).Validate(); err == nil {
		t.Error("expected missing objective to be rejected")
	}
}

func TestRedirectAppendsInOrder(t *testing.T) {
	s := NewMissionState("m1", "X", nil)
	s.Redirect(RouterSource, NodeRecon, "look again")
	s.Redirect(RouterSource, NodeEnd, "flag{x}")

	last, ok := s.LastRedirection()
	if !ok || last.Dst != NodeEnd || len(s.Redirections) != 2 {
		t.Fatalf("unexpected redirections: %+v", s.Redirections)
	}
}
