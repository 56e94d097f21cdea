// Package schema decodes structured payloads returned by the reasoning
// collaborator into typed values.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"bytemomo/narwhal/internal/domain"
)

const (
	Recon       = "recon_report"
	PlanBundle  = "plan_bundle"
	TaskGraph   = "task_graph"
	Redirection = "redirection"
	Action      = "action"
)

// Docs describe each schema's JSON shape. Providers append the matching doc
// to the system prompt.
var Docs = map[string]string{
	Recon: `{"targets":[{"ip":"string","port":0,"annotation":"string"}],` +
		`"findings":[{"type":"string","description":"string","severity":"low|medium|high","confidence":"low|medium|high"}],` +
		`"report":"string"}`,
	PlanBundle: `{"plan":{"objective":"string","current_phase":1,"total_phases":1,` +
		`"phases":[{"id":1,"title":"string","status":"pending|active|done|blocked|partial_failure","criteria":"string","notes":"string"}],` +
		`"summary":"string"},"memory":[{"category":"plan|finding|reflection|note","content":"string"}]}`,
	TaskGraph: `{"nodes":[{"id":"string","phase":"enumerate|trigger|observe|compare","description":"string","dependencies":["id"]}],` +
		`"edges":[{"src":"id","dst":"id"}],"evidence_criteria":"string"}`,
	Redirection: `{"dst":"recon|scout|end","insight":"string"}`,
	Action:      `{"action":"bash|python|submit_answer|get_hint|finish","input":"string","summary":"string"}`,
}

type ReconPayload struct {
	Targets  []domain.Target  `json:"targets"`
	Findings []domain.Finding `json:"findings"`
	Report   string           `json:"report"`
}

// Normalize fills missing grades so recon findings always validate.
func (p *ReconPayload) Normalize() {
	for i := range p.Findings {
		f := &p.Findings[i]
		if f.Type == "" {
			f.Type = "recon"
		}
		if !f.Severity.Valid() {
			f.Severity = domain.LevelLow
		}
		if !f.Confidence.Valid() {
			f.Confidence = domain.LevelMedium
		}
	}
}

type MemoryNote struct {
	Category domain.MemoryCategory `json:"category"`
	Content  string                `json:"content"`
	Metadata map[string]any        `json:"metadata,omitempty"`
}

type PlanPayload struct {
	Plan   domain.Plan  `json:"plan"`
	Memory []MemoryNote `json:"memory"`
}

func (p PlanPayload) Validate() error {
	if err := p.Plan.Validate(); err != nil {
		return err
	}
	for i, m := range p.Memory {
		if err := m.Category.Validate(); err != nil {
			return fmt.Errorf("memory %d: %w", i, err)
		}
	}
	return nil
}

// RedirectionPayload keeps Dst as a raw string; the state machine decides
// whether it is a known node.
type RedirectionPayload struct {
	Dst     string `json:"dst"`
	Insight string `json:"insight"`
}

func (p RedirectionPayload) Validate() error {
	if p.Dst == "" {
		return errors.New("dst is required")
	}
	return nil
}

type ActionPayload struct {
	Action  string `json:"action"`
	Input   string `json:"input"`
	Summary string `json:"summary,omitempty"`
}

func (p ActionPayload) Validate() error {
	switch p.Action {
	case "bash", "python", "submit_answer", "get_hint":
		if strings.TrimSpace(p.Input) == "" && p.Action != "get_hint" {
			return fmt.Errorf("action %s needs input", p.Action)
		}
		return nil
	case "finish":
		return nil
	}
	return fmt.Errorf("unknown action %q", p.Action)
}

type validator interface {
	Validate() error
}

// Decode unmarshals the structured part of resp into v, falling back to the
// first JSON value embedded in the free text. Every failure is reported as
// *domain.SchemaValidationError.
func Decode(name string, resp domain.ReasoningResponse, v any) error {
	raw := resp.Structured
	if len(raw) == 0 {
		raw = ExtractJSON(resp.Text)
	}
	if len(raw) == 0 {
		return &domain.SchemaValidationError{Schema: name, Payload: resp.Text, Err: errors.New("no JSON value in response")}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &domain.SchemaValidationError{Schema: name, Payload: string(raw), Err: err}
	}
	if val, ok := v.(validator); ok {
		if err := val.Validate(); err != nil {
			return &domain.SchemaValidationError{Schema: name, Payload: string(raw), Err: err}
		}
	}
	return nil
}

// ExtractJSON returns the first balanced, valid JSON object or array in text.
func ExtractJSON(text string) json.RawMessage {
	for start := 0; start < len(text); start++ {
		c := text[start]
		if c != '{' && c != '[' {
			continue
		}
		if end := matchClose(text, start); end > 0 {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return json.RawMessage(candidate)
			}
		}
	}
	return nil
}

func matchClose(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
