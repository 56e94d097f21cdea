package schema

import (
	"encoding/json"
	"testing"

	"bytemomo/narwhal/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"dst":"end"}`, `{"dst":"end"}`},
		{"fenced", "```json\n{\"dst\":\"scout\",\"insight\":\"x\"}\n```", `{"dst":"scout","insight":"x"}`},
		{"prose around", `Decision: {"dst":"recon","insight":"a } in text"} done`, `{"dst":"recon","insight":"a } in text"}`},
		{"skips invalid brace", `use {braces} then {"ok":true}`, `{"ok":true}`},
		{"array", `nodes: [1,2]`, `[1,2]`},
		{"none", "no json here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(ExtractJSON(tt.in)))
		})
	}
}

func TestDecodePrefersStructured(t *testing.T) {
	resp := domain.ReasoningResponse{
		Text:       `{"dst":"recon","insight":"text"}`,
		Structured: json.RawMessage(`{"dst":"end","insight":"flag{abc123}"}`),
	}
	var p RedirectionPayload
	require.NoError(t, Decode(Redirection, resp, &p))
	assert.Equal(t, "end", p.Dst)
	assert.Equal(t, "flag{abc123}", p.Insight)
}

func TestDecodeErrorsAreSchemaErrors(t *testing.T) {
	cases := map[string]domain.ReasoningResponse{
		"no json":        {Text: "I think we should go back to recon"},
		"wrong type":     {Text: `{"dst": 3}`},
		"fails validate": {Text: `{"insight":"missing dst"}`},
	}
	for name, resp := range cases {
		t.Run(name, func(t *testing.T) {
			var p RedirectionPayload
			err := Decode(Redirection, resp, &p)
			require.Error(t, err)
			assert.True(t, domain.IsSchemaError(err))
		})
	}
}

func TestPlanPayloadValidate(t *testing.T) {
	raw := `{"plan":{"objective":"get shell","current_phase":1,"total_phases":2,
		"phases":[{"id":1,"title":"enum","status":"active","criteria":"ports known"},
		          {"id":2,"title":"exploit","status":"pending","criteria":"shell"}]},
		"memory":[{"category":"note","content":"ssh is filtered"}]}`
	var p PlanPayload
	require.NoError(t, Decode(PlanBundle, domain.ReasoningResponse{Text: raw}, &p))
	assert.Len(t, p.Plan.Phases, 2)
	assert.Equal(t, domain.MemoryNote, p.Memory[0].Category)

	bad := `{"plan":{"objective":"x","phases":[{"id":1,"title":"t","status":"running"}]}}`
	err := Decode(PlanBundle, domain.ReasoningResponse{Text: bad}, &p)
	assert.True(t, domain.IsSchemaError(err))
}

func TestActionPayloadValidate(t *testing.T) {
	assert.NoError(t, ActionPayload{Action: "bash", Input: "id"}.Validate())
	assert.NoError(t, ActionPayload{Action: "get_hint"}.Validate())
	assert.NoError(t, ActionPayload{Action: "finish", Summary: "done"}.Validate())
	assert.Error(t, ActionPayload{Action: "bash"}.Validate())
	assert.Error(t, ActionPayload{Action: "rm"}.Validate())
}

func TestReconNormalize(t *testing.T) {
	p := ReconPayload{Findings: []domain.Finding{{Description: "open port"}}}
	p.Normalize()
	assert.Equal(t, "recon", p.Findings[0].Type)
	assert.NoError(t, p.Findings[0].Validate())
}
