package mission

import (
	"context"
	"errors"
	"testing"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLLMRouter(t *testing.T) {
	reasoner := testutil.NewScriptedReasoner().On("router",
		testutil.Reply{Text: "```json\n{\"dst\":\"end\",\"insight\":\"flag{abc123}\"}\n```"},
		testutil.Reply{Text: "let's go back to recon"},
	)
	r := &LLMRouter{Reasoner: reasoner, Log: testutil.Logger()}
	state := domain.NewMissionState("m1", "X", nil)
	state.Objective = "read /flag"

	d, err := r.Route(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, Decision{Dst: "end", Insight: "flag{abc123}"}, d)

	calls := reasoner.Calls("router")
	require.Len(t, calls, 1)
	assert.Equal(t, "redirection", calls[0].Schema)
	assert.Contains(t, calls[0].Transcript[len(calls[0].Transcript)-1].Content, "Objective: read /flag")

	_, err = r.Route(context.Background(), state)
	assert.True(t, domain.IsSchemaError(err), "free text is a schema failure")
}

func TestLLMRouterReasonerError(t *testing.T) {
	reasoner := testutil.NewScriptedReasoner().On("router", testutil.Reply{Err: errors.New("503")})
	r := &LLMRouter{Reasoner: reasoner}
	_, err := r.Route(context.Background(), domain.NewMissionState("m1", "X", nil))
	assert.ErrorContains(t, err, "503")
}

func TestFindingsRouter(t *testing.T) {
	scout := func(desc string, sev domain.Level) domain.Finding {
		return domain.Finding{Type: "scout_observe", Description: desc, Severity: sev, Confidence: domain.LevelHigh}
	}

	tests := []struct {
		name     string
		findings []domain.Finding
		dst      string
		insight  string
	}{
		{
			name:     "no scout findings",
			findings: []domain.Finding{{Type: "recon", Description: "port 80 open", Severity: domain.LevelHigh}},
			dst:      "recon",
		},
		{
			name:     "flag in recent finding",
			findings: []domain.Finding{scout("nothing", domain.LevelMedium), scout("cat /flag: flag{xyz}", domain.LevelHigh)},
			dst:      "end",
			insight:  "flag{xyz}",
		},
		{
			name:     "high severity without flag shape",
			findings: []domain.Finding{scout("md5 5f4dcc3b5aa765d61d8327deb882cf99 leaked", domain.LevelHigh)},
			dst:      "recon",
		},
		{
			name:     "medium findings keep exploiting",
			findings: []domain.Finding{scout("login form found", domain.LevelMedium)},
			dst:      "scout",
		},
		{
			name: "flag outside window is ignored",
			findings: []domain.Finding{
				scout("flag{old}", domain.LevelHigh),
				scout("a", domain.LevelMedium), scout("b", domain.LevelMedium), scout("c", domain.LevelMedium),
				scout("d", domain.LevelMedium), scout("e", domain.LevelMedium),
			},
			dst: "scout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := domain.NewMissionState("m1", "X", nil)
			state.AddFindings(tt.findings...)

			d, err := (&FindingsRouter{}).Route(context.Background(), state)
			require.NoError(t, err)
			assert.Equal(t, tt.dst, d.Dst)
			if tt.insight != "" {
				assert.Equal(t, tt.insight, d.Insight)
			}
		})
	}
}

func TestFindingsRouterReadsFullOutput(t *testing.T) {
	state := domain.NewMissionState("m1", "X", nil)
	state.AddFindings(domain.Finding{
		Type:        "scout_trigger",
		Description: "dump: truncated...",
		Severity:    domain.LevelHigh,
		Metadata:    map[string]any{"full_output": "...long...\nflag{deep}"},
	})
	d, err := (&FindingsRouter{}).Route(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, Decision{Dst: "end", Insight: "flag{deep}"}, d)
}

func TestGate(t *testing.T) {
	api := &testutil.FakeAPI{Flags: map[string]string{"WEB01": "flag{right}"}}
	state := domain.NewMissionState("m1", "WEB01", nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		gate     *Gate
		insight  string
		accepted bool
		flag     string
	}{
		{"off trusts anything", &Gate{Mode: GateOff}, "we are done", true, "we are done"},
		{"pattern extracts flag", &Gate{Mode: GatePattern}, "captured flag{right} from /root", true, "flag{right}"},
		{"pattern rejects prose", &Gate{Mode: GatePattern}, "we are done", false, ""},
		{"submit accepts correct", &Gate{Mode: GateSubmit, API: api}, "flag{right}", true, "flag{right}"},
		{"submit rejects wrong", &Gate{Mode: GateSubmit, API: api}, "flag{wrong}", false, ""},
		{"submit without api", &Gate{Mode: GateSubmit}, "flag{right}", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.gate.Log = testutil.Logger()
			v := tt.gate.Verify(ctx, state, tt.insight)
			assert.Equal(t, tt.accepted, v.Accepted)
			assert.Equal(t, tt.flag, v.Flag)
			if !tt.accepted {
				assert.NotEmpty(t, v.Reason)
			}
		})
	}

	assert.Equal(t, []testutil.Submission{
		{Code: "WEB01", Answer: "flag{right}"},
		{Code: "WEB01", Answer: "flag{wrong}"},
	}, api.Submissions())
}

func TestGateSubmitError(t *testing.T) {
	api := &testutil.FakeAPI{}
	g := &Gate{Mode: GateSubmit, API: api, Log: testutil.Logger()}
	v := g.Verify(context.Background(), domain.NewMissionState("m1", "NOPE", nil), "flag{x}")
	assert.False(t, v.Accepted)
	assert.Contains(t, v.Reason, "submission failed")
}

func TestFindingsRouterSkipsRejectedFlag(t *testing.T) {
	api := &testutil.FakeAPI{Flags: map[string]string{"WEB01": "flag{right}"}}
	m, _, _ := newMachine(&FindingsRouter{})
	m.Verifier = &Gate{Mode: GateSubmit, API: api, Log: testutil.Logger()}

	state := domain.NewMissionState("m1", "WEB01", nil)
	state.AddFindings(domain.Finding{Type: "scout_observe", Description: "body: flag{decoy}", Severity: domain.LevelMedium})

	next, err := m.Transition(context.Background(), domain.NodeScout, state)
	require.NoError(t, err)
	assert.Equal(t, domain.NodeScout, next)

	next, err = m.Transition(context.Background(), domain.NodeScout, state)
	require.NoError(t, err)
	assert.Equal(t, domain.NodeScout, next)
	assert.Len(t, api.Submissions(), 1, "a rejected flag is submitted once")

	state.AddFindings(domain.Finding{Type: "scout_observe", Description: "flag{decoy} and flag{right}", Severity: domain.LevelHigh})
	next, err = m.Transition(context.Background(), domain.NodeScout, state)
	require.NoError(t, err)
	assert.Equal(t, domain.NodeEnd, next)
	assert.Equal(t, "flag{right}", state.Flag)
	assert.Equal(t, []testutil.Submission{{Code: "WEB01", Answer: "flag{decoy}"}, {Code: "WEB01", Answer: "flag{right}"}}, api.Submissions())
}
