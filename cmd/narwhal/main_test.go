package main

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"bytemomo/narwhal/internal/adapter/shell"
	"bytemomo/narwhal/internal/config"
	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/testutil"
	"bytemomo/narwhal/internal/usecase"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func TestPrintSummary(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	report := domain.CampaignReport{
		ID:         "spring",
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Skipped:    []string{"done"},
		Retried:    1,
		Counts: map[domain.ItemStatus]int{
			domain.ItemFlagFound: 1,
			domain.ItemError:     1,
		},
		Items: []domain.ItemResult{
			{Code: "web-1", Status: domain.ItemFlagFound, Attempts: 1, Outcome: &domain.MissionOutcome{Flag: "flag{ok}"}},
			{Code: "pwn-2", Status: domain.ItemError, Attempts: 2, Error: "reasoner down"},
		},
	}

	var buf bytes.Buffer
	printSummary(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "CAMPAIGN EXECUTION SUMMARY")
	assert.Contains(t, out, "Campaign: spring")
	assert.Contains(t, out, "Duration: 1m30s")
	assert.Contains(t, out, "Missions: 2 (retried: 1, skipped: 1)")
	assert.Contains(t, out, "Flags found: 1")
	assert.Contains(t, out, "flag{ok}")
	assert.Contains(t, out, "- pwn-2: reasoner down")
}

func TestPrintSummaryTruncatesErrors(t *testing.T) {
	report := domain.CampaignReport{Counts: map[domain.ItemStatus]int{}}
	for i := range 8 {
		report.Items = append(report.Items, domain.ItemResult{
			Code:   fmt.Sprintf("c%d", i),
			Status: domain.ItemError,
			Error:  "boom",
		})
	}

	var buf bytes.Buffer
	printSummary(&buf, report)

	assert.Contains(t, buf.String(), "- c4: boom")
	assert.NotContains(t, buf.String(), "- c5: boom")
	assert.Contains(t, buf.String(), "... and 3 more errors")
}

func TestPrintItems(t *testing.T) {
	var buf bytes.Buffer
	printItems(&buf, []domain.WorkItem{
		{Code: "web-1", Difficulty: "easy", Points: 100, TargetInfo: domain.TargetInfo{IP: "10.0.0.5", Ports: []int{80, 8080}}},
		{Code: "misc", Solved: true},
	})

	out := buf.String()
	assert.Contains(t, out, "Found 2 challenge(s)")
	assert.Contains(t, out, "10.0.0.5:80,8080")
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "solved")

	buf.Reset()
	printItems(&buf, nil)
	assert.Equal(t, "No challenges found\n", buf.String())
}

func TestExitStatus(t *testing.T) {
	assert.Equal(t, 0, exitStatus(nil))
	assert.Equal(t, 2, exitStatus(errIncomplete))
	assert.Equal(t, 2, exitStatus(fmt.Errorf("wrapped: %w", errIncomplete)))
	assert.Equal(t, 1, exitStatus(assert.AnError))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	raw := config.Config{
		Campaign: config.CampaignOpts{
			ID:          "offline",
			StartAt:     "2030-01-01T00:00:00Z",
			MaxParallel: 3,
			Items:       []domain.WorkItem{{Code: "web-1"}},
		},
		LLM:    config.LLMOpts{Provider: "openai", Model: "gpt-4o-mini", APIKey: "sk-test"},
		Output: config.OutputOpts{Dir: t.TempDir()},
	}
	cfg := raw.Merge(config.Default())
	require.NoError(t, cfg.Validate())
	return &cfg
}

func TestAssembleWiresRunner(t *testing.T) {
	startNow = false
	cfg := testConfig(t)

	runner, cleanup, err := assemble(context.Background(), cfg, testutil.Logger())
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, "offline", runner.ID)
	assert.Equal(t, 3, runner.MaxParallel)
	assert.Nil(t, runner.API)
	assert.Len(t, runner.Repos, 1)
	assert.NotNil(t, runner.Writer)
	assert.Equal(t, 2030, runner.StartAt.Year())
}

func TestAssembleStartNow(t *testing.T) {
	startNow = true
	defer func() { startNow = false }()

	runner, cleanup, err := assemble(context.Background(), testConfig(t), testutil.Logger())
	require.NoError(t, err)
	defer cleanup()

	assert.True(t, runner.StartAt.IsZero())
}

func TestAssembleRequiresReasonerKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.APIKey = ""

	_, _, err := assemble(context.Background(), cfg, testutil.Logger())
	assert.Error(t, err)
}

func TestAssembleBuildsLauncher(t *testing.T) {
	cfg := testConfig(t)
	cfg.Recon.DNS.Enabled = true

	runner, cleanup, err := assemble(context.Background(), cfg, testutil.Logger())
	require.NoError(t, err)
	defer cleanup()

	launcher, ok := runner.Launcher.(*usecase.MissionLauncher)
	require.True(t, ok)
	assert.IsType(t, &shell.Executor{}, launcher.Executor)
	assert.Nil(t, launcher.API)
	require.Len(t, launcher.Enrichers, 1)
	assert.Equal(t, "dns", launcher.Enrichers[0].Name())
	assert.NotNil(t, launcher.Detector)
}
