package jsonreport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bytemomo/narwhal/internal/domain"
)

func TestSaveWritesMissionFile(t *testing.T) {
	w := New(t.TempDir())
	state := domain.NewMissionState("m1", "WEB/01", []domain.Target{{IP: "10.0.0.5", Port: 80}})
	state.Flag = "flag{x}"
	res := domain.ItemResult{
		Code:     "WEB/01",
		Status:   domain.ItemFlagFound,
		Attempts: 1,
		Outcome:  &domain.MissionOutcome{MissionID: "m1", Code: "WEB/01", Status: domain.OutcomeFlagFound, Flag: "flag{x}", State: state},
	}
	if err := w.Save(res); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(w.OutDir, "missions", "WEB_01.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got domain.ItemResult
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Outcome == nil || got.Outcome.State == nil || got.Outcome.State.Flag != "flag{x}" {
		t.Fatalf("mission state not persisted: %+v", got)
	}
}

func TestAggregateWritesCampaignSummary(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "out"))
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	report := domain.CampaignReport{
		ID:         "c1",
		StartedAt:  start,
		FinishedAt: start.Add(time.Hour),
		Skipped:    []string{"OLD"},
		Retried:    1,
		Counts:     map[domain.ItemStatus]int{domain.ItemFlagFound: 1, domain.ItemError: 1},
		Items: []domain.ItemResult{
			{Code: "A", Status: domain.ItemFlagFound, Attempts: 1, Outcome: &domain.MissionOutcome{Flag: "flag{a}", Steps: 3}},
			{Code: "B", Status: domain.ItemError, Attempts: 2, Error: "boom"},
		},
	}

	path, err := w.Aggregate(report)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if filepath.Base(path) != "campaign.json" {
		t.Fatalf("path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got struct {
		ID      string         `json:"id"`
		Started string         `json:"started_at"`
		Counts  map[string]int `json:"counts"`
		Items   []struct {
			Code  string `json:"code"`
			Flag  string `json:"flag"`
			Steps int    `json:"steps"`
			Error string `json:"error"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "c1" || got.Started != "2026-03-01T10:00:00Z" {
		t.Fatalf("header = %+v", got)
	}
	if got.Counts["flag_found"] != 1 || got.Counts["error"] != 1 {
		t.Fatalf("counts = %v", got.Counts)
	}
	if len(got.Items) != 2 || got.Items[0].Flag != "flag{a}" || got.Items[0].Steps != 3 || got.Items[1].Error != "boom" {
		t.Fatalf("items = %+v", got.Items)
	}
}
