package jsonreport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bytemomo/narwhal/internal/domain"
)

type Writer struct {
	OutDir string // e.g., ./results
}

func New(out string) *Writer { return &Writer{OutDir: out} }

// Save writes one mission result to missions/<code>.json.
func (w *Writer) Save(res domain.ItemResult) error {
	dir := filepath.Join(w.OutDir, "missions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, fileName(res.Code)+".json"), res)
}

// Aggregate writes the campaign summary without the per-mission state, which
// lives in the mission files.
func (w *Writer) Aggregate(report domain.CampaignReport) (string, error) {
	if err := os.MkdirAll(w.OutDir, 0o755); err != nil {
		return "", err
	}

	type item struct {
		Code     string            `json:"code"`
		Status   domain.ItemStatus `json:"status"`
		Attempts int               `json:"attempts"`
		Flag     string            `json:"flag,omitempty"`
		Steps    int               `json:"steps,omitempty"`
		Error    string            `json:"error,omitempty"`
	}
	items := make([]item, 0, len(report.Items))
	for _, r := range report.Items {
		it := item{Code: r.Code, Status: r.Status, Attempts: r.Attempts, Error: r.Error}
		if r.Outcome != nil {
			it.Flag = r.Outcome.Flag
			it.Steps = r.Outcome.Steps
		}
		items = append(items, it)
	}

	path := filepath.Join(w.OutDir, "campaign.json")
	return path, writeJSON(path, struct {
		Version  string                    `json:"version"`
		ID       string                    `json:"id"`
		Started  string                    `json:"started_at"`
		Finished string                    `json:"finished_at"`
		Skipped  []string                  `json:"skipped,omitempty"`
		Retried  int                       `json:"retried"`
		Counts   map[domain.ItemStatus]int `json:"counts"`
		Items    []item                    `json:"items"`
	}{
		Version:  "1.0",
		ID:       report.ID,
		Started:  report.StartedAt.Format(time.RFC3339),
		Finished: report.FinishedAt.Format(time.RFC3339),
		Skipped:  report.Skipped,
		Retried:  report.Retried,
		Counts:   report.Counts,
		Items:    items,
	})
}

func fileName(code string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, code)
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
