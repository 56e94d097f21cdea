package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"bytemomo/narwhal/internal/domain"

	"github.com/fatih/color"
)

const maxListedErrors = 5

func printSummary(w io.Writer, report domain.CampaignReport) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 60))
	fmt.Fprintln(w, "CAMPAIGN EXECUTION SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 60))

	fmt.Fprintf(w, "Campaign: %s\n", report.ID)
	if !report.StartedAt.IsZero() && !report.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Duration: %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(w, "Missions: %d (retried: %d, skipped: %d)\n",
		len(report.Items), report.Retried, len(report.Skipped))

	fmt.Fprintf(w, "\nRESULTS:\n")
	fmt.Fprintf(w, "  Flags found: %d\n", report.Counts[domain.ItemFlagFound])
	fmt.Fprintf(w, "  No flag: %d\n", report.Counts[domain.ItemNoFlag])
	fmt.Fprintf(w, "  Errors: %d\n", report.Counts[domain.ItemError])

	if len(report.Items) > 0 {
		fmt.Fprintf(w, "\nCHALLENGES:\n")
		for _, res := range report.Items {
			detail := ""
			if res.Outcome != nil && res.Outcome.Flag != "" {
				detail = res.Outcome.Flag
			}
			fmt.Fprintf(w, "  %-24s %s %s\n", res.Code, statusLabel(res.Status), detail)
		}
	}

	errs := 0
	for _, res := range report.Items {
		if res.Error == "" {
			continue
		}
		if errs == 0 {
			fmt.Fprintf(w, "\nERRORS:\n")
		}
		errs++
		if errs > maxListedErrors {
			continue
		}
		fmt.Fprintf(w, "  - %s: %s\n", res.Code, res.Error)
	}
	if errs > maxListedErrors {
		fmt.Fprintf(w, "  - ... and %d more errors\n", errs-maxListedErrors)
	}

	fmt.Fprintln(w, strings.Repeat("=", 60))
}

func statusLabel(s domain.ItemStatus) string {
	label := fmt.Sprintf("%-10s", s)
	switch s {
	case domain.ItemFlagFound:
		return color.New(color.FgGreen, color.Bold).Sprint(label)
	case domain.ItemError:
		return color.New(color.FgRed).Sprint(label)
	default:
		return color.New(color.FgYellow).Sprint(label)
	}
}
