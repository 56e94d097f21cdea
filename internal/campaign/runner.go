// Package campaign runs one mission per unsolved work item concurrently,
// retries the failures once and aggregates the results.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bytemomo/narwhal/internal/domain"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Launcher runs the mission for one work item. Every call must build a fresh
// mission state and memory store; attempt is 1 for the first wave and 2 for
// the retry wave.
type Launcher interface {
	Launch(ctx context.Context, item domain.WorkItem, attempt int) (*domain.MissionOutcome, error)
}

type LauncherFunc func(ctx context.Context, item domain.WorkItem, attempt int) (*domain.MissionOutcome, error)

func (f LauncherFunc) Launch(ctx context.Context, item domain.WorkItem, attempt int) (*domain.MissionOutcome, error) {
	return f(ctx, item, attempt)
}

var errNoOutcome = errors.New("mission returned no outcome")

type Runner struct {
	ID       string
	API      domain.ChallengeAPI
	Launcher Launcher
	// StartAt delays the first wave. Zero or past means start immediately.
	StartAt time.Time
	// MaxParallel bounds concurrent missions. Zero means unbounded.
	MaxParallel int
	// Repos receive every final item result.
	Repos  []domain.ResultRepo
	Writer domain.ReportWriter
	Log    *log.Entry

	// Default: 30s
	CountdownInterval time.Duration

	now func() time.Time
}

type slot struct {
	outcome  *domain.MissionOutcome
	err      error
	attempts int
}

func (s slot) failed() bool { return s.err != nil || s.outcome == nil }

// RunFromAPI lists the work items from the challenge API and runs them.
func (r *Runner) RunFromAPI(ctx context.Context) (domain.CampaignReport, error) {
	if r.API == nil {
		return domain.CampaignReport{}, errors.New("campaign: no challenge API configured")
	}
	items, err := r.API.ListWorkItems(ctx)
	if err != nil {
		return domain.CampaignReport{}, fmt.Errorf("list work items: %w", err)
	}
	return r.Run(ctx, items)
}

// Run executes the campaign. It returns an error only when ctx ends before
// the waves could run; individual mission failures are reported per item.
func (r *Runner) Run(ctx context.Context, items []domain.WorkItem) (domain.CampaignReport, error) {
	l := r.logger()
	report := domain.CampaignReport{
		ID:        r.ID,
		StartedAt: r.clock(),
		Counts:    map[domain.ItemStatus]int{},
	}

	var pending []domain.WorkItem
	for _, it := range items {
		if it.Solved {
			report.Skipped = append(report.Skipped, it.Code)
			continue
		}
		pending = append(pending, it)
	}

	l.WithFields(log.Fields{
		"campaign":     r.ID,
		"items":        len(items),
		"pending":      len(pending),
		"skipped":      len(report.Skipped),
		"max_parallel": r.MaxParallel,
	}).Info("Starting campaign")

	if len(pending) == 0 {
		report.FinishedAt = r.clock()
		r.publish(&report)
		return report, nil
	}

	if err := r.waitForStart(ctx); err != nil {
		return report, err
	}

	slots := make([]slot, len(pending))
	all := make([]int, len(pending))
	for i := range all {
		all[i] = i
	}
	r.wave(ctx, pending, all, 1, slots)

	var failed []int
	for i, s := range slots {
		if s.failed() {
			failed = append(failed, i)
		}
	}
	if len(failed) > 0 && ctx.Err() == nil {
		report.Retried = len(failed)
		l.WithField("failed", len(failed)).Warn("Retrying failed missions")
		r.wave(ctx, pending, failed, 2, slots)
	}

	for i, it := range pending {
		report.Items = append(report.Items, classify(it, slots[i]))
	}
	for _, res := range report.Items {
		report.Counts[res.Status]++
	}
	report.FinishedAt = r.clock()

	l.WithFields(log.Fields{
		"campaign":   r.ID,
		"flag_found": report.Counts[domain.ItemFlagFound],
		"no_flag":    report.Counts[domain.ItemNoFlag],
		"error":      report.Counts[domain.ItemError],
		"retried":    report.Retried,
		"duration":   report.FinishedAt.Sub(report.StartedAt).Round(time.Second),
	}).Info("Campaign finished")

	r.publish(&report)
	return report, ctx.Err()
}

// wave runs the missions at idx concurrently and overwrites their slots.
func (r *Runner) wave(ctx context.Context, items []domain.WorkItem, idx []int, attempt int, slots []slot) {
	var g errgroup.Group
	if r.MaxParallel > 0 {
		g.SetLimit(r.MaxParallel)
	}
	for _, i := range idx {
		g.Go(func() error {
			outcome, err := r.launch(ctx, items[i], attempt)
			slots[i] = slot{outcome: outcome, err: err, attempts: attempt}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Runner) launch(ctx context.Context, item domain.WorkItem, attempt int) (outcome *domain.MissionOutcome, err error) {
	l := r.logger().WithFields(log.Fields{
		"code":    item.Code,
		"attempt": attempt,
	})
	defer func() {
		if p := recover(); p != nil {
			outcome, err = nil, fmt.Errorf("mission panicked: %v", p)
		}
		switch {
		case err != nil:
			l.WithError(err).Error("Mission failed")
		case outcome == nil:
			err = errNoOutcome
			l.Error("Mission returned no outcome")
		default:
			l.WithFields(log.Fields{
				"status": outcome.Status,
				"steps":  outcome.Steps,
			}).Info("Mission done")
		}
	}()

	l.Info("Launching mission")
	return r.Launcher.Launch(ctx, item, attempt)
}

func classify(item domain.WorkItem, s slot) domain.ItemResult {
	res := domain.ItemResult{Code: item.Code, Attempts: s.attempts, Outcome: s.outcome}
	switch {
	case s.failed():
		res.Status = domain.ItemError
		res.Outcome = nil
		if s.err != nil {
			res.Error = s.err.Error()
		} else {
			res.Error = errNoOutcome.Error()
		}
	case s.outcome.Status == domain.OutcomeFlagFound:
		res.Status = domain.ItemFlagFound
	default:
		res.Status = domain.ItemNoFlag
	}
	return res
}

func (r *Runner) waitForStart(ctx context.Context) error {
	if r.StartAt.IsZero() {
		return nil
	}
	interval := r.CountdownInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	for {
		now := r.clock()
		remaining := r.StartAt.Sub(now)
		if remaining <= 0 {
			return nil
		}
		r.logger().WithFields(log.Fields{
			"start_at":  r.StartAt.Format(time.RFC3339),
			"remaining": remaining.Round(time.Second),
		}).Infof("Waiting for campaign start (%s)", humanize.RelTime(now, r.StartAt, "ago", "from now"))

		t := time.NewTimer(min(remaining, interval))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (r *Runner) publish(report *domain.CampaignReport) {
	l := r.logger()
	for _, repo := range r.Repos {
		for _, res := range report.Items {
			if err := repo.Save(res); err != nil {
				l.WithFields(log.Fields{
					"code":  res.Code,
					"error": err,
				}).Error("Failed to save result")
			}
		}
	}
	if r.Writer == nil {
		return
	}
	path, err := r.Writer.Aggregate(*report)
	if err != nil {
		l.WithError(err).Error("Failed to write campaign report")
		return
	}
	l.WithField("path", path).Info("Campaign report written")
}

func (r *Runner) clock() time.Time {
	if r.now == nil {
		return time.Now()
	}
	return r.now()
}

func (r *Runner) logger() *log.Entry {
	if r.Log == nil {
		return log.NewEntry(log.StandardLogger())
	}
	return r.Log
}
