package domain

import "time"

type OutcomeStatus string

const (
	OutcomeFlagFound  OutcomeStatus = "flag_found"
	OutcomeCompleted  OutcomeStatus = "completed"
	OutcomeIncomplete OutcomeStatus = "incomplete"
)

// MissionOutcome is what a finished mission hands back to the campaign.
type MissionOutcome struct {
	MissionID string        `json:"mission_id"`
	Code      string        `json:"code"`
	Status    OutcomeStatus `json:"status"`
	Flag      string        `json:"flag,omitempty"`
	Steps     int           `json:"steps"`
	Duration  time.Duration `json:"duration"`
	State     *MissionState `json:"state,omitempty"`
}

type ItemStatus string

const (
	ItemFlagFound ItemStatus = "flag_found"
	ItemNoFlag    ItemStatus = "no_flag"
	ItemError     ItemStatus = "error"
)

type ItemResult struct {
	Code     string          `json:"code"`
	Status   ItemStatus      `json:"status"`
	Attempts int             `json:"attempts"`
	Outcome  *MissionOutcome `json:"outcome,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type CampaignReport struct {
	ID         string             `json:"id"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Skipped    []string           `json:"skipped,omitempty"`
	Retried    int                `json:"retried"`
	Counts     map[ItemStatus]int `json:"counts"`
	Items      []ItemResult       `json:"items"`
}
