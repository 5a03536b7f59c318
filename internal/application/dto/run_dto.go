package dto

import "time"

// RunSummaryDTO reports the outcome of one collection run.
type RunSummaryDTO struct {
	RunID          string        `json:"run_id"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	Duration       string        `json:"duration"`
	Organizations  int           `json:"organizations"`
	Succeeded      int           `json:"succeeded"`
	Partial        int           `json:"partial"`
	Failed         int           `json:"failed"`
	AlertsOpened   int           `json:"alerts_opened"`
	AlertsResolved int           `json:"alerts_resolved"`
	Aborted        bool          `json:"aborted,omitempty"`
	AbortReason    string        `json:"abort_reason,omitempty"`
	Errors         []RunErrorDTO `json:"errors,omitempty"`
}

// RunErrorDTO records one organization's failure within a run.
type RunErrorDTO struct {
	OrganizationID string `json:"organization_id"`
	Attempts       int    `json:"attempts"`
	Error          string `json:"error"`
}

// RunStatusDTO is the live scheduler state exposed over the API.
type RunStatusDTO struct {
	Running   bool           `json:"running"`
	StartedAt time.Time      `json:"started_at"`
	Interval  string         `json:"interval"`
	LastRunAt *time.Time     `json:"last_run_at,omitempty"`
	LastError string         `json:"last_error,omitempty"`
	LastRun   *RunSummaryDTO `json:"last_run,omitempty"`
	NextRunAt *time.Time     `json:"next_run_at,omitempty"`
}
