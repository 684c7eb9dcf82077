package models

import "time"

type CategoryStatus string

const (
	StatusUploaded     CategoryStatus = "uploaded"
	StatusExported     CategoryStatus = "exported"
	StatusEmpty        CategoryStatus = "empty"
	StatusFailed       CategoryStatus = "failed"
	StatusExportFailed CategoryStatus = "export_failed"
	StatusUploadFailed CategoryStatus = "upload_failed"
)

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunAborted   RunStatus = "aborted"
)

// RunInfo describes one harvest run. It never carries listing data.
type RunInfo struct {
	ID         string     `json:"id"`
	Profile    string     `json:"profile"`
	Window     string     `json:"window"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Categories int        `json:"categories"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Empty      int        `json:"empty"`
	Kept       int        `json:"kept"`
	Error      string     `json:"error,omitempty"`
}

// CategoryReport is the bookkeeping entry for one category of a run.
type CategoryReport struct {
	RunID        string         `json:"run_id"`
	Category     string         `json:"category"`
	Window       string         `json:"window"`
	Status       CategoryStatus `json:"status"`
	Brands       int            `json:"brands"`
	ListingsSeen int            `json:"listings_seen"`
	ListingsKept int            `json:"listings_kept"`
	Unresolved   int            `json:"unresolved"`
	Undated      int            `json:"undated"`
	File         string         `json:"file,omitempty"`
	FileID       string         `json:"file_id,omitempty"`
	Error        string         `json:"error,omitempty"`
	Duration     time.Duration  `json:"duration"`
	FinishedAt   time.Time      `json:"finished_at"`
}
