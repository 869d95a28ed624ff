package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// StageStatus represents the outcome of one stage within a run.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// Direction selects which side of bilateral trade is authoritative.
type Direction string

const (
	PreferImport Direction = "import"
	PreferExport Direction = "export"
)

// Options are the knobs that identify one family of outputs.
type Options struct {
	ConversionOption string    `json:"conversion_option" yaml:"conversion_option"`
	Direction        Direction `json:"prefer_import" yaml:"prefer_import"`
	Historic         bool      `json:"historic" yaml:"historic"`
}

// Run represents one pipeline run for a single year.
type Run struct {
	ID        string     `json:"id"`
	Year      int        `json:"year"`
	Options   Options    `json:"options"`
	Status    RunStatus  `json:"status"`
	Error     string     `json:"error,omitempty"`
	Stages    []StageRun `json:"stages,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// StageRun records one stage within a run.
type StageRun struct {
	ID          string      `json:"id"`
	RunID       string      `json:"run_id"`
	Name        string      `json:"name"`
	Status      StageStatus `json:"status"`
	Rows        int64       `json:"rows"`
	Error       string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}
