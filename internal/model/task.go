package model

import "time"

// TaskKind identifies one unit of vision-capability invocation.
type TaskKind string

const (
	TaskCutDetection          TaskKind = "cut_detection"
	TaskColorDetection        TaskKind = "color_detection"
	TaskPrimarySelection      TaskKind = "primary_selection"
	TaskLabelExtraction       TaskKind = "label_extraction"
	TaskMeasurementExtraction TaskKind = "measurement_extraction"
)

// AllTaskKinds lists every task kind in dispatch order.
var AllTaskKinds = []TaskKind{
	TaskCutDetection,
	TaskColorDetection,
	TaskPrimarySelection,
	TaskLabelExtraction,
	TaskMeasurementExtraction,
}

// TaskStatus is the terminal state of a dispatched task.
type TaskStatus string

const (
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskTimedOut  TaskStatus = "timeout"
)

// AnalysisTask records one vision invocation for audit purposes. Tasks are
// ephemeral — they live for the duration of a run and are summarized into
// the AnalysisRecord's telemetry rather than persisted individually.
type AnalysisTask struct {
	Kind       TaskKind      `json:"kind"`
	AssetIDs   []string      `json:"asset_ids"`
	Model      string        `json:"model"`
	Timeout    time.Duration `json:"timeout"`
	Attempts   int           `json:"attempts"`
	Status     TaskStatus    `json:"status"`
	Error      string        `json:"error,omitempty"`
	DurationMS int64         `json:"duration_ms"`
}
