package entity

import "time"

// Run is one batch invocation.
type Run struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Total       int        `json:"total"`
	Succeeded   int        `json:"succeeded"`
	Failed      int        `json:"failed"`
	Remaining   int        `json:"remaining"`
	MeanElapsed int64      `json:"mean_elapsed_ms"`
}

// Unit is one observation processed within a run.
type Unit struct {
	RunID        string     `json:"run_id"`
	ObsID        string     `json:"obs_id"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ElapsedMS    int64      `json:"elapsed_ms"`
	ErrorKind    *string    `json:"error_kind,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// Product is one (object, role) light curve of a unit.
type Product struct {
	RunID        string  `json:"run_id"`
	ObsID        string  `json:"obs_id"`
	ObjectID     string  `json:"object_id"`
	Role         string  `json:"role"`
	Status       string  `json:"status"`
	Path         *string `json:"path,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}
