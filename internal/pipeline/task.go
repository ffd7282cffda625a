package pipeline

import (
	"fmt"
	"time"

	"github.com/joseph-ayodele/xmm-lightcurves/constants"
)

// Task tracks one observation unit through the batch.
type Task struct {
	ID       string
	Status   constants.TaskStatus
	Started  time.Time
	Finished time.Time
	Err      error
	Report   *Report
}

func NewTask(id string) *Task {
	return &Task{ID: id, Status: constants.TaskStatusPending}
}

// Elapsed is the wall time between start and finish, zero until finished.
func (t *Task) Elapsed() time.Duration {
	if t.Started.IsZero() || t.Finished.IsZero() {
		return 0
	}
	return t.Finished.Sub(t.Started)
}

// Start moves the task from PENDING to RUNNING.
func (t *Task) Start(now time.Time) error {
	if err := Transition(t.Status, constants.TaskStatusRunning); err != nil {
		return fmt.Errorf("task %s: %w", t.ID, err)
	}
	t.Status = constants.TaskStatusRunning
	t.Started = now
	return nil
}

// Finish moves a running task to SUCCEEDED when err is nil, FAILED otherwise.
func (t *Task) Finish(now time.Time, report *Report, err error) error {
	to := constants.TaskStatusSucceeded
	if err != nil {
		to = constants.TaskStatusFailed
	}
	if terr := Transition(t.Status, to); terr != nil {
		return fmt.Errorf("task %s: %w", t.ID, terr)
	}
	t.Status = to
	t.Finished = now
	t.Report = report
	t.Err = err
	return nil
}

// Transition validates a status change. Terminal states accept none.
func Transition(from, to constants.TaskStatus) error {
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition %s -> %s", from, to)
	}
	return nil
}

func isAllowedTransition(from, to constants.TaskStatus) bool {
	switch from {
	case constants.TaskStatusPending:
		return to == constants.TaskStatusRunning
	case constants.TaskStatusRunning:
		return to == constants.TaskStatusSucceeded || to == constants.TaskStatusFailed
	default:
		return false
	}
}
