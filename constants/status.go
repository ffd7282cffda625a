package constants

// TaskStatus is the canonical status of one observation unit.
type TaskStatus string

// Stable values (store these exact strings in DB).
const (
	TaskStatusPending   TaskStatus = "PENDING"   // queued, not yet dispatched
	TaskStatusRunning   TaskStatus = "RUNNING"   // pipeline in progress
	TaskStatusSucceeded TaskStatus = "SUCCEEDED" // pipeline ran to completion
	TaskStatusFailed    TaskStatus = "FAILED"    // terminal failure
)

// IsTerminal reports whether no further transition is allowed from s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// ProductStatus is the outcome of one (object, role) product.
type ProductStatus string

const (
	ProductPending   ProductStatus = "PENDING"
	ProductSucceeded ProductStatus = "OK"
	ProductFailed    ProductStatus = "FAILED"
	ProductSkipped   ProductStatus = "SKIPPED" // role missing or prerequisite failed
)
