// Package domain holds the data model shared across the scheduler, source
// adapters, validator/aggregator pipeline, and transaction manager (spec §3).
package domain

import "time"

// Priority is a task's scheduling priority, which drives default retry
// policy and retry-eligibility by error kind (spec §7).
type Priority string

const (
	PriorityCritical Priority = "Critical"
	PriorityHigh     Priority = "High"
	PriorityMedium   Priority = "Medium"
	PriorityLow      Priority = "Low"
)

// TriggerKind distinguishes a cron-expression trigger from a fixed interval.
type TriggerKind string

const (
	TriggerCron     TriggerKind = "cron"
	TriggerInterval TriggerKind = "interval"
)

// Trigger is a task's fire schedule: either a five/six-field cron
// expression or a fixed interval in seconds.
type Trigger struct {
	Kind         TriggerKind
	CronExpr     string
	IntervalSecs int
}

// RetryPolicy controls retry backoff for a task's failed executions.
type RetryPolicy struct {
	MaxAttempts      int
	BaseDelay        time.Duration
	Multiplier       float64
	MaxDelay         time.Duration
	RetriableClasses []string
}

// DefaultRetryPolicy derives a RetryPolicy from task priority, per spec §3's
// "Derived from priority by default; overridable" note.
func DefaultRetryPolicy(priority Priority) RetryPolicy {
	switch priority {
	case PriorityCritical:
		return RetryPolicy{MaxAttempts: 6, BaseDelay: 500 * time.Millisecond, Multiplier: 2, MaxDelay: 30 * time.Second}
	case PriorityHigh:
		return RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute}
	case PriorityMedium:
		return RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, Multiplier: 2, MaxDelay: 2 * time.Minute}
	default:
		return RetryPolicy{MaxAttempts: 1, BaseDelay: 5 * time.Second, Multiplier: 1, MaxDelay: 5 * time.Second}
	}
}

// TaskDefinition is an operator-created oracle update task (spec §3).
type TaskDefinition struct {
	ID              string
	Name            string
	Priority        Priority
	Trigger         Trigger
	Sources         []SourceConfig
	ValidationRules []string
	MinSources      int
	MaxConcurrent   int
	Timeout         time.Duration
	Retry           RetryPolicy
	ContractIDs     []string
	Owner           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ExecutionStatus is a TaskExecution's lifecycle state (spec §4.5 state machine).
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "Pending"
	ExecutionRunning   ExecutionStatus = "Running"
	ExecutionCompleted ExecutionStatus = "Completed"
	ExecutionFailed    ExecutionStatus = "Failed"
	ExecutionRetrying  ExecutionStatus = "Retrying"
	ExecutionCancelled ExecutionStatus = "Cancelled"
)

// TaskExecution is one attempt at running a TaskDefinition (spec §3, §4.5).
type TaskExecution struct {
	ID              string
	TaskID          string
	NodeID          string
	StartTime       time.Time
	EndTime         *time.Time
	Status          ExecutionStatus
	DataPoints      []DataPoint
	AggregatedValue *AggregatedValue
	Error           string
	RetryCount      int
	PerfMetrics     map[string]time.Duration
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsTerminal reports whether the execution has reached a state that no
// longer transitions (Completed/Failed/Cancelled).
func (e *TaskExecution) IsTerminal() bool {
	switch e.Status {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	default:
		return false
	}
}

// MaintenanceWindow suppresses scheduler fires for matching tasks while
// active (spec §3, §4.5, §8 invariant).
type MaintenanceWindow struct {
	ID              string
	Start           time.Time
	End             time.Time
	Description     string
	AffectedTaskIDs []string // empty means "all tasks"
	CreatedBy       string
	CreatedAt       time.Time
}

// Active reports whether the window covers instant t.
func (w *MaintenanceWindow) Active(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Affects reports whether this window suppresses the given task.
func (w *MaintenanceWindow) Affects(taskID string) bool {
	if len(w.AffectedTaskIDs) == 0 {
		return true
	}
	for _, id := range w.AffectedTaskIDs {
		if id == taskID {
			return true
		}
	}
	return false
}
