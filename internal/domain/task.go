package domain

import "time"

// Priority ranks a task.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Valid reports whether the priority is one of the known values.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Status tracks task completion.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted
}

// Task is a single to-do item owned by exactly one user.
type Task struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	DueDate     time.Time
	Priority    Priority
	Status      Status
	CreatedAt   time.Time
}
