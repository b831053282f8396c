package task

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/taskflow/internal/domain"
	"github.com/splax/taskflow/internal/repository"
	"github.com/splax/taskflow/internal/ws"
)

// PageSize is the fixed page length for task listings.
const PageSize = 5

// ErrNotOwned is returned both when a task does not exist and when it belongs
// to another user. The two cases are deliberately indistinguishable.
var ErrNotOwned = errors.New("task not found or not authorized")

// Service enforces per-owner task access and pagination.
type Service struct {
	repo   repository.TaskRepository
	hub    *ws.Hub
	logger *slog.Logger
}

// New constructs a task Service. hub may be nil when streaming is disabled.
func New(repo repository.TaskRepository, hub *ws.Hub, logger *slog.Logger) Service {
	return Service{repo: repo, hub: hub, logger: logger}
}

// Page is one slice of an owner's task list.
type Page struct {
	Tasks []domain.Task
	Page  int
	Pages int
}

// CreateInput carries the fields accepted at task creation.
type CreateInput struct {
	Title       string
	Description string
	DueDate     time.Time
	Priority    string
}

// UpdateInput is a merge patch: nil means the field was omitted and keeps its
// stored value. Present-but-empty strings also keep the stored value.
type UpdateInput struct {
	Title       *string
	Description *string
	DueDate     *time.Time
	Priority    *string
	Status      *string
}

// List returns the owner's tasks sliced to the requested page. Pages beyond
// range yield an empty slice. Count and slice may observe slightly different
// snapshots under concurrent writes; that is acceptable here.
func (s Service) List(ctx context.Context, ownerID string, page int) (Page, error) {
	if page < 1 {
		page = 1
	}
	count, err := s.repo.CountTasksByOwner(ctx, ownerID)
	if err != nil {
		return Page{}, err
	}
	tasks, err := s.repo.ListTasksByOwner(ctx, ownerID, PageSize, PageSize*(page-1))
	if err != nil {
		return Page{}, err
	}
	pages := (count + PageSize - 1) / PageSize
	return Page{Tasks: tasks, Page: page, Pages: pages}, nil
}

// Create validates input and stores a pending task for the owner.
func (s Service) Create(ctx context.Context, ownerID string, in CreateInput) (*domain.Task, error) {
	if strings.TrimSpace(in.Title) == "" || in.DueDate.IsZero() {
		return nil, domain.ValidationError{Reason: "please add a title and a due date"}
	}
	priority := domain.PriorityMedium
	if in.Priority != "" {
		priority = domain.Priority(in.Priority)
		if !priority.Valid() {
			return nil, domain.ValidationError{Reason: "priority must be High, Medium or Low"}
		}
	}
	task := &domain.Task{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		DueDate:     in.DueDate,
		Priority:    priority,
		Status:      domain.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	s.logger.Info("task created", "task_id", task.ID, "user_id", ownerID)
	s.publish(ownerID, "task.created", task)
	return task, nil
}

// Get returns the task only when the caller owns it.
func (s Service) Get(ctx context.Context, taskID, ownerID string) (*domain.Task, error) {
	task, err := s.repo.GetTaskForOwner(ctx, taskID, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotOwned
		}
		return nil, err
	}
	return task, nil
}

// Update applies a merge patch behind the ownership gate.
func (s Service) Update(ctx context.Context, taskID, ownerID string, patch UpdateInput) (*domain.Task, error) {
	task, err := s.Get(ctx, taskID, ownerID)
	if err != nil {
		return nil, err
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) != "" {
		task.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil && *patch.Description != "" {
		task.Description = *patch.Description
	}
	if patch.DueDate != nil && !patch.DueDate.IsZero() {
		task.DueDate = *patch.DueDate
	}
	if patch.Priority != nil && *patch.Priority != "" {
		priority := domain.Priority(*patch.Priority)
		if !priority.Valid() {
			return nil, domain.ValidationError{Reason: "priority must be High, Medium or Low"}
		}
		task.Priority = priority
	}
	if patch.Status != nil && *patch.Status != "" {
		status := domain.Status(*patch.Status)
		if !status.Valid() {
			return nil, domain.ValidationError{Reason: "status must be pending or completed"}
		}
		task.Status = status
	}
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotOwned
		}
		return nil, err
	}
	s.publish(ownerID, "task.updated", task)
	return task, nil
}

// Delete removes the task behind the ownership gate.
func (s Service) Delete(ctx context.Context, taskID, ownerID string) error {
	if err := s.repo.DeleteTaskForOwner(ctx, taskID, ownerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotOwned
		}
		return err
	}
	s.logger.Info("task deleted", "task_id", taskID, "user_id", ownerID)
	s.publish(ownerID, "task.deleted", &domain.Task{ID: taskID, OwnerID: ownerID})
	return nil
}

// Hub returns the board-event hub (useful for HTTP handlers).
func (s Service) Hub() *ws.Hub {
	return s.hub
}

func (s Service) publish(ownerID, event string, task *domain.Task) {
	if s.hub == nil {
		return
	}
	data, err := json.Marshal(map[string]any{
		"event": event,
		"task":  Payload(*task),
	})
	if err != nil {
		s.logger.Warn("failed to marshal board event", "error", err)
		return
	}
	s.hub.Broadcast(ownerID, data)
}

// Payload formats a task for API and streaming payloads.
func Payload(t domain.Task) map[string]any {
	return map[string]any{
		"id":          t.ID,
		"user":        t.OwnerID,
		"title":       t.Title,
		"description": t.Description,
		"dueDate":     t.DueDate.UTC().Format("2006-01-02"),
		"priority":    t.Priority,
		"status":      t.Status,
		"createdAt":   t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
