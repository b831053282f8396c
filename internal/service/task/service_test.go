package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/splax/taskflow/internal/domain"
	"github.com/splax/taskflow/internal/repository"
)

// memoryTaskRepo keeps tasks in insertion order, mirroring the store contract.
type memoryTaskRepo struct {
	tasks []domain.Task
}

func (m *memoryTaskRepo) CreateTask(_ context.Context, task *domain.Task) error {
	m.tasks = append(m.tasks, *task)
	return nil
}

func (m *memoryTaskRepo) GetTaskForOwner(_ context.Context, taskID, ownerID string) (*domain.Task, error) {
	for _, t := range m.tasks {
		if t.ID == taskID && t.OwnerID == ownerID {
			copy := t
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryTaskRepo) UpdateTask(_ context.Context, task *domain.Task) error {
	for i, t := range m.tasks {
		if t.ID == task.ID && t.OwnerID == task.OwnerID {
			m.tasks[i] = *task
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memoryTaskRepo) DeleteTaskForOwner(_ context.Context, taskID, ownerID string) error {
	for i, t := range m.tasks {
		if t.ID == taskID && t.OwnerID == ownerID {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memoryTaskRepo) ListTasksByOwner(_ context.Context, ownerID string, limit, offset int) ([]domain.Task, error) {
	owned := make([]domain.Task, 0)
	for _, t := range m.tasks {
		if t.OwnerID == ownerID {
			owned = append(owned, t)
		}
	}
	if offset >= len(owned) {
		return nil, nil
	}
	end := offset + limit
	if end > len(owned) {
		end = len(owned)
	}
	return owned[offset:end], nil
}

func (m *memoryTaskRepo) CountTasksByOwner(_ context.Context, ownerID string) (int, error) {
	count := 0
	for _, t := range m.tasks {
		if t.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func newTestService() (Service, *memoryTaskRepo) {
	repo := &memoryTaskRepo{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(repo, nil, log), repo
}

func dueDate() time.Time {
	return time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
}

func TestCreateThenGetRoundTrip(t *testing.T) {
	svc, _ := newTestService()
	created, err := svc.Create(context.Background(), "owner-a", CreateInput{
		Title:       "write report",
		Description: "quarterly numbers",
		DueDate:     dueDate(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != domain.StatusPending {
		t.Fatalf("expected pending status, got %q", created.Status)
	}
	if created.Priority != domain.PriorityMedium {
		t.Fatalf("expected default Medium priority, got %q", created.Priority)
	}

	got, err := svc.Get(context.Background(), created.ID, "owner-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "write report" || got.Description != "quarterly numbers" || !got.DueDate.Equal(dueDate()) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestCreateRequiresTitleAndDueDate(t *testing.T) {
	svc, _ := newTestService()
	var verr domain.ValidationError

	_, err := svc.Create(context.Background(), "owner-a", CreateInput{DueDate: dueDate()})
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for missing title, got %v", err)
	}
	_, err = svc.Create(context.Background(), "owner-a", CreateInput{Title: "no due date"})
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for missing due date, got %v", err)
	}
}

func TestCreateRejectsUnknownPriority(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Create(context.Background(), "owner-a", CreateInput{
		Title:    "prioritized",
		DueDate:  dueDate(),
		Priority: "Urgent",
	})
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for unknown priority, got %v", err)
	}
}

func TestGetHidesForeignAndMissingTasksUniformly(t *testing.T) {
	svc, _ := newTestService()
	created, err := svc.Create(context.Background(), "owner-a", CreateInput{Title: "private", DueDate: dueDate()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, foreignErr := svc.Get(context.Background(), created.ID, "owner-b")
	_, missingErr := svc.Get(context.Background(), "no-such-task", "owner-b")
	if !errors.Is(foreignErr, ErrNotOwned) {
		t.Fatalf("expected ErrNotOwned for foreign task, got %v", foreignErr)
	}
	if !errors.Is(missingErr, ErrNotOwned) {
		t.Fatalf("expected ErrNotOwned for missing task, got %v", missingErr)
	}
	if foreignErr.Error() != missingErr.Error() {
		t.Fatalf("foreign and missing errors must be indistinguishable: %q vs %q", foreignErr, missingErr)
	}
}

func TestUpdateMergePatchKeepsOmittedFields(t *testing.T) {
	svc, _ := newTestService()
	created, err := svc.Create(context.Background(), "owner-a", CreateInput{
		Title:       "original title",
		Description: "original description",
		DueDate:     dueDate(),
		Priority:    "High",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	status := "completed"
	updated, err := svc.Update(context.Background(), created.ID, "owner-a", UpdateInput{Status: &status})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.StatusCompleted {
		t.Fatalf("expected completed status, got %q", updated.Status)
	}
	if updated.Title != "original title" || updated.Description != "original description" {
		t.Fatalf("omitted fields must keep stored values: %+v", updated)
	}
	if !updated.DueDate.Equal(dueDate()) || updated.Priority != domain.PriorityHigh {
		t.Fatalf("omitted fields must keep stored values: %+v", updated)
	}
}

func TestUpdateIgnoresPresentButEmptyStrings(t *testing.T) {
	svc, _ := newTestService()
	created, err := svc.Create(context.Background(), "owner-a", CreateInput{Title: "keep me", DueDate: dueDate()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	empty := ""
	updated, err := svc.Update(context.Background(), created.ID, "owner-a", UpdateInput{Title: &empty})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "keep me" {
		t.Fatalf("empty title must not overwrite, got %q", updated.Title)
	}
}

func TestUpdateRejectsUnknownEnumValues(t *testing.T) {
	svc, _ := newTestService()
	created, err := svc.Create(context.Background(), "owner-a", CreateInput{Title: "enums", DueDate: dueDate()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var verr domain.ValidationError
	badStatus := "archived"
	if _, err := svc.Update(context.Background(), created.ID, "owner-a", UpdateInput{Status: &badStatus}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
	badPriority := "Critical"
	if _, err := svc.Update(context.Background(), created.ID, "owner-a", UpdateInput{Priority: &badPriority}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for unknown priority, got %v", err)
	}
}

func TestUpdateEnforcesOwnershipGate(t *testing.T) {
	svc, _ := newTestService()
	created, err := svc.Create(context.Background(), "owner-a", CreateInput{Title: "mine", DueDate: dueDate()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	title := "stolen"
	if _, err := svc.Update(context.Background(), created.ID, "owner-b", UpdateInput{Title: &title}); !errors.Is(err, ErrNotOwned) {
		t.Fatalf("expected ErrNotOwned, got %v", err)
	}
}

func TestListPaginatesInPagesOfFive(t *testing.T) {
	svc, _ := newTestService()
	for i := 0; i < 12; i++ {
		if _, err := svc.Create(context.Background(), "owner-a", CreateInput{
			Title:   fmt.Sprintf("task %d", i),
			DueDate: dueDate(),
		}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	// another owner's tasks must not leak into the listing
	if _, err := svc.Create(context.Background(), "owner-b", CreateInput{Title: "other", DueDate: dueDate()}); err != nil {
		t.Fatalf("create foreign: %v", err)
	}

	page1, err := svc.List(context.Background(), "owner-a", 1)
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(page1.Tasks) != 5 || page1.Pages != 3 || page1.Page != 1 {
		t.Fatalf("unexpected page 1: len=%d pages=%d page=%d", len(page1.Tasks), page1.Pages, page1.Page)
	}
	if page1.Tasks[0].Title != "task 0" {
		t.Fatalf("expected stable insertion order, got %q first", page1.Tasks[0].Title)
	}

	page3, err := svc.List(context.Background(), "owner-a", 3)
	if err != nil {
		t.Fatalf("list page 3: %v", err)
	}
	if len(page3.Tasks) != 2 {
		t.Fatalf("expected 2 tasks on page 3, got %d", len(page3.Tasks))
	}

	page4, err := svc.List(context.Background(), "owner-a", 4)
	if err != nil {
		t.Fatalf("list page 4: %v", err)
	}
	if len(page4.Tasks) != 0 {
		t.Fatalf("expected empty page 4, got %d tasks", len(page4.Tasks))
	}
}

func TestDeleteEnforcesOwnershipGate(t *testing.T) {
	svc, repo := newTestService()
	created, err := svc.Create(context.Background(), "owner-a", CreateInput{Title: "ephemeral", DueDate: dueDate()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(context.Background(), created.ID, "owner-b"); !errors.Is(err, ErrNotOwned) {
		t.Fatalf("expected ErrNotOwned for foreign delete, got %v", err)
	}
	if err := svc.Delete(context.Background(), created.ID, "owner-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(repo.tasks) != 0 {
		t.Fatalf("expected task removed from store, %d left", len(repo.tasks))
	}
	if _, err := svc.Get(context.Background(), created.ID, "owner-a"); !errors.Is(err, ErrNotOwned) {
		t.Fatalf("expected ErrNotOwned after delete, got %v", err)
	}
}
