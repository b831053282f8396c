package repository

import (
	"context"

	"github.com/splax/taskflow/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// TaskRepository persists tasks scoped to an owning user.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *domain.Task) error
	// GetTaskForOwner returns ErrNotFound both when the task does not exist
	// and when it belongs to a different owner.
	GetTaskForOwner(ctx context.Context, taskID, ownerID string) (*domain.Task, error)
	UpdateTask(ctx context.Context, task *domain.Task) error
	DeleteTaskForOwner(ctx context.Context, taskID, ownerID string) error
	ListTasksByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.Task, error)
	CountTasksByOwner(ctx context.Context, ownerID string) (int, error)
}
