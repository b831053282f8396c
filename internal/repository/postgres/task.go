package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/splax/taskflow/internal/domain"
	"github.com/splax/taskflow/internal/repository"
)

// CreateTask inserts a task.
func (r *Repository) CreateTask(ctx context.Context, task *domain.Task) error {
	const query = `INSERT INTO tasks (id, user_id, title, description, due_date, priority, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query, task.ID, task.OwnerID, task.Title, task.Description, task.DueDate, task.Priority, task.Status, task.CreatedAt)
	return err
}

// GetTaskForOwner fetches a task only when it belongs to the owner. A missing
// task and a foreign task are indistinguishable to the caller.
func (r *Repository) GetTaskForOwner(ctx context.Context, taskID, ownerID string) (*domain.Task, error) {
	const query = `SELECT id, user_id, title, description, due_date, priority, status, created_at
		FROM tasks WHERE id = $1 AND user_id = $2`
	row := r.pool.QueryRow(ctx, query, taskID, ownerID)
	var t domain.Task
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &t.DueDate, &t.Priority, &t.Status, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// UpdateTask overwrites mutable task fields, guarded by owner.
func (r *Repository) UpdateTask(ctx context.Context, task *domain.Task) error {
	const query = `UPDATE tasks
		SET title = $3, description = $4, due_date = $5, priority = $6, status = $7
		WHERE id = $1 AND user_id = $2`
	tag, err := r.pool.Exec(ctx, query, task.ID, task.OwnerID, task.Title, task.Description, task.DueDate, task.Priority, task.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteTaskForOwner removes a task, guarded by owner.
func (r *Repository) DeleteTaskForOwner(ctx context.Context, taskID, ownerID string) error {
	const query = `DELETE FROM tasks WHERE id = $1 AND user_id = $2`
	tag, err := r.pool.Exec(ctx, query, taskID, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListTasksByOwner returns a stable insertion-ordered slice of the owner's tasks.
func (r *Repository) ListTasksByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.Task, error) {
	const query = `SELECT id, user_id, title, description, due_date, priority, status, created_at
		FROM tasks WHERE user_id = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0)
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &t.DueDate, &t.Priority, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CountTasksByOwner counts the owner's tasks for pagination.
func (r *Repository) CountTasksByOwner(ctx context.Context, ownerID string) (int, error) {
	const query = `SELECT COUNT(1) FROM tasks WHERE user_id = $1`
	var count int
	if err := r.pool.QueryRow(ctx, query, ownerID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
