// Package storage provides database connections and repository implementations.
package storage

import (
	"context"
	"errors"

	"github.com/emp-backend/internal/models"
)

var (
	// ErrEmployeeNotFound is returned when no employee has the requested ID
	ErrEmployeeNotFound = errors.New("employee not found")
	// ErrDuplicateEmail is returned when another employee already uses the email
	ErrDuplicateEmail = errors.New("email already in use")
)

// EmployeeRepository persists employees.
//
// Create assigns ID, CreatedAt and UpdatedAt. Update keeps CreatedAt and
// refreshes UpdatedAt. Email uniqueness is case-insensitive. List returns
// employees ordered by ID.
type EmployeeRepository interface {
	Create(ctx context.Context, employee *models.Employee) error
	GetByID(ctx context.Context, id int64) (*models.Employee, error)
	List(ctx context.Context, limit, offset int) ([]*models.Employee, error)
	Update(ctx context.Context, employee *models.Employee) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}
