package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emp-backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the Postgres SQLSTATE for unique constraint violations
const uniqueViolation = "23505"

// PostgresEmployeeRepository handles employee persistence in Postgres
type PostgresEmployeeRepository struct {
	db *PostgresDB
}

// NewPostgresEmployeeRepository creates a new employee repository
func NewPostgresEmployeeRepository(db *PostgresDB) *PostgresEmployeeRepository {
	return &PostgresEmployeeRepository{db: db}
}

const employeeColumns = `id, first_name, last_name, email_id, created_at, updated_at`

// Create inserts a new employee and fills in its ID and timestamps
func (r *PostgresEmployeeRepository) Create(ctx context.Context, employee *models.Employee) error {
	now := time.Now().UTC()

	query := `
		INSERT INTO employees (first_name, last_name, email_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		employee.FirstName,
		employee.LastName,
		employee.EmailID,
		now,
	).Scan(&employee.ID, &employee.CreatedAt, &employee.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create employee: %w", err)
	}

	return nil
}

// GetByID retrieves an employee by ID
func (r *PostgresEmployeeRepository) GetByID(ctx context.Context, id int64) (*models.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = $1`

	employee, err := scanEmployee(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmployeeNotFound
		}
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}

	return employee, nil
}

// List retrieves a page of employees ordered by ID
func (r *PostgresEmployeeRepository) List(ctx context.Context, limit, offset int) ([]*models.Employee, error) {
	query := `
		SELECT ` + employeeColumns + `
		FROM employees
		ORDER BY id
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool().Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	employees := make([]*models.Employee, 0)
	for rows.Next() {
		employee, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, employee)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating employees: %w", err)
	}

	return employees, nil
}

// Update overwrites the mutable fields of an existing employee
func (r *PostgresEmployeeRepository) Update(ctx context.Context, employee *models.Employee) error {
	now := time.Now().UTC()

	query := `
		UPDATE employees
		SET first_name = $2, last_name = $3, email_id = $4, updated_at = $5
		WHERE id = $1
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		employee.ID,
		employee.FirstName,
		employee.LastName,
		employee.EmailID,
		now,
	).Scan(&employee.CreatedAt, &employee.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return ErrEmployeeNotFound
		case isUniqueViolation(err):
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to update employee: %w", err)
	}

	return nil
}

// Delete deletes an employee by ID
func (r *PostgresEmployeeRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Pool().Exec(ctx, `DELETE FROM employees WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete employee: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrEmployeeNotFound
	}

	return nil
}

// Count returns the total number of employees
func (r *PostgresEmployeeRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM employees`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count employees: %w", err)
	}
	return count, nil
}

// Ping checks if the database is reachable
func (r *PostgresEmployeeRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func scanEmployee(row pgx.Row) (*models.Employee, error) {
	var e models.Employee
	if err := row.Scan(&e.ID, &e.FirstName, &e.LastName, &e.EmailID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
