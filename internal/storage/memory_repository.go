package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emp-backend/internal/models"
)

// MemoryEmployeeRepository keeps employees in process memory. It backs the
// test profile and behaves like the Postgres repository.
type MemoryEmployeeRepository struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]models.Employee
	byEmail map[string]int64
}

// NewMemoryEmployeeRepository creates an empty repository
func NewMemoryEmployeeRepository() *MemoryEmployeeRepository {
	return &MemoryEmployeeRepository{
		nextID:  1,
		byID:    make(map[int64]models.Employee),
		byEmail: make(map[string]int64),
	}
}

func emailKey(email string) string {
	return strings.ToLower(email)
}

// Create stores a new employee and fills in its ID and timestamps
func (r *MemoryEmployeeRepository) Create(ctx context.Context, employee *models.Employee) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := emailKey(employee.EmailID)
	if _, taken := r.byEmail[key]; taken {
		return ErrDuplicateEmail
	}

	now := time.Now().UTC()
	employee.ID = r.nextID
	employee.CreatedAt = now
	employee.UpdatedAt = now
	r.nextID++

	r.byID[employee.ID] = *employee
	r.byEmail[key] = employee.ID
	return nil
}

// GetByID retrieves an employee by ID
func (r *MemoryEmployeeRepository) GetByID(ctx context.Context, id int64) (*models.Employee, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byID[id]
	if !ok {
		return nil, ErrEmployeeNotFound
	}
	return &e, nil
}

// List retrieves a page of employees ordered by ID; a non-positive limit returns everything after offset
func (r *MemoryEmployeeRepository) List(ctx context.Context, limit, offset int) ([]*models.Employee, error) {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if offset < 0 {
		offset = 0
	}
	if offset > len(ids) {
		offset = len(ids)
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}

	employees := make([]*models.Employee, 0, len(ids))
	for _, id := range ids {
		e := r.byID[id]
		employees = append(employees, &e)
	}
	r.mu.RUnlock()

	return employees, nil
}

// Update overwrites the mutable fields of an existing employee
func (r *MemoryEmployeeRepository) Update(ctx context.Context, employee *models.Employee) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[employee.ID]
	if !ok {
		return ErrEmployeeNotFound
	}

	newKey := emailKey(employee.EmailID)
	if owner, taken := r.byEmail[newKey]; taken && owner != employee.ID {
		return ErrDuplicateEmail
	}

	delete(r.byEmail, emailKey(current.EmailID))
	r.byEmail[newKey] = employee.ID

	employee.CreatedAt = current.CreatedAt
	employee.UpdatedAt = time.Now().UTC()
	r.byID[employee.ID] = *employee
	return nil
}

// Delete deletes an employee by ID
func (r *MemoryEmployeeRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return ErrEmployeeNotFound
	}
	delete(r.byID, id)
	delete(r.byEmail, emailKey(e.EmailID))
	return nil
}

// Count returns the number of stored employees
func (r *MemoryEmployeeRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.byID)), nil
}

// Ping always succeeds
func (r *MemoryEmployeeRepository) Ping(ctx context.Context) error {
	return nil
}
