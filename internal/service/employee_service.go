// Package service implements the employee use cases on top of storage.
package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	apperrors "github.com/emp-backend/internal/errors"
	"github.com/emp-backend/internal/logging"
	"github.com/emp-backend/internal/models"
	"github.com/emp-backend/internal/storage"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Paging limits
const (
	DefaultListLimit    = 100
	MaxListLimit        = 1000
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// EmployeeCache is the read-through cache used by EmployeeService
type EmployeeCache interface {
	GetEmployee(ctx context.Context, id int64) (*models.Employee, bool, error)
	SetEmployee(ctx context.Context, employee *models.Employee) error
	GetEmployeeList(ctx context.Context, limit, offset int) ([]*models.Employee, bool, error)
	SetEmployeeList(ctx context.Context, limit, offset int, employees []*models.Employee) error
	InvalidateEmployee(ctx context.Context, id int64) error
}

// EmployeeService handles employee management
type EmployeeService struct {
	repo     storage.EmployeeRepository
	cache    EmployeeCache
	audit    storage.AuditSink
	validate *validator.Validate
}

// NewEmployeeService creates a new employee service. cache may be nil; audit
// may be nil, in which case no history is kept.
func NewEmployeeService(repo storage.EmployeeRepository, cache EmployeeCache, audit storage.AuditSink) *EmployeeService {
	if audit == nil {
		audit = storage.NoopAuditSink{}
	}
	return &EmployeeService{
		repo:     repo,
		cache:    cache,
		audit:    audit,
		validate: newValidator(),
	}
}

// Input types

// EmployeeInput carries the client-writable employee fields
type EmployeeInput struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	EmailID   string `json:"emailId" validate:"required,email,max=255"`
}

// ListEmployeesInput selects a page of employees
type ListEmployeesInput struct {
	Limit  int
	Offset int
}

// Output types

// DeleteEmployeeResult is returned after a successful delete
type DeleteEmployeeResult struct {
	Deleted bool `json:"deleted"`
}

// ListEmployees returns a page of employees ordered by ID
func (s *EmployeeService) ListEmployees(ctx context.Context, input *ListEmployeesInput) ([]*models.Employee, error) {
	limit, offset := normalizePage(input.Limit, input.Offset, DefaultListLimit, MaxListLimit)

	if s.cache != nil {
		cached, ok, err := s.cache.GetEmployeeList(ctx, limit, offset)
		if err != nil {
			s.cacheWarning(ctx, "read employee list", err)
		} else if ok {
			return cached, nil
		}
	}

	employees, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list employees", err)
	}

	if s.cache != nil {
		if err := s.cache.SetEmployeeList(ctx, limit, offset, employees); err != nil {
			s.cacheWarning(ctx, "store employee list", err)
		}
	}

	return employees, nil
}

// GetEmployee returns one employee
func (s *EmployeeService) GetEmployee(ctx context.Context, id int64) (*models.Employee, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.GetEmployee(ctx, id)
		if err != nil {
			s.cacheWarning(ctx, "read employee", err)
		} else if ok {
			return cached, nil
		}
	}

	employee, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepositoryError("get employee", id, "", err)
	}

	if s.cache != nil {
		if err := s.cache.SetEmployee(ctx, employee); err != nil {
			s.cacheWarning(ctx, "store employee", err)
		}
	}

	return employee, nil
}

// CreateEmployee validates and stores a new employee
func (s *EmployeeService) CreateEmployee(ctx context.Context, input *EmployeeInput) (*models.Employee, error) {
	normalized, err := s.validateInput(input)
	if err != nil {
		return nil, err
	}

	employee := &models.Employee{
		FirstName: normalized.FirstName,
		LastName:  normalized.LastName,
		EmailID:   normalized.EmailID,
	}

	if err := s.repo.Create(ctx, employee); err != nil {
		return nil, mapRepositoryError("create employee", 0, employee.EmailID, err)
	}

	s.afterWrite(ctx, models.ActionCreated, employee)

	logging.FromContext(ctx).WithField("employeeId", employee.ID).Info("Employee created")
	return employee, nil
}

// UpdateEmployee replaces the writable fields of an existing employee
func (s *EmployeeService) UpdateEmployee(ctx context.Context, id int64, input *EmployeeInput) (*models.Employee, error) {
	normalized, err := s.validateInput(input)
	if err != nil {
		return nil, err
	}

	employee := &models.Employee{
		ID:        id,
		FirstName: normalized.FirstName,
		LastName:  normalized.LastName,
		EmailID:   normalized.EmailID,
	}

	if err := s.repo.Update(ctx, employee); err != nil {
		return nil, mapRepositoryError("update employee", id, employee.EmailID, err)
	}

	s.afterWrite(ctx, models.ActionUpdated, employee)

	logging.FromContext(ctx).WithField("employeeId", id).Info("Employee updated")
	return employee, nil
}

// DeleteEmployee removes an employee
func (s *EmployeeService) DeleteEmployee(ctx context.Context, id int64) (*DeleteEmployeeResult, error) {
	employee, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepositoryError("get employee", id, "", err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, mapRepositoryError("delete employee", id, "", err)
	}

	s.afterWrite(ctx, models.ActionDeleted, employee)

	logging.FromContext(ctx).WithField("employeeId", id).Info("Employee deleted")
	return &DeleteEmployeeResult{Deleted: true}, nil
}

// GetHistory returns the recorded changes of an employee, newest first. It
// also works for employees that have since been deleted.
func (s *EmployeeService) GetHistory(ctx context.Context, id int64, limit int) ([]*models.EmployeeEvent, error) {
	limit, _ = normalizePage(limit, 0, DefaultHistoryLimit, MaxHistoryLimit)

	events, err := s.audit.History(ctx, id, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("read employee history", err)
	}
	return events, nil
}

// afterWrite invalidates cached reads and records the change. Neither step
// fails the request.
func (s *EmployeeService) afterWrite(ctx context.Context, action models.EmployeeAction, employee *models.Employee) {
	if s.cache != nil {
		if err := s.cache.InvalidateEmployee(ctx, employee.ID); err != nil {
			s.cacheWarning(ctx, "invalidate employee", err)
		}
	}

	event := &models.EmployeeEvent{
		ID:         uuid.NewString(),
		EmployeeID: employee.ID,
		Action:     action,
		Snapshot:   *employee,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.audit.Record(ctx, event); err != nil {
		logging.FromContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"employeeId": employee.ID,
			"action":     action,
		}).Warn("Failed to record employee event")
	}
}

func (s *EmployeeService) cacheWarning(ctx context.Context, operation string, err error) {
	logging.FromContext(ctx).WithError(apperrors.NewCacheError(operation, err)).Warn("Cache unavailable, using store")
}

// validateInput trims the input and checks it against the struct tags
func (s *EmployeeService) validateInput(input *EmployeeInput) (*EmployeeInput, error) {
	if input == nil {
		return nil, apperrors.NewInvalidBodyError(errors.New("missing employee"))
	}

	normalized := &EmployeeInput{
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		EmailID:   strings.TrimSpace(input.EmailID),
	}

	if err := s.validate.Struct(normalized); err != nil {
		var validationErrs validator.ValidationErrors
		if !errors.As(err, &validationErrs) {
			return nil, apperrors.NewInternalError("validation failed", err)
		}

		fields := make(map[string]string, len(validationErrs))
		for _, fe := range validationErrs {
			fields[fe.Field()] = describeFieldError(fe)
		}
		return nil, apperrors.NewValidationError(fields)
	}

	return normalized, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names so clients can map errors to form fields.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// mapRepositoryError converts storage sentinels into categorized errors
func mapRepositoryError(operation string, id int64, email string, err error) error {
	switch {
	case errors.Is(err, storage.ErrEmployeeNotFound):
		return apperrors.NewEmployeeNotFoundError(id)
	case errors.Is(err, storage.ErrDuplicateEmail):
		return apperrors.NewDuplicateEmailError(email)
	default:
		return apperrors.NewDatabaseError(operation, err)
	}
}

func normalizePage(limit, offset, defaultLimit, maxLimit int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
