// Package models provides data models for the employee backend.
package models

import "time"

// Employee represents an employee record
type Employee struct {
	ID        int64     `json:"id" db:"id"`
	FirstName string    `json:"firstName" db:"first_name"`
	LastName  string    `json:"lastName" db:"last_name"`
	EmailID   string    `json:"emailId" db:"email_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// FullName returns "<first> <last>"
func (e *Employee) FullName() string {
	return e.FirstName + " " + e.LastName
}

// EmployeeAction is the kind of change recorded in an EmployeeEvent
type EmployeeAction string

const (
	ActionCreated EmployeeAction = "created"
	ActionUpdated EmployeeAction = "updated"
	ActionDeleted EmployeeAction = "deleted"
)

// EmployeeEvent is one entry in an employee's change history
type EmployeeEvent struct {
	ID         string         `json:"id"`
	EmployeeID int64          `json:"employeeId"`
	Action     EmployeeAction `json:"action"`
	Snapshot   Employee       `json:"snapshot"`
	OccurredAt time.Time      `json:"occurredAt"`
}
