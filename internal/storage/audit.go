package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/emp-backend/internal/models"
)

// AuditSink stores the change history of employees
type AuditSink interface {
	Record(ctx context.Context, event *models.EmployeeEvent) error
	// History returns the most recent events for an employee, newest first
	History(ctx context.Context, employeeID int64, limit int) ([]*models.EmployeeEvent, error)
	Ping(ctx context.Context) error
	Close() error
}

const employeeEventsSchema = `
CREATE TABLE IF NOT EXISTS employee_events (
    event_id    String,
    employee_id Int64,
    action      LowCardinality(String),
    snapshot    String,
    occurred_at DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (employee_id, occurred_at)
`

// ClickHouseAuditSink writes employee events to the employee_events table
type ClickHouseAuditSink struct {
	db *ClickHouseDB
}

// NewClickHouseAuditSink ensures the events table exists and returns the sink
func NewClickHouseAuditSink(ctx context.Context, db *ClickHouseDB) (*ClickHouseAuditSink, error) {
	if err := db.Conn().Exec(ctx, employeeEventsSchema); err != nil {
		return nil, fmt.Errorf("failed to create employee_events table: %w", err)
	}
	return &ClickHouseAuditSink{db: db}, nil
}

// Record appends one event
func (s *ClickHouseAuditSink) Record(ctx context.Context, event *models.EmployeeEvent) error {
	snapshot, err := json.Marshal(event.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	batch, err := s.db.Conn().PrepareBatch(ctx, "INSERT INTO employee_events")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	if err := batch.Append(
		event.ID,
		event.EmployeeID,
		string(event.Action),
		string(snapshot),
		event.OccurredAt,
	); err != nil {
		_ = batch.Abort()
		return fmt.Errorf("failed to append event: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// History returns the most recent events for an employee, newest first
func (s *ClickHouseAuditSink) History(ctx context.Context, employeeID int64, limit int) ([]*models.EmployeeEvent, error) {
	query := `
		SELECT event_id, employee_id, action, snapshot, occurred_at
		FROM employee_events
		WHERE employee_id = ?
		ORDER BY occurred_at DESC
		LIMIT ?
	`

	rows, err := s.db.Conn().Query(ctx, query, employeeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query employee events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.EmployeeEvent, 0)
	for rows.Next() {
		var (
			event    models.EmployeeEvent
			action   string
			snapshot string
		)
		if err := rows.Scan(&event.ID, &event.EmployeeID, &action, &snapshot, &event.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan employee event: %w", err)
		}
		event.Action = models.EmployeeAction(action)
		if err := json.Unmarshal([]byte(snapshot), &event.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating employee events: %w", err)
	}
	return events, nil
}

// Ping checks if ClickHouse is reachable
func (s *ClickHouseAuditSink) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the ClickHouse connection
func (s *ClickHouseAuditSink) Close() error {
	return s.db.Close()
}

// MemoryAuditSink keeps events in process memory
type MemoryAuditSink struct {
	mu     sync.RWMutex
	events map[int64][]*models.EmployeeEvent
}

// NewMemoryAuditSink creates an empty in-memory sink
func NewMemoryAuditSink() *MemoryAuditSink {
	return &MemoryAuditSink{events: make(map[int64][]*models.EmployeeEvent)}
}

// Record appends one event
func (s *MemoryAuditSink) Record(ctx context.Context, event *models.EmployeeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *event
	s.events[event.EmployeeID] = append(s.events[event.EmployeeID], &e)
	return nil
}

// History returns the most recent events for an employee, newest first
func (s *MemoryAuditSink) History(ctx context.Context, employeeID int64, limit int) ([]*models.EmployeeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.events[employeeID]
	out := make([]*models.EmployeeEvent, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		e := *stored[i]
		out = append(out, &e)
	}
	return out, nil
}

// Ping always succeeds
func (s *MemoryAuditSink) Ping(ctx context.Context) error { return nil }

// Close is a no-op
func (s *MemoryAuditSink) Close() error { return nil }

// NoopAuditSink discards events
type NoopAuditSink struct{}

func (NoopAuditSink) Record(ctx context.Context, event *models.EmployeeEvent) error { return nil }

func (NoopAuditSink) History(ctx context.Context, employeeID int64, limit int) ([]*models.EmployeeEvent, error) {
	return []*models.EmployeeEvent{}, nil
}

func (NoopAuditSink) Ping(ctx context.Context) error { return nil }

func (NoopAuditSink) Close() error { return nil }
