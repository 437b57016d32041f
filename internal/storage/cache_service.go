package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/emp-backend/internal/circuitbreaker"
	"github.com/emp-backend/internal/models"
)

// Cache key prefixes
const (
	CacheKeyEmployee     = "employee"
	CacheKeyEmployeeList = "employees:list"
)

// CacheService caches employee reads in Redis. Calls go through a circuit
// breaker; while it is open every read is a miss and writes are skipped.
type CacheService struct {
	redis   *RedisCache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker

	hits     atomic.Int64
	misses   atomic.Int64
	failures atomic.Int64
}

// CacheStats holds read counters since the service was created
type CacheStats struct {
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	Errors       int64   `json:"errors"`
	HitRate      float64 `json:"hitRate"`
	BreakerState string  `json:"breakerState"`
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, ttl time.Duration) *CacheService {
	return &CacheService{
		redis:   redis,
		ttl:     ttl,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("redis-cache")),
	}
}

// EmployeeKey returns employee:<id>
func EmployeeKey(id int64) string {
	return CacheKeyEmployee + ":" + strconv.FormatInt(id, 10)
}

// EmployeeListKey returns employees:list:<limit>:<offset>
func EmployeeListKey(limit, offset int) string {
	return fmt.Sprintf("%s:%d:%d", CacheKeyEmployeeList, limit, offset)
}

// GetEmployee returns a cached employee; ok is false on a miss
func (c *CacheService) GetEmployee(ctx context.Context, id int64) (*models.Employee, bool, error) {
	var employee models.Employee
	ok, err := c.get(ctx, EmployeeKey(id), &employee)
	if !ok {
		return nil, false, err
	}
	return &employee, true, nil
}

// SetEmployee caches an employee
func (c *CacheService) SetEmployee(ctx context.Context, employee *models.Employee) error {
	return c.set(ctx, EmployeeKey(employee.ID), employee)
}

// GetEmployeeList returns a cached page of employees; ok is false on a miss
func (c *CacheService) GetEmployeeList(ctx context.Context, limit, offset int) ([]*models.Employee, bool, error) {
	var employees []*models.Employee
	ok, err := c.get(ctx, EmployeeListKey(limit, offset), &employees)
	if !ok {
		return nil, false, err
	}
	return employees, true, nil
}

// SetEmployeeList caches a page of employees
func (c *CacheService) SetEmployeeList(ctx context.Context, limit, offset int, employees []*models.Employee) error {
	return c.set(ctx, EmployeeListKey(limit, offset), employees)
}

// InvalidateEmployee drops the employee entry and every cached list page
func (c *CacheService) InvalidateEmployee(ctx context.Context, id int64) error {
	return c.breaker.Execute(func() error {
		if err := c.redis.Del(ctx, EmployeeKey(id)); err != nil {
			return err
		}
		return c.redis.DelPattern(ctx, CacheKeyEmployeeList+":*")
	})
}

// Ping checks if the cache backend is reachable
func (c *CacheService) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx)
}

// BreakerState reports the circuit breaker state guarding Redis
func (c *CacheService) BreakerState() circuitbreaker.State {
	return c.breaker.GetState()
}

func (c *CacheService) get(ctx context.Context, key string, dest interface{}) (bool, error) {
	var data string
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.redis.Get(ctx, key)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		return err
	})
	if err != nil {
		c.failures.Add(1)
		return false, fmt.Errorf("failed to get from cache: %w", err)
	}
	if data == "" {
		c.misses.Add(1)
		return false, nil
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		c.failures.Add(1)
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	c.hits.Add(1)
	return true, nil
}

// Stats returns the read counters
func (c *CacheService) Stats() *CacheStats {
	stats := &CacheStats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Errors:       c.failures.Load(),
		BreakerState: string(c.breaker.GetState()),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

func (c *CacheService) set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.breaker.Execute(func() error {
		return c.redis.Set(ctx, key, data, c.ttl)
	})
}
