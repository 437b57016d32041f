package storage

import (
	"testing"
	"time"

	"github.com/emp-backend/internal/circuitbreaker"
	"github.com/emp-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_SetGetDel(t *testing.T) {
	cache, _ := newTestRedis(t)
	ctx := testContext(t)

	require.NoError(t, cache.Set(ctx, "test:key", "value", time.Minute))

	got, err := cache.Get(ctx, "test:key")
	require.NoError(t, err)
	assert.Equal(t, "value", got)

	exists, err := cache.Exists(ctx, "test:key")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, cache.Del(ctx, "test:key"))
	_, err = cache.Get(ctx, "test:key")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, cache.Ping(ctx))
}

func TestRedisCache_DelPattern(t *testing.T) {
	cache, mr := newTestRedis(t)
	ctx := testContext(t)

	for _, key := range []string{"employees:list:10:0", "employees:list:10:10", "employee:1"} {
		require.NoError(t, cache.Set(ctx, key, "x", time.Minute))
	}

	require.NoError(t, cache.DelPattern(ctx, "employees:list:*"))

	assert.False(t, mr.Exists("employees:list:10:0"))
	assert.False(t, mr.Exists("employees:list:10:10"))
	assert.True(t, mr.Exists("employee:1"))
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "employee:42", EmployeeKey(42))
	assert.Equal(t, "employees:list:100:20", EmployeeListKey(100, 20))
}

func TestCacheService_EmployeeRoundTrip(t *testing.T) {
	cache, mr := newTestRedis(t)
	svc := NewCacheService(cache, 30*time.Second)
	ctx := testContext(t)

	_, ok, err := svc.GetEmployee(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	e := &models.Employee{ID: 1, FirstName: "Ada", LastName: "Lovelace", EmailID: "ada@example.com"}
	require.NoError(t, svc.SetEmployee(ctx, e))
	assert.Equal(t, 30*time.Second, mr.TTL(EmployeeKey(1)))

	got, ok, err := svc.GetEmployee(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Lovelace", got.LastName)
}

func TestCacheService_InvalidateEmployeeDropsLists(t *testing.T) {
	cache, mr := newTestRedis(t)
	svc := NewCacheService(cache, time.Minute)
	ctx := testContext(t)

	list := []*models.Employee{{ID: 1, FirstName: "A", LastName: "B", EmailID: "a@example.com"}}
	require.NoError(t, svc.SetEmployeeList(ctx, 100, 0, list))
	require.NoError(t, svc.SetEmployee(ctx, list[0]))

	got, ok, err := svc.GetEmployeeList(ctx, 100, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, 1)

	require.NoError(t, svc.InvalidateEmployee(ctx, 1))
	assert.False(t, mr.Exists(EmployeeKey(1)))
	assert.False(t, mr.Exists(EmployeeListKey(100, 0)))
}

func TestCacheService_BreakerOpensWhenRedisIsDown(t *testing.T) {
	cache, mr := newTestRedis(t)
	svc := NewCacheService(cache, time.Minute)
	ctx := testContext(t)

	mr.Close()

	for i := 0; i < 5; i++ {
		_, ok, err := svc.GetEmployee(ctx, 1)
		assert.False(t, ok)
		assert.Error(t, err)
	}

	assert.Equal(t, circuitbreaker.StateOpen, svc.BreakerState())

	_, _, err := svc.GetEmployee(ctx, 1)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}

func TestCacheService_Stats(t *testing.T) {
	cache, mr := newTestRedis(t)
	svc := NewCacheService(cache, time.Minute)
	ctx := testContext(t)

	_, ok, err := svc.GetEmployee(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, svc.SetEmployee(ctx, &models.Employee{ID: 1, FirstName: "A", LastName: "B", EmailID: "a@example.com"}))
	for i := 0; i < 3; i++ {
		_, ok, err = svc.GetEmployee(ctx, 1)
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.NoError(t, mr.Set(EmployeeKey(2), "{not json"))
	_, _, err = svc.GetEmployee(ctx, 2)
	assert.Error(t, err)

	stats := svc.Stats()
	assert.EqualValues(t, 3, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.EqualValues(t, 1, stats.Errors)
	assert.InDelta(t, 0.75, stats.HitRate, 0.0001)
	assert.Equal(t, string(circuitbreaker.StateClosed), stats.BreakerState)
}
