package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/emp-backend/internal/models"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEmployeeRepository(t *testing.T) {
	runEmployeeRepositoryContract(t, func(t *testing.T) EmployeeRepository {
		return NewMemoryEmployeeRepository()
	})
}

func TestMemoryEmployeeRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryEmployeeRepository()
	ctx := testContext(t)

	e := &models.Employee{FirstName: "A", LastName: "B", EmailID: "a@example.com"}
	require.NoError(t, repo.Create(ctx, e))

	got, err := repo.GetByID(ctx, e.ID)
	require.NoError(t, err)
	got.FirstName = "mutated"

	again, err := repo.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", again.FirstName)
}

func TestMemoryEmployeeRepository_ConcurrentCreates(t *testing.T) {
	repo := NewMemoryEmployeeRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = repo.Create(ctx, &models.Employee{FirstName: "F", LastName: "L", EmailID: fmt.Sprintf("user%d@example.com", i)})
		}(i)
	}
	wg.Wait()

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 50, count)

	all, err := repo.List(ctx, 0, 0)
	require.NoError(t, err)
	seen := make(map[int64]bool)
	for _, e := range all {
		assert.False(t, seen[e.ID], "duplicate id %d", e.ID)
		seen[e.ID] = true
	}
}

func TestMemoryEmployeeRepository_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("ids are unique and list is ordered by id", prop.ForAll(
		func(n int) bool {
			repo := NewMemoryEmployeeRepository()
			ctx := context.Background()
			for i := 0; i < n; i++ {
				if err := repo.Create(ctx, &models.Employee{FirstName: "F", LastName: "L", EmailID: fmt.Sprintf("e%d@example.com", i)}); err != nil {
					return false
				}
			}
			list, err := repo.List(ctx, 0, 0)
			if err != nil || len(list) != n {
				return false
			}
			for i := 1; i < len(list); i++ {
				if list[i-1].ID >= list[i].ID {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 40),
	))

	properties.Property("pages partition the full list", prop.ForAll(
		func(n, limit int) bool {
			repo := NewMemoryEmployeeRepository()
			ctx := context.Background()
			for i := 0; i < n; i++ {
				_ = repo.Create(ctx, &models.Employee{FirstName: "F", LastName: "L", EmailID: fmt.Sprintf("e%d@example.com", i)})
			}

			var collected []int64
			for offset := 0; offset < n; offset += limit {
				page, err := repo.List(ctx, limit, offset)
				if err != nil || len(page) > limit {
					return false
				}
				for _, e := range page {
					collected = append(collected, e.ID)
				}
			}

			all, _ := repo.List(ctx, 0, 0)
			if len(all) != len(collected) {
				return false
			}
			for i := range all {
				if all[i].ID != collected[i] {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 30),
		gen.IntRange(1, 7),
	))

	properties.Property("email uniqueness ignores case", prop.ForAll(
		func(local string) bool {
			if local == "" {
				return true
			}
			repo := NewMemoryEmployeeRepository()
			ctx := context.Background()
			lower := local + "@example.com"
			if err := repo.Create(ctx, &models.Employee{FirstName: "F", LastName: "L", EmailID: lower}); err != nil {
				return false
			}
			err := repo.Create(ctx, &models.Employee{FirstName: "F", LastName: "L", EmailID: "X" + lower[1:]})
			if lower[0] == 'x' {
				return err == ErrDuplicateEmail
			}
			return err == nil
		},
		gen.RegexMatch(`[a-z][a-z0-9]{0,10}`),
	))

	properties.TestingRun(t)
}
