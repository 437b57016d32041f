package storage

import (
	"testing"

	"github.com/emp-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runEmployeeRepositoryContract checks the behavior every EmployeeRepository
// must share. newRepo must return an empty repository.
func runEmployeeRepositoryContract(t *testing.T, newRepo func(t *testing.T) EmployeeRepository) {
	t.Run("create assigns id and timestamps", func(t *testing.T) {
		repo := newRepo(t)
		ctx := testContext(t)

		e := &models.Employee{FirstName: "Ada", LastName: "Lovelace", EmailID: "ada@example.com"}
		require.NoError(t, repo.Create(ctx, e))

		assert.NotZero(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
		assert.True(t, e.CreatedAt.Equal(e.UpdatedAt))

		got, err := repo.GetByID(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada", got.FirstName)
		assert.Equal(t, "ada@example.com", got.EmailID)
	})

	t.Run("duplicate email is rejected case-insensitively", func(t *testing.T) {
		repo := newRepo(t)
		ctx := testContext(t)

		require.NoError(t, repo.Create(ctx, &models.Employee{FirstName: "A", LastName: "B", EmailID: "dup@example.com"}))
		err := repo.Create(ctx, &models.Employee{FirstName: "C", LastName: "D", EmailID: "DUP@example.com"})
		assert.ErrorIs(t, err, ErrDuplicateEmail)
	})

	t.Run("missing id", func(t *testing.T) {
		repo := newRepo(t)
		ctx := testContext(t)

		_, err := repo.GetByID(ctx, 999)
		assert.ErrorIs(t, err, ErrEmployeeNotFound)
		assert.ErrorIs(t, repo.Update(ctx, &models.Employee{ID: 999, FirstName: "x", LastName: "y", EmailID: "z@example.com"}), ErrEmployeeNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, 999), ErrEmployeeNotFound)
	})

	t.Run("update keeps created at and checks email owner", func(t *testing.T) {
		repo := newRepo(t)
		ctx := testContext(t)

		first := &models.Employee{FirstName: "A", LastName: "One", EmailID: "one@example.com"}
		second := &models.Employee{FirstName: "B", LastName: "Two", EmailID: "two@example.com"}
		require.NoError(t, repo.Create(ctx, first))
		require.NoError(t, repo.Create(ctx, second))

		createdAt := first.CreatedAt
		first.LastName = "Uno"
		first.EmailID = "ONE@example.com"
		require.NoError(t, repo.Update(ctx, first))
		assert.True(t, first.CreatedAt.Equal(createdAt))
		assert.False(t, first.UpdatedAt.Before(createdAt))

		second.EmailID = "one@example.com"
		assert.ErrorIs(t, repo.Update(ctx, second), ErrDuplicateEmail)

		got, err := repo.GetByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "Uno", got.LastName)
	})

	t.Run("list pages in id order and delete frees email", func(t *testing.T) {
		repo := newRepo(t)
		ctx := testContext(t)

		emails := []string{"a@example.com", "b@example.com", "c@example.com"}
		var ids []int64
		for _, email := range emails {
			e := &models.Employee{FirstName: "F", LastName: "L", EmailID: email}
			require.NoError(t, repo.Create(ctx, e))
			ids = append(ids, e.ID)
		}

		page, err := repo.List(ctx, 2, 1)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, ids[1], page[0].ID)
		assert.Equal(t, ids[2], page[1].ID)

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 3, count)

		require.NoError(t, repo.Delete(ctx, ids[0]))
		require.NoError(t, repo.Create(ctx, &models.Employee{FirstName: "F", LastName: "L", EmailID: "a@example.com"}))
		assert.NoError(t, repo.Ping(ctx))
	})
}
