// Package storagetest holds a behavioural suite every storage.Store must pass.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"financeflow/internal/core"
	"financeflow/internal/storage"
)

// Run exercises newStore against the storage contract. Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("expenses", func(t *testing.T) { testExpenses(t, newStore(t)) })
	t.Run("templates", func(t *testing.T) { testTemplates(t, newStore(t)) })
	t.Run("due templates", func(t *testing.T) { testDueTemplates(t, newStore(t)) })
	t.Run("advance", func(t *testing.T) { testAdvance(t, newStore(t)) })
}

func mustUser(t *testing.T, s storage.Store, email string) core.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), email, "hash")
	require.NoError(t, err)
	return u
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testUsers(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "Ada@Example.com")
	assert.NotZero(t, u.ID)
	assert.Equal(t, "ada@example.com", u.Email)

	_, err := s.CreateUser(ctx, "ada@example.com", "other")
	assert.True(t, errors.Is(err, storage.ErrConflict), "duplicate email: %v", err)

	got, err := s.GetUserByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func testExpenses(t *testing.T, s storage.Store) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice@example.com")
	bob := mustUser(t, s, "bob@example.com")

	first, err := s.CreateExpense(ctx, core.Expense{
		UserID: alice.ID, Amount: core.Money{Cents: 1250}, Category: core.CategoryFood,
		Description: "Lunch", Date: day(2024, 1, 10),
	})
	require.NoError(t, err)
	assert.NotZero(t, first.ID)

	_, err = s.CreateExpense(ctx, core.Expense{
		UserID: alice.ID, Amount: core.Money{Cents: 5000}, Category: core.CategoryHousing,
		Description: "Rent", Date: day(2024, 2, 1), TemplateID: 7,
	})
	require.NoError(t, err)

	_, err = s.CreateExpense(ctx, core.Expense{
		UserID: bob.ID, Amount: core.Money{Cents: 99}, Category: core.CategoryFood,
		Description: "Gum", Date: day(2024, 1, 15),
	})
	require.NoError(t, err)

	list, err := s.ListExpenses(ctx, alice.ID, storage.ExpenseFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Rent", list[0].Description, "newest first")
	assert.Equal(t, int64(7), list[0].TemplateID)
	assert.Equal(t, int64(5000), list[0].Amount.Cents)

	january, err := s.ListExpenses(ctx, alice.ID, storage.ExpenseFilter{From: day(2024, 1, 1), To: day(2024, 2, 1)})
	require.NoError(t, err)
	require.Len(t, january, 1)
	assert.Equal(t, "Lunch", january[0].Description)

	food, err := s.ListExpenses(ctx, alice.ID, storage.ExpenseFilter{Category: "food"})
	require.NoError(t, err)
	assert.Len(t, food, 1)

	_, err = s.GetExpense(ctx, bob.ID, first.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound), "other user's expense must be hidden")

	first.Description = "Team lunch"
	first.Amount = core.Money{Cents: 3000}
	updated, err := s.UpdateExpense(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "Team lunch", updated.Description)

	got, err := s.GetExpense(ctx, alice.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), got.Amount.Cents)
	assert.True(t, got.Date.Equal(day(2024, 1, 10)))

	require.NoError(t, s.DeleteExpense(ctx, alice.ID, first.ID))
	assert.True(t, errors.Is(s.DeleteExpense(ctx, alice.ID, first.ID), storage.ErrNotFound))
}

func testTemplates(t *testing.T, s storage.Store) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice@example.com")
	bob := mustUser(t, s, "bob@example.com")

	tpl, err := s.CreateTemplate(ctx, core.RecurringTemplate{
		UserID: alice.ID, Amount: core.Money{Cents: 5000}, Category: core.CategoryHousing,
		Description: "Rent", Interval: core.Monthly, StartDate: day(2024, 1, 1),
		NextDue: day(2024, 1, 1), Active: true,
	})
	require.NoError(t, err)
	assert.NotZero(t, tpl.ID)

	got, err := s.GetTemplate(ctx, alice.ID, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, core.Monthly, got.Interval)
	assert.True(t, got.NextDue.Equal(day(2024, 1, 1)))
	assert.True(t, got.Active)

	_, err = s.GetTemplate(ctx, bob.ID, tpl.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	got.Active = false
	got.Description = "Rent (old flat)"
	_, err = s.UpdateTemplate(ctx, got)
	require.NoError(t, err)

	list, err := s.ListTemplates(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Active)
	assert.Equal(t, "Rent (old flat)", list[0].Description)

	require.NoError(t, s.DeleteTemplate(ctx, alice.ID, tpl.ID))
	list, err = s.ListTemplates(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testDueTemplates(t *testing.T, s storage.Store) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice@example.com")
	bob := mustUser(t, s, "bob@example.com")
	now := day(2024, 3, 1)

	create := func(userID int64, desc string, nextDue time.Time, active bool) {
		t.Helper()
		_, err := s.CreateTemplate(ctx, core.RecurringTemplate{
			UserID: userID, Amount: core.Money{Cents: 100}, Category: core.CategoryOther,
			Description: desc, Interval: core.Daily, StartDate: nextDue, NextDue: nextDue, Active: active,
		})
		require.NoError(t, err)
	}
	create(alice.ID, "overdue", now.AddDate(0, 0, -3), true)
	create(bob.ID, "exact", now, true)
	create(alice.ID, "future", now.Add(time.Second), true)
	create(bob.ID, "inactive", now.AddDate(0, 0, -1), false)

	due, err := s.ListDueTemplates(ctx, now)
	require.NoError(t, err)
	var names []string
	for _, d := range due {
		names = append(names, d.Description)
	}
	assert.ElementsMatch(t, []string{"overdue", "exact"}, names)
}

func testAdvance(t *testing.T, s storage.Store) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice@example.com")
	tpl, err := s.CreateTemplate(ctx, core.RecurringTemplate{
		UserID: alice.ID, Amount: core.Money{Cents: 100}, Category: core.CategoryOther,
		Description: "Gym", Interval: core.Monthly, StartDate: day(2024, 1, 1),
		NextDue: day(2024, 1, 1), Active: true,
	})
	require.NoError(t, err)

	require.NoError(t, s.AdvanceTemplate(ctx, tpl.ID, day(2024, 1, 1), day(2024, 2, 1)))
	got, err := s.GetTemplate(ctx, alice.ID, tpl.ID)
	require.NoError(t, err)
	assert.True(t, got.NextDue.Equal(day(2024, 2, 1)), "next due = %v", got.NextDue)

	err = s.AdvanceTemplate(ctx, tpl.ID, day(2024, 1, 1), day(2024, 2, 1))
	assert.True(t, errors.Is(err, storage.ErrConflict), "stale advance: %v", err)

	err = s.AdvanceTemplate(ctx, tpl.ID+1000, day(2024, 2, 1), day(2024, 3, 1))
	assert.Error(t, err)
}
