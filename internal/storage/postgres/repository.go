// Package postgres implements storage.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"financeflow/internal/core"
	"financeflow/internal/storage"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type Repository struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Repository)(nil)

// NewRepository connects to databaseURL and applies migrations.
func NewRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func notFound(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

const expenseColumns = "id, user_id, amount_cents, category, description, date, template_id, created_at"

func scanExpense(row pgx.Row) (core.Expense, error) {
	var e core.Expense
	if err := row.Scan(&e.ID, &e.UserID, &e.Amount.Cents, &e.Category, &e.Description, &e.Date, &e.TemplateID, &e.CreatedAt); err != nil {
		return core.Expense{}, err
	}
	e.Date = e.Date.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func (r *Repository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO expenses (user_id, amount_cents, category, description, date, template_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+expenseColumns,
		e.UserID, e.Amount.Cents, e.Category, e.Description, e.Date.UTC(), e.TemplateID)
	saved, err := scanExpense(row)
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	return saved, nil
}

func (r *Repository) GetExpense(ctx context.Context, userID, id int64) (core.Expense, error) {
	e, err := scanExpense(r.pool.QueryRow(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = $1 AND user_id = $2", id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, storage.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return e, nil
}

func (r *Repository) ListExpenses(ctx context.Context, userID int64, f storage.ExpenseFilter) ([]core.Expense, error) {
	var (
		where = []string{"user_id = $1"}
		args  = []any{userID}
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if !f.From.IsZero() {
		add("date >= $%d", f.From.UTC())
	}
	if !f.To.IsZero() {
		add("date < $%d", f.To.UTC())
	}
	if f.Category != "" {
		add("lower(category) = lower($%d)", f.Category)
	}
	query := "SELECT " + expenseColumns + " FROM expenses WHERE " + strings.Join(where, " AND ") +
		" ORDER BY date DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	updated, err := scanExpense(r.pool.QueryRow(ctx,
		`UPDATE expenses SET amount_cents = $1, category = $2, description = $3, date = $4
		 WHERE id = $5 AND user_id = $6
		 RETURNING `+expenseColumns,
		e.Amount.Cents, e.Category, e.Description, e.Date.UTC(), e.ID, e.UserID))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, storage.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %d: %w", e.ID, err)
	}
	return updated, nil
}

func (r *Repository) DeleteExpense(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM expenses WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	return notFound(tag)
}

const templateColumns = "id, user_id, amount_cents, category, description, recurrence, start_date, next_due, active, created_at, updated_at"

func scanTemplate(row pgx.Row) (core.RecurringTemplate, error) {
	var (
		t        core.RecurringTemplate
		interval string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Amount.Cents, &t.Category, &t.Description,
		&interval, &t.StartDate, &t.NextDue, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return core.RecurringTemplate{}, err
	}
	t.Interval = core.Interval(interval)
	t.StartDate = t.StartDate.UTC()
	t.NextDue = t.NextDue.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func (r *Repository) CreateTemplate(ctx context.Context, t core.RecurringTemplate) (core.RecurringTemplate, error) {
	saved, err := scanTemplate(r.pool.QueryRow(ctx,
		`INSERT INTO recurring_templates
		   (user_id, amount_cents, category, description, recurrence, start_date, next_due, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+templateColumns,
		t.UserID, t.Amount.Cents, t.Category, t.Description, string(t.Interval),
		t.StartDate.UTC(), t.NextDue.UTC(), t.Active))
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("insert recurring template: %w", err)
	}
	return saved, nil
}

func (r *Repository) GetTemplate(ctx context.Context, userID, id int64) (core.RecurringTemplate, error) {
	t, err := scanTemplate(r.pool.QueryRow(ctx,
		"SELECT "+templateColumns+" FROM recurring_templates WHERE id = $1 AND user_id = $2", id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.RecurringTemplate{}, storage.ErrNotFound
	}
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("get recurring template %d: %w", id, err)
	}
	return t, nil
}

func (r *Repository) queryTemplates(ctx context.Context, query string, args ...any) ([]core.RecurringTemplate, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]core.RecurringTemplate, 0)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) ListTemplates(ctx context.Context, userID int64) ([]core.RecurringTemplate, error) {
	out, err := r.queryTemplates(ctx,
		"SELECT "+templateColumns+" FROM recurring_templates WHERE user_id = $1 ORDER BY id", userID)
	if err != nil {
		return nil, fmt.Errorf("list recurring templates: %w", err)
	}
	return out, nil
}

func (r *Repository) UpdateTemplate(ctx context.Context, t core.RecurringTemplate) (core.RecurringTemplate, error) {
	updated, err := scanTemplate(r.pool.QueryRow(ctx,
		`UPDATE recurring_templates
		 SET amount_cents = $1, category = $2, description = $3, recurrence = $4, start_date = $5,
		     next_due = $6, active = $7, updated_at = now()
		 WHERE id = $8 AND user_id = $9
		 RETURNING `+templateColumns,
		t.Amount.Cents, t.Category, t.Description, string(t.Interval), t.StartDate.UTC(),
		t.NextDue.UTC(), t.Active, t.ID, t.UserID))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.RecurringTemplate{}, storage.ErrNotFound
	}
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("update recurring template %d: %w", t.ID, err)
	}
	return updated, nil
}

func (r *Repository) DeleteTemplate(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM recurring_templates WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return fmt.Errorf("delete recurring template %d: %w", id, err)
	}
	return notFound(tag)
}

func (r *Repository) ListDueTemplates(ctx context.Context, now time.Time) ([]core.RecurringTemplate, error) {
	out, err := r.queryTemplates(ctx,
		"SELECT "+templateColumns+" FROM recurring_templates WHERE active AND next_due <= $1 ORDER BY id",
		now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list due recurring templates: %w", err)
	}
	return out, nil
}

func (r *Repository) AdvanceTemplate(ctx context.Context, id int64, prev, next time.Time) error {
	tag, err := r.pool.Exec(ctx,
		"UPDATE recurring_templates SET next_due = $1, updated_at = now() WHERE id = $2 AND next_due = $3",
		next.UTC(), id, prev.UTC())
	if err != nil {
		return fmt.Errorf("advance recurring template %d: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM recurring_templates WHERE id = $1)", id).Scan(&exists); err != nil {
		return fmt.Errorf("check recurring template %d: %w", id, err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrConflict
}

func (r *Repository) CreateUser(ctx context.Context, email, passwordHash string) (core.User, error) {
	var u core.User
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash) VALUES ($1, $2)
		 RETURNING id, email, password_hash, created_at`,
		strings.ToLower(strings.TrimSpace(email)), passwordHash).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return core.User{}, storage.ErrConflict
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	var u core.User
	err := r.pool.QueryRow(ctx,
		"SELECT id, email, password_hash, created_at FROM users WHERE email = $1",
		strings.ToLower(strings.TrimSpace(email))).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, storage.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}
