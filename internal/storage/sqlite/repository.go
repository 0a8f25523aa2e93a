// Package sqlite implements storage.Store on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"financeflow/internal/core"
	"financeflow/internal/storage"
)

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Store = (*Repository)(nil)

// NewRepository opens (creating if needed) the database file at dbPath and
// applies migrations.
func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, now: time.Now}, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func unix(t time.Time) int64 { return t.UTC().Unix() }

func fromUnix(s int64) time.Time { return time.Unix(s, 0).UTC() }

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

const expenseColumns = "id, user_id, amount_cents, category, description, date, template_id, created_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(row scanner) (core.Expense, error) {
	var (
		e               core.Expense
		date, createdAt int64
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.Amount.Cents, &e.Category, &e.Description, &date, &e.TemplateID, &createdAt); err != nil {
		return core.Expense{}, err
	}
	e.Date = fromUnix(date)
	e.CreatedAt = fromUnix(createdAt)
	return e, nil
}

func (r *Repository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e.CreatedAt = r.now().UTC().Truncate(time.Second)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (user_id, amount_cents, category, description, date, template_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Amount.Cents, e.Category, e.Description, unix(e.Date), e.TemplateID, unix(e.CreatedAt))
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return core.Expense{}, fmt.Errorf("expense id: %w", err)
	}
	e.Date = fromUnix(unix(e.Date))
	return e, nil
}

func (r *Repository) GetExpense(ctx context.Context, userID, id int64) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = ? AND user_id = ?", id, userID)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, storage.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return e, nil
}

func (r *Repository) ListExpenses(ctx context.Context, userID int64, f storage.ExpenseFilter) ([]core.Expense, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, unix(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "date < ?")
		args = append(args, unix(f.To))
	}
	if f.Category != "" {
		where = append(where, "category = ? COLLATE NOCASE")
		args = append(args, f.Category)
	}
	query := "SELECT " + expenseColumns + " FROM expenses WHERE " + strings.Join(where, " AND ") +
		" ORDER BY date DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
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
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET amount_cents = ?, category = ?, description = ?, date = ?
		 WHERE id = ? AND user_id = ?`,
		e.Amount.Cents, e.Category, e.Description, unix(e.Date), e.ID, e.UserID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %d: %w", e.ID, err)
	}
	if err := affectedOrNotFound(res); err != nil {
		return core.Expense{}, err
	}
	return r.GetExpense(ctx, e.UserID, e.ID)
}

func (r *Repository) DeleteExpense(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	return affectedOrNotFound(res)
}

const templateColumns = "id, user_id, amount_cents, category, description, recurrence, start_date, next_due, active, created_at, updated_at"

func scanTemplate(row scanner) (core.RecurringTemplate, error) {
	var (
		t                                    core.RecurringTemplate
		interval                             string
		start, nextDue, active, created, upd int64
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Amount.Cents, &t.Category, &t.Description,
		&interval, &start, &nextDue, &active, &created, &upd); err != nil {
		return core.RecurringTemplate{}, err
	}
	t.Interval = core.Interval(interval)
	t.StartDate = fromUnix(start)
	t.NextDue = fromUnix(nextDue)
	t.Active = active != 0
	t.CreatedAt = fromUnix(created)
	t.UpdatedAt = fromUnix(upd)
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r *Repository) CreateTemplate(ctx context.Context, t core.RecurringTemplate) (core.RecurringTemplate, error) {
	now := r.now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO recurring_templates
		   (user_id, amount_cents, category, description, recurrence, start_date, next_due, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.Amount.Cents, t.Category, t.Description, string(t.Interval),
		unix(t.StartDate), unix(t.NextDue), boolInt(t.Active), unix(now), unix(now))
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("insert recurring template: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("recurring template id: %w", err)
	}
	return r.GetTemplate(ctx, t.UserID, id)
}

func (r *Repository) GetTemplate(ctx context.Context, userID, id int64) (core.RecurringTemplate, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+templateColumns+" FROM recurring_templates WHERE id = ? AND user_id = ?", id, userID)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringTemplate{}, storage.ErrNotFound
	}
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("get recurring template %d: %w", id, err)
	}
	return t, nil
}

func (r *Repository) queryTemplates(ctx context.Context, query string, args ...any) ([]core.RecurringTemplate, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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
		"SELECT "+templateColumns+" FROM recurring_templates WHERE user_id = ? ORDER BY id", userID)
	if err != nil {
		return nil, fmt.Errorf("list recurring templates: %w", err)
	}
	return out, nil
}

func (r *Repository) UpdateTemplate(ctx context.Context, t core.RecurringTemplate) (core.RecurringTemplate, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_templates
		 SET amount_cents = ?, category = ?, description = ?, recurrence = ?, start_date = ?,
		     next_due = ?, active = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		t.Amount.Cents, t.Category, t.Description, string(t.Interval), unix(t.StartDate),
		unix(t.NextDue), boolInt(t.Active), unix(r.now()), t.ID, t.UserID)
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("update recurring template %d: %w", t.ID, err)
	}
	if err := affectedOrNotFound(res); err != nil {
		return core.RecurringTemplate{}, err
	}
	return r.GetTemplate(ctx, t.UserID, t.ID)
}

func (r *Repository) DeleteTemplate(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM recurring_templates WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("delete recurring template %d: %w", id, err)
	}
	return affectedOrNotFound(res)
}

func (r *Repository) ListDueTemplates(ctx context.Context, now time.Time) ([]core.RecurringTemplate, error) {
	out, err := r.queryTemplates(ctx,
		"SELECT "+templateColumns+" FROM recurring_templates WHERE active = 1 AND next_due <= ? ORDER BY id",
		unix(now))
	if err != nil {
		return nil, fmt.Errorf("list due recurring templates: %w", err)
	}
	return out, nil
}

func (r *Repository) AdvanceTemplate(ctx context.Context, id int64, prev, next time.Time) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE recurring_templates SET next_due = ?, updated_at = ? WHERE id = ? AND next_due = ?",
		unix(next), unix(r.now()), id, unix(prev))
	if err != nil {
		return fmt.Errorf("advance recurring template %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM recurring_templates WHERE id = ?", id).Scan(&exists); err != nil {
			return fmt.Errorf("check recurring template %d: %w", id, err)
		}
		if exists == 0 {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	return nil
}

func (r *Repository) CreateUser(ctx context.Context, email, passwordHash string) (core.User, error) {
	u := core.User{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
		CreatedAt:    r.now().UTC().Truncate(time.Second),
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, created_at) VALUES (?, ?, ?)",
		u.Email, u.PasswordHash, unix(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, storage.ErrConflict
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return core.User{}, fmt.Errorf("user id: %w", err)
	}
	return u, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	var (
		u       core.User
		created int64
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT id, email, password_hash, created_at FROM users WHERE email = ?",
		strings.ToLower(strings.TrimSpace(email))).Scan(&u.ID, &u.Email, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, storage.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = fromUnix(created)
	return u, nil
}
