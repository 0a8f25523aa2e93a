package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	goption "google.golang.org/api/option"

	"financeflow/internal/core"
)

// fakeSheet serves the subset of the Sheets values API the client uses,
// backed by an in-memory grid.
type fakeSheet struct {
	mu   sync.Mutex
	rows [][]any
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, rng, ok := strings.Cut(r.URL.Path, "/values/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(rng, ":append"):
		var vr struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.rows = append(f.rows, vr.Values...)
		n := len(f.rows)
		writeBody(w, map[string]any{
			"updates": map[string]any{"updatedRange": fmt.Sprintf("Expenses!A%d:G%d", n, n)},
		})
	case r.Method == http.MethodPost && strings.HasSuffix(rng, ":clear"):
		var row int
		if _, err := fmt.Sscanf(strings.TrimSuffix(rng, ":clear"), "Expenses!A%d:", &row); err != nil || row < 1 || row > len(f.rows) {
			http.Error(w, "bad range", http.StatusBadRequest)
			return
		}
		f.rows[row-1] = []any{}
		writeBody(w, map[string]any{"clearedRange": rng})
	case r.Method == http.MethodPut:
		var vr struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(f.rows) == 0 {
			f.rows = append(f.rows, nil)
		}
		f.rows[0] = vr.Values[0]
		writeBody(w, map[string]any{"updatedRange": rng})
	case r.Method == http.MethodGet && strings.HasSuffix(rng, "A1:G1"):
		values := [][]any{}
		if len(f.rows) > 0 && len(f.rows[0]) > 0 {
			values = append(values, f.rows[0])
		}
		writeBody(w, map[string]any{"range": rng, "values": values})
	case r.Method == http.MethodGet:
		col := make([][]any, 0, len(f.rows))
		for _, row := range f.rows {
			if len(row) == 0 {
				col = append(col, []any{})
				continue
			}
			col = append(col, []any{row[0]})
		}
		writeBody(w, map[string]any{"range": rng, "values": col})
	default:
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	}
}

func writeBody(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T) (*Client, *fakeSheet) {
	t.Helper()
	fake := &fakeSheet{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Config{SpreadsheetID: "sheet-id"},
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, fake
}

func testExpense(id int64, desc string) core.Expense {
	return core.Expense{
		ID:          id,
		UserID:      4,
		Amount:      core.Money{Cents: 4250},
		Category:    core.CategoryFood,
		Description: desc,
		Date:        time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
		TemplateID:  9,
	}
}

func TestNew_MissingConfiguration(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"no spreadsheet", Config{}, "missing GOOGLE_SPREADSHEET_ID"},
		{"no credentials", Config{SpreadsheetID: "id"}, "missing service account credentials"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("New() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestClient_AppendAndDelete(t *testing.T) {
	ctx := context.Background()
	c, fake := newTestClient(t)

	if err := c.EnsureHeader(ctx); err != nil {
		t.Fatalf("EnsureHeader() error = %v", err)
	}
	if err := c.EnsureHeader(ctx); err != nil {
		t.Fatalf("second EnsureHeader() error = %v", err)
	}

	ref, err := c.Append(ctx, testExpense(11, "Groceries"))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if ref != "Expenses!A2:G2" {
		t.Errorf("Append() ref = %q, want Expenses!A2:G2", ref)
	}
	if _, err := c.Append(ctx, testExpense(12, "=SUM(A1:A9)")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	fake.mu.Lock()
	if len(fake.rows) != 3 {
		t.Fatalf("rows = %d, want header plus 2", len(fake.rows))
	}
	got := fmt.Sprint(fake.rows[1])
	want := fmt.Sprint([]any{"11", "4", "2026-05-02", "Groceries", "Food", "42.50", "true"})
	if got != want {
		t.Errorf("row = %s, want %s", got, want)
	}
	if fake.rows[2][3] != "'=SUM(A1:A9)" {
		t.Errorf("formula not escaped: %v", fake.rows[2][3])
	}
	fake.mu.Unlock()

	if err := c.Delete(ctx, 11); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := c.Delete(ctx, 999); err != nil {
		t.Fatalf("Delete() of unknown id error = %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.rows[1]) != 0 {
		t.Errorf("row 2 not cleared: %v", fake.rows[1])
	}
	if len(fake.rows[2]) == 0 {
		t.Error("row 3 must be untouched")
	}
}

func TestClient_AppendValidates(t *testing.T) {
	c := &Client{spreadsheetID: "test"}

	invalid := testExpense(1, "")
	_, err := c.Append(context.Background(), invalid)
	if !errors.Is(err, core.ErrEmptyDescription) {
		t.Errorf("Append() error = %v, want ErrEmptyDescription", err)
	}
}

func TestFindRow(t *testing.T) {
	values := [][]any{{"ID"}, {}, {"7"}, {" 8 "}}
	tests := []struct {
		id   string
		want int
	}{
		{"7", 3},
		{"8", 4},
		{"9", 0},
		{"ID", 1},
	}
	for _, tt := range tests {
		if got := findRow(values, tt.id); got != tt.want {
			t.Errorf("findRow(%q) = %d, want %d", tt.id, got, tt.want)
		}
	}
}
