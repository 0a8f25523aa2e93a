// Package export renders expenses for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"financeflow/internal/core"
)

const dateLayout = "2006-01-02"

var header = []string{"id", "date", "description", "category", "amount", "recurring"}

// WriteCSV writes one header row and one row per expense, in order.
func WriteCSV(w io.Writer, expenses []core.Expense) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range expenses {
		row := []string{
			strconv.FormatInt(e.ID, 10),
			e.Date.Format(dateLayout),
			SanitizeCell(e.Description),
			SanitizeCell(e.Category),
			e.Amount.String(),
			strconv.FormatBool(e.TemplateID != 0),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", e.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SanitizeCell stops spreadsheet applications from evaluating user text as a
// formula.
func SanitizeCell(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}

// Filename is the attachment name for an export generated at the given date.
func Filename(date string) string {
	return "expenses-" + date + ".csv"
}
