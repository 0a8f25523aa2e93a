package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Daily   Interval = "daily"
	Weekly  Interval = "weekly"
	Monthly Interval = "monthly"
	Yearly  Interval = "yearly"
)

// Categories offered to users and to the categorizer.
const (
	CategoryFood           = "Food"
	CategoryTransportation = "Transportation"
	CategoryHousing        = "Housing"
	CategoryEntertainment  = "Entertainment"
	CategoryHealthcare     = "Healthcare"
	CategoryEducation      = "Education"
	CategoryOther          = "Other"
)

const maxDescriptionLength = 200

type (
	Interval string

	Money struct {
		Cents int64
	}

	User struct {
		ID           int64
		Email        string
		PasswordHash string
		CreatedAt    time.Time
	}

	Expense struct {
		ID          int64
		UserID      int64
		Amount      Money
		Category    string
		Description string
		Date        time.Time
		TemplateID  int64 // 0 when entered by the user
		CreatedAt   time.Time
	}

	// RecurringTemplate describes an expense that is materialized every Interval.
	// StartDate anchors month-end clamping; NextDue is the next firing point.
	RecurringTemplate struct {
		ID          int64
		UserID      int64
		Amount      Money
		Category    string
		Description string
		Interval    Interval
		StartDate   time.Time
		NextDue     time.Time
		Active      bool
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = fmt.Errorf("description too long (max %d characters)", maxDescriptionLength)
	ErrEmptyCategory      = errors.New("empty category")
	ErrInvalidInterval    = errors.New("invalid interval")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidEmail       = errors.New("invalid email")
)

// Categories lists the known categories in display order.
func Categories() []string {
	return []string{
		CategoryFood,
		CategoryTransportation,
		CategoryHousing,
		CategoryEntertainment,
		CategoryHealthcare,
		CategoryEducation,
	}
}

// NormalizeCategory maps a free-form label to a known category, case-insensitively.
// Unknown labels are returned trimmed.
func NormalizeCategory(label string) string {
	label = strings.TrimSpace(label)
	for _, c := range append(Categories(), CategoryOther) {
		if strings.EqualFold(c, label) {
			return c
		}
	}
	return label
}

func (i Interval) Valid() bool {
	switch i {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

func ParseInterval(s string) (Interval, error) {
	i := Interval(strings.ToLower(strings.TrimSpace(s)))
	if !i.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidInterval, s)
	}
	return i, nil
}

func (e Expense) Validate() error {
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if err := validateDescription(e.Description); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (t RecurringTemplate) Validate() error {
	if t.StartDate.IsZero() {
		return fmt.Errorf("invalid start date: %w", ErrInvalidDate)
	}
	if !t.Interval.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidInterval, t.Interval)
	}
	if err := validateDescription(t.Description); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// IsDue reports whether the template should be materialized at now.
func (t RecurringTemplate) IsDue(now time.Time) bool {
	return t.Active && !t.NextDue.After(now)
}

func validateDescription(desc string) error {
	if strings.TrimSpace(desc) == "" {
		return ErrEmptyDescription
	}
	if len(desc) > maxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

// ValidateEmail performs a minimal shape check on an email address.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t\n") {
		return ErrInvalidEmail
	}
	return nil
}
