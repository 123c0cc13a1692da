// Package period resolves a user-chosen reporting period into a concrete date window.
package period

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ripoti/core"
)

type Kind string

const (
	KindSemester Kind = "semester"
	KindMonthly  Kind = "monthly"
)

// Semester labels
const (
	Semester1 = "Semester 1"
	Semester2 = "Semester 2"
	FullYear  = "Full Year"
)

const dateLayout = "2006-01-02"

var (
	SemesterLabels = []string{Semester1, Semester2, FullYear}

	yearMonthRegex = regexp.MustCompile(`^(\d{4})-(\d{2})$`)

	// errors
	ErrInvalidYearMonth = errors.New("invalid year-month, expected YYYY-MM")
	ErrUnknownSemester  = errors.New("unknown semester label")
	ErrUnresolved       = errors.New("reporting period is not resolved")
)

// YearMonth is a calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

// ParseYearMonth parses a strict `YYYY-MM` string.
func ParseYearMonth(s string) (YearMonth, error) {
	m := yearMonthRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return YearMonth{}, invalidYearMonth(s)
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if year == 0 || month < 1 || month > 12 {
		return YearMonth{}, invalidYearMonth(s)
	}
	return YearMonth{Year: year, Month: time.Month(month)}, nil
}

func invalidYearMonth(s string) error {
	return core.NewValidationError(
		errors.Wrapf(ErrInvalidYearMonth, "%q", s),
		core.FieldError{Field: "month", Error: ErrInvalidYearMonth.Error()},
	)
}

func (ym YearMonth) IsZero() bool { return ym.Year == 0 && ym.Month == 0 }

// First returns the first day of the month (UTC midnight).
func (ym YearMonth) First() time.Time {
	return time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Last returns the last calendar day of the month (UTC midnight).
func (ym YearMonth) Last() time.Time {
	return ym.First().AddDate(0, 1, -1)
}

// Days returns the number of days in the month.
func (ym YearMonth) Days() int {
	return ym.Last().Day()
}

// Contains reports whether the calendar date of `t` (in its own location) falls in the month.
func (ym YearMonth) Contains(t time.Time) bool {
	return t.Year() == ym.Year && t.Month() == ym.Month
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// Period is a reporting period: either a semester label or a calendar month.
type Period struct {
	Kind  Kind
	Label string
	Month YearMonth
}

func Semester(label string) Period {
	return Period{Kind: KindSemester, Label: label}
}

func Monthly(ym YearMonth) Period {
	return Period{Kind: KindMonthly, Month: ym}
}

// Parse accepts one of SemesterLabels (case-insensitive) or a `YYYY-MM` month.
func Parse(s string) (Period, error) {
	s = core.CleanString(s)
	if label, ok := semesterLabel(s); ok {
		return Semester(label), nil
	}
	ym, err := ParseYearMonth(s)
	if err != nil {
		return Period{}, core.NewValidationError(
			errors.Errorf("invalid period %q: expected one of %s or YYYY-MM", s, strings.Join(SemesterLabels, ", ")),
			core.FieldError{Field: "period", Error: "invalid period"},
		)
	}
	return Monthly(ym), nil
}

func semesterLabel(s string) (string, bool) {
	for _, label := range SemesterLabels {
		if strings.EqualFold(label, s) {
			return label, true
		}
	}
	return "", false
}

func (p Period) String() string {
	if p.Kind == KindMonthly {
		return p.Month.String()
	}
	return p.Label
}

// Window is a resolved Period.
type Window struct {
	Kind  Kind
	Label string
	From  time.Time // zero for semesters
	To    time.Time // zero for semesters
}

// Resolve turns `p` into a concrete Window. It fails with a *core.ValidationError when `p` cannot be resolved.
func Resolve(p Period) (Window, error) {
	switch p.Kind {
	case KindMonthly:
		if p.Month.IsZero() || p.Month.Month < time.January || p.Month.Month > time.December {
			return Window{}, core.NewValidationError(ErrUnresolved, core.FieldError{Field: "period", Error: ErrUnresolved.Error()})
		}
		return Window{
			Kind:  KindMonthly,
			Label: p.Month.String(),
			From:  p.Month.First(),
			To:    p.Month.Last(),
		}, nil
	case KindSemester:
		label, ok := semesterLabel(p.Label)
		if !ok {
			return Window{}, core.NewValidationError(
				errors.Wrapf(ErrUnknownSemester, "%q", p.Label),
				core.FieldError{Field: "period", Error: ErrUnknownSemester.Error()},
			)
		}
		// semester windows are not calendar-derived: the backend filters by label
		return Window{Kind: KindSemester, Label: label}, nil
	default:
		return Window{}, core.NewValidationError(ErrUnresolved, core.FieldError{Field: "period", Error: ErrUnresolved.Error()})
	}
}

// Matches reports whether a record dated `t` belongs to the window.
func (w Window) Matches(t time.Time) bool {
	if w.Kind != KindMonthly {
		return true
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return !d.Before(w.From) && !d.After(w.To)
}

// Query returns the backend query parameters selecting the window.
func (w Window) Query() map[string]string {
	if w.Kind == KindMonthly {
		return map[string]string{
			"date_from": w.From.Format(dateLayout),
			"date_to":   w.To.Format(dateLayout),
		}
	}
	return map[string]string{"academic_period": w.Label}
}
