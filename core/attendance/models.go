package attendance

import (
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/period"
)

// Status is the closed set of daily attendance states.
type Status string

const (
	StatusPresent    Status = "present"
	StatusAbsent     Status = "absent"
	StatusPermission Status = "permission"
	StatusLate       Status = "late"
)

// Statuses is the order of the summary columns in reports.
var Statuses = []Status{StatusPresent, StatusLate, StatusPermission, StatusAbsent}

var ErrUnknownStatus = errors.New("unknown attendance status")

// ParseStatus maps `s` onto the closed Status set (trimmed, case-insensitive).
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", core.NewValidationError(
			errors.Wrapf(ErrUnknownStatus, "%q", s),
			core.FieldError{Field: "status", Error: ErrUnknownStatus.Error()},
		)
	}
	return st, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusPermission, StatusLate:
		return true
	default:
		return false
	}
}

// Glyph returns the single-character code used in every rendering of a day cell.
func (s Status) Glyph() string {
	switch s {
	case StatusPresent:
		return "I"
	case StatusLate:
		return "L"
	case StatusPermission:
		return "P"
	case StatusAbsent:
		return "A"
	default:
		return ""
	}
}

// Label returns the summary column title.
func (s Status) Label() string {
	switch s {
	case StatusPresent:
		return "Present"
	case StatusLate:
		return "Late"
	case StatusPermission:
		return "Permission"
	case StatusAbsent:
		return "Absent"
	default:
		return ""
	}
}

// Record is one student's attendance on one calendar date.
type Record struct {
	StudentID string    `json:"student_id" validate:"notblank"`
	Date      time.Time `json:"date" validate:"required"`
	Status    Status    `json:"status"`
}

type Tallies struct {
	Present    int `json:"present"`
	Absent     int `json:"absent"`
	Permission int `json:"permission"`
	Late       int `json:"late"`
}

func (t *Tallies) add(s Status, n int) {
	switch s {
	case StatusPresent:
		t.Present += n
	case StatusAbsent:
		t.Absent += n
	case StatusPermission:
		t.Permission += n
	case StatusLate:
		t.Late += n
	}
}

// Get returns the tally of `s`.
func (t Tallies) Get(s Status) int {
	switch s {
	case StatusPresent:
		return t.Present
	case StatusAbsent:
		return t.Absent
	case StatusPermission:
		return t.Permission
	case StatusLate:
		return t.Late
	default:
		return 0
	}
}

func (t Tallies) Total() int {
	return t.Present + t.Absent + t.Permission + t.Late
}

// Summary is one student's attendance grid for one month.
// Days only holds set days; Tallies always counts exactly those entries.
type Summary struct {
	StudentID   string           `json:"student_id"`
	Month       period.YearMonth `json:"-"`
	Days        map[int]Status   `json:"days"`
	Tallies     Tallies          `json:"tallies"`
	Overwritten int              `json:"overwritten"` // duplicate (student, date) records replaced
}

// Day returns the status recorded on day-of-month `d`.
func (s Summary) Day(d int) (Status, bool) {
	st, ok := s.Days[d]
	return st, ok
}

// SetDays returns the days with a recorded status, ascending.
func (s Summary) SetDays() []int {
	days := make([]int, 0, len(s.Days))
	for d := range s.Days {
		days = append(days, d)
	}
	sort.Ints(days)
	return days
}
