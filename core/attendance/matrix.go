// Package attendance builds the monthly per-student, per-day attendance matrix.
package attendance

import (
	"github.com/pkg/errors"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/period"
	"github.com/trezcool/ripoti/core/roster"
)

const resource = "attendance"

var errBlankStudent = errors.New("student_id is required")

// DayNumbers returns 1..N for the month, N being the month's actual length.
func DayNumbers(ym period.YearMonth) []int {
	n := ym.Days()
	days := make([]int, 0, n)
	for d := 1; d <= n; d++ {
		days = append(days, d)
	}
	return days
}

// Build returns one Summary per roster student for `yearMonth` (YYYY-MM).
// Records outside the month or of students missing from the roster are ignored.
// A record with a status outside the closed set fails the whole pass.
// When a (student, date) pair is recorded twice the last record wins.
func Build(students []roster.Student, yearMonth string, records []Record) (map[string]Summary, error) {
	ym, err := period.ParseYearMonth(yearMonth)
	if err != nil {
		return nil, err
	}
	return BuildMonth(students, ym, records)
}

// BuildMonth is Build for an already parsed month.
func BuildMonth(students []roster.Student, ym period.YearMonth, records []Record) (map[string]Summary, error) {
	for i, rec := range records {
		if !rec.Status.Valid() {
			return nil, core.NewValidationError(
				errors.Wrapf(ErrUnknownStatus, "%s[%d] (student %s): %q", resource, i, rec.StudentID, rec.Status),
				core.FieldError{Field: "status", Error: ErrUnknownStatus.Error()},
			)
		}
		if core.CleanString(rec.StudentID) == "" {
			return nil, core.NewDataShapeError(resource, i, "", "student_id", errBlankStudent)
		}
	}

	summaries := make(map[string]Summary, len(students))
	for _, s := range students {
		summaries[s.ID] = Summary{
			StudentID: s.ID,
			Month:     ym,
			Days:      make(map[int]Status),
		}
	}

	for _, rec := range records {
		sum, ok := summaries[rec.StudentID]
		if !ok || !ym.Contains(rec.Date) {
			continue
		}
		if _, dup := sum.Days[rec.Date.Day()]; dup {
			sum.Overwritten++
		}
		sum.Days[rec.Date.Day()] = rec.Status
		summaries[rec.StudentID] = sum
	}

	// tallies are derived from the final grid so both views always agree
	for id, sum := range summaries {
		for _, st := range sum.Days {
			sum.Tallies.add(st, 1)
		}
		summaries[id] = sum
	}
	return summaries, nil
}

// MonthTotals sums every student's tallies.
func MonthTotals(summaries map[string]Summary) Tallies {
	var totals Tallies
	for _, sum := range summaries {
		for _, st := range Statuses {
			totals.add(st, sum.Tallies.Get(st))
		}
	}
	return totals
}
