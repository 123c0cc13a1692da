// Package report renders computed results and attendance matrices into fixed-column tables.
//
// Every renderer consumes the same Table, so the screen table and the exported documents
// always show identical cell values.
package report

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/attendance"
	"github.com/trezcool/ripoti/core/grading"
	"github.com/trezcool/ripoti/core/period"
	"github.com/trezcool/ripoti/core/roster"
)

type ColumnKind string

const (
	ColumnFixed   ColumnKind = "fixed"
	ColumnType    ColumnKind = "type"
	ColumnDay     ColumnKind = "day"
	ColumnSummary ColumnKind = "summary"
)

// Cell alignments, as understood by gofpdf.
const (
	AlignLeft   = "L"
	AlignCenter = "C"
	AlignRight  = "R"
)

type Column struct {
	Title string     `json:"title"`
	Kind  ColumnKind `json:"kind"`
	Align string     `json:"align"`
}

// Table is the render-ready form of a report: one row per roster student.
type Table struct {
	Title    string     `json:"title"`
	Subtitle string     `json:"subtitle"`
	Filename string     `json:"filename"` // without extension
	Columns  []Column   `json:"columns"`
	Rows     [][]string `json:"rows"`
}

func (t Table) Header() []string {
	hdr := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		hdr = append(hdr, col.Title)
	}
	return hdr
}

// Cell returns the value at (row, col), or "" outside the table.
func (t Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

// ScoreInput is everything ScoreTable needs.
type ScoreInput struct {
	ClassName   string
	SubjectName string
	PeriodLabel string
	Roster      []roster.Student
	Types       []string // every assessment type of the filtered record set
	Results     map[string]grading.ComputedResult
}

// ScoreTable lays out: No, Student Name, Gender, one column per assessment type,
// Final Score, Grade, Status.
func ScoreTable(in ScoreInput) Table {
	cols := []Column{
		{Title: "No", Kind: ColumnFixed, Align: AlignCenter},
		{Title: "Student Name", Kind: ColumnFixed, Align: AlignLeft},
		{Title: "Gender", Kind: ColumnFixed, Align: AlignCenter},
	}
	for _, typ := range in.Types {
		cols = append(cols, Column{Title: typ, Kind: ColumnType, Align: AlignCenter})
	}
	cols = append(cols,
		Column{Title: "Final Score", Kind: ColumnSummary, Align: AlignCenter},
		Column{Title: "Grade", Kind: ColumnSummary, Align: AlignCenter},
		Column{Title: "Status", Kind: ColumnSummary, Align: AlignCenter},
	)

	rows := make([][]string, 0, len(in.Roster))
	for i, s := range in.Roster {
		res, ok := in.Results[s.ID]
		if !ok {
			res = grading.ComputedResult{StudentID: s.ID, Status: grading.StatusNoScore}
		}
		row := make([]string, 0, len(cols))
		row = append(row, strconv.Itoa(i+1), s.FullName(), s.Gender.Short())
		for _, typ := range in.Types {
			if avg, ok := res.TypeAverage(typ); ok {
				row = append(row, core.FormatScore(avg))
			} else {
				row = append(row, "")
			}
		}
		row = append(row, res.FinalString(), string(res.Grade), string(res.Status))
		rows = append(rows, row)
	}

	subject := in.SubjectName
	if subject == "" {
		subject = "All Subjects"
	}
	return Table{
		Title:    "Academic Results",
		Subtitle: joinNonEmpty(" · ", in.ClassName, subject, in.PeriodLabel),
		Filename: ScoreFilename(in.ClassName, subject, in.PeriodLabel),
		Columns:  cols,
		Rows:     rows,
	}
}

// AttendanceInput is everything AttendanceTable needs.
type AttendanceInput struct {
	ClassName string
	Month     period.YearMonth
	Roster    []roster.Student
	Summaries map[string]attendance.Summary
}

// AttendanceTable lays out: No, Student Name, one column per day of the month (01..N),
// Present, Late, Permission, Absent.
func AttendanceTable(in AttendanceInput) Table {
	days := attendance.DayNumbers(in.Month)

	cols := make([]Column, 0, 2+len(days)+len(attendance.Statuses))
	cols = append(cols,
		Column{Title: "No", Kind: ColumnFixed, Align: AlignCenter},
		Column{Title: "Student Name", Kind: ColumnFixed, Align: AlignLeft},
	)
	for _, d := range days {
		cols = append(cols, Column{Title: fmt.Sprintf("%02d", d), Kind: ColumnDay, Align: AlignCenter})
	}
	for _, st := range attendance.Statuses {
		cols = append(cols, Column{Title: st.Label(), Kind: ColumnSummary, Align: AlignCenter})
	}

	rows := make([][]string, 0, len(in.Roster))
	for i, s := range in.Roster {
		sum := in.Summaries[s.ID]
		row := make([]string, 0, len(cols))
		row = append(row, strconv.Itoa(i+1), s.FullName())
		for _, d := range days {
			st, _ := sum.Day(d)
			row = append(row, st.Glyph()) // unset days stay empty
		}
		for _, st := range attendance.Statuses {
			row = append(row, strconv.Itoa(sum.Tallies.Get(st)))
		}
		rows = append(rows, row)
	}

	return Table{
		Title:    "Attendance",
		Subtitle: joinNonEmpty(" · ", in.ClassName, in.Month.First().Format("January 2006")),
		Filename: AttendanceFilename(in.ClassName, in.Month),
		Columns:  cols,
		Rows:     rows,
	}
}

// Page is a slice of a table's rows; First is the index of its first row.
type Page struct {
	Number int
	First  int
	Rows   [][]string
}

// Paginate splits the table rows into pages of at most `rowsPerPage` rows.
// A table without rows still has one (empty) page so the header gets rendered.
func Paginate(t Table, rowsPerPage int) []Page {
	if rowsPerPage <= 0 {
		rowsPerPage = len(t.Rows)
	}
	if len(t.Rows) == 0 {
		return []Page{{Number: 1}}
	}
	pages := make([]Page, 0, (len(t.Rows)+rowsPerPage-1)/rowsPerPage)
	for first := 0; first < len(t.Rows); first += rowsPerPage {
		last := first + rowsPerPage
		if last > len(t.Rows) {
			last = len(t.Rows)
		}
		pages = append(pages, Page{Number: len(pages) + 1, First: first, Rows: t.Rows[first:last]})
	}
	return pages
}

var slugRegex = regexp.MustCompile(`[^A-Za-z0-9-]+`)

func slug(s string) string {
	return strings.Trim(slugRegex.ReplaceAllString(strings.TrimSpace(s), "-"), "-")
}

// AttendanceFilename returns `attendance_<className>_<yearMonth>`.
func AttendanceFilename(className string, ym period.YearMonth) string {
	return joinNonEmpty("_", "attendance", slug(className), ym.String())
}

// ScoreFilename returns `scores_<className>_<subject>_<period>`.
func ScoreFilename(className, subject, periodLabel string) string {
	return joinNonEmpty("_", "scores", slug(className), slug(subject), slug(periodLabel))
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
