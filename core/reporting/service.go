// Package reporting ties the fetch, filter, aggregate and render steps together for one
// selection. Each call owns the snapshot it fetched; nothing is cached between calls.
package reporting

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/attendance"
	"github.com/trezcool/ripoti/core/grading"
	"github.com/trezcool/ripoti/core/period"
	"github.com/trezcool/ripoti/core/publish"
	"github.com/trezcool/ripoti/core/report"
	"github.com/trezcool/ripoti/core/roster"
)

var ErrMissingClass = errors.New("a class is required")

type (
	// ScoreQuery selects the assessment records of a class.
	// An empty or "all" SubjectID selects every subject.
	ScoreQuery struct {
		ClassID   string
		SubjectID string
		Window    period.Window
	}

	// AttendanceQuery selects the attendance records of a class for one month.
	AttendanceQuery struct {
		ClassID string
		Month   period.YearMonth
	}

	Backend interface {
		Roster(ctx context.Context, classID string) ([]roster.Student, error)
		Scores(ctx context.Context, q ScoreQuery) ([]grading.AssessmentRecord, error)
		Attendance(ctx context.Context, q AttendanceQuery) ([]attendance.Record, error)
		TeacherClasses(ctx context.Context) ([]roster.Class, error)
		publish.Submitter
	}

	Service struct {
		backend   Backend
		publisher *publish.Publisher
		log       core.Logger
	}
)

func NewService(backend Backend, resultType string, logger core.Logger) *Service {
	return &Service{
		backend:   backend,
		publisher: publish.NewPublisher(backend, resultType),
		log:       logger,
	}
}

type ScoreSelection struct {
	ClassID     string
	ClassName   string
	SubjectID   string
	SubjectName string
	Period      period.Period
}

// ScoreReport is the outcome of one score computation pass.
type ScoreReport struct {
	Selection ScoreSelection
	Window    period.Window
	Roster    []roster.Student
	Records   []grading.AssessmentRecord // after window filtering
	Types     []string
	Results   map[string]grading.ComputedResult
	Stats     grading.Stats
}

func (r ScoreReport) Table() report.Table {
	subject := r.Selection.SubjectName
	if subject == "" && !roster.IsAllSubjects(r.Selection.SubjectID) {
		subject = r.Selection.SubjectID
	}
	return report.ScoreTable(report.ScoreInput{
		ClassName:   className(r.Selection.ClassName, r.Selection.ClassID),
		SubjectName: subject,
		PeriodLabel: r.Window.Label,
		Roster:      r.Roster,
		Types:       r.Types,
		Results:     r.Results,
	})
}

// ScoreReport resolves the selected period, fetches the roster and the scores concurrently,
// then aggregates the records that fall inside the period window.
func (svc *Service) ScoreReport(ctx context.Context, sel ScoreSelection) (ScoreReport, error) {
	sel.ClassID = core.CleanString(sel.ClassID)
	if sel.ClassID == "" {
		return ScoreReport{}, core.NewValidationError(ErrMissingClass, core.FieldError{Field: "class_id", Error: ErrMissingClass.Error()})
	}
	w, err := period.Resolve(sel.Period)
	if err != nil {
		return ScoreReport{}, err
	}

	var (
		students []roster.Student
		records  []grading.AssessmentRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		students, err = svc.backend.Roster(gctx, sel.ClassID)
		return errors.Wrap(err, "fetching roster")
	})
	g.Go(func() error {
		var err error
		records, err = svc.backend.Scores(gctx, ScoreQuery{ClassID: sel.ClassID, SubjectID: sel.SubjectID, Window: w})
		return errors.Wrap(err, "fetching scores")
	})
	if err := g.Wait(); err != nil {
		return ScoreReport{}, err
	}

	records = grading.Filter(records, w)
	results, err := grading.Aggregate(students, records)
	if err != nil {
		return ScoreReport{}, err
	}
	svc.log.Debug("computed scores", core.Fields{
		"class": sel.ClassID, "subject": sel.SubjectID, "period": w.Label, "students": len(students), "records": len(records),
	})

	return ScoreReport{
		Selection: sel,
		Window:    w,
		Roster:    students,
		Records:   records,
		Types:     grading.AssessmentTypes(grading.OnRoster(students, records)),
		Results:   results,
		Stats:     grading.Summarize(results),
	}, nil
}

type AttendanceSelection struct {
	ClassID   string
	ClassName string
	Month     string // YYYY-MM
}

// AttendanceReport is the outcome of one attendance matrix build.
type AttendanceReport struct {
	Selection AttendanceSelection
	Month     period.YearMonth
	Roster    []roster.Student
	Summaries map[string]attendance.Summary
	Totals    attendance.Tallies
}

func (r AttendanceReport) Table() report.Table {
	return report.AttendanceTable(report.AttendanceInput{
		ClassName: className(r.Selection.ClassName, r.Selection.ClassID),
		Month:     r.Month,
		Roster:    r.Roster,
		Summaries: r.Summaries,
	})
}

func (svc *Service) AttendanceReport(ctx context.Context, sel AttendanceSelection) (AttendanceReport, error) {
	sel.ClassID = core.CleanString(sel.ClassID)
	if sel.ClassID == "" {
		return AttendanceReport{}, core.NewValidationError(ErrMissingClass, core.FieldError{Field: "class_id", Error: ErrMissingClass.Error()})
	}
	ym, err := period.ParseYearMonth(sel.Month)
	if err != nil {
		return AttendanceReport{}, err
	}

	var (
		students []roster.Student
		records  []attendance.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		students, err = svc.backend.Roster(gctx, sel.ClassID)
		return errors.Wrap(err, "fetching roster")
	})
	g.Go(func() error {
		var err error
		records, err = svc.backend.Attendance(gctx, AttendanceQuery{ClassID: sel.ClassID, Month: ym})
		return errors.Wrap(err, "fetching attendance")
	})
	if err := g.Wait(); err != nil {
		return AttendanceReport{}, err
	}

	summaries, err := attendance.BuildMonth(students, ym, records)
	if err != nil {
		return AttendanceReport{}, err
	}
	svc.log.Debug("built attendance matrix", core.Fields{
		"class": sel.ClassID, "month": ym.String(), "students": len(students), "records": len(records),
	})

	return AttendanceReport{
		Selection: sel,
		Month:     ym,
		Roster:    students,
		Summaries: summaries,
		Totals:    attendance.MonthTotals(summaries),
	}, nil
}

// Publish sends the results of a computed score report back to the backend.
func (svc *Service) Publish(ctx context.Context, rep ScoreReport) (publish.Submission, error) {
	sub, err := svc.publisher.Publish(ctx, rep.Selection.ClassID, rep.Selection.SubjectID, rep.Selection.Period, rep.Results)
	if err != nil {
		return publish.Submission{}, err
	}
	svc.log.Info("published results", core.Fields{
		"class": sub.ClassID, "subject": sub.SubjectID, "period": sub.AcademicPeriod, "entries": len(sub.Results),
	})
	return sub, nil
}

// DryRun returns what Publish would send, without sending it.
func (svc *Service) DryRun(rep ScoreReport) (publish.Submission, error) {
	return svc.publisher.BuildSubmission(rep.Selection.ClassID, rep.Selection.SubjectID, rep.Selection.Period, rep.Results)
}

func (svc *Service) TeacherClasses(ctx context.Context) ([]roster.Class, error) {
	classes, err := svc.backend.TeacherClasses(ctx)
	return classes, errors.Wrap(err, "fetching classes")
}

func className(name, id string) string {
	if name != "" {
		return name
	}
	return id
}
