package echoapi

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ripoti/core/attendance"
	"github.com/trezcool/ripoti/core/grading"
	"github.com/trezcool/ripoti/core/publish"
	"github.com/trezcool/ripoti/core/report"
	"github.com/trezcool/ripoti/core/reporting"
	"github.com/trezcool/ripoti/core/roster"
)

// ReportService is implemented by *reporting.Service.
type ReportService interface {
	ScoreReport(ctx context.Context, sel reporting.ScoreSelection) (reporting.ScoreReport, error)
	AttendanceReport(ctx context.Context, sel reporting.AttendanceSelection) (reporting.AttendanceReport, error)
	Publish(ctx context.Context, rep reporting.ScoreReport) (publish.Submission, error)
	DryRun(rep reporting.ScoreReport) (publish.Submission, error)
	TeacherClasses(ctx context.Context) ([]roster.Class, error)
}

var _ ReportService = (*reporting.Service)(nil)

type (
	StudentResult struct {
		StudentID    string             `json:"student_id"`
		Name         string             `json:"name"`
		Score        *float64           `json:"score"` // null without a score
		Grade        grading.Grade      `json:"grade"`
		Status       grading.PassStatus `json:"status"`
		TypeAverages map[string]float64 `json:"type_averages"`
	}

	ScoreResponse struct {
		Period  string          `json:"period"`
		Types   []string        `json:"types"`
		Results []StudentResult `json:"results"`
		Stats   grading.Stats   `json:"stats"`
		Table   report.Table    `json:"table"`
	}

	StudentAttendance struct {
		StudentID string `json:"student_id"`
		Name      string `json:"name"`
		attendance.Summary
	}

	AttendanceResponse struct {
		Month     string              `json:"month"`
		Days      []int               `json:"days"`
		Summaries []StudentAttendance `json:"summaries"`
		Totals    attendance.Tallies  `json:"totals"`
		Table     report.Table        `json:"table"`
	}
)

type reportApi struct {
	svc      ReportService
	validate *validator.Validate
	pdfOpts  report.PDFOptions
}

func registerReportAPI(
	g *echo.Group,
	svc ReportService,
	validate *validator.Validate,
	pdfOpts report.PDFOptions,
) {
	api := reportApi{
		svc:      svc,
		validate: validate,
		pdfOpts:  pdfOpts,
	}

	g.GET("/classes", api.classes)

	cg := g.Group("/classes/:classID")
	cg.GET("/scores", api.scores)
	cg.GET("/scores/export", api.exportScores)
	cg.GET("/attendance", api.attendance)
	cg.GET("/attendance/export", api.exportAttendance)
	cg.POST("/results", api.publish)
}

// Handlers

func (api *reportApi) classes(ctx echo.Context) error {
	classes, err := api.svc.TeacherClasses(ctx.Request().Context())
	if err != nil {
		return err
	}
	if classes == nil {
		classes = []roster.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *reportApi) scoreReport(ctx echo.Context) (reporting.ScoreReport, report.Format, error) {
	var params ScoreParams
	if err := ctx.Bind(&params); err != nil {
		return reporting.ScoreReport{}, "", errors.Wrap(err, "binding to ScoreParams")
	}
	params.ClassID = ctx.Param("classID")
	if err := params.Validate(api.validate); err != nil {
		return reporting.ScoreReport{}, "", err
	}
	format, err := report.ParseFormat(params.Format)
	if err != nil {
		return reporting.ScoreReport{}, "", err
	}
	sel, err := params.Selection()
	if err != nil {
		return reporting.ScoreReport{}, "", err
	}
	rep, err := api.svc.ScoreReport(ctx.Request().Context(), sel)
	return rep, format, err
}

func (api *reportApi) scores(ctx echo.Context) error {
	rep, _, err := api.scoreReport(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newScoreResponse(rep))
}

func (api *reportApi) exportScores(ctx echo.Context) error {
	rep, format, err := api.scoreReport(ctx)
	if err != nil {
		return err
	}
	return api.export(ctx, rep.Table(), format)
}

func (api *reportApi) attendanceReport(ctx echo.Context) (reporting.AttendanceReport, report.Format, error) {
	var params AttendanceParams
	if err := ctx.Bind(&params); err != nil {
		return reporting.AttendanceReport{}, "", errors.Wrap(err, "binding to AttendanceParams")
	}
	params.ClassID = ctx.Param("classID")
	if err := params.Validate(api.validate); err != nil {
		return reporting.AttendanceReport{}, "", err
	}
	format, err := report.ParseFormat(params.Format)
	if err != nil {
		return reporting.AttendanceReport{}, "", err
	}
	rep, err := api.svc.AttendanceReport(ctx.Request().Context(), params.Selection())
	return rep, format, err
}

func (api *reportApi) attendance(ctx echo.Context) error {
	rep, _, err := api.attendanceReport(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newAttendanceResponse(rep))
}

func (api *reportApi) exportAttendance(ctx echo.Context) error {
	rep, format, err := api.attendanceReport(ctx)
	if err != nil {
		return err
	}
	return api.export(ctx, rep.Table(), format)
}

func (api *reportApi) publish(ctx echo.Context) error {
	var data PublishRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PublishRequest")
	}
	data.ClassID = ctx.Param("classID")
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	sel, err := data.Selection()
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	rep, err := api.svc.ScoreReport(reqCtx, sel)
	if err != nil {
		return err
	}

	if data.DryRun {
		sub, err := api.svc.DryRun(rep)
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, sub)
	}

	sub, err := api.svc.Publish(reqCtx, rep)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *reportApi) export(ctx echo.Context, t report.Table, format report.Format) error {
	opts := report.ExportOptions{PDF: api.pdfOpts}
	if opts.PDF.GeneratedAt.IsZero() {
		opts.PDF.GeneratedAt = time.Now()
	}

	// render fully before writing: a failed render must still produce an error response
	var buf bytes.Buffer
	if err := report.Export(&buf, t, format, opts); err != nil {
		return errors.Wrap(err, "exporting "+string(format))
	}
	ctx.Response().Header().Set(
		echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", format.Filename(t)),
	)
	return ctx.Blob(http.StatusOK, format.ContentType(), buf.Bytes())
}

// Responses

func newScoreResponse(rep reporting.ScoreReport) ScoreResponse {
	results := make([]StudentResult, 0, len(rep.Roster))
	for _, s := range rep.Roster {
		res := rep.Results[s.ID]
		sr := StudentResult{
			StudentID:    s.ID,
			Name:         s.FullName(),
			Grade:        res.Grade,
			Status:       res.Status,
			TypeAverages: res.TypeAverages,
		}
		if res.HasScore {
			score := res.Rounded()
			sr.Score = &score
		}
		if sr.TypeAverages == nil {
			sr.TypeAverages = map[string]float64{}
		}
		results = append(results, sr)
	}
	types := rep.Types
	if types == nil {
		types = []string{}
	}
	return ScoreResponse{
		Period:  rep.Window.Label,
		Types:   types,
		Results: results,
		Stats:   rep.Stats,
		Table:   rep.Table(),
	}
}

func newAttendanceResponse(rep reporting.AttendanceReport) AttendanceResponse {
	summaries := make([]StudentAttendance, 0, len(rep.Roster))
	for _, s := range rep.Roster {
		sum := rep.Summaries[s.ID]
		if sum.Days == nil {
			sum.Days = map[int]attendance.Status{}
		}
		summaries = append(summaries, StudentAttendance{
			StudentID: s.ID,
			Name:      s.FullName(),
			Summary:   sum,
		})
	}
	return AttendanceResponse{
		Month:     rep.Month.String(),
		Days:      attendance.DayNumbers(rep.Month),
		Summaries: summaries,
		Totals:    rep.Totals,
		Table:     rep.Table(),
	}
}
