package echoapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/ripoti/core/period"
	"github.com/trezcool/ripoti/core/reporting"
	"github.com/trezcool/ripoti/core/roster"
)

type (
	// ScoreParams selects a score report: `GET /v1/classes/:classID/scores`.
	ScoreParams struct {
		ClassID   string `param:"classID" json:"class_id" validate:"notblank"`
		ClassName string `query:"class_name" json:"class_name"`
		SubjectID string `query:"subject" json:"subject"`
		Period    string `query:"period" json:"period" validate:"notblank,period"`
		Format    string `query:"format" json:"format" validate:"omitempty,oneof=txt pdf xlsx"`
	}

	// AttendanceParams selects an attendance report: `GET /v1/classes/:classID/attendance`.
	AttendanceParams struct {
		ClassID   string `param:"classID" json:"class_id" validate:"notblank"`
		ClassName string `query:"class_name" json:"class_name"`
		Month     string `query:"month" json:"month" validate:"notblank,yearmonth"`
		Format    string `query:"format" json:"format" validate:"omitempty,oneof=txt pdf xlsx"`
	}

	// PublishRequest is the body of `POST /v1/classes/:classID/results`.
	PublishRequest struct {
		ClassID   string `param:"classID" json:"class_id" validate:"notblank"`
		SubjectID string `json:"subject_id" validate:"notblank"`
		Period    string `json:"period" validate:"notblank,period"`
		DryRun    bool   `json:"dry_run"`
	}
)

func (p ScoreParams) Validate(validate *validator.Validate) error {
	return validate.Struct(p)
}

// Selection converts validated params into a reporting.ScoreSelection.
func (p ScoreParams) Selection() (reporting.ScoreSelection, error) {
	per, err := period.Parse(p.Period)
	if err != nil {
		return reporting.ScoreSelection{}, errors.Wrap(err, "parsing period")
	}
	subject := p.SubjectID
	if subject == "" {
		subject = roster.AllSubjects
	}
	return reporting.ScoreSelection{
		ClassID:   p.ClassID,
		ClassName: p.ClassName,
		SubjectID: subject,
		Period:    per,
	}, nil
}

func (p AttendanceParams) Validate(validate *validator.Validate) error {
	return validate.Struct(p)
}

func (p AttendanceParams) Selection() reporting.AttendanceSelection {
	return reporting.AttendanceSelection{
		ClassID:   p.ClassID,
		ClassName: p.ClassName,
		Month:     p.Month,
	}
}

func (r PublishRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

func (r PublishRequest) Selection() (reporting.ScoreSelection, error) {
	per, err := period.Parse(r.Period)
	if err != nil {
		return reporting.ScoreSelection{}, errors.Wrap(err, "parsing period")
	}
	return reporting.ScoreSelection{ClassID: r.ClassID, SubjectID: r.SubjectID, Period: per}, nil
}
