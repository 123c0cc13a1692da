package backend

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/attendance"
	"github.com/trezcool/ripoti/core/grading"
	"github.com/trezcool/ripoti/core/roster"
)

const maxEnvelopeDepth = 3

var (
	errNotAList   = errors.New("expected a list of records")
	errNotNumeric = errors.New("not a number")
	errBadDate    = errors.New("not a date (expected YYYY-MM-DD or RFC3339)")
	errBadID      = errors.New("expected a string or a number")

	dateLayouts = []string{"2006-01-02", time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}
)

// unwrapList accepts a bare array, {"data": [...]} or {"data": {"data": [...]}}
// and returns the raw records. `null` is an empty list.
func unwrapList(resource string, body []byte) ([]json.RawMessage, error) {
	raw := bytes.TrimSpace(body)
	for depth := 0; depth <= maxEnvelopeDepth; depth++ {
		switch {
		case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
			return nil, nil
		case raw[0] == '[':
			var items []json.RawMessage
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, core.NewDataShapeError(resource, -1, "", "", err)
			}
			return items, nil
		case raw[0] == '{':
			var env map[string]json.RawMessage
			if err := json.Unmarshal(raw, &env); err != nil {
				return nil, core.NewDataShapeError(resource, -1, "", "", err)
			}
			data, ok := env["data"]
			if !ok {
				return nil, core.NewDataShapeError(resource, -1, "", "data", errNotAList)
			}
			raw = bytes.TrimSpace(data)
		default:
			return nil, core.NewDataShapeError(resource, -1, "", "", errNotAList)
		}
	}
	return nil, core.NewDataShapeError(resource, -1, "", "data", errNotAList)
}

// parseID accepts "12", 12 and 12.0; a missing value is "".
func parseID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", errBadID
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	f, err := n.Float64()
	if err != nil || f != float64(int64(f)) {
		return n.String(), nil
	}
	return strconv.FormatInt(int64(f), 10), nil
}

// parseScore accepts a number or a numeric string. ok is false when the value is missing.
func parseScore(raw json.RawMessage) (score float64, ok bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, errors.Wrapf(errNotNumeric, "%q", s)
		}
		return f, true, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false, errors.Wrapf(errNotNumeric, "%s", raw)
	}
	return f, true, nil
}

// parseDate accepts YYYY-MM-DD (UTC) and RFC3339 timestamps (zone kept).
func parseDate(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, errBadDate
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Wrapf(errBadDate, "%q", s)
}

type wireStudent struct {
	ID         json.RawMessage `json:"id"`
	FirstName  string          `json:"first_name"`
	LastName   string          `json:"last_name"`
	Name       string          `json:"name"`
	Gender     string          `json:"gender"`
	EnrolledAt json.RawMessage `json:"enrolled_at"`
	BirthDate  json.RawMessage `json:"birth_date"`
}

func (c *Client) decodeStudents(body []byte) ([]roster.Student, error) {
	const resource = "students"
	items, err := unwrapList(resource, body)
	if err != nil {
		return nil, err
	}
	students := make([]roster.Student, 0, len(items))
	for i, item := range items {
		var w wireStudent
		if err := json.Unmarshal(item, &w); err != nil {
			return nil, core.NewDataShapeError(resource, i, "", "", err)
		}
		id, err := parseID(w.ID)
		if err != nil {
			return nil, core.NewDataShapeError(resource, i, "", "id", err)
		}
		s := roster.Student{
			ID:        id,
			FirstName: strings.TrimSpace(w.FirstName),
			LastName:  strings.TrimSpace(w.LastName),
			Gender:    roster.ParseGender(w.Gender),
		}
		if s.FirstName == "" && s.LastName == "" {
			s.FirstName = strings.TrimSpace(w.Name)
		}
		if s.EnrolledAt, err = parseDate(w.EnrolledAt); err != nil {
			return nil, core.NewDataShapeError(resource, i, id, "enrolled_at", err)
		}
		if s.BirthDate, err = parseDate(w.BirthDate); err != nil {
			return nil, core.NewDataShapeError(resource, i, id, "birth_date", err)
		}
		if err := c.check(resource, i, id, s); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, nil
}

type wireScore struct {
	StudentID      json.RawMessage `json:"student_id"`
	SubjectID      json.RawMessage `json:"subject_id"`
	AssessmentType string          `json:"assessment_type"`
	Score          json.RawMessage `json:"score"`
	Date           json.RawMessage `json:"date"`
}

var errMissingScore = errors.New("score is missing")

func (c *Client) decodeScores(body []byte) ([]grading.AssessmentRecord, error) {
	const resource = "scores"
	items, err := unwrapList(resource, body)
	if err != nil {
		return nil, err
	}
	records := make([]grading.AssessmentRecord, 0, len(items))
	for i, item := range items {
		var w wireScore
		if err := json.Unmarshal(item, &w); err != nil {
			return nil, core.NewDataShapeError(resource, i, "", "", err)
		}
		studentID, err := parseID(w.StudentID)
		if err != nil {
			return nil, core.NewDataShapeError(resource, i, "", "student_id", err)
		}
		subjectID, err := parseID(w.SubjectID)
		if err != nil {
			return nil, core.NewDataShapeError(resource, i, studentID, "subject_id", err)
		}
		score, ok, err := parseScore(w.Score)
		if err != nil {
			return nil, core.NewDataShapeError(resource, i, studentID, "score", err)
		}
		if !ok {
			return nil, core.NewDataShapeError(resource, i, studentID, "score", errMissingScore)
		}
		date, err := parseDate(w.Date)
		if err != nil {
			return nil, core.NewDataShapeError(resource, i, studentID, "date", err)
		}
		rec := grading.AssessmentRecord{
			StudentID:      studentID,
			SubjectID:      subjectID,
			AssessmentType: strings.TrimSpace(w.AssessmentType),
			Score:          score,
			Date:           date,
		}
		if err := c.check(resource, i, studentID, rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

type wireAttendance struct {
	StudentID json.RawMessage `json:"student_id"`
	Date      json.RawMessage `json:"date"`
	Status    string          `json:"status"`
}

// decodeAttendance normalizes status case only; statuses outside the closed set are
// rejected by the matrix builder.
func (c *Client) decodeAttendance(body []byte) ([]attendance.Record, error) {
	const resource = "attendance"
	items, err := unwrapList(resource, body)
	if err != nil {
		return nil, err
	}
	records := make([]attendance.Record, 0, len(items))
	for i, item := range items {
		var w wireAttendance
		if err := json.Unmarshal(item, &w); err != nil {
			return nil, core.NewDataShapeError(resource, i, "", "", err)
		}
		studentID, err := parseID(w.StudentID)
		if err != nil {
			return nil, core.NewDataShapeError(resource, i, "", "student_id", err)
		}
		date, err := parseDate(w.Date)
		if err != nil {
			return nil, core.NewDataShapeError(resource, i, studentID, "date", err)
		}
		rec := attendance.Record{
			StudentID: studentID,
			Date:      date,
			Status:    attendance.Status(strings.ToLower(strings.TrimSpace(w.Status))),
		}
		if err := c.check(resource, i, studentID, rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

type wireClass struct {
	ID   json.RawMessage `json:"id"`
	Name string          `json:"name"`
}

func (c *Client) decodeClasses(body []byte) ([]roster.Class, error) {
	const resource = "classes"
	items, err := unwrapList(resource, body)
	if err != nil {
		return nil, err
	}
	classes := make([]roster.Class, 0, len(items))
	for i, item := range items {
		var w wireClass
		if err := json.Unmarshal(item, &w); err != nil {
			return nil, core.NewDataShapeError(resource, i, "", "", err)
		}
		id, err := parseID(w.ID)
		if err != nil {
			return nil, core.NewDataShapeError(resource, i, "", "id", err)
		}
		cls := roster.Class{ID: id, Name: strings.TrimSpace(w.Name)}
		if err := c.check(resource, i, "", cls); err != nil {
			return nil, err
		}
		classes = append(classes, cls)
	}
	return classes, nil
}

// check runs the struct validation rules of a normalized record and reports the first
// failing field as a *core.DataShapeError.
func (c *Client) check(resource string, index int, studentID string, rec interface{}) error {
	err := c.validate.Struct(rec)
	if err == nil {
		return nil
	}
	verr, ok := errors.Cause(core.ToValidationError(err, c.translator)).(*core.ValidationError)
	if !ok || len(verr.Fields) == 0 {
		return core.NewDataShapeError(resource, index, studentID, "", err)
	}
	fld := verr.Fields[0]
	return core.NewDataShapeError(resource, index, studentID, fld.Field, errors.New(fld.Error))
}
