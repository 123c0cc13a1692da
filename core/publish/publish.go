// Package publish submits computed period results back to the backend.
package publish

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/grading"
	"github.com/trezcool/ripoti/core/period"
	"github.com/trezcool/ripoti/core/roster"
)

const DefaultResultType = "Average"

var (
	ErrMissingClass  = errors.New("a class is required")
	ErrAllSubjects   = errors.New("results can only be published for a single subject")
	ErrNothingToSend = errors.New("no student has a score for this selection")
)

// Entry is one student's published result.
type Entry struct {
	StudentID  string        `json:"student_id"`
	Score      float64       `json:"score"`
	Grade      grading.Grade `json:"grade"`
	ResultType string        `json:"result_type"`
}

// Submission is the body of `POST /academic-results`.
type Submission struct {
	ClassID        string  `json:"class_id"`
	SubjectID      string  `json:"subject_id"`
	AcademicPeriod string  `json:"academic_period"`
	Results        []Entry `json:"results"`
}

// Submitter sends a Submission to the backend.
type Submitter interface {
	SubmitResults(ctx context.Context, sub Submission) error
}

type Publisher struct {
	submitter  Submitter
	resultType string
}

func NewPublisher(submitter Submitter, resultType string) *Publisher {
	if strings.TrimSpace(resultType) == "" {
		resultType = DefaultResultType
	}
	return &Publisher{submitter: submitter, resultType: resultType}
}

// BuildSubmission validates the selection and assembles the payload without sending it.
// Students without a score are left out; entries are sorted by student ID.
func (pub *Publisher) BuildSubmission(classID, subjectID string, p period.Period, results map[string]grading.ComputedResult) (Submission, error) {
	var flds []core.FieldError
	classID = core.CleanString(classID)
	if classID == "" {
		flds = append(flds, core.FieldError{Field: "class_id", Error: ErrMissingClass.Error()})
	}
	if roster.IsAllSubjects(subjectID) {
		flds = append(flds, core.FieldError{Field: "subject_id", Error: ErrAllSubjects.Error()})
	}
	w, err := period.Resolve(p)
	if err != nil {
		if verr, ok := errors.Cause(err).(*core.ValidationError); ok {
			flds = append(flds, verr.Fields...)
		} else {
			return Submission{}, err
		}
	}
	if len(flds) > 0 {
		return Submission{}, core.NewValidationError(nil, flds...)
	}

	entries := make([]Entry, 0, len(results))
	for _, res := range results {
		if !res.HasScore {
			continue
		}
		entries = append(entries, Entry{
			StudentID:  res.StudentID,
			Score:      res.Rounded(),
			Grade:      res.Grade,
			ResultType: pub.resultType,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].StudentID < entries[j].StudentID })

	return Submission{
		ClassID:        classID,
		SubjectID:      core.CleanString(subjectID),
		AcademicPeriod: w.Label,
		Results:        entries,
	}, nil
}

// Publish submits the scored results of one class, subject and period.
// Nothing is sent when the selection is invalid or when no student has a score.
// Backend errors are returned unchanged.
func (pub *Publisher) Publish(ctx context.Context, classID, subjectID string, p period.Period, results map[string]grading.ComputedResult) (Submission, error) {
	sub, err := pub.BuildSubmission(classID, subjectID, p, results)
	if err != nil {
		return Submission{}, err
	}
	if len(sub.Results) == 0 {
		return Submission{}, core.NewValidationError(ErrNothingToSend, core.FieldError{Field: "results", Error: ErrNothingToSend.Error()})
	}
	if err := pub.submitter.SubmitResults(ctx, sub); err != nil {
		return Submission{}, err
	}
	return sub, nil
}
