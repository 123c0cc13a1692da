package grading

import (
	"time"

	"github.com/trezcool/ripoti/core"
)

const (
	MinScore = 0
	MaxScore = 10
)

// AssessmentRecord is one raw score of a student. Many records per student and
// assessment type are expected (e.g. several quizzes).
type AssessmentRecord struct {
	StudentID      string    `json:"student_id" validate:"notblank"`
	SubjectID      string    `json:"subject_id"`
	AssessmentType string    `json:"assessment_type" validate:"notblank"`
	Score          float64   `json:"score" validate:"gte=0,lte=10"`
	Date           time.Time `json:"date"`
}

// Grade is a letter grade on the fixed 0-10 scale. The zero value means "not assigned".
type Grade string

const (
	GradeA    Grade = "A"
	GradeB    Grade = "B"
	GradeC    Grade = "C"
	GradeD    Grade = "D"
	GradeE    Grade = "E"
	GradeF    Grade = "F"
	GradeNone Grade = ""
)

// Grades lists every assignable grade, best first.
var Grades = []Grade{GradeA, GradeB, GradeC, GradeD, GradeE, GradeF}

type PassStatus string

const (
	StatusPassed  PassStatus = "Passed"
	StatusFailed  PassStatus = "Failed"
	StatusNoScore PassStatus = "No Score"
)

// ComputedResult is the outcome of one aggregation pass for one student.
// Final is unrounded and only meaningful when HasScore is true.
type ComputedResult struct {
	StudentID    string             `json:"student_id"`
	Final        float64            `json:"-"`
	HasScore     bool               `json:"has_score"`
	Grade        Grade              `json:"grade"`
	Status       PassStatus         `json:"status"`
	TypeAverages map[string]float64 `json:"type_averages"`
}

// Rounded returns the final score rounded to 2 decimal places.
func (r ComputedResult) Rounded() float64 {
	if !r.HasScore {
		return 0
	}
	return core.Round2(r.Final)
}

// FinalString returns the 2-decimal display form of the final score, or "" without a score.
func (r ComputedResult) FinalString() string {
	if !r.HasScore {
		return ""
	}
	return core.FormatScore(r.Final)
}

// TypeAverage returns the student's mean for `assessmentType`.
func (r ComputedResult) TypeAverage(assessmentType string) (float64, bool) {
	avg, ok := r.TypeAverages[assessmentType]
	return avg, ok
}

// Stats summarises a class's results.
type Stats struct {
	Students int           `json:"students"`
	Scored   int           `json:"scored"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	NoScore  int           `json:"no_score"`
	Mean     float64       `json:"mean"` // mean of the scored students' final scores, 2dp
	Grades   map[Grade]int `json:"grades"`
}
