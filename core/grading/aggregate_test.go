package grading

import (
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/period"
	"github.com/trezcool/ripoti/core/roster"
)

var day = time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC)

func students(ids ...string) []roster.Student {
	ss := make([]roster.Student, 0, len(ids))
	for _, id := range ids {
		ss = append(ss, roster.Student{ID: id, FirstName: "S", LastName: id})
	}
	return ss
}

func rec(studentID, typ string, score float64) AssessmentRecord {
	return AssessmentRecord{StudentID: studentID, AssessmentType: typ, Score: score, Date: day}
}

func TestAggregate_oneResultPerRosterStudent(t *testing.T) {
	tests := []struct {
		name    string
		roster  []roster.Student
		records []AssessmentRecord
	}{
		{name: "empty roster", roster: nil, records: []AssessmentRecord{rec("1", "Quiz", 5)}},
		{name: "no records", roster: students("1", "2", "3")},
		{name: "some records", roster: students("1", "2", "3"), records: []AssessmentRecord{rec("2", "Quiz", 5)}},
		{name: "records of unknown students", roster: students("1"), records: []AssessmentRecord{rec("9", "Quiz", 5), rec("1", "Exam", 7)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Aggregate(tt.roster, tt.records)
			require.NoError(t, err)
			assert.Len(t, got, len(tt.roster))
			for _, s := range tt.roster {
				res, ok := got[s.ID]
				assert.True(t, ok, "missing result for %s", s.ID)
				assert.Equal(t, s.ID, res.StudentID)
			}
		})
	}
}

func TestAggregate_noScore(t *testing.T) {
	got, err := Aggregate(students("1", "2"), []AssessmentRecord{rec("2", "Quiz", 9)})
	require.NoError(t, err)

	res := got["1"]
	assert.False(t, res.HasScore)
	assert.Equal(t, StatusNoScore, res.Status)
	assert.Equal(t, GradeNone, res.Grade)
	assert.Empty(t, res.TypeAverages)
	assert.Equal(t, "", res.FinalString())
	assert.Equal(t, float64(0), res.Rounded())
}

func TestAggregate_singleTypeIsPlainMean(t *testing.T) {
	records := []AssessmentRecord{
		rec("1", "Quiz", 6), rec("1", "Quiz", 7), rec("1", "Quiz", 9.5), rec("1", "Quiz", 4),
	}
	got, err := Aggregate(students("1"), records)
	require.NoError(t, err)

	res := got["1"]
	assert.InDelta(t, (6+7+9.5+4)/4.0, res.Final, 1e-12)
	assert.Equal(t, "6.63", res.FinalString())
	assert.Equal(t, GradeD, res.Grade)
	assert.Equal(t, map[string]float64{"Quiz": res.Final}, res.TypeAverages)
}

func TestAggregate_meanOfTypeMeans(t *testing.T) {
	records := []AssessmentRecord{
		rec("1", "Quiz", 10), rec("1", "Quiz", 10), rec("1", "Quiz", 10),
		rec("1", "Midterm", 0),
	}
	got, err := Aggregate(students("1"), records)
	require.NoError(t, err)

	res := got["1"]
	assert.Equal(t, 5.0, res.Final)
	assert.Equal(t, "5.00", res.FinalString())
	assert.Equal(t, GradeE, res.Grade)
	assert.Equal(t, StatusPassed, res.Status)
	assert.Equal(t, map[string]float64{"Quiz": 10, "Midterm": 0}, res.TypeAverages)

	// a mean of all raw scores would have been 7.5
	assert.NotEqual(t, 7.5, res.Final)
}

func TestAggregate_typesWeighEqually(t *testing.T) {
	records := make([]AssessmentRecord, 0, 11)
	for i := 0; i < 10; i++ {
		records = append(records, rec("1", "Quiz", 9))
	}
	records = append(records, rec("1", "Exam", 5))

	got, err := Aggregate(students("1"), records)
	require.NoError(t, err)
	assert.Equal(t, 7.0, got["1"].Final)
	assert.Equal(t, GradeC, got["1"].Grade)
}

func TestAggregate_studentsDoNotShareTypes(t *testing.T) {
	records := []AssessmentRecord{
		rec("1", "Quiz", 8), rec("2", "Exam", 3), rec("2", "Quiz", 5),
	}
	got, err := Aggregate(students("1", "2"), records)
	require.NoError(t, err)

	_, ok := got["1"].TypeAverage("Exam")
	assert.False(t, ok, "a type without records must be absent, not zero")
	assert.Equal(t, 8.0, got["1"].Final)
	assert.Equal(t, 4.0, got["2"].Final)
	assert.Equal(t, StatusFailed, got["2"].Status)
}

func TestGradeFor_boundaries(t *testing.T) {
	below := func(f float64) float64 { return math.Nextafter(f, 0) }
	tests := []struct {
		score      float64
		wantGrade  Grade
		wantStatus PassStatus
	}{
		{score: 10, wantGrade: GradeA, wantStatus: StatusPassed},
		{score: 9, wantGrade: GradeA, wantStatus: StatusPassed},
		{score: 8.999, wantGrade: GradeB, wantStatus: StatusPassed},
		{score: below(9), wantGrade: GradeB, wantStatus: StatusPassed},
		{score: 8, wantGrade: GradeB, wantStatus: StatusPassed},
		{score: 7.999, wantGrade: GradeC, wantStatus: StatusPassed},
		{score: 7, wantGrade: GradeC, wantStatus: StatusPassed},
		{score: 6.999, wantGrade: GradeD, wantStatus: StatusPassed},
		{score: 6, wantGrade: GradeD, wantStatus: StatusPassed},
		{score: 5.999, wantGrade: GradeE, wantStatus: StatusPassed},
		{score: 5, wantGrade: GradeE, wantStatus: StatusPassed},
		{score: 4.999, wantGrade: GradeF, wantStatus: StatusFailed},
		{score: below(5), wantGrade: GradeF, wantStatus: StatusFailed},
		{score: 0, wantGrade: GradeF, wantStatus: StatusFailed},
	}
	for _, tt := range tests {
		t.Run(core.FormatScore(tt.score), func(t *testing.T) {
			assert.Equal(t, tt.wantGrade, GradeFor(tt.score))
			assert.Equal(t, tt.wantStatus, StatusFor(tt.score))

			// the same through Aggregate: the unrounded value decides
			got, err := Aggregate(students("1"), []AssessmentRecord{rec("1", "Exam", tt.score)})
			require.NoError(t, err)
			assert.Equal(t, tt.wantGrade, got["1"].Grade)
			assert.Equal(t, tt.wantStatus, got["1"].Status)
		})
	}
}

func TestAggregate_roundingIsDisplayOnly(t *testing.T) {
	// 4.996 displays as 5.00 but still fails
	got, err := Aggregate(students("1"), []AssessmentRecord{rec("1", "Exam", 4.996)})
	require.NoError(t, err)
	assert.Equal(t, "5.00", got["1"].FinalString())
	assert.Equal(t, 5.0, got["1"].Rounded())
	assert.Equal(t, GradeF, got["1"].Grade)
	assert.Equal(t, StatusFailed, got["1"].Status)
}

func TestAggregate_malformedRecords(t *testing.T) {
	tests := []struct {
		name      string
		records   []AssessmentRecord
		wantIndex int
		wantField string
	}{
		{name: "blank student", records: []AssessmentRecord{rec("1", "Quiz", 5), rec(" ", "Quiz", 5)}, wantIndex: 1, wantField: "student_id"},
		{name: "blank type", records: []AssessmentRecord{rec("1", "", 5)}, wantIndex: 0, wantField: "assessment_type"},
		{name: "NaN score", records: []AssessmentRecord{rec("1", "Quiz", math.NaN())}, wantIndex: 0, wantField: "score"},
		{name: "infinite score", records: []AssessmentRecord{rec("1", "Quiz", math.Inf(1))}, wantIndex: 0, wantField: "score"},
		{name: "negative score", records: []AssessmentRecord{rec("1", "Quiz", -1)}, wantIndex: 0, wantField: "score"},
		{name: "score above scale", records: []AssessmentRecord{rec("1", "Quiz", 5), rec("1", "Quiz", 10.5)}, wantIndex: 1, wantField: "score"},
		{name: "unknown student still checked", records: []AssessmentRecord{rec("9", "Quiz", 11)}, wantIndex: 0, wantField: "score"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Aggregate(students("1"), tt.records)
			require.Error(t, err)
			assert.Nil(t, got)

			var shapeErr *core.DataShapeError
			require.True(t, errors.As(err, &shapeErr), "want DataShapeError, got %T", err)
			assert.Equal(t, tt.wantIndex, shapeErr.Index)
			assert.Equal(t, tt.wantField, shapeErr.Field)
		})
	}
}

func TestAssessmentTypes(t *testing.T) {
	records := []AssessmentRecord{
		rec("1", "Quiz", 1), rec("2", "Midterm", 1), rec("1", "Quiz", 1), rec("3", "Assignment", 1),
	}
	assert.Equal(t, []string{"Assignment", "Midterm", "Quiz"}, AssessmentTypes(records))
	assert.Empty(t, AssessmentTypes(nil))
}

func TestOnRoster(t *testing.T) {
	records := []AssessmentRecord{rec("1", "Quiz", 1), rec("9", "Lab", 1), rec("2", "Exam", 1)}
	kept := OnRoster(students("1", "2"), records)
	assert.Equal(t, []AssessmentRecord{records[0], records[2]}, kept)
	assert.Equal(t, []string{"Exam", "Quiz"}, AssessmentTypes(kept))
	assert.Empty(t, OnRoster(nil, records))
}

func TestFilter(t *testing.T) {
	w, err := period.Resolve(period.Monthly(period.YearMonth{Year: 2024, Month: time.February}))
	require.NoError(t, err)

	in := rec("1", "Quiz", 1)
	in.Date = time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)
	out := rec("1", "Quiz", 2)
	out.Date = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, []AssessmentRecord{in}, Filter([]AssessmentRecord{in, out}, w))

	undated := rec("1", "Exam", 6)
	undated.Date = time.Time{}
	assert.Equal(t, []AssessmentRecord{in, undated}, Filter([]AssessmentRecord{in, out, undated}, w), "undated records were windowed by the backend")

	sem, err := period.Resolve(period.Semester(period.Semester2))
	require.NoError(t, err)
	assert.Len(t, Filter([]AssessmentRecord{in, out}, sem), 2)
}

func TestSummarize(t *testing.T) {
	records := []AssessmentRecord{
		rec("1", "Exam", 9.5), rec("2", "Exam", 4), rec("3", "Exam", 6.5),
	}
	results, err := Aggregate(students("1", "2", "3", "4"), records)
	require.NoError(t, err)

	stats := Summarize(results)
	assert.Equal(t, 4, stats.Students)
	assert.Equal(t, 3, stats.Scored)
	assert.Equal(t, 2, stats.Passed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.NoScore)
	assert.Equal(t, 6.67, stats.Mean)
	assert.Equal(t, map[Grade]int{GradeA: 1, GradeB: 0, GradeC: 0, GradeD: 1, GradeE: 0, GradeF: 1}, stats.Grades)
}
