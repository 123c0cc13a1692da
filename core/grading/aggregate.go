// Package grading turns raw assessment records into one final score, letter grade and
// pass status per student.
//
// A student's final score is the unweighted mean of their per-assessment-type means:
// ten quizzes and one exam weigh the same once each type has been averaged.
package grading

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/period"
	"github.com/trezcool/ripoti/core/roster"
)

const resource = "scores"

var (
	errBlankStudent = errors.New("student_id is required")
	errBlankType    = errors.New("assessment_type is required")
	errNotANumber   = errors.New("score is not a number")
	errOutOfRange   = errors.Errorf("score must be between %d and %d", MinScore, MaxScore)
)

// Aggregate computes one ComputedResult per roster student. Students without any record
// get a "No Score" result. Records of students missing from the roster are ignored.
// Any malformed record fails the whole pass with a *core.DataShapeError.
func Aggregate(students []roster.Student, records []AssessmentRecord) (map[string]ComputedResult, error) {
	if err := checkRecords(records); err != nil {
		return nil, err
	}

	onRoster := make(map[string]struct{}, len(students))
	for _, s := range students {
		onRoster[s.ID] = struct{}{}
	}

	// student -> assessment type -> scores
	groups := make(map[string]map[string][]float64, len(students))
	for _, rec := range records {
		if _, ok := onRoster[rec.StudentID]; !ok {
			continue
		}
		byType, ok := groups[rec.StudentID]
		if !ok {
			byType = make(map[string][]float64)
			groups[rec.StudentID] = byType
		}
		byType[rec.AssessmentType] = append(byType[rec.AssessmentType], rec.Score)
	}

	results := make(map[string]ComputedResult, len(students))
	for _, s := range students {
		results[s.ID] = compute(s.ID, groups[s.ID])
	}
	return results, nil
}

func compute(studentID string, byType map[string][]float64) ComputedResult {
	res := ComputedResult{
		StudentID:    studentID,
		Status:       StatusNoScore,
		TypeAverages: make(map[string]float64, len(byType)),
	}
	if len(byType) == 0 {
		return res
	}

	types := make([]string, 0, len(byType))
	for typ := range byType {
		types = append(types, typ)
	}
	sort.Strings(types) // fixed summation order

	var sum float64
	for _, typ := range types {
		avg := mean(byType[typ])
		res.TypeAverages[typ] = avg
		sum += avg
	}
	res.Final = sum / float64(len(types))
	res.HasScore = true
	res.Grade = GradeFor(res.Final)
	res.Status = StatusFor(res.Final)
	return res
}

func mean(scores []float64) float64 {
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

func checkRecords(records []AssessmentRecord) error {
	for i, rec := range records {
		switch {
		case core.CleanString(rec.StudentID) == "":
			return core.NewDataShapeError(resource, i, "", "student_id", errBlankStudent)
		case core.CleanString(rec.AssessmentType) == "":
			return core.NewDataShapeError(resource, i, rec.StudentID, "assessment_type", errBlankType)
		case math.IsNaN(rec.Score) || math.IsInf(rec.Score, 0):
			return core.NewDataShapeError(resource, i, rec.StudentID, "score", errNotANumber)
		case rec.Score < MinScore || rec.Score > MaxScore:
			return core.NewDataShapeError(resource, i, rec.StudentID, "score", errOutOfRange)
		}
	}
	return nil
}

// GradeFor maps an unrounded final score to its letter grade; the highest threshold wins.
func GradeFor(score float64) Grade {
	switch {
	case score >= 9:
		return GradeA
	case score >= 8:
		return GradeB
	case score >= 7:
		return GradeC
	case score >= 6:
		return GradeD
	case score >= 5:
		return GradeE
	default:
		return GradeF
	}
}

// StatusFor returns Passed iff `score` >= 5.
func StatusFor(score float64) PassStatus {
	if score >= 5 {
		return StatusPassed
	}
	return StatusFailed
}

// AssessmentTypes returns the distinct assessment types found across `records`, sorted.
func AssessmentTypes(records []AssessmentRecord) []string {
	seen := make(map[string]struct{})
	types := make([]string, 0)
	for _, rec := range records {
		if _, ok := seen[rec.AssessmentType]; ok {
			continue
		}
		seen[rec.AssessmentType] = struct{}{}
		types = append(types, rec.AssessmentType)
	}
	sort.Strings(types)
	return types
}

// OnRoster keeps the records of students on `students`.
func OnRoster(students []roster.Student, records []AssessmentRecord) []AssessmentRecord {
	ids := make(map[string]struct{}, len(students))
	for _, s := range students {
		ids[s.ID] = struct{}{}
	}
	kept := make([]AssessmentRecord, 0, len(records))
	for _, rec := range records {
		if _, ok := ids[rec.StudentID]; ok {
			kept = append(kept, rec)
		}
	}
	return kept
}

// Filter keeps the records dated inside `w`. Undated records are kept: the backend
// already applied the window when it was asked with date_from/date_to.
func Filter(records []AssessmentRecord, w period.Window) []AssessmentRecord {
	filtered := make([]AssessmentRecord, 0, len(records))
	for _, rec := range records {
		if rec.Date.IsZero() || w.Matches(rec.Date) {
			filtered = append(filtered, rec)
		}
	}
	return filtered
}

// Summarize computes class statistics over `results`.
func Summarize(results map[string]ComputedResult) Stats {
	stats := Stats{
		Students: len(results),
		Grades:   make(map[Grade]int, len(Grades)),
	}
	for _, g := range Grades {
		stats.Grades[g] = 0
	}

	var sum float64
	for _, res := range results {
		if !res.HasScore {
			stats.NoScore++
			continue
		}
		stats.Scored++
		sum += res.Final
		stats.Grades[res.Grade]++
		if res.Status == StatusPassed {
			stats.Passed++
		} else {
			stats.Failed++
		}
	}
	if stats.Scored > 0 {
		stats.Mean = core.Round2(sum / float64(stats.Scored))
	}
	return stats
}
