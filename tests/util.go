// Package testutil holds the fixtures and the fake backend shared by package tests.
package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/attendance"
	"github.com/trezcool/ripoti/core/grading"
	"github.com/trezcool/ripoti/core/publish"
	"github.com/trezcool/ripoti/core/reporting"
	"github.com/trezcool/ripoti/core/roster"
)

const ClassID = "c1"

func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Roster() []roster.Student {
	return []roster.Student{
		{ID: "s1", FirstName: "Amani", LastName: "Kabila", Gender: roster.GenderFemale},
		{ID: "s2", FirstName: "Baraka", LastName: "Mutombo", Gender: roster.GenderMale},
		{ID: "s3", FirstName: "Chausiku", LastName: "Ilunga", Gender: roster.GenderFemale},
	}
}

func Classes() []roster.Class {
	return []roster.Class{{ID: ClassID, Name: "Grade 7A"}, {ID: "c2", Name: "Grade 8B"}}
}

// ScoreRecords: in February 2024 math, s1 scores Quiz [10,10,10] + Exam [0] (5.00),
// s2 scores Quiz [8,6] (7.00) and s3 has nothing. March and physics records must be
// filtered out.
func ScoreRecords() []grading.AssessmentRecord {
	feb := func(d int) time.Time { return Date(2024, time.February, d) }
	return []grading.AssessmentRecord{
		{StudentID: "s1", SubjectID: "math", AssessmentType: "Quiz", Score: 10, Date: feb(1)},
		{StudentID: "s1", SubjectID: "math", AssessmentType: "Quiz", Score: 10, Date: feb(8)},
		{StudentID: "s1", SubjectID: "math", AssessmentType: "Quiz", Score: 10, Date: feb(15)},
		{StudentID: "s1", SubjectID: "math", AssessmentType: "Exam", Score: 0, Date: feb(29)},
		{StudentID: "s2", SubjectID: "math", AssessmentType: "Quiz", Score: 8, Date: feb(1)},
		{StudentID: "s2", SubjectID: "math", AssessmentType: "Quiz", Score: 6, Date: feb(8)},
		{StudentID: "s2", SubjectID: "math", AssessmentType: "Exam", Score: 9, Date: Date(2024, time.March, 1)},
		{StudentID: "s3", SubjectID: "physics", AssessmentType: "Lab", Score: 7, Date: feb(2)},
	}
}

// AttendanceRecords: February 2024 for s1 and s2, plus one March record.
func AttendanceRecords() []attendance.Record {
	feb := func(d int) time.Time { return Date(2024, time.February, d) }
	return []attendance.Record{
		{StudentID: "s1", Date: feb(1), Status: attendance.StatusPresent},
		{StudentID: "s1", Date: feb(2), Status: attendance.StatusLate},
		{StudentID: "s1", Date: feb(29), Status: attendance.StatusAbsent},
		{StudentID: "s2", Date: feb(1), Status: attendance.StatusPermission},
		{StudentID: "s2", Date: feb(2), Status: attendance.StatusPresent},
		{StudentID: "s2", Date: Date(2024, time.March, 1), Status: attendance.StatusAbsent},
	}
}

// NopLogger discards everything.
type NopLogger struct{}

var _ core.Logger = NopLogger{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

// RecordingLogger keeps the messages logged at error level.
type RecordingLogger struct {
	NopLogger
	mu     sync.Mutex
	Errors []string
}

var _ core.Logger = (*RecordingLogger)(nil)

func (l *RecordingLogger) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

// ErrorMessages returns a copy of the messages logged so far.
func (l *RecordingLogger) ErrorMessages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.Errors...)
}

// FakeBackend is an in-memory reporting.Backend.
// Hook, when set, runs first on every call and can fail or block it.
type FakeBackend struct {
	mu          sync.Mutex
	Students    map[string][]roster.Student
	ScoreData   map[string][]grading.AssessmentRecord
	Attendances map[string][]attendance.Record
	ClassList   []roster.Class
	Submissions []publish.Submission
	Calls       map[string]int
	Hook        func(ctx context.Context, op string) error
}

var _ reporting.Backend = (*FakeBackend)(nil)

// NewFakeBackend returns a backend loaded with the fixtures under ClassID.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		Students:    map[string][]roster.Student{ClassID: Roster()},
		ScoreData:   map[string][]grading.AssessmentRecord{ClassID: ScoreRecords()},
		Attendances: map[string][]attendance.Record{ClassID: AttendanceRecords()},
		ClassList:   Classes(),
		Calls:       make(map[string]int),
	}
}

func (fb *FakeBackend) call(ctx context.Context, op string) error {
	fb.mu.Lock()
	fb.Calls[op]++
	hook := fb.Hook
	fb.mu.Unlock()
	if hook != nil {
		return hook(ctx, op)
	}
	return nil
}

// CallCount returns how many times `op` was called.
func (fb *FakeBackend) CallCount(op string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.Calls[op]
}

func (fb *FakeBackend) Roster(ctx context.Context, classID string) ([]roster.Student, error) {
	if err := fb.call(ctx, "roster"); err != nil {
		return nil, err
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]roster.Student(nil), fb.Students[classID]...), nil
}

func (fb *FakeBackend) Scores(ctx context.Context, q reporting.ScoreQuery) ([]grading.AssessmentRecord, error) {
	if err := fb.call(ctx, "scores"); err != nil {
		return nil, err
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	var out []grading.AssessmentRecord
	for _, rec := range fb.ScoreData[q.ClassID] {
		if roster.IsAllSubjects(q.SubjectID) || rec.SubjectID == q.SubjectID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (fb *FakeBackend) Attendance(ctx context.Context, q reporting.AttendanceQuery) ([]attendance.Record, error) {
	if err := fb.call(ctx, "attendance"); err != nil {
		return nil, err
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]attendance.Record(nil), fb.Attendances[q.ClassID]...), nil
}

func (fb *FakeBackend) TeacherClasses(ctx context.Context) ([]roster.Class, error) {
	if err := fb.call(ctx, "classes"); err != nil {
		return nil, err
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]roster.Class(nil), fb.ClassList...), nil
}

func (fb *FakeBackend) SubmitResults(ctx context.Context, sub publish.Submission) error {
	if err := fb.call(ctx, "submit"); err != nil {
		return err
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.Submissions = append(fb.Submissions, sub)
	return nil
}

// NewBackendServer serves `fb` over the backend REST API, wrapping every list in a
// {"data": [...]} envelope. When `token` is not empty, requests without
// "Authorization: Bearer <token>" get a 401.
func NewBackendServer(t *testing.T, fb *FakeBackend, token string) *httptest.Server {
	t.Helper()

	const dateLayout = "2006-01-02"
	writeList := func(w http.ResponseWriter, items interface{}) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": items})
	}
	fail := func(w http.ResponseWriter, err error) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/students", func(w http.ResponseWriter, r *http.Request) {
		students, err := fb.Roster(r.Context(), r.URL.Query().Get("class_id"))
		if err != nil {
			fail(w, err)
			return
		}
		items := make([]map[string]interface{}, 0, len(students))
		for _, s := range students {
			items = append(items, map[string]interface{}{
				"id": s.ID, "first_name": s.FirstName, "last_name": s.LastName, "gender": string(s.Gender),
			})
		}
		writeList(w, items)
	})
	mux.HandleFunc("/scores", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		records, err := fb.Scores(r.Context(), reporting.ScoreQuery{ClassID: q.Get("class_id"), SubjectID: q.Get("subject_id")})
		if err != nil {
			fail(w, err)
			return
		}
		items := make([]map[string]interface{}, 0, len(records))
		for _, rec := range records {
			items = append(items, map[string]interface{}{
				"student_id":      rec.StudentID,
				"subject_id":      rec.SubjectID,
				"assessment_type": rec.AssessmentType,
				"score":           rec.Score,
				"date":            rec.Date.Format(dateLayout),
			})
		}
		writeList(w, items)
	})
	mux.HandleFunc("/attendance", func(w http.ResponseWriter, r *http.Request) {
		records, err := fb.Attendance(r.Context(), reporting.AttendanceQuery{ClassID: r.URL.Query().Get("class_id")})
		if err != nil {
			fail(w, err)
			return
		}
		items := make([]map[string]interface{}, 0, len(records))
		for _, rec := range records {
			items = append(items, map[string]interface{}{
				"student_id": rec.StudentID, "date": rec.Date.Format(dateLayout), "status": string(rec.Status),
			})
		}
		writeList(w, items)
	})
	mux.HandleFunc("/classes/teacher/me", func(w http.ResponseWriter, r *http.Request) {
		classes, err := fb.TeacherClasses(r.Context())
		if err != nil {
			fail(w, err)
			return
		}
		writeList(w, classes)
	})
	mux.HandleFunc("/academic-results", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var sub publish.Submission
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := fb.SubmitResults(r.Context(), sub); err != nil {
			fail(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" && strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}
