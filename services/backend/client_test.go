package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/attendance"
	"github.com/trezcool/ripoti/core/period"
	"github.com/trezcool/ripoti/core/publish"
	"github.com/trezcool/ripoti/core/reporting"
	"github.com/trezcool/ripoti/core/roster"
	testutil "github.com/trezcool/ripoti/tests"
)

type capture struct {
	path   string
	query  url.Values
	auth   string
	method string
	body   []byte
}

// newServer replies `body` with `status` to every request and records the last one.
func newServer(t *testing.T, status int, body string) (*Client, *capture) {
	t.Helper()
	got := new(capture)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.query = r.URL.Query()
		got.auth = r.Header.Get("Authorization")
		got.method = r.Method
		got.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL + "/", Token: "service-token", Timeout: 5 * time.Second}), got
}

func TestUnwrapList(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{name: "bare array", body: `[{"id":1},{"id":2}]`, want: 2},
		{name: "data envelope", body: `{"data":[{"id":1}]}`, want: 1},
		{name: "nested data envelope", body: `{"data":{"data":[{"id":1},{"id":2},{"id":3}]}}`, want: 3},
		{name: "null", body: `null`, want: 0},
		{name: "null data", body: `{"data":null}`, want: 0},
		{name: "empty body", body: ``, want: 0},
		{name: "object without data", body: `{"items":[]}`, wantErr: true},
		{name: "scalar", body: `"oops"`, wantErr: true},
		{name: "too deep", body: `{"data":{"data":{"data":{"data":{"data":[]}}}}}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := unwrapList("students", []byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, core.IsDataShape(err))
				return
			}
			require.NoError(t, err)
			assert.Len(t, items, tt.want)
		})
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: `"s1"`, want: "s1"},
		{raw: `" 42 "`, want: "42"},
		{raw: `42`, want: "42"},
		{raw: `42.0`, want: "42"},
		{raw: `null`, want: ""},
		{raw: ``, want: ""},
		{raw: `true`, wantErr: true},
		{raw: `{"id":1}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseID(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		ok      bool
		wantErr bool
	}{
		{raw: `8.5`, want: 8.5, ok: true},
		{raw: `"8.5"`, want: 8.5, ok: true},
		{raw: `" 7 "`, want: 7, ok: true},
		{raw: `0`, want: 0, ok: true},
		{raw: `null`},
		{raw: `""`},
		{raw: `"abc"`, wantErr: true},
		{raw: `[1]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok, err := parseScore(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDate(t *testing.T) {
	got, err := parseDate(json.RawMessage(`"2024-02-29"`))
	require.NoError(t, err)
	assert.Equal(t, testutil.Date(2024, time.February, 29), got)

	got, err = parseDate(json.RawMessage(`"2024-02-29T23:30:00+07:00"`))
	require.NoError(t, err)
	assert.Equal(t, 29, got.Day(), "the record's own zone is kept")

	got, err = parseDate(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = parseDate(json.RawMessage(`"29/02/2024"`))
	assert.Error(t, err)
	_, err = parseDate(json.RawMessage(`20240229`))
	assert.Error(t, err)
}

func TestClient_Roster(t *testing.T) {
	c, got := newServer(t, http.StatusOK, `{"data":{"data":[
		{"id": 7, "first_name": "Amani", "last_name": "Kabila", "gender": "Female"},
		{"id": "8", "name": "Baraka Mutombo", "gender": "m", "birth_date": "2012-05-01"}
	]}}`)

	students, err := c.Roster(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, "/students", got.path)
	assert.Equal(t, "c1", got.query.Get("class_id"))
	assert.Equal(t, "Bearer service-token", got.auth)

	require.Len(t, students, 2)
	assert.Equal(t, roster.Student{ID: "7", FirstName: "Amani", LastName: "Kabila", Gender: roster.GenderFemale}, students[0])
	assert.Equal(t, "8", students[1].ID)
	assert.Equal(t, "Baraka Mutombo", students[1].FullName())
	assert.Equal(t, roster.GenderMale, students[1].Gender)
	assert.Equal(t, testutil.Date(2012, time.May, 1), students[1].BirthDate)
}

func TestClient_Roster_missingID(t *testing.T) {
	c, _ := newServer(t, http.StatusOK, `[{"id": 1, "first_name": "A"}, {"first_name": "B"}]`)
	_, err := c.Roster(context.Background(), "c1")
	require.Error(t, err)

	var shapeErr *core.DataShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "students", shapeErr.Resource)
	assert.Equal(t, 1, shapeErr.Index)
	assert.Equal(t, "id", shapeErr.Field)
}

func TestClient_Scores(t *testing.T) {
	body := `[
		{"student_id": 1, "subject_id": 3, "assessment_type": "Quiz", "score": "8.5", "date": "2024-02-01"},
		{"student_id": "2", "subject_id": "3", "assessment_type": " Exam ", "score": 6, "date": "2024-02-29T08:00:00Z"}
	]`

	t.Run("monthly", func(t *testing.T) {
		c, got := newServer(t, http.StatusOK, body)
		w, err := period.Resolve(period.Monthly(period.YearMonth{Year: 2024, Month: time.February}))
		require.NoError(t, err)

		records, err := c.Scores(context.Background(), reporting.ScoreQuery{ClassID: "c1", SubjectID: "3", Window: w})
		require.NoError(t, err)

		assert.Equal(t, "/scores", got.path)
		assert.Equal(t, "c1", got.query.Get("class_id"))
		assert.Equal(t, "3", got.query.Get("subject_id"))
		assert.Equal(t, "2024-02-01", got.query.Get("date_from"))
		assert.Equal(t, "2024-02-29", got.query.Get("date_to"))
		assert.Empty(t, got.query.Get("academic_period"))

		require.Len(t, records, 2)
		assert.Equal(t, "1", records[0].StudentID)
		assert.Equal(t, 8.5, records[0].Score)
		assert.Equal(t, "Exam", records[1].AssessmentType)
		assert.Equal(t, 6.0, records[1].Score)
	})

	t.Run("semester, all subjects", func(t *testing.T) {
		c, got := newServer(t, http.StatusOK, body)
		w, err := period.Resolve(period.Semester(period.Semester2))
		require.NoError(t, err)

		_, err = c.Scores(context.Background(), reporting.ScoreQuery{ClassID: "c1", SubjectID: roster.AllSubjects, Window: w})
		require.NoError(t, err)
		assert.Equal(t, period.Semester2, got.query.Get("academic_period"))
		_, hasSubject := got.query["subject_id"]
		assert.False(t, hasSubject)
		assert.Empty(t, got.query.Get("date_from"))
	})
}

func TestClient_Scores_badShape(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		index int
		field string
	}{
		{name: "non numeric", body: `[{"student_id": 1, "assessment_type": "Quiz", "score": 5}, {"student_id": 2, "assessment_type": "Quiz", "score": "n/a"}]`, index: 1, field: "score"},
		{name: "missing score", body: `[{"student_id": 2, "assessment_type": "Quiz"}]`, field: "score"},
		{name: "missing type", body: `[{"student_id": 2, "score": 4}]`, field: "assessment_type"},
		{name: "out of range", body: `[{"student_id": 2, "assessment_type": "Quiz", "score": 12}]`, field: "score"},
		{name: "missing student", body: `[{"assessment_type": "Quiz", "score": 4}]`, field: "student_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newServer(t, http.StatusOK, tt.body)
			w, _ := period.Resolve(period.Semester(period.FullYear))
			_, err := c.Scores(context.Background(), reporting.ScoreQuery{ClassID: "c1", SubjectID: "3", Window: w})
			require.Error(t, err)

			var shapeErr *core.DataShapeError
			require.True(t, errors.As(err, &shapeErr), "got %v", err)
			assert.Equal(t, tt.index, shapeErr.Index)
			assert.Equal(t, tt.field, shapeErr.Field)
		})
	}
}

func TestClient_Attendance(t *testing.T) {
	c, got := newServer(t, http.StatusOK, `{"data":[
		{"student_id": 1, "date": "2024-02-01", "status": "Present"},
		{"student_id": 1, "date": "2024-02-02", "status": "sick"}
	]}`)

	records, err := c.Attendance(context.Background(), reporting.AttendanceQuery{
		ClassID: "c1", Month: period.YearMonth{Year: 2024, Month: time.February},
	})
	require.NoError(t, err, "unknown statuses are left to the matrix builder")
	assert.Equal(t, "2024-02-01", got.query.Get("date_from"))
	assert.Equal(t, "2024-02-29", got.query.Get("date_to"))

	require.Len(t, records, 2)
	assert.Equal(t, attendance.StatusPresent, records[0].Status)
	assert.Equal(t, attendance.Status("sick"), records[1].Status)
}

func TestClient_Attendance_missingDate(t *testing.T) {
	c, _ := newServer(t, http.StatusOK, `[{"student_id": 1, "status": "present"}]`)
	_, err := c.Attendance(context.Background(), reporting.AttendanceQuery{ClassID: "c1"})
	require.Error(t, err)
	assert.True(t, core.IsDataShape(err))
}

func TestClient_tokenFromContext(t *testing.T) {
	c, got := newServer(t, http.StatusOK, `[]`)
	_, err := c.TeacherClasses(WithToken(context.Background(), "teacher-token"))
	require.NoError(t, err)
	assert.Equal(t, "/classes/teacher/me", got.path)
	assert.Equal(t, "Bearer teacher-token", got.auth)
}

func TestClient_networkErrors(t *testing.T) {
	t.Run("http status", func(t *testing.T) {
		c, _ := newServer(t, http.StatusServiceUnavailable, `maintenance`)
		_, err := c.Roster(context.Background(), "c1")
		require.Error(t, err)

		var netErr *core.NetworkError
		require.True(t, errors.As(err, &netErr))
		assert.Equal(t, http.StatusServiceUnavailable, netErr.StatusCode)
		assert.Equal(t, "maintenance", netErr.Body)
		assert.Equal(t, "GET /students", netErr.Op)
	})

	t.Run("transport", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second})

		_, err := c.Roster(context.Background(), "c1")
		require.Error(t, err)
		var netErr *core.NetworkError
		require.True(t, errors.As(err, &netErr))
		assert.Zero(t, netErr.StatusCode)
	})
}

func TestClient_SubmitResults(t *testing.T) {
	c, got := newServer(t, http.StatusCreated, ``)
	sub := publish.Submission{
		ClassID: "c1", SubjectID: "3", AcademicPeriod: period.Semester1,
		Results: []publish.Entry{{StudentID: "1", Score: 7.5, Grade: "C", ResultType: "Average"}},
	}
	require.NoError(t, c.SubmitResults(context.Background(), sub))

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/academic-results", got.path)
	assert.JSONEq(t, `{
		"class_id": "c1", "subject_id": "3", "academic_period": "Semester 1",
		"results": [{"student_id": "1", "score": 7.5, "grade": "C", "result_type": "Average"}]
	}`, string(got.body))
}

func TestClient_fakeBackendRoundTrip(t *testing.T) {
	fb := testutil.NewFakeBackend()
	srv := testutil.NewBackendServer(t, fb, "secret")
	c := NewClient(Options{BaseURL: srv.URL, Token: "secret", Timeout: 5 * time.Second})

	svc := reporting.NewService(c, "", testutil.NopLogger{})
	rep, err := svc.ScoreReport(context.Background(), reporting.ScoreSelection{
		ClassID: testutil.ClassID, SubjectID: "math", Period: period.Monthly(period.YearMonth{Year: 2024, Month: time.February}),
	})
	require.NoError(t, err)
	assert.Equal(t, "5.00", rep.Results["s1"].FinalString())
	assert.Equal(t, "7.00", rep.Results["s2"].FinalString())

	_, err = svc.Publish(context.Background(), rep)
	require.NoError(t, err)
	require.Len(t, fb.Submissions, 1)
	assert.Len(t, fb.Submissions[0].Results, 2)

	_, err = NewClient(Options{BaseURL: srv.URL}).Roster(context.Background(), testutil.ClassID)
	var netErr *core.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, http.StatusUnauthorized, netErr.StatusCode)
}
