package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/grading"
	"github.com/trezcool/ripoti/core/period"
	"github.com/trezcool/ripoti/core/publish"
	"github.com/trezcool/ripoti/core/reporting"
	"github.com/trezcool/ripoti/services/backend"
	testutil "github.com/trezcool/ripoti/tests"
)

const token = "secret"

type httpErr struct {
	Error string `json:"error"`
}

func newTestServer(t *testing.T, rb reporting.Backend) Server {
	t.Helper()

	conf := &core.Config{AppName: "Ripoti", TestMode: true}
	conf.Server.DisableReqLogs = true

	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	period.InitValidators(validate, translator)

	return NewServer(ServerDeps{
		Conf:       conf,
		Logger:     testutil.NopLogger{},
		ReportSvc:  reporting.NewService(rb, "", testutil.NopLogger{}),
		Validate:   validate,
		Translator: translator,
	})
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func serve(app Server, method, path string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	app.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestServer_home(t *testing.T) {
	app := newTestServer(t, testutil.NewFakeBackend())
	req, rec := newAuthRequest(http.MethodGet, "/", "")
	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Ripoti API!", rec.Body.String())
}

func TestServer_requiresBearerToken(t *testing.T) {
	fb := testutil.NewFakeBackend()
	app := newTestServer(t, fb)

	for _, path := range []string{
		"/v1/classes",
		"/v1/classes/c1/scores?period=2024-02",
		"/v1/classes/c1/attendance?month=2024-02",
	} {
		t.Run(path, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, path, "")
			app.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			var herr httpErr
			decode(t, rec, &herr)
			assert.Equal(t, "missing or malformed bearer token", herr.Error)
		})
	}
	assert.Zero(t, fb.CallCount("classes")+fb.CallCount("roster"))
}

func TestServer_classes(t *testing.T) {
	rec := serve(newTestServer(t, testutil.NewFakeBackend()), http.MethodGet, "/v1/classes/")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"c1","name":"Grade 7A"},{"id":"c2","name":"Grade 8B"}]`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_scores(t *testing.T) {
	rec := serve(newTestServer(t, testutil.NewFakeBackend()), http.MethodGet, "/v1/classes/c1/scores?subject=math&period=2024-02&class_name=Grade+7A")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ScoreResponse
	decode(t, rec, &resp)
	assert.Equal(t, "2024-02", resp.Period)
	assert.Equal(t, []string{"Exam", "Quiz"}, resp.Types)

	require.Len(t, resp.Results, 3)
	assert.Equal(t, []string{"s1", "s2", "s3"}, []string{resp.Results[0].StudentID, resp.Results[1].StudentID, resp.Results[2].StudentID})
	require.NotNil(t, resp.Results[0].Score)
	assert.Equal(t, 5.0, *resp.Results[0].Score)
	assert.Equal(t, grading.GradeE, resp.Results[0].Grade)
	require.NotNil(t, resp.Results[1].Score)
	assert.Equal(t, 7.0, *resp.Results[1].Score)
	assert.Nil(t, resp.Results[2].Score)
	assert.Equal(t, grading.StatusNoScore, resp.Results[2].Status)

	assert.Equal(t, 6.0, resp.Stats.Mean)
	assert.Equal(t, "scores_Grade-7A_math_2024-02", resp.Table.Filename)
	assert.Len(t, resp.Table.Rows, 3)
}

func TestServer_scores_badParams(t *testing.T) {
	fb := testutil.NewFakeBackend()
	app := newTestServer(t, fb)

	tests := []struct {
		name      string
		path      string
		wantField string
	}{
		{"missing period", "/v1/classes/c1/scores?subject=math", "period"},
		{"month out of range", "/v1/classes/c1/scores?period=2024-13", "period"},
		{"unknown semester", "/v1/classes/c1/scores?period=Semester+3", "period"},
		{"unknown format", "/v1/classes/c1/scores/export?period=2024-02&format=doc", "format"},
		{"blank class", "/v1/classes/%20/scores?period=2024-02", "class_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(app, http.MethodGet, tt.path)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			var fields map[string]string
			decode(t, rec, &fields)
			assert.Contains(t, fields, tt.wantField)
		})
	}
	assert.Zero(t, fb.CallCount("roster"), "bad params never reach the backend")
}

func TestServer_attendance(t *testing.T) {
	rec := serve(newTestServer(t, testutil.NewFakeBackend()), http.MethodGet, "/v1/classes/c1/attendance?month=2024-02")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp AttendanceResponse
	decode(t, rec, &resp)
	assert.Equal(t, "2024-02", resp.Month)
	assert.Len(t, resp.Days, 29)
	require.Len(t, resp.Summaries, 3)
	assert.Equal(t, "Amani Kabila", resp.Summaries[0].Name)
	assert.Equal(t, 3, resp.Summaries[0].Tallies.Total())
	assert.Equal(t, 0, resp.Summaries[2].Tallies.Total())

	assert.Equal(t, 2, resp.Totals.Present)
	assert.Equal(t, 1, resp.Totals.Late)
	assert.Equal(t, 1, resp.Totals.Absent)
	assert.Equal(t, 1, resp.Totals.Permission)

	assert.Len(t, resp.Table.Columns, 2+29+4)
	assert.Equal(t, "attendance_c1_2024-02", resp.Table.Filename)
}

func TestServer_exportAttendance(t *testing.T) {
	app := newTestServer(t, testutil.NewFakeBackend())

	t.Run("xlsx", func(t *testing.T) {
		rec := serve(app, http.MethodGet, "/v1/classes/c1/attendance/export?month=2024-02&format=xlsx&class_name=Grade+7A")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="attendance_Grade-7A_2024-02.xlsx"`, rec.Header().Get("Content-Disposition"))

		f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows("Sheet1")
		require.NoError(t, err)
		require.Len(t, rows, 3+3, "title, subtitle, header and one row per student")
		assert.Equal(t, "Attendance", rows[0][0])
		assert.Equal(t, "Amani Kabila", rows[3][1])
	})

	t.Run("pdf by default", func(t *testing.T) {
		rec := serve(app, http.MethodGet, "/v1/classes/c1/attendance/export?month=2024-02")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
	})

	t.Run("txt", func(t *testing.T) {
		rec := serve(app, http.MethodGet, "/v1/classes/c1/scores/export?subject=math&period=2024-02&format=txt")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
		assert.Contains(t, rec.Body.String(), "Chausiku Ilunga")
		assert.Contains(t, rec.Body.String(), "No Score")
	})

	t.Run("pdf cannot encode the names", func(t *testing.T) {
		fb := testutil.NewFakeBackend()
		fb.Students[testutil.ClassID][0].LastName = "សុខា"
		app := newTestServer(t, fb)

		rec := serve(app, http.MethodGet, "/v1/classes/c1/attendance/export?month=2024-02&format=pdf")
		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), `"format"`)

		rec = serve(app, http.MethodGet, "/v1/classes/c1/attendance/export?month=2024-02&format=xlsx")
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})
}

func TestServer_publish(t *testing.T) {
	fb := testutil.NewFakeBackend()
	app := newTestServer(t, fb)

	rec := serve(app, http.MethodPost, "/v1/classes/c1/results", []byte(`{"subject_id":"math","period":"2024-02","dry_run":true}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Zero(t, fb.CallCount("submit"), "a dry run sends nothing")

	rec = serve(app, http.MethodPost, "/v1/classes/c1/results", []byte(`{"subject_id":"math","period":"2024-02"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sub publish.Submission
	decode(t, rec, &sub)
	assert.Equal(t, "c1", sub.ClassID)
	assert.Equal(t, "2024-02", sub.AcademicPeriod)
	require.Len(t, sub.Results, 2, "students without a score are not published")
	assert.Equal(t, publish.Entry{StudentID: "s1", Score: 5, Grade: grading.GradeE, ResultType: publish.DefaultResultType}, sub.Results[0])

	require.Len(t, fb.Submissions, 1)
	assert.Equal(t, sub, fb.Submissions[0])
}

func TestServer_publish_rejected(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"all subjects", `{"subject_id":"all","period":"2024-02"}`, "subject_id"},
		{"blank subject", `{"subject_id":" ","period":"Semester 1"}`, "subject_id"},
		{"bad period", `{"subject_id":"math","period":"Q1"}`, "period"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := testutil.NewFakeBackend()
			rec := serve(newTestServer(t, fb), http.MethodPost, "/v1/classes/c1/results", []byte(tt.body))
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			var fields map[string]string
			decode(t, rec, &fields)
			assert.Contains(t, fields, tt.wantField)
			assert.Zero(t, fb.CallCount("submit"))
		})
	}
}

func TestServer_backendErrors(t *testing.T) {
	t.Run("network", func(t *testing.T) {
		fb := testutil.NewFakeBackend()
		fb.Hook = func(ctx context.Context, op string) error {
			return core.NewNetworkError("GET /students", http.StatusServiceUnavailable, "maintenance", nil)
		}
		rec := serve(newTestServer(t, fb), http.MethodGet, "/v1/classes/c1/scores?period=2024-02")
		require.Equal(t, http.StatusBadGateway, rec.Code)

		var body map[string]interface{}
		decode(t, rec, &body)
		assert.Equal(t, float64(http.StatusServiceUnavailable), body["upstream_status"])
	})

	t.Run("data shape", func(t *testing.T) {
		fb := testutil.NewFakeBackend()
		fb.ScoreData[testutil.ClassID] = append(fb.ScoreData[testutil.ClassID], grading.AssessmentRecord{
			StudentID: "s2", SubjectID: "math", AssessmentType: "Quiz", Score: 11, Date: testutil.Date(2024, 2, 20),
		})
		rec := serve(newTestServer(t, fb), http.MethodGet, "/v1/classes/c1/scores?subject=math&period=2024-02")
		require.Equal(t, http.StatusBadGateway, rec.Code)

		var body map[string]interface{}
		decode(t, rec, &body)
		assert.Equal(t, "s2", body["student_id"])
		assert.Equal(t, "score", body["field"])
	})
}

// The bearer token of the caller reaches the backend REST API untouched.
func TestServer_forwardsToken(t *testing.T) {
	fb := testutil.NewFakeBackend()
	srv := testutil.NewBackendServer(t, fb, token)
	defer srv.Close()

	app := newTestServer(t, backend.NewClient(backend.Options{BaseURL: srv.URL}))

	rec := serve(app, http.MethodGet, "/v1/classes/c1/scores?subject=math&period=2024-02")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ScoreResponse
	decode(t, rec, &resp)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, 5.0, *resp.Results[0].Score)

	req, rec := newAuthRequest(http.MethodGet, "/v1/classes", "not-"+token)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, float64(http.StatusUnauthorized), body["upstream_status"])
}
