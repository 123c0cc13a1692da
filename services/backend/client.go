// Package backend is the REST client of the school-management backend. Every response is
// normalized into the core record types right here, so nothing downstream deals with the
// backend's loosely-shaped payloads.
package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/sendgrid/rest"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/attendance"
	"github.com/trezcool/ripoti/core/grading"
	"github.com/trezcool/ripoti/core/publish"
	"github.com/trezcool/ripoti/core/reporting"
	"github.com/trezcool/ripoti/core/roster"
)

const (
	studentsPath       = "/students"
	scoresPath         = "/scores"
	attendancePath     = "/attendance"
	resultsPath        = "/academic-results"
	teacherClassesPath = "/classes/teacher/me"

	dateLayout   = "2006-01-02"
	maxErrorBody = 512
)

type ctxKey int

const tokenKey ctxKey = iota

// WithToken returns a copy of ctx carrying the bearer token to forward to the backend.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFrom returns the token set by WithToken.
func TokenFrom(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(tokenKey).(string)
	return tok, ok && tok != ""
}

type Options struct {
	BaseURL    string
	Token      string // used when the request context carries none
	Timeout    time.Duration
	HTTPClient *http.Client
	Validate   *validator.Validate
	Translator ut.Translator
}

type Client struct {
	rest       *rest.Client
	baseURL    string
	token      string
	validate   *validator.Validate
	translator ut.Translator
}

var _ reporting.Backend = (*Client)(nil)

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	translator := opts.Translator
	if translator == nil {
		translator = core.NewTranslator()
	}
	validate := opts.Validate
	if validate == nil {
		validate = core.NewValidator(translator)
	}
	return &Client{
		rest:       &rest.Client{HTTPClient: httpClient},
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		validate:   validate,
		translator: translator,
	}
}

func (c *Client) headers(ctx context.Context) map[string]string {
	hdrs := map[string]string{"Accept": "application/json"}
	token, ok := TokenFrom(ctx)
	if !ok {
		token = c.token
	}
	if token != "" {
		hdrs["Authorization"] = "Bearer " + token
	}
	return hdrs
}

// send performs one request and turns transport failures and non-2xx statuses into *core.NetworkError.
func (c *Client) send(ctx context.Context, method rest.Method, path string, query map[string]string, body []byte) (*rest.Response, error) {
	op := string(method) + " " + path
	hdrs := c.headers(ctx)
	if body != nil {
		hdrs["Content-Type"] = "application/json"
	}
	resp, err := c.rest.SendWithContext(ctx, rest.Request{
		Method:      method,
		BaseURL:     c.baseURL + path,
		Headers:     hdrs,
		QueryParams: query,
		Body:        body,
	})
	if err != nil {
		return nil, core.NewNetworkError(op, 0, "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := resp.Body
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, core.NewNetworkError(op, resp.StatusCode, strings.TrimSpace(msg), nil)
	}
	return resp, nil
}

func (c *Client) Roster(ctx context.Context, classID string) ([]roster.Student, error) {
	resp, err := c.send(ctx, rest.Get, studentsPath, map[string]string{"class_id": classID}, nil)
	if err != nil {
		return nil, err
	}
	return c.decodeStudents([]byte(resp.Body))
}

// Scores fetches the records of the queried window. Monthly windows are sent as
// date_from/date_to, semesters as academic_period; "all" subjects sends no subject_id.
func (c *Client) Scores(ctx context.Context, q reporting.ScoreQuery) ([]grading.AssessmentRecord, error) {
	query := q.Window.Query()
	query["class_id"] = q.ClassID
	if !roster.IsAllSubjects(q.SubjectID) {
		query["subject_id"] = strings.TrimSpace(q.SubjectID)
	}
	resp, err := c.send(ctx, rest.Get, scoresPath, query, nil)
	if err != nil {
		return nil, err
	}
	return c.decodeScores([]byte(resp.Body))
}

func (c *Client) Attendance(ctx context.Context, q reporting.AttendanceQuery) ([]attendance.Record, error) {
	query := map[string]string{"class_id": q.ClassID}
	if !q.Month.IsZero() {
		query["date_from"] = q.Month.First().Format(dateLayout)
		query["date_to"] = q.Month.Last().Format(dateLayout)
	}
	resp, err := c.send(ctx, rest.Get, attendancePath, query, nil)
	if err != nil {
		return nil, err
	}
	return c.decodeAttendance([]byte(resp.Body))
}

func (c *Client) TeacherClasses(ctx context.Context) ([]roster.Class, error) {
	resp, err := c.send(ctx, rest.Get, teacherClassesPath, nil, nil)
	if err != nil {
		return nil, err
	}
	return c.decodeClasses([]byte(resp.Body))
}

func (c *Client) SubmitResults(ctx context.Context, sub publish.Submission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	_, err = c.send(ctx, rest.Post, resultsPath, nil, body)
	return err
}
