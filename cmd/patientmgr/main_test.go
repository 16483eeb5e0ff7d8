package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/ehr/patientmgr/internal/config"
	"github.com/ehr/patientmgr/internal/domain/care"
	"github.com/ehr/patientmgr/internal/domain/clinical"
	"github.com/ehr/patientmgr/internal/domain/history"
	"github.com/ehr/patientmgr/internal/domain/identity"
	"github.com/ehr/patientmgr/internal/domain/scheduling"
	"github.com/ehr/patientmgr/internal/platform/ai"
	"github.com/ehr/patientmgr/internal/platform/db"
	"github.com/ehr/patientmgr/internal/platform/db/dbtest"
	"github.com/ehr/patientmgr/internal/platform/telemetry"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

// newTestApp builds an app over a scripted querier with no AI key.
func newTestApp(q *dbtest.Querier) *app {
	logger := zerolog.Nop()
	return &app{
		cfg: &config.Config{
			Port:           "0",
			BodyLimit:      "1M",
			AITimeout:      time.Second,
			RequestTimeout: time.Minute,
		},
		logger:      logger,
		metrics:     telemetry.New(),
		health:      fakePinger{},
		provisioner: db.NewProvisioner(q, db.DefaultSchema(), logger),
		svc: care.NewService(
			identity.NewPatientRepo(q),
			scheduling.NewAppointmentRepo(q),
			clinical.NewTreatmentRepo(q, logger),
			history.NewRecordRepo(q),
			ai.New(nil, logger),
			logger,
		),
	}
}

// openRecorder hands out a and records each provision flag it was asked for.
type openRecorder struct {
	app       *app
	err       error
	provision []bool
	closed    int
}

func (o *openRecorder) open(_ context.Context, provision bool) (*app, error) {
	o.provision = append(o.provision, provision)
	if o.err != nil {
		return nil, o.err
	}
	o.app.close = func() { o.closed++ }
	return o.app, nil
}

func run(o *openRecorder, args ...string) (string, error) {
	root := newRootCmd(o.open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func patientRow(id int64, first, last string) []any {
	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	dob := time.Date(1815, 12, 10, 0, 0, 0, 0, time.UTC)
	return []any{id, first, last, dob, "555-0100", (*string)(nil), now, now}
}

func TestPatientAdd(t *testing.T) {
	q := &dbtest.Querier{
		QueryRowFn: func(sql string, args []any) ([]any, error) {
			now := time.Now()
			return []any{int64(7), now, now}, nil
		},
	}
	o := &openRecorder{app: newTestApp(q)}

	out, err := run(o, "patient", "add",
		"--first-name", "Ada", "--last-name", "Lovelace", "--dob", "1815-12-10", "--phone", "555-0100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Patient added successfully with ID: 7") {
		t.Errorf("unexpected output: %q", out)
	}
	if len(o.provision) != 1 || !o.provision[0] {
		t.Errorf("expected one provisioned open, got %v", o.provision)
	}
	if o.closed != 1 {
		t.Errorf("expected connection released once, got %d", o.closed)
	}
}

func TestPatientAdd_BadDate(t *testing.T) {
	o := &openRecorder{app: newTestApp(&dbtest.Querier{})}

	_, err := run(o, "patient", "add",
		"--first-name", "Ada", "--last-name", "Lovelace", "--dob", "10/12/1815", "--phone", "555-0100")
	if err == nil || !strings.Contains(err.Error(), "--dob") {
		t.Fatalf("expected dob error, got %v", err)
	}
	if len(o.provision) != 0 {
		t.Error("expected no database work for invalid input")
	}
}

func TestPatientGet_NotFound(t *testing.T) {
	o := &openRecorder{app: newTestApp(&dbtest.Querier{})}

	_, err := run(o, "patient", "get", "42")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	if o.closed != 1 {
		t.Errorf("expected connection released on failure, got %d", o.closed)
	}
}

func TestPatientUpdate_NoFields(t *testing.T) {
	o := &openRecorder{app: newTestApp(&dbtest.Querier{})}

	_, err := run(o, "patient", "update", "1", "--phone", "   ")
	if err == nil || !strings.Contains(err.Error(), "no fields to update") {
		t.Fatalf("expected no fields error, got %v", err)
	}
	if len(o.provision) != 0 {
		t.Error("expected no database work for an empty update")
	}
}

func TestPatientUpdate_OnlyNonEmptyFlags(t *testing.T) {
	q := &dbtest.Querier{}
	o := &openRecorder{app: newTestApp(q)}

	if _, err := run(o, "patient", "update", "3", "--phone", "555-0199", "--first-name", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	call := q.LastCall()
	if !strings.Contains(call.SQL, "phone = $1") || strings.Contains(call.SQL, "first_name") {
		t.Errorf("unexpected update statement: %s", call.SQL)
	}
	if len(call.Args) != 2 || call.Args[0] != "555-0199" || call.Args[1] != int64(3) {
		t.Errorf("unexpected args: %v", call.Args)
	}
}

func TestPatientList(t *testing.T) {
	q := &dbtest.Querier{
		QueryFn: func(sql string, args []any) (*dbtest.Rows, error) {
			return dbtest.NewRows(patientRow(2, "Charles", "Babbage"), patientRow(1, "Ada", "Lovelace")), nil
		},
	}
	o := &openRecorder{app: newTestApp(q)}

	out, err := run(o, "patient", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	babbage := strings.Index(out, "Charles Babbage")
	lovelace := strings.Index(out, "Ada Lovelace")
	if babbage < 0 || lovelace < 0 || babbage > lovelace {
		t.Errorf("expected both patients in order, got %q", out)
	}
}

func TestPatientList_Search(t *testing.T) {
	q := &dbtest.Querier{
		QueryFn: func(sql string, args []any) (*dbtest.Rows, error) {
			return dbtest.NewRows(patientRow(2, "Charles", "Babbage"), patientRow(1, "Ada", "Lovelace")), nil
		},
	}
	o := &openRecorder{app: newTestApp(q)}

	out, err := run(o, "patient", "list", "--search", "lovelace")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Ada Lovelace") || strings.Contains(out, "Babbage") {
		t.Errorf("expected only the matching patient, got %q", out)
	}

	out, err = run(o, "patient", "list", "--search", "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No patients found.") {
		t.Errorf("expected empty result message, got %q", out)
	}
}

func TestAppointmentSchedule_UnknownPatient(t *testing.T) {
	q := &dbtest.Querier{}
	o := &openRecorder{app: newTestApp(q)}

	_, err := run(o, "appointment", "schedule", "9", "--date", "2024-03-01 09:30")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	for _, c := range q.Calls {
		if strings.Contains(c.SQL, "INSERT INTO appointments") {
			t.Error("expected no appointment insert for unknown patient")
		}
	}
}

func TestTreatmentAdd_WithoutAI(t *testing.T) {
	q := &dbtest.Querier{
		QueryRowFn: func(sql string, args []any) ([]any, error) {
			if strings.Contains(sql, "INSERT INTO treatments") {
				now := time.Now()
				return []any{uuid.New(), now, now}, nil
			}
			return patientRow(1, "Ada", "Lovelace"), nil
		},
	}
	o := &openRecorder{app: newTestApp(q)}

	out, err := run(o, "treatment", "add", "1", "--condition", "Flu", "--symptoms", "fever")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"AI ANALYSIS",
		"AI analysis unavailable - no API key configured",
		"AI treatment plan unavailable - no API key configured",
		"Treatment added successfully",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestTreatmentAdd_SaveFailure(t *testing.T) {
	q := &dbtest.Querier{
		QueryRowFn: func(sql string, args []any) ([]any, error) {
			if strings.Contains(sql, "INSERT INTO treatments") {
				return nil, &db.ConnectionError{Attempts: db.MaxAttempts, Err: errors.New("connection reset")}
			}
			return patientRow(1, "Ada", "Lovelace"), nil
		},
	}
	o := &openRecorder{app: newTestApp(q)}

	out, err := run(o, "treatment", "add", "1", "--condition", "Flu", "--symptoms", "fever")
	if err == nil || !strings.Contains(err.Error(), "failed to save treatment") {
		t.Fatalf("expected save failure, got %v", err)
	}
	if !strings.Contains(out, "TREATMENT PLAN") {
		t.Errorf("expected documents shown even when not saved, got %q", out)
	}
}

func TestSchemaStatus(t *testing.T) {
	q := &dbtest.Querier{
		QueryFn: func(sql string, args []any) (*dbtest.Rows, error) {
			return dbtest.NewRows([]any{"patients"}, []any{"appointments"}), nil
		},
	}
	o := &openRecorder{app: newTestApp(q)}

	out, err := run(o, "schema", "status")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(o.provision) != 1 || o.provision[0] {
		t.Errorf("expected an unprovisioned open, got %v", o.provision)
	}
	for _, want := range []string{"patients             present", "treatments           missing"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestSchemaApply_Failure(t *testing.T) {
	q := &dbtest.Querier{
		ExecFn: func(sql string, args []any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, errors.New("permission denied to create extension")
		},
	}
	o := &openRecorder{app: newTestApp(q)}

	_, err := run(o, "schema", "apply")
	if !errors.Is(err, errSetupFailed) {
		t.Fatalf("expected setup failure, got %v", err)
	}
}

func TestOpenFailure(t *testing.T) {
	o := &openRecorder{err: errSetupFailed}

	_, err := run(o, "patient", "list")
	if !errors.Is(err, errSetupFailed) {
		t.Fatalf("expected setup failure, got %v", err)
	}
}

func TestServer_Routes(t *testing.T) {
	q := &dbtest.Querier{
		QueryFn: func(sql string, args []any) (*dbtest.Rows, error) {
			return dbtest.NewRows(patientRow(1, "Ada", "Lovelace")), nil
		},
	}
	e := newServer(newTestApp(q))

	tests := []struct {
		path string
		want int
		body string
	}{
		{"/health", http.StatusOK, `"status":"healthy"`},
		{"/api/v1/patients", http.StatusOK, `"last_name":"Lovelace"`},
		{"/metrics", http.StatusOK, "http_requests_total"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.body) {
				t.Errorf("expected %q in body: %s", tt.body, rec.Body.String())
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("expected request id header")
			}
		})
	}
}

func TestNewLogger_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			if got := newLogger(&buf, "production", tt.level).GetLevel(); got != tt.want {
				t.Errorf("newLogger(%q) level = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}
