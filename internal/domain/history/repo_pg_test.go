package history

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/patientmgr/internal/platform/db/dbtest"
)

func TestRecordRepo_Create(t *testing.T) {
	id := uuid.New()
	q := &dbtest.Querier{
		QueryRowFn: func(sql string, args []any) ([]any, error) {
			return []any{id, time.Now()}, nil
		},
	}
	repo := NewRecordRepo(q)

	rec := &Record{
		PatientID: 2,
		VisitDate: time.Date(2023, 11, 20, 10, 0, 0, 0, time.UTC),
		Diagnosis: "Seasonal allergies",
		Treatment: "Antihistamines",
	}
	got, err := repo.Create(context.Background(), rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != id || rec.ID != id {
		t.Errorf("expected id %s, got %s", id, got)
	}

	call := q.LastCall()
	if !strings.Contains(call.SQL, "INSERT INTO medical_history") {
		t.Errorf("unexpected statement: %s", call.SQL)
	}
	if len(call.Args) != 5 || call.Args[2] != "Seasonal allergies" {
		t.Errorf("unexpected args: %v", call.Args)
	}
}

func TestRecordRepo_ListByPatient(t *testing.T) {
	newer := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	older := time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC)
	q := &dbtest.Querier{
		QueryFn: func(sql string, args []any) (*dbtest.Rows, error) {
			return dbtest.NewRows(
				[]any{uuid.New(), int64(2), newer, "Flu", "Rest", "", newer},
				[]any{uuid.New(), int64(2), older, "Sprain", "Ice", "left ankle", older},
			), nil
		},
	}
	repo := NewRecordRepo(q)

	records, err := repo.ListByPatient(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[1].Notes != "left ankle" {
		t.Errorf("expected notes, got %q", records[1].Notes)
	}
	if !strings.Contains(q.LastCall().SQL, "ORDER BY visit_date DESC") {
		t.Errorf("expected most recent visit first, got %s", q.LastCall().SQL)
	}
}
