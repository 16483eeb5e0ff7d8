package history

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/patientmgr/internal/platform/db"
)

type recordRepoPG struct {
	db db.Querier
}

func NewRecordRepo(q db.Querier) RecordRepository {
	return &recordRepoPG{db: q}
}

const recordCols = `id, patient_id, visit_date,
	COALESCE(diagnosis, ''), COALESCE(treatment, ''), COALESCE(notes, ''), created_at`

func (r *recordRepoPG) Create(ctx context.Context, rec *Record) (uuid.UUID, error) {
	found, err := r.db.QueryRow(ctx, `
		INSERT INTO medical_history (patient_id, visit_date, diagnosis, treatment, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		[]any{rec.PatientID, rec.VisitDate, rec.Diagnosis, rec.Treatment, rec.Notes},
		&rec.ID, &rec.CreatedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("medical history create: %w", err)
	}
	if !found {
		return uuid.Nil, fmt.Errorf("medical history create: no id returned")
	}
	return rec.ID, nil
}

func (r *recordRepoPG) ListByPatient(ctx context.Context, patientID int64) ([]*Record, error) {
	var records []*Record
	err := r.db.Query(ctx,
		`SELECT `+recordCols+` FROM medical_history WHERE patient_id = $1 ORDER BY visit_date DESC`,
		[]any{patientID},
		func(rows pgx.Rows) error {
			var err error
			records, err = pgx.CollectRows(rows, scanRecord)
			return err
		},
	)
	if err != nil {
		return nil, fmt.Errorf("medical history list: %w", err)
	}
	return records, nil
}

func scanRecord(row pgx.CollectableRow) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.PatientID, &rec.VisitDate, &rec.Diagnosis, &rec.Treatment, &rec.Notes, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
