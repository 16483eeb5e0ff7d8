package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/patientmgr/internal/platform/db"
)

type appointmentRepoPG struct {
	db db.Querier
}

func NewAppointmentRepo(q db.Querier) AppointmentRepository {
	return &appointmentRepoPG{db: q}
}

const appointmentCols = `id, patient_id, appointment_date, COALESCE(purpose, ''), status, created_at`

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) (uuid.UUID, error) {
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	found, err := r.db.QueryRow(ctx, `
		INSERT INTO appointments (patient_id, appointment_date, purpose, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		[]any{a.PatientID, a.ScheduledAt, a.Purpose, a.Status},
		&a.ID, &a.CreatedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("appointment create: %w", err)
	}
	if !found {
		return uuid.Nil, fmt.Errorf("appointment create: no id returned")
	}
	return a.ID, nil
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID int64) ([]*Appointment, error) {
	var appointments []*Appointment
	err := r.db.Query(ctx,
		`SELECT `+appointmentCols+` FROM appointments WHERE patient_id = $1 ORDER BY appointment_date`,
		[]any{patientID},
		func(rows pgx.Rows) error {
			var err error
			appointments, err = pgx.CollectRows(rows, scanAppointment)
			return err
		},
	)
	if err != nil {
		return nil, fmt.Errorf("appointment list: %w", err)
	}
	return appointments, nil
}

func scanAppointment(row pgx.CollectableRow) (*Appointment, error) {
	var a Appointment
	if err := row.Scan(&a.ID, &a.PatientID, &a.ScheduledAt, &a.Purpose, &a.Status, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
