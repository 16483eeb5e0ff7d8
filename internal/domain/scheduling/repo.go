package scheduling

import (
	"context"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) (uuid.UUID, error)
	// ListByPatient returns the patient's appointments, earliest first.
	ListByPatient(ctx context.Context, patientID int64) ([]*Appointment, error)
}
