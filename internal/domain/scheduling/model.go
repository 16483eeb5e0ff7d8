package scheduling

import (
	"time"

	"github.com/google/uuid"
)

const StatusScheduled = "scheduled"

// Appointment maps to the appointments table.
type Appointment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   int64     `db:"patient_id" json:"patient_id"`
	ScheduledAt time.Time `db:"appointment_date" json:"appointment_date"`
	Purpose     string    `db:"purpose" json:"purpose"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
