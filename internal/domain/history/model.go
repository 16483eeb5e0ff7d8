package history

import (
	"time"

	"github.com/google/uuid"
)

// Record maps to the medical_history table: one past visit.
type Record struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID int64     `db:"patient_id" json:"patient_id"`
	VisitDate time.Time `db:"visit_date" json:"visit_date"`
	Diagnosis string    `db:"diagnosis" json:"diagnosis"`
	Treatment string    `db:"treatment" json:"treatment"`
	Notes     string    `db:"notes" json:"notes"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
