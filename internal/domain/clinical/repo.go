package clinical

import (
	"context"

	"github.com/google/uuid"
)

// TreatmentRepository persists treatments with their generated documents.
// A stored document that cannot be decoded is replaced by a corrupt marker
// instead of failing the listing.
type TreatmentRepository interface {
	Create(ctx context.Context, t *Treatment) (uuid.UUID, error)
	// ListByPatient returns the patient's treatments, newest first.
	ListByPatient(ctx context.Context, patientID int64) ([]*Treatment, error)
}
