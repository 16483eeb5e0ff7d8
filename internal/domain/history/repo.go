package history

import (
	"context"

	"github.com/google/uuid"
)

type RecordRepository interface {
	Create(ctx context.Context, r *Record) (uuid.UUID, error)
	// ListByPatient returns the patient's records, most recent visit first.
	ListByPatient(ctx context.Context, patientID int64) ([]*Record, error)
}
