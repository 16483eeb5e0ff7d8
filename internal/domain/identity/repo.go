package identity

import (
	"context"
)

// PatientRepository persists patients. GetByID returns nil, nil for an
// unknown id; Update and Delete report whether a row was affected.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) (int64, error)
	GetByID(ctx context.Context, id int64) (*Patient, error)
	Update(ctx context.Context, id int64, u PatientUpdate) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context) ([]*Patient, error)
}
