package clinical

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/patientmgr/pkg/document"
)

const StatusActive = "active"

// Treatment maps to the treatments table. Analysis and Plan are stored as
// JSONB and may be nil or degraded.
type Treatment struct {
	ID        uuid.UUID
	PatientID int64
	Condition string
	Symptoms  string
	Analysis  document.Document
	Plan      document.Document
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type treatmentJSON struct {
	ID        uuid.UUID      `json:"id"`
	PatientID int64          `json:"patient_id"`
	Condition string         `json:"condition"`
	Symptoms  string         `json:"symptoms"`
	Analysis  *document.View `json:"ai_analysis,omitempty"`
	Plan      *document.View `json:"treatment_plan,omitempty"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (t *Treatment) MarshalJSON() ([]byte, error) {
	return json.Marshal(treatmentJSON{
		ID:        t.ID,
		PatientID: t.PatientID,
		Condition: t.Condition,
		Symptoms:  t.Symptoms,
		Analysis:  document.ToView(t.Analysis),
		Plan:      document.ToView(t.Plan),
		Status:    t.Status,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	})
}
