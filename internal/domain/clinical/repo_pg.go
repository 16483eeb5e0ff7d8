package clinical

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/ehr/patientmgr/internal/platform/db"
	"github.com/ehr/patientmgr/pkg/document"
)

type treatmentRepoPG struct {
	db     db.Querier
	logger zerolog.Logger
}

func NewTreatmentRepo(q db.Querier, logger zerolog.Logger) TreatmentRepository {
	return &treatmentRepoPG{
		db:     q,
		logger: logger.With().Str("component", "treatments").Logger(),
	}
}

const treatmentCols = `id, patient_id, condition, COALESCE(symptoms, ''), ai_analysis, treatment_plan,
	status, created_at, updated_at`

// treatmentRow holds a row before its documents are decoded.
type treatmentRow struct {
	Treatment
	rawAnalysis []byte
	rawPlan     []byte
}

func (r *treatmentRepoPG) Create(ctx context.Context, t *Treatment) (uuid.UUID, error) {
	analysis, err := document.Encode(t.Analysis)
	if err != nil {
		return uuid.Nil, fmt.Errorf("treatment create: encode analysis: %w", err)
	}
	plan, err := document.Encode(t.Plan)
	if err != nil {
		return uuid.Nil, fmt.Errorf("treatment create: encode plan: %w", err)
	}
	if t.Status == "" {
		t.Status = StatusActive
	}

	found, err := r.db.QueryRow(ctx, `
		INSERT INTO treatments (patient_id, condition, symptoms, ai_analysis, treatment_plan, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		[]any{t.PatientID, t.Condition, t.Symptoms, analysis, plan, t.Status},
		&t.ID, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("treatment create: %w", err)
	}
	if !found {
		return uuid.Nil, fmt.Errorf("treatment create: no id returned")
	}
	return t.ID, nil
}

func (r *treatmentRepoPG) ListByPatient(ctx context.Context, patientID int64) ([]*Treatment, error) {
	var raw []*treatmentRow
	err := r.db.Query(ctx,
		`SELECT `+treatmentCols+` FROM treatments WHERE patient_id = $1 ORDER BY created_at DESC`,
		[]any{patientID},
		func(rows pgx.Rows) error {
			var err error
			raw, err = pgx.CollectRows(rows, scanTreatment)
			return err
		},
	)
	if err != nil {
		return nil, fmt.Errorf("treatment list: %w", err)
	}

	treatments := make([]*Treatment, 0, len(raw))
	for _, row := range raw {
		t := row.Treatment
		t.Analysis = r.decode(t.ID, "AI analysis", row.rawAnalysis)
		t.Plan = r.decode(t.ID, "treatment plan", row.rawPlan)
		treatments = append(treatments, &t)
	}
	return treatments, nil
}

// decode turns a stored JSONB value into a Document. Unreadable data yields
// a corrupt marker so one bad record cannot hide the rest.
func (r *treatmentRepoPG) decode(id uuid.UUID, field string, data []byte) document.Document {
	doc, err := document.Decode(data)
	if err != nil {
		r.logger.Warn().Err(err).
			Str("treatment_id", id.String()).
			Str("field", field).
			Msg("stored document could not be decoded")
		return document.Corrupt(field)
	}
	return doc
}

func scanTreatment(row pgx.CollectableRow) (*treatmentRow, error) {
	var t treatmentRow
	err := row.Scan(
		&t.ID, &t.PatientID, &t.Condition, &t.Symptoms, &t.rawAnalysis, &t.rawPlan,
		&t.Status, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
