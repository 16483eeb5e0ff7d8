package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ehr/patientmgr/internal/platform/db"
)

type patientRepoPG struct {
	db db.Querier
}

func NewPatientRepo(q db.Querier) PatientRepository {
	return &patientRepoPG{db: q}
}

const patientCols = `id, first_name, last_name, dob, phone, email, created_at, updated_at`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) (int64, error) {
	found, err := r.db.QueryRow(ctx, `
		INSERT INTO patients (first_name, last_name, dob, phone, email)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		[]any{p.FirstName, p.LastName, p.DateOfBirth, p.Phone, p.Email},
		&p.ID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("patient create: %w", err)
	}
	if !found {
		return 0, fmt.Errorf("patient create: no id returned")
	}
	return p.ID, nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	var p Patient
	found, err := r.db.QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = $1`,
		[]any{id},
		&p.ID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Phone, &p.Email, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("patient get by id: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, id int64, u PatientUpdate) (bool, error) {
	cols, args := u.assignments()
	if len(cols) == 0 {
		return false, nil
	}

	sets := make([]string, 0, len(cols)+1)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	tag, err := r.db.Exec(ctx,
		fmt.Sprintf(`UPDATE patients SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args)),
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("patient update: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("patient delete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *patientRepoPG) List(ctx context.Context) ([]*Patient, error) {
	var patients []*Patient
	err := r.db.Query(ctx,
		`SELECT `+patientCols+` FROM patients ORDER BY last_name, first_name`,
		nil,
		func(rows pgx.Rows) error {
			var err error
			patients, err = pgx.CollectRows(rows, scanPatient)
			return err
		},
	)
	if err != nil {
		return nil, fmt.Errorf("patient list: %w", err)
	}
	return patients, nil
}

func scanPatient(row pgx.CollectableRow) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Phone, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
