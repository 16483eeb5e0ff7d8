package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Table is one CREATE TABLE IF NOT EXISTS statement.
type Table struct {
	Name string
	DDL  string
}

// Schema lists extensions and tables in creation order. Tables that
// reference others come after them.
type Schema struct {
	Extensions []string
	Tables     []Table
}

// TableStatus reports whether a required table exists.
type TableStatus struct {
	Name   string
	Exists bool
}

const (
	createPatients = `CREATE TABLE IF NOT EXISTS patients (
    id SERIAL PRIMARY KEY,
    first_name VARCHAR(100) NOT NULL,
    last_name VARCHAR(100) NOT NULL,
    dob DATE NOT NULL,
    phone VARCHAR(20) NOT NULL,
    email VARCHAR(255),
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

	createAppointments = `CREATE TABLE IF NOT EXISTS appointments (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    patient_id INTEGER REFERENCES patients(id),
    appointment_date TIMESTAMP NOT NULL,
    purpose TEXT,
    status VARCHAR(20) DEFAULT 'scheduled',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

	createTreatments = `CREATE TABLE IF NOT EXISTS treatments (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    patient_id INTEGER REFERENCES patients(id),
    condition TEXT NOT NULL,
    symptoms TEXT,
    ai_analysis JSONB,
    treatment_plan JSONB,
    status VARCHAR(20) DEFAULT 'active',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

	createMedicalHistory = `CREATE TABLE IF NOT EXISTS medical_history (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    patient_id INTEGER REFERENCES patients(id),
    visit_date TIMESTAMP NOT NULL,
    diagnosis TEXT,
    treatment TEXT,
    notes TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`
)

// DefaultSchema is the patient records schema.
func DefaultSchema() Schema {
	return Schema{
		Extensions: []string{`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`},
		Tables: []Table{
			{Name: "patients", DDL: createPatients},
			{Name: "appointments", DDL: createAppointments},
			{Name: "treatments", DDL: createTreatments},
			{Name: "medical_history", DDL: createMedicalHistory},
		},
	}
}

// TableNames returns the table names in creation order.
func (s Schema) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	return names
}

// Provisioner creates the schema idempotently.
type Provisioner struct {
	db     Querier
	schema Schema
	logger zerolog.Logger
}

func NewProvisioner(db Querier, schema Schema, logger zerolog.Logger) *Provisioner {
	return &Provisioner{
		db:     db,
		schema: schema,
		logger: logger.With().Str("component", "schema").Logger(),
	}
}

// Provision verifies connectivity, creates extensions and tables in order,
// then checks that every table is present. It reports false on the first
// failure and leaves whatever was already created in place.
func (p *Provisioner) Provision(ctx context.Context) bool {
	if err := p.provision(ctx); err != nil {
		p.logger.Error().Err(err).Msg("database setup failed")
		return false
	}
	p.logger.Info().Strs("tables", p.schema.TableNames()).Msg("database schema ready")
	return true
}

func (p *Provisioner) provision(ctx context.Context) error {
	var one int
	if _, err := p.db.QueryRow(ctx, "SELECT 1", nil, &one); err != nil {
		return fmt.Errorf("verify connection: %w", err)
	}

	for _, ext := range p.schema.Extensions {
		if _, err := p.db.Exec(ctx, ext); err != nil {
			return fmt.Errorf("create extension: %w", err)
		}
	}

	for _, t := range p.schema.Tables {
		if _, err := p.db.Exec(ctx, t.DDL); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
		p.logger.Debug().Str("table", t.Name).Msg("table ensured")
	}

	statuses, err := p.Status(ctx)
	if err != nil {
		return err
	}
	var missing []string
	for _, s := range statuses {
		if !s.Exists {
			missing = append(missing, s.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("tables missing after creation: %v", missing)
	}
	return nil
}

// Status reports, for every table in the schema, whether it exists in the
// current schema.
func (p *Provisioner) Status(ctx context.Context) ([]TableStatus, error) {
	names := p.schema.TableNames()

	var present map[string]bool
	err := p.db.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = current_schema() AND table_name = ANY($1)`,
		[]any{names},
		func(rows pgx.Rows) error {
			present = make(map[string]bool, len(names))
			for rows.Next() {
				var name string
				if err := rows.Scan(&name); err != nil {
					return fmt.Errorf("scan table name: %w", err)
				}
				present[name] = true
			}
			return rows.Err()
		},
	)
	if err != nil {
		return nil, fmt.Errorf("query table status: %w", err)
	}

	statuses := make([]TableStatus, len(names))
	for i, name := range names {
		statuses[i] = TableStatus{Name: name, Exists: present[name]}
	}
	return statuses, nil
}
