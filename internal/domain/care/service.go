package care

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/patientmgr/internal/domain/clinical"
	"github.com/ehr/patientmgr/internal/domain/history"
	"github.com/ehr/patientmgr/internal/domain/identity"
	"github.com/ehr/patientmgr/internal/domain/scheduling"
	"github.com/ehr/patientmgr/pkg/document"
)

// Advisor produces the advisory documents attached to a treatment. It never
// fails; degraded output is returned as a document.
type Advisor interface {
	AnalyzeSymptoms(ctx context.Context, symptoms string) document.Document
	GeneratePlan(ctx context.Context, condition, history string) document.Document
}

// Service is the boundary used by the CLI and the HTTP API. Its operations
// report plain success or failure; causes are logged, not returned.
type Service struct {
	patients     identity.PatientRepository
	appointments scheduling.AppointmentRepository
	treatments   clinical.TreatmentRepository
	records      history.RecordRepository
	advisor      Advisor
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(
	patients identity.PatientRepository,
	appointments scheduling.AppointmentRepository,
	treatments clinical.TreatmentRepository,
	records history.RecordRepository,
	advisor Advisor,
	logger zerolog.Logger,
) *Service {
	return &Service{
		patients:     patients,
		appointments: appointments,
		treatments:   treatments,
		records:      records,
		advisor:      advisor,
		logger:       logger.With().Str("component", "care").Logger(),
		now:          time.Now,
	}
}

// -- Patients --

// AddPatient registers a patient and returns its id. It reports false when
// a required field is blank or the insert fails. Values are stored as given.
func (s *Service) AddPatient(ctx context.Context, in PatientInput) (int64, bool) {
	if err := validatePatient(in); err != nil {
		s.logger.Warn().Err(err).Msg("rejected patient")
		return 0, false
	}

	p := &identity.Patient{
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		DateOfBirth: in.DateOfBirth,
		Phone:       in.Phone,
		Email:       in.Email,
	}
	id, err := s.patients.Create(ctx, p)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to add patient")
		return 0, false
	}
	s.logger.Info().Int64("patient_id", id).Msg("patient added")
	return id, true
}

// GetPatient returns nil when the patient does not exist or cannot be read.
func (s *Service) GetPatient(ctx context.Context, id int64) *identity.Patient {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Int64("patient_id", id).Msg("failed to get patient")
		return nil
	}
	return p
}

// UpdatePatient writes the set fields of u. An empty update, a blank
// required field or an unknown patient yields false.
func (s *Service) UpdatePatient(ctx context.Context, id int64, u identity.PatientUpdate) bool {
	if u.Empty() {
		return false
	}
	if err := validateUpdate(u); err != nil {
		s.logger.Warn().Err(err).Int64("patient_id", id).Msg("rejected patient update")
		return false
	}

	ok, err := s.patients.Update(ctx, id, u)
	if err != nil {
		s.logger.Error().Err(err).Int64("patient_id", id).Msg("failed to update patient")
		return false
	}
	return ok
}

// DeletePatient removes a patient. A patient still referenced by
// appointments, treatments or history cannot be deleted.
func (s *Service) DeletePatient(ctx context.Context, id int64) bool {
	ok, err := s.patients.Delete(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Int64("patient_id", id).Msg("failed to delete patient")
		return false
	}
	return ok
}

func (s *Service) ListPatients(ctx context.Context) []*identity.Patient {
	patients, err := s.patients.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list patients")
		return nil
	}
	return patients
}

// SearchPatients lists the patients matching query, in list order. A blank
// query returns every patient.
func (s *Service) SearchPatients(ctx context.Context, query string) []*identity.Patient {
	patients := s.ListPatients(ctx)
	query = strings.TrimSpace(query)
	if query == "" {
		return patients
	}
	matched := make([]*identity.Patient, 0, len(patients))
	for _, p := range patients {
		if p.Matches(query) {
			matched = append(matched, p)
		}
	}
	return matched
}

// -- Appointments --

func (s *Service) ScheduleAppointment(ctx context.Context, patientID int64, in AppointmentInput) bool {
	if in.ScheduledAt.IsZero() {
		s.logger.Warn().Int64("patient_id", patientID).Msg("rejected appointment without a date")
		return false
	}

	a := &scheduling.Appointment{
		PatientID:   patientID,
		ScheduledAt: in.ScheduledAt,
		Purpose:     in.Purpose,
		Status:      scheduling.StatusScheduled,
	}
	if _, err := s.appointments.Create(ctx, a); err != nil {
		s.logger.Error().Err(err).Int64("patient_id", patientID).Msg("failed to schedule appointment")
		return false
	}
	return true
}

func (s *Service) ListAppointments(ctx context.Context, patientID int64) []*scheduling.Appointment {
	list, err := s.appointments.ListByPatient(ctx, patientID)
	if err != nil {
		s.logger.Error().Err(err).Int64("patient_id", patientID).Msg("failed to list appointments")
		return nil
	}
	return list
}

// -- Treatments --

// AddTreatment analyses the symptoms, generates a plan and stores both with
// the treatment, in that order. Degraded documents are stored like any
// other. Persisted is false when the record could not be saved; if the
// workflow itself fails, both documents are replaced with system-error
// documents.
func (s *Service) AddTreatment(ctx context.Context, patientID int64, in TreatmentInput) (res TreatmentResult) {
	log := s.logger.With().Int64("patient_id", patientID).Logger()

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprint(r)
			log.Error().Str("panic", msg).Msg("treatment workflow failed")
			res = s.systemFailure(msg)
		}
	}()

	log.Info().Msg("generating AI analysis")
	analysis := s.advisor.AnalyzeSymptoms(ctx, in.Symptoms)
	warnDegraded(log, "AI analysis", analysis)

	log.Info().Msg("generating AI treatment plan")
	plan := s.advisor.GeneratePlan(ctx, in.Condition, in.PatientHistory)
	warnDegraded(log, "treatment plan", plan)

	log.Info().Msg("saving treatment")
	t := &clinical.Treatment{
		PatientID: patientID,
		Condition: in.Condition,
		Symptoms:  in.Symptoms,
		Analysis:  analysis,
		Plan:      plan,
		Status:    clinical.StatusActive,
	}
	if _, err := s.treatments.Create(ctx, t); err != nil {
		log.Error().Err(err).Msg("failed to save treatment")
		return TreatmentResult{Persisted: false, Analysis: analysis, Plan: plan}
	}
	return TreatmentResult{Persisted: true, Analysis: analysis, Plan: plan}
}

func (s *Service) ListTreatments(ctx context.Context, patientID int64) []*clinical.Treatment {
	list, err := s.treatments.ListByPatient(ctx, patientID)
	if err != nil {
		s.logger.Error().Err(err).Int64("patient_id", patientID).Msg("failed to list treatments")
		return nil
	}
	return list
}

// -- Medical history --

func (s *Service) AddMedicalHistory(ctx context.Context, patientID int64, in HistoryInput) bool {
	if in.VisitDate.IsZero() {
		s.logger.Warn().Int64("patient_id", patientID).Msg("rejected history record without a visit date")
		return false
	}

	rec := &history.Record{
		PatientID: patientID,
		VisitDate: in.VisitDate,
		Diagnosis: in.Diagnosis,
		Treatment: in.Treatment,
		Notes:     in.Notes,
	}
	if _, err := s.records.Create(ctx, rec); err != nil {
		s.logger.Error().Err(err).Int64("patient_id", patientID).Msg("failed to add medical history")
		return false
	}
	return true
}

func (s *Service) ListMedicalHistory(ctx context.Context, patientID int64) []*history.Record {
	list, err := s.records.ListByPatient(ctx, patientID)
	if err != nil {
		s.logger.Error().Err(err).Int64("patient_id", patientID).Msg("failed to list medical history")
		return nil
	}
	return list
}

func (s *Service) systemFailure(msg string) TreatmentResult {
	now := s.now()
	return TreatmentResult{
		Persisted: false,
		Analysis: document.Degraded{
			Reason:    document.ReasonSystemError,
			Error:     "Analysis failed: " + msg,
			Content:   "Analysis could not be completed due to a system error.",
			Timestamp: now,
		},
		Plan: document.Degraded{
			Reason:    document.ReasonSystemError,
			Error:     "Treatment plan failed: " + msg,
			Content:   "Treatment plan could not be generated due to a system error.",
			Timestamp: now,
		},
	}
}

func warnDegraded(log zerolog.Logger, what string, doc document.Document) {
	if d, ok := doc.(document.Degraded); ok {
		log.Warn().Str("reason", string(d.Reason)).Str("error", d.Error).Msgf("%s degraded", what)
	}
}

func validatePatient(in PatientInput) error {
	var missing []string
	if strings.TrimSpace(in.FirstName) == "" {
		missing = append(missing, "first_name")
	}
	if strings.TrimSpace(in.LastName) == "" {
		missing = append(missing, "last_name")
	}
	if in.DateOfBirth.IsZero() {
		missing = append(missing, "dob")
	}
	if strings.TrimSpace(in.Phone) == "" {
		missing = append(missing, "phone")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func validateUpdate(u identity.PatientUpdate) error {
	if u.FirstName.Set && strings.TrimSpace(u.FirstName.Value) == "" {
		return fmt.Errorf("first_name cannot be blank")
	}
	if u.LastName.Set && strings.TrimSpace(u.LastName.Value) == "" {
		return fmt.Errorf("last_name cannot be blank")
	}
	if u.Phone.Set && strings.TrimSpace(u.Phone.Value) == "" {
		return fmt.Errorf("phone cannot be blank")
	}
	if u.DateOfBirth.Set && u.DateOfBirth.Value.IsZero() {
		return fmt.Errorf("dob cannot be empty")
	}
	return nil
}
