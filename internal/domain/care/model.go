package care

import (
	"time"

	"github.com/ehr/patientmgr/pkg/document"
)

// PatientInput is the data needed to register a patient. Email is optional.
type PatientInput struct {
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Phone       string
	Email       *string
}

type AppointmentInput struct {
	ScheduledAt time.Time
	Purpose     string
}

// TreatmentInput starts the treatment workflow. PatientHistory is free text
// passed to plan generation and may be empty.
type TreatmentInput struct {
	Condition      string
	Symptoms       string
	PatientHistory string
}

type HistoryInput struct {
	VisitDate time.Time
	Diagnosis string
	Treatment string
	Notes     string
}

// TreatmentResult is returned by AddTreatment whether or not the generated
// documents degraded. Persisted is false only when the record was not saved.
type TreatmentResult struct {
	Persisted bool
	Analysis  document.Document
	Plan      document.Document
}
