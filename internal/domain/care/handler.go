package care

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/patientmgr/internal/domain/identity"
	"github.com/ehr/patientmgr/pkg/document"
	"github.com/ehr/patientmgr/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients", h.ListPatients)
	api.POST("/patients", h.CreatePatient)
	api.GET("/patients/:id", h.GetPatient)
	api.PATCH("/patients/:id", h.UpdatePatient)
	api.DELETE("/patients/:id", h.DeletePatient)

	api.GET("/patients/:id/appointments", h.ListAppointments)
	api.POST("/patients/:id/appointments", h.ScheduleAppointment)
	api.GET("/patients/:id/treatments", h.ListTreatments)
	api.POST("/patients/:id/treatments", h.AddTreatment)
	api.GET("/patients/:id/history", h.ListMedicalHistory)
	api.POST("/patients/:id/history", h.AddMedicalHistory)
}

// -- Request bodies --

type patientRequest struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	DOB       string  `json:"dob"`
	Phone     string  `json:"phone"`
	Email     *string `json:"email"`
}

// patientPatch distinguishes an absent email from an explicit null, which
// clears it.
type patientPatch struct {
	FirstName *string         `json:"first_name"`
	LastName  *string         `json:"last_name"`
	DOB       *string         `json:"dob"`
	Phone     *string         `json:"phone"`
	Email     json.RawMessage `json:"email"`
}

type appointmentRequest struct {
	AppointmentDate string `json:"appointment_date"`
	Purpose         string `json:"purpose"`
}

type treatmentRequest struct {
	Condition      string `json:"condition"`
	Symptoms       string `json:"symptoms"`
	PatientHistory string `json:"patient_history"`
}

type historyRequest struct {
	VisitDate string `json:"visit_date"`
	Diagnosis string `json:"diagnosis"`
	Treatment string `json:"treatment"`
	Notes     string `json:"notes"`
}

type treatmentResponse struct {
	Persisted bool           `json:"persisted"`
	Analysis  *document.View `json:"ai_analysis"`
	Plan      *document.View `json:"treatment_plan"`
}

// -- Patient Handlers --

func (h *Handler) CreatePatient(c echo.Context) error {
	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	dob, err := ParseDate(req.DOB)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid dob")
	}

	id, ok := h.svc.AddPatient(c.Request().Context(), PatientInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DateOfBirth: dob,
		Phone:       req.Phone,
		Email:       nonEmpty(req.Email),
	})
	if !ok {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "patient could not be added")
	}
	return c.JSON(http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	p := h.svc.GetPatient(c.Request().Context(), id)
	if p == nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, p)
}

// ListPatients accepts an optional q filter matched against name, date of
// birth and phone.
func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients := h.svc.SearchPatients(c.Request().Context(), c.QueryParam("q"))
	return c.JSON(http.StatusOK, pagination.Respond(patients, pg))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	var req patientPatch
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	u, err := req.toUpdate()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if u.Empty() {
		return echo.NewHTTPError(http.StatusBadRequest, "no fields to update")
	}
	if !h.svc.UpdatePatient(c.Request().Context(), id, u) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "patient could not be updated")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	if !h.svc.DeletePatient(c.Request().Context(), id) {
		return echo.NewHTTPError(http.StatusConflict, "patient could not be deleted")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Appointment Handlers --

func (h *Handler) ScheduleAppointment(c echo.Context) error {
	id, err := h.existingPatient(c)
	if err != nil {
		return err
	}
	var req appointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	at, err := ParseDateTime(req.AppointmentDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment_date")
	}

	if !h.svc.ScheduleAppointment(c.Request().Context(), id, AppointmentInput{ScheduledAt: at, Purpose: req.Purpose}) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "appointment could not be scheduled")
	}
	return c.JSON(http.StatusCreated, map[string]bool{"scheduled": true})
}

func (h *Handler) ListAppointments(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.Respond(h.svc.ListAppointments(c.Request().Context(), id), pg))
}

// -- Treatment Handlers --

func (h *Handler) AddTreatment(c echo.Context) error {
	id, err := h.existingPatient(c)
	if err != nil {
		return err
	}
	var req treatmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Condition) == "" || strings.TrimSpace(req.Symptoms) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "condition and symptoms are required")
	}

	res := h.svc.AddTreatment(c.Request().Context(), id, TreatmentInput{
		Condition:      req.Condition,
		Symptoms:       req.Symptoms,
		PatientHistory: req.PatientHistory,
	})

	status := http.StatusCreated
	if !res.Persisted {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, treatmentResponse{
		Persisted: res.Persisted,
		Analysis:  document.ToView(res.Analysis),
		Plan:      document.ToView(res.Plan),
	})
}

func (h *Handler) ListTreatments(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.Respond(h.svc.ListTreatments(c.Request().Context(), id), pg))
}

// -- Medical History Handlers --

func (h *Handler) AddMedicalHistory(c echo.Context) error {
	id, err := h.existingPatient(c)
	if err != nil {
		return err
	}
	var req historyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	visit, err := ParseDateTime(req.VisitDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit_date")
	}

	ok := h.svc.AddMedicalHistory(c.Request().Context(), id, HistoryInput{
		VisitDate: visit,
		Diagnosis: req.Diagnosis,
		Treatment: req.Treatment,
		Notes:     req.Notes,
	})
	if !ok {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "medical history could not be added")
	}
	return c.JSON(http.StatusCreated, map[string]bool{"added": true})
}

func (h *Handler) ListMedicalHistory(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.Respond(h.svc.ListMedicalHistory(c.Request().Context(), id), pg))
}

// -- Helpers --

func patientID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// existingPatient resolves the path id and checks the patient exists before
// child records are written against it.
func (h *Handler) existingPatient(c echo.Context) (int64, error) {
	id, err := patientID(c)
	if err != nil {
		return 0, err
	}
	if h.svc.GetPatient(c.Request().Context(), id) == nil {
		return 0, echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return id, nil
}

func (p patientPatch) toUpdate() (identity.PatientUpdate, error) {
	var u identity.PatientUpdate
	if p.FirstName != nil {
		u.FirstName = identity.Some(*p.FirstName)
	}
	if p.LastName != nil {
		u.LastName = identity.Some(*p.LastName)
	}
	if p.Phone != nil {
		u.Phone = identity.Some(*p.Phone)
	}
	if p.DOB != nil {
		dob, err := ParseDate(*p.DOB)
		if err != nil {
			return u, fmt.Errorf("invalid dob")
		}
		u.DateOfBirth = identity.Some(dob)
	}
	if len(p.Email) > 0 {
		if bytes.Equal(bytes.TrimSpace(p.Email), []byte("null")) {
			u.Email = identity.Some[*string](nil)
		} else {
			var email string
			if err := json.Unmarshal(p.Email, &email); err != nil {
				return u, fmt.Errorf("invalid email")
			}
			u.Email = identity.Some(nonEmpty(&email))
		}
	}
	return u, nil
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// ParseDate accepts a calendar date in YYYY-MM-DD form.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, strings.TrimSpace(s))
}

var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	time.DateTime,
	time.DateOnly,
}

// ParseDateTime accepts RFC 3339 timestamps, "YYYY-MM-DD HH:MM" and plain
// dates.
func ParseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
