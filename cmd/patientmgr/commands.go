package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehr/patientmgr/internal/domain/care"
	"github.com/ehr/patientmgr/internal/domain/identity"
	"github.com/ehr/patientmgr/pkg/document"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04"
)

// withApp opens an app with the schema provisioned, runs fn and releases
// the connection.
func withApp(cmd *cobra.Command, open opener, fn func(a *app) error) error {
	a, err := open(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid patient id %q", arg)
	}
	return id, nil
}

// -- patient --

func patientCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patient",
		Short: "Manage patients",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			first, _ := cmd.Flags().GetString("first-name")
			last, _ := cmd.Flags().GetString("last-name")
			dobStr, _ := cmd.Flags().GetString("dob")
			phone, _ := cmd.Flags().GetString("phone")
			email, _ := cmd.Flags().GetString("email")

			dob, err := care.ParseDate(dobStr)
			if err != nil {
				return fmt.Errorf("invalid --dob %q, expected YYYY-MM-DD", dobStr)
			}
			in := care.PatientInput{FirstName: first, LastName: last, DateOfBirth: dob, Phone: phone}
			if email = strings.TrimSpace(email); email != "" {
				in.Email = &email
			}

			return withApp(cmd, open, func(a *app) error {
				id, ok := a.svc.AddPatient(cmd.Context(), in)
				if !ok {
					return fmt.Errorf("failed to add patient")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Patient added successfully with ID: %d\n", id)
				return nil
			})
		},
	}
	addCmd.Flags().String("first-name", "", "First name (required)")
	addCmd.Flags().String("last-name", "", "Last name (required)")
	addCmd.Flags().String("dob", "", "Date of birth, YYYY-MM-DD (required)")
	addCmd.Flags().String("phone", "", "Phone number (required)")
	addCmd.Flags().String("email", "", "Email address")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "get ID",
		Short: "Show a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(a *app) error {
				p := a.svc.GetPatient(cmd.Context(), id)
				if p == nil {
					return fmt.Errorf("patient %d not found", id)
				}
				printPatient(cmd.OutOrStdout(), p)
				return nil
			})
		},
	})

	updateCmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change a patient's details; only non-empty flags are written",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			u, err := updateFromFlags(cmd)
			if err != nil {
				return err
			}
			if u.Empty() {
				return fmt.Errorf("no fields to update")
			}
			return withApp(cmd, open, func(a *app) error {
				if !a.svc.UpdatePatient(cmd.Context(), id, u) {
					return fmt.Errorf("failed to update patient %d", id)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Patient updated successfully")
				return nil
			})
		},
	}
	updateCmd.Flags().String("first-name", "", "First name")
	updateCmd.Flags().String("last-name", "", "Last name")
	updateCmd.Flags().String("dob", "", "Date of birth, YYYY-MM-DD")
	updateCmd.Flags().String("phone", "", "Phone number")
	updateCmd.Flags().String("email", "", "Email address")
	cmd.AddCommand(updateCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "Delete a patient with no appointments, treatments or history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(a *app) error {
				if !a.svc.DeletePatient(cmd.Context(), id) {
					return fmt.Errorf("failed to delete patient %d", id)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Patient deleted successfully")
				return nil
			})
		},
	})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List patients by name, optionally filtered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			search, _ := cmd.Flags().GetString("search")
			return withApp(cmd, open, func(a *app) error {
				patients := a.svc.SearchPatients(cmd.Context(), search)
				out := cmd.OutOrStdout()
				if len(patients) == 0 {
					fmt.Fprintln(out, "No patients found.")
					return nil
				}
				fmt.Fprintf(out, "%-6s %-30s %-12s %-16s %s\n", "ID", "NAME", "DOB", "PHONE", "EMAIL")
				for _, p := range patients {
					fmt.Fprintf(out, "%-6d %-30s %-12s %-16s %s\n",
						p.ID, p.FullName(), p.DateOfBirth.Format(dateLayout), p.Phone, deref(p.Email))
				}
				return nil
			})
		},
	}
	listCmd.Flags().String("search", "", "Case-insensitive match on name, date of birth or phone")
	cmd.AddCommand(listCmd)

	return cmd
}

// updateFromFlags maps every non-empty flag to a set field.
func updateFromFlags(cmd *cobra.Command) (identity.PatientUpdate, error) {
	var u identity.PatientUpdate
	get := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return strings.TrimSpace(v)
	}

	if v := get("first-name"); v != "" {
		u.FirstName = identity.Some(v)
	}
	if v := get("last-name"); v != "" {
		u.LastName = identity.Some(v)
	}
	if v := get("phone"); v != "" {
		u.Phone = identity.Some(v)
	}
	if v := get("email"); v != "" {
		u.Email = identity.Some(&v)
	}
	if v := get("dob"); v != "" {
		dob, err := care.ParseDate(v)
		if err != nil {
			return u, fmt.Errorf("invalid --dob %q, expected YYYY-MM-DD", v)
		}
		u.DateOfBirth = identity.Some(dob)
	}
	return u, nil
}

func printPatient(w io.Writer, p *identity.Patient) {
	fmt.Fprintf(w, "ID:            %d\n", p.ID)
	fmt.Fprintf(w, "Name:          %s\n", p.FullName())
	fmt.Fprintf(w, "Date of birth: %s\n", p.DateOfBirth.Format(dateLayout))
	fmt.Fprintf(w, "Phone:         %s\n", p.Phone)
	fmt.Fprintf(w, "Email:         %s\n", deref(p.Email))
	fmt.Fprintf(w, "Registered:    %s\n", p.CreatedAt.Format(dateTimeLayout))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// -- appointment --

func appointmentCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appointment",
		Short: "Schedule and list appointments",
	}

	scheduleCmd := &cobra.Command{
		Use:   "schedule PATIENT_ID",
		Short: "Schedule an appointment for an existing patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			dateStr, _ := cmd.Flags().GetString("date")
			purpose, _ := cmd.Flags().GetString("purpose")
			at, err := care.ParseDateTime(dateStr)
			if err != nil {
				return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD HH:MM", dateStr)
			}

			return withApp(cmd, open, func(a *app) error {
				if a.svc.GetPatient(cmd.Context(), id) == nil {
					return fmt.Errorf("patient %d not found", id)
				}
				if !a.svc.ScheduleAppointment(cmd.Context(), id, care.AppointmentInput{ScheduledAt: at, Purpose: purpose}) {
					return fmt.Errorf("failed to schedule appointment")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Appointment scheduled successfully")
				return nil
			})
		},
	}
	scheduleCmd.Flags().String("date", "", "Appointment time, YYYY-MM-DD HH:MM (required)")
	scheduleCmd.Flags().String("purpose", "", "Purpose of the visit")
	cmd.AddCommand(scheduleCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list PATIENT_ID",
		Short: "List a patient's appointments, earliest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(a *app) error {
				list := a.svc.ListAppointments(cmd.Context(), id)
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No appointments found.")
					return nil
				}
				fmt.Fprintf(out, "%-18s %-12s %s\n", "DATE", "STATUS", "PURPOSE")
				for _, ap := range list {
					fmt.Fprintf(out, "%-18s %-12s %s\n", ap.ScheduledAt.Format(dateTimeLayout), ap.Status, ap.Purpose)
				}
				return nil
			})
		},
	})

	return cmd
}

// -- treatment --

func treatmentCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "treatment",
		Short: "Record treatments with AI analysis and plans",
	}

	addCmd := &cobra.Command{
		Use:   "add PATIENT_ID",
		Short: "Analyse symptoms, generate a plan and save the treatment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			condition, _ := cmd.Flags().GetString("condition")
			symptoms, _ := cmd.Flags().GetString("symptoms")
			hist, _ := cmd.Flags().GetString("history")
			if strings.TrimSpace(condition) == "" || strings.TrimSpace(symptoms) == "" {
				return fmt.Errorf("--condition and --symptoms are required")
			}

			return withApp(cmd, open, func(a *app) error {
				if a.svc.GetPatient(cmd.Context(), id) == nil {
					return fmt.Errorf("patient %d not found", id)
				}
				res := a.svc.AddTreatment(cmd.Context(), id, care.TreatmentInput{
					Condition:      condition,
					Symptoms:       symptoms,
					PatientHistory: hist,
				})

				out := cmd.OutOrStdout()
				fmt.Fprint(out, document.Render("AI ANALYSIS", res.Analysis))
				fmt.Fprint(out, document.Render("TREATMENT PLAN", res.Plan))
				if !res.Persisted {
					return fmt.Errorf("failed to save treatment")
				}
				fmt.Fprintln(out, "Treatment added successfully")
				return nil
			})
		},
	}
	addCmd.Flags().String("condition", "", "Condition being treated (required)")
	addCmd.Flags().String("symptoms", "", "Presenting symptoms (required)")
	addCmd.Flags().String("history", "", "Relevant patient history")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list PATIENT_ID",
		Short: "List a patient's treatments, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(a *app) error {
				list := a.svc.ListTreatments(cmd.Context(), id)
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No treatments found.")
					return nil
				}
				for _, t := range list {
					fmt.Fprintf(out, "\n%s  %s (%s)\n", t.CreatedAt.Format(dateTimeLayout), t.Condition, t.Status)
					fmt.Fprintf(out, "Symptoms: %s\n", t.Symptoms)
					fmt.Fprint(out, document.Render("AI ANALYSIS", t.Analysis))
					fmt.Fprint(out, document.Render("TREATMENT PLAN", t.Plan))
				}
				return nil
			})
		},
	})

	return cmd
}

// -- history --

func historyCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Record and list medical history",
	}

	addCmd := &cobra.Command{
		Use:   "add PATIENT_ID",
		Short: "Add a medical history record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			dateStr, _ := cmd.Flags().GetString("date")
			diagnosis, _ := cmd.Flags().GetString("diagnosis")
			treatment, _ := cmd.Flags().GetString("treatment")
			notes, _ := cmd.Flags().GetString("notes")
			visit, err := care.ParseDateTime(dateStr)
			if err != nil {
				return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", dateStr)
			}

			return withApp(cmd, open, func(a *app) error {
				if a.svc.GetPatient(cmd.Context(), id) == nil {
					return fmt.Errorf("patient %d not found", id)
				}
				ok := a.svc.AddMedicalHistory(cmd.Context(), id, care.HistoryInput{
					VisitDate: visit,
					Diagnosis: diagnosis,
					Treatment: treatment,
					Notes:     notes,
				})
				if !ok {
					return fmt.Errorf("failed to add medical history")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Medical history added successfully")
				return nil
			})
		},
	}
	addCmd.Flags().String("date", "", "Visit date, YYYY-MM-DD (required)")
	addCmd.Flags().String("diagnosis", "", "Diagnosis")
	addCmd.Flags().String("treatment", "", "Treatment given")
	addCmd.Flags().String("notes", "", "Notes")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list PATIENT_ID",
		Short: "List a patient's medical history, most recent visit first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(a *app) error {
				list := a.svc.ListMedicalHistory(cmd.Context(), id)
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No medical history found.")
					return nil
				}
				for _, r := range list {
					fmt.Fprintf(out, "\n%s  %s\n", r.VisitDate.Format(dateLayout), r.Diagnosis)
					if r.Treatment != "" {
						fmt.Fprintf(out, "  Treatment: %s\n", r.Treatment)
					}
					if r.Notes != "" {
						fmt.Fprintf(out, "  Notes: %s\n", r.Notes)
					}
				}
				return nil
			})
		},
	})

	return cmd
}

// -- schema --

func schemaCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Provision and inspect the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "apply",
		Short: "Create the extension and tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.provisioner.Provision(cmd.Context()) {
				return errSetupFailed
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database schema is up to date.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show which tables exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			statuses, err := a.provisioner.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get schema status: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-20s %s\n", "TABLE", "STATUS")
			fmt.Fprintln(out, "-------------------- ----------")
			for _, s := range statuses {
				status := "missing"
				if s.Exists {
					status = "present"
				}
				fmt.Fprintf(out, "%-20s %s\n", s.Name, status)
			}
			return nil
		},
	})

	return cmd
}
