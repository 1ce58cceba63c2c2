// Package report holds the structured consultation summary returned by the
// summarisation service and renders it for export.
package report

import (
	"fmt"
	"strings"
)

// Summary is the structured clinical summary generated from a finalized
// transcript. It is treated as immutable once received.
type Summary struct {
	PatientID      string   `json:"patient_id"`
	DoctorName     string   `json:"doctor_name"`
	Timestamp      string   `json:"timestamp"`
	ChiefComplaint string   `json:"chief_complaint"`
	Symptoms       []string `json:"symptoms"`
	Diagnosis      string   `json:"diagnosis"`
	Medications    []string `json:"medications"`
	Advice         string   `json:"advice"`
	FollowUp       string   `json:"follow_up"`
}

// Clone returns a deep copy so callers cannot alias the slices.
func (s Summary) Clone() Summary {
	c := s
	c.Symptoms = append([]string(nil), s.Symptoms...)
	c.Medications = append([]string(nil), s.Medications...)
	return c
}

// Markdown renders the summary as a markdown document.
func (s Summary) Markdown() string {
	var b strings.Builder

	b.WriteString("# Consultation Summary\n\n")
	fmt.Fprintf(&b, "- **Patient:** %s\n", orDash(s.PatientID))
	fmt.Fprintf(&b, "- **Doctor:** %s\n", orDash(s.DoctorName))
	fmt.Fprintf(&b, "- **Date:** %s\n\n", orDash(s.Timestamp))

	section(&b, "Chief Complaint", s.ChiefComplaint)
	list(&b, "Symptoms", s.Symptoms)
	section(&b, "Diagnosis", s.Diagnosis)
	list(&b, "Medications", s.Medications)
	section(&b, "Advice", s.Advice)
	section(&b, "Follow-up", s.FollowUp)

	return b.String()
}

func section(b *strings.Builder, title, body string) {
	fmt.Fprintf(b, "## %s\n\n%s\n\n", title, orDash(body))
}

func list(b *strings.Builder, title string, items []string) {
	fmt.Fprintf(b, "## %s\n\n", title)
	if len(items) == 0 {
		b.WriteString("-\n\n")
		return
	}
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
