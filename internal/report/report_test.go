package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleSummary() Summary {
	return Summary{
		PatientID:      "1",
		DoctorName:     "Dr. John Doe",
		Timestamp:      "2025-10-13T08:15:00Z",
		ChiefComplaint: "Mild fever",
		Symptoms:       []string{"fever", "fatigue"},
		Diagnosis:      "Viral infection",
		Medications:    []string{"Paracetamol"},
		Advice:         "Rest and fluids",
		FollowUp:       "In one week",
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	s := sampleSummary()
	c := s.Clone()
	c.Symptoms[0] = "cough"
	if s.Symptoms[0] != "fever" {
		t.Error("clone shares symptom slice with original")
	}
}

func TestMarkdown(t *testing.T) {
	md := sampleSummary().Markdown()
	for _, want := range []string{
		"# Consultation Summary",
		"- **Doctor:** Dr. John Doe",
		"## Chief Complaint\n\nMild fever",
		"- fever\n- fatigue",
		"## Follow-up\n\nIn one week",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}

	empty := Summary{}.Markdown()
	if !strings.Contains(empty, "## Diagnosis\n\n-") {
		t.Errorf("empty fields should render a dash:\n%s", empty)
	}
}

func TestHTMLExporter(t *testing.T) {
	dir := t.TempDir()
	exp := NewHTMLExporter(filepath.Join(dir, "exports"))
	exp.Now = func() time.Time { return time.Date(2025, 10, 13, 9, 0, 0, 0, time.UTC) }

	s := sampleSummary()
	s.PatientID = "MRN/001"
	path, err := exp.Export(s)
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if filepath.Base(path) != "summary-MRN_001-20251013-090000.html" {
		t.Errorf("unexpected file name %s", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	html := string(data)
	if !strings.Contains(html, "<h1>Consultation Summary</h1>") {
		t.Errorf("missing heading:\n%s", html)
	}
	if !strings.Contains(html, "<li>Paracetamol</li>") {
		t.Errorf("missing medication list:\n%s", html)
	}
}
