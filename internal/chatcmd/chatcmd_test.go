package chatcmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leonardotrapani/medscribe/internal/chat"
	"github.com/leonardotrapani/medscribe/internal/consult"
	"github.com/leonardotrapani/medscribe/internal/report"
	"github.com/leonardotrapani/medscribe/internal/state"
)

type fakeApprover struct {
	got *report.Summary
	msg string
	err error
}

func (a *fakeApprover) ApproveReport(ctx context.Context, patientID string, r *report.Summary) (string, error) {
	a.got = r
	return a.msg, a.err
}

type failingExporter struct{}

func (failingExporter) Export(report.Summary) (string, error) {
	return "", errors.New("disk full")
}

func setup(t *testing.T, approver consult.Approver, exporter Exporter) (*Handler, *chat.Store, *state.State) {
	t.Helper()
	store := chat.NewStore()
	t.Cleanup(store.Close)
	st := state.New("Dr. Rao")
	return New(store, st, approver, exporter), store, st
}

func TestMentionsSummary(t *testing.T) {
	tests := map[string]bool{
		"summary":                    true,
		"Please send the Summary.":   true,
		"SUMMARY?":                   true,
		"summarycheck":               false,
		"how is the patient doing":   false,
		"print the summary as a PDF": true,
	}
	for text, want := range tests {
		if got := MentionsSummary(text); got != want {
			t.Errorf("MentionsSummary(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestSendPlainMessage(t *testing.T) {
	h, store, _ := setup(t, &fakeApprover{}, report.NewHTMLExporter(t.TempDir()))

	msg, err := h.Send(context.Background(), "1", "  follow up in a week  ")
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if msg.Text != "follow up in a week" || msg.Sender != chat.SenderClinician {
		t.Errorf("unexpected message %+v", msg)
	}
	if n := len(store.Messages("1")); n != 1 {
		t.Errorf("thread has %d messages, want 1", n)
	}
}

func TestSendEmpty(t *testing.T) {
	h, store, _ := setup(t, &fakeApprover{}, report.NewHTMLExporter(t.TempDir()))
	if _, err := h.Send(context.Background(), "1", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if len(store.Messages("1")) != 0 {
		t.Error("empty message must not be stored")
	}
}

func TestSendSummaryWithoutReport(t *testing.T) {
	h, store, _ := setup(t, &fakeApprover{}, report.NewHTMLExporter(t.TempDir()))

	h.Send(context.Background(), "1", "summary")
	msgs := store.Messages("1")
	if len(msgs) != 2 || msgs[1].Text != NoSummaryText {
		t.Errorf("unexpected thread %+v", msgs)
	}
}

func TestSendSummaryExports(t *testing.T) {
	dir := t.TempDir()
	h, store, st := setup(t, &fakeApprover{}, report.NewHTMLExporter(dir))
	st.SetLatestSummary(&report.Summary{PatientID: "1", Diagnosis: "Viral fever"})

	if _, err := h.Send(context.Background(), "1", "Generate the summary please"); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	msgs := store.Messages("1")
	if len(msgs) != 2 {
		t.Fatalf("unexpected thread %+v", msgs)
	}
	for _, m := range msgs {
		if m.Placeholder() {
			t.Error("typing placeholder left behind")
		}
	}
	if !strings.HasPrefix(msgs[1].Text, "Summary exported to ") {
		t.Errorf("unexpected confirmation %q", msgs[1].Text)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "*.html"))
	if len(files) != 1 {
		t.Fatalf("expected one exported file, got %v", files)
	}
	data, _ := os.ReadFile(files[0])
	if !strings.Contains(string(data), "Viral fever") {
		t.Error("exported document missing diagnosis")
	}
}

func TestSendSummaryExportFails(t *testing.T) {
	h, store, st := setup(t, &fakeApprover{}, failingExporter{})
	st.SetLatestSummary(&report.Summary{PatientID: "1"})

	h.Send(context.Background(), "1", "summary")
	msgs := store.Messages("1")
	if len(msgs) != 2 || !msgs[1].Failed || msgs[1].Text != ExportFailedText {
		t.Errorf("unexpected thread %+v", msgs)
	}
}

func TestApprove(t *testing.T) {
	approver := &fakeApprover{msg: "Report approved and sent to patient"}
	h, store, st := setup(t, approver, report.NewHTMLExporter(t.TempDir()))
	st.SetLatestSummary(&report.Summary{PatientID: "1", Diagnosis: "Viral fever"})

	got, err := h.Approve(context.Background(), "1")
	if err != nil {
		t.Fatalf("Approve() error: %v", err)
	}
	if got != approver.msg || approver.got == nil || approver.got.Diagnosis != "Viral fever" {
		t.Errorf("Approve() = %q, sent %+v", got, approver.got)
	}
	msgs := store.Messages("1")
	if len(msgs) != 1 || msgs[0].Text != approver.msg {
		t.Errorf("unexpected thread %+v", msgs)
	}
}

func TestApproveFailureIsVisible(t *testing.T) {
	approver := &fakeApprover{err: &consult.FetchError{Op: "approve report", Status: 500}}
	h, store, st := setup(t, approver, report.NewHTMLExporter(t.TempDir()))
	st.SetLatestSummary(&report.Summary{PatientID: "1"})

	_, err := h.Approve(context.Background(), "1")
	if !consult.IsFetchError(err) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	msgs := store.Messages("1")
	if len(msgs) != 1 || !msgs[0].Failed || msgs[0].Text != ApproveFailedText {
		t.Errorf("unexpected thread %+v", msgs)
	}
}

func TestApproveWithoutSummary(t *testing.T) {
	approver := &fakeApprover{}
	h, _, _ := setup(t, approver, report.NewHTMLExporter(t.TempDir()))

	if _, err := h.Approve(context.Background(), "1"); !errors.Is(err, consult.ErrNoDataFound) {
		t.Errorf("expected ErrNoDataFound, got %v", err)
	}
	if approver.got != nil {
		t.Error("service must not be called without a summary")
	}
}

func TestApproveRefusesOtherPatientsReport(t *testing.T) {
	approver := &fakeApprover{msg: "approved"}
	h, store, st := setup(t, approver, report.NewHTMLExporter(t.TempDir()))
	st.SetLatestSummary(&report.Summary{PatientID: "1", Diagnosis: "Viral fever"})

	if _, err := h.Approve(context.Background(), "2"); !errors.Is(err, consult.ErrNoDataFound) {
		t.Fatalf("expected ErrNoDataFound, got %v", err)
	}
	if approver.got != nil {
		t.Errorf("patient 1's report was submitted for patient 2: %+v", approver.got)
	}
	msgs := store.Messages("2")
	if len(msgs) != 1 || msgs[0].Text != NothingToApprove || !msgs[0].Failed {
		t.Errorf("unexpected thread %+v", msgs)
	}
	if len(store.Messages("1")) != 0 {
		t.Error("patient 1's thread should be untouched")
	}
}

func TestSendSummaryIgnoresOtherPatientsReport(t *testing.T) {
	dir := t.TempDir()
	h, store, st := setup(t, &fakeApprover{}, report.NewHTMLExporter(dir))
	st.SetLatestSummary(&report.Summary{PatientID: "1", Diagnosis: "Viral fever"})

	if _, err := h.Send(context.Background(), "2", "summary please"); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	msgs := store.Messages("2")
	if len(msgs) != 2 || msgs[1].Text != NoSummaryText {
		t.Errorf("unexpected thread %+v", msgs)
	}
	files, _ := filepath.Glob(filepath.Join(dir, "*.html"))
	if len(files) != 0 {
		t.Errorf("another patient's report was exported: %v", files)
	}
}

func TestApproveAfterStoreClosed(t *testing.T) {
	approver := &fakeApprover{msg: "approved"}
	h, store, st := setup(t, approver, report.NewHTMLExporter(t.TempDir()))
	st.SetLatestSummary(&report.Summary{PatientID: "1"})
	store.Close()

	got, err := h.Approve(context.Background(), "1")
	if err != nil || got != "approved" {
		t.Errorf("Approve() = %q, %v; a lost confirmation message must not fail the approval", got, err)
	}
}
