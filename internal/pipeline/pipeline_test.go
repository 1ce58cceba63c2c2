package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/leonardotrapani/medscribe/internal/chat"
	"github.com/leonardotrapani/medscribe/internal/consult"
	"github.com/leonardotrapani/medscribe/internal/report"
	"github.com/leonardotrapani/medscribe/internal/state"
)

type fakeService struct {
	mu sync.Mutex

	records     []consult.Transcription
	fetchErr    error
	generateErr error
	reportErr   error
	report      *report.Summary

	generated []string
	calls     []string
	// observed is called during GenerateSummary to inspect the thread.
	observed func()
}

func (f *fakeService) Transcriptions(ctx context.Context, patientID, doctorName string) ([]consult.Transcription, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "transcriptions")
	f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if len(f.records) == 0 {
		return nil, consult.ErrNoDataFound
	}
	return f.records, nil
}

func (f *fakeService) GenerateSummary(ctx context.Context, patientID, transcript string) error {
	f.mu.Lock()
	f.calls = append(f.calls, "generate")
	f.generated = append(f.generated, transcript)
	f.mu.Unlock()
	if f.observed != nil {
		f.observed()
	}
	return f.generateErr
}

func (f *fakeService) Report(ctx context.Context, patientID string) (*report.Summary, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "report")
	f.mu.Unlock()
	if f.reportErr != nil {
		return nil, f.reportErr
	}
	return f.report, nil
}

type fixture struct {
	store *chat.Store
	state *state.State
	svc   *fakeService
	p     *Pipeline
}

func newFixture(t *testing.T, svc *fakeService) *fixture {
	t.Helper()
	store := chat.NewStore()
	t.Cleanup(store.Close)
	st := state.New("Dr. Rao")
	return &fixture{store: store, state: st, svc: svc, p: New(svc, svc, store, st)}
}

func (f *fixture) startLive(t *testing.T, fragments ...string) {
	t.Helper()
	acc := chat.NewAccumulator(f.store, "1")
	if _, err := acc.Begin(); err != nil {
		t.Fatal(err)
	}
	for _, frag := range fragments {
		acc.Append(frag)
	}
}

func recordStatuses() (*[]Status, func(Status)) {
	var mu sync.Mutex
	var got []Status
	return &got, func(s Status) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	}
}

func countWhere(msgs []chat.Message, pred func(chat.Message) bool) int {
	n := 0
	for _, m := range msgs {
		if pred(m) {
			n++
		}
	}
	return n
}

func TestRunSuccess(t *testing.T) {
	svc := &fakeService{
		records: []consult.Transcription{
			{Transcript: "old", CreatedAt: time.Date(2025, 10, 12, 0, 0, 0, 0, time.UTC)},
			{Transcript: "Patient reports mild fever since Monday.", CreatedAt: time.Date(2025, 10, 13, 0, 0, 0, 0, time.UTC)},
		},
		report: &report.Summary{PatientID: "1", Diagnosis: "Viral fever"},
	}
	f := newFixture(t, svc)
	f.startLive(t, "Patient", "reports", "mild", "fever")

	placeholders := 0
	svc.observed = func() {
		placeholders = countWhere(f.store.Messages("1"), func(m chat.Message) bool { return m.Loading })
	}

	statuses, progress := recordStatuses()
	res := f.p.Run(context.Background(), Request{PatientID: "1", DoctorName: "Dr. Rao"}, progress)

	if res.Status != Complete || res.Err != nil {
		t.Fatalf("Run() = %+v", res)
	}
	if placeholders != 1 {
		t.Errorf("expected exactly one loading placeholder during generation, saw %d", placeholders)
	}

	msgs := f.store.Messages("1")
	if n := countWhere(msgs, chat.Message.Placeholder); n != 0 {
		t.Errorf("%d placeholders left behind", n)
	}
	if n := countWhere(msgs, func(m chat.Message) bool { return m.Report != nil }); n != 1 {
		t.Errorf("expected exactly one report message, got %d", n)
	}
	if msgs[0].IsLive || msgs[0].Text != "Patient reports mild fever since Monday." {
		t.Errorf("live message not finalized with fetched text: %+v", msgs[0])
	}
	if len(svc.generated) != 1 || svc.generated[0] != "Patient reports mild fever since Monday." {
		t.Errorf("summary generated from %v", svc.generated)
	}

	latest, ok := f.state.LatestSummary()
	if !ok || latest.Diagnosis != "Viral fever" {
		t.Errorf("latest summary not stored: %+v", latest)
	}

	want := []Status{Finalizing, Summarizing, Complete}
	if len(*statuses) != len(want) {
		t.Fatalf("statuses = %v, want %v", *statuses, want)
	}
	for i := range want {
		if (*statuses)[i] != want[i] {
			t.Errorf("statuses = %v, want %v", *statuses, want)
		}
	}
}

func TestRunEmptyTranscriptList(t *testing.T) {
	svc := &fakeService{}
	f := newFixture(t, svc)
	f.startLive(t, "Patient", "reports")

	res := f.p.Run(context.Background(), Request{PatientID: "1", DoctorName: "Dr. Rao"}, nil)

	if res.Status != Complete {
		t.Errorf("status = %s, want complete", res.Status)
	}
	if len(svc.calls) != 1 || svc.calls[0] != "transcriptions" {
		t.Errorf("summary stages must not run, calls = %v", svc.calls)
	}

	msgs := f.store.Messages("1")
	if len(msgs) != 1 {
		t.Fatalf("expected only the sealed message, got %+v", msgs)
	}
	if msgs[0].IsLive || msgs[0].Text != "Patient reports" {
		t.Errorf("live message should keep local text and lose the live flag: %+v", msgs[0])
	}
}

func TestRunTranscriptFetchFailsWithEmptyLive(t *testing.T) {
	svc := &fakeService{fetchErr: &consult.FetchError{Op: "fetch transcriptions", Status: 502}}
	f := newFixture(t, svc)
	f.startLive(t)

	res := f.p.Run(context.Background(), Request{PatientID: "1"}, nil)
	if res.Status != Complete || !consult.IsFetchError(res.Err) {
		t.Errorf("Run() = %+v", res)
	}
	msgs := f.store.Messages("1")
	if len(msgs) != 1 || msgs[0].IsLive || msgs[0].Text != "" {
		t.Errorf("unexpected thread %+v", msgs)
	}
	if n := countWhere(msgs, func(m chat.Message) bool { return m.Report != nil }); n != 0 {
		t.Error("no summary message expected")
	}
}

func TestRunTranscriptFetchFailsKeepsLocalText(t *testing.T) {
	svc := &fakeService{fetchErr: &consult.FetchError{Op: "fetch transcriptions", Err: consult.ErrTimedOut}}
	f := newFixture(t, svc)
	f.state.SetLatestSummary(&report.Summary{Diagnosis: "earlier"})
	f.startLive(t, "Patient", "", "reports", "mild", "fever")

	var got []Status
	res := f.p.Run(context.Background(), Request{PatientID: "1", DoctorName: "Dr. Rao"}, func(s Status) {
		got = append(got, s)
	})

	if res.Status != Complete {
		t.Errorf("status = %s, want complete", res.Status)
	}
	if !errors.Is(res.Err, consult.ErrTimedOut) {
		t.Errorf("expected timeout cause, got %v", res.Err)
	}
	if len(got) == 0 || got[len(got)-1] != Complete {
		t.Errorf("statuses = %v", got)
	}

	msgs := f.store.Messages("1")
	if len(msgs) != 1 || msgs[0].IsLive || msgs[0].Text != "Patient reports mild fever" {
		t.Errorf("unexpected thread %+v", msgs)
	}
	if sum, _ := f.state.LatestSummary(); sum.Diagnosis != "earlier" {
		t.Errorf("latest summary changed to %+v", sum)
	}
}

func TestRunWithoutLiveMessage(t *testing.T) {
	svc := &fakeService{
		records: []consult.Transcription{{Transcript: "fetched"}},
		report:  &report.Summary{PatientID: "1"},
	}
	f := newFixture(t, svc)

	res := f.p.Run(context.Background(), Request{PatientID: "1"}, nil)
	if res.Status != Complete {
		t.Fatalf("Run() = %+v", res)
	}
	msgs := f.store.Messages("1")
	if len(msgs) != 2 || msgs[0].Text != "fetched" || msgs[0].Sender != chat.SenderClinician {
		t.Errorf("expected a fresh history message then the report, got %+v", msgs)
	}
}

func TestRunStampsPatientOnReport(t *testing.T) {
	svc := &fakeService{
		records: []consult.Transcription{{Transcript: "fetched"}},
		report:  &report.Summary{Diagnosis: "Migraine"},
	}
	f := newFixture(t, svc)

	res := f.p.Run(context.Background(), Request{PatientID: "3"}, nil)
	if res.Status != Complete {
		t.Fatalf("Run() = %+v", res)
	}
	latest, ok := f.state.LatestSummary()
	if !ok || latest.PatientID != "3" {
		t.Errorf("latest summary patient = %q, want 3", latest.PatientID)
	}
}

func TestRunReportFails(t *testing.T) {
	tests := []struct {
		name string
		svc  *fakeService
	}{
		{"generation error", &fakeService{
			records:     []consult.Transcription{{Transcript: "text"}},
			generateErr: &consult.FetchError{Op: "generate summary", Status: 500},
		}},
		{"report error", &fakeService{
			records:   []consult.Transcription{{Transcript: "text"}},
			reportErr: &consult.FetchError{Op: "fetch report", Status: 500},
		}},
		{"timeout", &fakeService{
			records:   []consult.Transcription{{Transcript: "text"}},
			reportErr: &consult.FetchError{Op: "fetch report", Err: consult.ErrTimedOut},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.svc)
			prior := &report.Summary{PatientID: "0", Diagnosis: "previous"}
			f.state.SetLatestSummary(prior)
			f.startLive(t, "text")

			statuses, progress := recordStatuses()
			res := f.p.Run(context.Background(), Request{PatientID: "1"}, progress)

			if res.Status != Failed || !consult.IsFetchError(res.Err) {
				t.Errorf("Run() = %+v", res)
			}
			if (*statuses)[len(*statuses)-1] != Failed {
				t.Errorf("last status = %v", *statuses)
			}

			msgs := f.store.Messages("1")
			if n := countWhere(msgs, chat.Message.Placeholder); n != 0 {
				t.Errorf("%d placeholders left behind", n)
			}
			if n := countWhere(msgs, func(m chat.Message) bool { return m.Failed }); n != 1 {
				t.Errorf("expected one failure message, got %d", n)
			}
			if n := countWhere(msgs, func(m chat.Message) bool { return m.Report != nil }); n != 0 {
				t.Errorf("no report message expected, got %d", n)
			}

			latest, _ := f.state.LatestSummary()
			if latest.Diagnosis != "previous" {
				t.Errorf("latest summary changed to %+v", latest)
			}
		})
	}
}

func TestRunAgainstHTTPService(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /transcriptions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transcriptions":[{"id":"t1","patient_id":"1","dr_name":"Dr. Rao","transcript":"Blood sugar 180 this morning","created_at":"2025-10-13T09:00:00Z"}]}`))
	})
	mux.HandleFunc("POST /patients/1/summary", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /patients/1/report", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := consult.NewClient(consult.Config{BaseURL: server.URL, Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}

	store := chat.NewStore()
	defer store.Close()
	st := state.New("Dr. Rao")
	p := New(client, client, store, st)

	res := p.Run(context.Background(), Request{PatientID: "1", DoctorName: "Dr. Rao"}, nil)

	var fe *consult.FetchError
	if res.Status != Failed || !errors.As(res.Err, &fe) || fe.Status != http.StatusInternalServerError {
		t.Fatalf("Run() = %+v", res)
	}
	if _, ok := st.LatestSummary(); ok {
		t.Error("latest summary must stay unset")
	}
	msgs := store.Messages("1")
	if len(msgs) != 2 || msgs[0].Text != "Blood sugar 180 this morning" || !msgs[1].Failed {
		t.Errorf("unexpected thread %+v", msgs)
	}
}
