package consult

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leonardotrapani/medscribe/internal/report"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewClient(Config{BaseURL: server.URL, Timeout: timeout})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	return c
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"http", "http://localhost:8000", false},
		{"trailing slash", "https://api.example.com/", false},
		{"empty", "", true},
		{"ws scheme", "ws://localhost:8000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(Config{BaseURL: tt.baseURL})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && c.timeout != DefaultTimeout {
				t.Errorf("timeout = %v, want default %v", c.timeout, DefaultTimeout)
			}
		})
	}
}

func TestTranscriptions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("patient_id"); got != "1" {
			t.Errorf("patient_id = %q", got)
		}
		if got := r.URL.Query().Get("dr_name"); got != "Dr. Rao" {
			t.Errorf("dr_name = %q", got)
		}
		w.Write([]byte(`{"transcriptions":[
			{"id":"a","patient_id":"1","dr_name":"Dr. Rao","transcript":"older","created_at":"2025-10-13T08:00:00Z"},
			{"id":"b","patient_id":"1","dr_name":"Dr. Rao","transcript":"newer","created_at":"2025-10-13T09:00:00Z"}
		]}`))
	}, time.Second)

	records, err := c.Transcriptions(context.Background(), "1", "Dr. Rao")
	if err != nil {
		t.Fatalf("Transcriptions() error: %v", err)
	}
	latest, ok := Latest(records)
	if !ok || latest.Transcript != "newer" {
		t.Errorf("Latest() = %+v", latest)
	}
}

func TestTranscriptionsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transcriptions":[]}`))
	}, time.Second)

	_, err := c.Transcriptions(context.Background(), "1", "Dr. Rao")
	if !errors.Is(err, ErrNoDataFound) {
		t.Errorf("expected ErrNoDataFound, got %v", err)
	}
}

func TestGenerateSummaryBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/patients/1/summary" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["transcription_data"] != "Patient reports mild fever" {
			t.Errorf("unexpected body %v", body)
		}
		w.WriteHeader(http.StatusCreated)
	}, time.Second)

	if err := c.GenerateSummary(context.Background(), "1", "Patient reports mild fever"); err != nil {
		t.Fatalf("GenerateSummary() error: %v", err)
	}
}

func TestReport(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"report":{"patient_id":"1","diagnosis":"Viral fever","symptoms":["fever","cough"]}}`))
	}, time.Second)

	r, err := c.Report(context.Background(), "1")
	if err != nil {
		t.Fatalf("Report() error: %v", err)
	}
	if r.Diagnosis != "Viral fever" || len(r.Symptoms) != 2 {
		t.Errorf("unexpected report %+v", r)
	}
}

func TestReportStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, time.Second)

	_, err := c.Report(context.Background(), "1")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Status != http.StatusInternalServerError || fe.Op != "fetch report" {
		t.Errorf("unexpected FetchError %+v", fe)
	}
}

func TestReportMissing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}, time.Second)

	if _, err := c.Report(context.Background(), "1"); !errors.Is(err, ErrNoDataFound) {
		t.Errorf("expected ErrNoDataFound, got %v", err)
	}
}

func TestApproveReport(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Query().Get("approval") != "true" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
		}
		body, _ := io.ReadAll(r.Body)
		var got report.Summary
		if err := json.Unmarshal(body, &got); err != nil || got.Diagnosis != "Viral fever" {
			t.Errorf("unexpected body %s", body)
		}
		w.Write([]byte(`{"message":"Report approved and sent to patient"}`))
	}, time.Second)

	msg, err := c.ApproveReport(context.Background(), "1", &report.Summary{Diagnosis: "Viral fever"})
	if err != nil {
		t.Fatalf("ApproveReport() error: %v", err)
	}
	if msg != "Report approved and sent to patient" {
		t.Errorf("message = %q", msg)
	}
}

func TestApproveReportNil(t *testing.T) {
	c, _ := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	if _, err := c.ApproveReport(context.Background(), "1", nil); !errors.Is(err, ErrNoDataFound) {
		t.Errorf("expected ErrNoDataFound, got %v", err)
	}
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	start := time.Now()
	err := c.GenerateSummary(context.Background(), "1", "text")
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if !IsFetchError(err) {
		t.Error("timeouts should be reported as FetchError")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout was not enforced")
	}
}

func TestNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c, _ := NewClient(Config{BaseURL: url, Timeout: time.Second})
	_, err := c.Transcriptions(context.Background(), "1", "Dr. Rao")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != 0 {
		t.Errorf("expected status-less FetchError, got %v", err)
	}
}

func TestLatestEmpty(t *testing.T) {
	if _, ok := Latest(nil); ok {
		t.Error("Latest(nil) should report false")
	}
}
