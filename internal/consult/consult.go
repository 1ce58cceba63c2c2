// Package consult is the client for the remote consultation service that
// stores transcripts and generates summary reports.
package consult

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leonardotrapani/medscribe/internal/report"
	"github.com/rs/zerolog/log"
)

const DefaultTimeout = 30 * time.Second

// Transcription is one stored transcript record.
type Transcription struct {
	ID         string    `json:"id"`
	PatientID  string    `json:"patient_id"`
	DoctorName string    `json:"dr_name"`
	Transcript string    `json:"transcript"`
	CreatedAt  time.Time `json:"created_at"`
}

// TranscriptSource looks up finalized transcripts.
type TranscriptSource interface {
	Transcriptions(ctx context.Context, patientID, doctorName string) ([]Transcription, error)
}

// Summarizer generates a summary from a transcript and returns it on request.
type Summarizer interface {
	GenerateSummary(ctx context.Context, patientID, transcript string) error
	Report(ctx context.Context, patientID string) (*report.Summary, error)
}

// Approver marks a report as approved.
type Approver interface {
	ApproveReport(ctx context.Context, patientID string, r *report.Summary) (string, error)
}

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the consultation service over REST.
type Client struct {
	baseURL *url.URL
	timeout time.Duration
	http    *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{baseURL: u, timeout: timeout, http: hc}, nil
}

type transcriptionsResponse struct {
	Transcriptions []Transcription `json:"transcriptions"`
}

// Transcriptions lists the stored transcripts for a patient and doctor.
// An empty list is reported as ErrNoDataFound.
func (c *Client) Transcriptions(ctx context.Context, patientID, doctorName string) ([]Transcription, error) {
	q := url.Values{}
	q.Set("patient_id", patientID)
	q.Set("dr_name", doctorName)

	var resp transcriptionsResponse
	if err := c.do(ctx, "fetch transcriptions", http.MethodGet, "/transcriptions", q, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Transcriptions) == 0 {
		return nil, ErrNoDataFound
	}
	return resp.Transcriptions, nil
}

// Latest returns the most recent record; ties keep the later list entry.
func Latest(records []Transcription) (Transcription, bool) {
	if len(records) == 0 {
		return Transcription{}, false
	}
	best := records[0]
	for _, r := range records[1:] {
		if !r.CreatedAt.Before(best.CreatedAt) {
			best = r
		}
	}
	return best, true
}

type summaryRequest struct {
	TranscriptionData string `json:"transcription_data"`
}

func (c *Client) GenerateSummary(ctx context.Context, patientID, transcript string) error {
	path := "/patients/" + url.PathEscape(patientID) + "/summary"
	return c.do(ctx, "generate summary", http.MethodPost, path, nil, summaryRequest{TranscriptionData: transcript}, nil)
}

type reportResponse struct {
	Report *report.Summary `json:"report"`
}

func (c *Client) Report(ctx context.Context, patientID string) (*report.Summary, error) {
	path := "/patients/" + url.PathEscape(patientID) + "/report"

	var resp reportResponse
	if err := c.do(ctx, "fetch report", http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Report == nil {
		return nil, ErrNoDataFound
	}
	return resp.Report, nil
}

type approvalResponse struct {
	Message string `json:"message"`
}

// ApproveReport submits r with approval=true and returns the service's
// confirmation text.
func (c *Client) ApproveReport(ctx context.Context, patientID string, r *report.Summary) (string, error) {
	if r == nil {
		return "", ErrNoDataFound
	}
	path := "/patients/" + url.PathEscape(patientID) + "/report"
	q := url.Values{}
	q.Set("approval", "true")

	var resp approvalResponse
	if err := c.do(ctx, "approve report", http.MethodPut, path, q, r, &resp); err != nil {
		return "", err
	}
	if resp.Message == "" {
		resp.Message = "Report approved"
	}
	return resp.Message, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &FetchError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return &FetchError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Warn().Str("op", op).Dur("timeout", c.timeout).Msg("consult: request timed out")
			return &FetchError{Op: op, Err: ErrTimedOut}
		}
		return &FetchError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &FetchError{Op: op, Status: resp.StatusCode, Err: ErrTimedOut}
		}
		return &FetchError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	log.Debug().Str("op", op).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("consult: request done")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &FetchError{Op: op, Status: resp.StatusCode}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &FetchError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("parse response: %w", err)}
	}
	return nil
}
