package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leonardotrapani/medscribe/internal/chat"
	"github.com/leonardotrapani/medscribe/internal/consult"
	"github.com/leonardotrapani/medscribe/internal/report"
	"github.com/leonardotrapani/medscribe/internal/state"
	"github.com/rs/zerolog/log"
)

type Status string

const (
	Finalizing  Status = "finalizing"
	Summarizing Status = "summarizing"
	Complete    Status = "complete"
	Failed      Status = "failed"
)

const (
	LoadingText = "Generating consultation summary..."
	FailureText = "Could not generate the consultation summary. Please start a new recording to try again."
	ReportText  = "Consultation summary is ready."
)

// Request identifies the finished recording session.
type Request struct {
	PatientID  string
	DoctorName string
}

// Result is the terminal outcome of one run.
type Result struct {
	Status     Status
	Transcript string
	Report     *report.Summary
	Err        error
}

// Runner is what the session controller hands a stopped session to.
type Runner interface {
	Run(ctx context.Context, req Request, progress func(Status)) Result
}

// Pipeline turns a stopped recording into a published transcript and,
// when the service cooperates, a summary report. Stages run strictly in
// order; no stage is retried.
type Pipeline struct {
	transcripts consult.TranscriptSource
	summarizer  consult.Summarizer
	store       *chat.Store
	state       *state.State
}

var _ Runner = (*Pipeline)(nil)

func New(transcripts consult.TranscriptSource, summarizer consult.Summarizer, store *chat.Store, st *state.State) *Pipeline {
	return &Pipeline{
		transcripts: transcripts,
		summarizer:  summarizer,
		store:       store,
		state:       st,
	}
}

func (p *Pipeline) Run(ctx context.Context, req Request, progress func(Status)) Result {
	if progress == nil {
		progress = func(Status) {}
	}
	start := time.Now()
	logger := log.With().Str("patient_id", req.PatientID).Logger()
	acc := chat.NewAccumulator(p.store, req.PatientID)

	progress(Finalizing)
	logger.Info().Msg("Pipeline: fetching final transcript")

	records, err := p.transcripts.Transcriptions(ctx, req.PatientID, req.DoctorName)
	latest, found := consult.Latest(records)
	if err != nil || !found {
		if err == nil {
			err = consult.ErrNoDataFound
		}
		if errors.Is(err, consult.ErrNoDataFound) {
			logger.Info().Msg("Pipeline: no stored transcript, keeping local text")
		} else {
			logger.Warn().Err(err).Msg("Pipeline: transcript fetch failed, keeping local text")
		}
		acc.Seal()
		progress(Complete)
		return Result{Status: Complete, Err: err}
	}

	if _, err := acc.Finalize(latest.Transcript); err != nil {
		logger.Error().Err(err).Msg("Pipeline: publish transcript failed")
		progress(Failed)
		return Result{Status: Failed, Err: fmt.Errorf("publish transcript: %w", err)}
	}

	progress(Summarizing)
	if _, err := p.store.Append(req.PatientID, chat.Message{
		Sender:  chat.SenderAgent,
		Text:    LoadingText,
		Loading: true,
	}); err != nil {
		progress(Failed)
		return Result{Status: Failed, Transcript: latest.Transcript, Err: fmt.Errorf("insert placeholder: %w", err)}
	}

	summary, err := p.summarize(ctx, req.PatientID, latest.Transcript)
	p.store.RemoveWhere(req.PatientID, func(m chat.Message) bool { return m.Loading })

	if err != nil {
		logger.Error().Err(err).Msg("Pipeline: summary failed")
		p.store.Append(req.PatientID, chat.Message{
			Sender: chat.SenderAgent,
			Text:   FailureText,
			Failed: true,
		})
		progress(Failed)
		return Result{Status: Failed, Transcript: latest.Transcript, Err: err}
	}

	p.store.Append(req.PatientID, chat.Message{
		Sender: chat.SenderAgent,
		Text:   ReportText,
		Report: summary,
	})
	p.state.SetLatestSummary(summary)

	logger.Info().Dur("took", time.Since(start)).Msg("Pipeline: summary published")
	progress(Complete)
	return Result{Status: Complete, Transcript: latest.Transcript, Report: summary}
}

func (p *Pipeline) summarize(ctx context.Context, patientID, transcript string) (*report.Summary, error) {
	if err := p.summarizer.GenerateSummary(ctx, patientID, transcript); err != nil {
		return nil, fmt.Errorf("generate summary: %w", err)
	}
	summary, err := p.summarizer.Report(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("fetch report: %w", err)
	}
	if summary != nil && summary.PatientID == "" {
		summary.PatientID = patientID
	}
	return summary, nil
}
