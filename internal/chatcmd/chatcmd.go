// Package chatcmd handles messages the clinician types into a patient's
// chat and the report approval action.
package chatcmd

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/leonardotrapani/medscribe/internal/chat"
	"github.com/leonardotrapani/medscribe/internal/consult"
	"github.com/leonardotrapani/medscribe/internal/report"
	"github.com/leonardotrapani/medscribe/internal/state"
	"github.com/rs/zerolog/log"
)

const (
	NoSummaryText      = "No consultation summary is available yet. Record a consultation first."
	ExportFailedText   = "Could not export the consultation summary."
	ApproveFailedText  = "Could not approve the report. Please try again."
	NothingToApprove   = "There is no report to approve yet."
	exportingText      = "Preparing summary document..."
	exportedTextFormat = "Summary exported to %s"
)

var ErrEmptyMessage = errors.New("empty message")

var summaryWord = regexp.MustCompile(`(?i)\bsummary\b`)

type Exporter interface {
	Export(s report.Summary) (string, error)
}

type Handler struct {
	store    *chat.Store
	state    *state.State
	approver consult.Approver
	exporter Exporter
}

func New(store *chat.Store, st *state.State, approver consult.Approver, exporter Exporter) *Handler {
	return &Handler{store: store, state: st, approver: approver, exporter: exporter}
}

// MentionsSummary reports whether text asks for the summary document.
func MentionsSummary(text string) bool {
	return summaryWord.MatchString(text)
}

// Send appends the clinician's message. Messages mentioning "summary"
// export the latest summary report.
func (h *Handler) Send(ctx context.Context, patientID, text string) (chat.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Message{}, ErrEmptyMessage
	}

	msg, err := h.store.Append(patientID, chat.NewMessage(chat.SenderClinician, text))
	if err != nil {
		return chat.Message{}, err
	}
	if !MentionsSummary(text) {
		return msg, nil
	}

	latest, ok := h.latestFor(patientID)
	if !ok {
		_, err := h.store.Append(patientID, chat.NewMessage(chat.SenderAgent, NoSummaryText))
		return msg, err
	}

	h.notify(patientID, chat.Message{Sender: chat.SenderAgent, Text: exportingText, Typing: true})
	path, exportErr := h.exporter.Export(latest)
	h.store.RemoveWhere(patientID, func(m chat.Message) bool { return m.Typing })

	if exportErr != nil {
		log.Error().Err(exportErr).Str("patient_id", patientID).Msg("chatcmd: summary export failed")
		_, err := h.store.Append(patientID, chat.Message{Sender: chat.SenderAgent, Text: ExportFailedText, Failed: true})
		return msg, err
	}

	log.Info().Str("patient_id", patientID).Str("path", path).Msg("chatcmd: summary exported")
	_, err = h.store.Append(patientID, chat.NewMessage(chat.SenderAgent, fmt.Sprintf(exportedTextFormat, path)))
	return msg, err
}

// Approve submits the latest summary report for patientID. Failures are
// logged and reported in the chat. A report produced for another patient is
// never submitted.
func (h *Handler) Approve(ctx context.Context, patientID string) (string, error) {
	latest, ok := h.latestFor(patientID)
	if !ok {
		h.notify(patientID, chat.Message{Sender: chat.SenderAgent, Text: NothingToApprove, Failed: true})
		return "", consult.ErrNoDataFound
	}

	confirmation, err := h.approver.ApproveReport(ctx, patientID, &latest)
	if err != nil {
		log.Error().Err(err).Str("patient_id", patientID).Msg("chatcmd: report approval failed")
		h.notify(patientID, chat.Message{Sender: chat.SenderAgent, Text: ApproveFailedText, Failed: true})
		return "", fmt.Errorf("approve report: %w", err)
	}

	h.notify(patientID, chat.NewMessage(chat.SenderAgent, confirmation))
	return confirmation, nil
}

// latestFor returns the latest summary only when it belongs to patientID.
func (h *Handler) latestFor(patientID string) (report.Summary, bool) {
	latest, ok := h.state.LatestSummary()
	if !ok {
		return report.Summary{}, false
	}
	if latest.PatientID != patientID {
		log.Warn().Str("patient_id", patientID).Str("summary_patient_id", latest.PatientID).
			Msg("chatcmd: latest summary belongs to another patient")
		return report.Summary{}, false
	}
	return latest, true
}

// notify appends an agent message whose delivery does not change the
// outcome of the command.
func (h *Handler) notify(patientID string, m chat.Message) {
	if _, err := h.store.Append(patientID, m); err != nil {
		log.Warn().Err(err).Str("patient_id", patientID).Msg("chatcmd: append message failed")
	}
}
