// Package api serves chat threads and session control to the dashboard.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/leonardotrapani/medscribe/internal/chat"
	"github.com/leonardotrapani/medscribe/internal/chatcmd"
	"github.com/leonardotrapani/medscribe/internal/consult"
	"github.com/leonardotrapani/medscribe/internal/patient"
	"github.com/leonardotrapani/medscribe/internal/recording"
	"github.com/leonardotrapani/medscribe/internal/session"
	"github.com/leonardotrapani/medscribe/internal/stream"
	"github.com/rs/zerolog/log"
)

// Recorder is the session control surface the API drives.
type Recorder interface {
	Start(ctx context.Context, patientID string) error
	Stop(ctx context.Context) error
	Status() session.Status
}

// Commands handles chat input and report approval.
type Commands interface {
	Send(ctx context.Context, patientID, text string) (chat.Message, error)
	Approve(ctx context.Context, patientID string) (string, error)
}

type Options struct {
	Store          *chat.Store
	Patients       *patient.Directory
	Recorder       Recorder
	Commands       Commands
	AllowedOrigins []string
	Version        string
}

type Server struct {
	store    *chat.Store
	patients *patient.Directory
	recorder Recorder
	commands Commands
	origins  map[string]bool
	version  string
	router   chi.Router
	upgrader websocket.Upgrader
}

func NewServer(opts Options) *Server {
	srv := &Server{
		store:    opts.Store,
		patients: opts.Patients,
		recorder: opts.Recorder,
		commands: opts.Commands,
		origins:  make(map[string]bool),
		version:  opts.Version,
	}
	allowed := make([]string, 0, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		o = strings.TrimRight(o, "/")
		srv.origins[o] = true
		allowed = append(allowed, o)
	}
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     srv.checkOrigin,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", srv.handleHealth)
		r.Get("/patients", srv.handleListPatients)
		r.Route("/patients/{patientID}", func(r chi.Router) {
			r.Get("/messages", srv.handleGetMessages)
			r.Post("/messages", srv.handleSendMessage)
			r.Post("/report/approve", srv.handleApprove)
			r.Get("/stream", srv.handleStream)
		})
		r.Get("/session", srv.handleSessionStatus)
		r.Post("/session/start", srv.handleSessionStart)
		r.Post("/session/stop", srv.handleSessionStop)
	})

	srv.router = r
	return srv
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("api: starting HTTP API")
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return s.origins[origin]
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.recorder.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "medscribe",
		"version":   s.version,
		"recording": st.Recording,
	})
}

// handleListPatients serves the directory, narrowed by ?q= on the name.
func (s *Server) handleListPatients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"patients": s.patients.Search(r.URL.Query().Get("q"))})
}

func (s *Server) patientFromURL(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "patientID")
	if _, err := s.patients.Get(id); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "patient not found"})
		return "", false
	}
	return id, true
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := s.patientFromURL(w, r)
	if !ok {
		return
	}
	msgs := s.store.Messages(id)
	if msgs == nil {
		msgs = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"patient_id": id, "messages": msgs})
}

type sendRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.patientFromURL(w, r)
	if !ok {
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	msg, err := s.commands.Send(r.Context(), id, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := s.patientFromURL(w, r)
	if !ok {
		return
	}

	msg, err := s.commands.Approve(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.recorder.Status())
}

type startRequest struct {
	PatientID string `json:"patient_id"`
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	// an empty body starts the selected patient
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	if err := s.recorder.Start(r.Context(), req.PatientID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.recorder.Status())
}

func (s *Server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if err := s.recorder.Stop(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.recorder.Status())
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrAlreadyRecording), errors.Is(err, session.ErrPipelineBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrNoPatient):
		return http.StatusBadRequest
	case errors.Is(err, chatcmd.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, recording.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, consult.ErrNoDataFound):
		return http.StatusNotFound
	case errors.Is(err, consult.ErrTimedOut):
		return http.StatusGatewayTimeout
	case stream.IsConnectionError(err), consult.IsFetchError(err):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("api: request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
