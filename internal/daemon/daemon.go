// Package daemon runs the recording controller behind the control socket
// and the HTTP API.
package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/leonardotrapani/medscribe/internal/api"
	"github.com/leonardotrapani/medscribe/internal/bus"
	"github.com/leonardotrapani/medscribe/internal/chat"
	"github.com/leonardotrapani/medscribe/internal/chatcmd"
	"github.com/leonardotrapani/medscribe/internal/config"
	"github.com/leonardotrapani/medscribe/internal/consult"
	"github.com/leonardotrapani/medscribe/internal/deps"
	"github.com/leonardotrapani/medscribe/internal/notify"
	"github.com/leonardotrapani/medscribe/internal/patient"
	"github.com/leonardotrapani/medscribe/internal/pipeline"
	"github.com/leonardotrapani/medscribe/internal/recording"
	"github.com/leonardotrapani/medscribe/internal/report"
	"github.com/leonardotrapani/medscribe/internal/session"
	"github.com/leonardotrapani/medscribe/internal/state"
	"github.com/leonardotrapani/medscribe/internal/stream"
	"github.com/leonardotrapani/medscribe/internal/summarize"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Recorder is the part of the session controller the daemon drives.
type Recorder interface {
	api.Recorder
	Close()
}

// Components are the collaborators a daemon dispatches to.
type Components struct {
	Store    *chat.Store
	Patients *patient.Directory
	State    *state.State
	Recorder Recorder
	Commands api.Commands
}

type Daemon struct {
	store    *chat.Store
	patients *patient.Directory
	state    *state.State
	recorder Recorder
	commands api.Commands

	manager   *config.Manager
	apiServer *api.Server
	apiAddr   string
	version   string

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds every component from the manager's current config.
func New(manager *config.Manager, version string) (*Daemon, error) {
	cfg := manager.GetConfig()

	store := chat.NewStore()
	patients := patient.NewDirectory(cfg.Patients)
	st := state.New(cfg.Doctor.Name)
	seedThreads(store, patients.List())

	client, err := consult.NewClient(cfg.ToConsultConfig())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("consultation service: %w", err)
	}

	var summarizer consult.Summarizer = client
	if cfg.UsesLocalSummary() {
		chatSummarizer, err := summarize.New(cfg.ToSummarizeConfig())
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("summarizer: %w", err)
		}
		summarizer = chatSummarizer
		log.Info().Str("provider", cfg.Summary.Provider).Msg("Daemon: using local summarizer")
	}

	notifierKind := cfg.Notifications.Type
	if !cfg.Notifications.Enabled {
		notifierKind = "none"
	}
	notifier, err := notify.New(notifierKind, cfg.Notifications.Messages.Resolve())
	if err != nil {
		store.Close()
		return nil, err
	}

	deps.Missing(deps.Required(cfg.Recording.Backend, notifierKind))

	recCfg := cfg.ToRecordingConfig()
	controller := session.NewController(session.Options{
		Store:    store,
		Patients: patients,
		State:    st,
		Pipeline: pipeline.New(client, summarizer, store, st),
		Notifier: notifier,
		NewSource: func() (recording.Source, error) {
			return recording.NewSource(recCfg)
		},
		Dial:       session.StreamDialer(streamConfig(cfg)),
		SampleRate: recCfg.SampleRate,
		Channels:   recCfg.Channels,
	})

	commands := chatcmd.New(store, st, client, report.NewHTMLExporter(cfg.ExportDir()))

	d := newDaemon(Components{
		Store:    store,
		Patients: patients,
		State:    st,
		Recorder: controller,
		Commands: commands,
	}, version)
	d.manager = manager

	if cfg.API.Enabled {
		d.apiAddr = cfg.API.Listen
		d.apiServer = api.NewServer(api.Options{
			Store:          store,
			Patients:       patients,
			Recorder:       controller,
			Commands:       commands,
			AllowedOrigins: cfg.API.AllowedOrigins,
			Version:        version,
		})
	}

	manager.OnReload(d.applyConfig)
	return d, nil
}

func newDaemon(c Components, version string) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		store:    c.Store,
		patients: c.Patients,
		state:    c.State,
		recorder: c.Recorder,
		commands: c.Commands,
		version:  version,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func streamConfig(cfg *config.Config) stream.Config {
	sc := stream.Config{
		URL:              cfg.Transcription.URL,
		HandshakeTimeout: cfg.Transcription.HandshakeTimeout,
	}
	if key := cfg.TranscriptionAPIKey(); key != "" {
		sc.Header = http.Header{"Authorization": []string{"Bearer " + key}}
	}
	return sc
}

// seedThreads gives every patient without a thread their configured history
// followed by their greeting.
func seedThreads(store *chat.Store, patients []patient.Patient) {
	for _, p := range patients {
		if len(store.Messages(p.ID)) > 0 {
			continue
		}
		msgs := historyMessages(p)
		if p.Greeting != "" {
			msgs = append(msgs, chat.NewMessage(chat.SenderAgent, p.Greeting))
		}
		if len(msgs) == 0 {
			continue
		}
		if err := store.Seed(p.ID, msgs); err != nil {
			log.Warn().Err(err).Str("patient_id", p.ID).Msg("Daemon: failed to seed thread")
		}
	}
}

func historyMessages(p patient.Patient) []chat.Message {
	msgs := make([]chat.Message, 0, len(p.History))
	for _, h := range p.History {
		sender := chat.SenderPatient
		switch h.Sender {
		case patient.HistoryClinician:
			sender = chat.SenderClinician
		case patient.HistoryAgent:
			sender = chat.SenderAgent
		}
		msgs = append(msgs, chat.Message{
			Sender:    sender,
			Text:      h.Text,
			Time:      h.Time,
			Date:      h.Date,
			CreatedAt: h.CreatedAt(),
		})
	}
	return msgs
}

// applyConfig takes the reloadable parts of a new config. Endpoints and
// audio settings need a restart.
func (d *Daemon) applyConfig(cfg *config.Config) {
	d.patients.Replace(cfg.Patients)
	d.state.SetDoctorName(cfg.Doctor.Name)
	seedThreads(d.store, d.patients.List())
	log.Info().
		Int("patients", len(cfg.Patients)).
		Str("dr_name", cfg.Doctor.Name).
		Msg("Daemon: config applied")
}

// Run serves the control socket, and the HTTP API when enabled, until a
// quit command or a termination signal.
func (d *Daemon) Run() error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := bus.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := bus.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer bus.RemovePidFile()

	ctx, stop := signal.NotifyContext(d.ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		ln.Close()
		return nil
	})

	g.Go(func() error {
		return d.acceptLoop(ctx, ln)
	})

	if d.apiServer != nil {
		g.Go(func() error {
			if err := d.apiServer.Serve(ctx, d.apiAddr); err != nil {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		})
	}

	if d.manager != nil {
		if err := d.manager.StartWatching(ctx); err != nil {
			log.Warn().Err(err).Msg("Daemon: config watching disabled")
		} else {
			defer d.manager.Stop()
		}
	}

	log.Info().Msg("Daemon: started, listening on socket")

	err = g.Wait()
	d.shutdown()
	return err
}

func (d *Daemon) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Daemon: shutdown requested")
				return nil
			}
			log.Error().Err(err).Msg("Daemon: accept error")
			return fmt.Errorf("accept failed: %w", err)
		}
		go d.handle(c)
	}
}

func (d *Daemon) shutdown() {
	d.cancel()
	d.recorder.Close()
	d.store.Close()
	log.Info().Msg("Daemon: stopped")
}

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil && line == "" {
		log.Warn().Err(err).Msg("Daemon: client read error")
		fmt.Fprintf(c, "ERR read_error: %v\n", err)
		return
	}

	cmd, err := bus.ParseCommand(line)
	if err != nil {
		fmt.Fprintf(c, "ERR %v\n", err)
		return
	}
	fmt.Fprintf(c, "%s\n", d.dispatch(cmd))
}

// dispatch runs one command and returns its single-line reply.
func (d *Daemon) dispatch(cmd bus.Command) string {
	ctx := d.ctx

	switch cmd.Op {
	case bus.CmdStart:
		if err := d.recorder.Start(ctx, cmd.PatientID); err != nil {
			return errReply(err)
		}
		return "OK recording " + d.recorder.Status().PatientID

	case bus.CmdStop:
		if !d.recorder.Status().Recording {
			return "OK idle"
		}
		if err := d.recorder.Stop(ctx); err != nil {
			return errReply(err)
		}
		return "OK stopped"

	case bus.CmdStatus:
		return formatStatus(d.recorder.Status())

	case bus.CmdSend:
		msg, err := d.commands.Send(ctx, cmd.PatientID, cmd.Text)
		if err != nil {
			return errReply(err)
		}
		return "OK sent " + msg.ID

	case bus.CmdApprove:
		msg, err := d.commands.Approve(ctx, cmd.PatientID)
		if err != nil {
			return errReply(err)
		}
		return "OK " + msg

	case bus.CmdVersion:
		return fmt.Sprintf("STATUS proto=%s version=%s", bus.ProtoVer, d.version)

	case bus.CmdQuit:
		d.cancel()
		return "OK quitting"

	default:
		log.Warn().Str("op", string(cmd.Op)).Msg("Daemon: unknown command")
		return fmt.Sprintf("ERR unknown=%q", cmd.Op)
	}
}

func formatStatus(s session.Status) string {
	patientID := s.PatientID
	if patientID == "" {
		patientID = "-"
	}
	return fmt.Sprintf("STATUS state=%s recording=%t patient=%s frames=%d", s.State, s.Recording, patientID, s.Frames)
}

func errReply(err error) string {
	switch {
	case errors.Is(err, session.ErrAlreadyRecording):
		return "ERR already_recording"
	case errors.Is(err, session.ErrPipelineBusy):
		return "ERR pipeline_busy"
	case errors.Is(err, recording.ErrPermissionDenied):
		return "ERR permission_denied"
	}
	// replies are single lines
	return "ERR " + strings.ReplaceAll(err.Error(), "\n", " ")
}
