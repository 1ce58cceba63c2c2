package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/leonardotrapani/medscribe/internal/chat"
	"github.com/leonardotrapani/medscribe/internal/session"
)

const pollInterval = 500 * time.Millisecond

// API is what the watch view needs from the daemon.
type API interface {
	Status(ctx context.Context) (session.Status, error)
	Messages(ctx context.Context, patientID string) ([]chat.Message, error)
	Start(ctx context.Context, patientID string) (session.Status, error)
	Stop(ctx context.Context) (session.Status, error)
}

type tickMsg time.Time

type snapshotMsg struct {
	status   session.Status
	messages []chat.Message
}

type toggledMsg struct {
	status session.Status
}

type errMsg struct{ err error }

// WatchModel follows one patient's thread and the recording state.
type WatchModel struct {
	api       API
	patientID string

	status    session.Status
	messages  []chat.Message
	connected bool
	toggling  bool
	errText   string

	width  int
	height int
}

func NewWatchModel(api API, patientID string) WatchModel {
	return WatchModel{api: api, patientID: patientID, width: 80, height: 24}
}

// RunWatch runs the watch view until the user quits.
func RunWatch(api API, patientID string) error {
	_, err := tea.NewProgram(NewWatchModel(api, patientID), tea.WithAltScreen()).Run()
	return err
}

func (m WatchModel) Init() tea.Cmd {
	return fetchCmd(m.api, m.patientID)
}

func fetchCmd(api API, patientID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		st, err := api.Status(ctx)
		if err != nil {
			return errMsg{err}
		}
		msgs, err := api.Messages(ctx, patientID)
		if err != nil {
			return errMsg{err}
		}
		return snapshotMsg{status: st, messages: msgs}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func toggleCmd(api API, patientID string, recording bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var (
			st  session.Status
			err error
		)
		if recording {
			st, err = api.Stop(ctx)
		} else {
			st, err = api.Start(ctx, patientID)
		}
		if err != nil {
			return errMsg{err}
		}
		return toggledMsg{status: st}
	}
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r", " ":
			if m.toggling || !m.connected {
				return m, nil
			}
			m.toggling = true
			m.errText = ""
			return m, toggleCmd(m.api, m.patientID, m.ownsRecording())
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, fetchCmd(m.api, m.patientID)

	case snapshotMsg:
		m.connected = true
		m.status = msg.status
		m.messages = msg.messages
		return m, tickCmd()

	case toggledMsg:
		m.toggling = false
		m.status = msg.status
		return m, nil

	case errMsg:
		m.toggling = false
		m.errText = msg.err.Error()
		if !m.connected {
			return m, tickCmd()
		}
		return m, nil
	}
	return m, nil
}

// ownsRecording reports whether the active capture belongs to this view's
// patient. Another patient's capture is left alone.
func (m WatchModel) ownsRecording() bool {
	return m.status.Recording && m.status.PatientID == m.patientID
}

func (m WatchModel) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderThread())
	b.WriteString("\n")
	if m.errText != "" {
		b.WriteString(StyleError.Render("Error: " + m.errText))
		b.WriteString("\n")
	}
	b.WriteString(StyleSubtle.Render("r start/stop recording • q quit"))
	return b.String()
}

func (m WatchModel) renderHeader() string {
	badge := StyleIdle.Render(strings.ToUpper(string(orIdle(m.status.State))))
	if m.ownsRecording() {
		badge = StyleRecording.Render("● REC")
	}
	title := StyleLabel.Render("Patient " + m.patientID)
	info := ""
	if !m.connected {
		info = StyleWarning.Render("connecting to daemon...")
	} else if m.status.Recording && !m.ownsRecording() {
		info = StyleMuted.Render("recording patient " + m.status.PatientID)
	} else if m.ownsRecording() {
		info = StyleMuted.Render(fmt.Sprintf("%d frames", m.status.Frames))
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, badge, " ", title, "  ", info)
}

func (m WatchModel) renderThread() string {
	if len(m.messages) == 0 {
		return StyleMuted.Render("No messages yet.") + "\n"
	}

	// leave room for header and footer
	visible := m.height - 6
	if visible < 3 {
		visible = 3
	}
	msgs := m.messages
	if len(msgs) > visible {
		msgs = msgs[len(msgs)-visible:]
	}

	width := m.width - 4
	if width < 20 {
		width = 20
	}

	var b strings.Builder
	for _, msg := range msgs {
		b.WriteString(renderMessage(msg, width))
		b.WriteString("\n")
	}
	return b.String()
}

func renderMessage(msg chat.Message, width int) string {
	sender := StyleAgent.Render(string(msg.Sender))
	switch msg.Sender {
	case chat.SenderClinician:
		sender = StyleClinician.Render(string(msg.Sender))
	case chat.SenderPatient:
		sender = StylePatient.Render(string(msg.Sender))
	}

	text := msg.Text
	switch {
	case msg.Loading || msg.Typing:
		text = StyleSubtle.Render(text)
	case msg.Failed:
		text = StyleError.Render(text)
	case msg.IsLive:
		text = text + StyleWarning.Render(" ▌")
	}

	line := fmt.Sprintf("%s %s %s", StyleMuted.Render(msg.Time), sender, text)
	if msg.Report != nil {
		line += "\n" + StyleBox.Width(width).Render(strings.TrimSpace(msg.Report.Markdown()))
	}
	return lipgloss.NewStyle().Width(width).Render(line)
}

func orIdle(s session.State) session.State {
	if s == "" {
		return session.Idle
	}
	return s
}
