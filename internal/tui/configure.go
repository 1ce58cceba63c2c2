package tui

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/leonardotrapani/medscribe/internal/config"
	"github.com/muesli/termenv"
)

// Result is what the configure menu hands back to the CLI.
type Result struct {
	Config    *config.Config
	Cancelled bool
}

// menuEntry is one editable settings group. Edits only touch cfg once their
// form completes.
type menuEntry struct {
	label func(*config.Config) string
	edit  func(*config.Config) error
}

var menuEntries = []menuEntry{
	{formatDoctorLabel, editDoctor},
	{formatTranscriptionLabel, editTranscription},
	{formatServiceLabel, editService},
	{formatSummaryLabel, editSummary},
	{formatAPILabel, editAPI},
	{formatNotificationsLabel, editNotifications},
}

const (
	choiceSave    = -1
	choiceDiscard = -2
)

// Run edits a copy of existing until the user saves or discards it.
func Run(existing *config.Config) (*Result, error) {
	cfg := config.DefaultConfig()
	if existing != nil {
		c := *existing
		cfg = &c
	}

	for {
		clearScreen()
		fmt.Println(Logo())
		fmt.Println()

		choice, err := pickEntry(cfg)
		if err != nil {
			return &Result{Cancelled: true}, nil
		}

		switch choice {
		case choiceDiscard:
			return &Result{Cancelled: true}, nil
		case choiceSave:
			ok, err := showSummary(cfg)
			if err != nil {
				return &Result{Cancelled: true}, nil
			}
			if ok {
				return &Result{Config: cfg}, nil
			}
		default:
			// An aborted form leaves cfg unchanged and returns to the menu.
			_ = menuEntries[choice].edit(cfg)
		}
	}
}

func menuOptions(cfg *config.Config) []huh.Option[int] {
	opts := make([]huh.Option[int], 0, len(menuEntries)+2)
	for i, e := range menuEntries {
		opts = append(opts, huh.NewOption(e.label(cfg), i))
	}
	return append(opts,
		huh.NewOption("Save and exit", choiceSave),
		huh.NewOption("Discard changes", choiceDiscard),
	)
}

func pickEntry(cfg *config.Config) (int, error) {
	choice := 0
	menu := huh.NewSelect[int]().
		Title("medscribe settings").
		Description("↑/↓ move • enter edit • esc quit").
		Options(menuOptions(cfg)...).
		Value(&choice)

	err := huh.NewForm(huh.NewGroup(menu)).WithTheme(getTheme()).Run()
	return choice, err
}

func editDoctor(cfg *config.Config) error {
	name := cfg.Doctor.Name
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Doctor name").
				Description("Sent with every recording session and report").
				Value(&name).
				Validate(validateRequired("doctor name")),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Doctor.Name = trimmed(name)
	return nil
}

func editTranscription(cfg *config.Config) error {
	url := cfg.Transcription.URL
	apiKey := cfg.Transcription.APIKey
	timeout := cfg.Transcription.HandshakeTimeout.String()

	keyDesc := "Leave empty to use MEDSCRIBE_TRANSCRIPTION_KEY"
	if apiKey != "" {
		keyDesc = "Current: " + maskAPIKey(apiKey)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Transcription socket URL").
				Description("Streaming speech-to-text endpoint (ws:// or wss://)").
				Value(&url).
				Validate(validateSocketURL),
			huh.NewInput().
				Title("API key").
				Description(keyDesc).
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewInput().
				Title("Handshake timeout").
				Value(&timeout).
				Validate(validateDuration),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Transcription.URL = trimmed(url)
	cfg.Transcription.APIKey = trimmed(apiKey)
	cfg.Transcription.HandshakeTimeout, _ = time.ParseDuration(trimmed(timeout))
	return nil
}

func editService(cfg *config.Config) error {
	baseURL := cfg.Service.BaseURL
	timeout := cfg.Service.RequestTimeout.String()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Consultation service URL").
				Description("Transcriptions, summaries and report approval").
				Value(&baseURL).
				Validate(validateServiceURL),
			huh.NewInput().
				Title("Request timeout").
				Description("Applies to every service call").
				Value(&timeout).
				Validate(validateDuration),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Service.BaseURL = trimmed(baseURL)
	cfg.Service.RequestTimeout, _ = time.ParseDuration(trimmed(timeout))
	return nil
}

func editSummary(cfg *config.Config) error {
	provider := cfg.Summary.Provider
	if provider == "" {
		provider = "service"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Summary provider").
				Description("Who turns the transcript into a report").
				Options(
					huh.NewOption("Consultation service", "service"),
					huh.NewOption("OpenAI", "openai"),
					huh.NewOption("Groq", "groq"),
				).
				Value(&provider),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Summary.Provider = provider

	if provider == "service" {
		return nil
	}

	apiKey := cfg.Summary.APIKey
	model := cfg.Summary.Model
	keywords := formatKeywords(cfg.Summary.Keywords)

	keyDesc := fmt.Sprintf("Leave empty to use %s", envKeyFor(provider))
	if apiKey != "" {
		keyDesc = "Current: " + maskAPIKey(apiKey)
	}

	details := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API key").
				Description(keyDesc).
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewInput().
				Title("Model").
				Description("Leave empty for the provider default").
				Value(&model),
			huh.NewInput().
				Title("Keywords").
				Description("Comma separated medical terms to spell correctly").
				Value(&keywords),
		),
	).WithTheme(getTheme())

	if err := details.Run(); err != nil {
		return err
	}

	cfg.Summary.APIKey = trimmed(apiKey)
	cfg.Summary.Model = trimmed(model)
	cfg.Summary.Keywords = parseKeywords(keywords)
	return nil
}

func editAPI(cfg *config.Config) error {
	enabled := cfg.API.Enabled
	listen := cfg.API.Listen
	origins := formatKeywords(cfg.API.AllowedOrigins)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Serve the dashboard API?").
				Value(&enabled),
			huh.NewInput().
				Title("Listen address").
				Value(&listen),
			huh.NewInput().
				Title("Allowed origins").
				Description("Comma separated dashboard origins").
				Value(&origins),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.API.Enabled = enabled
	cfg.API.Listen = trimmed(listen)
	cfg.API.AllowedOrigins = parseKeywords(origins)
	return nil
}

const notifierOff = "off"

func editNotifications(cfg *config.Config) error {
	kind := cfg.Notifications.Type
	switch {
	case !cfg.Notifications.Enabled:
		kind = notifierOff
	case kind == "":
		kind = "desktop"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Notifications").
				Description("Recording started/stopped, failures and finished summaries").
				Options(
					huh.NewOption("Desktop (notify-send)", "desktop"),
					huh.NewOption("Daemon log only", "log"),
					huh.NewOption("Off", notifierOff),
				).
				Value(&kind),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	applyNotifier(cfg, kind)
	return nil
}

// applyNotifier maps the menu choice onto the notifications table. "off"
// disables notifications and keeps the previous type.
func applyNotifier(cfg *config.Config, kind string) {
	if kind == notifierOff {
		cfg.Notifications.Enabled = false
		return
	}
	cfg.Notifications.Enabled = true
	cfg.Notifications.Type = kind
}

func clearScreen() {
	termenv.NewOutput(os.Stdout).ClearScreen()
}

// getTheme tints the base huh theme with the medscribe palette.
func getTheme() *huh.Theme {
	fg := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

	t := huh.ThemeBase()
	t.Focused.Base = t.Focused.Base.BorderForeground(ColorSecondary)
	t.Focused.Title = fg(ColorSecondary).Bold(true)
	t.Focused.Description = fg(ColorSubtle)
	t.Focused.SelectSelector = fg(ColorPrimary).SetString("› ")
	t.Focused.SelectedOption = fg(ColorPrimary).Bold(true)
	t.Focused.UnselectedOption = fg(ColorText)
	t.Focused.ErrorMessage = fg(ColorError)
	t.Blurred.Title = fg(ColorSubtle)
	t.Blurred.Description = fg(ColorSubtle)
	return t
}
