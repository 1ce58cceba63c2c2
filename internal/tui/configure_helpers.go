package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/leonardotrapani/medscribe/internal/config"
)

func formatDoctorLabel(cfg *config.Config) string {
	return fmt.Sprintf("Doctor (%s)", cfg.Doctor.Name)
}

func formatTranscriptionLabel(cfg *config.Config) string {
	return fmt.Sprintf("Transcription (%s)", cfg.Transcription.URL)
}

func formatServiceLabel(cfg *config.Config) string {
	return fmt.Sprintf("Consultation service (%s)", cfg.Service.BaseURL)
}

func formatSummaryLabel(cfg *config.Config) string {
	if cfg.Summary.Provider == "" {
		return "Summary (service)"
	}
	return fmt.Sprintf("Summary (%s)", cfg.Summary.Provider)
}

func formatAPILabel(cfg *config.Config) string {
	if !cfg.API.Enabled {
		return "Dashboard API (disabled)"
	}
	return fmt.Sprintf("Dashboard API (%s)", cfg.API.Listen)
}

func formatNotificationsLabel(cfg *config.Config) string {
	if !cfg.Notifications.Enabled {
		return "Notifications (disabled)"
	}
	return fmt.Sprintf("Notifications (%s)", cfg.Notifications.Type)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}

func envKeyFor(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	}
	return ""
}

// parseKeywords splits a comma separated list, dropping blanks.
func parseKeywords(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func formatKeywords(keywords []string) string {
	return strings.Join(keywords, ", ")
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}

func validateRequired(field string) func(string) error {
	return func(s string) error {
		if trimmed(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validateSocketURL(s string) error {
	return config.ValidateURL("transcription url", trimmed(s), "ws", "wss")
}

func validateServiceURL(s string) error {
	return config.ValidateURL("service url", trimmed(s), "http", "https")
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(trimmed(s))
	if err != nil {
		return errors.New("use a duration like 30s or 1m")
	}
	if d <= 0 {
		return errors.New("must be positive")
	}
	return nil
}

func showSummary(cfg *config.Config) (bool, error) {
	fmt.Println()
	fmt.Println(StyleHeader.Render("Configuration Summary"))
	fmt.Println()

	fmt.Printf("  %s %s\n", StyleLabel.Render("Doctor:"), cfg.Doctor.Name)
	fmt.Printf("  %s %s\n", StyleLabel.Render("Transcription:"), cfg.Transcription.URL)
	if cfg.Transcription.APIKey != "" {
		fmt.Printf("  %s %s\n", StyleLabel.Render("Transcription key:"), maskAPIKey(cfg.Transcription.APIKey))
	}
	fmt.Printf("  %s %s (timeout %s)\n", StyleLabel.Render("Service:"), cfg.Service.BaseURL, cfg.Service.RequestTimeout)
	fmt.Printf("  %s %s\n", StyleLabel.Render("Summary:"), formatSummaryLabel(cfg))
	if len(cfg.Summary.Keywords) > 0 {
		fmt.Printf("  %s %s\n", StyleLabel.Render("Keywords:"), formatKeywords(cfg.Summary.Keywords))
	}
	fmt.Printf("  %s %s\n", StyleLabel.Render("API:"), formatAPILabel(cfg))
	fmt.Printf("  %s %s\n", StyleLabel.Render("Notifications:"), formatNotificationsLabel(cfg))

	if err := cfg.Validate(); err != nil {
		fmt.Println()
		fmt.Println(StyleWarning.Render("  Warning: " + err.Error()))
	}
	fmt.Println()

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this configuration?").
				Affirmative("Save").
				Negative("Cancel").
				Value(&confirmed),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}
