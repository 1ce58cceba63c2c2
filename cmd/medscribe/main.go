package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/leonardotrapani/medscribe/internal/bus"
	"github.com/leonardotrapani/medscribe/internal/config"
	"github.com/leonardotrapani/medscribe/internal/daemon"
	"github.com/leonardotrapani/medscribe/internal/logging"
	"github.com/leonardotrapani/medscribe/internal/tui"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "medscribe",
	Short:        "Consultation recorder and summary assistant for clinicians",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		startCmd(),
		stopCmd(),
		statusCmd(),
		sendCmd(),
		approveCmd(),
		watchCmd(),
		configureCmd(),
		versionCmd(),
		quitCmd(),
	)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := config.NewManager()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			closer, err := logging.Init(manager.GetConfig().ToLoggingConfig())
			if err != nil {
				return fmt.Errorf("failed to set up logging: %w", err)
			}
			defer closer.Close()

			log.Info().Str("version", version).Str("config", manager.Path()).Msg("medscribe starting")

			d, err := daemon.New(manager, version)
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}
			return d.Run()
		},
	}
}

// send writes one command to the daemon and prints its reply. ERR replies
// become a non-zero exit.
func send(c bus.Command, action string) error {
	resp, err := bus.SendCommand(c)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	fmt.Print(resp)
	if strings.HasPrefix(resp, "ERR") {
		return fmt.Errorf("%s: %s", action, strings.TrimSpace(strings.TrimPrefix(resp, "ERR")))
	}
	return nil
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start [patient-id]",
		Short: "Start recording a consultation",
		Long:  "Start recording for the given patient, or the last selected patient when none is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := bus.Command{Op: bus.CmdStart}
			if len(args) == 1 {
				c.PatientID = args[0]
			}
			return send(c, "start recording")
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop recording and generate the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(bus.Command{Op: bus.CmdStop}, "stop recording")
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get current recording status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(bus.Command{Op: bus.CmdStatus}, "get status")
		},
	}
}

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <patient-id> <message...>",
		Short: "Post a chat message to a patient's thread",
		Long:  `Post a chat message. Messages mentioning "summary" export the latest summary report.`,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(bus.Command{
				Op:        bus.CmdSend,
				PatientID: args[0],
				Text:      strings.Join(args[1:], " "),
			}, "send message")
		},
	}
}

func approveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <patient-id>",
		Short: "Approve the latest summary report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(bus.Command{Op: bus.CmdApprove, PatientID: args[0]}, "approve report")
		},
	}
}

func watchCmd() *cobra.Command {
	var apiURL string

	cmd := &cobra.Command{
		Use:   "watch <patient-id>",
		Short: "Follow a patient's thread live",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiURL == "" {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				if !cfg.API.Enabled {
					return fmt.Errorf("the daemon API is disabled (api.enabled = false)")
				}
				apiURL = tui.BaseURLFromListen(cfg.API.Listen)
			}
			return tui.RunWatch(tui.NewClient(apiURL), args[0])
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "", "daemon API base URL (default from config)")
	return cmd
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		Long: `Interactive configuration for medscribe.
This will guide you through setting up:
- Doctor name
- Transcription socket and consultation service endpoints
- Summary provider
- Dashboard API and notifications`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure()
		},
	}
}

func runConfigure() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	result, err := tui.Run(cfg)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if result.Cancelled {
		fmt.Println("Configuration cancelled.")
		return nil
	}

	if err := result.Config.Validate(); err != nil {
		fmt.Printf("Configuration validation failed: %v\n", err)
		return err
	}

	if err := config.Save(result.Config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("Configuration saved successfully!")
	fmt.Println("A running daemon picks up the doctor name and patient list immediately;")
	fmt.Println("restart it to apply endpoint changes.")

	configPath, _ := config.GetConfigPath()
	fmt.Printf("Config file location: %s\n", configPath)
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print client and daemon versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("medscribe %s\n", version)
			resp, err := bus.SendCommand(bus.Command{Op: bus.CmdVersion})
			if err != nil {
				fmt.Println("daemon: not running")
				return nil
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func quitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quit",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(bus.Command{Op: bus.CmdQuit}, "stop daemon")
		},
	}
}
