// Package cli implements the feedbackctl operator commands.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zombar/feedbackpulse/internal/config"
	"github.com/zombar/feedbackpulse/pkg/logging"
)

// Version is the feedbackctl release
const Version = "1.0.0"

// Handler handles CLI commands
type Handler struct {
	cfg     *config.Config
	logger  *slog.Logger
	logOut  io.Writer
	rootCmd *cobra.Command
}

// New creates a new CLI handler
func New() *Handler {
	h := &Handler{logOut: os.Stderr}
	h.setupCommands()
	return h
}

func (h *Handler) setupCommands() {
	h.rootCmd = &cobra.Command{
		Use:           "feedbackctl",
		Short:         "Survey feedback analysis tools",
		Long:          "Runs the feedback analyzer and dashboard aggregation against the configured store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return h.loadConfig()
		},
	}

	h.rootCmd.AddCommand(h.analyzeCmd())
	h.rootCmd.AddCommand(h.metricsCmd())
	h.rootCmd.AddCommand(h.tokenCmd())
	h.rootCmd.AddCommand(h.versionCmd())
}

// loadConfig reads settings from the environment. Command flags cover the
// few values each command needs.
func (h *Handler) loadConfig() error {
	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	h.cfg = cfg
	h.logger = logging.New(h.logOut, cfg.LogLevel)
	h.logger.Debug("configuration loaded", "store", cfg.StoreBackend)
	return nil
}

// Execute runs the CLI with args
func (h *Handler) Execute(args []string) error {
	h.rootCmd.SetArgs(args)
	return h.rootCmd.Execute()
}

// Run is the main entry point
func Run() {
	handler := New()
	if err := handler.Execute(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (h *Handler) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "feedbackctl %s\n", Version)
		},
	}
}
