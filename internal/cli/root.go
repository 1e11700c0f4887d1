// Package cli implements the voxpipe command line client, which talks to
// a running voxpiped over its HTTP API.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var version = "0.1.0-dev"

type appState struct {
	server     string
	noProgress bool
	verbose    bool

	logger *slog.Logger
}

func NewRootCmd() *cobra.Command {
	app := &appState{
		server: "http://localhost:8080",
	}

	cmd := &cobra.Command{
		Use:           "voxpipe",
		Short:         "Client for a voxpipe transcription node",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			level := slog.LevelWarn
			if app.verbose {
				level = slog.LevelDebug
			}
			app.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			return nil
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")
	cmd.PersistentFlags().StringVar(&app.server, "server", app.server, "Base URL of the voxpiped HTTP API")
	cmd.PersistentFlags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
	cmd.PersistentFlags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")

	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newPipelineCmd(app))

	return cmd
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
