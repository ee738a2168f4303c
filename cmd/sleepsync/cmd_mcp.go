package main

import (
	"github.com/spf13/cobra"

	"github.com/nvandessel/sleepsync/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve sleep session tools over MCP (stdio)",
		Long: `Run an MCP server on stdin/stdout exposing sleep_start, sleep_status,
sleep_cancel, sleep_feedback and dose_series. A persisted session is resumed
at startup, counted down while the server runs, and suspended on exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, withLogNotifier())
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.machine.Resume(cmd.Context()); err != nil {
				a.logger.Warn("could not resume session", "error", err)
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "sleepsync",
				Version:  version,
				DataDir:  a.dataDir,
				Sessions: a.machine,
				Engine:   a.engine,
				Analyzer: a.analyzer,
				Feedback: a.feedback,
				Logger:   a.logger,
			})
			if err != nil {
				return err
			}
			defer server.Close()

			return server.Run(cmd.Context())
		},
	}
}
