package main

import (
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/wxgate/internal/tui/watch"
)

func newWatchCmd() *cobra.Command {
	var apiURL, apiKey string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live terminal view of a running gateway",
		Long: "Shows gateway health, per-application traffic, janitor sweeps and the event stream.\n" +
			"Keys: q or ctrl+c quits, up/down selects an application.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiKey == "" {
				return errors.New("API key required: use --api-key or WXGATE_API_KEY")
			}
			p := tea.NewProgram(watch.New(apiURL, apiKey))
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("TUI error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", "http://127.0.0.1:8081", "Admin API URL")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("WXGATE_API_KEY"), "Admin API bearer key")
	return cmd
}
