package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/wxgate/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wxgate",
		Short:         "wxgate - messaging platform callback gateway",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("config", "", "Path to configuration file or directory")

	root.AddCommand(newServeCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// configPath returns --config, falling back to discovery.
func configPath(cmd *cobra.Command) (string, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return "", err
	}
	if path != "" {
		return path, nil
	}
	discovered, err := config.DiscoverConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to discover config: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", discovered)
	return discovered, nil
}
