package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/wxgate/internal/config"
	"github.com/mattjoyce/wxgate/internal/doctor"
)

var errInvalidConfig = errors.New("configuration invalid")

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate and lock configuration",
	}
	cmd.AddCommand(newConfigCheckCmd())
	cmd.AddCommand(newConfigLockCmd())
	return cmd
}

func newConfigCheckCmd() *cobra.Command {
	var (
		format string
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration syntax, policy and integrity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(cmd)
			if err != nil {
				return err
			}

			result := doctor.Check(path)
			switch format {
			case "json":
				out, err := doctor.FormatJSON(result)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
			case "human":
				fmt.Fprint(cmd.OutOrStdout(), doctor.FormatHuman(result))
			default:
				return fmt.Errorf("unknown format %q (want human or json)", format)
			}

			if !result.Valid || (strict && len(result.Warnings) > 0) {
				return errInvalidConfig
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "human", "Output format: human or json")
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")
	return cmd
}

func newConfigLockCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Record BLAKE3 hashes of the configuration files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(cmd)
			if err != nil {
				return err
			}

			reports, err := config.Lock(path, dryRun)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range reports {
				verb := "wrote"
				if dryRun {
					verb = "would write"
				}
				fmt.Fprintf(out, "%s %s (%d file(s))\n", verb, r.ChecksumPath, len(r.Files))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute hashes without writing .checksums")
	return cmd
}
