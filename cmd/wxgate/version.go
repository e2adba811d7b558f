package main

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func newVersionCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := currentVersionInfo()
			out := cmd.OutOrStdout()
			if jsonOut {
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("render version JSON: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			fmt.Fprintf(out, "wxgate %s\n", info.Version)
			fmt.Fprintf(out, "commit: %s\n", info.Commit)
			fmt.Fprintf(out, "built_at: %s\n", info.BuildTime)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output version metadata as JSON")
	return cmd
}

// currentVersionInfo prefers ldflags values and falls back to the VCS
// settings the toolchain embeds.
func currentVersionInfo() versionInfo {
	info := versionInfo{Version: version, Commit: gitCommit, BuildTime: buildDate}

	if info.Commit == "unknown" {
		if rev := readBuildSetting("vcs.revision"); rev != "" {
			info.Commit = rev
		}
	}
	info.Commit = shortenCommit(info.Commit)

	if info.BuildTime == "unknown" {
		if t := readBuildSetting("vcs.time"); t != "" {
			info.BuildTime = t
		}
	}
	if normalized, ok := normalizeBuildTimeUTC(info.BuildTime); ok {
		info.BuildTime = normalized
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "unknown" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}
