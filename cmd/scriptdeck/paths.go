package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/musher-dev/scriptdeck/internal/config"
	"github.com/musher-dev/scriptdeck/internal/output"
	"github.com/musher-dev/scriptdeck/internal/paths"
)

// PathsInfo holds all resolved paths for JSON output.
type PathsInfo struct {
	ConfigRoot string `json:"config_root"`
	StateRoot  string `json:"state_root"`
	DataRoot   string `json:"data_root"`
	ConfigFile string `json:"config_file"`
	Database   string `json:"database"`
	JournalDir string `json:"journal_dir"`
	LogFile    string `json:"log_file"`
}

func newPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show where scriptdeck stores files",
		Long: `Display every file and directory scriptdeck uses: configuration, the history
database, raw output journals, and logs.`,
		Example: `  scriptdeck paths
  scriptdeck paths --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			info := resolvePathsInfo(config.Load())

			if out.JSON {
				return out.PrintJSON(info)
			}

			out.Print("Config root:  %s\n", info.ConfigRoot)
			out.Print("State root:   %s\n", info.StateRoot)
			out.Print("Data root:    %s\n", info.DataRoot)
			out.Print("\n")
			out.Print("Config file:  %s\n", info.ConfigFile)
			out.Print("Database:     %s\n", info.Database)
			out.Print("Journal dir:  %s\n", info.JournalDir)
			out.Print("Log file:     %s\n", info.LogFile)

			return nil
		},
	}
}

func resolvePathsInfo(cfg *config.Config) PathsInfo {
	info := PathsInfo{
		ConfigRoot: resolveOrError(paths.ConfigRoot),
		StateRoot:  resolveOrError(paths.StateRoot),
		DataRoot:   resolveOrError(paths.DataRoot),
		LogFile:    resolveOrError(paths.DefaultLogFile),
		Database:   cfg.DatabasePath(),
		JournalDir: cfg.JournalDir(),
	}

	if root, err := paths.ConfigRoot(); err == nil {
		info.ConfigFile = filepath.Join(root, "config.yaml")
	} else {
		info.ConfigFile = "<error: config root unavailable>"
	}

	return info
}

func resolveOrError(fn func() (string, error)) string {
	val, err := fn()
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}

	return val
}
