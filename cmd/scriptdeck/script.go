package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/musher-dev/scriptdeck/internal/config"
	clierrors "github.com/musher-dev/scriptdeck/internal/errors"
	"github.com/musher-dev/scriptdeck/internal/history"
	"github.com/musher-dev/scriptdeck/internal/journal"
	"github.com/musher-dev/scriptdeck/internal/manifest"
	"github.com/musher-dev/scriptdeck/internal/output"
)

// ScriptInfo is the JSON shape of a registered script.
type ScriptInfo struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	RunAsAdmin  bool      `json:"runAsAdmin"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	LastRun     *RunInfo  `json:"lastRun,omitempty"`
	Missing     bool      `json:"missing,omitempty"`
}

func newScriptInfo(s *history.Script) ScriptInfo {
	_, statErr := os.Stat(s.Path)

	return ScriptInfo{
		ID:          s.ID,
		Name:        s.Name,
		Path:        s.Path,
		Description: s.Description,
		Category:    s.Category,
		RunAsAdmin:  s.RunAsAdmin,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		Missing:     statErr != nil,
	}
}

func newScriptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script",
		Short: "Manage registered scripts",
		Long:  `Register script files, import or export them in bulk, and inspect the catalog.`,
	}

	cmd.AddCommand(newScriptAddCmd())
	cmd.AddCommand(newScriptImportCmd())
	cmd.AddCommand(newScriptExportCmd())
	cmd.AddCommand(newScriptListCmd())
	cmd.AddCommand(newScriptShowCmd())
	cmd.AddCommand(newScriptRemoveCmd())

	return cmd
}

func newScriptAddCmd() *cobra.Command {
	var (
		name        string
		description string
		category    string
		admin       bool
	)

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Register a script file",
		Long: `Register a script file so it can be run by id. Registering a path that is
already known updates its name, description, category, and admin flag.`,
		Example: `  scriptdeck script add ./backup.sh
  scriptdeck script add ~/bin/deploy.py --name deploy --category ops
  scriptdeck script add /opt/tools/rotate-logs.sh --admin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			path, err := filepath.Abs(args[0])
			if err != nil {
				return clierrors.Wrap(clierrors.ExitUsage, "Invalid script path", err)
			}

			info, err := os.Stat(path)
			if err != nil {
				return (&clierrors.CLIError{
					Message: fmt.Sprintf("Script file not found: %s", path),
					Cause:   err,
					Code:    clierrors.ExitNotFound,
				}).WithHint("Check the path and try again")
			}

			if info.IsDir() {
				return clierrors.New(clierrors.ExitUsage, fmt.Sprintf("%s is a directory, not a script", path))
			}

			if strings.TrimSpace(name) == "" {
				name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}

			_, store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			script := &history.Script{
				Name:        name,
				Path:        path,
				Description: description,
				Category:    category,
				RunAsAdmin:  admin,
			}

			created, err := store.UpsertScript(cmd.Context(), script)
			if err != nil {
				return clierrors.DatabaseFailed(err)
			}

			if out.JSON {
				return out.PrintJSON(newScriptInfo(script))
			}

			if created {
				out.Success("Registered script %d (%s)", script.ID, script.Name)
			} else {
				out.Success("Updated script %d (%s)", script.ID, script.Name)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name (default: file name without extension)")
	cmd.Flags().StringVar(&description, "description", "", "Short description")
	cmd.Flags().StringVar(&category, "category", "", "Category used to group scripts")
	cmd.Flags().BoolVar(&admin, "admin", false, "Run the script with elevated privileges")

	return cmd
}

func newScriptImportCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <manifest>",
		Short: "Register scripts from a YAML or TOML manifest",
		Long: `Register every script listed in a manifest. Relative paths resolve against
the manifest's directory, and scripts already registered by path are updated.`,
		Example: `  scriptdeck script import scripts.yaml
  scriptdeck script import ops/scripts.toml --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			path := args[0]

			m, err := manifest.Load(path)
			if err != nil {
				return clierrors.InvalidManifest(path, err)
			}

			abs, err := filepath.Abs(path)
			if err != nil {
				return clierrors.InvalidManifest(path, err)
			}

			scripts, err := m.Resolve(filepath.Dir(abs))
			if err != nil {
				return clierrors.InvalidManifest(path, err)
			}

			if len(scripts) == 0 {
				out.Muted("No scripts listed in %s", path)
				return nil
			}

			if dryRun {
				for _, s := range scripts {
					out.Print("%s  %s\n", s.Name, s.Path)
				}

				out.Muted("%d script(s) would be imported", len(scripts))

				return nil
			}

			_, store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			created, updated, err := importScripts(cmd.Context(), store, scripts, out)
			if err != nil {
				return err
			}

			out.Success("Imported %d script(s): %d new, %d updated", created+updated, created, updated)

			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List the scripts without registering them")

	return cmd
}

func importScripts(ctx context.Context, store *history.Store, scripts []history.Script, out *output.Writer) (created, updated int, err error) {
	for i := range scripts {
		s := &scripts[i]

		if _, statErr := os.Stat(s.Path); statErr != nil {
			out.Warning("%s does not exist yet", s.Path)
		}

		isNew, upsertErr := store.UpsertScript(ctx, s)
		if upsertErr != nil {
			return created, updated, clierrors.DatabaseFailed(upsertErr)
		}

		if isNew {
			created++
		} else {
			updated++
		}

		out.Debug("imported script %d (%s)", s.ID, s.Path)
	}

	return created, updated, nil
}

func newScriptExportCmd() *cobra.Command {
	var (
		format     string
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write registered scripts as a manifest",
		Long: `Write every registered script as a YAML or TOML manifest that 'script import'
can read back. Writes to stdout unless --output is given.`,
		Example: `  scriptdeck script export > scripts.yaml
  scriptdeck script export --format toml --output scripts.toml`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			f, err := exportFormat(format, outputPath)
			if err != nil {
				return err
			}

			_, store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			scripts, err := store.ListScripts(cmd.Context())
			if err != nil {
				return clierrors.DatabaseFailed(err)
			}

			data, err := manifest.FromScripts(scripts).Marshal(f)
			if err != nil {
				return clierrors.Wrap(clierrors.ExitGeneral, "Failed to encode manifest", err)
			}

			if outputPath == "" {
				out.Raw(data)
				return nil
			}

			if err := os.WriteFile(outputPath, data, 0o600); err != nil {
				return clierrors.Wrap(clierrors.ExitGeneral, fmt.Sprintf("Failed to write %s", outputPath), err)
			}

			out.Success("Exported %d script(s) to %s", len(scripts), outputPath)

			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Manifest format: yaml, toml (default: from --output extension, else yaml)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write to a file instead of stdout")

	return cmd
}

func exportFormat(flagValue, outputPath string) (manifest.Format, error) {
	if flagValue != "" {
		f, err := manifest.ParseFormat(flagValue)
		if err != nil {
			return "", (&clierrors.CLIError{
				Message: fmt.Sprintf("Unknown manifest format: %q", flagValue),
				Cause:   err,
				Code:    clierrors.ExitUsage,
			}).WithHint("Use --format yaml or --format toml")
		}

		return f, nil
	}

	if outputPath != "" {
		if f, err := manifest.FormatFor(outputPath); err == nil {
			return f, nil
		}
	}

	return manifest.FormatYAML, nil
}

func newScriptListCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered scripts",
		Long:  `List registered scripts with their ids and the outcome of each script's latest run.`,
		Example: `  scriptdeck script list
  scriptdeck script list --category ops
  scriptdeck script list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			_, store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			scripts, err := store.ListScripts(cmd.Context())
			if err != nil {
				return clierrors.DatabaseFailed(err)
			}

			infos := make([]ScriptInfo, 0, len(scripts))

			for i := range scripts {
				if category != "" && !strings.EqualFold(scripts[i].Category, category) {
					continue
				}

				info := newScriptInfo(&scripts[i])

				latest, err := store.LatestRun(cmd.Context(), scripts[i].ID)
				if err == nil {
					run := newRunInfo(latest)
					info.LastRun = &run
				} else if !errors.Is(err, history.ErrRunNotFound) {
					return clierrors.DatabaseFailed(err)
				}

				infos = append(infos, info)
			}

			if out.JSON {
				return out.PrintJSON(infos)
			}

			if len(infos) == 0 {
				out.Muted("No scripts registered.")
				out.Muted("Run 'scriptdeck script add <path>' to register one.")

				return nil
			}

			table := output.NewTable("ID", "NAME", "CATEGORY", "LAST RUN", "PATH")

			for _, info := range infos {
				last := "-"
				if info.LastRun != nil {
					last = out.RunStatus(string(info.LastRun.Status))
				}

				name := info.Name
				if info.RunAsAdmin {
					name += " (admin)"
				}

				path := info.Path
				if info.Missing {
					path += " (missing)"
				}

				table.AddRow(strconv.FormatInt(info.ID, 10), name, orDash(info.Category), last, path)
			}

			return out.Table(table)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Only list scripts in this category")

	return cmd
}

func newScriptShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <script-id>",
		Short: "Show a registered script",
		Long:  `Show a script's registration details and its most recent run.`,
		Example: `  scriptdeck script show 3
  scriptdeck script show 3 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			id, err := parseID("script", args[0])
			if err != nil {
				return err
			}

			_, store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			script, err := lookupScript(cmd.Context(), store, id)
			if err != nil {
				return err
			}

			info := newScriptInfo(script)

			if latest, err := store.LatestRun(cmd.Context(), id); err == nil {
				run := newRunInfo(latest)
				info.LastRun = &run
			}

			if out.JSON {
				return out.PrintJSON(info)
			}

			out.Print("Script %d: %s\n", info.ID, info.Name)
			out.Print("  Path:        %s\n", info.Path)

			if info.Missing {
				out.Warning("File does not exist")
			}

			out.Print("  Description: %s\n", orDash(info.Description))
			out.Print("  Category:    %s\n", orDash(info.Category))
			out.Print("  Admin:       %t\n", info.RunAsAdmin)
			out.Print("  Registered:  %s\n", info.CreatedAt.Local().Format(time.DateTime))

			if info.LastRun != nil {
				out.Print("  Last run:    #%d %s (%s)\n", info.LastRun.ID,
					out.RunStatus(string(info.LastRun.Status)), info.LastRun.StartedAt.Local().Format(time.DateTime))
			} else {
				out.Print("  Last run:    never\n")
			}

			return nil
		},
	}
}

func newScriptRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <script-id>",
		Short: "Unregister a script and delete its history",
		Long: `Unregister a script. Its run records and raw output journals are deleted;
the script file itself is left untouched.`,
		Example: `  scriptdeck script remove 3`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			id, err := parseID("script", args[0])
			if err != nil {
				return err
			}

			cfg, store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			script, err := lookupScript(cmd.Context(), store, id)
			if err != nil {
				return err
			}

			runs, err := store.ListRuns(cmd.Context(), id, math.MaxInt32)
			if err != nil {
				return clierrors.DatabaseFailed(err)
			}

			if err := store.DeleteScript(cmd.Context(), id); err != nil {
				return clierrors.DatabaseFailed(err)
			}

			removeJournals(out, cfg, runIDs(runs))

			out.Success("Removed script %d (%s) and %d run(s)", id, script.Name, len(runs))

			return nil
		},
	}
}

// removeJournals deletes raw journals for runs whose records are gone.
// Failures only warn: the records are already deleted.
func removeJournals(out *output.Writer, cfg *config.Config, ids []int64) {
	dir := cfg.JournalDir()
	if dir == "" || len(ids) == 0 {
		return
	}

	if _, err := journal.RemoveRuns(dir, ids); err != nil {
		out.Warning("Could not delete raw output journals: %v", err)
	}
}

func runIDs(runs []history.RunRecord) []int64 {
	ids := make([]int64, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ID)
	}

	return ids
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}

	return s
}
