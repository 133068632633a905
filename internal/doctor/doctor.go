// Package doctor runs diagnostic checks for a scriptdeck installation:
// configuration, the history database, the journal directory, terminal
// support, interpreters, and privilege elevation.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/musher-dev/scriptdeck/internal/bridge"
	"github.com/musher-dev/scriptdeck/internal/buildinfo"
	"github.com/musher-dev/scriptdeck/internal/config"
	"github.com/musher-dev/scriptdeck/internal/history"
	"github.com/musher-dev/scriptdeck/internal/launcher"
)

// Status represents the result of a diagnostic check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical issue.
	StatusWarn
	// StatusFail indicates a critical failure.
	StatusFail
)

// Result holds the outcome of a single check.
type Result struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Check is a diagnostic check function.
type Check func(ctx context.Context) Result

// Runner executes diagnostic checks.
type Runner struct {
	checks []namedCheck
}

type namedCheck struct {
	name  string
	check Check
}

// Options supplies what the default checks inspect. Nil fields fall back
// to the live environment.
type Options struct {
	Config   *config.Config
	Launcher *launcher.Builder
	ProbePTY func() error
}

// New creates a runner with the default checks registered.
func New(opts Options) *Runner {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Load()
	}

	l := opts.Launcher
	if l == nil {
		l = launcher.New(launcher.Options{Interpreters: cfg.Interpreters()})
	}

	probe := opts.ProbePTY
	if probe == nil {
		probe = bridge.ProbePTY
	}

	r := &Runner{}

	r.AddCheck("Config", func(context.Context) Result { return checkConfig(cfg) })
	r.AddCheck("Database", func(ctx context.Context) Result { return checkDatabase(ctx, cfg.DatabasePath()) })
	r.AddCheck("Journal", func(context.Context) Result { return checkJournal(cfg.JournalDir()) })
	r.AddCheck("Terminal", func(context.Context) Result { return checkTerminal(probe) })
	r.AddCheck("Interpreters", func(context.Context) Result { return checkInterpreters(l) })
	r.AddCheck("Elevation", func(context.Context) Result { return checkElevation(l) })
	r.AddCheck("Version", func(context.Context) Result { return checkVersion() })

	return r
}

// AddCheck registers a diagnostic check.
func (r *Runner) AddCheck(name string, check Check) {
	r.checks = append(r.checks, namedCheck{name: name, check: check})
}

// Run executes all registered checks and returns the results.
func (r *Runner) Run(ctx context.Context) []Result {
	results := make([]Result, 0, len(r.checks))

	for _, nc := range r.checks {
		result := nc.check(ctx)
		result.Name = nc.name
		results = append(results, result)
	}

	return results
}

// Summary returns counts of passed, failed, and warning checks.
func Summary(results []Result) (passed, failed, warnings int) {
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			passed++
		case StatusFail:
			failed++
		case StatusWarn:
			warnings++
		}
	}

	return passed, failed, warnings
}

func checkConfig(cfg *config.Config) Result {
	if file := cfg.ConfigFile(); file != "" {
		return Result{Status: StatusPass, Message: file}
	}

	return Result{Status: StatusPass, Message: "Defaults (no config file)"}
}

func checkDatabase(ctx context.Context, path string) Result {
	store, err := history.Open(ctx, path, history.Options{})
	if err != nil {
		return Result{
			Status:  StatusFail,
			Message: path,
			Detail:  err.Error(),
		}
	}
	defer store.Close()

	scripts, err := store.ListScripts(ctx)
	if err != nil {
		return Result{
			Status:  StatusFail,
			Message: path,
			Detail:  err.Error(),
		}
	}

	return Result{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s (%d scripts)", path, len(scripts)),
	}
}

func checkJournal(dir string) Result {
	if dir == "" {
		return Result{Status: StatusWarn, Message: "No journal directory", Detail: "Set history.dir to keep raw run output"}
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Result{Status: StatusFail, Message: dir, Detail: err.Error()}
	}

	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return Result{Status: StatusFail, Message: dir + " (not writable)", Detail: err.Error()}
	}

	_ = probe.Close()
	_ = os.Remove(probe.Name())

	return Result{Status: StatusPass, Message: dir}
}

func checkTerminal(probe func() error) Result {
	if err := probe(); err != nil {
		return Result{
			Status:  StatusWarn,
			Message: "Pseudo-terminals unavailable (scripts run with pipes)",
			Detail:  err.Error(),
		}
	}

	return Result{Status: StatusPass, Message: "Pseudo-terminals available"}
}

func checkInterpreters(l *launcher.Builder) Result {
	table := l.Interpreters()

	exts := make([]string, 0, len(table))
	for ext := range table {
		exts = append(exts, ext)
	}

	sort.Strings(exts)

	var missing []string

	for _, ext := range exts {
		program := table[ext][0]
		if _, err := l.Resolve(program); err != nil {
			missing = append(missing, fmt.Sprintf("%s (%s)", ext, filepath.Base(program)))
		}
	}

	found := len(exts) - len(missing)
	if len(missing) == 0 {
		return Result{Status: StatusPass, Message: fmt.Sprintf("%d of %d found", found, len(exts))}
	}

	return Result{
		Status:  StatusWarn,
		Message: fmt.Sprintf("%d of %d found", found, len(exts)),
		Detail:  "Missing: " + strings.Join(missing, ", "),
	}
}

func checkElevation(l *launcher.Builder) Result {
	if err := l.CheckElevation(); err != nil {
		return Result{
			Status:  StatusWarn,
			Message: "Unavailable (admin scripts will fail to start)",
			Detail:  err.Error(),
		}
	}

	return Result{Status: StatusPass, Message: "Available"}
}

func checkVersion() Result {
	if buildinfo.Version == "dev" {
		return Result{Status: StatusWarn, Message: "Development build"}
	}

	return Result{Status: StatusPass, Message: "v" + strings.TrimPrefix(buildinfo.Version, "v")}
}

// RenderResults formats diagnostic results to the given output writer.
func RenderResults(results []Result, printFn, successFn, warningFn, failureFn, mutedFn func(format string, args ...any)) {
	maxNameLen := 0
	for _, r := range results {
		if len(r.Name) > maxNameLen {
			maxNameLen = len(r.Name)
		}
	}

	for _, r := range results {
		width := maxNameLen + 4

		switch r.Status {
		case StatusPass:
			successFn("%-*s%s", width, r.Name, r.Message)
		case StatusWarn:
			warningFn("%-*s%s", width, r.Name, r.Message)
		case StatusFail:
			failureFn("%-*s%s", width, r.Name, r.Message)
		default:
			printFn("%s %-*s%s\n", r.Status.Symbol(), width, r.Name, r.Message)
		}

		if r.Detail != "" {
			mutedFn("    %s", r.Detail)
		}
	}
}

// Symbol returns the status symbol for display.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return checkMark
	case StatusWarn:
		return warningMark
	case StatusFail:
		return xMark
	default:
		return "?"
	}
}

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const (
	checkMark   = "✓" // ✓
	xMark       = "✗" // ✗
	warningMark = "⚠" // ⚠
)
