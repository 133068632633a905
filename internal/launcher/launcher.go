// Package launcher turns a script path into a spawn specification: the
// interpreter to run, its arguments, and the child environment.
//
// Dispatch is by file extension. The platform default table lives in the
// build-tagged files and can be extended or overridden from configuration.
package launcher

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Terminal type advertised to every child.
const termValue = "xterm-256color"

var (
	// ErrScriptMissing is returned when the script path does not exist.
	ErrScriptMissing = errors.New("script file not found")

	// ErrElevationUnavailable is returned when the platform cannot satisfy
	// an elevation request.
	ErrElevationUnavailable = errors.New("elevation unavailable")
)

// Spec describes how to spawn one script run.
type Spec struct {
	// Program is the binary to execute (resolved through PATH at spawn).
	Program string

	// Args are the arguments after Program.
	Args []string

	// Env is the complete child environment.
	Env []string

	// Dir is the working directory of the child.
	Dir string

	// Script is the absolute script path being run.
	Script string

	// Elevated reports whether Program is a privilege escalation wrapper.
	Elevated bool
}

// Argv returns Program followed by Args.
func (s *Spec) Argv() []string {
	return append([]string{s.Program}, s.Args...)
}

// Launcher builds spawn specifications.
type Launcher interface {
	Build(path string, elevate bool) (*Spec, error)
}

// Options configures a Builder. Zero values select platform defaults.
type Options struct {
	// Interpreters extends or overrides the extension table. Keys are
	// lower-case extensions including the dot.
	Interpreters map[string][]string

	Environ  func() []string
	LookPath func(string) (string, error)
	Logger   *slog.Logger
}

// Builder is the default Launcher.
type Builder struct {
	interpreters map[string][]string
	saneDirs     []string
	environ      func() []string
	lookPath     func(string) (string, error)
	logger       *slog.Logger
}

var _ Launcher = (*Builder)(nil)

// New creates a Builder for the current platform.
func New(opts Options) *Builder {
	table := make(map[string][]string, len(defaultInterpreters)+len(opts.Interpreters))
	for ext, argv := range defaultInterpreters {
		table[ext] = argv
	}

	for ext, argv := range opts.Interpreters {
		ext = normalizeExt(ext)
		if ext == "" || len(argv) == 0 {
			continue
		}

		table[ext] = append([]string(nil), argv...)
	}

	b := &Builder{
		interpreters: table,
		saneDirs:     saneDirs(),
		environ:      opts.Environ,
		lookPath:     opts.LookPath,
		logger:       opts.Logger,
	}

	if b.environ == nil {
		b.environ = os.Environ
	}

	if b.lookPath == nil {
		b.lookPath = exec.LookPath
	}

	if b.logger == nil {
		b.logger = slog.Default()
	}

	return b
}

// Build produces the spawn specification for path. A missing path fails
// here, before any process exists.
func (b *Builder) Build(path string, elevate bool) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrScriptMissing)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve script path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrScriptMissing, abs)
		}

		return nil, fmt.Errorf("stat script: %w", err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("script path is a directory: %s", abs)
	}

	argv := b.command(abs)

	spec := &Spec{
		Program: argv[0],
		Args:    argv[1:],
		Env:     b.env(),
		Dir:     filepath.Dir(abs),
		Script:  abs,
	}

	if !elevate {
		return spec, nil
	}

	return b.elevate(spec)
}

// Interpreter returns the argv prefix registered for ext, if any.
func (b *Builder) Interpreter(ext string) ([]string, bool) {
	argv, ok := b.interpreters[normalizeExt(ext)]
	return argv, ok
}

// Interpreters returns a copy of the effective extension table.
func (b *Builder) Interpreters() map[string][]string {
	out := make(map[string][]string, len(b.interpreters))
	for ext, argv := range b.interpreters {
		out[ext] = append([]string(nil), argv...)
	}

	return out
}

// Resolve reports where the program for argv would be found.
func (b *Builder) Resolve(program string) (string, error) {
	return b.lookPath(program)
}

// CheckElevation reports whether elevated runs can be built on this host.
func (b *Builder) CheckElevation() error {
	if _, err := b.lookPath(elevationProgram); err != nil {
		return fmt.Errorf("%w: %s not found in PATH: %w", ErrElevationUnavailable, elevationProgram, err)
	}

	return nil
}

func (b *Builder) command(path string) []string {
	ext := normalizeExt(filepath.Ext(path))

	prefix, ok := b.interpreters[ext]
	if !ok {
		b.logger.Debug(
			"no interpreter for extension, executing directly",
			slog.String("component", "launcher"),
			slog.String("event.type", "launcher.direct_exec"),
			slog.String("script.ext", ext),
		)

		return []string{path}
	}

	argv := make([]string, 0, len(prefix)+1)
	argv = append(argv, prefix...)

	return append(argv, path)
}

// env returns the inherited environment with the sane search dirs appended
// to PATH and TERM forced.
func (b *Builder) env() []string {
	inherited := b.environ()
	out := make([]string, 0, len(inherited)+2)

	var pathValue string

	hasPath := false

	for _, kv := range inherited {
		key, value, _ := strings.Cut(kv, "=")

		switch {
		case envKeyEqual(key, "PATH"):
			if !hasPath {
				pathValue = value
				hasPath = true
			}
		case envKeyEqual(key, "TERM"):
		default:
			out = append(out, kv)
		}
	}

	out = append(out, "PATH="+mergePath(pathValue, b.saneDirs), "TERM="+termValue)

	return out
}

// mergePath appends every dir in extra that is not already listed.
func mergePath(current string, extra []string) string {
	sep := string(os.PathListSeparator)

	var dirs []string

	seen := make(map[string]struct{})

	for _, dir := range strings.Split(current, sep) {
		if dir == "" {
			continue
		}

		if _, dup := seen[dir]; dup {
			continue
		}

		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}

	for _, dir := range extra {
		if _, dup := seen[dir]; dup {
			continue
		}

		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}

	return strings.Join(dirs, sep)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}

	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	return ext
}
