//go:build !windows

package launcher

import (
	"fmt"
	"runtime"
)

const elevationProgram = "sudo"

var defaultInterpreters = map[string][]string{
	".sh":   {"bash"},
	".bash": {"bash"},
	".zsh":  {"zsh"},
	".py":   {"python3"},
	".rb":   {"ruby"},
	".pl":   {"perl"},
	".js":   {"node"},
	".ps1":  {"pwsh", "-NoProfile", "-File"},
}

func saneDirs() []string {
	dirs := []string{"/usr/local/bin", "/usr/bin", "/bin", "/usr/local/sbin", "/usr/sbin", "/sbin"}
	if runtime.GOOS == "darwin" {
		dirs = append([]string{"/opt/homebrew/bin"}, dirs...)
	}

	return dirs
}

func envKeyEqual(a, b string) bool {
	return a == b
}

// elevate wraps the command in sudo.
func (b *Builder) elevate(spec *Spec) (*Spec, error) {
	sudo, err := b.lookPath(elevationProgram)
	if err != nil {
		return nil, fmt.Errorf("%w: sudo not found in PATH: %w", ErrElevationUnavailable, err)
	}

	elevated := *spec
	elevated.Program = sudo
	elevated.Args = spec.Argv()
	elevated.Elevated = true

	return &elevated, nil
}
