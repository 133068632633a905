//go:build windows

package launcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const elevationProgram = "powershell.exe"

var defaultInterpreters = map[string][]string{
	".ps1": {"powershell.exe", "-NoProfile", "-ExecutionPolicy", "Bypass", "-File"},
	".cmd": {"cmd.exe", "/C"},
	".bat": {"cmd.exe", "/C"},
	".py":  {"python"},
}

func saneDirs() []string {
	root := os.Getenv("SystemRoot")
	if root == "" {
		root = `C:\Windows`
	}

	return []string{
		filepath.Join(root, "System32"),
		root,
		filepath.Join(root, "System32", "WindowsPowerShell", "v1.0"),
	}
}

func envKeyEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

// elevate relaunches the command through Start-Process -Verb RunAs and
// waits for it, so the exit is observed by the bridge.
func (b *Builder) elevate(spec *Spec) (*Spec, error) {
	ps, err := b.lookPath(elevationProgram)
	if err != nil {
		return nil, fmt.Errorf("%w: powershell.exe not found: %w", ErrElevationUnavailable, err)
	}

	command := fmt.Sprintf("Start-Process -FilePath %s -Verb RunAs -Wait", psQuote(spec.Program))
	if len(spec.Args) > 0 {
		quoted := make([]string, 0, len(spec.Args))
		for _, arg := range spec.Args {
			quoted = append(quoted, psQuote(arg))
		}

		command = fmt.Sprintf("Start-Process -FilePath %s -ArgumentList %s -Verb RunAs -Wait",
			psQuote(spec.Program), strings.Join(quoted, ","))
	}

	elevated := *spec
	elevated.Program = ps
	elevated.Args = []string{"-NoProfile", "-Command", command}
	elevated.Elevated = true

	return &elevated, nil
}

func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
