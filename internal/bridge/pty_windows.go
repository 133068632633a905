//go:build windows

package bridge

import (
	"github.com/musher-dev/scriptdeck/internal/launcher"
)

// Console pseudo-terminals are not wired up; every run uses pipes.
func openPTY(_ *launcher.Spec, _ Size) (Bridge, error) {
	return nil, errNoPTY
}

// ProbePTY reports whether runs on this host can get a terminal.
func ProbePTY() error {
	return errNoPTY
}
