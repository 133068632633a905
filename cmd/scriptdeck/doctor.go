package main

import (
	"github.com/spf13/cobra"

	"github.com/musher-dev/scriptdeck/internal/doctor"
	"github.com/musher-dev/scriptdeck/internal/output"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose common issues",
		Long: `Run diagnostic checks on configuration, the history database, the output
journal, terminal support, script interpreters, and privilege elevation.`,
		Example: `  scriptdeck doctor
  scriptdeck doctor --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			results := doctor.New(doctor.Options{}).Run(cmd.Context())

			if out.JSON {
				return out.PrintJSON(results)
			}

			renderDoctor(out, results)

			return nil
		},
	}
}

func renderDoctor(out *output.Writer, results []doctor.Result) {
	out.Println("scriptdeck doctor")
	out.Println("=================")
	out.Println()

	doctor.RenderResults(results, out.Print, out.Success, out.Warning, out.Failure, out.Muted)

	passed, failed, warnings := doctor.Summary(results)

	out.Println()
	out.Print("%d passed", passed)

	if failed > 0 {
		out.Print(", %d failed", failed)
	}

	if warnings > 0 {
		out.Print(", %d warning(s)", warnings)
	}

	out.Println()
}
