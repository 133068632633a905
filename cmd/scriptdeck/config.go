package main

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/musher-dev/scriptdeck/internal/config"
	clierrors "github.com/musher-dev/scriptdeck/internal/errors"
	"github.com/musher-dev/scriptdeck/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `View and modify scriptdeck configuration settings.`,
	}

	cmd.AddCommand(newConfigListCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		Long:  `Display every configuration setting and its effective value, including defaults.`,
		Example: `  scriptdeck config list
  scriptdeck config list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			cfg := config.Load()
			settings := flatten("", cfg.All())

			if out.JSON {
				return out.PrintJSON(settings)
			}

			keys := make([]string, 0, len(settings))
			for key := range settings {
				keys = append(keys, key)
			}

			sort.Strings(keys)

			for _, key := range keys {
				out.Print("%s = %v\n", key, settings[key])
			}

			if file := cfg.ConfigFile(); file != "" {
				out.Println()
				out.Muted("Config file: %s", file)
			}

			return nil
		},
	}
}

// flatten turns nested settings into dotted keys.
func flatten(prefix string, settings map[string]any) map[string]any {
	flat := make(map[string]any, len(settings))

	for key, value := range settings {
		if prefix != "" {
			key = prefix + "." + key
		}

		if nested, ok := value.(map[string]any); ok && len(nested) > 0 {
			for k, v := range flatten(key, nested) {
				flat[k] = v
			}

			continue
		}

		flat[key] = value
	}

	return flat
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <key>",
		Short:   "Get a configuration value",
		Long:    `Retrieve and display the current value of a single configuration key.`,
		Example: `  scriptdeck config get runner.cols`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key := args[0]
			cfg := config.Load()
			value := cfg.Get(key)

			if value == nil {
				out.Muted("%s is not set", key)
				return nil
			}

			out.Print("%s = %v\n", key, value)

			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  `Set a configuration key to the given value. The value is persisted to the config file.`,
		Example: `  scriptdeck config set runner.cols 120
  scriptdeck config set history.retention 168h`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key, value := args[0], args[1]
			cfg := config.Load()

			if err := cfg.Set(key, value); err != nil {
				return clierrors.ConfigFailed("save config", err)
			}

			out.Success("Set %s = %s", key, value)

			return nil
		},
	}
}
