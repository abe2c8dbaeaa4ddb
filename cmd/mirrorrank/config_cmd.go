package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long: `Inspect mirrorrank configuration. The config file is searched for in
./mirrorrank.yaml, /etc/mirrorrank/mirrorrank.yaml and
~/.config/mirrorrank/mirrorrank.yaml unless --config is given.`,
		Example: `  mirrorrank config show`,
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the effective configuration in YAML format: defaults, overlaid
by the loaded config file, overlaid by command-line overrides.`,
		Example: `  mirrorrank config show
  mirrorrank config show --config /etc/mirrorrank/mirrorrank.yaml`,
		RunE: configShowRun,
	}

	return cmd
}

func configShowRun(cmd *cobra.Command, args []string) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	data, err := yaml.Marshal(globalCfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if cfgPath != "" {
		fmt.Printf("# loaded from %s\n", cfgPath)
	}
	fmt.Print(string(data))

	return nil
}
