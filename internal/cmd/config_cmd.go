package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anivar/termbrain-sub001/internal/config"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Get or set configuration values",
	GroupID: groupSetup,
	Long: `Get or set termbrain configuration values.

Configuration is stored in ~/.config/termbrain/config.yaml (XDG compliant).
Keys are in the format section.key. Sections: storage, capture, mining,
knowledge, advisor, workflow, logging, telemetry.

Examples:
  tb config list
  tb config get capture.enabled
  tb config set mining.sequence_min_frequency 5
  tb config set capture.exclude_prefixes "ssh ,mysql -p"`,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every configuration key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := config.DefaultPaths()
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return listConfig(cfg, paths)
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return getConfig(cfg, args[0])
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set and save a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := config.DefaultPaths()
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return setConfig(cfg, paths, args[0], args[1])
	},
}

func init() {
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func listConfig(cfg *config.Config, paths *config.Paths) error {
	printHeader("Configuration Keys")

	var failedKeys []string
	for _, key := range config.ListKeys() {
		value, err := cfg.Get(key)
		if err != nil {
			failedKeys = append(failedKeys, key)
			continue
		}
		if value == "" {
			value = colorDim + "(not set)" + colorReset
		}
		fmt.Printf("  %s%s%s = %s\n", colorCyan, key, colorReset, value)
	}

	if len(failedKeys) > 0 {
		fmt.Printf("\n%sWarning:%s Failed to retrieve keys: %s\n", colorYellow, colorReset, strings.Join(failedKeys, ", "))
	}

	fmt.Println()
	fmt.Printf("Config file: %s\n", paths.ConfigFile())
	return nil
}

func getConfig(cfg *config.Config, key string) error {
	value, err := cfg.Get(key)
	if err != nil {
		return err
	}
	if value == "" {
		fmt.Printf("%s(not set)%s\n", colorDim, colorReset)
	} else {
		fmt.Println(value)
	}
	return nil
}

func setConfig(cfg *config.Config, paths *config.Paths, key, value string) error {
	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	if err := cfg.SaveToFile(paths.ConfigFile()); err != nil {
		return err
	}

	fmt.Printf("%s%s%s = %s\n", colorCyan, key, colorReset, value)
	return nil
}
