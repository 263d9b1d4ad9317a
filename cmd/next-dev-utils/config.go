package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/wyattjoh/next-dev-utils/internal/config"
)

// createConfigCommand creates the config subcommand
func createConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the global configuration.

Available commands:
  init    Create a configuration file with default values
  get     Print one setting
  set     Change one setting
  list    Print every setting`,
	}

	configCmd.AddCommand(createConfigInitCommand())
	configCmd.AddCommand(createConfigGetCommand())
	configCmd.AddCommand(createConfigSetCommand())
	configCmd.AddCommand(createConfigListCommand())

	return configCmd
}

func createConfigInitCommand() *cobra.Command {
	var force bool

	initCmd := &cobra.Command{
		Use:   "init [config-file]",
		Short: "Initialize a new configuration file",
		Long: `Initialize a new configuration file with default values.

If no path is specified, the config is created at ~/.config/next-dev-utils/config.yml

Examples:
  # Create config in the default location
  next-dev-utils config init

  # Create config in the current directory
  next-dev-utils config init next-dev-utils.yml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultConfigPath()
			if len(args) > 0 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite it", path)
			}

			defaultConfig := config.DefaultGlobalConfig()
			if err := defaultConfig.SaveGlobalConfigWithComments(path); err != nil {
				return fmt.Errorf("failed to save config file: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration file created at: %s\n", path)
			fmt.Fprintf(out, "\nSet your bucket with:\n")
			fmt.Fprintf(out, "  next-dev-utils config set storage.endpoint <host>\n")
			fmt.Fprintf(out, "  next-dev-utils config set storage.bucket <bucket>\n")
			fmt.Fprintf(out, "  next-dev-utils config set storage.access_key <key>\n")
			fmt.Fprintf(out, "  next-dev-utils config set storage.secret_key\n")
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return initCmd
}

func createConfigGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "get KEY",
		Short:             "Print one setting",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: configKeyCompletion,
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := config.Global().Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func createConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY [VALUE]",
		Short: "Change one setting",
		Long: `Change one setting and save the configuration file.

When VALUE is omitted it is read from the terminal; secret keys are read
without echo. Secret keys also accept 1Password references such as
op://vault/item/field, which are resolved with the op CLI when used.`,
		Args:              cobra.RangeArgs(1, 2),
		ValidArgsFunction: configKeyCompletion,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := config.LookupKey(args[0])
			if err != nil {
				return err
			}

			var value string
			if len(args) == 2 {
				value = args[1]
			} else {
				term := newTerminal()
				if key.Secret {
					value, err = term.ReadSecret(key.Description)
				} else {
					value, err = term.ReadLine(key.Description)
				}
				if err != nil {
					return err
				}
			}

			gc := config.Global()
			if err := gc.Set(key.Name, value); err != nil {
				return err
			}
			return saveConfig(gc)
		},
	}
}

func createConfigListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gc := config.Global()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, key := range config.Keys() {
				value, err := gc.Get(key.Name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\n", key.Name, value)
			}
			if configPath != "" {
				fmt.Fprintf(w, "\n# from %s\n", configPath)
			}
			return w.Flush()
		},
	}
}

func configKeyCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var names []string
	for _, k := range config.Keys() {
		names = append(names, k.Name+"\t"+k.Description)
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
