package cli

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/Jython1415/mathnasium-session-notes/internal/config"
	"github.com/Jython1415/mathnasium-session-notes/internal/output"
)

var flagConfigUser bool

func init() {
	configSetCmd.Flags().BoolVar(&flagConfigUser, "user", false, "write to ~/.notescheck/config.toml instead of the project file")

	configCmd.AddCommand(configShowCmd, configGetCmd, configSetCmd, configPathCmd, configKeysCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
	Long: `Configuration is merged from, lowest to highest precedence:

  built-in defaults
  ~/.notescheck/config.toml
  .notescheck/config.toml (or --config)
  NOTES_* environment variables
  command-line flags`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, nil)
		if err != nil {
			return err
		}
		if output.IsJSON() {
			return output.WriteJSON(cmd.OutOrStdout(), cfg, true)
		}
		enc := toml.NewEncoder(cmd.OutOrStdout())
		enc.Indent = "  "
		return enc.Encode(cfg)
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one effective value (dot-notated key)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, nil)
		if err != nil {
			return err
		}
		v, ok := config.GetValue(cfg, args[0])
		if !ok {
			return fmt.Errorf("unknown key %q (see notescheck config keys)", args[0])
		}
		if output.IsJSON() {
			return output.WriteJSON(cmd.OutOrStdout(), map[string]any{"key": args[0], "value": v}, true)
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a value to the project (or user) config file",
	Long: `Write one value to a config file. Lists are comma separated.

Examples:
  notescheck config set browser.engine playwright
  notescheck config set timeouts.completion 300
  notescheck config set --user target.url https://staging.example.com/session-notes/`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, raw := args[0], args[1]
		value, err := config.ParseValue(key, raw)
		if err != nil {
			return err
		}
		project, err := projectPath()
		if err != nil {
			return err
		}
		userFile, projectFile := config.ConfigPaths(project, flagConfig)
		path := projectFile
		if flagConfigUser {
			if userFile == "" {
				return fmt.Errorf("cannot locate home directory for --user")
			}
			path = userFile
		}
		if err := config.WriteValue(path, key, value); err != nil {
			return err
		}
		// The result must still load.
		if _, err := loadConfig(cmd, nil); err != nil {
			return fmt.Errorf("%s written but configuration is now invalid: %w", path, err)
		}
		if output.IsJSON() {
			return output.WriteJSON(cmd.OutOrStdout(), map[string]any{"key": key, "value": value, "path": path}, true)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %v (%s)\n", key, value, path)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file locations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := projectPath()
		if err != nil {
			return err
		}
		userFile, projectFile := config.ConfigPaths(project, flagConfig)
		if output.IsJSON() {
			return output.WriteJSON(cmd.OutOrStdout(), map[string]string{"user": userFile, "project": projectFile}, true)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user:    %s\nproject: %s\n", userFile, projectFile)
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the supported keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keys := config.Keys()
		if output.IsJSON() {
			return output.WriteJSON(cmd.OutOrStdout(), keys, true)
		}
		for _, k := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		return nil
	},
}
