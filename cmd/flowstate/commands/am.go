package commands

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/flowstate/am"
	"github.com/teranos/flowstate/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage flowstate configuration",
	Long: `am - Manage flowstate configuration ("I am")

Configuration sources (in order of precedence):
1. Environment variables (FLOWSTATE_* prefix, e.g. FLOWSTATE_STORE_ENCODING)
2. Project config (nearest am.toml above the working directory)
3. User config (~/.flowstate/am.toml)
4. System config (/etc/flowstate/am.toml)
5. Default values

--config bypasses the cascade and reads a single file.

Examples:
  flowstate am show                     # Show current configuration
  flowstate am show --format json       # Show configuration in JSON format
  flowstate am get store.encoding       # Get specific config value
  flowstate am set store.encoding zstd  # Persist a value to ~/.flowstate/am.toml
  flowstate am where                    # Show where each value came from`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., database.path, store.log_chunk_size)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist a configuration value",
	Long:  "Write one value to a config file, keeping up to three rotating backups. Values that fail validation are refused.",
	Args:  cobra.ExactArgs(2),
	RunE:  runAmSet,
}

var amInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to a file",
	RunE:  runAmInit,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE:  runAmWhere,
}

var (
	configFormat string
	targetFile   string
	forceInit    bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amSetCmd.Flags().StringVar(&targetFile, "file", "", "Config file to modify (default ~/.flowstate/am.toml)")
	amInitCmd.Flags().StringVar(&targetFile, "file", "", "Config file to write (default ~/.flowstate/am.toml)")
	amInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file (a backup is kept)")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amSetCmd)
	AmCmd.AddCommand(amInitCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if configFormat != "json" {
		fmt.Fprintln(out, "# flowstate configuration")
	}
	return writeFormatted(out, configFormat, cfg)
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	v := am.GetViper()
	if !v.IsSet(key) {
		return errors.NewNotFoundError("configuration key %q not found", key)
	}
	fmt.Fprintln(cmd.OutOrStdout(), v.Get(key))
	return nil
}

func resolveTarget() (string, error) {
	if targetFile != "" {
		return targetFile, nil
	}
	path := am.UserConfigPath()
	if path == "" {
		return "", errors.New("could not determine home directory; pass --file")
	}
	return path, nil
}

func runAmSet(cmd *cobra.Command, args []string) error {
	path, err := resolveTarget()
	if err != nil {
		return err
	}
	if err := am.SetValue(path, args[0], am.ParseValue(args[1])); err != nil {
		return err
	}
	pterm.Success.Printfln("%s = %s written to %s", args[0], args[1], path)
	return nil
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path, err := resolveTarget()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !forceInit {
		return errors.NewInvalidRequestError("%s already exists (use --force to overwrite)", path)
	}
	if err := am.WriteConfig(am.DefaultConfig(), path); err != nil {
		return err
	}
	pterm.Success.Printfln("Default configuration written to %s", path)
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(); err != nil {
		return err
	}
	pterm.Success.Println("Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	ci, err := am.GetConfigIntrospection()
	if err != nil {
		return err
	}

	if len(ci.ConfigFiles) == 0 {
		pterm.Info.Println("No config files found; using defaults and environment")
	} else {
		pterm.Info.Println("Config files merged (lowest precedence first):")
		for _, f := range ci.ConfigFiles {
			pterm.Println("  " + f)
		}
	}
	pterm.Println()

	data := pterm.TableData{{"Key", "Value", "Source", "From"}}
	for _, s := range ci.Settings {
		data = append(data, []string{s.Key, fmt.Sprint(s.Value), string(s.Source), s.SourcePath})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
