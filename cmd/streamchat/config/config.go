// Package configcmder provides the config command for managing persistent
// streamchat configuration stored in the .streamchat/ directory.
package configcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/llmcli/streamchat/pkg/cliui"
	"github.com/llmcli/streamchat/pkg/config"
)

const configLongDesc string = `Manage persistent streamchat configuration.

Configuration is stored as config.toml in the .streamchat/ directory and
provides default values for command flags. CLI flags and STREAMCHAT_*
environment variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  client.api_target, client.stream_path, client.method, client.timeout,
  stream.framing, stream.emit_trailing_line,
  server.listen, server.script, server.delay_ms,
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  eventstream.provider, eventstream.brokers, eventstream.topic,
  log.level

Use subcommands to get, set, or list configuration values:
  streamchat config set <key> <value>    Set a configuration value
  streamchat config get <key>            Get a configuration value
  streamchat config list                 List all configuration values

Examples:
  streamchat config set client.method POST
  streamchat config set stream.framing per_line
  streamchat config get client.api_target
  streamchat config list`

const configShortDesc string = "Manage persistent streamchat configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func printTarget(cmd *cobra.Command, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}
