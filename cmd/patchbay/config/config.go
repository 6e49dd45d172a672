// Package configcmder provides the config command for managing persistent
// patchbay configuration stored in the .patchbay/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent patchbay configuration.

Configuration is stored as config.toml in the .patchbay/ directory and provides
default values for command flags. CLI flags and PATCHBAY_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  gateway.listen, gateway.openai_url, gateway.ollama_url,
  gateway.default_backend, client.gateway_target,
  events.enabled, events.kafka_brokers, events.kafka_topic,
  catalog.ttl_seconds, catalog.overrides_path

Use subcommands to get, set, or list configuration values:
  patchbay config set <key> <value>    Set a configuration value
  patchbay config get <key>            Get a configuration value
  patchbay config list                 List all configuration values

Examples:
  patchbay config set gateway.default_backend openai
  patchbay config set events.kafka_brokers broker1:9092,broker2:9092
  patchbay config get gateway.listen
  patchbay config list`

const configShortDesc string = "Manage persistent patchbay configuration"

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
