// Package configcmder provides the config command for managing persistent
// piecefinder configuration stored in the .piecefinder/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent piecefinder configuration.

Configuration is stored as config.toml in the .piecefinder/ directory and
provides default values for command flags. CLI flags always take precedence
over config file values.

Keys use dotted notation matching the TOML section structure:
  api.listen, storage.sqlite_path, upload.max_image_dim,
  match.confidence_threshold, match.ratio_threshold, match.min_matches,
  match.cluster_distance, match.max_candidates,
  segment.white_threshold, segment.min_area_ratio, segment.max_area_ratio

Use subcommands to get, set, or list configuration values:
  piecefinder config set <key> <value>    Set a configuration value
  piecefinder config get <key>            Get a configuration value
  piecefinder config list                 List all configuration values

Examples:
  piecefinder config set api.listen :9000
  piecefinder config set match.min_matches 6
  piecefinder config get match.ratio_threshold
  piecefinder config list`

const configShortDesc string = "Manage persistent piecefinder configuration"

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
