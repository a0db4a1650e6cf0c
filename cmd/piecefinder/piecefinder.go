// Package piecefindercmder
package piecefindercmder

import (
	"fmt"

	"github.com/spf13/cobra"

	configcmder "github.com/puzzleworks/piecefinder/cmd/piecefinder/config"
	servecmder "github.com/puzzleworks/piecefinder/cmd/piecefinder/serve"
	"github.com/puzzleworks/piecefinder/pkg/utils"
)

const piecefinderLongDesc string = `Piecefinder locates jigsaw puzzle pieces on their reference image.

Run the server using:
  piecefinder serve    Run the API and matching server

Manage configuration using:
  piecefinder config   Get, set, and list persistent configuration`

const piecefinderShortDesc string = "Piecefinder - Jigsaw Piece Localization"

func NewPiecefinderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "piecefinder",
		Short: piecefinderShortDesc,
		Long:  piecefinderLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory containing config.toml (default: .piecefinder/ resolution)")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("piecefinder %s (%s) built %s\n", utils.Version, utils.Sha, utils.Buildtime)
		},
	}
}
