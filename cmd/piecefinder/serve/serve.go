// Package servecmder provides the serve command for running the piecefinder
// API and matching server.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/puzzleworks/piecefinder/api"
	"github.com/puzzleworks/piecefinder/pkg/config"
	"github.com/puzzleworks/piecefinder/pkg/logger"
	"github.com/puzzleworks/piecefinder/pkg/match"
	"github.com/puzzleworks/piecefinder/pkg/registry"
	"github.com/puzzleworks/piecefinder/pkg/segment"
	"github.com/puzzleworks/piecefinder/pkg/store"
	"github.com/puzzleworks/piecefinder/pkg/store/inmemory"
	"github.com/puzzleworks/piecefinder/pkg/store/sqlite"
	"github.com/puzzleworks/piecefinder/pkg/worker"
)

type serveCommander struct {
	listen     string
	sqlitePath string
	debug      bool
	viper      *viper.Viper
	logger     *zap.Logger
}

const serveLongDesc string = `Run the piecefinder server.

Serves the puzzle management REST API, the realtime matching websocket, and
the raw diagnostic matching endpoint. Stored puzzles are loaded at startup
and their matchers rebuilt in the background.

Configuration comes from flags, PIECEFINDER_* environment variables, and
config.toml in the .piecefinder/ directory, in that order of precedence.`

const serveShortDesc string = "Run the piecefinder server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("initializing config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.ServeFlags, []string{
				config.FlagListen,
				config.FlagSQLite,
			})

			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.ServeFlags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSQLite, &cmder.sqlitePath)

	return cmd
}

func (c *serveCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	storer, err := c.newStorageDriver()
	if err != nil {
		return err
	}
	defer storer.Close()

	matchers := registry.NewRegistry()
	defer matchers.Close()

	// Rebuild matchers for persisted puzzles in the background.
	pool, err := worker.NewPool(&worker.Config{
		Registry: matchers,
		Params:   c.matchParams(),
		Logger:   c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}

	queued, err := pool.WarmUp(context.Background(), storer)
	if err != nil {
		pool.Close()
		return fmt.Errorf("warming up matchers: %w", err)
	}
	c.logger.Info("matcher warm-up queued", zap.Int("puzzles", queued))

	server := api.NewServer(api.Config{
		ListenAddr:    c.viper.GetString("api.listen"),
		MaxImageDim:   c.viper.GetInt("upload.max_image_dim"),
		MatchParams:   c.matchParams(),
		SegmentParams: c.segmentParams(),
	}, storer, matchers, c.logger)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		pool.Close()
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		if err := server.Shutdown(); err != nil {
			c.logger.Warn("API server shutdown", zap.Error(err))
		}
		pool.Close()
		return nil
	}
}

func (c *serveCommander) matchParams() match.Params {
	params := match.DefaultParams()
	params.ConfidenceThreshold = c.viper.GetFloat64("match.confidence_threshold")
	params.RatioThreshold = c.viper.GetFloat64("match.ratio_threshold")
	params.MinMatches = c.viper.GetInt("match.min_matches")
	params.ClusterDistance = c.viper.GetInt("match.cluster_distance")
	params.MaxCandidates = c.viper.GetInt("match.max_candidates")
	return params
}

func (c *serveCommander) segmentParams() segment.Params {
	params := segment.DefaultParams()
	params.WhiteThreshold = float32(c.viper.GetFloat64("segment.white_threshold"))
	params.MinAreaRatio = c.viper.GetFloat64("segment.min_area_ratio")
	params.MaxAreaRatio = c.viper.GetFloat64("segment.max_area_ratio")
	return params
}

func (c *serveCommander) newStorageDriver() (store.Driver, error) {
	sqlitePath := c.viper.GetString("storage.sqlite_path")
	if sqlitePath != "" {
		driver, err := sqlite.NewDriver(sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite store: %w", err)
		}
		c.logger.Info("using SQLite storage", zap.String("path", sqlitePath))
		return driver, nil
	}

	c.logger.Info("using in-memory storage")
	return inmemory.NewDriver(), nil
}
