package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/puzzleworks/piecefinder/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the PIECEFINDER_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (PIECEFINDER_API_LISTEN, PIECEFINDER_MATCH_MIN_MATCHES, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: PIECEFINDER_API_LISTEN, PIECEFINDER_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix("PIECEFINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	defaults := NewDefaultConfig()

	v.SetDefault("storage.sqlite_path", defaults.Storage.SQLitePath)
	v.SetDefault("api.listen", defaults.API.Listen)
	v.SetDefault("upload.max_image_dim", defaults.Upload.MaxImageDim)

	v.SetDefault("match.confidence_threshold", defaults.Match.ConfidenceThreshold)
	v.SetDefault("match.ratio_threshold", defaults.Match.RatioThreshold)
	v.SetDefault("match.min_matches", defaults.Match.MinMatches)
	v.SetDefault("match.cluster_distance", defaults.Match.ClusterDistance)
	v.SetDefault("match.max_candidates", defaults.Match.MaxCandidates)

	v.SetDefault("segment.white_threshold", defaults.Segment.WhiteThreshold)
	v.SetDefault("segment.min_area_ratio", defaults.Segment.MinAreaRatio)
	v.SetDefault("segment.max_area_ratio", defaults.Segment.MaxAreaRatio)
}
