package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent piecefinder configuration stored as
// config.toml in the .piecefinder/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Storage StorageConfig `toml:"storage"`
	API     APIConfig     `toml:"api"`
	Upload  UploadConfig  `toml:"upload"`
	Match   MatchConfig   `toml:"match"`
	Segment SegmentConfig `toml:"segment"`
}

// StorageConfig holds puzzle persistence settings.
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// UploadConfig holds reference image upload settings.
type UploadConfig struct {
	// MaxImageDim is the maximum dimension for uploaded reference images.
	// Larger images are downscaled before feature extraction.
	MaxImageDim int `toml:"max_image_dim,omitempty"`
}

// MatchConfig holds the piece matching pipeline tuning knobs.
type MatchConfig struct {
	ConfidenceThreshold float64 `toml:"confidence_threshold,omitempty"`
	RatioThreshold      float64 `toml:"ratio_threshold,omitempty"`
	MinMatches          int     `toml:"min_matches,omitempty"`
	ClusterDistance     int     `toml:"cluster_distance,omitempty"`
	MaxCandidates       int     `toml:"max_candidates,omitempty"`
}

// SegmentConfig holds the white-background segmentation tuning knobs.
type SegmentConfig struct {
	WhiteThreshold int     `toml:"white_threshold,omitempty"`
	MinAreaRatio   float64 `toml:"min_area_ratio,omitempty"`
	MaxAreaRatio   float64 `toml:"max_area_ratio,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"upload.max_image_dim": {
		get: func(c *Config) string { return intKey(c.Upload.MaxImageDim) },
		set: func(c *Config, v string) error {
			n, err := parseIntKey("upload.max_image_dim", v)
			c.Upload.MaxImageDim = n
			return err
		},
	},
	"match.confidence_threshold": {
		get: func(c *Config) string { return floatKey(c.Match.ConfidenceThreshold) },
		set: func(c *Config, v string) error {
			f, err := parseFloatKey("match.confidence_threshold", v)
			c.Match.ConfidenceThreshold = f
			return err
		},
	},
	"match.ratio_threshold": {
		get: func(c *Config) string { return floatKey(c.Match.RatioThreshold) },
		set: func(c *Config, v string) error {
			f, err := parseFloatKey("match.ratio_threshold", v)
			c.Match.RatioThreshold = f
			return err
		},
	},
	"match.min_matches": {
		get: func(c *Config) string { return intKey(c.Match.MinMatches) },
		set: func(c *Config, v string) error {
			n, err := parseIntKey("match.min_matches", v)
			c.Match.MinMatches = n
			return err
		},
	},
	"match.cluster_distance": {
		get: func(c *Config) string { return intKey(c.Match.ClusterDistance) },
		set: func(c *Config, v string) error {
			n, err := parseIntKey("match.cluster_distance", v)
			c.Match.ClusterDistance = n
			return err
		},
	},
	"match.max_candidates": {
		get: func(c *Config) string { return intKey(c.Match.MaxCandidates) },
		set: func(c *Config, v string) error {
			n, err := parseIntKey("match.max_candidates", v)
			c.Match.MaxCandidates = n
			return err
		},
	},
	"segment.white_threshold": {
		get: func(c *Config) string { return intKey(c.Segment.WhiteThreshold) },
		set: func(c *Config, v string) error {
			n, err := parseIntKey("segment.white_threshold", v)
			c.Segment.WhiteThreshold = n
			return err
		},
	},
	"segment.min_area_ratio": {
		get: func(c *Config) string { return floatKey(c.Segment.MinAreaRatio) },
		set: func(c *Config, v string) error {
			f, err := parseFloatKey("segment.min_area_ratio", v)
			c.Segment.MinAreaRatio = f
			return err
		},
	},
	"segment.max_area_ratio": {
		get: func(c *Config) string { return floatKey(c.Segment.MaxAreaRatio) },
		set: func(c *Config, v string) error {
			f, err := parseFloatKey("segment.max_area_ratio", v)
			c.Segment.MaxAreaRatio = f
			return err
		},
	},
}

func intKey(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func floatKey(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func parseIntKey(key, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return n, nil
}

func parseFloatKey(key, v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return f, nil
}
