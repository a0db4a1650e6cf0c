// Package api provides the HTTP and websocket API server for managing
// puzzles and matching piece frames against them.
package api

import (
	"github.com/puzzleworks/piecefinder/pkg/match"
	"github.com/puzzleworks/piecefinder/pkg/segment"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8000")
	ListenAddr string

	// MaxImageDim caps reference image dimensions; larger uploads are
	// downscaled preserving aspect ratio before feature extraction.
	MaxImageDim int

	// MatchParams are the pipeline parameters for every matcher the
	// server builds.
	MatchParams match.Params

	// SegmentParams control piece isolation on incoming camera frames.
	SegmentParams segment.Params
}
