package match

// Params holds the matching pipeline tuning knobs.
type Params struct {
	// ConfidenceThreshold is the minimum confidence for a reported candidate.
	ConfidenceThreshold float64

	// RatioThreshold is the Lowe ratio test threshold: the best neighbor is
	// kept only when bestDistance < RatioThreshold * secondBestDistance.
	RatioThreshold float64

	// MinMatches is the minimum number of correspondences (and cluster
	// members) required to report anything at all.
	MinMatches int

	// ClusterDistance sets the spatial clustering granularity on the
	// reference image, in pixels. The grid cell size is 2*ClusterDistance.
	ClusterDistance int

	// MaxCandidates caps the number of candidates returned per match.
	MaxCandidates int

	// PieceSizeDivisor synthesizes candidate bounding boxes as squares of
	// side min(refWidth, refHeight)/PieceSizeDivisor. The piece is assumed
	// to occupy roughly one-eighth of the reference's shorter dimension;
	// this is a tunable assumption, not a derived quantity.
	PieceSizeDivisor int
}

// DefaultParams returns the matching defaults.
func DefaultParams() Params {
	return Params{
		ConfidenceThreshold: 0.3,
		RatioThreshold:      0.75,
		MinMatches:          4,
		ClusterDistance:     50,
		MaxCandidates:       10,
		PieceSizeDivisor:    8,
	}
}
