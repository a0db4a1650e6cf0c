package config

const (
	defaultAPIListen = ":8000"

	defaultMaxImageDim = 2000

	defaultConfidenceThreshold = 0.3
	defaultRatioThreshold      = 0.75
	defaultMinMatches          = 4
	defaultClusterDistance     = 50
	defaultMaxCandidates       = 10

	defaultWhiteThreshold = 200
	defaultMinAreaRatio   = 0.01
	defaultMaxAreaRatio   = 0.8
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Upload: UploadConfig{
			MaxImageDim: defaultMaxImageDim,
		},
		Match: MatchConfig{
			ConfidenceThreshold: defaultConfidenceThreshold,
			RatioThreshold:      defaultRatioThreshold,
			MinMatches:          defaultMinMatches,
			ClusterDistance:     defaultClusterDistance,
			MaxCandidates:       defaultMaxCandidates,
		},
		Segment: SegmentConfig{
			WhiteThreshold: defaultWhiteThreshold,
			MinAreaRatio:   defaultMinAreaRatio,
			MaxAreaRatio:   defaultMaxAreaRatio,
		},
	}
}
