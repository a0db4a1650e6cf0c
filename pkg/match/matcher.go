// Package match locates where a photographed puzzle piece belongs on a known
// reference image. Distinctive local features are extracted from the piece,
// matched against the reference's precomputed feature set, clustered into
// spatial candidate regions, and scored for confidence.
package match

import (
	"image"
	"sync/atomic"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/puzzleworks/piecefinder/pkg/vision"
)

// Matcher matches puzzle pieces against one reference image. All matching
// methods are safe for concurrent use; only SetReference mutates state, and
// it is serialized against in-flight matches by the feature store's lock.
type Matcher struct {
	params    Params
	extractor Extractor
	searcher  Searcher
	store     *FeatureStore
	logger    *zap.Logger

	// backendFailures counts recovered nearest-neighbor search failures,
	// for operability: garbage camera frames must not crash a session, but
	// a rising count points at a calibration or hardware problem.
	backendFailures atomic.Uint64
}

// NewMatcher creates a Matcher with the default SIFT/FLANN backend.
func NewMatcher(params Params, logger *zap.Logger) *Matcher {
	return NewMatcherWithBackend(params, NewSIFTExtractor(), NewFlannSearcher(), logger)
}

// NewMatcherWithBackend creates a Matcher over explicit extractor and
// searcher implementations.
func NewMatcherWithBackend(params Params, extractor Extractor, searcher Searcher, logger *zap.Logger) *Matcher {
	return &Matcher{
		params:    params,
		extractor: extractor,
		searcher:  searcher,
		store:     NewFeatureStore(),
		logger:    logger,
	}
}

// Params returns the matcher's pipeline parameters.
func (m *Matcher) Params() Params {
	return m.params
}

// SetReference extracts features from the reference image and atomically
// replaces any prior reference. Returns the number of keypoints found.
func (m *Matcher) SetReference(img gocv.Mat) (int, error) {
	return m.store.SetReference(img, m.extractor)
}

// HasReference reports whether a reference image is loaded.
func (m *Matcher) HasReference() bool {
	return m.store.HasReference()
}

// FeatureCount returns the number of reference keypoints.
func (m *Matcher) FeatureCount() int {
	return m.store.FeatureCount()
}

// ReferenceSize returns the reference image dimensions (width, height).
func (m *Matcher) ReferenceSize() (int, int) {
	return m.store.Size()
}

// BackendFailures returns the number of recovered search backend failures.
func (m *Matcher) BackendFailures() uint64 {
	return m.backendFailures.Load()
}

// Close releases the matcher's feature store and backend resources.
func (m *Matcher) Close() {
	m.store.Close()
	m.extractor.Close()
	m.searcher.Close()
}

// MatchPiece matches a segmented piece image against the reference and
// returns candidate regions sorted by descending confidence. The mask, when
// non-empty, restricts feature extraction to piece pixels.
//
// An empty result is the expected outcome whenever the piece carries too few
// distinctive features, too few correspondences survive the ratio test, or
// no cluster is large enough - none of these are errors. Only an empty piece
// Mat is an error (vision.InvalidImageError).
func (m *Matcher) MatchPiece(piece gocv.Mat, mask gocv.Mat) ([]Candidate, error) {
	if piece.Empty() {
		return nil, vision.InvalidImageError{Reason: "empty piece image"}
	}

	gray := vision.Grayscale(piece)
	defer gray.Close()

	_, descriptors := m.extractor.DetectAndCompute(gray, mask)
	defer descriptors.Close()

	if descriptors.Empty() || descriptors.Rows() < m.params.MinMatches {
		return nil, nil
	}

	var candidates []Candidate
	ok := m.store.read(func(refKeypoints []gocv.KeyPoint, refDescriptors gocv.Mat, width, height int) {
		pairs := m.knnSearch(descriptors, refDescriptors)
		good := FilterByRatio(pairs, m.params.RatioThreshold)
		if len(good) < m.params.MinMatches {
			return
		}

		corrs := make([]Correspondence, len(good))
		for i, g := range good {
			kp := refKeypoints[g.TrainIdx]
			corrs[i] = Correspondence{
				Ref:      image.Pt(int(kp.X), int(kp.Y)),
				Distance: g.Distance,
			}
		}

		candidates = ClusterAndScore(m.params, corrs, width, height)
	})
	if !ok {
		return nil, nil
	}

	return candidates, nil
}

// knnSearch finds the 2 nearest reference neighbors for every query
// descriptor. Backend failures on malformed descriptor data surface as
// panics from the native layer; they are contained here and downgraded to
// "no matches" so a garbage frame cannot take down a running session.
func (m *Matcher) knnSearch(query, train gocv.Mat) (pairs [][]gocv.DMatch) {
	defer func() {
		if r := recover(); r != nil {
			m.backendFailures.Add(1)
			m.logger.Warn("nearest-neighbor search failed",
				zap.Any("cause", r),
				zap.Uint64("backend_failures", m.backendFailures.Load()),
			)
			pairs = nil
		}
	}()

	return m.searcher.KnnSearch(query, train, 2)
}

// FilterByRatio applies the Lowe ratio test: the best neighbor is kept only
// when it is markedly closer than the second best, discarding ambiguous
// matches where the two nearest neighbors are nearly equidistant.
func FilterByRatio(pairs [][]gocv.DMatch, ratio float64) []gocv.DMatch {
	var good []gocv.DMatch
	for _, pair := range pairs {
		if len(pair) != 2 {
			continue
		}
		if pair[0].Distance < ratio*pair[1].Distance {
			good = append(good, pair[0])
		}
	}

	return good
}
