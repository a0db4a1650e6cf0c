package match

import "gocv.io/x/gocv"

// Extractor detects keypoints and computes their descriptors on a grayscale
// image, optionally restricted to a mask (nonzero = include). It is the
// narrow seam over the concrete feature backend so the pipeline logic never
// touches library specifics directly.
type Extractor interface {
	DetectAndCompute(img gocv.Mat, mask gocv.Mat) ([]gocv.KeyPoint, gocv.Mat)
	Close() error
}

// Searcher finds, for every query descriptor row, its k approximate nearest
// neighbors among the train descriptors.
type Searcher interface {
	KnnSearch(query, train gocv.Mat, k int) [][]gocv.DMatch
	Close() error
}

// siftExtractor backs Extractor with SIFT, which is rotation and scale
// invariant - a piece photographed at any angle still matches.
type siftExtractor struct {
	sift gocv.SIFT
}

// NewSIFTExtractor creates the default SIFT-backed Extractor.
func NewSIFTExtractor() Extractor {
	return &siftExtractor{sift: gocv.NewSIFT()}
}

func (e *siftExtractor) DetectAndCompute(img gocv.Mat, mask gocv.Mat) ([]gocv.KeyPoint, gocv.Mat) {
	return e.sift.DetectAndCompute(img, mask)
}

func (e *siftExtractor) Close() error {
	return e.sift.Close()
}

// flannSearcher backs Searcher with a FLANN KD-tree index for fast
// approximate search over float descriptors.
type flannSearcher struct {
	matcher gocv.FlannBasedMatcher
}

// NewFlannSearcher creates the default FLANN-backed Searcher.
func NewFlannSearcher() Searcher {
	return &flannSearcher{matcher: gocv.NewFlannBasedMatcher()}
}

func (s *flannSearcher) KnnSearch(query, train gocv.Mat, k int) [][]gocv.DMatch {
	return s.matcher.KnnMatch(query, train, k)
}

func (s *flannSearcher) Close() error {
	return s.matcher.Close()
}
