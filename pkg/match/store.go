package match

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/puzzleworks/piecefinder/pkg/vision"
)

// FeatureStore holds the extracted keypoints and descriptors for exactly one
// reference image, plus its pixel dimensions. It is built once per reference
// and read by every subsequent match invocation.
//
// The only state transition is empty -> populated -> replaced: SetReference
// swaps in a fully-built feature set under the write lock, so concurrent
// readers always observe either the old set or the new one, never a partial
// mutation.
type FeatureStore struct {
	mu sync.RWMutex

	keypoints   []gocv.KeyPoint
	descriptors gocv.Mat
	width       int
	height      int
	populated   bool
}

// NewFeatureStore creates an empty FeatureStore.
func NewFeatureStore() *FeatureStore {
	return &FeatureStore{}
}

// SetReference extracts features from the whole reference image (no mask)
// using the given extractor and atomically replaces any prior feature set.
// Returns the number of keypoints found; zero is a valid result for an image
// with no distinguishing texture, not an error.
func (fs *FeatureStore) SetReference(img gocv.Mat, extractor Extractor) (int, error) {
	if img.Empty() {
		return 0, vision.InvalidImageError{Reason: "empty reference image"}
	}

	gray := vision.Grayscale(img)
	defer gray.Close()

	noMask := gocv.NewMat()
	defer noMask.Close()
	keypoints, descriptors := extractor.DetectAndCompute(gray, noMask)

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.populated {
		fs.descriptors.Close()
	}

	fs.keypoints = keypoints
	fs.descriptors = descriptors
	fs.width = img.Cols()
	fs.height = img.Rows()
	fs.populated = true

	return len(keypoints), nil
}

// HasReference reports whether reference descriptors are currently present.
func (fs *FeatureStore) HasReference() bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	return fs.populated && !fs.descriptors.Empty()
}

// FeatureCount returns the number of stored reference keypoints.
func (fs *FeatureStore) FeatureCount() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	return len(fs.keypoints)
}

// Size returns the reference image dimensions (width, height).
func (fs *FeatureStore) Size() (int, int) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	return fs.width, fs.height
}

// Close releases the descriptor Mat. The store must not be used afterwards.
func (fs *FeatureStore) Close() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.populated {
		fs.descriptors.Close()
		fs.populated = false
		fs.keypoints = nil
	}
}

// read runs fn with the current feature set under the read lock, so the
// descriptors cannot be replaced or closed mid-search. Returns false without
// calling fn when no reference is loaded.
func (fs *FeatureStore) read(fn func(keypoints []gocv.KeyPoint, descriptors gocv.Mat, width, height int)) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if !fs.populated || fs.descriptors.Empty() {
		return false
	}

	fn(fs.keypoints, fs.descriptors, fs.width, fs.height)
	return true
}
