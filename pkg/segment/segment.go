// Package segment isolates a candidate puzzle piece from a camera frame
// captured against a light, low-texture background (a white mat).
//
// Bright pixels are treated as background; the largest plausible foreground
// contour becomes the piece. An empty stage is a common, expected outcome
// and yields a nil result rather than an error.
package segment

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/puzzleworks/piecefinder/pkg/vision"
)

const (
	// kernelSize is the structuring element size for morphological cleanup.
	kernelSize = 5

	// bboxPadding is the margin added around the detected piece, in pixels.
	bboxPadding = 10
)

// Params holds the segmentation tuning knobs.
type Params struct {
	// WhiteThreshold is the intensity above which a pixel counts as background.
	WhiteThreshold float32

	// MinAreaRatio and MaxAreaRatio bound the accepted contour area as a
	// fraction of total frame area. Contours outside the band are noise
	// specks or near-full-frame spurious detections.
	MinAreaRatio float64
	MaxAreaRatio float64
}

// DefaultParams returns the segmentation defaults tuned for a piece on a
// white mat under ordinary room lighting.
func DefaultParams() Params {
	return Params{
		WhiteThreshold: 200,
		MinAreaRatio:   0.01,
		MaxAreaRatio:   0.8,
	}
}

// Piece is a segmented puzzle piece: the cropped frame region, a same-size
// binary mask (nonzero = piece), and the padded bounding box in frame
// coordinates. Close must be called to release the Mats.
type Piece struct {
	Image gocv.Mat
	Mask  gocv.Mat
	BBox  image.Rectangle
}

// Close releases the piece's image and mask Mats.
func (p *Piece) Close() {
	p.Image.Close()
	p.Mask.Close()
}

// Segmenter extracts puzzle pieces from frames using fixed Params.
// It is stateless per call and safe for concurrent use.
type Segmenter struct {
	params Params
}

// New creates a Segmenter with the given params.
func New(params Params) *Segmenter {
	return &Segmenter{params: params}
}

// Segment isolates the puzzle piece in frame.
// Returns (nil, nil) when no plausible piece contour is found: this is the
// normal result for an empty stage, not a failure. An empty frame returns
// vision.InvalidImageError.
func (s *Segmenter) Segment(frame gocv.Mat) (*Piece, error) {
	if frame.Empty() {
		return nil, vision.InvalidImageError{Reason: "empty frame"}
	}

	gray := vision.Grayscale(frame)
	defer gray.Close()

	// Smooth out sensor noise before thresholding.
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(kernelSize, kernelSize), 0, 0, gocv.BorderDefault)

	// Bright background goes to zero, piece becomes foreground.
	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(blurred, &binary, s.params.WhiteThreshold, 255, gocv.ThresholdBinaryInv)

	// Close fills small gaps inside the piece, open removes speckle noise.
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(kernelSize, kernelSize))
	defer kernel.Close()
	gocv.MorphologyExWithParams(binary, &binary, gocv.MorphClose, kernel, 2, gocv.BorderConstant)
	gocv.MorphologyExWithParams(binary, &binary, gocv.MorphOpen, kernel, 1, gocv.BorderConstant)

	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	best := s.largestValidContour(contours, frame.Rows()*frame.Cols())
	if best < 0 {
		return nil, nil
	}

	// Filled mask of just the winning contour, full frame size.
	mask := gocv.Zeros(frame.Rows(), frame.Cols(), gocv.MatTypeCV8U)
	defer mask.Close()
	gocv.DrawContours(&mask, contours, best, color.RGBA{R: 255, G: 255, B: 255}, -1)

	bbox := padRect(gocv.BoundingRect(contours.At(best)), frame.Cols(), frame.Rows())

	pieceRegion := frame.Region(bbox)
	defer pieceRegion.Close()
	maskRegion := mask.Region(bbox)
	defer maskRegion.Close()

	return &Piece{
		Image: pieceRegion.Clone(),
		Mask:  maskRegion.Clone(),
		BBox:  bbox,
	}, nil
}

// largestValidContour returns the index of the largest contour whose area
// falls inside the configured area-ratio band, or -1 if none qualifies.
func (s *Segmenter) largestValidContour(contours gocv.PointsVector, frameArea int) int {
	minArea := float64(frameArea) * s.params.MinAreaRatio
	maxArea := float64(frameArea) * s.params.MaxAreaRatio

	best := -1
	bestArea := 0.0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area <= minArea || area >= maxArea {
			continue
		}
		if area > bestArea {
			best = i
			bestArea = area
		}
	}

	return best
}

// padRect grows r by bboxPadding on every side, clipped to the frame bounds.
func padRect(r image.Rectangle, width, height int) image.Rectangle {
	return image.Rect(
		max(0, r.Min.X-bboxPadding),
		max(0, r.Min.Y-bboxPadding),
		min(width, r.Max.X+bboxPadding),
		min(height, r.Max.Y+bboxPadding),
	)
}

// ApplyMask zeroes every piece pixel outside the mask, suppressing background
// texture before feature extraction. The caller owns the returned Mat.
func ApplyMask(piece, mask gocv.Mat) gocv.Mat {
	masked := gocv.NewMat()
	gocv.BitwiseAndWithMask(piece, piece, &masked, mask)
	return masked
}
