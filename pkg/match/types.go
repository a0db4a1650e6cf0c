package match

import "image"

// Correspondence is one accepted piece-to-reference descriptor pairing after
// the ratio test: the reference-side keypoint location and the descriptor
// distance (lower = more similar). Correspondences are produced and consumed
// within a single match invocation and never persisted.
type Correspondence struct {
	Ref      image.Point
	Distance float64
}

// Candidate is a scored region on the reference image hypothesized to be the
// piece's true location. IDs are assigned sequentially in discovery order and
// are only unique within one match invocation.
type Candidate struct {
	ID         int
	BBox       image.Rectangle
	Center     image.Point
	Confidence float64
	Matches    int
}

// Point is a sub-pixel 2-D location.
type Point struct {
	X float64
	Y float64
}

// RawMatch is a single unsegmented frame-to-reference correspondence from the
// diagnostic path.
type RawMatch struct {
	FramePoint Point
	RefPoint   Point
	Distance   float64
}
