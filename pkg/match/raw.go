package match

import (
	"fmt"
	"math"
	"sort"

	"gocv.io/x/gocv"

	"github.com/puzzleworks/piecefinder/pkg/vision"
)

// Trace is the ordered per-stage record of a diagnostic match, for
// calibration and debugging. Stages read in pipeline order and every failure
// path appends a descriptive entry instead of raising an error.
type Trace struct {
	FrameWidth     int      `json:"frameWidth"`
	FrameHeight    int      `json:"frameHeight"`
	FrameKeypoints int      `json:"frameKeypoints"`
	RefKeypoints   int      `json:"refKeypoints"`
	RawMatches     int      `json:"rawMatches"`
	GoodMatches    int      `json:"goodMatches"`
	Stages         []string `json:"stages"`
}

func (t *Trace) stage(format string, args ...any) {
	t.Stages = append(t.Stages, fmt.Sprintf(format, args...))
}

// MatchFrameRaw matches a whole camera frame directly against the reference,
// skipping segmentation, and reports raw correspondences sorted by ascending
// distance plus a per-stage trace. It never fails: every failure path
// records a trace stage and returns an empty match list.
func (m *Matcher) MatchFrameRaw(frame gocv.Mat, maxMatches int) ([]RawMatch, *Trace) {
	trace := &Trace{}
	if !frame.Empty() {
		trace.FrameWidth = frame.Cols()
		trace.FrameHeight = frame.Rows()
	}

	var result []RawMatch
	ok := m.store.read(func(refKeypoints []gocv.KeyPoint, refDescriptors gocv.Mat, width, height int) {
		trace.RefKeypoints = len(refKeypoints)
		trace.stage("reference loaded: %d keypoints", len(refKeypoints))

		if frame.Empty() {
			trace.stage("ERROR: empty frame received")
			return
		}

		gray := grayscaleForTrace(frame, trace)
		defer gray.Close()

		noMask := gocv.NewMat()
		defer noMask.Close()
		frameKeypoints, frameDescriptors := m.extractor.DetectAndCompute(gray, noMask)
		defer frameDescriptors.Close()

		trace.FrameKeypoints = len(frameKeypoints)
		trace.stage("frame SIFT: %d keypoints extracted", len(frameKeypoints))

		if frameDescriptors.Empty() || frameDescriptors.Rows() < 2 {
			trace.stage("ERROR: not enough keypoints in frame")
			return
		}

		pairs := m.knnSearch(frameDescriptors, refDescriptors)
		if pairs == nil {
			trace.stage("ERROR: KNN matching failed")
			return
		}
		trace.RawMatches = len(pairs)
		trace.stage("KNN matching: %d raw matches", len(pairs))

		good := FilterByRatio(pairs, m.params.RatioThreshold)
		trace.GoodMatches = len(good)
		trace.stage("ratio test: %d good matches (threshold=%v)", len(good), m.params.RatioThreshold)

		if len(good) == 0 {
			trace.stage("no matches passed ratio test")
			return
		}

		sort.SliceStable(good, func(i, j int) bool {
			return good[i].Distance < good[j].Distance
		})
		if maxMatches > 0 && len(good) > maxMatches {
			good = good[:maxMatches]
		}

		result = make([]RawMatch, len(good))
		for i, g := range good {
			fkp := frameKeypoints[g.QueryIdx]
			rkp := refKeypoints[g.TrainIdx]
			result[i] = RawMatch{
				FramePoint: Point{X: round1(fkp.X), Y: round1(fkp.Y)},
				RefPoint:   Point{X: round1(rkp.X), Y: round1(rkp.Y)},
				Distance:   round2(g.Distance),
			}
		}

		trace.stage("returning %d match points", len(result))
	})
	if !ok {
		trace.stage("ERROR: no reference image loaded")
		return nil, trace
	}

	return result, trace
}

// grayscaleForTrace converts the frame and records the stage.
func grayscaleForTrace(frame gocv.Mat, trace *Trace) gocv.Mat {
	gray := vision.Grayscale(frame)
	trace.stage("frame converted to grayscale: %dx%d", gray.Cols(), gray.Rows())
	return gray
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
