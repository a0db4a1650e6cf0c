package api

import (
	"github.com/gofiber/fiber/v2"
	"gocv.io/x/gocv"

	"github.com/puzzleworks/piecefinder/pkg/match"
	"github.com/puzzleworks/piecefinder/pkg/vision"
)

const defaultMaxRawMatches = 100

// RawPoint is a sub-pixel location in a raw match response.
type RawPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RawMatchInfo is one unfiltered frame-to-reference correspondence.
type RawMatchInfo struct {
	FramePoint RawPoint `json:"framePoint"`
	RefPoint   RawPoint `json:"refPoint"`
	Distance   float64  `json:"distance"`
}

// RawMatchResponse is the diagnostic matching reply: every surviving
// correspondence plus the per-stage trace of how the pipeline got there.
type RawMatchResponse struct {
	Matches []RawMatchInfo `json:"matches"`
	Debug   *match.Trace   `json:"debug"`
}

// handleMatchRaw matches a whole camera frame against a puzzle's reference
// without segmentation, for calibration and debugging. The body is the
// encoded frame. The matching itself never fails: decode problems and empty
// results all come back as a 200 with the trace explaining the outcome.
func (s *Server) handleMatchRaw(c *fiber.Ctx) error {
	matcher, err := s.matchers.Get(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "puzzle not found"})
	}

	maxMatches := c.QueryInt("max_matches", defaultMaxRawMatches)

	frame, err := vision.Decode(c.Body())
	if err != nil {
		// An undecodable body traces as an empty frame.
		empty := gocv.NewMat()
		defer empty.Close()

		raw, trace := matcher.MatchFrameRaw(empty, maxMatches)
		return c.JSON(rawResponse(raw, trace))
	}
	defer frame.Close()

	raw, trace := matcher.MatchFrameRaw(frame, maxMatches)
	return c.JSON(rawResponse(raw, trace))
}

func rawResponse(raw []match.RawMatch, trace *match.Trace) RawMatchResponse {
	matches := make([]RawMatchInfo, len(raw))
	for i, m := range raw {
		matches[i] = RawMatchInfo{
			FramePoint: RawPoint{X: m.FramePoint.X, Y: m.FramePoint.Y},
			RefPoint:   RawPoint{X: m.RefPoint.X, Y: m.RefPoint.Y},
			Distance:   m.Distance,
		}
	}

	return RawMatchResponse{Matches: matches, Debug: trace}
}
