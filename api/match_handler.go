package api

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"github.com/puzzleworks/piecefinder/pkg/match"
	"github.com/puzzleworks/piecefinder/pkg/segment"
	"github.com/puzzleworks/piecefinder/pkg/vision"
)

// MatchResult is one scored candidate location in a stream response.
type MatchResult struct {
	ID int `json:"id"`
	// BBox is [x, y, width, height] on the reference image
	BBox [4]int `json:"bbox"`
	// Center is [x, y] on the reference image
	Center     [2]int  `json:"center"`
	Confidence float64 `json:"confidence"`
	NumMatches int     `json:"numMatches"`
}

// StreamResponse is the per-frame reply on the matching websocket.
type StreamResponse struct {
	Error          string        `json:"error,omitempty"`
	Matches        []MatchResult `json:"matches"`
	ProcessingTime int64         `json:"processingTime"`
	PieceDetected  bool          `json:"pieceDetected"`
}

func matchResults(candidates []match.Candidate) []MatchResult {
	results := make([]MatchResult, len(candidates))
	for i, c := range candidates {
		results[i] = MatchResult{
			ID:         c.ID,
			BBox:       [4]int{c.BBox.Min.X, c.BBox.Min.Y, c.BBox.Dx(), c.BBox.Dy()},
			Center:     [2]int{c.Center.X, c.Center.Y},
			Confidence: round3(c.Confidence),
			NumMatches: c.Matches,
		}
	}
	return results
}

// handleMatchStream is the realtime piece matching loop. The client sends
// binary JPEG camera frames; every frame gets a JSON reply. A frame that
// fails to decode or contains no piece is reported, never fatal: the
// connection survives until the client disconnects.
func (s *Server) handleMatchStream(c *websocket.Conn) {
	id := c.Params("id")

	matcher, err := s.matchers.Get(id)
	if err != nil {
		_ = c.WriteJSON(StreamResponse{Error: "Puzzle not found", Matches: []MatchResult{}})
		_ = c.Close()
		return
	}

	s.logger.Debug("match stream opened", zap.String("puzzle_id", id))
	defer s.logger.Debug("match stream closed", zap.String("puzzle_id", id))

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}

		start := time.Now()

		if err := c.WriteJSON(s.matchFrame(matcher, data, start)); err != nil {
			return
		}
	}
}

// matchFrame runs the segment-then-match pipeline for one camera frame.
func (s *Server) matchFrame(matcher *match.Matcher, data []byte, start time.Time) StreamResponse {
	frame, err := vision.Decode(data)
	if err != nil {
		return StreamResponse{Error: "Invalid frame", Matches: []MatchResult{}}
	}
	defer frame.Close()

	piece, err := s.segmenter.Segment(frame)
	if err != nil {
		return StreamResponse{Error: "Invalid frame", Matches: []MatchResult{}}
	}
	if piece == nil {
		return StreamResponse{
			Matches:        []MatchResult{},
			ProcessingTime: time.Since(start).Milliseconds(),
			PieceDetected:  false,
		}
	}
	defer piece.Close()

	masked := segment.ApplyMask(piece.Image, piece.Mask)
	defer masked.Close()

	candidates, err := matcher.MatchPiece(masked, piece.Mask)
	if err != nil {
		return StreamResponse{Error: "Invalid frame", Matches: []MatchResult{}}
	}

	return StreamResponse{
		Matches:        matchResults(candidates),
		ProcessingTime: time.Since(start).Milliseconds(),
		PieceDetected:  true,
	}
}
