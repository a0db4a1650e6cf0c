package api

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/puzzleworks/piecefinder/pkg/match"
	"github.com/puzzleworks/piecefinder/pkg/store"
	"github.com/puzzleworks/piecefinder/pkg/vision"
)

// ErrorResponse is the JSON body for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PuzzleInfo is the public metadata for one stored puzzle.
type PuzzleInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	NumFeatures int    `json:"num_features"`
}

func puzzleInfo(p *store.Puzzle) PuzzleInfo {
	return PuzzleInfo{
		ID:          p.ID,
		Name:        p.Name,
		Width:       p.Width,
		Height:      p.Height,
		NumFeatures: p.NumFeatures,
	}
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleUpload registers a new puzzle reference image: the upload is
// decoded, downscaled to the configured cap, feature-extracted, and
// persisted alongside its ready matcher.
func (s *Server) handleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "file field required"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "failed to read upload"})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "failed to read upload"})
	}

	img, err := vision.Decode(data)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid image file"})
	}
	defer img.Close()

	scaled := vision.Downscale(img, s.config.MaxImageDim)
	defer scaled.Close()

	encoded, err := vision.EncodeJPEG(scaled)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to encode image"})
	}

	puzzleID := uuid.New().String()[:8]

	m := match.NewMatcher(s.config.MatchParams, s.logger)
	numFeatures, err := m.SetReference(scaled)
	if err != nil {
		m.Close()
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid image file"})
	}
	s.matchers.Put(puzzleID, m)

	name := c.FormValue("name")
	if name == "" {
		name = fileHeader.Filename
	}
	if name == "" {
		name = fmt.Sprintf("Puzzle %s", puzzleID)
	}

	puzzle := &store.Puzzle{
		ID:          puzzleID,
		Name:        name,
		Width:       scaled.Cols(),
		Height:      scaled.Rows(),
		NumFeatures: numFeatures,
		CreatedAt:   time.Now(),
		Image:       encoded,
	}

	if _, err := s.storer.Put(c.Context(), puzzle); err != nil {
		s.matchers.Delete(puzzleID)
		s.logger.Error("failed to persist puzzle",
			zap.String("puzzle_id", puzzleID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to store puzzle"})
	}

	s.logger.Info("puzzle uploaded",
		zap.String("puzzle_id", puzzleID),
		zap.String("name", name),
		zap.Int("features", numFeatures),
	)

	return c.JSON(puzzleInfo(puzzle))
}

// handleListPuzzles returns metadata for all stored puzzles.
func (s *Server) handleListPuzzles(c *fiber.Ctx) error {
	puzzles, err := s.storer.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list puzzles"})
	}

	infos := make([]PuzzleInfo, 0, len(puzzles))
	for _, p := range puzzles {
		infos = append(infos, puzzleInfo(p))
	}

	return c.JSON(infos)
}

// handleGetPuzzleImage returns the stored reference image by ID.
func (s *Server) handleGetPuzzleImage(c *fiber.Ctx) error {
	puzzle, err := s.storer.Get(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "puzzle not found"})
	}

	c.Set(fiber.HeaderContentType, "image/jpeg")
	return c.Send(puzzle.Image)
}

// handleGetPuzzleInfo returns puzzle metadata by ID.
func (s *Server) handleGetPuzzleInfo(c *fiber.Ctx) error {
	puzzle, err := s.storer.Get(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "puzzle not found"})
	}

	return c.JSON(puzzleInfo(puzzle))
}

// handleDeletePuzzle removes a puzzle and its matcher.
func (s *Server) handleDeletePuzzle(c *fiber.Ctx) error {
	id := c.Params("id")

	if err := s.storer.Delete(c.Context(), id); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "puzzle not found"})
	}

	s.matchers.Delete(id)

	s.logger.Info("puzzle deleted", zap.String("puzzle_id", id))

	return c.JSON(fiber.Map{"status": "deleted"})
}

// round3 rounds to 3 decimal places for response payloads.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
