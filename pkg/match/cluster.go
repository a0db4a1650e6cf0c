package match

import (
	"image"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Confidence blends how much of the overall evidence points at a cluster
// with how strong that evidence is, each independently normalized.
const (
	matchRatioWeight    = 0.6
	distanceScoreWeight = 0.4
	distanceScale       = 100.0
)

// ClusterAndScore groups correspondences by spatial proximity on the
// reference image and scores each resulting candidate region.
//
// Clustering buckets each reference-side location into a uniform grid whose
// cell size is 2*ClusterDistance; correspondences sharing a cell form one
// cluster. A cluster straddling a cell boundary may be split in two - this
// coarse approximation is intentional and the confidence calibration depends
// on it.
//
// The returned list is filtered by ConfidenceThreshold, sorted by descending
// confidence, and truncated to MaxCandidates. Candidate bounding boxes are
// synthesized squares (see Params.PieceSizeDivisor) clipped to the reference
// bounds.
func ClusterAndScore(params Params, corrs []Correspondence, refWidth, refHeight int) []Candidate {
	if len(corrs) == 0 {
		return nil
	}

	gridSize := params.ClusterDistance * 2

	// Bucket by grid cell, preserving first-seen cell order so candidate
	// IDs are stable for identical input.
	clusters := make(map[image.Point][]Correspondence)
	var order []image.Point
	for _, c := range corrs {
		cell := image.Pt(c.Ref.X/gridSize, c.Ref.Y/gridSize)
		if _, seen := clusters[cell]; !seen {
			order = append(order, cell)
		}
		clusters[cell] = append(clusters[cell], c)
	}

	pieceSize := min(refWidth, refHeight) / params.PieceSizeDivisor
	halfSize := pieceSize / 2
	total := len(corrs)

	var candidates []Candidate
	id := 1
	for _, cell := range order {
		members := clusters[cell]
		if len(members) < params.MinMatches {
			continue
		}

		xs := make([]float64, len(members))
		ys := make([]float64, len(members))
		dists := make([]float64, len(members))
		for i, m := range members {
			xs[i] = float64(m.Ref.X)
			ys[i] = float64(m.Ref.Y)
			dists[i] = m.Distance
		}

		center := image.Pt(int(stat.Mean(xs, nil)), int(stat.Mean(ys, nil)))

		bbox := image.Rect(
			max(0, center.X-halfSize),
			max(0, center.Y-halfSize),
			min(refWidth, center.X+halfSize),
			min(refHeight, center.Y+halfSize),
		)

		matchRatio := float64(len(members)) / float64(total)
		distanceScore := 1.0 / (1.0 + stat.Mean(dists, nil)/distanceScale)
		confidence := min(1.0, matchRatioWeight*matchRatio+distanceScoreWeight*distanceScore)

		// IDs track discovery order across all surviving clusters, including
		// those the confidence filter then drops.
		candidateID := id
		id++

		if confidence < params.ConfidenceThreshold {
			continue
		}

		candidates = append(candidates, Candidate{
			ID:         candidateID,
			BBox:       bbox,
			Center:     center,
			Confidence: confidence,
			Matches:    len(members),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	if params.MaxCandidates > 0 && len(candidates) > params.MaxCandidates {
		candidates = candidates[:params.MaxCandidates]
	}

	return candidates
}
