package match_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/puzzleworks/piecefinder/pkg/match"
	"github.com/puzzleworks/piecefinder/pkg/vision"
)

// fakeExtractor returns a fixed set of keypoints and a matching descriptor
// Mat on every call, standing in for SIFT.
type fakeExtractor struct {
	keypoints []gocv.KeyPoint
}

func (f *fakeExtractor) DetectAndCompute(_ gocv.Mat, _ gocv.Mat) ([]gocv.KeyPoint, gocv.Mat) {
	return f.keypoints, gocv.NewMatWithSize(len(f.keypoints), 128, gocv.MatTypeCV32F)
}

func (f *fakeExtractor) Close() error { return nil }

// fakeSearcher returns canned neighbor pairs.
type fakeSearcher struct {
	pairs [][]gocv.DMatch
}

func (f *fakeSearcher) KnnSearch(_, _ gocv.Mat, _ int) [][]gocv.DMatch {
	return f.pairs
}

func (f *fakeSearcher) Close() error { return nil }

// panicSearcher simulates a native backend failure on corrupted descriptors.
type panicSearcher struct{}

func (p *panicSearcher) KnnSearch(_, _ gocv.Mat, _ int) [][]gocv.DMatch {
	panic("knnMatch: unsupported descriptor format")
}

func (p *panicSearcher) Close() error { return nil }

// kp places a keypoint at integer coordinates.
func kp(x, y float64) gocv.KeyPoint {
	return gocv.KeyPoint{X: x, Y: y, Size: 2}
}

// pair builds a 2-NN result with the given best and second-best distances,
// best neighbor pointing at trainIdx.
func pair(queryIdx, trainIdx int, best, second float64) []gocv.DMatch {
	return []gocv.DMatch{
		{QueryIdx: queryIdx, TrainIdx: trainIdx, Distance: best},
		{QueryIdx: queryIdx, TrainIdx: trainIdx + 1, Distance: second},
	}
}

var _ = Describe("FilterByRatio", func() {
	It("keeps a match markedly closer than its second neighbor", func() {
		// 30 < 0.75*41 = 30.75
		good := match.FilterByRatio([][]gocv.DMatch{pair(0, 0, 30, 41)}, 0.75)
		Expect(good).To(HaveLen(1))
		Expect(good[0].Distance).To(Equal(30.0))
	})

	It("discards an ambiguous match at the ratio boundary", func() {
		// 30 >= 0.75*39 = 29.25
		good := match.FilterByRatio([][]gocv.DMatch{pair(0, 0, 30, 39)}, 0.75)
		Expect(good).To(BeEmpty())
	})

	It("skips incomplete neighbor pairs", func() {
		pairs := [][]gocv.DMatch{{{QueryIdx: 0, TrainIdx: 0, Distance: 10}}}
		Expect(match.FilterByRatio(pairs, 0.75)).To(BeEmpty())
	})
})

var _ = Describe("Matcher", func() {
	var (
		logger *zap.Logger
		params match.Params
		refImg gocv.Mat
		noMask gocv.Mat
	)

	BeforeEach(func() {
		logger = zap.NewNop()
		params = match.DefaultParams()
		// An 800x1000 stand-in reference; features come from the fake.
		refImg = gocv.NewMatWithSize(800, 1000, gocv.MatTypeCV8UC3)
		noMask = gocv.NewMat()
	})

	AfterEach(func() {
		refImg.Close()
		noMask.Close()
	})

	// eightRefKeypoints all share the grid cell (1,1) at cluster distance 50.
	eightRefKeypoints := func() []gocv.KeyPoint {
		var kps []gocv.KeyPoint
		for i := 0; i < 8; i++ {
			kps = append(kps, kp(float64(100+i*10), float64(100+i*10)))
		}
		return kps
	}

	Describe("MatchPiece", func() {
		It("rejects an empty piece image", func() {
			m := match.NewMatcherWithBackend(params, &fakeExtractor{}, &fakeSearcher{}, logger)
			defer m.Close()

			empty := gocv.NewMat()
			defer empty.Close()

			_, err := m.MatchPiece(empty, noMask)
			Expect(err).To(HaveOccurred())

			var invalid vision.InvalidImageError
			Expect(errors.As(err, &invalid)).To(BeTrue())
		})

		It("returns empty when no reference is loaded", func() {
			m := match.NewMatcherWithBackend(params, &fakeExtractor{keypoints: eightRefKeypoints()}, &fakeSearcher{}, logger)
			defer m.Close()

			candidates, err := m.MatchPiece(refImg, noMask)
			Expect(err).NotTo(HaveOccurred())
			Expect(candidates).To(BeEmpty())
		})

		It("clusters surviving correspondences into a scored candidate", func() {
			var pairs [][]gocv.DMatch
			for i := 0; i < 6; i++ {
				pairs = append(pairs, pair(i, i, 30, 100)) // unambiguous
			}
			pairs = append(pairs, pair(6, 6, 30, 31)) // ambiguous, filtered

			m := match.NewMatcherWithBackend(params,
				&fakeExtractor{keypoints: eightRefKeypoints()},
				&fakeSearcher{pairs: pairs},
				logger,
			)
			defer m.Close()

			_, err := m.SetReference(refImg)
			Expect(err).NotTo(HaveOccurred())

			candidates, err := m.MatchPiece(refImg, noMask)
			Expect(err).NotTo(HaveOccurred())
			Expect(candidates).To(HaveLen(1))
			Expect(candidates[0].Matches).To(Equal(6))
			Expect(candidates[0].Confidence).To(BeNumerically(">", 0))
			Expect(candidates[0].Confidence).To(BeNumerically("<=", 1))

			// Bounding box clipped to the reference.
			bbox := candidates[0].BBox
			Expect(bbox.Min.X).To(BeNumerically(">=", 0))
			Expect(bbox.Max.X).To(BeNumerically("<=", 1000))
			Expect(bbox.Max.Y).To(BeNumerically("<=", 800))
		})

		It("returns empty when too few correspondences survive the ratio test", func() {
			// Only 3 survivors with MinMatches 4, regardless of threshold.
			params.ConfidenceThreshold = 0

			pairs := [][]gocv.DMatch{
				pair(0, 0, 30, 100), pair(1, 1, 30, 100), pair(2, 2, 30, 100),
				pair(3, 3, 30, 31), pair(4, 4, 30, 31),
			}

			m := match.NewMatcherWithBackend(params,
				&fakeExtractor{keypoints: eightRefKeypoints()},
				&fakeSearcher{pairs: pairs},
				logger,
			)
			defer m.Close()

			_, err := m.SetReference(refImg)
			Expect(err).NotTo(HaveOccurred())

			candidates, err := m.MatchPiece(refImg, noMask)
			Expect(err).NotTo(HaveOccurred())
			Expect(candidates).To(BeEmpty())
		})

		It("downgrades a backend failure to an empty result", func() {
			m := match.NewMatcherWithBackend(params,
				&fakeExtractor{keypoints: eightRefKeypoints()},
				&panicSearcher{},
				logger,
			)
			defer m.Close()

			_, err := m.SetReference(refImg)
			Expect(err).NotTo(HaveOccurred())

			candidates, err := m.MatchPiece(refImg, noMask)
			Expect(err).NotTo(HaveOccurred())
			Expect(candidates).To(BeEmpty())
			Expect(m.BackendFailures()).To(Equal(uint64(1)))
		})
	})

	Describe("MatchFrameRaw", func() {
		It("traces the missing-reference failure path", func() {
			m := match.NewMatcherWithBackend(params, &fakeExtractor{}, &fakeSearcher{}, logger)
			defer m.Close()

			matches, trace := m.MatchFrameRaw(refImg, 100)
			Expect(matches).To(BeEmpty())
			Expect(trace.Stages).To(ContainElement(ContainSubstring("no reference image loaded")))
		})

		It("traces the empty-frame failure path", func() {
			m := match.NewMatcherWithBackend(params, &fakeExtractor{keypoints: eightRefKeypoints()}, &fakeSearcher{}, logger)
			defer m.Close()

			_, err := m.SetReference(refImg)
			Expect(err).NotTo(HaveOccurred())

			empty := gocv.NewMat()
			defer empty.Close()

			matches, trace := m.MatchFrameRaw(empty, 100)
			Expect(matches).To(BeEmpty())
			Expect(trace.RefKeypoints).To(Equal(8))
			Expect(trace.Stages).To(ContainElement(ContainSubstring("empty frame")))
		})

		It("returns matches sorted by ascending distance with a full trace", func() {
			pairs := [][]gocv.DMatch{
				pair(0, 0, 60, 100),
				pair(1, 1, 20, 100),
				pair(2, 2, 40, 100),
				pair(3, 3, 30, 31), // ambiguous, filtered
			}

			m := match.NewMatcherWithBackend(params,
				&fakeExtractor{keypoints: eightRefKeypoints()},
				&fakeSearcher{pairs: pairs},
				logger,
			)
			defer m.Close()

			_, err := m.SetReference(refImg)
			Expect(err).NotTo(HaveOccurred())

			matches, trace := m.MatchFrameRaw(refImg, 100)
			Expect(matches).To(HaveLen(3))
			Expect(matches[0].Distance).To(Equal(20.0))
			Expect(matches[1].Distance).To(Equal(40.0))
			Expect(matches[2].Distance).To(Equal(60.0))

			Expect(trace.RawMatches).To(Equal(4))
			Expect(trace.GoodMatches).To(Equal(3))
			Expect(trace.Stages).To(ContainElement(ContainSubstring("ratio test: 3 good matches")))
			Expect(trace.Stages).To(ContainElement(ContainSubstring("returning 3 match points")))
		})

		It("truncates to the requested maximum", func() {
			var pairs [][]gocv.DMatch
			for i := 0; i < 6; i++ {
				pairs = append(pairs, pair(i, i, float64(10+i), 100))
			}

			m := match.NewMatcherWithBackend(params,
				&fakeExtractor{keypoints: eightRefKeypoints()},
				&fakeSearcher{pairs: pairs},
				logger,
			)
			defer m.Close()

			_, err := m.SetReference(refImg)
			Expect(err).NotTo(HaveOccurred())

			matches, _ := m.MatchFrameRaw(refImg, 2)
			Expect(matches).To(HaveLen(2))
		})

		It("traces a backend failure without raising it", func() {
			m := match.NewMatcherWithBackend(params,
				&fakeExtractor{keypoints: eightRefKeypoints()},
				&panicSearcher{},
				logger,
			)
			defer m.Close()

			_, err := m.SetReference(refImg)
			Expect(err).NotTo(HaveOccurred())

			matches, trace := m.MatchFrameRaw(refImg, 100)
			Expect(matches).To(BeEmpty())
			Expect(trace.Stages).To(ContainElement(ContainSubstring("KNN matching failed")))
		})
	})
})
