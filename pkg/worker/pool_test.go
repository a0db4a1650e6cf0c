package worker

import (
	"context"
	"math/rand"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/puzzleworks/piecefinder/pkg/match"
	"github.com/puzzleworks/piecefinder/pkg/registry"
	"github.com/puzzleworks/piecefinder/pkg/store"
	"github.com/puzzleworks/piecefinder/pkg/store/inmemory"
	"github.com/puzzleworks/piecefinder/pkg/vision"
)

// referenceJPEG encodes a seeded noise image so matcher builds have real
// features to extract.
func referenceJPEG(rows, cols int, seed int64) []byte {
	img := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC1)
	defer img.Close()

	rng := rand.New(rand.NewSource(seed))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			img.SetUCharAt(r, c, uint8(rng.Intn(256)))
		}
	}

	data, err := vision.EncodeJPEG(img)
	Expect(err).NotTo(HaveOccurred())
	return data
}

// newTestPool creates a worker pool feeding a fresh registry.
// Callers should "wp.Close()" to drain enqueued jobs before asserting registry state.
func newTestPool() (*Pool, *registry.Registry) {
	logger, _ := zap.NewDevelopment()
	reg := registry.NewRegistry()

	wp, err := NewPool(&Config{
		Registry: reg,
		Params:   match.DefaultParams(),
		Logger:   logger,
	})
	Expect(err).NotTo(HaveOccurred())

	return wp, reg
}

var _ = Describe("Worker Pool", func() {
	var (
		wp  *Pool
		reg *registry.Registry
		ctx context.Context
	)

	BeforeEach(func() {
		wp, reg = newTestPool()
		ctx = context.Background()
	})

	AfterEach(func() {
		reg.Close()
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			ok := wp.Enqueue(Job{
				Puzzle: &store.Puzzle{
					ID:    "p1",
					Name:  "forest scene",
					Image: referenceJPEG(200, 300, 7),
				},
			})
			Expect(ok).To(BeTrue())
			wp.Close()
		})
	})

	Describe("matcher builds", func() {
		It("registers a ready matcher for a valid puzzle image", func() {
			wp.Enqueue(Job{
				Puzzle: &store.Puzzle{
					ID:    "p1",
					Name:  "forest scene",
					Image: referenceJPEG(200, 300, 7),
				},
			})
			wp.Close()

			m, err := reg.Get("p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.HasReference()).To(BeTrue())
			Expect(m.FeatureCount()).To(BeNumerically(">", 0))

			w, h := m.ReferenceSize()
			Expect(w).To(Equal(300))
			Expect(h).To(Equal(200))
		})

		It("skips a puzzle whose image bytes do not decode", func() {
			wp.Enqueue(Job{
				Puzzle: &store.Puzzle{
					ID:    "broken",
					Name:  "corrupted upload",
					Image: []byte("not a jpeg"),
				},
			})
			wp.Close()

			Expect(reg.Has("broken")).To(BeFalse())
		})
	})

	Describe("WarmUp", func() {
		It("rebuilds matchers for every persisted puzzle", func() {
			driver := inmemory.NewDriver()
			defer driver.Close()

			now := time.Now()
			for i, id := range []string{"a", "b"} {
				_, err := driver.Put(ctx, &store.Puzzle{
					ID:        id,
					Name:      "puzzle " + id,
					CreatedAt: now.Add(time.Duration(i) * time.Second),
					Image:     referenceJPEG(200, 300, int64(i+1)),
				})
				Expect(err).NotTo(HaveOccurred())
			}

			queued, err := wp.WarmUp(ctx, driver)
			Expect(err).NotTo(HaveOccurred())
			Expect(queued).To(Equal(2))

			wp.Close()
			Expect(reg.Len()).To(Equal(2))
			Expect(reg.Has("a")).To(BeTrue())
			Expect(reg.Has("b")).To(BeTrue())
		})
	})
})
