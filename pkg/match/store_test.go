package match_test

import (
	"errors"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gocv.io/x/gocv"

	"github.com/puzzleworks/piecefinder/pkg/match"
	"github.com/puzzleworks/piecefinder/pkg/vision"
)

// texturedImage fills a grayscale Mat with seeded noise, giving SIFT plenty
// of repeatable structure to latch onto.
func texturedImage(rows, cols int, seed int64) gocv.Mat {
	img := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC1)
	rng := rand.New(rand.NewSource(seed))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			img.SetUCharAt(r, c, uint8(rng.Intn(256)))
		}
	}
	return img
}

var _ = Describe("FeatureStore", func() {
	var (
		store     *match.FeatureStore
		extractor match.Extractor
	)

	BeforeEach(func() {
		store = match.NewFeatureStore()
		extractor = match.NewSIFTExtractor()
	})

	AfterEach(func() {
		store.Close()
		extractor.Close()
	})

	It("rejects an empty reference image", func() {
		empty := gocv.NewMat()
		defer empty.Close()

		_, err := store.SetReference(empty, extractor)
		Expect(err).To(HaveOccurred())

		var invalid vision.InvalidImageError
		Expect(errors.As(err, &invalid)).To(BeTrue())
		Expect(store.HasReference()).To(BeFalse())
	})

	It("accepts a featureless image but reports no usable reference", func() {
		flat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 128, 128, 0), 200, 200, gocv.MatTypeCV8UC1)
		defer flat.Close()

		count, err := store.SetReference(flat, extractor)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(BeZero())
		Expect(store.HasReference()).To(BeFalse())
	})

	It("stores features and dimensions for a textured image", func() {
		img := texturedImage(300, 400, 7)
		defer img.Close()

		count, err := store.SetReference(img, extractor)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(BeNumerically(">", 0))
		Expect(store.HasReference()).To(BeTrue())
		Expect(store.FeatureCount()).To(Equal(count))

		w, h := store.Size()
		Expect(w).To(Equal(400))
		Expect(h).To(Equal(300))
	})

	It("extracts deterministically for identical input", func() {
		img := texturedImage(300, 400, 7)
		defer img.Close()

		first, err := store.SetReference(img, extractor)
		Expect(err).NotTo(HaveOccurred())

		second, err := store.SetReference(img, extractor)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))
	})

	It("replaces the prior reference wholesale", func() {
		first := texturedImage(300, 400, 7)
		defer first.Close()

		_, err := store.SetReference(first, extractor)
		Expect(err).NotTo(HaveOccurred())

		second := texturedImage(100, 250, 11)
		defer second.Close()

		_, err = store.SetReference(second, extractor)
		Expect(err).NotTo(HaveOccurred())

		w, h := store.Size()
		Expect(w).To(Equal(250))
		Expect(h).To(Equal(100))
	})
})
