package api

import (
	"bytes"
	"encoding/json"
	"image"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/puzzleworks/piecefinder/pkg/match"
	"github.com/puzzleworks/piecefinder/pkg/registry"
	"github.com/puzzleworks/piecefinder/pkg/segment"
	"github.com/puzzleworks/piecefinder/pkg/store/inmemory"
	"github.com/puzzleworks/piecefinder/pkg/vision"
)

// texturedJPEG encodes a seeded noise image with plenty of SIFT features.
func texturedJPEG(rows, cols int, seed int64) []byte {
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

// whiteFrameJPEG encodes an all-white camera frame, optionally with a dark
// textured piece in the middle.
func whiteFrameJPEG(withPiece bool) []byte {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	if withPiece {
		rng := rand.New(rand.NewSource(3))
		for r := 180; r < 300; r++ {
			for c := 260; c < 380; c++ {
				for ch := 0; ch < 3; ch++ {
					frame.SetUCharAt3(r, c, ch, uint8(rng.Intn(100)))
				}
			}
		}
	}

	data, err := vision.EncodeJPEG(frame)
	Expect(err).NotTo(HaveOccurred())
	return data
}

// multipartUpload builds a multipart request body with a file part and an
// optional name field.
func multipartUpload(fileBytes []byte, name string) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "upload.jpg")
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(fileBytes)
	Expect(err).NotTo(HaveOccurred())

	if name != "" {
		Expect(writer.WriteField("name", name)).To(Succeed())
	}

	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

var _ = Describe("Server", func() {
	var server *Server

	BeforeEach(func() {
		logger, _ := zap.NewDevelopment()
		server = NewServer(
			Config{
				ListenAddr:    ":0",
				MaxImageDim:   2000,
				MatchParams:   match.DefaultParams(),
				SegmentParams: segment.DefaultParams(),
			},
			inmemory.NewDriver(),
			registry.NewRegistry(),
			logger,
		)
	})

	AfterEach(func() {
		server.matchers.Close()
	})

	uploadPuzzle := func(name string) PuzzleInfo {
		body, contentType := multipartUpload(texturedJPEG(300, 400, 7), name)
		req := httptest.NewRequest(http.MethodPost, "/api/puzzle/upload", body)
		req.Header.Set("Content-Type", contentType)

		resp, err := server.app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var info PuzzleInfo
		Expect(json.NewDecoder(resp.Body).Decode(&info)).To(Succeed())
		return info
	}

	Describe("ping", func() {
		It("responds with pong", func() {
			resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			data, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal(`"pong"`))
		})
	})

	Describe("upload", func() {
		It("registers a puzzle and builds its matcher", func() {
			info := uploadPuzzle("mountain lake")

			Expect(info.ID).To(HaveLen(8))
			Expect(info.Name).To(Equal("mountain lake"))
			Expect(info.Width).To(Equal(400))
			Expect(info.Height).To(Equal(300))
			Expect(info.NumFeatures).To(BeNumerically(">", 0))

			Expect(server.matchers.Has(info.ID)).To(BeTrue())
		})

		It("falls back to the filename when no name is given", func() {
			info := uploadPuzzle("")
			Expect(info.Name).To(Equal("upload.jpg"))
		})

		It("rejects undecodable image data", func() {
			body, contentType := multipartUpload([]byte("not a jpeg"), "")
			req := httptest.NewRequest(http.MethodPost, "/api/puzzle/upload", body)
			req.Header.Set("Content-Type", contentType)

			resp, err := server.app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects a request without a file part", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/puzzle/upload", nil)

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("puzzle retrieval", func() {
		It("lists uploaded puzzles", func() {
			info := uploadPuzzle("alpha")

			resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, "/api/puzzles", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var infos []PuzzleInfo
			Expect(json.NewDecoder(resp.Body).Decode(&infos)).To(Succeed())
			Expect(infos).To(HaveLen(1))
			Expect(infos[0].ID).To(Equal(info.ID))
		})

		It("serves the stored reference image", func() {
			info := uploadPuzzle("alpha")

			resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, "/api/puzzle/"+info.ID, nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/jpeg"))

			data, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			// JPEG SOI marker
			Expect(data[:2]).To(Equal([]byte{0xff, 0xd8}))
		})

		It("serves puzzle metadata", func() {
			info := uploadPuzzle("alpha")

			resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, "/api/puzzle/"+info.ID+"/info", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var got PuzzleInfo
			Expect(json.NewDecoder(resp.Body).Decode(&got)).To(Succeed())
			Expect(got).To(Equal(info))
		})

		It("returns 404 for an unknown puzzle", func() {
			resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, "/api/puzzle/missing/info", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("delete", func() {
		It("removes the puzzle and its matcher", func() {
			info := uploadPuzzle("alpha")

			resp, err := server.app.Test(httptest.NewRequest(http.MethodDelete, "/api/puzzle/"+info.ID, nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			Expect(server.matchers.Has(info.ID)).To(BeFalse())

			resp, err = server.app.Test(httptest.NewRequest(http.MethodGet, "/api/puzzle/"+info.ID+"/info", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("returns 404 for an unknown puzzle", func() {
			resp, err := server.app.Test(httptest.NewRequest(http.MethodDelete, "/api/puzzle/missing", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("raw diagnostic match", func() {
		It("returns 404 when no matcher exists", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/puzzle/missing/match/raw", bytes.NewReader(whiteFrameJPEG(false)))

			resp, err := server.app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("traces an undecodable frame instead of failing", func() {
			info := uploadPuzzle("alpha")

			req := httptest.NewRequest(http.MethodPost, "/api/puzzle/"+info.ID+"/match/raw", bytes.NewReader([]byte("garbage")))

			resp, err := server.app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var raw RawMatchResponse
			Expect(json.NewDecoder(resp.Body).Decode(&raw)).To(Succeed())
			Expect(raw.Matches).To(BeEmpty())
			Expect(raw.Debug.Stages).To(ContainElement(ContainSubstring("empty frame")))
		})

		It("reports the full pipeline trace for a decodable frame", func() {
			info := uploadPuzzle("alpha")

			req := httptest.NewRequest(http.MethodPost, "/api/puzzle/"+info.ID+"/match/raw", bytes.NewReader(texturedJPEG(300, 400, 7)))

			resp, err := server.app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var raw RawMatchResponse
			Expect(json.NewDecoder(resp.Body).Decode(&raw)).To(Succeed())
			Expect(raw.Debug.RefKeypoints).To(BeNumerically(">", 0))
			Expect(raw.Debug.FrameKeypoints).To(BeNumerically(">", 0))
			Expect(raw.Debug.Stages).To(ContainElement(ContainSubstring("KNN matching")))
		})
	})

	Describe("matchFrame", func() {
		It("reports no piece for an empty stage", func() {
			info := uploadPuzzle("alpha")
			matcher, err := server.matchers.Get(info.ID)
			Expect(err).NotTo(HaveOccurred())

			resp := server.matchFrame(matcher, whiteFrameJPEG(false), time.Now())
			Expect(resp.PieceDetected).To(BeFalse())
			Expect(resp.Matches).To(BeEmpty())
		})

		It("runs the segment-then-match pipeline when a piece is present", func() {
			info := uploadPuzzle("alpha")
			matcher, err := server.matchers.Get(info.ID)
			Expect(err).NotTo(HaveOccurred())

			resp := server.matchFrame(matcher, whiteFrameJPEG(true), time.Now())
			Expect(resp.PieceDetected).To(BeTrue())
			Expect(resp.Error).To(BeEmpty())
		})

		It("reports an invalid frame for undecodable data", func() {
			info := uploadPuzzle("alpha")
			matcher, err := server.matchers.Get(info.ID)
			Expect(err).NotTo(HaveOccurred())

			resp := server.matchFrame(matcher, []byte("garbage"), time.Now())
			Expect(resp.Error).To(Equal("Invalid frame"))
		})
	})

	Describe("stream payload", func() {
		It("serializes bounding boxes as x, y, width, height", func() {
			results := matchResults([]match.Candidate{{
				ID:         0,
				BBox:       image.Rect(450, 350, 550, 450),
				Center:     image.Pt(500, 400),
				Confidence: 0.87654,
				Matches:    12,
			}})

			Expect(results).To(HaveLen(1))
			Expect(results[0].BBox).To(Equal([4]int{450, 350, 100, 100}))
			Expect(results[0].Center).To(Equal([2]int{500, 400}))
			Expect(results[0].Confidence).To(Equal(0.877))
		})

		It("always includes processingTime, even when zero", func() {
			data, err := json.Marshal(StreamResponse{Matches: []MatchResult{}})
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"processingTime":0`))
		})
	})
})

