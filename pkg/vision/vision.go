// Package vision provides shared image plumbing for the matching pipeline:
// decoding uploaded bytes into Mats, grayscale conversion, and downscaling.
//
// Every pipeline stage boundary funnels caller input through this package so
// that "caller handed us garbage" (InvalidImageError) stays distinguishable
// from "nothing found in a valid frame" (nil results).
package vision

import (
	"image"

	"gocv.io/x/gocv"
)

// Decode decodes raw image bytes (JPEG/PNG) into a BGR Mat.
// Returns InvalidImageError for empty or undecodable input.
// The caller owns the returned Mat and must Close it.
func Decode(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.Mat{}, InvalidImageError{Reason: "empty image data"}
	}

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, InvalidImageError{Reason: "undecodable image data"}
	}
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, InvalidImageError{Reason: "undecodable image data"}
	}

	return img, nil
}

// EncodeJPEG encodes a Mat as JPEG bytes.
func EncodeJPEG(img gocv.Mat) ([]byte, error) {
	if img.Empty() {
		return nil, InvalidImageError{Reason: "empty image"}
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	// GetBytes returns a view into the native buffer; copy before Close.
	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return data, nil
}

// Grayscale converts a BGR Mat to a single-channel intensity Mat.
// Single-channel input is cloned as-is. The caller owns the returned Mat.
func Grayscale(src gocv.Mat) gocv.Mat {
	if src.Channels() == 1 {
		return src.Clone()
	}

	gray := gocv.NewMat()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	return gray
}

// Downscale resizes src so that its largest dimension does not exceed maxDim,
// preserving aspect ratio. Images already within bounds are cloned unchanged.
// The caller owns the returned Mat.
func Downscale(src gocv.Mat, maxDim int) gocv.Mat {
	rows, cols := src.Rows(), src.Cols()
	longest := max(rows, cols)
	if maxDim <= 0 || longest <= maxDim {
		return src.Clone()
	}

	scale := float64(maxDim) / float64(longest)
	dst := gocv.NewMat()
	sz := image.Pt(int(float64(cols)*scale), int(float64(rows)*scale))
	gocv.Resize(src, &dst, sz, 0, 0, gocv.InterpolationArea)
	return dst
}
