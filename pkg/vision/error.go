package vision

// InvalidImageError reports a null, zero-sized, or undecodable pixel buffer.
// It indicates a caller bug, as opposed to the expected-empty outcomes the
// pipeline returns for legitimate absence of a match.
type InvalidImageError struct {
	Reason string
}

func (e InvalidImageError) Error() string {
	if e.Reason == "" {
		return "invalid image"
	}

	return "invalid image: " + e.Reason
}
