package registry

// NotFoundError is returned when no matcher is registered for a puzzle ID.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "matcher not found"
	}

	return "matcher not found: " + e.ID
}
