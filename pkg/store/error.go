package store

// NotFoundError is returned when a puzzle doesn't exist in the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "puzzle not found"
	}

	return "puzzle not found: " + e.ID
}
