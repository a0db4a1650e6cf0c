// Package store
package store

import (
	"context"
	"time"
)

// Puzzle is the persisted record for one reference image: the original
// encoded bytes plus the metadata the API reports about it.
type Puzzle struct {
	// ID is the server-assigned puzzle identifier
	ID string `json:"id"`

	// Name is the client-supplied display name
	Name string `json:"name"`

	// Width and Height are the stored image dimensions in pixels, after
	// any downscaling applied at upload time
	Width  int `json:"width"`
	Height int `json:"height"`

	// NumFeatures is the keypoint count extracted at upload time
	NumFeatures int `json:"numFeatures"`

	// CreatedAt is when the puzzle was uploaded
	CreatedAt time.Time `json:"createdAt"`

	// Image holds the encoded JPEG bytes of the stored reference
	Image []byte `json:"-"`
}

// Driver defines the interface for persisting and retrieving puzzles in a
// storage backend. The API layer works exclusively through this interface so
// backends can be swapped per deployment.
type Driver interface {
	// Put stores a puzzle. Returns true if the puzzle was newly inserted,
	// false if a puzzle with the same ID was replaced.
	Put(ctx context.Context, puzzle *Puzzle) (bool, error)

	// Get retrieves a puzzle by its ID.
	Get(ctx context.Context, id string) (*Puzzle, error)

	// Has checks if a puzzle exists by its ID.
	Has(ctx context.Context, id string) (bool, error)

	// List returns all puzzles, newest first, without image bytes.
	List(ctx context.Context) ([]*Puzzle, error)

	// Delete removes a puzzle by its ID. Deleting an absent ID returns
	// NotFoundError.
	Delete(ctx context.Context, id string) error

	// Close closes the store and releases any resources.
	Close() error
}
