package position

import "errors"

var (
	// ErrPositionNotFound is returned when no open position has the given ID.
	ErrPositionNotFound = errors.New("position not found")

	// ErrPositionExists is returned when a position is already open on the mint.
	ErrPositionExists = errors.New("position already open for mint")

	// ErrInvalidEntry is returned when entry price, quantity or cost basis is not positive.
	ErrInvalidEntry = errors.New("invalid entry: price, quantity and cost basis must be positive")

	// ErrInvalidPrice is returned for a non-positive price.
	ErrInvalidPrice = errors.New("price must be positive")

	// ErrInvalidPercent is returned when percent to sell is not in (0, 100].
	ErrInvalidPercent = errors.New("percent to sell must be in (0, 100]")
)
