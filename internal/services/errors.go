package services

import (
	"errors"
	"fmt"
)

// ErrAuctionClosed is returned when a bid arrives for an auction that is
// past its end time or already in a terminal state. Surfaced to the
// caller as a user-visible "auction has ended" condition.
var ErrAuctionClosed = errors.New("auction has ended")

// ErrNotYetEnded is returned when settlement is invoked before the
// auction's end time. Treated as a scheduling error upstream; logged,
// never shown to end users.
var ErrNotYetEnded = errors.New("auction has not yet ended")

// ErrAuctionNotFound is returned when no matching auction exists.
var ErrAuctionNotFound = errors.New("auction not found")

// InvalidBidError rejects a bid with an actionable reason and the
// current minimum acceptable next bid, so the caller can surface
// "bid at least X" rather than a generic failure.
type InvalidBidError struct {
	Reason         string
	MinimumNextBid float64
}

func (e *InvalidBidError) Error() string {
	return fmt.Sprintf("invalid bid: %s (minimum next bid: %.2f)", e.Reason, e.MinimumNextBid)
}

// IsInvalidBid reports whether err is an InvalidBidError and returns it.
func IsInvalidBid(err error) (*InvalidBidError, bool) {
	var ibe *InvalidBidError
	if errors.As(err, &ibe) {
		return ibe, true
	}
	return nil, false
}
