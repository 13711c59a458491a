// Package policy holds the pure, deterministic pricing and timing rules
// of the auction engine. Nothing here performs I/O; every input,
// including the clock, is a parameter.
package policy

import "time"

// MinimumNextBid returns the lowest acceptable next bid given the
// current highest accepted amount (or the auction's minimum-bid base
// when no bids exist). The increment is a deployment-wide constant, not
// a per-auction setting.
func MinimumNextBid(currentHighest, increment float64) float64 {
	return currentHighest + increment
}

// ReserveMet reports whether the reserve price is satisfied. A nil
// reserve means no reserve is set and it is always considered met.
func ReserveMet(reservePrice *float64, currentHighest float64) bool {
	if reservePrice == nil {
		return true
	}
	return currentHighest >= *reservePrice
}

// ShouldExtend reports whether a bid arriving at now, against an auction
// ending at endAt, lands inside the trailing anti-sniping window. A bid
// arriving exactly at or after endAt does not extend (the auction is
// already over), and neither does one arriving before the window opens.
func ShouldExtend(endAt, now time.Time, threshold time.Duration) bool {
	remaining := endAt.Sub(now)
	return remaining > 0 && remaining <= threshold
}

// NextEndAt returns the pushed-back end time for a qualifying bid.
// Extensions stack without a cap: every qualifying bid re-triggers one,
// so a bidding war in the final minutes keeps moving the close.
func NextEndAt(endAt time.Time, extension time.Duration) time.Time {
	return endAt.Add(extension)
}
