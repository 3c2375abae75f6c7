package enums

import "fmt"

// AuctionStatus tracks the lifecycle of an auction.
type AuctionStatus string

const (
	AuctionStatusScheduled AuctionStatus = "scheduled"
	AuctionStatusActive    AuctionStatus = "active"
	AuctionStatusPaused    AuctionStatus = "paused"
	AuctionStatusEnded     AuctionStatus = "ended"
	AuctionStatusSettled   AuctionStatus = "settled"
	AuctionStatusSold      AuctionStatus = "sold"
	AuctionStatusCancelled AuctionStatus = "cancelled"
)

var validAuctionStatuses = []AuctionStatus{
	AuctionStatusScheduled,
	AuctionStatusActive,
	AuctionStatusPaused,
	AuctionStatusEnded,
	AuctionStatusSettled,
	AuctionStatusSold,
	AuctionStatusCancelled,
}

// String implements fmt.Stringer.
func (a AuctionStatus) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AuctionStatus.
func (a AuctionStatus) IsValid() bool {
	for _, candidate := range validAuctionStatuses {
		if candidate == a {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible from the status.
// Sold and cancelled are final; ended is terminal only when no winner exists,
// which the state machine decides, so it is not listed here.
func (a AuctionStatus) IsTerminal() bool {
	return a == AuctionStatusSold || a == AuctionStatusCancelled
}

// ParseAuctionStatus converts raw input into an AuctionStatus.
func ParseAuctionStatus(value string) (AuctionStatus, error) {
	for _, candidate := range validAuctionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid auction status %q", value)
}
