package engine

import "time"

// Policy selects how a player's stack is topped up between hands.
type Policy int

const (
	PolicyOff Policy = iota
	PolicyMin
	PolicyMax
	PolicyBest
)

// Valid reports whether p is one of the defined policies.
func (p Policy) Valid() bool {
	return p >= PolicyOff && p <= PolicyBest
}

func (p Policy) String() string {
	switch p {
	case PolicyOff:
		return "off"
	case PolicyMin:
		return "min"
	case PolicyMax:
		return "max"
	case PolicyBest:
		return "best"
	default:
		return "unknown"
	}
}

// UserData is the small volatile record the session layer keeps on each
// player: whether the client declared itself ready for the next hand, and
// when it was last sent a turn-timeout warning (zero when not warned).
type UserData struct {
	Ready           bool
	TimeoutWarnedAt time.Time
}

// Player is the engine-owned per-seat record. The engine creates it in
// AddPlayer and mutates it as the hand progresses; the session layer
// reads it freely and writes Money, BuyInPaid and UserData under the
// table lock, mirroring every money write to the database in the same
// update cycle.
type Player struct {
	Serial int64
	Name   string
	Seat   int
	Money  int64
	Bet    int64

	Broke          bool
	BuyInPaid      bool
	RemoveNextTurn bool
	SitOut         bool
	SitOutNextTurn bool
	Auto           bool
	AutoBlindAnte  bool
	Bot            bool

	// WaitFor is set while the player waits for a blind position
	// ("late", "big_blind", ...); empty otherwise.
	WaitFor string

	AutoRefill Policy
	AutoRebuy  Policy

	MissedRoundCount int

	UserData UserData
}
