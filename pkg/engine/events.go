package engine

// Tag names a history event kind. The set below is closed: the session
// layer logs and skips anything else.
type Tag string

const (
	TagGame         Tag = "game"
	TagWaitFor      Tag = "wait_for"
	TagRebuy        Tag = "rebuy"
	TagBuyOut       Tag = "buyOut"
	TagPlayerList   Tag = "player_list"
	TagRound        Tag = "round"
	TagShowdown     Tag = "showdown"
	TagRake         Tag = "rake"
	TagMuck         Tag = "muck"
	TagPosition     Tag = "position"
	TagBlindRequest Tag = "blind_request"
	TagWaitBlind    Tag = "wait_blind"
	TagBlind        Tag = "blind"
	TagAnteRequest  Tag = "ante_request"
	TagAnte         Tag = "ante"
	TagAllIn        Tag = "all-in"
	TagCall         Tag = "call"
	TagCheck        Tag = "check"
	TagFold         Tag = "fold"
	TagRaise        Tag = "raise"
	TagCanceled     Tag = "canceled"
	TagSitOut       Tag = "sitOut"
	TagSit          Tag = "sit"
	TagLeave        Tag = "leave"
	TagEnd          Tag = "end"
	TagFinish       Tag = "finish"
)

// Event is one tagged record of the engine's append-only hand history.
type Event interface {
	Tag() Tag
}

// GameEvent opens a hand. It carries enough context to rebuild the game
// during a replay: variant, betting structure, dealer seat and the stack
// of every serial dealt in.
type GameEvent struct {
	Level            int             `json:"level"`
	HandSerial       int64           `json:"hand_serial"`
	HandsCount       int             `json:"hands_count"`
	Time             int64           `json:"time"`
	Variant          string          `json:"variant"`
	BettingStructure string          `json:"betting_structure"`
	Players          []int64         `json:"players"`
	Dealer           int             `json:"dealer"`
	Serial2Chips     map[int64]int64 `json:"serial2chips"`
}

func (*GameEvent) Tag() Tag { return TagGame }

// WaitForEvent marks a player waiting for a blind position.
type WaitForEvent struct {
	Serial int64  `json:"serial"`
	Reason string `json:"reason"`
}

func (*WaitForEvent) Tag() Tag { return TagWaitFor }

// RebuyEvent records chips added to a seated player's stack.
type RebuyEvent struct {
	Serial int64 `json:"serial"`
	Amount int64 `json:"amount"`
}

func (*RebuyEvent) Tag() Tag { return TagRebuy }

// BuyOutEvent records chips leaving the table with a player.
type BuyOutEvent struct {
	Serial int64 `json:"serial"`
	Amount int64 `json:"amount"`
}

func (*BuyOutEvent) Tag() Tag { return TagBuyOut }

// PlayerListEvent carries the in-game serials in seat order.
type PlayerListEvent struct {
	Players []int64 `json:"players"`
}

func (*PlayerListEvent) Tag() Tag { return TagPlayerList }

// RoundEvent opens a betting round. Board and Pockets may be nil in
// compressed histories when unchanged since the previous emit.
type RoundEvent struct {
	Name    string           `json:"name"`
	Board   []Card           `json:"board,omitempty"`
	Pockets map[int64][]Card `json:"pockets,omitempty"`
}

func (*RoundEvent) Tag() Tag { return TagRound }

// ShowdownEvent exposes the board and revealed pockets at showdown. The
// same nil convention as RoundEvent applies in compressed histories.
type ShowdownEvent struct {
	Board   []Card           `json:"board,omitempty"`
	Pockets map[int64][]Card `json:"pockets,omitempty"`
}

func (*ShowdownEvent) Tag() Tag { return TagShowdown }

// RakeEvent reports the rake taken from the pot and its split per player.
type RakeEvent struct {
	Amount      int64           `json:"amount"`
	Serial2Rake map[int64]int64 `json:"serial2rake"`
}

func (*RakeEvent) Tag() Tag { return TagRake }

// MuckEvent asks the listed serials whether they muck or show.
type MuckEvent struct {
	Serials []int64 `json:"serials"`
}

func (*MuckEvent) Tag() Tag { return TagMuck }

// PositionEvent moves the action. Serial is 0 when no seat is in
// position (Position -1).
type PositionEvent struct {
	Position int   `json:"position"`
	Serial   int64 `json:"serial"`
}

func (*PositionEvent) Tag() Tag { return TagPosition }

// BlindRequestEvent asks a player to post a blind.
type BlindRequestEvent struct {
	Serial int64  `json:"serial"`
	Amount int64  `json:"amount"`
	Dead   int64  `json:"dead"`
	State  string `json:"state"`
}

func (*BlindRequestEvent) Tag() Tag { return TagBlindRequest }

// WaitBlindEvent marks a player waiting out the current blind turn.
type WaitBlindEvent struct {
	Serial int64 `json:"serial"`
}

func (*WaitBlindEvent) Tag() Tag { return TagWaitBlind }

// BlindEvent records a posted blind. Dead is the dead-blind part that
// goes straight to the pot.
type BlindEvent struct {
	Serial int64 `json:"serial"`
	Amount int64 `json:"amount"`
	Dead   int64 `json:"dead"`
}

func (*BlindEvent) Tag() Tag { return TagBlind }

// AnteRequestEvent asks a player to post an ante.
type AnteRequestEvent struct {
	Serial int64 `json:"serial"`
	Amount int64 `json:"amount"`
}

func (*AnteRequestEvent) Tag() Tag { return TagAnteRequest }

// AnteEvent records a posted ante.
type AnteEvent struct {
	Serial int64 `json:"serial"`
	Amount int64 `json:"amount"`
}

func (*AnteEvent) Tag() Tag { return TagAnte }

// AllInEvent marks a player all-in.
type AllInEvent struct {
	Serial int64 `json:"serial"`
}

func (*AllInEvent) Tag() Tag { return TagAllIn }

// CallEvent records a call.
type CallEvent struct {
	Serial int64 `json:"serial"`
	Amount int64 `json:"amount"`
}

func (*CallEvent) Tag() Tag { return TagCall }

// CheckEvent records a check.
type CheckEvent struct {
	Serial int64 `json:"serial"`
}

func (*CheckEvent) Tag() Tag { return TagCheck }

// FoldEvent records a fold.
type FoldEvent struct {
	Serial int64 `json:"serial"`
}

func (*FoldEvent) Tag() Tag { return TagFold }

// RaiseEvent records a raise to Amount.
type RaiseEvent struct {
	Serial int64 `json:"serial"`
	Amount int64 `json:"amount"`
}

func (*RaiseEvent) Tag() Tag { return TagRaise }

// CanceledEvent voids a hand that could not proceed; Amount is returned
// to Serial when both are positive.
type CanceledEvent struct {
	Serial int64 `json:"serial"`
	Amount int64 `json:"amount"`
}

func (*CanceledEvent) Tag() Tag { return TagCanceled }

// SitOutEvent records a player sitting out.
type SitOutEvent struct {
	Serial int64 `json:"serial"`
}

func (*SitOutEvent) Tag() Tag { return TagSitOut }

// SitEvent records a player sitting back in.
type SitEvent struct {
	Serial int64 `json:"serial"`
}

func (*SitEvent) Tag() Tag { return TagSit }

// Quitter is one seat abandoned during the hand.
type Quitter struct {
	Serial int64 `json:"serial"`
	Seat   int   `json:"seat"`
}

// LeaveEvent lists the seats whose players quit during the hand; emitted
// at hand end so departures settle exactly once.
type LeaveEvent struct {
	Quitters []Quitter `json:"quitters"`
}

func (*LeaveEvent) Tag() Tag { return TagLeave }

// ShowdownFrame is one frame of the end-of-hand showdown stack. The first
// frame carries the pot split in Serial2Share.
type ShowdownFrame struct {
	Type         string          `json:"type"`
	Serial2Share map[int64]int64 `json:"serial2share,omitempty"`
	Serial2Delta map[int64]int64 `json:"serial2delta,omitempty"`
	Pot          int64           `json:"pot,omitempty"`
}

// EndEvent closes the betting: winners and the showdown stack describing
// how the pot was distributed.
type EndEvent struct {
	Winners       []int64         `json:"winners"`
	ShowdownStack []ShowdownFrame `json:"showdown_stack"`
}

func (*EndEvent) Tag() Tag { return TagEnd }

// FinishEvent terminates the hand identified by HandSerial.
type FinishEvent struct {
	HandSerial int64 `json:"hand_serial"`
}

func (*FinishEvent) Tag() Tag { return TagFinish }

// CardsEqual reports whether two boards or pockets hold the same cards in
// the same order.
func CardsEqual(a, b []Card) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// PocketsEqual reports whether two pocket maps are identical.
func PocketsEqual(a, b map[int64][]Card) bool {
	if len(a) != len(b) {
		return false
	}
	for serial, cards := range a {
		other, ok := b[serial]
		if !ok || !CardsEqual(cards, other) {
			return false
		}
	}
	return true
}
