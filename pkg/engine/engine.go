// Package engine defines the boundary between the table session manager
// and the hand engine: the Engine interface, the engine-owned Player
// record, and the closed set of history events the engine appends while a
// hand runs. The session layer never implements hand rules; it drives the
// engine through this interface and reconciles the history it produces.
package engine

import "time"

// GameState identifies the engine's top-level state. The session layer
// only inspects the three states below; anything else is an
// engine-defined betting round name.
type GameState string

const (
	StateNull GameState = "null"
	StateEnd  GameState = "end"
	StateMuck GameState = "muck"
)

// Card is an engine card. The low bits carry the card index; CardVisible
// marks a card the engine has revealed to everyone, typically at
// showdown. The session layer treats card indexes as opaque payload.
type Card uint8

const (
	// CardHidden replaces pocket cards in packets addressed to anyone
	// but their owner.
	CardHidden Card = 255

	// CardVisible flags a card every recipient may see.
	CardVisible Card = 0x80
)

// Visible reports whether anyone may see the card.
func (c Card) Visible() bool {
	return c != CardHidden && c&CardVisible != 0
}

// Masked returns the card as recipients other than its owner see it.
func (c Card) Masked() Card {
	if c.Visible() {
		return c
	}
	return CardHidden
}

// Shuffler replaces the engine's default cryptographic shuffle. Shuffle
// rewrites deck in place before each deal.
type Shuffler interface {
	Shuffle(deck []Card)
}

// Engine is the hand engine as consumed by a table. Implementations own
// all betting, dealing and showdown logic and expose their progress as an
// append-only history of Events. Engines are not safe for concurrent use;
// the owning table serializes access.
type Engine interface {
	// Configuration, applied between hands or when rebuilding a replay.
	SetVariant(variant string) error
	SetBettingStructure(structure string) error
	SetMaxPlayers(seats int)
	SetForcedDealerSeat(seat int)
	SetTime(now time.Time)
	SetLevel(level int)
	SetHandsCount(count int)
	SetHandSerial(serial int64)
	SetShuffler(s Shuffler)

	// RegisterCallback installs the hook the engine invokes on internal
	// transitions. The session layer consumes only "end_round_last".
	RegisterCallback(fn func(gameID int64, event string))

	// State.
	State() GameState
	IsRunning() bool
	IsEndOrNull() bool
	IsEndOrMuck() bool
	IsTournament() bool
	IsOpen() bool
	HandSerial() int64

	// Seating.
	Seats() []int64
	SeatsLeft() []int
	SerialsAll() []int64
	SerialsSit() []int64
	SerialsPlaying() []int64
	PlayersAll() []*Player
	GetPlayer(serial int64) *Player
	GetPlayerMoney(serial int64) int64
	GetSerialInPosition() int64
	IsSeated(serial int64) bool
	IsSit(serial int64) bool
	IsBroke(serial int64) bool
	CanAddPlayer(serial int64) bool
	CanRaise(serial int64) bool
	CanCheck(serial int64) bool

	// Money.
	IsRebuyPossible() bool
	BuyIn() int64
	BestBuyIn() int64
	MaxBuyIn() int64
	BetLimits() (min, max, step int64)
	RoundCap() int
	ChipUnit() int64

	// History.
	HistoryGet() []Event
	HistoryCanBeReduced() bool
	HistoryReduce()
	MuckableSerials() []int64

	// Mutations.
	BeginTurn(handSerial int64) error
	AddPlayer(serial int64, seat int, name string) (*Player, bool)
	RemovePlayer(serial int64) bool
	Sit(serial int64) bool
	SitOutNextTurn(serial int64) bool
	AutoPlayer(serial int64)
	AutoBlindAnte(serial int64, enabled bool)
	ComeBack(serial int64) bool
	Muck(serial int64, wantToMuck bool)
	Fold(serial int64) bool
	Rebuy(serial int64, amount int64) bool
	Open()
	Close()
	Reset()
}

// ContainsSerial reports whether serial appears in serials. Convenience
// for membership checks against SerialsPlaying and friends.
func ContainsSerial(serials []int64, serial int64) bool {
	for _, s := range serials {
		if s == serial {
			return true
		}
	}
	return false
}
