package table

import "github.com/cardroom/tablesrv/pkg/engine"

// PlayerInfo is the public identity shown at a seat.
type PlayerInfo struct {
	Name   string
	URL    string
	Outfit string
}

// Ladder is a player's standing on a currency's ranking ladder.
type Ladder struct {
	Rank       int
	Percentile int
}

// Tournament states the table reacts to.
const TourneyStateRunning = "running"

// Tourney links a table to the tournament that spawned it.
type Tourney struct {
	Serial int64
	Name   string
	State  string
}

// Monitor event types emitted through Factory.DatabaseEvent.
const MonitorEventHand = "hand"

// MonitorEvent is a fire-and-forget notification for external monitors.
// The params depend on the event type; MonitorEventHand carries the hand
// serial, the transient flag and the game id.
type MonitorEvent struct {
	Event  string `json:"event"`
	Param1 int64  `json:"param1"`
	Param2 int64  `json:"param2"`
	Param3 int64  `json:"param3"`
}

// Factory is the server as seen by a table: the registry it lives in,
// the bank that moves money, the store that keeps hands, and the
// tournament bridge. All money amounts are chips in the table's
// currency. Implementations serialize their own state; tables call in
// without holding any factory lock.
type Factory interface {
	// Table management.

	// DestroyTable marks the table as gone in durable state. Called
	// first during destroy, before clients hear about it.
	DestroyTable(gameID int64)
	// DeleteTable removes the table from the registry.
	DeleteTable(gameID int64)
	// DespawnTable unregisters an idle, empty table. The table tears
	// itself down afterwards; the factory must not call back into it.
	DespawnTable(gameID int64)
	GetTable(gameID int64) *Table
	// EventTable signals that the table's visible state changed.
	EventTable(t *Table)

	// Hand lifecycle.
	CreateHand(gameID, tourneySerial int64) (int64, error)
	SaveHand(handSerial int64, history []engine.Event) error
	LoadHand(handSerial int64) ([]engine.Event, error)

	// Money. BuyInPlayer debits up to amount from the player's
	// bankroll and returns what was actually debited; zero means the
	// bankroll is empty and no money moved. MovePlayer transfers the
	// player's table money between tables atomically and returns the
	// post-move balance.
	UpdatePlayerMoney(serial, gameID, delta int64) error
	// SetPlayerMoney overwrites the player's table money row. Used by
	// the forced money reset only.
	SetPlayerMoney(serial, gameID, amount int64) error
	UpdatePlayerRake(currencySerial, serial, amount int64) error
	BuyInPlayer(serial, gameID, currencySerial, amount int64) (int64, error)
	SeatPlayer(serial, gameID, currencySerial, amount, minimum int64) error
	LeavePlayer(serial, gameID, currencySerial int64) error
	BuyOutPlayer(serial, gameID, currencySerial, amount int64) error
	MovePlayer(serial, fromGameID, toGameID int64) (int64, error)

	// Identity.
	GetName(serial int64) string
	GetPlayerInfo(serial int64) PlayerInfo
	IsTemporaryUser(serial int64) bool
	// GetLadder returns the player's standing on the currency's ladder;
	// false when no ladder is configured or the player is unranked.
	GetLadder(currencySerial, serial int64) (Ladder, bool)

	// Limits.
	JoinedCountReachedMax() bool
	JoinedCountIncrease()
	JoinedCountDecrease()
	// Simultaneous caps how many tables one avatar may join.
	Simultaneous() int
	// MissedRoundMax is the default sit-out kick cap.
	MissedRoundMax() int

	// Tournament bridge.
	TourneyEndTurn(tourney *Tourney, gameID int64)
	TourneyUpdateStats(tourney *Tourney, gameID int64)
	TourneyRebuyAllPlayers(tourney *Tourney, gameID int64)
	TourneySerialsRebuying(tourney *Tourney, gameID int64) []int64

	// Persistence hooks.
	DatabaseEvent(ev MonitorEvent)
	UpdateTableStats(gameID int64, players, observers int)
	ChatMessageArchive(serial, gameID int64, message string)

	// FilterChat rewrites a chat line before it is broadcast.
	FilterChat(message string) string

	// ShuttingDown gates auto-deal during server shutdown.
	ShuttingDown() bool
}
