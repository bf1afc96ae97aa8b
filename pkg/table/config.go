package table

import (
	"time"

	"github.com/decred/slog"

	"github.com/cardroom/tablesrv/pkg/engine"
)

// Defaults applied when a descriptor or settings field is zero.
const (
	DefaultPlayerTimeout = 60 * time.Second
	DefaultMuckTimeout   = 5 * time.Second
	DefaultLockTimeout   = 20 * time.Minute
)

// timeoutDelayCompensation pads the forced-action timer so a warned
// player gets the full announced time despite network lag.
const timeoutDelayCompensation = 2 * time.Second

// Descriptor describes one table. The factory builds it from whatever
// store or tournament spawned the table.
type Descriptor struct {
	GameID           int64
	Name             string
	Variant          string
	BettingStructure string
	Seats            int

	// ForcedDealerSeat pins the dealer button, -1 to let the engine
	// rotate it. Used for reproducible replays.
	ForcedDealerSeat int

	Skin           string
	CurrencySerial int64

	// PlayerTimeout is the full time a player in position gets before
	// the table acts for them. The warning fires at half of it.
	PlayerTimeout time.Duration

	// MuckTimeout bounds how long showdown players may sit on a muck
	// request.
	MuckTimeout time.Duration

	// Transient marks a table spawned for a tournament instance;
	// buy-in is implicit at seat time.
	Transient bool

	// Tourney links a closed table to its tournament, nil for cash
	// tables.
	Tourney *Tourney

	// MaxMissedRound overrides the factory-wide sit-out kick cap when
	// positive.
	MaxMissedRound int
}

// Delays tune the pauses the table inserts between engine milestones
// before the next hand may start.
type Delays struct {
	Autodeal      time.Duration
	Round         time.Duration
	Position      time.Duration
	Showdown      time.Duration
	Finish        time.Duration
	AutodealCheck time.Duration
	AutodealMax   time.Duration

	// AutodealTournamentMin floors the inter-hand pause on transient
	// tables so moved players can settle in.
	AutodealTournamentMin time.Duration
}

// DefaultDelays returns the delays a production server runs with.
func DefaultDelays() Delays {
	return Delays{
		Autodeal:              18 * time.Second,
		Finish:                18 * time.Second,
		AutodealCheck:         15 * time.Second,
		AutodealMax:           120 * time.Second,
		AutodealTournamentMin: 15 * time.Second,
	}
}

// Settings are server-wide knobs shared by every table.
type Settings struct {
	// Autodeal is the master switch for dealing hands without an
	// explicit client request.
	Autodeal bool

	// AutodealTemporary lets tables whose sit players are all
	// temporary users (bots) auto-deal anyway.
	AutodealTemporary bool

	Delays Delays

	// PredefinedDecks replaces the engine's shuffle with a fixed deck
	// rotation when non-empty. Testing and replay only.
	PredefinedDecks [][]engine.Card

	// LockTimeout is how long a hand may sit inside one round before
	// the watchdog flags the table.
	LockTimeout time.Duration
}

// DefaultSettings returns production settings: autodeal on, default
// delays, no predefined decks.
func DefaultSettings() Settings {
	return Settings{
		Autodeal:    true,
		Delays:      DefaultDelays(),
		LockTimeout: DefaultLockTimeout,
	}
}

// TableConfig carries everything a new table needs. Engine, Factory and
// Log are required.
type TableConfig struct {
	Descriptor Descriptor
	Settings   Settings
	Engine     engine.Engine
	Factory    Factory
	Log        slog.Logger
}
