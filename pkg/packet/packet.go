// Package packet defines the outbound messages a table sends to clients
// and the translation of engine history into those messages. Transports
// decide the encoding; every packet carries JSON tags and a Type
// discriminator so any codec can frame them.
package packet

import "github.com/cardroom/tablesrv/pkg/engine"

// Packet is a single outbound client message.
type Packet interface {
	Type() string
}

// Private is implemented by packets that carry fields only one player may
// see. PrivateTo names that player; Public returns the packet as every
// other recipient sees it.
type Private interface {
	Packet
	PrivateTo() int64
	Public() Packet
}

// PrivateToPublic prepares a packet for delivery to serial, masking
// private fields unless serial owns them. Observers receive serial 0 and
// therefore always get the public form.
func PrivateToPublic(p Packet, serial int64) Packet {
	if priv, ok := p.(Private); ok && priv.PrivateTo() != serial {
		return priv.Public()
	}
	return p
}

// Error codes carried by the Error packet.
const (
	CodeFull    = "FULL"
	CodeTourney = "TOURNEY"
	CodeRefused = "REFUSED"
)

// Table describes a table to a client joining or browsing it.
type Table struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Variant          string `json:"variant"`
	BettingStructure string `json:"betting_structure"`
	Seats            int    `json:"seats"`
	Players          int    `json:"players"`
	Observers        int    `json:"observers"`
	Waiting          int    `json:"waiting"`
	PlayerTimeout    int    `json:"player_timeout"`
	MuckTimeout      int    `json:"muck_timeout"`
	Skin             string `json:"skin"`
	CurrencySerial   int64  `json:"currency_serial"`
	TourneySerial    int64  `json:"tourney_serial"`
}

func (*Table) Type() string { return "TABLE" }

// TableDestroy is the terminal packet of a table.
type TableDestroy struct {
	GameID int64 `json:"game_id"`
}

func (*TableDestroy) Type() string { return "TABLE_DESTROY" }

// PlayerArrive announces a newly seated player with the flags other
// clients need to render the seat.
type PlayerArrive struct {
	GameID         int64  `json:"game_id"`
	Serial         int64  `json:"serial"`
	Name           string `json:"name"`
	URL            string `json:"url"`
	Outfit         string `json:"outfit"`
	Seat           int    `json:"seat"`
	SitOut         bool   `json:"sit_out"`
	SitOutNextTurn bool   `json:"sit_out_next_turn"`
	RemoveNextTurn bool   `json:"remove_next_turn"`
	Auto           bool   `json:"auto"`
	AutoBlindAnte  bool   `json:"auto_blind_ante"`
	WaitFor        string `json:"wait_for"`
	BuyInPaid      bool   `json:"buy_in_paid"`
}

func (*PlayerArrive) Type() string { return "PLAYER_ARRIVE" }

// PlayerLeave announces a freed seat.
type PlayerLeave struct {
	GameID int64 `json:"game_id"`
	Serial int64 `json:"serial"`
	Seat   int   `json:"seat"`
}

func (*PlayerLeave) Type() string { return "PLAYER_LEAVE" }

// PlayerChips updates a player's stack and current bet.
type PlayerChips struct {
	GameID int64 `json:"game_id"`
	Serial int64 `json:"serial"`
	Bet    int64 `json:"bet"`
	Money  int64 `json:"money"`
}

func (*PlayerChips) Type() string { return "PLAYER_CHIPS" }

// PlayerStats carries a player's ladder standing, sent alongside
// PLAYER_ARRIVE when the server runs a ranking ladder.
type PlayerStats struct {
	GameID     int64 `json:"game_id"`
	Serial     int64 `json:"serial"`
	Rank       int   `json:"rank"`
	Percentile int   `json:"percentile"`
}

func (*PlayerStats) Type() string { return "PLAYER_STATS" }

// Seat answers a seating request with the granted seat, -1 when refused.
type Seat struct {
	GameID int64 `json:"game_id"`
	Serial int64 `json:"serial"`
	Seat   int   `json:"seat"`
}

func (*Seat) Type() string { return "SEAT" }

// Seats carries the serial occupying each seat, 0 for empty.
type Seats struct {
	GameID int64   `json:"game_id"`
	Seats  []int64 `json:"seats"`
}

func (*Seats) Type() string { return "SEATS" }

type Sit struct {
	GameID int64 `json:"game_id"`
	Serial int64 `json:"serial"`
}

func (*Sit) Type() string { return "SIT" }

type SitOut struct {
	GameID int64 `json:"game_id"`
	Serial int64 `json:"serial"`
}

func (*SitOut) Type() string { return "SIT_OUT" }

// AutoFold tells clients a player is on autopilot until they come back.
type AutoFold struct {
	GameID int64 `json:"game_id"`
	Serial int64 `json:"serial"`
}

func (*AutoFold) Type() string { return "AUTO_FOLD" }

// TimeoutWarning tells the player in position how many seconds remain
// before the table acts for them.
type TimeoutWarning struct {
	GameID  int64 `json:"game_id"`
	Serial  int64 `json:"serial"`
	Timeout int   `json:"timeout"`
}

func (*TimeoutWarning) Type() string { return "TIMEOUT_WARNING" }

// TimeoutNotice announces that the table acted for a timed-out player.
type TimeoutNotice struct {
	GameID int64 `json:"game_id"`
	Serial int64 `json:"serial"`
}

func (*TimeoutNotice) Type() string { return "TIMEOUT_NOTICE" }

type Chat struct {
	GameID  int64  `json:"game_id"`
	Serial  int64  `json:"serial"`
	Message string `json:"message"`
}

func (*Chat) Type() string { return "CHAT" }

// Message is a table-originated informational broadcast.
type Message struct {
	GameID  int64  `json:"game_id"`
	Message string `json:"message"`
}

func (*Message) Type() string { return "MESSAGE" }

// TableMove announces a player moving to another table, typically during
// tournament rebalancing.
type TableMove struct {
	GameID   int64 `json:"game_id"`
	Serial   int64 `json:"serial"`
	ToGameID int64 `json:"to_game_id"`
	Seat     int   `json:"seat"`
}

func (*TableMove) Type() string { return "TABLE_MOVE" }

// BuyIn acknowledges a buy-in with the amount actually debited.
type BuyIn struct {
	GameID int64 `json:"game_id"`
	Serial int64 `json:"serial"`
	Amount int64 `json:"amount"`
}

func (*BuyIn) Type() string { return "BUY_IN" }

// MuckRequest asks the listed serials whether they muck or show.
type MuckRequest struct {
	GameID  int64   `json:"game_id"`
	Serials []int64 `json:"serials"`
}

func (*MuckRequest) Type() string { return "MUCK_REQUEST" }

// BetLimits carries the limits of the current betting round.
type BetLimits struct {
	GameID int64 `json:"game_id"`
	Min    int64 `json:"min"`
	Max    int64 `json:"max"`
	Step   int64 `json:"step"`
	Unit   int64 `json:"unit"`
	Cap    int   `json:"cap"`
}

func (*BetLimits) Type() string { return "BET_LIMITS" }

// InGame lists the serials dealt into the running hand.
type InGame struct {
	GameID  int64   `json:"game_id"`
	Players []int64 `json:"players"`
}

func (*InGame) Type() string { return "IN_GAME" }

// Dealer announces the dealer button moving.
type Dealer struct {
	GameID         int64 `json:"game_id"`
	Dealer         int   `json:"dealer"`
	PreviousDealer int   `json:"previous_dealer"`
}

func (*Dealer) Type() string { return "DEALER" }

// Start opens a hand.
type Start struct {
	GameID     int64 `json:"game_id"`
	HandSerial int64 `json:"hand_serial"`
	HandsCount int   `json:"hands_count"`
	Time       int64 `json:"time"`
	Level      int   `json:"level"`
}

func (*Start) Type() string { return "START" }

type WaitFor struct {
	GameID int64  `json:"game_id"`
	Serial int64  `json:"serial"`
	Reason string `json:"reason"`
}

func (*WaitFor) Type() string { return "WAIT_FOR" }

type Rebuy struct {
	GameID int64 `json:"game_id"`
	Serial int64 `json:"serial"`
	Amount int64 `json:"amount"`
}

func (*Rebuy) Type() string { return "REBUY" }

type BuyOut struct {
	GameID int64 `json:"game_id"`
	Serial int64 `json:"serial"`
	Amount int64 `json:"amount"`
}

func (*BuyOut) Type() string { return "BUY_OUT" }

// PlayerCards carries one player's pocket cards. Cards without the
// engine's visible flag are private to their owner; Public masks them to
// CardHidden for everyone else, keeping the count so clients can render
// face-down cards.
type PlayerCards struct {
	GameID int64         `json:"game_id"`
	Serial int64         `json:"serial"`
	Cards  []engine.Card `json:"cards"`
}

func (*PlayerCards) Type() string { return "PLAYER_CARDS" }

func (p *PlayerCards) PrivateTo() int64 { return p.Serial }

func (p *PlayerCards) Public() Packet {
	masked := make([]engine.Card, len(p.Cards))
	for i, c := range p.Cards {
		masked[i] = c.Masked()
	}
	return &PlayerCards{GameID: p.GameID, Serial: p.Serial, Cards: masked}
}

// BoardCards carries the community cards.
type BoardCards struct {
	GameID int64         `json:"game_id"`
	Cards  []engine.Card `json:"cards"`
}

func (*BoardCards) Type() string { return "BOARD_CARDS" }

// State announces a betting-round transition by name, with "end" closing
// the hand.
type State struct {
	GameID int64  `json:"game_id"`
	State  string `json:"state"`
}

func (*State) Type() string { return "STATE" }

type Rake struct {
	GameID int64 `json:"game_id"`
	Amount int64 `json:"amount"`
}

func (*Rake) Type() string { return "RAKE" }

// Position moves the action. Serial is 0 when no seat holds the
// position.
type Position struct {
	GameID   int64 `json:"game_id"`
	Position int   `json:"position"`
	Serial   int64 `json:"serial"`
}

func (*Position) Type() string { return "POSITION" }

type BlindRequest struct {
	GameID int64  `json:"game_id"`
	Serial int64  `json:"serial"`
	Amount int64  `json:"amount"`
	Dead   int64  `json:"dead"`
	State  string `json:"state"`
}

func (*BlindRequest) Type() string { return "BLIND_REQUEST" }

type Blind struct {
	GameID int64 `json:"game_id"`
	Serial int64 `json:"serial"`
	Amount int64 `json:"amount"`
	Dead   int64 `json:"dead"`
}

func (*Blind) Type() string { return "BLIND" }

type AnteRequest struct {
	GameID int64 `json:"game_id"`
	Serial int64 `json:"serial"`
	Amount int64 `json:"amount"`
}

func (*AnteRequest) Type() string { return "ANTE_REQUEST" }

type Ante struct {
	GameID int64 `json:"game_id"`
	Serial int64 `json:"serial"`
	Amount int64 `json:"amount"`
}

func (*Ante) Type() string { return "ANTE" }

type Call struct {
	GameID int64 `json:"game_id"`
	Serial int64 `json:"serial"`
	Amount int64 `json:"amount"`
}

func (*Call) Type() string { return "CALL" }

type Check struct {
	GameID int64 `json:"game_id"`
	Serial int64 `json:"serial"`
}

func (*Check) Type() string { return "CHECK" }

type Fold struct {
	GameID int64 `json:"game_id"`
	Serial int64 `json:"serial"`
}

func (*Fold) Type() string { return "FOLD" }

type Raise struct {
	GameID int64 `json:"game_id"`
	Serial int64 `json:"serial"`
	Amount int64 `json:"amount"`
}

func (*Raise) Type() string { return "RAISE" }

// Canceled voids a hand that could not proceed, refunding Amount to
// Serial when both are set.
type Canceled struct {
	GameID int64 `json:"game_id"`
	Serial int64 `json:"serial"`
	Amount int64 `json:"amount"`
}

func (*Canceled) Type() string { return "CANCELED" }

// Win announces the hand's winners.
type Win struct {
	GameID  int64   `json:"game_id"`
	Serials []int64 `json:"serials"`
}

func (*Win) Type() string { return "WIN" }

// Error reports a refused operation to the caller. OtherType names the
// packet type the refusal answers.
type Error struct {
	GameID    int64  `json:"game_id"`
	Serial    int64  `json:"serial"`
	OtherType string `json:"other_type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (*Error) Type() string { return "ERROR" }
