// Package table implements the table session manager: the authoritative
// per-table lifecycle of a multi-table poker server. A Table owns one
// hand engine, sequences its hands, drives the deal, turn and muck
// timers, and reconciles the engine's append-only event history with
// connected client sessions and the durable money store. The factory is
// the surrounding server: registry, bank, hand archive and tournament
// bridge.
package table

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/slog"

	"github.com/cardroom/tablesrv/pkg/engine"
	"github.com/cardroom/tablesrv/pkg/packet"
	"github.com/cardroom/tablesrv/pkg/statemachine"
)

// Table-level hand states. These track where the table stands between
// deals; the betting rounds themselves are the engine's business.
const (
	HandStateIdle    = "idle"
	HandStateDealing = "dealing"
	HandStateInRound = "in_round"
	HandStateMuck    = "muck"
	HandStateEnded   = "ended"
)

// TableStateFn is a table hand-cycle state.
type TableStateFn = statemachine.StateFn[Table]

func tableStateIdle(t *Table) TableStateFn    { t.handStateName = HandStateIdle; return tableStateIdle }
func tableStateDealing(t *Table) TableStateFn { t.handStateName = HandStateDealing; return tableStateDealing }
func tableStateInRound(t *Table) TableStateFn { t.handStateName = HandStateInRound; return tableStateInRound }
func tableStateMuck(t *Table) TableStateFn    { t.handStateName = HandStateMuck; return tableStateMuck }
func tableStateEnded(t *Table) TableStateFn   { t.handStateName = HandStateEnded; return tableStateEnded }

// Table is one poker table. All exported methods serialize on the table
// mutex; timer callbacks acquire it too, so every state transition is
// totally ordered. A destroyed table keeps refusing calls through the
// nil factory check.
type Table struct {
	mu sync.Mutex

	id       int64
	desc     Descriptor
	settings Settings
	log      slog.Logger

	engine  engine.Engine
	factory Factory

	avatars   *avatarIndex
	observers []*Avatar

	rebuyStack          []pendingRebuy
	lastRebuyHandSerial int64

	timers timerInfo
	lock   *lockCheck

	historyCursor  int
	cache          *packet.Cache
	previousDealer int
	betLimits      betLimits

	gameDelay gameDelay

	// updating guards against a re-entrant update cycle.
	updating bool

	handState     *statemachine.StateMachine[Table]
	handStateName string
}

// NewTable builds a table from its descriptor and wires the engine to
// it. The engine must be fresh: the table configures variant, structure
// and seat count itself.
func NewTable(cfg TableConfig) (*Table, error) {
	if cfg.Engine == nil {
		return nil, errors.New("table: nil engine")
	}
	if cfg.Factory == nil {
		return nil, errors.New("table: nil factory")
	}
	if cfg.Log == nil {
		return nil, errors.New("table: nil logger")
	}
	desc := cfg.Descriptor
	if desc.PlayerTimeout <= 0 {
		desc.PlayerTimeout = DefaultPlayerTimeout
	}
	if desc.MuckTimeout <= 0 {
		desc.MuckTimeout = DefaultMuckTimeout
	}
	settings := cfg.Settings
	if settings.LockTimeout <= 0 {
		settings.LockTimeout = DefaultLockTimeout
	}

	t := &Table{
		id:             desc.GameID,
		desc:           desc,
		settings:       settings,
		log:            cfg.Log,
		engine:         cfg.Engine,
		factory:        cfg.Factory,
		avatars:        newAvatarIndex(),
		cache:          packet.NewCache(),
		previousDealer: -1,
	}
	t.lock = newLockCheck(t.id, settings.LockTimeout, cfg.Log)
	t.handState = statemachine.NewStateMachine(t, tableStateIdle)
	t.handState.Dispatch(tableStateIdle)

	e := t.engine
	if err := e.SetVariant(desc.Variant); err != nil {
		return nil, fmt.Errorf("table %d: variant %q: %w", t.id, desc.Variant, err)
	}
	if err := e.SetBettingStructure(desc.BettingStructure); err != nil {
		return nil, fmt.Errorf("table %d: betting structure %q: %w", t.id, desc.BettingStructure, err)
	}
	e.SetMaxPlayers(desc.Seats)
	e.SetForcedDealerSeat(desc.ForcedDealerSeat)
	if len(settings.PredefinedDecks) > 0 {
		e.SetShuffler(NewPredefinedDecks(settings.PredefinedDecks))
	}
	if desc.Tourney != nil {
		e.Close()
	} else {
		e.Open()
	}
	e.RegisterCallback(func(gameID int64, event string) {
		if event == "end_round_last" {
			t.lock.stop()
		}
	})

	t.log.Infof("table %d (%s) created: %s %s, %d seats",
		t.id, desc.Name, desc.Variant, desc.BettingStructure, desc.Seats)
	return t, nil
}

func (t *Table) ID() int64    { return t.id }
func (t *Table) Name() string { return t.desc.Name }

// Locked reports whether the lock watchdog flagged this table.
func (t *Table) Locked() bool { return t.lock.Locked() }

// HandState names where the table stands in its hand cycle.
func (t *Table) HandState() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handStateName
}

// Counts returns how many players are seated and how many sessions
// observe.
func (t *Table) Counts() (players, observers int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.engine.SerialsAll()), len(t.observers)
}

// Update runs one update cycle. External callers use it after mutating
// the engine through a path that does not update by itself.
func (t *Table) Update() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.factory == nil {
		return ErrTableDestroyed
	}
	return t.updateLocked()
}

// updateLocked is the keystone: it reconciles everything the engine did
// since the last cycle with clients, the database and the timers, in a
// fixed order. It is not re-entrant; an inner call logs and returns the
// sentinel without touching state.
func (t *Table) updateLocked() error {
	if t.updating {
		t.log.Warnf("table %d: update re-entered, inner call ignored", t.id)
		return ErrUpdateReentered
	}
	t.updating = true
	defer func() { t.updating = false }()

	t.rebuyPlayersOnce()

	history := t.engine.HistoryGet()
	historyLen := len(history)
	tail := history[t.historyCursor:]

	t.updateTimers(tail)

	packets, previousDealer, errs := packet.HistoryToPackets(tail, t.id, t.previousDealer, t.cache)
	t.previousDealer = previousDealer
	for _, err := range errs {
		t.log.Errorf("table %d: %v", t.id, err)
	}
	if len(errs) > 0 {
		t.log.Debugf("table %d: unconsumed history tail: %s", t.id, spew.Sdump(tail))
	}

	t.syncDatabase(tail)
	t.delayedActions(tail)

	if bl := t.betLimitsPacket(tail); bl != nil {
		packets = append([]packet.Packet{bl}, packets...)
	}

	t.dispatchHandStates(tail)
	t.broadcast(packets...)

	if t.canBeDespawnedLocked() {
		t.log.Infof("table %d: idle and empty, despawning", t.id)
		f := t.factory
		f.DespawnTable(t.id)
		t.destroyLocked()
		return nil
	}

	t.kickSittingOutTooLong(tail)
	for _, ev := range tail {
		if t.factory == nil {
			break
		}
		switch ev.(type) {
		case *engine.EndEvent:
			if t.desc.Tourney != nil {
				t.factory.TourneyEndTurn(t.desc.Tourney, t.id)
			}
		case *engine.FinishEvent:
			if t.desc.Tourney != nil {
				t.factory.TourneyUpdateStats(t.desc.Tourney, t.id)
			}
		}
	}
	if t.factory == nil {
		return nil
	}
	t.scheduleAutoDeal()

	if after := len(t.engine.HistoryGet()); after != historyLen {
		t.log.Errorf("table %d: history grew from %d to %d inside an update cycle",
			t.id, historyLen, after)
	}
	if t.engine.HistoryCanBeReduced() {
		t.engine.HistoryReduce()
	}
	t.historyCursor = len(t.engine.HistoryGet())
	return nil
}

// updateIgnoringReentry runs an update for an operation that may itself
// have been called from inside a cycle, in which case the outer cycle
// will pick the new events up.
func (t *Table) updateIgnoringReentry() error {
	err := t.updateLocked()
	if errors.Is(err, ErrUpdateReentered) {
		return nil
	}
	return err
}

// dispatchHandStates advances the table-level hand cycle for the events
// of the tail.
func (t *Table) dispatchHandStates(tail []engine.Event) {
	for _, ev := range tail {
		switch ev.(type) {
		case *engine.GameEvent:
			t.handState.Dispatch(tableStateDealing)
		case *engine.RoundEvent:
			t.handState.Dispatch(tableStateInRound)
		case *engine.MuckEvent:
			t.handState.Dispatch(tableStateMuck)
		case *engine.EndEvent:
			t.handState.Dispatch(tableStateEnded)
		case *engine.FinishEvent:
			t.handState.Dispatch(tableStateIdle)
		}
	}
}

// broadcast fans packets out to every seated session, masked per
// recipient, and to observers as serial 0 so private fields never leak.
func (t *Table) broadcast(packets ...packet.Packet) {
	for _, p := range packets {
		for serial, avatars := range t.avatars.serial2avatars {
			masked := packet.PrivateToPublic(p, serial)
			for _, a := range avatars {
				a.Send(masked)
			}
		}
		for _, a := range t.observers {
			a.Send(packet.PrivateToPublic(p, 0))
		}
	}
}

// broadcastToReady sends a packet only to sessions whose player declared
// itself ready for the next hand.
func (t *Table) broadcastToReady(p packet.Packet) {
	for serial, avatars := range t.avatars.serial2avatars {
		player := t.engine.GetPlayer(serial)
		if player == nil || !player.UserData.Ready {
			continue
		}
		masked := packet.PrivateToPublic(p, serial)
		for _, a := range avatars {
			a.Send(masked)
		}
	}
}

// canBeDespawnedLocked is the despawn shape: nothing running, nobody
// connected, no tournament owning the table.
func (t *Table) canBeDespawnedLocked() bool {
	return !t.engine.IsRunning() &&
		t.avatars.isEmpty() &&
		len(t.observers) == 0 &&
		t.desc.Tourney == nil
}

// Destroy tears the table down: timers cancelled, clients told, sessions
// detached, registry entry removed. Racing timer callbacks find the nil
// factory and early-return.
func (t *Table) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.destroyLocked()
}

func (t *Table) destroyLocked() {
	f := t.factory
	if f == nil {
		return
	}
	t.log.Infof("table %d: destroying", t.id)
	t.cancelAllTimers()
	t.lock.stop()
	f.DestroyTable(t.id)
	t.broadcast(&packet.TableDestroy{GameID: t.id})
	detached := append(t.avatars.all(), t.observers...)
	t.avatars = newAvatarIndex()
	t.observers = nil
	for _, a := range detached {
		a.detachTable(t.id)
		f.JoinedCountDecrease()
	}
	t.handState.SetState(nil)
	t.factory = nil
	f.DeleteTable(t.id)
}

// ToPacket describes the table to clients.
func (t *Table) ToPacket() *packet.Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.toPacketLocked()
}

func (t *Table) toPacketLocked() *packet.Table {
	tourneySerial := int64(0)
	if t.desc.Tourney != nil {
		tourneySerial = t.desc.Tourney.Serial
	}
	return &packet.Table{
		ID:               t.id,
		Name:             t.desc.Name,
		Variant:          t.desc.Variant,
		BettingStructure: t.desc.BettingStructure,
		Seats:            t.desc.Seats,
		Players:          len(t.engine.SerialsAll()),
		Observers:        len(t.observers),
		PlayerTimeout:    int(t.desc.PlayerTimeout / time.Second),
		MuckTimeout:      int(t.desc.MuckTimeout / time.Second),
		Skin:             t.desc.Skin,
		CurrencySerial:   t.desc.CurrencySerial,
		TourneySerial:    tourneySerial,
	}
}

// playerArrivePacketLocked renders one seat for other clients.
func (t *Table) playerArrivePacketLocked(p *engine.Player) *packet.PlayerArrive {
	info := t.factory.GetPlayerInfo(p.Serial)
	name := info.Name
	if name == "" {
		name = p.Name
	}
	return &packet.PlayerArrive{
		GameID:         t.id,
		Serial:         p.Serial,
		Name:           name,
		URL:            info.URL,
		Outfit:         info.Outfit,
		Seat:           p.Seat,
		SitOut:         p.SitOut,
		SitOutNextTurn: p.SitOutNextTurn,
		RemoveNextTurn: p.RemoveNextTurn,
		Auto:           p.Auto,
		AutoBlindAnte:  p.AutoBlindAnte,
		WaitFor:        p.WaitFor,
		BuyInPaid:      p.BuyInPaid,
	}
}

// playerStatsPacketLocked renders a seat's ladder standing, nil when
// the server runs no ladder or the player is unranked.
func (t *Table) playerStatsPacketLocked(serial int64) *packet.PlayerStats {
	ladder, ok := t.factory.GetLadder(t.desc.CurrencySerial, serial)
	if !ok {
		return nil
	}
	return &packet.PlayerStats{
		GameID:     t.id,
		Serial:     serial,
		Rank:       ladder.Rank,
		Percentile: ladder.Percentile,
	}
}

// sendTableStateLocked resends everything one session needs to render
// the table: descriptor, seats, per-player state, limits and any running
// turn warning. Used on join, resume and move.
func (t *Table) sendTableStateLocked(a *Avatar) {
	a.Send(t.toPacketLocked())
	a.Send(&packet.Seats{GameID: t.id, Seats: t.engine.Seats()})
	for _, p := range t.engine.PlayersAll() {
		a.Send(t.playerArrivePacketLocked(p))
		if stats := t.playerStatsPacketLocked(p.Serial); stats != nil {
			a.Send(stats)
		}
		a.Send(&packet.PlayerChips{GameID: t.id, Serial: p.Serial, Bet: p.Bet, Money: p.Money})
		if t.engine.IsSit(p.Serial) {
			a.Send(&packet.Sit{GameID: t.id, Serial: p.Serial})
		} else {
			a.Send(&packet.SitOut{GameID: t.id, Serial: p.Serial})
		}
	}
	if t.betLimits.valid {
		a.Send(t.betLimits.packet(t.id))
	}
	t.sendTimeoutWarningLocked(a)
}

// sendError surfaces a refused operation to the caller and returns the
// error for the programmatic path.
func (t *Table) sendError(a *Avatar, otherType, code string, err error) error {
	a.Send(&packet.Error{
		GameID:    t.id,
		Serial:    a.Serial(),
		OtherType: otherType,
		Code:      code,
		Message:   err.Error(),
	})
	return err
}

// ChatPlayer broadcasts a chat line from a joined session, filtered and
// archived through the factory.
func (t *Table) ChatPlayer(a *Avatar, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.factory == nil {
		return ErrTableDestroyed
	}
	if !t.isJoinedLocked(a) {
		return ErrNotJoined
	}
	filtered := t.factory.FilterChat(message)
	t.factory.ChatMessageArchive(a.Serial(), t.id, filtered)
	t.broadcast(&packet.Chat{GameID: t.id, Serial: a.Serial(), Message: filtered})
	return nil
}

// BroadcastMessage sends an informational line to everyone at the table.
func (t *Table) BroadcastMessage(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.factory == nil {
		return
	}
	t.broadcast(&packet.Message{GameID: t.id, Message: message})
}

// isStationaryLocked: nothing running or mucking, and no deal scheduled.
// Only a stationary table may lend its engine to a replay.
func (t *Table) isStationaryLocked() bool {
	return t.engine.IsEndOrNull() && t.timers.deal.timer == nil
}

// HandReplay loads a stored hand and plays its packets back to one
// session, masked for that session's serial. The engine is reset onto
// the replayed hand's frame, which is why only a stationary table
// accepts the request.
func (t *Table) HandReplay(a *Avatar, handSerial int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.factory == nil {
		return ErrTableDestroyed
	}
	if !t.isStationaryLocked() {
		return t.sendError(a, "HAND_REPLAY", packet.CodeRefused, ErrNotStationary)
	}
	history, err := t.factory.LoadHand(handSerial)
	if err != nil {
		return t.sendError(a, "HAND_REPLAY", packet.CodeRefused, err)
	}
	for _, ev := range history {
		if frame, ok := ev.(*engine.GameEvent); ok {
			t.engine.Reset()
			t.engine.SetLevel(frame.Level)
			t.engine.SetHandsCount(frame.HandsCount)
			t.engine.SetTime(time.Unix(frame.Time, 0))
			t.engine.SetHandSerial(frame.HandSerial)
			break
		}
	}
	cache := packet.NewCache()
	packets, _, errs := packet.HistoryToPackets(history, t.id, -1, cache)
	for _, err := range errs {
		t.log.Warnf("table %d: replay of hand %d: %v", t.id, handSerial, err)
	}
	for _, p := range packets {
		a.Send(packet.PrivateToPublic(p, a.Serial()))
	}
	return nil
}

// ProcessingHand marks a session still busy rendering the previous hand:
// the next deal waits for it, within limits. Sessions that abused the
// delay are ignored.
func (t *Table) ProcessingHand(a *Avatar) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.factory == nil {
		return
	}
	if a.BrokenProcessing() {
		t.log.Debugf("table %d: ignoring processing-hand from flagged session %s of player %d",
			t.id, a.Session(), a.Serial())
		return
	}
	if p := t.engine.GetPlayer(a.Serial()); p != nil {
		p.UserData.Ready = false
	}
}

// ReadyToPlay declares a session done processing. Only a change
// triggers an update; repeated declarations are free.
func (t *Table) ReadyToPlay(a *Avatar) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.factory == nil {
		return ErrTableDestroyed
	}
	p := t.engine.GetPlayer(a.Serial())
	if p == nil || p.UserData.Ready {
		return nil
	}
	p.UserData.Ready = true
	return t.updateIgnoringReentry()
}

// MuckAccept answers a muck request with "muck them".
func (t *Table) MuckAccept(a *Avatar) error {
	return t.muckResponse(a, true)
}

// MuckDeny answers a muck request with "show them".
func (t *Table) MuckDeny(a *Avatar) error {
	return t.muckResponse(a, false)
}

func (t *Table) muckResponse(a *Avatar, wantToMuck bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.factory == nil {
		return ErrTableDestroyed
	}
	t.engine.Muck(a.Serial(), wantToMuck)
	if len(t.engine.MuckableSerials()) == 0 {
		t.cancelTimer(&t.timers.muck)
	}
	return t.updateIgnoringReentry()
}

// AutoBlindAnte toggles automatic posting of blinds and antes for a
// seated player.
func (t *Table) AutoBlindAnte(a *Avatar, enabled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.factory == nil {
		return ErrTableDestroyed
	}
	if !t.engine.IsSeated(a.Serial()) {
		return ErrNotSeated
	}
	t.engine.AutoBlindAnte(a.Serial(), enabled)
	return nil
}
