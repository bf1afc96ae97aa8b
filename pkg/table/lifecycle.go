package table

import (
	"github.com/cardroom/tablesrv/pkg/engine"
	"github.com/cardroom/tablesrv/pkg/packet"
)

// isJoinedLocked reports whether the session already observes or sits at
// this table.
func (t *Table) isJoinedLocked(a *Avatar) bool {
	for _, existing := range t.avatars.get(a.Serial()) {
		if existing == a {
			return true
		}
	}
	for _, existing := range t.observers {
		if existing == a {
			return true
		}
	}
	return false
}

// demoteToObserver moves every live session of a serial from the seated
// index to the observers list. No-op for serials without sessions.
func (t *Table) demoteToObserver(serial int64) {
	for _, a := range t.avatars.get(serial) {
		t.observers = append(t.observers, a)
	}
	for len(t.avatars.get(serial)) > 0 {
		t.avatars.remove(t.avatars.get(serial)[0])
	}
}

// promoteToSeated moves every observing session of a serial into the
// seated index.
func (t *Table) promoteToSeated(serial int64) {
	kept := t.observers[:0]
	for _, a := range t.observers {
		if a.Serial() == serial {
			t.avatars.add(a)
			continue
		}
		kept = append(kept, a)
	}
	t.observers = kept
}

// dropAvatarLocked removes one session from wherever it is indexed.
func (t *Table) dropAvatarLocked(a *Avatar) {
	for _, seated := range t.avatars.get(a.Serial()) {
		if seated == a {
			t.avatars.remove(a)
			return
		}
	}
	for i, observer := range t.observers {
		if observer == a {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// JoinPlayer attaches a session to the table as an observer, or back to
// its seat when the engine still knows the serial. Joining twice is an
// idempotent resume: the current table state is resent and nothing else
// changes.
func (t *Table) JoinPlayer(a *Avatar) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.factory == nil {
		return ErrTableDestroyed
	}
	if t.isJoinedLocked(a) {
		t.sendTableStateLocked(a)
		return nil
	}
	f := t.factory
	if f.JoinedCountReachedMax() {
		return t.sendError(a, "TABLE_JOIN", packet.CodeFull, ErrServerFull)
	}
	if a.tableCount() >= f.Simultaneous() {
		return t.sendError(a, "TABLE_JOIN", packet.CodeRefused, ErrTooManyTables)
	}
	f.JoinedCountIncrease()
	a.attachTable(t.id)
	serial := a.Serial()
	if t.engine.IsSeated(serial) {
		t.avatars.add(a)
		t.engine.ComeBack(serial)
		if t.engine.IsSit(serial) {
			t.broadcast(&packet.Sit{GameID: t.id, Serial: serial})
		}
	} else {
		t.observers = append(t.observers, a)
	}
	t.sendTableStateLocked(a)
	f.EventTable(t)
	return nil
}

// SeatPlayer gives an observing session a chair. seat -1 asks for any
// free seat. Every refusal answers with SEAT(-1) and changes nothing.
func (t *Table) SeatPlayer(a *Avatar, seat int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.factory == nil {
		return ErrTableDestroyed
	}
	serial := a.Serial()
	refuse := func(err error) error {
		a.Send(&packet.Seat{GameID: t.id, Serial: serial, Seat: -1})
		t.log.Infof("table %d: seat refused for player %d: %v", t.id, serial, err)
		return err
	}
	if !t.isJoinedLocked(a) {
		return refuse(ErrNotJoined)
	}
	if t.engine.IsSeated(serial) {
		return refuse(ErrAlreadySeated)
	}
	if !t.engine.CanAddPlayer(serial) {
		return refuse(ErrSeatRefused)
	}
	free := t.engine.SeatsLeft()
	if seat < 0 {
		if len(free) == 0 {
			return refuse(ErrSeatTaken)
		}
		seat = free[0]
	} else if !containsSeat(free, seat) {
		return refuse(ErrSeatTaken)
	}
	f := t.factory
	p, ok := t.engine.AddPlayer(serial, seat, f.GetName(serial))
	if !ok {
		return refuse(ErrSeatRefused)
	}
	if err := f.SeatPlayer(serial, t.id, t.desc.CurrencySerial, 0, t.engine.BuyIn()); err != nil {
		t.engine.RemovePlayer(serial)
		t.log.Errorf("table %d: seat row for player %d: %v", t.id, serial, err)
		return refuse(err)
	}
	t.promoteToSeated(serial)
	if t.desc.Transient {
		// Tournament seats come pre-funded.
		paid, err := f.BuyInPlayer(serial, t.id, t.desc.CurrencySerial, t.engine.BestBuyIn())
		if err != nil {
			t.log.Errorf("table %d: implicit buy-in for player %d: %v", t.id, serial, err)
		} else {
			p.Money += paid
			p.BuyInPaid = true
		}
	}
	a.Send(&packet.Seat{GameID: t.id, Serial: serial, Seat: seat})
	t.broadcast(t.playerArrivePacketLocked(p))
	if stats := t.playerStatsPacketLocked(serial); stats != nil {
		t.broadcast(stats)
	}
	t.broadcast(&packet.Seats{GameID: t.id, Seats: t.engine.Seats()})
	f.EventTable(t)
	return t.updateIgnoringReentry()
}

// SitPlayer puts a seated, paid-up player back into the game. Sitting an
// already-sit player is a no-op that still refreshes other clients with
// a SIT broadcast.
func (t *Table) SitPlayer(a *Avatar) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.factory == nil {
		return ErrTableDestroyed
	}
	serial := a.Serial()
	p := t.engine.GetPlayer(serial)
	if p == nil || !t.engine.IsSeated(serial) {
		return t.sendError(a, "SIT", packet.CodeRefused, ErrNotSeated)
	}
	if !p.BuyInPaid {
		return t.sendError(a, "SIT", packet.CodeRefused, ErrRebuyRefused)
	}
	t.engine.ComeBack(serial)
	t.engine.Sit(serial)
	t.broadcast(&packet.Sit{GameID: t.id, Serial: serial})
	return t.updateIgnoringReentry()
}

// SitOutPlayer takes a player out of upcoming hands. On an open table
// the sit-out defers to the next turn; a closed table cannot sit out, so
// the seat goes on autopilot instead, announced as an auto-fold.
func (t *Table) SitOutPlayer(a *Avatar) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.factory == nil {
		return ErrTableDestroyed
	}
	serial := a.Serial()
	if !t.engine.IsSeated(serial) {
		return t.sendError(a, "SIT_OUT", packet.CodeRefused, ErrNotSeated)
	}
	if t.engine.IsOpen() {
		t.engine.SitOutNextTurn(serial)
	} else {
		t.engine.AutoPlayer(serial)
		t.broadcast(&packet.AutoFold{GameID: t.id, Serial: serial})
	}
	return t.updateIgnoringReentry()
}

// QuitPlayer stands a player up: the seat is abandoned, the table money
// settles back to the bankroll, and the sessions stay on as observers.
// Closed tables refuse; tournament seats are owned by the tournament.
func (t *Table) QuitPlayer(a *Avatar) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.factory == nil {
		return ErrTableDestroyed
	}
	serial := a.Serial()
	if t.desc.Tourney != nil {
		return t.sendError(a, "QUIT", packet.CodeTourney, ErrClosedTable)
	}
	if !t.engine.IsSeated(serial) {
		return nil
	}
	t.engine.SitOutNextTurn(serial)
	t.engine.AutoPlayer(serial)
	if err := t.updateIgnoringReentry(); err != nil {
		return err
	}
	t.standUpLocked(serial)
	return nil
}

// standUpLocked removes a serial's seat if the engine allows it now. A
// running hand defers the removal: the engine emits a leave event at
// hand end and delayedActions settles it. Sessions demote to observers
// either way.
func (t *Table) standUpLocked(serial int64) {
	p := t.engine.GetPlayer(serial)
	if p == nil {
		return
	}
	seat := p.Seat
	if t.engine.RemovePlayer(serial) {
		if err := t.factory.LeavePlayer(serial, t.id, t.desc.CurrencySerial); err != nil {
			t.log.Errorf("table %d: settle leave of player %d: %v", t.id, serial, err)
		}
		t.broadcast(&packet.PlayerLeave{GameID: t.id, Serial: serial, Seat: seat})
	}
	t.demoteToObserver(serial)
	t.factory.EventTable(t)
}

// DisconnectPlayer detaches one session from the table. The seat, if
// any, is preserved so the player can join again later; a seat caught in
// a running hand goes on autopilot so the hand does not stall.
func (t *Table) DisconnectPlayer(a *Avatar) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.factory == nil {
		return ErrTableDestroyed
	}
	if !t.isJoinedLocked(a) {
		return nil
	}
	serial := a.Serial()
	if p := t.engine.GetPlayer(serial); p != nil && t.engine.IsSeated(serial) {
		// A dropped client can never answer the ready protocol again, so
		// its seat must not hold the next deal.
		p.UserData.Ready = true
		if engine.ContainsSerial(t.engine.SerialsPlaying(), serial) {
			t.engine.SitOutNextTurn(serial)
			t.engine.AutoPlayer(serial)
		}
	}
	t.dropAvatarLocked(a)
	a.detachTable(t.id)
	t.factory.JoinedCountDecrease()
	return t.updateIgnoringReentry()
}

// kickLocked forcibly removes a player: engine seat freed, money settled
// through the factory, sessions demoted to observers, departure
// broadcast.
func (t *Table) kickLocked(serial int64) {
	p := t.engine.GetPlayer(serial)
	if p == nil {
		return
	}
	seat := p.Seat
	if t.engine.RemovePlayer(serial) {
		if err := t.factory.LeavePlayer(serial, t.id, t.desc.CurrencySerial); err != nil {
			t.log.Errorf("table %d: settle kick of player %d: %v", t.id, serial, err)
		}
	}
	t.demoteToObserver(serial)
	t.broadcast(&packet.PlayerLeave{GameID: t.id, Serial: serial, Seat: seat})
	t.factory.EventTable(t)
}

// kickSittingOutTooLong kicks players who missed too many consecutive
// hands. Runs only on cash tables and only when a hand just finished;
// tournaments manage their own idle players.
func (t *Table) kickSittingOutTooLong(tail []engine.Event) {
	if t.desc.Tourney != nil {
		return
	}
	finished := false
	for _, ev := range tail {
		if _, ok := ev.(*engine.FinishEvent); ok {
			finished = true
			break
		}
	}
	if !finished {
		return
	}
	max := t.desc.MaxMissedRound
	if max <= 0 {
		max = t.factory.MissedRoundMax()
	}
	if max <= 0 {
		return
	}
	for _, p := range t.engine.PlayersAll() {
		if p.MissedRoundCount < max {
			continue
		}
		t.log.Infof("table %d: kicking player %d after %d missed rounds",
			t.id, p.Serial, p.MissedRoundCount)
		t.kickLocked(p.Serial)
	}
}

// MovePlayer transfers a seated player to another table, typically for
// tournament rebalancing. The source announces the move and frees the
// seat, the factory moves the money atomically, and the destination
// seats the player with the stack preserved. A mismatch between the
// engine stack and the moved balance is logged and the move proceeds:
// the database wins on the next write.
func (t *Table) MovePlayer(serial int64, dest *Table) error {
	t.mu.Lock()
	if t.factory == nil {
		t.mu.Unlock()
		return ErrTableDestroyed
	}
	f := t.factory
	p := t.engine.GetPlayer(serial)
	if p == nil {
		t.mu.Unlock()
		return ErrNotSeated
	}
	name := p.Name
	money := p.Money
	t.broadcast(&packet.TableMove{GameID: t.id, Serial: serial, ToGameID: dest.id, Seat: p.Seat})
	t.engine.RemovePlayer(serial)
	moved := append([]*Avatar(nil), t.avatars.get(serial)...)
	for _, a := range moved {
		t.avatars.remove(a)
		a.detachTable(t.id)
	}
	f.EventTable(t)
	if err := t.updateIgnoringReentry(); err != nil {
		t.log.Warnf("table %d: update after moving player %d out: %v", t.id, serial, err)
	}
	t.mu.Unlock()

	balance, err := f.MovePlayer(serial, t.id, dest.id)
	if err != nil {
		return err
	}

	dest.mu.Lock()
	defer dest.mu.Unlock()
	if dest.factory == nil {
		return ErrTableDestroyed
	}
	np, ok := dest.engine.AddPlayer(serial, -1, name)
	if !ok {
		dest.log.Errorf("table %d: engine refused moved player %d", dest.id, serial)
		return ErrSeatRefused
	}
	np.Money = money
	np.BuyInPaid = true
	if np.Money != balance {
		dest.log.Warnf("table %d: player %d moved with %d chips but database says %d",
			dest.id, serial, np.Money, balance)
	}
	dest.engine.ComeBack(serial)
	dest.engine.Sit(serial)
	for _, a := range moved {
		a.attachTable(dest.id)
		dest.avatars.add(a)
		dest.sendTableStateLocked(a)
	}
	dest.broadcast(dest.playerArrivePacketLocked(np))
	if stats := dest.playerStatsPacketLocked(serial); stats != nil {
		dest.broadcast(stats)
	}
	dest.broadcast(&packet.Sit{GameID: dest.id, Serial: serial})
	dest.factory.EventTable(dest)
	return dest.updateIgnoringReentry()
}

func containsSeat(seats []int, seat int) bool {
	for _, s := range seats {
		if s == seat {
			return true
		}
	}
	return false
}
