package table

import (
	"time"

	"github.com/cardroom/tablesrv/pkg/engine"
	"github.com/cardroom/tablesrv/pkg/packet"
)

// timerSlot is one cancellable single-shot timer. The sequence number
// invalidates callbacks of replaced or cancelled timers: a callback that
// fires after its slot moved on finds a different sequence and returns.
type timerSlot struct {
	timer *time.Timer
	seq   uint64
}

// timerInfo holds the table's three timer slots and the bookkeeping the
// player-turn timer needs to re-arm and to resend warnings.
type timerInfo struct {
	deal       timerSlot
	playerTurn timerSlot
	muck       timerSlot

	// playerTurnSerial is the serial the player-turn timer was armed
	// for; a different serial in position means the timer is stale.
	playerTurnSerial int64

	// forcedDeadline is when the forced action fires, zero while still
	// in the warning phase.
	forcedDeadline time.Time
}

// armTimer replaces the slot's timer with a new single-shot. The callback
// runs on its own goroutine, takes the table lock, and fires only when
// the table is still valid and the slot was not re-armed in between.
func (t *Table) armTimer(slot *timerSlot, d time.Duration, fire func()) {
	if slot.timer != nil {
		slot.timer.Stop()
	}
	slot.seq++
	seq := slot.seq
	slot.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.factory == nil || slot.seq != seq {
			return
		}
		slot.timer = nil
		fire()
	})
}

// cancelTimer is idempotent and tolerates an already-fired timer.
func (t *Table) cancelTimer(slot *timerSlot) {
	slot.seq++
	if slot.timer != nil {
		slot.timer.Stop()
		slot.timer = nil
	}
}

func (t *Table) cancelAllTimers() {
	t.cancelTimer(&t.timers.deal)
	t.cancelTimer(&t.timers.playerTurn)
	t.cancelTimer(&t.timers.muck)
	t.timers.playerTurnSerial = 0
	t.timers.forcedDeadline = time.Time{}
}

// updateTimers refreshes the muck and player-turn slots against the
// history tail of the current update cycle.
func (t *Table) updateTimers(tail []engine.Event) {
	for _, ev := range tail {
		if _, ok := ev.(*engine.MuckEvent); ok {
			t.armMuckTimer()
		}
	}
	t.updatePlayerTimers()
}

// updatePlayerTimers arms the two-phase turn timer for the player in
// position, cancelling it when no hand runs or nobody holds the
// position. An unchanged serial with a live timer is left alone so the
// warning phase is not restarted by unrelated updates.
func (t *Table) updatePlayerTimers() {
	if !t.engine.IsRunning() {
		t.cancelTimer(&t.timers.playerTurn)
		t.timers.playerTurnSerial = 0
		t.timers.forcedDeadline = time.Time{}
		return
	}
	serial := t.engine.GetSerialInPosition()
	if serial == 0 {
		t.cancelTimer(&t.timers.playerTurn)
		t.timers.playerTurnSerial = 0
		t.timers.forcedDeadline = time.Time{}
		return
	}
	if serial == t.timers.playerTurnSerial && t.timers.playerTurn.timer != nil {
		return
	}
	t.timers.playerTurnSerial = serial
	t.timers.forcedDeadline = time.Time{}
	if p := t.engine.GetPlayer(serial); p != nil {
		p.UserData.TimeoutWarnedAt = time.Time{}
	}
	t.armTimer(&t.timers.playerTurn, t.desc.PlayerTimeout/2, func() {
		t.playerWarningTimeout(serial)
	})
}

// playerWarningTimeout is phase one of the turn timer: warn the table and
// arm the forced action. A stale position re-syncs instead of firing.
func (t *Table) playerWarningTimeout(serial int64) {
	if !t.engine.IsRunning() || t.engine.GetSerialInPosition() != serial {
		t.updatePlayerTimers()
		return
	}
	warn := t.desc.PlayerTimeout / 2
	t.broadcast(&packet.TimeoutWarning{
		GameID:  t.id,
		Serial:  serial,
		Timeout: int(warn / time.Second),
	})
	if p := t.engine.GetPlayer(serial); p != nil {
		p.UserData.TimeoutWarnedAt = time.Now()
	}
	d := warn + timeoutDelayCompensation
	t.timers.forcedDeadline = time.Now().Add(d)
	t.armTimer(&t.timers.playerTurn, d, func() {
		t.playerForcedTimeout(serial)
	})
}

// playerForcedTimeout is phase two: act for the silent player. Open
// tables sit the player out next turn and put the seat on autopilot;
// closed tables only autopilot, announced as an auto-fold, since
// tournament seats cannot sit out.
func (t *Table) playerForcedTimeout(serial int64) {
	if !t.engine.IsRunning() || t.engine.GetSerialInPosition() != serial {
		t.updatePlayerTimers()
		return
	}
	t.log.Infof("table %d: player %d timed out in position", t.id, serial)
	if t.engine.IsOpen() {
		t.engine.SitOutNextTurn(serial)
		t.engine.AutoPlayer(serial)
	} else {
		t.engine.AutoPlayer(serial)
		t.broadcast(&packet.AutoFold{GameID: t.id, Serial: serial})
	}
	t.broadcast(&packet.TimeoutNotice{GameID: t.id, Serial: serial})
	if err := t.updateLocked(); err != nil {
		t.log.Warnf("table %d: update after timeout of %d: %v", t.id, serial, err)
	}
}

// armMuckTimer bounds how long showdown players may sit on a muck
// request. On fire every pending muckable is force-mucked.
func (t *Table) armMuckTimer() {
	t.armTimer(&t.timers.muck, t.desc.MuckTimeout, func() {
		muckables := t.engine.MuckableSerials()
		if len(muckables) > 0 {
			t.log.Debugf("table %d: force mucking %v", t.id, muckables)
		}
		for _, serial := range muckables {
			t.engine.Muck(serial, true)
		}
		if err := t.updateLocked(); err != nil {
			t.log.Warnf("table %d: update after muck timeout: %v", t.id, err)
		}
	})
}

// sendTimeoutWarningLocked resends an active timeout warning to one
// session, with the time actually remaining. Reconnecting clients use it
// to restore their countdown.
func (t *Table) sendTimeoutWarningLocked(a *Avatar) {
	if !t.engine.IsRunning() || t.timers.forcedDeadline.IsZero() {
		return
	}
	serial := t.timers.playerTurnSerial
	remaining := time.Until(t.timers.forcedDeadline) - timeoutDelayCompensation
	if remaining < 0 {
		remaining = 0
	}
	a.Send(&packet.TimeoutWarning{
		GameID:  t.id,
		Serial:  serial,
		Timeout: int(remaining / time.Second),
	})
}

// CurrentTimeoutWarning resends the running turn warning, if any, to the
// given session.
func (t *Table) CurrentTimeoutWarning(a *Avatar) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.factory == nil {
		return
	}
	t.sendTimeoutWarningLocked(a)
}
