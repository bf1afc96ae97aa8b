package table

import (
	"fmt"
	"time"

	"github.com/cardroom/tablesrv/pkg/engine"
	"github.com/cardroom/tablesrv/pkg/packet"
)

// gameDelay accumulates the inter-hand pause. It is reset when a hand
// starts and grows as delay-carrying events are processed; the next deal
// waits until start+delay unless every player is already ready.
type gameDelay struct {
	start time.Time
	delay time.Duration
}

// serialsWillingToPlay is the population the two-player deal gate counts:
// players sitting in, broke players a top-up policy will revive, queued
// rebuys, and tournament rebuy candidates.
func (t *Table) serialsWillingToPlay() []int64 {
	willing := make(map[int64]struct{})
	for _, r := range t.rebuyStack {
		willing[r.serial] = struct{}{}
	}
	for _, p := range t.engine.PlayersAll() {
		if (p.AutoRefill != engine.PolicyOff || p.AutoRebuy != engine.PolicyOff) && p.Money <= 0 {
			willing[p.Serial] = struct{}{}
		}
	}
	for _, serial := range t.engine.SerialsSit() {
		willing[serial] = struct{}{}
	}
	if t.desc.Tourney != nil {
		for _, serial := range t.factory.TourneySerialsRebuying(t.desc.Tourney, t.id) {
			willing[serial] = struct{}{}
		}
	}
	serials := make([]int64, 0, len(willing))
	for serial := range willing {
		serials = append(serials, serial)
	}
	return serials
}

// shouldAutoDeal decides whether the next hand may begin right now.
func (t *Table) shouldAutoDeal() bool {
	f := t.factory
	if f == nil || f.ShuttingDown() {
		return false
	}
	if !t.settings.Autodeal {
		return false
	}
	if t.engine.IsRunning() {
		return false
	}
	if t.engine.State() == engine.StateMuck {
		return false
	}
	if len(t.serialsWillingToPlay()) < 2 {
		return false
	}
	if t.desc.Tourney != nil {
		return t.desc.Tourney.State == TourneyStateRunning
	}
	if t.allTemporaryPlayers() && !t.settings.AutodealTemporary {
		return false
	}
	return true
}

// allTemporaryPlayers reports whether every player sitting in is a
// temporary (bot) user, vacuously true for an empty sit list. Tables
// like that do not deal on their own unless the server says so.
func (t *Table) allTemporaryPlayers() bool {
	for _, serial := range t.engine.SerialsSit() {
		if !t.factory.IsTemporaryUser(serial) {
			return false
		}
	}
	return true
}

// allReadyToPlay reports whether every player at the table declared
// itself ready for the next hand.
func (t *Table) allReadyToPlay() bool {
	for _, p := range t.engine.PlayersAll() {
		if !p.UserData.Ready {
			return false
		}
	}
	return true
}

// scheduleAutoDeal arms the deal timer for the next hand, or cancels it
// when dealing is not allowed. Slow clients get the accumulated delay
// capped at AutodealMax; transient tables always pause at least
// AutodealTournamentMin so moved players can settle in.
func (t *Table) scheduleAutoDeal() {
	if !t.shouldAutoDeal() {
		t.cancelTimer(&t.timers.deal)
		return
	}
	var delta time.Duration
	if !t.allReadyToPlay() && t.gameDelay.delay > 0 {
		delta = time.Until(t.gameDelay.start.Add(t.gameDelay.delay))
		if delta < 0 {
			delta = 0
		}
		if max := t.settings.Delays.AutodealMax; delta > max {
			delta = max
		}
	} else if t.desc.Transient {
		delta = t.settings.Delays.AutodealTournamentMin
	}
	check := t.settings.Delays.AutodealCheck
	wait := check
	if delta < wait {
		wait = delta
	}
	remaining := delta - wait
	t.armTimer(&t.timers.deal, wait, func() {
		t.autoDealCheck(check, remaining)
	})
}

// autoDealCheck counts the inter-hand delay down in check-sized steps.
// Once less than one step remains, ready players are told the next hand
// is imminent and the final shot is armed.
func (t *Table) autoDealCheck(check, remaining time.Duration) {
	if remaining <= 0 {
		t.autoDeal()
		return
	}
	if remaining < check {
		secs := int((remaining + time.Second - 1) / time.Second)
		t.broadcastToReady(&packet.Message{
			GameID:  t.id,
			Message: fmt.Sprintf("next hand will be dealt shortly (maximum %d seconds)", secs),
		})
		t.armTimer(&t.timers.deal, remaining, func() {
			t.autoDeal()
		})
		return
	}
	t.armTimer(&t.timers.deal, check, func() {
		t.autoDealCheck(check, remaining-check)
	})
}

// autoDeal starts the next hand if the gate still allows it. Sessions
// that never reported ready are flagged: the hand is not held for them
// again.
func (t *Table) autoDeal() {
	t.cancelTimer(&t.timers.deal)
	t.rebuyPlayersOnce()
	for _, p := range t.engine.PlayersAll() {
		if p.UserData.Ready {
			continue
		}
		t.log.Warnf("table %d: player %d never became ready, dealing anyway", t.id, p.Serial)
		for _, a := range t.avatars.get(p.Serial) {
			a.flagBrokenProcessing()
		}
	}
	if !t.shouldAutoDeal() {
		return
	}
	t.beginTurnLocked()
	if err := t.updateLocked(); err != nil {
		t.log.Warnf("table %d: update after deal: %v", t.id, err)
	}
}

// beginTurnLocked opens a hand: a fresh hand serial from the factory,
// the engine clock stamped, every player marked ready, the lock watchdog
// armed, and the engine advanced to its first action.
func (t *Table) beginTurnLocked() {
	tourneySerial := int64(0)
	if t.desc.Tourney != nil {
		tourneySerial = t.desc.Tourney.Serial
	}
	handSerial, err := t.factory.CreateHand(t.id, tourneySerial)
	if err != nil {
		t.log.Errorf("table %d: create hand: %v", t.id, err)
		return
	}
	t.engine.SetTime(time.Now())
	for _, p := range t.engine.PlayersAll() {
		p.UserData.Ready = true
	}
	t.cache = packet.NewCache()
	if t.desc.PlayerTimeout < t.settings.LockTimeout {
		t.lock.start(handSerial)
	}
	if err := t.engine.BeginTurn(handSerial); err != nil {
		t.log.Errorf("table %d: begin hand %d: %v", t.id, handSerial, err)
		return
	}
	t.handState.Dispatch(tableStateDealing)
}
