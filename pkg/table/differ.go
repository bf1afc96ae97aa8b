package table

import (
	"sort"
	"time"

	"github.com/cardroom/tablesrv/pkg/engine"
	"github.com/cardroom/tablesrv/pkg/packet"
)

// moneyDeltas aggregates the per-player money movement of a history
// tail. Negative deltas are chips committed to the pot, positive deltas
// are refunds and winnings. Rake is handled separately: it never touches
// the user2table row.
func moneyDeltas(tail []engine.Event) map[int64]int64 {
	deltas := make(map[int64]int64)
	for _, ev := range tail {
		switch e := ev.(type) {
		case *engine.BlindEvent:
			deltas[e.Serial] -= e.Amount + e.Dead
		case *engine.AnteEvent:
			deltas[e.Serial] -= e.Amount
		case *engine.CallEvent:
			deltas[e.Serial] -= e.Amount
		case *engine.RaiseEvent:
			deltas[e.Serial] -= e.Amount
		case *engine.CanceledEvent:
			if e.Serial > 0 && e.Amount > 0 {
				deltas[e.Serial] += e.Amount
			}
		case *engine.EndEvent:
			if len(e.ShowdownStack) > 0 {
				for serial, share := range e.ShowdownStack[0].Serial2Share {
					deltas[serial] += share
				}
			}
		}
	}
	for serial, delta := range deltas {
		if delta == 0 {
			delete(deltas, serial)
		}
	}
	return deltas
}

// syncDatabase mirrors the engine money movement of the tail into the
// database, in the same update cycle that observed it. A failed write is
// logged and the cycle continues: the engine state is authoritative and
// the next write converges the row.
func (t *Table) syncDatabase(tail []engine.Event) {
	f := t.factory
	deltas := moneyDeltas(tail)
	serials := make([]int64, 0, len(deltas))
	for serial := range deltas {
		serials = append(serials, serial)
	}
	sort.Slice(serials, func(i, j int) bool { return serials[i] < serials[j] })
	for _, serial := range serials {
		if err := f.UpdatePlayerMoney(serial, t.id, deltas[serial]); err != nil {
			t.log.Errorf("table %d: money update %+d for player %d: %v",
				t.id, deltas[serial], serial, err)
		}
	}

	for _, ev := range tail {
		switch e := ev.(type) {
		case *engine.RakeEvent:
			for serial, amount := range e.Serial2Rake {
				if err := f.UpdatePlayerRake(t.desc.CurrencySerial, serial, amount); err != nil {
					t.log.Errorf("table %d: rake update %d for player %d: %v",
						t.id, amount, serial, err)
				}
			}
		case *engine.FinishEvent:
			compressed := t.compressHistory(t.engine.HistoryGet())
			if err := f.SaveHand(e.HandSerial, compressed); err != nil {
				t.log.Errorf("table %d: save hand %d: %v", t.id, e.HandSerial, err)
			}
			f.UpdateTableStats(t.id, len(t.engine.SerialsAll()), len(t.observers))
			transient := int64(0)
			if t.desc.Transient {
				transient = 1
			}
			f.DatabaseEvent(MonitorEvent{
				Event:  MonitorEventHand,
				Param1: e.HandSerial,
				Param2: transient,
				Param3: t.id,
			})
		}
	}
}

// delayedActions runs the tail's side effects that are neither packets
// nor money rows: the inter-hand delay accumulator and the settlement of
// seats abandoned during the hand.
func (t *Table) delayedActions(tail []engine.Event) {
	delays := t.settings.Delays
	for _, ev := range tail {
		switch e := ev.(type) {
		case *engine.GameEvent:
			t.gameDelay = gameDelay{start: time.Now(), delay: delays.Autodeal}
		case *engine.RoundEvent:
			t.gameDelay.delay += delays.Round
		case *engine.PositionEvent:
			t.gameDelay.delay += delays.Position
		case *engine.ShowdownEvent:
			t.gameDelay.delay += delays.Showdown
		case *engine.FinishEvent:
			t.gameDelay.delay += delays.Finish
		case *engine.LeaveEvent:
			for _, q := range e.Quitters {
				if err := t.factory.LeavePlayer(q.Serial, t.id, t.desc.CurrencySerial); err != nil {
					t.log.Errorf("table %d: settle leave of player %d: %v", t.id, q.Serial, err)
				}
				t.demoteToObserver(q.Serial)
			}
		}
	}
}

// betLimits is the last limits snapshot broadcast to clients.
type betLimits struct {
	min, max, step int64
	cap            int
	unit           int64
	valid          bool
}

func (bl betLimits) packet(gameID int64) *packet.BetLimits {
	return &packet.BetLimits{
		GameID: gameID,
		Min:    bl.min,
		Max:    bl.max,
		Step:   bl.step,
		Unit:   bl.unit,
		Cap:    bl.cap,
	}
}

// betLimitsPacket recomputes the limits when the tail opened a hand or a
// round and returns the packet to prepend when they changed.
func (t *Table) betLimitsPacket(tail []engine.Event) *packet.BetLimits {
	recompute := false
	for _, ev := range tail {
		switch ev.(type) {
		case *engine.GameEvent, *engine.RoundEvent:
			recompute = true
		}
		if recompute {
			break
		}
	}
	if !recompute {
		return nil
	}
	min, max, step := t.engine.BetLimits()
	bl := betLimits{
		min:   min,
		max:   max,
		step:  step,
		cap:   t.engine.RoundCap(),
		unit:  t.engine.ChipUnit(),
		valid: true,
	}
	if bl == t.betLimits {
		return nil
	}
	t.betLimits = bl
	return bl.packet(t.id)
}

// compressHistory reduces a full hand history to its durable form:
// purely transient events are dropped, and board or pockets repeated
// across round and showdown events are nulled out so the stored blob
// does not carry the same cards several times. Betting and structural
// events pass through verbatim. Unknown tags are logged and skipped;
// they must not lose the hand.
func (t *Table) compressHistory(history []engine.Event) []engine.Event {
	out := make([]engine.Event, 0, len(history))
	var lastBoard []engine.Card
	var lastPockets map[int64][]engine.Card
	for _, ev := range history {
		switch e := ev.(type) {
		case *engine.AllInEvent, *engine.WaitForEvent, *engine.BlindRequestEvent,
			*engine.MuckEvent, *engine.FinishEvent, *engine.LeaveEvent,
			*engine.RebuyEvent, *engine.BuyOutEvent:
			// Transient: reconstructable or meaningless after the hand.

		case *engine.RoundEvent:
			compressed := &engine.RoundEvent{Name: e.Name, Board: e.Board, Pockets: e.Pockets}
			if engine.CardsEqual(e.Board, lastBoard) {
				compressed.Board = nil
			} else {
				lastBoard = e.Board
			}
			if engine.PocketsEqual(e.Pockets, lastPockets) {
				compressed.Pockets = nil
			} else {
				lastPockets = e.Pockets
			}
			out = append(out, compressed)

		case *engine.ShowdownEvent:
			compressed := &engine.ShowdownEvent{Board: e.Board, Pockets: e.Pockets}
			if engine.CardsEqual(e.Board, lastBoard) {
				compressed.Board = nil
			} else {
				lastBoard = e.Board
			}
			if engine.PocketsEqual(e.Pockets, lastPockets) {
				compressed.Pockets = nil
			} else {
				lastPockets = e.Pockets
			}
			out = append(out, compressed)

		case *engine.GameEvent, *engine.PlayerListEvent, *engine.RakeEvent,
			*engine.PositionEvent, *engine.WaitBlindEvent, *engine.BlindEvent,
			*engine.AnteRequestEvent, *engine.AnteEvent, *engine.CallEvent,
			*engine.CheckEvent, *engine.FoldEvent, *engine.RaiseEvent,
			*engine.CanceledEvent, *engine.SitOutEvent, *engine.SitEvent,
			*engine.EndEvent:
			out = append(out, ev)

		default:
			t.log.Warnf("table %d: unknown history event %q dropped from stored hand",
				t.id, ev.Tag())
		}
	}
	return out
}
