package table

import (
	"errors"
	"fmt"

	"github.com/cardroom/tablesrv/pkg/engine"
	"github.com/cardroom/tablesrv/pkg/packet"
)

// pendingRebuy is a rebuy the engine could not accept yet, queued until
// the first end-of-hand.
type pendingRebuy struct {
	serial int64
	amount int64
}

// BuyInPlayer debits the player's bankroll for the initial table stake.
// Only seated players outside a running hand may buy in, once, and never
// on transient tables where the buy-in is implicit at seat time. The
// acknowledgement carries the amount actually debited, which may be less
// than requested when the bankroll runs short.
func (t *Table) BuyInPlayer(a *Avatar, amount int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.factory == nil {
		return ErrTableDestroyed
	}
	serial := a.Serial()
	p := t.engine.GetPlayer(serial)
	if p == nil || !t.engine.IsSeated(serial) {
		return t.sendError(a, "BUY_IN", packet.CodeRefused, ErrNotSeated)
	}
	if engine.ContainsSerial(t.engine.SerialsPlaying(), serial) {
		return t.sendError(a, "BUY_IN", packet.CodeRefused, ErrHandRunning)
	}
	if t.desc.Transient {
		return t.sendError(a, "BUY_IN", packet.CodeRefused, ErrTransientTable)
	}
	if p.BuyInPaid {
		return t.sendError(a, "BUY_IN", packet.CodeRefused, ErrBuyInAlreadyPaid)
	}
	if amount < t.engine.BuyIn() {
		amount = t.engine.BuyIn()
	}
	if max := t.engine.MaxBuyIn(); amount > max {
		amount = max
	}
	paid, err := t.factory.BuyInPlayer(serial, t.id, t.desc.CurrencySerial, amount)
	if err != nil {
		t.log.Errorf("table %d: buy-in debit for player %d: %v", t.id, serial, err)
		return t.sendError(a, "BUY_IN", packet.CodeRefused, err)
	}
	if paid == 0 {
		return t.sendError(a, "BUY_IN", packet.CodeRefused, ErrPlayerBroke)
	}
	p.Money += paid
	p.BuyInPaid = true
	a.Send(&packet.BuyIn{GameID: t.id, Serial: serial, Amount: paid})
	t.broadcast(&packet.PlayerChips{GameID: t.id, Serial: serial, Bet: p.Bet, Money: p.Money})
	return t.updateIgnoringReentry()
}

// RebuyPlayer adds chips to a seated stack. When the engine cannot take
// a rebuy right now the request is queued and drained at the first
// end-of-hand; a player whose bankroll turns out empty at that point is
// forced off the table.
func (t *Table) RebuyPlayer(a *Avatar, amount int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.factory == nil {
		return ErrTableDestroyed
	}
	if amount < 0 {
		return t.sendError(a, "REBUY", packet.CodeRefused, fmt.Errorf("negative rebuy %d", amount))
	}
	serial := a.Serial()
	if !t.engine.IsSeated(serial) {
		return t.sendError(a, "REBUY", packet.CodeRefused, ErrNotSeated)
	}
	if !t.engine.IsRebuyPossible() {
		t.rebuyStack = append(t.rebuyStack, pendingRebuy{serial: serial, amount: amount})
		return nil
	}
	err := t.rebuyNow(serial, amount)
	switch {
	case err == nil:
	case errors.Is(err, ErrPlayerBroke):
		t.log.Infof("table %d: player %d broke on rebuy, forcing leave", t.id, serial)
		t.kickLocked(serial)
	default:
		return t.sendError(a, "REBUY", packet.CodeRefused, err)
	}
	return t.updateIgnoringReentry()
}

// rebuyNow applies one rebuy immediately. The amount is clamped into
// [buyIn-current, maxBuyIn-current]; a stack already at the table
// maximum refuses. ErrPlayerBroke means the bankroll debited nothing and
// the caller must force the player to leave.
func (t *Table) rebuyNow(serial, amount int64) error {
	p := t.engine.GetPlayer(serial)
	if p == nil || !t.engine.IsSeated(serial) {
		return ErrNotSeated
	}
	if !p.BuyInPaid {
		return fmt.Errorf("%w: buy-in not paid", ErrRebuyRefused)
	}
	if t.desc.Tourney != nil {
		return ErrClosedTable
	}
	headroom := t.engine.MaxBuyIn() - p.Money
	if headroom <= 0 {
		return ErrNoRebuyHeadroom
	}
	if amount > headroom {
		amount = headroom
	}
	if floor := t.engine.BuyIn() - p.Money; amount < floor {
		amount = floor
	}
	if amount <= 0 {
		return fmt.Errorf("%w: nothing to add", ErrRebuyRefused)
	}
	paid, err := t.factory.BuyInPlayer(serial, t.id, t.desc.CurrencySerial, amount)
	if err != nil {
		return fmt.Errorf("rebuy debit: %w", err)
	}
	if paid == 0 {
		return ErrPlayerBroke
	}
	if !t.engine.Rebuy(serial, paid) {
		if err := t.factory.BuyOutPlayer(serial, t.id, t.desc.CurrencySerial, paid); err != nil {
			t.log.Errorf("table %d: refund of refused rebuy for player %d: %v", t.id, serial, err)
		}
		return ErrRebuyRefused
	}
	t.engine.ComeBack(serial)
	t.engine.Sit(serial)
	return nil
}

// policyTarget is the stack a top-up policy aims for.
func (t *Table) policyTarget(p engine.Policy) int64 {
	switch p {
	case engine.PolicyMin:
		return t.engine.BuyIn()
	case engine.PolicyMax:
		return t.engine.MaxBuyIn()
	case engine.PolicyBest:
		return t.engine.BestBuyIn()
	}
	return 0
}

// rebuyPlayersOnce drains the pending-rebuy queue and the per-player
// auto-refill and auto-rebuy policies. On transient tables the
// tournament manager owns rebuys, so the whole drain is delegated
// through the factory. It runs at most once per hand serial: every
// caller between two deals after that is a no-op.
func (t *Table) rebuyPlayersOnce() {
	if !t.engine.IsRebuyPossible() {
		return
	}
	handSerial := t.engine.HandSerial()
	if handSerial == t.lastRebuyHandSerial {
		return
	}
	t.lastRebuyHandSerial = handSerial

	if t.desc.Transient && t.desc.Tourney != nil {
		t.rebuyStack = nil
		t.factory.TourneyRebuyAllPlayers(t.desc.Tourney, t.id)
		return
	}

	pending := t.rebuyStack
	t.rebuyStack = nil
	for _, r := range pending {
		if err := t.rebuyNow(r.serial, r.amount); err != nil {
			if errors.Is(err, ErrPlayerBroke) {
				t.log.Infof("table %d: player %d broke on queued rebuy, forcing leave", t.id, r.serial)
				t.kickLocked(r.serial)
				continue
			}
			t.log.Infof("table %d: queued rebuy of %d for player %d refused: %v",
				t.id, r.amount, r.serial, err)
		}
	}

	for _, p := range t.engine.PlayersAll() {
		var target int64
		switch {
		case p.AutoRefill != engine.PolicyOff:
			target = t.policyTarget(p.AutoRefill)
		case p.AutoRebuy != engine.PolicyOff && p.Money <= 0:
			target = t.policyTarget(p.AutoRebuy)
		default:
			continue
		}
		if p.Money >= target {
			continue
		}
		if err := t.rebuyNow(p.Serial, target-p.Money); err != nil {
			if errors.Is(err, ErrPlayerBroke) {
				t.log.Infof("table %d: player %d broke on auto top-up, forcing leave", t.id, p.Serial)
				t.kickLocked(p.Serial)
				continue
			}
			t.log.Infof("table %d: auto top-up for player %d refused: %v", t.id, p.Serial, err)
		}
	}
}

// SetAutoRebuy sets the player's broke top-up policy.
func (t *Table) SetAutoRebuy(a *Avatar, policy engine.Policy) error {
	return t.setPolicy(a, policy, func(p *engine.Player) { p.AutoRebuy = policy })
}

// SetAutoRefill sets the player's between-hands refill policy.
func (t *Table) SetAutoRefill(a *Avatar, policy engine.Policy) error {
	return t.setPolicy(a, policy, func(p *engine.Player) { p.AutoRefill = policy })
}

func (t *Table) setPolicy(a *Avatar, policy engine.Policy, apply func(*engine.Player)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.factory == nil {
		return ErrTableDestroyed
	}
	if !policy.Valid() {
		return fmt.Errorf("invalid policy %d", policy)
	}
	p := t.engine.GetPlayer(a.Serial())
	if p == nil {
		return ErrNotSeated
	}
	apply(p)
	return nil
}

// PlayerMoney is one entry of a forced money reset.
type PlayerMoney struct {
	Serial int64
	Chips  int64
}

// UpdatePlayersMoney is the destructive admin reset of table stacks.
// When a hand is running it is first folded to completion: any broke
// player is temporarily given one chip so the fold loop cannot eliminate
// them, but only when that player appears in the update list, otherwise
// the whole call refuses. Absolute mode writes Chips directly and
// rejects negatives; relative mode adds Chips and rejects a negative
// result. Failures are per player; the return value reports whether
// every entry applied. Players modified before a refusal are not rolled
// back: the reset is an operator tool and the database rows mirror
// whatever was applied.
func (t *Table) UpdatePlayersMoney(updates []PlayerMoney, absolute bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.factory == nil {
		return false
	}
	listed := make(map[int64]bool, len(updates))
	for _, u := range updates {
		listed[u.Serial] = true
	}

	if t.engine.IsRunning() {
		for _, p := range t.engine.PlayersAll() {
			if p.Money > 0 {
				continue
			}
			if !listed[p.Serial] {
				t.log.Warnf("table %d: money reset refused: broke player %d not in update list",
					t.id, p.Serial)
				return false
			}
			p.Money = 1
		}
		bound := len(t.engine.PlayersAll())
		for i := 0; t.engine.IsRunning(); i++ {
			if i >= bound {
				t.log.Errorf("table %d: money reset fold loop exceeded %d iterations", t.id, bound)
				return false
			}
			serial := t.engine.GetSerialInPosition()
			if serial == 0 {
				t.log.Errorf("table %d: money reset: hand running with nobody in position", t.id)
				return false
			}
			t.engine.Fold(serial)
		}
		if err := t.updateIgnoringReentry(); err != nil {
			t.log.Warnf("table %d: update after money reset fold-out: %v", t.id, err)
		}
	}

	ok := true
	for _, u := range updates {
		p := t.engine.GetPlayer(u.Serial)
		if p == nil {
			t.log.Warnf("table %d: money reset: no player %d", t.id, u.Serial)
			ok = false
			continue
		}
		var money int64
		if absolute {
			if u.Chips < 0 {
				t.log.Warnf("table %d: money reset: negative amount %d for player %d",
					t.id, u.Chips, u.Serial)
				ok = false
				continue
			}
			money = u.Chips
		} else {
			money = p.Money + u.Chips
			if money < 0 {
				t.log.Warnf("table %d: money reset: %+d takes player %d below zero",
					t.id, u.Chips, u.Serial)
				ok = false
				continue
			}
		}
		p.Money = money
		if err := t.factory.SetPlayerMoney(u.Serial, t.id, money); err != nil {
			t.log.Errorf("table %d: money reset write for player %d: %v", t.id, u.Serial, err)
			ok = false
			continue
		}
		t.broadcast(&packet.PlayerChips{GameID: t.id, Serial: u.Serial, Bet: p.Bet, Money: money})
	}
	if err := t.updateIgnoringReentry(); err != nil {
		t.log.Warnf("table %d: update after money reset: %v", t.id, err)
	}
	return ok
}
