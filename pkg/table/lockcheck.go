package table

import (
	"sync"
	"time"

	"github.com/decred/slog"
)

// lockCheck watches for a hand stuck inside one betting round. It is
// armed at hand start and disarmed when the engine reports the last
// round boundary; if the threshold elapses first the table is flagged
// locked and keeps operating so operators can look at it live.
//
// lockCheck has its own mutex because the engine callback that stops it
// runs synchronously inside engine mutations, while the table lock is
// already held.
type lockCheck struct {
	mu        sync.Mutex
	log       slog.Logger
	gameID    int64
	threshold time.Duration

	timer      *time.Timer
	seq        uint64
	handSerial int64
	locked     bool
}

func newLockCheck(gameID int64, threshold time.Duration, log slog.Logger) *lockCheck {
	return &lockCheck{log: log, gameID: gameID, threshold: threshold}
}

// start arms the watchdog for a hand. A zero threshold disables it; the
// caller additionally skips arming when the per-player timeout exceeds
// the threshold, so genuine slow play does not trip it.
func (lc *lockCheck) start(handSerial int64) {
	if lc.threshold <= 0 {
		return
	}
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.handSerial = handSerial
	lc.arm()
}

func (lc *lockCheck) arm() {
	if lc.timer != nil {
		lc.timer.Stop()
	}
	lc.seq++
	seq := lc.seq
	lc.timer = time.AfterFunc(lc.threshold, func() {
		lc.fire(seq)
	})
}

func (lc *lockCheck) fire(seq uint64) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.seq != seq {
		return
	}
	lc.locked = true
	lc.log.Errorf("table %d locked: hand %d stuck inside a round for more than %v",
		lc.gameID, lc.handSerial, lc.threshold)
	lc.arm()
}

// stop disarms the watchdog. Idempotent, safe after fire.
func (lc *lockCheck) stop() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.seq++
	if lc.timer != nil {
		lc.timer.Stop()
		lc.timer = nil
	}
}

// Locked reports whether the watchdog ever tripped for this table.
func (lc *lockCheck) Locked() bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.locked
}
