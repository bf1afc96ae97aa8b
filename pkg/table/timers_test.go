package table

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardroom/tablesrv/pkg/engine"
)

// startHand puts the scripted engine mid-hand with the given player in
// position, without going through the deal pipeline.
func (fx *fixture) startHand(inPosition int64, playing ...int64) {
	fx.engine.running = true
	fx.engine.state = "pre-flop"
	fx.engine.playing = playing
	fx.engine.inPosition = inPosition
}

func TestUpdatePlayerTimers(t *testing.T) {
	fx, err := newFixture()
	require.NoError(t, err)
	_, err = fx.joinSeated(7, 1000)
	require.NoError(t, err)

	tbl := fx.table
	tbl.mu.Lock()
	defer tbl.mu.Unlock()

	t.Run("armed for the player in position", func(t *testing.T) {
		fx.startHand(7, 7)
		tbl.updatePlayerTimers()
		assert.NotNil(t, tbl.timers.playerTurn.timer)
		assert.Equal(t, int64(7), tbl.timers.playerTurnSerial)
	})

	t.Run("unchanged position leaves the timer alone", func(t *testing.T) {
		seq := tbl.timers.playerTurn.seq
		tbl.updatePlayerTimers()
		assert.Equal(t, seq, tbl.timers.playerTurn.seq)
	})

	t.Run("cancelled when the hand ends", func(t *testing.T) {
		fx.engine.running = false
		fx.engine.inPosition = 0
		tbl.updatePlayerTimers()
		assert.Nil(t, tbl.timers.playerTurn.timer)
		assert.Zero(t, tbl.timers.playerTurnSerial)
		assert.True(t, tbl.timers.forcedDeadline.IsZero())
	})
}

func TestPlayerWarningTimeout(t *testing.T) {
	t.Run("warns the table and arms the forced action", func(t *testing.T) {
		fx, err := newFixture()
		require.NoError(t, err)
		a, err := fx.joinSeated(7, 1000)
		require.NoError(t, err)
		fx.startHand(7, 7)
		drain(a)

		fx.table.mu.Lock()
		fx.table.playerWarningTimeout(7)
		warnedAt := fx.engine.GetPlayer(7).UserData.TimeoutWarnedAt
		deadline := fx.table.timers.forcedDeadline
		fx.table.cancelTimer(&fx.table.timers.playerTurn)
		fx.table.mu.Unlock()

		assert.True(t, hasPacket(drain(a), "TIMEOUT_WARNING"))
		assert.False(t, warnedAt.IsZero())
		assert.False(t, deadline.IsZero())

		// A reconnecting session gets the warning again with the time
		// actually remaining.
		fx.table.CurrentTimeoutWarning(a)
		assert.True(t, hasPacket(drain(a), "TIMEOUT_WARNING"))
	})

	t.Run("stale position re-syncs instead of warning", func(t *testing.T) {
		fx, err := newFixture()
		require.NoError(t, err)
		a, err := fx.joinSeated(7, 1000)
		require.NoError(t, err)
		fx.startHand(7, 7)
		drain(a)

		fx.table.mu.Lock()
		fx.table.playerWarningTimeout(8)
		serial := fx.table.timers.playerTurnSerial
		fx.table.cancelTimer(&fx.table.timers.playerTurn)
		fx.table.mu.Unlock()

		assert.Equal(t, int64(7), serial, "re-armed for the live position")
		assert.False(t, hasPacket(drain(a), "TIMEOUT_WARNING"))
	})
}

func TestPlayerForcedTimeout(t *testing.T) {
	t.Run("open table sits the player out on autopilot", func(t *testing.T) {
		fx, err := newFixture()
		require.NoError(t, err)
		a, err := fx.joinSeated(7, 1000)
		require.NoError(t, err)
		fx.startHand(7, 7)
		drain(a)

		fx.table.mu.Lock()
		fx.table.playerForcedTimeout(7)
		p := fx.engine.GetPlayer(7)
		sitOutNext, auto := p.SitOutNextTurn, p.Auto
		fx.table.mu.Unlock()

		assert.True(t, sitOutNext)
		assert.True(t, auto)
		types := drain(a)
		assert.True(t, hasPacket(types, "TIMEOUT_NOTICE"))
		assert.False(t, hasPacket(types, "AUTO_FOLD"))
	})

	t.Run("closed table announces an auto-fold", func(t *testing.T) {
		fx, err := newFixture(func(cfg *TableConfig) {
			cfg.Descriptor.Tourney = &Tourney{Serial: 5, Name: "sng", State: TourneyStateRunning}
		})
		require.NoError(t, err)
		a, err := fx.joinSeated(7, 1000)
		require.NoError(t, err)
		fx.engine.Close()
		fx.startHand(7, 7)
		drain(a)

		fx.table.mu.Lock()
		fx.table.playerForcedTimeout(7)
		auto := fx.engine.GetPlayer(7).Auto
		fx.table.mu.Unlock()

		assert.True(t, auto)
		types := drain(a)
		assert.True(t, hasPacket(types, "AUTO_FOLD"))
		assert.True(t, hasPacket(types, "TIMEOUT_NOTICE"))
	})

	t.Run("stale position is a no-op", func(t *testing.T) {
		fx, err := newFixture()
		require.NoError(t, err)
		a, err := fx.joinSeated(7, 1000)
		require.NoError(t, err)
		fx.startHand(7, 7)
		drain(a)

		fx.table.mu.Lock()
		fx.table.playerForcedTimeout(8)
		p := fx.engine.GetPlayer(7)
		sitOutNext, auto := p.SitOutNextTurn, p.Auto
		fx.table.cancelTimer(&fx.table.timers.playerTurn)
		fx.table.mu.Unlock()

		assert.False(t, sitOutNext)
		assert.False(t, auto)
		assert.False(t, hasPacket(drain(a), "TIMEOUT_NOTICE"))
	})
}

func TestMuckTimer(t *testing.T) {
	t.Run("expiry force-mucks every pending hand", func(t *testing.T) {
		fx, err := newFixture(func(cfg *TableConfig) {
			cfg.Descriptor.MuckTimeout = 25 * time.Millisecond
		})
		require.NoError(t, err)
		_, err = fx.joinSeated(7, 1000)
		require.NoError(t, err)
		fx.engine.muckables = []int64{7}
		fx.engine.state = engine.StateMuck
		fx.engine.append(&engine.MuckEvent{Serials: []int64{7}})

		require.NoError(t, fx.table.Update())
		require.Eventually(t, func() bool {
			fx.table.mu.Lock()
			defer fx.table.mu.Unlock()
			return len(fx.engine.muckables) == 0
		}, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("a response before expiry settles the request", func(t *testing.T) {
		fx, err := newFixture()
		require.NoError(t, err)
		a, err := fx.joinSeated(7, 1000)
		require.NoError(t, err)
		fx.engine.muckables = []int64{7}
		fx.engine.state = engine.StateMuck
		fx.engine.append(&engine.MuckEvent{Serials: []int64{7}})
		require.NoError(t, fx.table.Update())

		require.NoError(t, fx.table.MuckAccept(a))
		fx.table.mu.Lock()
		muckables := fx.engine.muckables
		timer := fx.table.timers.muck.timer
		fx.table.mu.Unlock()
		assert.Empty(t, muckables)
		assert.Nil(t, timer, "muck timer cancelled once everyone answered")
	})
}
