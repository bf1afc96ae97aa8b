package table

import "errors"

// Errors returned by table operations. Callers match them with
// errors.Is; anything not listed here is an internal failure formatted
// where it happens.
var (
	// ErrUpdateReentered is returned by a re-entered update cycle. The
	// inner call touches no state.
	ErrUpdateReentered = errors.New("update is already running")

	// ErrTableDestroyed is returned once the table has severed its
	// factory link.
	ErrTableDestroyed = errors.New("table is destroyed")

	ErrNotJoined     = errors.New("avatar has not joined the table")
	ErrAlreadySeated = errors.New("player is already seated")
	ErrNotSeated     = errors.New("player is not seated")
	ErrServerFull    = errors.New("server reached its seated and observing players cap")
	ErrTooManyTables = errors.New("avatar reached the simultaneous tables cap")
	ErrSeatRefused   = errors.New("engine refused to add the player")
	ErrSeatTaken     = errors.New("seat is not available")

	// ErrClosedTable refuses leave and stand-up on tournament tables.
	ErrClosedTable = errors.New("operation refused on a closed table")

	ErrHandRunning      = errors.New("player participates in the running hand")
	ErrTransientTable   = errors.New("operation refused on a transient table")
	ErrBuyInAlreadyPaid = errors.New("buy-in already paid")
	ErrNoRebuyHeadroom  = errors.New("stack is at the table maximum")
	ErrRebuyRefused     = errors.New("rebuy refused")

	// ErrPlayerBroke reports a rebuy that debited nothing because the
	// bankroll is empty. Callers must force the player to leave.
	ErrPlayerBroke = errors.New("player has no money left")

	// ErrNotStationary refuses hand replays while the table is dealing
	// or about to deal.
	ErrNotStationary = errors.New("table is not stationary")
)
