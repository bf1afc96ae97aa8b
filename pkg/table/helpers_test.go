package table

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/cardroom/tablesrv/pkg/engine"
)

func testLogger() slog.Logger {
	backend := slog.NewBackend(io.Discard)
	logger := backend.Logger("TEST")
	logger.SetLevel(slog.LevelDebug)
	return logger
}

// fakeEngine is a scriptable hand engine. It keeps honest seating and
// money bookkeeping but deals no cards: tests append history events and
// flip the running state to describe the hand they want the table to
// reconcile.
type fakeEngine struct {
	variant    string
	structure  string
	seats      int
	open       bool
	tournament bool

	state      engine.GameState
	running    bool
	handSerial int64

	players map[int64]*engine.Player
	playing []int64

	history    []engine.Event
	canReduce  bool
	inPosition int64

	buyIn, bestBuyIn, maxBuyIn int64
	betMin, betMax, betStep    int64
	roundCap                   int
	chipUnit                   int64

	rebuyPossible bool
	refuseAdd     bool
	muckables     []int64

	callback func(int64, string)
	shuffler engine.Shuffler
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		seats:     10,
		open:      true,
		state:     engine.StateNull,
		players:   make(map[int64]*engine.Player),
		buyIn:     100,
		bestBuyIn: 150,
		maxBuyIn:  200,
		betMin:    2,
		betMax:    100,
		betStep:   2,
		roundCap:  3,
		chipUnit:  1,
	}
}

func (e *fakeEngine) append(events ...engine.Event) {
	e.history = append(e.history, events...)
}

func (e *fakeEngine) SetVariant(v string) error          { e.variant = v; return nil }
func (e *fakeEngine) SetBettingStructure(s string) error { e.structure = s; return nil }
func (e *fakeEngine) SetMaxPlayers(n int)                { e.seats = n }
func (e *fakeEngine) SetForcedDealerSeat(int)            {}
func (e *fakeEngine) SetTime(time.Time)                  {}

func (e *fakeEngine) GetPlayer(serial int64) *engine.Player { return e.players[serial] }

func (e *fakeEngine) State() engine.GameState { return e.state }
func (e *fakeEngine) IsRunning() bool         { return e.running }
func (e *fakeEngine) IsEndOrNull() bool {
	return e.state == engine.StateEnd || e.state == engine.StateNull
}
func (e *fakeEngine) IsEndOrMuck() bool {
	return e.state == engine.StateEnd || e.state == engine.StateMuck
}
func (e *fakeEngine) IsTournament() bool { return e.tournament }
func (e *fakeEngine) IsOpen() bool       { return e.open }
func (e *fakeEngine) HandSerial() int64  { return e.handSerial }

func (e *fakeEngine) Seats() []int64 {
	seats := make([]int64, e.seats)
	for _, p := range e.players {
		if p.Seat >= 0 && p.Seat < e.seats {
			seats[p.Seat] = p.Serial
		}
	}
	return seats
}

func (e *fakeEngine) SeatsLeft() []int {
	taken := make(map[int]bool)
	for _, p := range e.players {
		taken[p.Seat] = true
	}
	var free []int
	for i := 0; i < e.seats; i++ {
		if !taken[i] {
			free = append(free, i)
		}
	}
	return free
}

func (e *fakeEngine) SerialsAll() []int64 {
	serials := make([]int64, 0, len(e.players))
	for serial := range e.players {
		serials = append(serials, serial)
	}
	sort.Slice(serials, func(i, j int) bool {
		return e.players[serials[i]].Seat < e.players[serials[j]].Seat
	})
	return serials
}

func (e *fakeEngine) SerialsSit() []int64 {
	var serials []int64
	for _, serial := range e.SerialsAll() {
		p := e.players[serial]
		if !p.SitOut && p.Money > 0 {
			serials = append(serials, serial)
		}
	}
	return serials
}

func (e *fakeEngine) SerialsPlaying() []int64 {
	return append([]int64(nil), e.playing...)
}

func (e *fakeEngine) PlayersAll() []*engine.Player {
	players := make([]*engine.Player, 0, len(e.players))
	for _, serial := range e.SerialsAll() {
		players = append(players, e.players[serial])
	}
	return players
}

func (e *fakeEngine) GetPlayerMoney(serial int64) int64 {
	if p := e.players[serial]; p != nil {
		return p.Money
	}
	return 0
}

func (e *fakeEngine) GetSerialInPosition() int64 { return e.inPosition }

func (e *fakeEngine) IsSeated(serial int64) bool { return e.players[serial] != nil }
func (e *fakeEngine) IsSit(serial int64) bool {
	p := e.players[serial]
	return p != nil && !p.SitOut
}
func (e *fakeEngine) IsBroke(serial int64) bool {
	p := e.players[serial]
	return p != nil && p.Money <= 0
}
func (e *fakeEngine) CanAddPlayer(int64) bool { return !e.refuseAdd }
func (e *fakeEngine) CanRaise(int64) bool     { return true }
func (e *fakeEngine) CanCheck(int64) bool     { return true }

func (e *fakeEngine) IsRebuyPossible() bool { return e.rebuyPossible }
func (e *fakeEngine) BuyIn() int64          { return e.buyIn }
func (e *fakeEngine) BestBuyIn() int64      { return e.bestBuyIn }
func (e *fakeEngine) MaxBuyIn() int64       { return e.maxBuyIn }
func (e *fakeEngine) BetLimits() (int64, int64, int64) {
	return e.betMin, e.betMax, e.betStep
}
func (e *fakeEngine) RoundCap() int    { return e.roundCap }
func (e *fakeEngine) ChipUnit() int64  { return e.chipUnit }

func (e *fakeEngine) HistoryGet() []engine.Event  { return e.history }
func (e *fakeEngine) HistoryCanBeReduced() bool   { return e.canReduce }
func (e *fakeEngine) HistoryReduce()              { e.history = nil }
func (e *fakeEngine) MuckableSerials() []int64    { return append([]int64(nil), e.muckables...) }

func (e *fakeEngine) BeginTurn(handSerial int64) error {
	e.handSerial = handSerial
	e.running = true
	e.state = "pre-flop"
	e.playing = e.SerialsSit()
	if len(e.playing) > 0 {
		e.inPosition = e.playing[0]
	}
	return nil
}

func (e *fakeEngine) AddPlayer(serial int64, seat int, name string) (*engine.Player, bool) {
	if e.refuseAdd || e.players[serial] != nil {
		return nil, false
	}
	if seat < 0 {
		free := e.SeatsLeft()
		if len(free) == 0 {
			return nil, false
		}
		seat = free[0]
	}
	p := &engine.Player{Serial: serial, Name: name, Seat: seat}
	e.players[serial] = p
	return p, true
}

func (e *fakeEngine) RemovePlayer(serial int64) bool {
	p := e.players[serial]
	if p == nil {
		return false
	}
	if e.running && engine.ContainsSerial(e.playing, serial) {
		p.RemoveNextTurn = true
		return false
	}
	delete(e.players, serial)
	return true
}

func (e *fakeEngine) Sit(serial int64) bool {
	p := e.players[serial]
	if p == nil {
		return false
	}
	p.SitOut = false
	p.SitOutNextTurn = false
	return true
}

func (e *fakeEngine) SitOutNextTurn(serial int64) bool {
	p := e.players[serial]
	if p == nil {
		return false
	}
	if e.running && engine.ContainsSerial(e.playing, serial) {
		p.SitOutNextTurn = true
		return false
	}
	p.SitOut = true
	return true
}

func (e *fakeEngine) AutoPlayer(serial int64) {
	if p := e.players[serial]; p != nil {
		p.Auto = true
	}
}

func (e *fakeEngine) AutoBlindAnte(serial int64, enabled bool) {
	if p := e.players[serial]; p != nil {
		p.AutoBlindAnte = enabled
	}
}

func (e *fakeEngine) ComeBack(serial int64) bool {
	p := e.players[serial]
	if p == nil {
		return false
	}
	p.Auto = false
	return true
}

func (e *fakeEngine) Muck(serial int64, wantToMuck bool) {
	for i, s := range e.muckables {
		if s == serial {
			e.muckables = append(e.muckables[:i], e.muckables[i+1:]...)
			return
		}
	}
}

// Fold removes the serial from the live hand; when one player remains
// the hand ends. This is enough structure for the forced money reset's
// fold-out loop.
func (e *fakeEngine) Fold(serial int64) bool {
	for i, s := range e.playing {
		if s != serial {
			continue
		}
		e.playing = append(e.playing[:i], e.playing[i+1:]...)
		if len(e.playing) <= 1 {
			e.running = false
			e.state = engine.StateEnd
			e.inPosition = 0
		} else {
			e.inPosition = e.playing[i%len(e.playing)]
		}
		return true
	}
	return false
}

func (e *fakeEngine) Rebuy(serial int64, amount int64) bool {
	p := e.players[serial]
	if p == nil || !e.rebuyPossible {
		return false
	}
	p.Money += amount
	e.append(&engine.RebuyEvent{Serial: serial, Amount: amount})
	return true
}

func (e *fakeEngine) Open()  { e.open = true }
func (e *fakeEngine) Close() { e.open = false; e.tournament = true }
func (e *fakeEngine) Reset() {
	e.running = false
	e.state = engine.StateNull
	e.history = nil
	e.playing = nil
	e.inPosition = 0
}

func (e *fakeEngine) RegisterCallback(fn func(int64, string)) { e.callback = fn }
func (e *fakeEngine) SetShuffler(s engine.Shuffler)           { e.shuffler = s }
func (e *fakeEngine) SetLevel(int)                            {}
func (e *fakeEngine) SetHandsCount(int)                       {}
func (e *fakeEngine) SetHandSerial(serial int64)              { e.handSerial = serial }

// endHand scripts the end of the running hand: optional end/finish
// events are the caller's business, this only flips the flags.
func (e *fakeEngine) endHand() {
	e.running = false
	e.state = engine.StateEnd
	e.playing = nil
	e.inPosition = 0
}

type moneyKey struct {
	serial int64
	gameID int64
}

// fakeFactory is an in-memory server: bankrolls, table money rows, a
// hand store and counters for every hook the table may call.
type fakeFactory struct {
	mu sync.Mutex

	bankroll   map[int64]int64
	tableMoney map[moneyKey]int64
	rake       map[int64]int64

	hands    map[int64][]engine.Event
	nextHand int64

	names     map[int64]string
	temporary map[int64]bool
	ladders   map[int64]Ladder

	joined       int
	maxJoined    int
	simultaneous int
	missedMax    int
	shuttingDown bool

	monitor     []MonitorEvent
	chat        []string
	leaves      []int64
	destroyed   []int64
	deleted     []int64
	despawned   []int64
	statPlayers int
	statCalls   int
	eventCalls  int

	tourneyRebuying   []int64
	endTurnCalls      int
	tourneyStats      int
	tourneyRebuyCalls int
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		bankroll:     make(map[int64]int64),
		tableMoney:   make(map[moneyKey]int64),
		rake:         make(map[int64]int64),
		hands:        make(map[int64][]engine.Event),
		names:        make(map[int64]string),
		temporary:    make(map[int64]bool),
		ladders:      make(map[int64]Ladder),
		maxJoined:    1000,
		simultaneous: 4,
		missedMax:    5,
	}
}

func (f *fakeFactory) DestroyTable(gameID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, gameID)
}

func (f *fakeFactory) DeleteTable(gameID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, gameID)
}

func (f *fakeFactory) DespawnTable(gameID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.despawned = append(f.despawned, gameID)
}

func (f *fakeFactory) GetTable(int64) *Table { return nil }

func (f *fakeFactory) EventTable(*Table) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventCalls++
}

func (f *fakeFactory) CreateHand(int64, int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextHand++
	return f.nextHand, nil
}

func (f *fakeFactory) SaveHand(handSerial int64, history []engine.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hands[handSerial] = append([]engine.Event(nil), history...)
	return nil
}

func (f *fakeFactory) LoadHand(handSerial int64) ([]engine.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	history, ok := f.hands[handSerial]
	if !ok {
		return nil, fmt.Errorf("no hand %d", handSerial)
	}
	return history, nil
}

func (f *fakeFactory) UpdatePlayerMoney(serial, gameID, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tableMoney[moneyKey{serial, gameID}] += delta
	return nil
}

func (f *fakeFactory) SetPlayerMoney(serial, gameID, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tableMoney[moneyKey{serial, gameID}] = amount
	return nil
}

func (f *fakeFactory) UpdatePlayerRake(_, serial, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rake[serial] += amount
	return nil
}

func (f *fakeFactory) BuyInPlayer(serial, gameID, _, amount int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	paid := amount
	if bankroll := f.bankroll[serial]; paid > bankroll {
		paid = bankroll
	}
	if paid < 0 {
		paid = 0
	}
	f.bankroll[serial] -= paid
	f.tableMoney[moneyKey{serial, gameID}] += paid
	return paid, nil
}

func (f *fakeFactory) SeatPlayer(serial, gameID, _, amount, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := moneyKey{serial, gameID}
	if _, ok := f.tableMoney[key]; !ok {
		f.tableMoney[key] = amount
	}
	return nil
}

func (f *fakeFactory) LeavePlayer(serial, gameID, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := moneyKey{serial, gameID}
	f.bankroll[serial] += f.tableMoney[key]
	delete(f.tableMoney, key)
	f.leaves = append(f.leaves, serial)
	return nil
}

func (f *fakeFactory) BuyOutPlayer(serial, gameID, _, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := moneyKey{serial, gameID}
	if amount > f.tableMoney[key] {
		amount = f.tableMoney[key]
	}
	f.tableMoney[key] -= amount
	f.bankroll[serial] += amount
	return nil
}

func (f *fakeFactory) MovePlayer(serial, fromGameID, toGameID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	from := moneyKey{serial, fromGameID}
	to := moneyKey{serial, toGameID}
	f.tableMoney[to] += f.tableMoney[from]
	delete(f.tableMoney, from)
	return f.tableMoney[to], nil
}

func (f *fakeFactory) GetName(serial int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name, ok := f.names[serial]; ok {
		return name
	}
	return fmt.Sprintf("player%d", serial)
}

func (f *fakeFactory) GetPlayerInfo(serial int64) PlayerInfo {
	return PlayerInfo{Name: f.GetName(serial)}
}

func (f *fakeFactory) GetLadder(currencySerial, serial int64) (Ladder, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.ladders[serial]
	return l, ok
}

func (f *fakeFactory) IsTemporaryUser(serial int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.temporary[serial]
}

func (f *fakeFactory) JoinedCountReachedMax() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joined >= f.maxJoined
}

func (f *fakeFactory) JoinedCountIncrease() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined++
}

func (f *fakeFactory) JoinedCountDecrease() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined--
}

func (f *fakeFactory) Simultaneous() int   { return f.simultaneous }
func (f *fakeFactory) MissedRoundMax() int { return f.missedMax }

func (f *fakeFactory) TourneyEndTurn(*Tourney, int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endTurnCalls++
}

func (f *fakeFactory) TourneyUpdateStats(*Tourney, int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tourneyStats++
}

func (f *fakeFactory) TourneyRebuyAllPlayers(*Tourney, int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tourneyRebuyCalls++
}

func (f *fakeFactory) TourneySerialsRebuying(*Tourney, int64) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.tourneyRebuying...)
}

func (f *fakeFactory) DatabaseEvent(ev MonitorEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monitor = append(f.monitor, ev)
}

func (f *fakeFactory) UpdateTableStats(_ int64, players, _ int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statCalls++
	f.statPlayers = players
}

func (f *fakeFactory) ChatMessageArchive(_, _ int64, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chat = append(f.chat, message)
}

func (f *fakeFactory) FilterChat(message string) string { return message }

func (f *fakeFactory) ShuttingDown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shuttingDown
}

func (f *fakeFactory) tableMoneyOf(serial, gameID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tableMoney[moneyKey{serial, gameID}]
}

// fixture bundles a table with its fakes.
type fixture struct {
	table   *Table
	engine  *fakeEngine
	factory *fakeFactory
}

func newFixture(mutate ...func(*TableConfig)) (*fixture, error) {
	eng := newFakeEngine()
	factory := newFakeFactory()
	cfg := TableConfig{
		Descriptor: Descriptor{
			GameID:           1,
			Name:             "one",
			Variant:          "holdem",
			BettingStructure: "2-4-limit",
			Seats:            10,
		},
		Settings: DefaultSettings(),
		Engine:   eng,
		Factory:  factory,
		Log:      testLogger(),
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	tbl, err := NewTable(cfg)
	if err != nil {
		return nil, err
	}
	return &fixture{table: tbl, engine: eng, factory: factory}, nil
}

// joinSeated joins an avatar and gives it a funded seat.
func (fx *fixture) joinSeated(serial int64, bankroll int64) (*Avatar, error) {
	fx.factory.mu.Lock()
	fx.factory.bankroll[serial] = bankroll
	fx.factory.mu.Unlock()
	a := NewAvatar(serial, fmt.Sprintf("player%d", serial), testLogger())
	if err := fx.table.JoinPlayer(a); err != nil {
		return nil, err
	}
	if err := fx.table.SeatPlayer(a, -1); err != nil {
		return nil, err
	}
	return a, nil
}

// drain empties an avatar's outbound queue and returns the packet type
// names in order.
func drain(a *Avatar) []string {
	var types []string
	for {
		select {
		case p := <-a.C():
			types = append(types, p.Type())
		default:
			return types
		}
	}
}

func hasPacket(types []string, want string) bool {
	for _, typ := range types {
		if typ == want {
			return true
		}
	}
	return false
}
