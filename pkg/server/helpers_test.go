package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/cardroom/tablesrv/pkg/engine"
	"github.com/cardroom/tablesrv/pkg/logging"
	"github.com/cardroom/tablesrv/pkg/server/internal/db"
	"github.com/cardroom/tablesrv/pkg/table"
)

func testBackend() *logging.LogBackend {
	return &logging.LogBackend{}
}

// stubEngine satisfies engine.Engine with an idle, empty game. Enough
// for registry and shutdown paths, which never deal a hand.
type stubEngine struct {
	open    bool
	serial  int64
	players map[int64]*engine.Player
}

func newStubEngine() *stubEngine {
	return &stubEngine{players: make(map[int64]*engine.Player)}
}

func (e *stubEngine) SetVariant(string) error          { return nil }
func (e *stubEngine) SetBettingStructure(string) error { return nil }
func (e *stubEngine) SetMaxPlayers(int)                {}
func (e *stubEngine) SetForcedDealerSeat(int)          {}
func (e *stubEngine) SetTime(time.Time)                {}
func (e *stubEngine) SetLevel(int)                     {}
func (e *stubEngine) SetHandsCount(int)                {}
func (e *stubEngine) SetHandSerial(serial int64)       { e.serial = serial }
func (e *stubEngine) SetShuffler(engine.Shuffler)      {}

func (e *stubEngine) RegisterCallback(func(gameID int64, event string)) {}

func (e *stubEngine) State() engine.GameState { return engine.StateNull }
func (e *stubEngine) IsRunning() bool         { return false }
func (e *stubEngine) IsEndOrNull() bool       { return true }
func (e *stubEngine) IsEndOrMuck() bool       { return false }
func (e *stubEngine) IsTournament() bool      { return false }
func (e *stubEngine) IsOpen() bool            { return e.open }
func (e *stubEngine) HandSerial() int64       { return e.serial }

func (e *stubEngine) Seats() []int64          { return make([]int64, 10) }
func (e *stubEngine) SeatsLeft() []int        { return []int{0, 1, 2} }
func (e *stubEngine) SerialsAll() []int64     { return nil }
func (e *stubEngine) SerialsSit() []int64     { return nil }
func (e *stubEngine) SerialsPlaying() []int64 { return nil }
func (e *stubEngine) PlayersAll() []*engine.Player {
	return nil
}
func (e *stubEngine) GetPlayer(serial int64) *engine.Player { return e.players[serial] }
func (e *stubEngine) GetPlayerMoney(int64) int64            { return 0 }
func (e *stubEngine) GetSerialInPosition() int64            { return 0 }
func (e *stubEngine) IsSeated(serial int64) bool            { _, ok := e.players[serial]; return ok }
func (e *stubEngine) IsSit(int64) bool                      { return false }
func (e *stubEngine) IsBroke(int64) bool                    { return false }
func (e *stubEngine) CanAddPlayer(int64) bool               { return true }
func (e *stubEngine) CanRaise(int64) bool                   { return false }
func (e *stubEngine) CanCheck(int64) bool                   { return false }

func (e *stubEngine) IsRebuyPossible() bool                { return true }
func (e *stubEngine) BuyIn() int64                         { return 100 }
func (e *stubEngine) BestBuyIn() int64                     { return 150 }
func (e *stubEngine) MaxBuyIn() int64                      { return 200 }
func (e *stubEngine) BetLimits() (min, max, step int64)    { return 2, 100, 2 }
func (e *stubEngine) RoundCap() int                        { return 3 }
func (e *stubEngine) ChipUnit() int64                      { return 1 }
func (e *stubEngine) HistoryGet() []engine.Event           { return nil }
func (e *stubEngine) HistoryCanBeReduced() bool            { return false }
func (e *stubEngine) HistoryReduce()                       {}
func (e *stubEngine) MuckableSerials() []int64             { return nil }
func (e *stubEngine) BeginTurn(int64) error                { return nil }
func (e *stubEngine) AddPlayer(serial int64, seat int, name string) (*engine.Player, bool) {
	p := &engine.Player{Serial: serial, Seat: seat, Name: name}
	e.players[serial] = p
	return p, true
}
func (e *stubEngine) RemovePlayer(serial int64) bool { delete(e.players, serial); return true }
func (e *stubEngine) Sit(int64) bool                 { return true }
func (e *stubEngine) SitOutNextTurn(int64) bool      { return true }
func (e *stubEngine) AutoPlayer(int64)               {}
func (e *stubEngine) AutoBlindAnte(int64, bool)      {}
func (e *stubEngine) ComeBack(int64) bool            { return true }
func (e *stubEngine) Muck(int64, bool)               {}
func (e *stubEngine) Fold(int64) bool                { return true }
func (e *stubEngine) Rebuy(int64, int64) bool        { return true }
func (e *stubEngine) Open()                          { e.open = true }
func (e *stubEngine) Close()                         { e.open = false }
func (e *stubEngine) Reset()                         {}

// memDB is an in-memory Database for tests that do not need sqlite.
type memDB struct {
	mu         sync.Mutex
	users      map[int64]db.User
	bankroll   map[[2]int64]int64
	tableMoney map[[2]int64]int64
	rake       map[[2]int64]int64
	ladder     map[[2]int64]table.Ladder
	hands      map[int64][]byte
	nextHand   int64
	stats      map[int64][2]int
	chat       []string
	monitor    []string
	closed     bool

	failSaveHand bool
}

func newMemDB() *memDB {
	return &memDB{
		users:      make(map[int64]db.User),
		bankroll:   make(map[[2]int64]int64),
		tableMoney: make(map[[2]int64]int64),
		rake:       make(map[[2]int64]int64),
		ladder:     make(map[[2]int64]table.Ladder),
		hands:      make(map[int64][]byte),
		stats:      make(map[int64][2]int),
	}
}

func (m *memDB) GetUser(serial int64) (db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[serial]
	if !ok {
		return db.User{}, fmt.Errorf("no user %d", serial)
	}
	return u, nil
}

func (m *memDB) GetBankroll(serial, currencySerial int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bankroll[[2]int64{serial, currencySerial}], nil
}

func (m *memDB) CreditBankroll(serial, currencySerial, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bankroll[[2]int64{serial, currencySerial}] += amount
	return nil
}

func (m *memDB) BuyIn(serial, tableSerial, currencySerial, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bank := m.bankroll[[2]int64{serial, currencySerial}]
	paid := amount
	if paid > bank {
		paid = bank
	}
	if paid <= 0 {
		return 0, nil
	}
	m.bankroll[[2]int64{serial, currencySerial}] -= paid
	m.tableMoney[[2]int64{serial, tableSerial}] += paid
	return paid, nil
}

func (m *memDB) SeatRow(serial, tableSerial, currencySerial, amount, minimum int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bankroll[[2]int64{serial, currencySerial}] < minimum {
		return fmt.Errorf("bankroll below minimum")
	}
	key := [2]int64{serial, tableSerial}
	if _, ok := m.tableMoney[key]; !ok {
		m.tableMoney[key] = amount
	}
	return nil
}

func (m *memDB) TableMoney(serial, tableSerial int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tableMoney[[2]int64{serial, tableSerial}], nil
}

func (m *memDB) UpdateTableMoney(serial, tableSerial, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tableMoney[[2]int64{serial, tableSerial}] += delta
	return nil
}

func (m *memDB) SetTableMoney(serial, tableSerial, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tableMoney[[2]int64{serial, tableSerial}] = amount
	return nil
}

func (m *memDB) SettleLeave(serial, tableSerial, currencySerial int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]int64{serial, tableSerial}
	m.bankroll[[2]int64{serial, currencySerial}] += m.tableMoney[key]
	delete(m.tableMoney, key)
	return nil
}

func (m *memDB) BuyOut(serial, tableSerial, currencySerial, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]int64{serial, tableSerial}
	if amount > m.tableMoney[key] {
		amount = m.tableMoney[key]
	}
	m.tableMoney[key] -= amount
	m.bankroll[[2]int64{serial, currencySerial}] += amount
	return nil
}

func (m *memDB) MoveTableMoney(serial, fromTable, toTable int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := [2]int64{serial, fromTable}
	to := [2]int64{serial, toTable}
	m.tableMoney[to] += m.tableMoney[from]
	delete(m.tableMoney, from)
	return m.tableMoney[to], nil
}

func (m *memDB) UpdateRake(currencySerial, serial, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rake[[2]int64{currencySerial, serial}] += amount
	return nil
}

func (m *memDB) Ladder(currencySerial, serial int64) (rank, percentile int, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.ladder[[2]int64{currencySerial, serial}]
	return l.Rank, l.Percentile, ok, nil
}

func (m *memDB) CreateHand(tableSerial, tourneySerial int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextHand++
	m.hands[m.nextHand] = nil
	return m.nextHand, nil
}

func (m *memDB) SaveHand(handSerial int64, description []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaveHand {
		return fmt.Errorf("save refused")
	}
	if _, ok := m.hands[handSerial]; !ok {
		return fmt.Errorf("no hand %d", handSerial)
	}
	m.hands[handSerial] = description
	return nil
}

func (m *memDB) LoadHand(handSerial int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.hands[handSerial]
	if !ok || len(blob) == 0 {
		return nil, fmt.Errorf("no hand %d", handSerial)
	}
	return blob, nil
}

func (m *memDB) UpdateTableStats(tableSerial int64, players, observers int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[tableSerial] = [2]int{players, observers}
	return nil
}

func (m *memDB) DeleteTable(tableSerial int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stats, tableSerial)
	return nil
}

func (m *memDB) ArchiveChat(serial, tableSerial int64, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chat = append(m.chat, message)
	return nil
}

func (m *memDB) InsertMonitorEvent(event string, param1, param2, param3 int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monitor = append(m.monitor, event)
	return nil
}

func (m *memDB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func newTestServer(mdb *memDB) (*Server, error) {
	return NewServer(Config{
		DB: mdb,
		NewEngine: func(table.Descriptor) engine.Engine {
			return newStubEngine()
		},
		Settings:   table.DefaultSettings(),
		LogBackend: testBackend(),
	})
}
