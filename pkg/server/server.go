// Package server hosts the table registry and implements the factory
// surface tables call back into: the sqlite cashier, the hand archive,
// identity lookups, join accounting and the monitor event pipeline.
package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/decred/slog"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cardroom/tablesrv/pkg/engine"
	"github.com/cardroom/tablesrv/pkg/logging"
	"github.com/cardroom/tablesrv/pkg/table"
)

// Defaults applied by NewServer when a Config field is zero.
const (
	DefaultMaxJoined       = 4000
	DefaultSimultaneous    = 4
	DefaultMissedRoundMax  = 5
	DefaultReplayCacheSize = 128
	DefaultMonitorQueue    = 100
	DefaultMonitorWorkers  = 2
	DefaultChatMaxLen      = 200
)

// monitorEventTable flags a table whose visible state changed.
const monitorEventTable = "table"

var (
	ErrServerShutdown = errors.New("server is shutting down")
	ErrDuplicateTable = errors.New("table id already registered")
)

// Config carries everything a Server needs. DB and NewEngine are
// required.
type Config struct {
	DB Database

	// NewEngine builds the hand engine for a new table.
	NewEngine func(desc table.Descriptor) engine.Engine

	// Settings are shared by every table the server creates.
	Settings table.Settings

	// LogBackend hands out subsystem loggers. Nil logs to stdout.
	LogBackend *logging.LogBackend

	// MaxJoined caps connected sessions across all tables.
	MaxJoined int

	// Simultaneous caps how many tables one session may join.
	Simultaneous int

	// MissedRoundMax is the default sit-out kick cap.
	MissedRoundMax int

	// ReplayCacheSize bounds the hand replay cache.
	ReplayCacheSize int

	MonitorQueueSize int
	MonitorWorkers   int

	// ChatMaxLen truncates chat lines before broadcast.
	ChatMaxLen int

	// HasLadder enables ladder lookups; tables then announce each
	// arriving player's ranking.
	HasLadder bool
}

// Server owns the tables and answers their factory calls. All methods
// are safe for concurrent use.
type Server struct {
	cfg       Config
	log       slog.Logger
	tableLog  slog.Logger
	db        Database
	monitor   *Monitor
	handCache *lru.Cache[int64, []engine.Event]

	mu           sync.Mutex
	tables       map[int64]*table.Table
	nextGameID   int64
	joined       int
	shuttingDown bool
}

// NewServer builds and starts a server: replay cache allocated, monitor
// workers running, registry empty.
func NewServer(cfg Config) (*Server, error) {
	if cfg.DB == nil {
		return nil, errors.New("server config needs a database")
	}
	if cfg.NewEngine == nil {
		return nil, errors.New("server config needs an engine constructor")
	}
	if cfg.LogBackend == nil {
		cfg.LogBackend = &logging.LogBackend{}
	}
	if cfg.MaxJoined <= 0 {
		cfg.MaxJoined = DefaultMaxJoined
	}
	if cfg.Simultaneous <= 0 {
		cfg.Simultaneous = DefaultSimultaneous
	}
	if cfg.MissedRoundMax <= 0 {
		cfg.MissedRoundMax = DefaultMissedRoundMax
	}
	if cfg.ReplayCacheSize <= 0 {
		cfg.ReplayCacheSize = DefaultReplayCacheSize
	}
	if cfg.MonitorQueueSize <= 0 {
		cfg.MonitorQueueSize = DefaultMonitorQueue
	}
	if cfg.MonitorWorkers <= 0 {
		cfg.MonitorWorkers = DefaultMonitorWorkers
	}
	if cfg.ChatMaxLen <= 0 {
		cfg.ChatMaxLen = DefaultChatMaxLen
	}

	cache, err := lru.New[int64, []engine.Event](cfg.ReplayCacheSize)
	if err != nil {
		return nil, fmt.Errorf("replay cache: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		log:       cfg.LogBackend.Logger("SRVR"),
		tableLog:  cfg.LogBackend.Logger("TABL"),
		db:        cfg.DB,
		handCache: cache,
		tables:    make(map[int64]*table.Table),
	}
	s.monitor = NewMonitor(cfg.MonitorQueueSize, cfg.MonitorWorkers,
		cfg.LogBackend.Logger("MNTR"))
	s.monitor.Start()
	return s, nil
}

// Monitor exposes the monitor pipeline for subscribers.
func (s *Server) Monitor() *Monitor { return s.monitor }

// CreateTable spawns a table from desc and registers it. A zero GameID
// gets the next free serial.
func (s *Server) CreateTable(desc table.Descriptor) (*table.Table, error) {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return nil, ErrServerShutdown
	}
	if desc.GameID == 0 {
		s.nextGameID++
		desc.GameID = s.nextGameID
	} else if desc.GameID > s.nextGameID {
		s.nextGameID = desc.GameID
	}
	if _, ok := s.tables[desc.GameID]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("table %d: %w", desc.GameID, ErrDuplicateTable)
	}
	s.mu.Unlock()

	t, err := table.NewTable(table.TableConfig{
		Descriptor: desc,
		Settings:   s.cfg.Settings,
		Engine:     s.cfg.NewEngine(desc),
		Factory:    s,
		Log:        s.tableLog,
	})
	if err != nil {
		return nil, fmt.Errorf("create table %d: %w", desc.GameID, err)
	}

	s.mu.Lock()
	if _, ok := s.tables[desc.GameID]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("table %d: %w", desc.GameID, ErrDuplicateTable)
	}
	s.tables[desc.GameID] = t
	count := len(s.tables)
	s.mu.Unlock()

	if err := s.db.UpdateTableStats(desc.GameID, 0, 0); err != nil {
		s.log.Warnf("table %d: initial stats row: %v", desc.GameID, err)
	}
	s.log.Infof("table %d (%s %s) created, %d tables live",
		desc.GameID, desc.Variant, desc.BettingStructure, count)
	return t, nil
}

// Tables snapshots the registry.
func (s *Server) Tables() []*table.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*table.Table, 0, len(s.tables))
	for _, t := range s.tables {
		out = append(out, t)
	}
	return out
}

// Shutdown destroys every table, stops the monitor and closes the
// store. Idempotent.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return
	}
	s.shuttingDown = true
	live := make([]*table.Table, 0, len(s.tables))
	for _, t := range s.tables {
		live = append(live, t)
	}
	s.mu.Unlock()

	s.log.Infof("shutting down, destroying %d tables", len(live))
	for _, t := range live {
		t.Destroy()
	}
	s.monitor.Stop()
	if err := s.db.Close(); err != nil {
		s.log.Warnf("closing store: %v", err)
	}
}

// Table management callbacks.

// DestroyTable marks the table gone in durable state.
func (s *Server) DestroyTable(gameID int64) {
	if err := s.db.DeleteTable(gameID); err != nil {
		s.log.Warnf("table %d: durable destroy: %v", gameID, err)
	}
}

// DeleteTable removes the table from the registry.
func (s *Server) DeleteTable(gameID int64) {
	s.mu.Lock()
	delete(s.tables, gameID)
	count := len(s.tables)
	s.mu.Unlock()
	s.log.Infof("table %d deleted, %d tables live", gameID, count)
}

// DespawnTable unregisters an idle, empty table.
func (s *Server) DespawnTable(gameID int64) {
	s.mu.Lock()
	delete(s.tables, gameID)
	s.mu.Unlock()
	if err := s.db.DeleteTable(gameID); err != nil {
		s.log.Warnf("table %d: despawn cleanup: %v", gameID, err)
	}
	s.log.Infof("table %d despawned", gameID)
}

func (s *Server) GetTable(gameID int64) *table.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[gameID]
}

// EventTable signals that the table's visible state changed. Handled
// asynchronously; the table may be holding its own lock.
func (s *Server) EventTable(t *table.Table) {
	s.monitor.Publish(table.MonitorEvent{
		Event:  monitorEventTable,
		Param1: t.ID(),
	})
}

// Money callbacks.

func (s *Server) UpdatePlayerMoney(serial, gameID, delta int64) error {
	return s.db.UpdateTableMoney(serial, gameID, delta)
}

func (s *Server) SetPlayerMoney(serial, gameID, amount int64) error {
	return s.db.SetTableMoney(serial, gameID, amount)
}

func (s *Server) UpdatePlayerRake(currencySerial, serial, amount int64) error {
	return s.db.UpdateRake(currencySerial, serial, amount)
}

func (s *Server) BuyInPlayer(serial, gameID, currencySerial, amount int64) (int64, error) {
	return s.db.BuyIn(serial, gameID, currencySerial, amount)
}

func (s *Server) SeatPlayer(serial, gameID, currencySerial, amount, minimum int64) error {
	return s.db.SeatRow(serial, gameID, currencySerial, amount, minimum)
}

func (s *Server) LeavePlayer(serial, gameID, currencySerial int64) error {
	return s.db.SettleLeave(serial, gameID, currencySerial)
}

func (s *Server) BuyOutPlayer(serial, gameID, currencySerial, amount int64) error {
	return s.db.BuyOut(serial, gameID, currencySerial, amount)
}

func (s *Server) MovePlayer(serial, fromGameID, toGameID int64) (int64, error) {
	return s.db.MoveTableMoney(serial, fromGameID, toGameID)
}

// Identity callbacks.

func (s *Server) GetName(serial int64) string {
	u, err := s.db.GetUser(serial)
	if err != nil {
		return fmt.Sprintf("player-%d", serial)
	}
	return u.Name
}

func (s *Server) GetPlayerInfo(serial int64) table.PlayerInfo {
	u, err := s.db.GetUser(serial)
	if err != nil {
		return table.PlayerInfo{Name: fmt.Sprintf("player-%d", serial)}
	}
	return table.PlayerInfo{Name: u.Name, URL: u.URL, Outfit: u.Outfit}
}

func (s *Server) IsTemporaryUser(serial int64) bool {
	u, err := s.db.GetUser(serial)
	if err != nil {
		return false
	}
	return u.Temporary
}

func (s *Server) GetLadder(currencySerial, serial int64) (table.Ladder, bool) {
	if !s.cfg.HasLadder {
		return table.Ladder{}, false
	}
	rank, percentile, ok, err := s.db.Ladder(currencySerial, serial)
	if err != nil {
		s.log.Warnf("ladder lookup for user %d: %v", serial, err)
		return table.Ladder{}, false
	}
	if !ok {
		return table.Ladder{}, false
	}
	return table.Ladder{Rank: rank, Percentile: percentile}, true
}

// Limits.

func (s *Server) JoinedCountReachedMax() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined >= s.cfg.MaxJoined
}

func (s *Server) JoinedCountIncrease() {
	s.mu.Lock()
	s.joined++
	s.mu.Unlock()
}

func (s *Server) JoinedCountDecrease() {
	s.mu.Lock()
	if s.joined > 0 {
		s.joined--
	}
	s.mu.Unlock()
}

func (s *Server) Simultaneous() int   { return s.cfg.Simultaneous }
func (s *Server) MissedRoundMax() int { return s.cfg.MissedRoundMax }

// Tournament bridge. Tournament scheduling lives outside this server;
// the hooks log so a misconfigured closed table is visible.

func (s *Server) TourneyEndTurn(tourney *table.Tourney, gameID int64) {
	s.log.Debugf("tourney %d: end turn at table %d", tourney.Serial, gameID)
}

func (s *Server) TourneyUpdateStats(tourney *table.Tourney, gameID int64) {
	s.log.Debugf("tourney %d: stats update from table %d", tourney.Serial, gameID)
}

func (s *Server) TourneyRebuyAllPlayers(tourney *table.Tourney, gameID int64) {
	s.log.Warnf("tourney %d: rebuy-all requested at table %d with no scheduler attached",
		tourney.Serial, gameID)
}

func (s *Server) TourneySerialsRebuying(tourney *table.Tourney, gameID int64) []int64 {
	return nil
}

// Persistence hooks.

func (s *Server) DatabaseEvent(ev table.MonitorEvent) {
	if err := s.db.InsertMonitorEvent(ev.Event, ev.Param1, ev.Param2, ev.Param3); err != nil {
		s.log.Warnf("monitor event %q: %v", ev.Event, err)
	}
	s.monitor.Publish(ev)
}

func (s *Server) UpdateTableStats(gameID int64, players, observers int) {
	if err := s.db.UpdateTableStats(gameID, players, observers); err != nil {
		s.log.Warnf("table %d: stats update: %v", gameID, err)
	}
}

func (s *Server) ChatMessageArchive(serial, gameID int64, message string) {
	if err := s.db.ArchiveChat(serial, gameID, message); err != nil {
		s.log.Warnf("chat archive for user %d: %v", serial, err)
	}
}

// FilterChat strips control characters and clamps the line length.
func (s *Server) FilterChat(message string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, message)
	cleaned = strings.TrimSpace(cleaned)
	if len(cleaned) > s.cfg.ChatMaxLen {
		cleaned = cleaned[:s.cfg.ChatMaxLen]
	}
	return cleaned
}

func (s *Server) ShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

var _ table.Factory = (*Server)(nil)
