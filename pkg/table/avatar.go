package table

import (
	"sync"

	"github.com/decred/slog"
	"github.com/google/uuid"

	"github.com/cardroom/tablesrv/pkg/packet"
)

// avatarSendBuffer bounds how many packets may queue per session before
// the table starts dropping. A stalled client loses packets, never
// stalls the table.
const avatarSendBuffer = 64

// Avatar is one live client session bound to a player serial. The same
// serial may hold several avatars at once; tables fan packets out to all
// of them. Transports consume C and deliver however they like.
type Avatar struct {
	serial  int64
	name    string
	session uuid.UUID
	log     slog.Logger
	send    chan packet.Packet

	mu      sync.Mutex
	tables  map[int64]struct{}
	broken  bool
	dropped uint64
}

func NewAvatar(serial int64, name string, log slog.Logger) *Avatar {
	return &Avatar{
		serial:  serial,
		name:    name,
		session: uuid.New(),
		log:     log,
		send:    make(chan packet.Packet, avatarSendBuffer),
		tables:  make(map[int64]struct{}),
	}
}

func (a *Avatar) Serial() int64      { return a.serial }
func (a *Avatar) Name() string       { return a.name }
func (a *Avatar) Session() uuid.UUID { return a.session }

// C is the outbound packet stream for this session.
func (a *Avatar) C() <-chan packet.Packet { return a.send }

// Send queues a packet without blocking. When the session's buffer is
// full the packet is dropped and counted; the client is expected to
// resynchronize from a table snapshot on reconnect.
func (a *Avatar) Send(p packet.Packet) {
	select {
	case a.send <- p:
	default:
		a.mu.Lock()
		a.dropped++
		dropped := a.dropped
		a.mu.Unlock()
		a.log.Debugf("avatar %d session %s dropped packet %s (%d dropped)",
			a.serial, a.session, p.Type(), dropped)
	}
}

// Dropped reports how many packets were lost to a full buffer.
func (a *Avatar) Dropped() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Tables lists the game ids this session has joined.
func (a *Avatar) Tables() []int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]int64, 0, len(a.tables))
	for id := range a.tables {
		ids = append(ids, id)
	}
	return ids
}

func (a *Avatar) tableCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tables)
}

func (a *Avatar) attachTable(gameID int64) {
	a.mu.Lock()
	a.tables[gameID] = struct{}{}
	a.mu.Unlock()
}

func (a *Avatar) detachTable(gameID int64) {
	a.mu.Lock()
	delete(a.tables, gameID)
	a.mu.Unlock()
}

// flagBrokenProcessing marks a session that announced a processing hand
// and never reported ready in time. Further processing-hand requests
// from it are ignored.
func (a *Avatar) flagBrokenProcessing() {
	a.mu.Lock()
	a.broken = true
	a.mu.Unlock()
}

// BrokenProcessing reports whether the session forfeited its right to
// delay hands.
func (a *Avatar) BrokenProcessing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.broken
}

// avatarIndex maps a player serial to the ordered list of its live
// sessions at one table. Only seated players appear here; observers
// live in the table's flat list.
type avatarIndex struct {
	serial2avatars map[int64][]*Avatar
}

func newAvatarIndex() *avatarIndex {
	return &avatarIndex{serial2avatars: make(map[int64][]*Avatar)}
}

func (idx *avatarIndex) get(serial int64) []*Avatar {
	return idx.serial2avatars[serial]
}

func (idx *avatarIndex) add(a *Avatar) {
	for _, existing := range idx.serial2avatars[a.serial] {
		if existing == a {
			return
		}
	}
	idx.serial2avatars[a.serial] = append(idx.serial2avatars[a.serial], a)
}

// remove drops a from the index and panics when a was never added: the
// caller tracked seating wrong and money accounting can no longer be
// trusted.
func (idx *avatarIndex) remove(a *Avatar) {
	avatars := idx.serial2avatars[a.serial]
	for i, existing := range avatars {
		if existing == a {
			avatars = append(avatars[:i], avatars[i+1:]...)
			if len(avatars) == 0 {
				delete(idx.serial2avatars, a.serial)
			} else {
				idx.serial2avatars[a.serial] = avatars
			}
			return
		}
	}
	panic("avatarIndex: removing avatar that was never added")
}

func (idx *avatarIndex) isEmpty() bool {
	return len(idx.serial2avatars) == 0
}

// all returns every indexed session, grouped by serial.
func (idx *avatarIndex) all() []*Avatar {
	var out []*Avatar
	for _, avatars := range idx.serial2avatars {
		out = append(out, avatars...)
	}
	return out
}
