package packet

import (
	"fmt"
	"sort"

	"github.com/cardroom/tablesrv/pkg/engine"
)

// Cache remembers the last board and pockets sent to clients so repeated
// round and showdown events do not resend identical cards. One cache
// lives per table and is reset at every new hand.
type Cache struct {
	Board   []engine.Card
	Pockets map[int64][]engine.Card
}

func NewCache() *Cache {
	return &Cache{Pockets: make(map[int64][]engine.Card)}
}

// HistoryToPackets translates a history tail into the packets clients
// need to replay it. previousDealer is the dealer seat announced last,
// -1 before the first hand; the updated value is returned for the next
// call. Translation errors never abort the batch: the faulty event is
// reported and skipped.
func HistoryToPackets(history []engine.Event, gameID int64, previousDealer int, cache *Cache) ([]Packet, int, []error) {
	var packets []Packet
	var errs []error
	for _, ev := range history {
		switch e := ev.(type) {
		case *engine.GameEvent:
			for _, serial := range sortedSerials(e.Serial2Chips) {
				packets = append(packets, &PlayerChips{
					GameID: gameID,
					Serial: serial,
					Money:  e.Serial2Chips[serial],
				})
			}
			packets = append(packets, &InGame{GameID: gameID, Players: e.Players})
			packets = append(packets, &Dealer{
				GameID:         gameID,
				Dealer:         e.Dealer,
				PreviousDealer: previousDealer,
			})
			previousDealer = e.Dealer
			packets = append(packets, &Start{
				GameID:     gameID,
				HandSerial: e.HandSerial,
				HandsCount: e.HandsCount,
				Time:       e.Time,
				Level:      e.Level,
			})

		case *engine.WaitForEvent:
			packets = append(packets, &WaitFor{GameID: gameID, Serial: e.Serial, Reason: e.Reason})

		case *engine.RebuyEvent:
			packets = append(packets, &Rebuy{GameID: gameID, Serial: e.Serial, Amount: e.Amount})

		case *engine.BuyOutEvent:
			packets = append(packets, &BuyOut{GameID: gameID, Serial: e.Serial, Amount: e.Amount})

		case *engine.PlayerListEvent:
			packets = append(packets, &InGame{GameID: gameID, Players: e.Players})

		case *engine.RoundEvent:
			packets = append(packets, cardPackets(gameID, e.Board, e.Pockets, cache)...)
			packets = append(packets, &State{GameID: gameID, State: e.Name})

		case *engine.ShowdownEvent:
			packets = append(packets, cardPackets(gameID, e.Board, e.Pockets, cache)...)

		case *engine.RakeEvent:
			packets = append(packets, &Rake{GameID: gameID, Amount: e.Amount})

		case *engine.MuckEvent:
			packets = append(packets, &MuckRequest{GameID: gameID, Serials: e.Serials})

		case *engine.PositionEvent:
			packets = append(packets, &Position{GameID: gameID, Position: e.Position, Serial: e.Serial})

		case *engine.BlindRequestEvent:
			packets = append(packets, &BlindRequest{
				GameID: gameID,
				Serial: e.Serial,
				Amount: e.Amount,
				Dead:   e.Dead,
				State:  e.State,
			})

		case *engine.WaitBlindEvent:
			// Nothing visible until the blind turn comes around.

		case *engine.BlindEvent:
			packets = append(packets, &Blind{GameID: gameID, Serial: e.Serial, Amount: e.Amount, Dead: e.Dead})

		case *engine.AnteRequestEvent:
			packets = append(packets, &AnteRequest{GameID: gameID, Serial: e.Serial, Amount: e.Amount})

		case *engine.AnteEvent:
			packets = append(packets, &Ante{GameID: gameID, Serial: e.Serial, Amount: e.Amount})

		case *engine.AllInEvent:
			// Clients infer all-in from the bet reaching the stack.

		case *engine.CallEvent:
			packets = append(packets, &Call{GameID: gameID, Serial: e.Serial, Amount: e.Amount})

		case *engine.CheckEvent:
			packets = append(packets, &Check{GameID: gameID, Serial: e.Serial})

		case *engine.FoldEvent:
			packets = append(packets, &Fold{GameID: gameID, Serial: e.Serial})

		case *engine.RaiseEvent:
			packets = append(packets, &Raise{GameID: gameID, Serial: e.Serial, Amount: e.Amount})

		case *engine.CanceledEvent:
			packets = append(packets, &Canceled{GameID: gameID, Serial: e.Serial, Amount: e.Amount})

		case *engine.SitOutEvent:
			packets = append(packets, &SitOut{GameID: gameID, Serial: e.Serial})

		case *engine.SitEvent:
			packets = append(packets, &Sit{GameID: gameID, Serial: e.Serial})

		case *engine.LeaveEvent:
			for _, q := range e.Quitters {
				packets = append(packets, &PlayerLeave{GameID: gameID, Serial: q.Serial, Seat: q.Seat})
			}

		case *engine.EndEvent:
			packets = append(packets, &State{GameID: gameID, State: string(engine.StateEnd)})
			packets = append(packets, &Win{GameID: gameID, Serials: e.Winners})

		case *engine.FinishEvent:
			// Persistence only, nothing for clients.

		default:
			errs = append(errs, fmt.Errorf("no packet translation for history event %q", ev.Tag()))
		}
	}
	return packets, previousDealer, errs
}

// cardPackets emits pocket and board packets when they changed since the
// cache, updating it. Nil board or pockets mean "unchanged" and come from
// compressed histories.
func cardPackets(gameID int64, board []engine.Card, pockets map[int64][]engine.Card, cache *Cache) []Packet {
	var packets []Packet
	if pockets != nil && !engine.PocketsEqual(pockets, cache.Pockets) {
		cache.Pockets = copyPockets(pockets)
		for _, serial := range sortedSerials(pockets) {
			packets = append(packets, &PlayerCards{
				GameID: gameID,
				Serial: serial,
				Cards:  append([]engine.Card(nil), pockets[serial]...),
			})
		}
	}
	if board != nil && !engine.CardsEqual(board, cache.Board) {
		cache.Board = append([]engine.Card(nil), board...)
		packets = append(packets, &BoardCards{
			GameID: gameID,
			Cards:  append([]engine.Card(nil), board...),
		})
	}
	return packets
}

func copyPockets(pockets map[int64][]engine.Card) map[int64][]engine.Card {
	out := make(map[int64][]engine.Card, len(pockets))
	for serial, cards := range pockets {
		out[serial] = append([]engine.Card(nil), cards...)
	}
	return out
}

func sortedSerials[V any](m map[int64]V) []int64 {
	serials := make([]int64, 0, len(m))
	for serial := range m {
		serials = append(serials, serial)
	}
	sort.Slice(serials, func(i, j int) bool { return serials[i] < serials[j] })
	return serials
}
