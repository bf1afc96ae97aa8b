package engine

import (
	"encoding/json"
	"fmt"
)

// eventEnvelope wraps one event with its tag so a heterogenous history
// survives a round trip through JSON.
type eventEnvelope struct {
	Tag   Tag             `json:"tag"`
	Event json.RawMessage `json:"event"`
}

// MarshalHistory encodes a history slice as a JSON array of tagged
// envelopes. The encoding is stable so stored hands stay readable.
func MarshalHistory(history []Event) ([]byte, error) {
	envelopes := make([]eventEnvelope, 0, len(history))
	for i, event := range history {
		raw, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("marshal history event %d (%s): %w", i, event.Tag(), err)
		}
		envelopes = append(envelopes, eventEnvelope{Tag: event.Tag(), Event: raw})
	}
	return json.Marshal(envelopes)
}

// UnmarshalHistory decodes a history produced by MarshalHistory. An
// unknown tag is an error here, unlike in the live compressor: stored
// hands were written by this package and must parse completely.
func UnmarshalHistory(data []byte) ([]Event, error) {
	var envelopes []eventEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return nil, fmt.Errorf("unmarshal history envelopes: %w", err)
	}
	history := make([]Event, 0, len(envelopes))
	for i, env := range envelopes {
		event := newEvent(env.Tag)
		if event == nil {
			return nil, fmt.Errorf("unmarshal history event %d: unknown tag %q", i, env.Tag)
		}
		if err := json.Unmarshal(env.Event, event); err != nil {
			return nil, fmt.Errorf("unmarshal history event %d (%s): %w", i, env.Tag, err)
		}
		history = append(history, event)
	}
	return history, nil
}

// newEvent returns a zero event for tag, or nil for tags this package
// does not know.
func newEvent(tag Tag) Event {
	switch tag {
	case TagGame:
		return &GameEvent{}
	case TagWaitFor:
		return &WaitForEvent{}
	case TagRebuy:
		return &RebuyEvent{}
	case TagBuyOut:
		return &BuyOutEvent{}
	case TagPlayerList:
		return &PlayerListEvent{}
	case TagRound:
		return &RoundEvent{}
	case TagShowdown:
		return &ShowdownEvent{}
	case TagRake:
		return &RakeEvent{}
	case TagMuck:
		return &MuckEvent{}
	case TagPosition:
		return &PositionEvent{}
	case TagBlindRequest:
		return &BlindRequestEvent{}
	case TagWaitBlind:
		return &WaitBlindEvent{}
	case TagBlind:
		return &BlindEvent{}
	case TagAnteRequest:
		return &AnteRequestEvent{}
	case TagAnte:
		return &AnteEvent{}
	case TagAllIn:
		return &AllInEvent{}
	case TagCall:
		return &CallEvent{}
	case TagCheck:
		return &CheckEvent{}
	case TagFold:
		return &FoldEvent{}
	case TagRaise:
		return &RaiseEvent{}
	case TagCanceled:
		return &CanceledEvent{}
	case TagSitOut:
		return &SitOutEvent{}
	case TagSit:
		return &SitEvent{}
	case TagLeave:
		return &LeaveEvent{}
	case TagEnd:
		return &EndEvent{}
	case TagFinish:
		return &FinishEvent{}
	}
	return nil
}
