package server

import (
	"fmt"

	"github.com/golang/snappy"

	"github.com/cardroom/tablesrv/pkg/engine"
)

// encodeHand turns a compressed hand history into the blob stored in the
// hands table: the wire encoding of the events, snappy-framed.
func encodeHand(history []engine.Event) ([]byte, error) {
	raw, err := engine.MarshalHistory(history)
	if err != nil {
		return nil, fmt.Errorf("encode hand: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

// decodeHand reverses encodeHand.
func decodeHand(blob []byte) ([]engine.Event, error) {
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, fmt.Errorf("decode hand: %w", err)
	}
	history, err := engine.UnmarshalHistory(raw)
	if err != nil {
		return nil, fmt.Errorf("decode hand: %w", err)
	}
	return history, nil
}

// CreateHand allocates a hand serial for a table.
func (s *Server) CreateHand(gameID, tourneySerial int64) (int64, error) {
	return s.db.CreateHand(gameID, tourneySerial)
}

// SaveHand archives a finished hand's history and primes the replay
// cache with it.
func (s *Server) SaveHand(handSerial int64, history []engine.Event) error {
	blob, err := encodeHand(history)
	if err != nil {
		return err
	}
	if err := s.db.SaveHand(handSerial, blob); err != nil {
		return err
	}
	s.handCache.Add(handSerial, history)
	return nil
}

// LoadHand returns a hand's archived history, from the replay cache when
// it is still warm.
func (s *Server) LoadHand(handSerial int64) ([]engine.Event, error) {
	if history, ok := s.handCache.Get(handSerial); ok {
		return history, nil
	}
	blob, err := s.db.LoadHand(handSerial)
	if err != nil {
		return nil, err
	}
	history, err := decodeHand(blob)
	if err != nil {
		return nil, fmt.Errorf("hand %d: %w", handSerial, err)
	}
	s.handCache.Add(handSerial, history)
	return history, nil
}
