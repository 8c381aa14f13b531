package storage

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/veilvote/veilvote/types"
)

// Epoch is one issuer key generation. Seed is the secret every evaluation
// key of the generation is derived from; it is stored here and nowhere
// else, and it never crosses the API. Retired epochs no longer verify
// tokens, which is how a compromised generation is revoked wholesale.
type Epoch struct {
	ID        uint32         `json:"id"`
	Seed      types.HexBytes `json:"seed"`
	NotBefore time.Time      `json:"notBefore"`
	NotAfter  time.Time      `json:"notAfter"`
	Retired   bool           `json:"retired"`
}

// Live reports whether tokens of this epoch are still redeemable at t.
func (e *Epoch) Live(t time.Time) bool {
	return !e.Retired && !t.Before(e.NotBefore) && t.Before(e.NotAfter)
}

func epochKey(id uint32) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, id)
	return key
}

// SetEpoch stores or replaces an epoch record.
func (s *Storage) SetEpoch(e *Epoch) error {
	if e == nil || len(e.Seed) == 0 {
		return fmt.Errorf("nil epoch or empty seed")
	}
	return s.setArtifact(epochPrefix, epochKey(e.ID), e)
}

// Epoch retrieves one epoch by id. Returns ErrNotFound if it was never
// created.
func (s *Storage) Epoch(id uint32) (*Epoch, error) {
	e := &Epoch{}
	if err := s.getArtifact(epochPrefix, epochKey(id), e); err != nil {
		return nil, err
	}
	return e, nil
}

// ListEpochs returns all epochs in ascending id order.
func (s *Storage) ListEpochs() ([]*Epoch, error) {
	var epochs []*Epoch
	var decodeErr error
	if err := s.iterateArtifacts(epochPrefix, nil, func(_, v []byte) bool {
		e := &Epoch{}
		if decodeErr = decodeArtifact(v, e); decodeErr != nil {
			return false
		}
		epochs = append(epochs, e)
		return true
	}); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return epochs, nil
}

// LatestEpoch returns the epoch with the highest id. Returns ErrNotFound
// when no epoch exists yet.
func (s *Storage) LatestEpoch() (*Epoch, error) {
	epochs, err := s.ListEpochs()
	if err != nil {
		return nil, err
	}
	if len(epochs) == 0 {
		return nil, ErrNotFound
	}
	return epochs[len(epochs)-1], nil
}
