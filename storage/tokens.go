package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/veilvote/veilvote/types"
)

// SpentToken is the double-spend guard record for a redeemed token. The
// key is the token hash; the value keeps just enough context for audits.
// Revoked marks administrative revocations, which share the spent set so
// a revoked token fails verification exactly like a spent one.
type SpentToken struct {
	TokenHash types.HexBytes `json:"tokenHash"`
	PollID    types.HexBytes `json:"pollId"`
	EpochID   uint32         `json:"epochId"`
	SpentAt   time.Time      `json:"spentAt"`
	Revoked   bool           `json:"revoked,omitempty"`
}

// MarkTokenSpent adds the token hash to the spent set. Of any number of
// concurrent callers with the same hash, exactly one succeeds; the others
// get ErrTokenSpent. The marking is permanent.
func (s *Storage) MarkTokenSpent(st *SpentToken) error {
	if st == nil || len(st.TokenHash) == 0 {
		return fmt.Errorf("nil spent token or empty hash")
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	spent, err := s.hasArtifact(spentTokenPrefix, st.TokenHash)
	if err != nil {
		return err
	}
	if spent {
		return ErrTokenSpent
	}
	return s.setArtifact(spentTokenPrefix, st.TokenHash, st)
}

// TokenSpent reports whether the token hash is in the spent set.
func (s *Storage) TokenSpent(tokenHash []byte) (bool, error) {
	return s.hasArtifact(spentTokenPrefix, tokenHash)
}

// SpentTokenRecord returns the spent-set record for a token hash, or
// ErrNotFound if the token was never redeemed or revoked.
func (s *Storage) SpentTokenRecord(tokenHash []byte) (*SpentToken, error) {
	st := &SpentToken{}
	if err := s.getArtifact(spentTokenPrefix, tokenHash, st); err != nil {
		return nil, err
	}
	return st, nil
}

// RevokeToken puts the token hash into the spent set flagged as revoked.
// Revoking an already-spent token flags the existing record; revoking
// twice is a no-op. The operation never un-spends anything.
func (s *Storage) RevokeToken(tokenHash []byte, epochID uint32) error {
	if len(tokenHash) == 0 {
		return fmt.Errorf("empty token hash")
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	st := &SpentToken{}
	err := s.getArtifact(spentTokenPrefix, tokenHash, st)
	switch {
	case err == nil:
		if st.Revoked {
			return nil
		}
		st.Revoked = true
	case errors.Is(err, ErrNotFound):
		st = &SpentToken{
			TokenHash: tokenHash,
			EpochID:   epochID,
			SpentAt:   time.Now(),
			Revoked:   true,
		}
	default:
		return err
	}
	return s.setArtifact(spentTokenPrefix, tokenHash, st)
}
