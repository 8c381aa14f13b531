package storage

import (
	"errors"
	"time"

	"github.com/veilvote/veilvote/types"
)

// issuanceCounter is the stored value behind CheckAndReserve: how many
// tokens (user, poll, scope) has drawn so far.
type issuanceCounter struct {
	Count     uint32    `json:"count"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func issuanceKey(userID string, pollID []byte, scope types.Scope) []byte {
	buf := make([]byte, 0, len(userID)+len(pollID)+len(scope)+2)
	buf = append(buf, []byte(userID)...)
	buf = append(buf, 0x00)
	buf = append(buf, pollID...)
	buf = append(buf, 0x00)
	buf = append(buf, []byte(scope)...)
	return hashKey(buf)
}

// CheckAndReserve atomically takes one issuance slot for (user, poll,
// scope). If the counter already reached limit it returns ErrCounterLimit
// and changes nothing. Under concurrent calls exactly limit of them
// succeed; losers never observe a half-taken slot.
func (s *Storage) CheckAndReserve(userID string, pollID []byte, scope types.Scope, limit uint32) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	key := issuanceKey(userID, pollID, scope)
	var ctr issuanceCounter
	if err := s.getArtifact(counterPrefix, key, &ctr); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if ctr.Count >= limit {
		return ErrCounterLimit
	}
	ctr.Count++
	ctr.UpdatedAt = time.Now()
	return s.setArtifact(counterPrefix, key, &ctr)
}

// Release gives back one reserved issuance slot. It is the compensation
// path for issuance failures after the reservation was taken; releasing a
// counter that is already zero is a no-op.
func (s *Storage) Release(userID string, pollID []byte, scope types.Scope) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	key := issuanceKey(userID, pollID, scope)
	var ctr issuanceCounter
	if err := s.getArtifact(counterPrefix, key, &ctr); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if ctr.Count == 0 {
		return nil
	}
	ctr.Count--
	ctr.UpdatedAt = time.Now()
	return s.setArtifact(counterPrefix, key, &ctr)
}

// IssuanceCount returns the current counter value for (user, poll, scope).
func (s *Storage) IssuanceCount(userID string, pollID []byte, scope types.Scope) (uint32, error) {
	var ctr issuanceCounter
	if err := s.getArtifact(counterPrefix, issuanceKey(userID, pollID, scope), &ctr); err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return ctr.Count, nil
}
