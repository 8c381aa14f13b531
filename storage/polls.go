package storage

import (
	"fmt"

	"github.com/veilvote/veilvote/types"
)

// SetPoll stores a poll record.
func (s *Storage) SetPoll(p *types.Poll) error {
	if p == nil || len(p.ID) == 0 {
		return fmt.Errorf("nil poll or empty id")
	}
	return s.setArtifact(pollPrefix, p.ID, p)
}

// Poll retrieves a poll by id. Returns ErrNotFound if it does not exist.
func (s *Storage) Poll(id []byte) (*types.Poll, error) {
	p := &types.Poll{}
	if err := s.getArtifact(pollPrefix, id, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePoll applies fn to the stored poll under the global lock and writes
// the result back, so concurrent status transitions cannot interleave. If
// fn returns an error nothing is written.
func (s *Storage) UpdatePoll(id []byte, fn func(*types.Poll) error) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	p := &types.Poll{}
	if err := s.getArtifact(pollPrefix, id, p); err != nil {
		return err
	}
	if err := fn(p); err != nil {
		return err
	}
	return s.setArtifact(pollPrefix, p.ID, p)
}

// ListPolls returns every stored poll.
func (s *Storage) ListPolls() ([]*types.Poll, error) {
	var polls []*types.Poll
	var decodeErr error
	if err := s.iterateArtifacts(pollPrefix, nil, func(_, v []byte) bool {
		p := &types.Poll{}
		if decodeErr = decodeArtifact(v, p); decodeErr != nil {
			return false
		}
		polls = append(polls, p)
		return true
	}); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return polls, nil
}
