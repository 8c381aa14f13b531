package ballotbox

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilvote/veilvote/log"
	"github.com/veilvote/veilvote/merkle"
	"github.com/veilvote/veilvote/storage"
	"github.com/veilvote/veilvote/types"
)

var (
	// ErrBadTransition means the requested poll status is not the legal
	// successor of the current one.
	ErrBadTransition = errors.New("illegal poll status transition")
	// ErrInvalidPoll means the poll creation request failed validation.
	ErrInvalidPoll = errors.New("invalid poll request")
)

// PollRequest carries the organizer-chosen parameters of a new poll.
type PollRequest struct {
	Title       string      `json:"title"`
	ChoiceCount uint32      `json:"choiceCount"`
	Scope       types.Scope `json:"scope"`
	MinTier     types.Tier  `json:"minTier"`
	StartTime   time.Time   `json:"startTime,omitempty"`
	EndTime     time.Time   `json:"endTime,omitempty"`
	Nonce       uint64      `json:"nonce"`
}

func (r *PollRequest) validate() error {
	if r.Title == "" {
		return fmt.Errorf("%w: title cannot be empty", ErrInvalidPoll)
	}
	if r.ChoiceCount < 2 || r.ChoiceCount > types.MaxChoiceCount {
		return fmt.Errorf("%w: choice count %d not in [2, %d]", ErrInvalidPoll, r.ChoiceCount, types.MaxChoiceCount)
	}
	if !r.Scope.Valid() {
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidPoll, r.Scope)
	}
	if !r.MinTier.Valid() {
		return fmt.Errorf("%w: invalid minimum tier %d", ErrInvalidPoll, r.MinTier)
	}
	if !r.StartTime.IsZero() && !r.EndTime.IsZero() && !r.EndTime.After(r.StartTime) {
		return fmt.Errorf("%w: end time must be after start time", ErrInvalidPoll)
	}
	return nil
}

// CreatePoll stores a new poll in draft status. The poll ID is derived
// from the organizer address and the request nonce, so resending the same
// creation request returns the already stored poll instead of minting a
// duplicate.
func (b *Ballotbox) CreatePoll(organizer common.Address, req *PollRequest) (*types.Poll, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	id := types.NewPollID(organizer, req.Nonce)
	if existing, err := b.stg.Poll(id); err == nil {
		return existing, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	poll := &types.Poll{
		ID:          id,
		Title:       req.Title,
		ChoiceCount: req.ChoiceCount,
		Scope:       req.Scope,
		MinTier:     req.MinTier,
		Organizer:   organizer,
		Status:      types.PollStatusDraft,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		CreatedAt:   b.now(),
	}
	if err := b.stg.SetPoll(poll); err != nil {
		return nil, err
	}
	log.Infow("poll created",
		"poll", poll.ID.String(), "scope", string(poll.Scope),
		"choices", poll.ChoiceCount, "organizer", organizer.Hex())
	return poll, nil
}

// TransitionPoll advances the poll to the next lifecycle status. Only the
// single legal successor is accepted. Finalizing freezes the commitment
// log head into the poll record as its final root.
func (b *Ballotbox) TransitionPoll(pollID []byte, next types.PollStatus) (*types.Poll, error) {
	var updated *types.Poll
	err := b.stg.UpdatePoll(pollID, func(p *types.Poll) error {
		if !p.Status.CanTransition(next) {
			return fmt.Errorf("%w: %s -> %s", ErrBadTransition, p.Status, next)
		}
		p.Status = next
		if next == types.PollStatusFinalized {
			root, size, err := b.stg.TreeHead(pollID)
			if err != nil {
				return err
			}
			if size == 0 {
				root = merkle.EmptyRoot()
			}
			p.FinalRoot = root
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Infow("poll status changed", "poll", updated.ID.String(), "status", updated.Status.String())
	return updated, nil
}

// Poll returns the stored poll record.
func (b *Ballotbox) Poll(pollID []byte) (*types.Poll, error) {
	return b.stg.Poll(pollID)
}

// ListPolls returns all stored polls.
func (b *Ballotbox) ListPolls() ([]*types.Poll, error) {
	return b.stg.ListPolls()
}
