package types

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PollStatus is the lifecycle state of a poll. Transitions are strictly
// forward: draft -> active -> closed -> finalized.
type PollStatus uint8

const (
	PollStatusDraft PollStatus = iota
	PollStatusActive
	PollStatusClosed
	PollStatusFinalized
)

func (s PollStatus) String() string {
	switch s {
	case PollStatusDraft:
		return "draft"
	case PollStatusActive:
		return "active"
	case PollStatusClosed:
		return "closed"
	case PollStatusFinalized:
		return "finalized"
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// PollStatusFromString parses the lowercase status name.
func PollStatusFromString(s string) (PollStatus, error) {
	switch s {
	case "draft":
		return PollStatusDraft, nil
	case "active":
		return PollStatusActive, nil
	case "closed":
		return PollStatusClosed, nil
	case "finalized":
		return PollStatusFinalized, nil
	}
	return 0, fmt.Errorf("unknown poll status %q", s)
}

// CanTransition reports whether next is the legal successor of s. Every
// state has exactly one successor; finalized is terminal.
func (s PollStatus) CanTransition(next PollStatus) bool {
	return next == s+1 && next <= PollStatusFinalized
}

func (s PollStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *PollStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	status, err := PollStatusFromString(str)
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// Poll is the registry record for a single poll. The commitment tree and the
// vote set reference polls only by ID; everything a voter-facing check needs
// (status, choice range, window, minimum tier) lives here.
type Poll struct {
	ID          HexBytes       `json:"id"`
	Title       string         `json:"title"`
	ChoiceCount uint32         `json:"choiceCount"`
	Scope       Scope          `json:"scope"`
	MinTier     Tier           `json:"minTier"`
	Organizer   common.Address `json:"organizer"`
	Status      PollStatus     `json:"status"`
	StartTime   time.Time      `json:"startTime"`
	EndTime     time.Time      `json:"endTime"`
	CreatedAt   time.Time      `json:"createdAt"`
	FinalRoot   HexBytes       `json:"finalRoot,omitempty"`
}

func (p *Poll) String() string {
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(data)
}

// AcceptsVotes reports whether a vote submitted at t may be recorded.
func (p *Poll) AcceptsVotes(t time.Time) bool {
	if p.Status != PollStatusActive {
		return false
	}
	if !p.StartTime.IsZero() && t.Before(p.StartTime) {
		return false
	}
	if !p.EndTime.IsZero() && t.After(p.EndTime) {
		return false
	}
	return true
}

// NewPollID derives the poll identifier from the organizer address and a
// creation nonce, so organizers cannot collide with each other and a replayed
// creation request maps to the same poll instead of a new one.
func NewPollID(organizer common.Address, nonce uint64) HexBytes {
	buf := make([]byte, 0, common.AddressLength+8)
	buf = append(buf, organizer.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, nonce)
	hash := sha256.Sum256(buf)
	return hash[:PollIDSize]
}
