package api

import (
	"fmt"
	"time"

	"github.com/veilvote/veilvote/types"
)

// UserRequest is a verification attestation: it registers a user at a
// tier. In production the attestation would come from the verification
// provider's callback; the shape is the same either way.
type UserRequest struct {
	UserID     string     `json:"userId"`
	Tier       types.Tier `json:"tier"`
	VerifiedAt time.Time  `json:"verifiedAt,omitempty"`
}

// UserResponse confirms a registration.
type UserResponse struct {
	UserID string     `json:"userId"`
	Tier   types.Tier `json:"tier"`
}

// NewPoll is a poll creation request. The organizer is not a field: it is
// recovered from the signature over the creation payload, so nobody can
// create polls in someone else's name.
type NewPoll struct {
	Title       string         `json:"title"`
	ChoiceCount uint32         `json:"choiceCount"`
	Scope       types.Scope    `json:"scope"`
	MinTier     types.Tier     `json:"minTier"`
	StartTime   time.Time      `json:"startTime,omitempty"`
	EndTime     time.Time      `json:"endTime,omitempty"`
	Nonce       uint64         `json:"nonce"`
	Signature   types.HexBytes `json:"signature"`
}

// StatusChange is a poll lifecycle transition request, signed by the poll
// organizer.
type StatusChange struct {
	Status    string         `json:"status"`
	Signature types.HexBytes `json:"signature"`
}

// VoteRequest redeems a token for one ballot.
type VoteRequest struct {
	Token  *types.Token `json:"token"`
	Choice uint32       `json:"choice"`
}

// ReceiptVerification is the answer to a receipt check.
type ReceiptVerification struct {
	Valid bool `json:"valid"`
}

// PollCreatePayload is the byte string an organizer signs to create a
// poll. It binds the nonce, so the signature cannot be replayed into a
// different poll ID.
func PollCreatePayload(nonce uint64) []byte {
	return []byte(fmt.Sprintf("veilvote/poll/create/%d", nonce))
}

// PollStatusPayload is the byte string an organizer signs to move a poll
// to the given status.
func PollStatusPayload(pollID types.HexBytes, status string) []byte {
	return []byte(fmt.Sprintf("veilvote/poll/status/%s/%s", pollID.String(), status))
}
