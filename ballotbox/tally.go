package ballotbox

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/veilvote/veilvote/merkle"
	"github.com/veilvote/veilvote/types"
)

// TallyResult is the outcome of a closed poll: per-choice raw counts and
// tier-weighted totals, anchored to the commitment log head the tally was
// computed over. ResultHash seals the numbers to that head, so anyone
// re-tallying the same snapshot can check they got byte-identical results.
type TallyResult struct {
	PollID     types.HexBytes   `json:"pollId"`
	Status     types.PollStatus `json:"status"`
	TotalVotes uint64           `json:"totalVotes"`
	Counts     []uint64         `json:"counts"`
	Weighted   []float64        `json:"weighted"`
	Root       types.HexBytes   `json:"root"`
	TreeSize   uint64           `json:"treeSize"`
	ResultHash types.HexBytes   `json:"resultHash"`
}

// fingerprint hashes the tally content and the log head it was computed
// over. The poll status is left out: a tally recomputed after finalizing
// must seal identically to the one taken at close.
func (t *TallyResult) fingerprint() ([]byte, error) {
	enc, err := json.Marshal(struct {
		PollID     types.HexBytes `json:"pollId"`
		Root       types.HexBytes `json:"root"`
		TreeSize   uint64         `json:"treeSize"`
		TotalVotes uint64         `json:"totalVotes"`
		Counts     []uint64       `json:"counts"`
		Weighted   []float64      `json:"weighted"`
	}{t.PollID, t.Root, t.TreeSize, t.TotalVotes, t.Counts, t.Weighted})
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(enc)
	return sum[:], nil
}

// Tally counts the recorded votes of a closed or finalized poll. Votes
// are walked in tag order, so repeated tallies of the same poll always
// agree. Active polls refuse to tally: partial results would invite
// result-steering mid-vote.
func (b *Ballotbox) Tally(pollID []byte) (*TallyResult, error) {
	poll, err := b.stg.Poll(pollID)
	if err != nil {
		return nil, err
	}
	if poll.Status != types.PollStatusClosed && poll.Status != types.PollStatusFinalized {
		return nil, fmt.Errorf("%w: status %s", ErrPollNotClosed, poll.Status)
	}
	votes, err := b.stg.ListVotes(pollID)
	if err != nil {
		return nil, err
	}
	counts := make([]uint64, poll.ChoiceCount)
	weighted := make([]float64, poll.ChoiceCount)
	for _, v := range votes {
		if v.Choice >= poll.ChoiceCount {
			continue
		}
		counts[v.Choice]++
		weighted[v.Choice] += v.Tier.Weight()
	}
	root, size, err := b.stg.TreeHead(pollID)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		root = merkle.EmptyRoot()
	}
	result := &TallyResult{
		PollID:     poll.ID,
		Status:     poll.Status,
		TotalVotes: uint64(len(votes)),
		Counts:     counts,
		Weighted:   weighted,
		Root:       root,
		TreeSize:   size,
	}
	hash, err := result.fingerprint()
	if err != nil {
		return nil, fmt.Errorf("could not seal tally: %w", err)
	}
	result.ResultHash = hash
	return result, nil
}
