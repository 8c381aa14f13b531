// Package ballotbox accepts ballots and maintains each poll's commitment
// log. A submission redeems a voting token, derives the voter's pseudonym
// tag, records the vote under (poll, tag) and appends a salted commitment
// of the ballot to the poll's Merkle tree. The token spend, the vote
// record, the new leaf and the new root all commit in one storage
// transaction, so no interleaving of concurrent submissions can spend a
// token without recording its vote or vice versa.
//
// The in-memory trees are just caches of each log's right edge; the
// persisted leaves are authoritative, and a cache that falls behind them
// is rebuilt and the append retried.
package ballotbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/veilvote/veilvote/crypto/pseudonym"
	"github.com/veilvote/veilvote/log"
	"github.com/veilvote/veilvote/merkle"
	"github.com/veilvote/veilvote/storage"
	"github.com/veilvote/veilvote/types"
	"github.com/veilvote/veilvote/util"
	"github.com/veilvote/veilvote/verifier"
)

var (
	// ErrPollNotActive means the poll is not accepting votes.
	ErrPollNotActive = errors.New("poll is not accepting votes")
	// ErrInvalidChoice means the choice index is outside the poll's range.
	ErrInvalidChoice = errors.New("choice out of range")
	// ErrPollNotClosed means a tally was requested before the poll
	// stopped accepting votes.
	ErrPollNotClosed = errors.New("poll is not closed yet")
)

// Ballotbox records votes and serves commitment-log proofs.
type Ballotbox struct {
	stg *storage.Storage
	ver *verifier.Verifier
	now func() time.Time

	treesLock sync.Mutex
	trees     map[string]*merkle.Tree
}

// New creates a ballot box over the given storage and token verifier.
func New(stg *storage.Storage, ver *verifier.Verifier) (*Ballotbox, error) {
	if stg == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if ver == nil {
		return nil, fmt.Errorf("verifier cannot be nil")
	}
	return &Ballotbox{
		stg:   stg,
		ver:   ver,
		now:   time.Now,
		trees: make(map[string]*merkle.Tree),
	}, nil
}

// tree returns the cached commitment tree for the poll, rebuilding it from
// the persisted leaves on first use. Callers hold treesLock.
func (b *Ballotbox) tree(pollID []byte) (*merkle.Tree, error) {
	key := string(pollID)
	if t, ok := b.trees[key]; ok {
		return t, nil
	}
	leaves, err := b.stg.LeafHashes(pollID)
	if err != nil {
		return nil, fmt.Errorf("load commitment leaves: %w", err)
	}
	t := merkle.Rebuild(leaves)
	b.trees[key] = t
	return t, nil
}

// Submit redeems the token and records a vote for choice. The pseudonym
// tag is recomputed here from the revealed seed and output, never taken
// from the submitter. On success the voter gets an inclusion receipt for
// the new leaf; a second submission under the same tag is rejected with
// storage.ErrVoteExists and does not burn the token.
func (b *Ballotbox) Submit(ctx context.Context, token *types.Token, choice uint32) (*types.Receipt, error) {
	poll, err := b.stg.Poll(token.PollID)
	if err != nil {
		return nil, err
	}
	now := b.now()
	if !poll.AcceptsVotes(now) {
		return nil, fmt.Errorf("%w: status %s", ErrPollNotActive, poll.Status)
	}
	if choice >= poll.ChoiceCount {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidChoice, choice, poll.ChoiceCount)
	}
	if err := b.ver.Verify(ctx, token); err != nil {
		return nil, err
	}

	tag := pseudonym.Tag(token.Seed, token.Output)
	salt := util.RandomBytes(types.SaltSize)
	leaf := types.VoteLeafHash(poll.ID, tag, choice, salt)
	vote := &types.Vote{
		PollID:      poll.ID,
		Tag:         tag,
		Choice:      choice,
		Tier:        token.Tier,
		Salt:        salt,
		LeafHash:    leaf,
		LeafIndex:   0,
		SubmittedAt: now,
	}

	b.treesLock.Lock()
	defer b.treesLock.Unlock()

	tree, err := b.tree(poll.ID)
	if err != nil {
		return nil, err
	}
	stage := tree.Clone()
	index, root := stage.Append(leaf)
	vote.LeafIndex = index
	err = b.stg.CommitVote(vote, verifier.SpendRecord(token), root)
	if errors.Is(err, storage.ErrLeafMismatch) {
		// The cache fell behind the persisted log. Rebuild from the
		// leaves and retry the append once against the fresh edge.
		delete(b.trees, string(poll.ID))
		tree, err = b.tree(poll.ID)
		if err != nil {
			return nil, err
		}
		stage = tree.Clone()
		index, root = stage.Append(leaf)
		vote.LeafIndex = index
		err = b.stg.CommitVote(vote, verifier.SpendRecord(token), root)
	}
	if err != nil {
		return nil, err
	}
	b.trees[string(poll.ID)] = stage

	receipt, err := b.receipt(poll.ID, leaf, index, stage.Size(), root)
	if err != nil {
		// The vote is committed; a receipt that cannot be built is a
		// server fault, not a rejected ballot.
		return nil, fmt.Errorf("vote recorded but receipt failed: %w", err)
	}
	log.Debugw("vote recorded",
		"poll", poll.ID.String(), "leafIndex", index, "treeSize", stage.Size())
	return receipt, nil
}
