package ballotbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/veilvote/veilvote/crypto/pseudonym"
	"github.com/veilvote/veilvote/crypto/voprf"
	"github.com/veilvote/veilvote/issuer"
	"github.com/veilvote/veilvote/merkle"
	"github.com/veilvote/veilvote/policy"
	"github.com/veilvote/veilvote/storage"
	"github.com/veilvote/veilvote/types"
	"github.com/veilvote/veilvote/util"
	"github.com/veilvote/veilvote/verifier"
)

func newTestBox(t *testing.T) (*Ballotbox, *issuer.Issuer, *storage.Storage) {
	t.Helper()
	c := qt.New(t)
	stg := storage.New(metadb.NewTest(t))
	iss, err := issuer.New(stg, policy.New(stg), time.Hour)
	c.Assert(err, qt.IsNil)
	c.Assert(iss.Rotate(), qt.IsNil)
	ver, err := verifier.New(iss, stg)
	c.Assert(err, qt.IsNil)
	box, err := New(stg, ver)
	c.Assert(err, qt.IsNil)
	return box, iss, stg
}

func newActivePoll(c *qt.C, box *Ballotbox, choices uint32) *types.Poll {
	organizer := common.BytesToAddress(util.RandomBytes(20))
	poll, err := box.CreatePoll(organizer, &PollRequest{
		Title:       "preferred meeting day",
		ChoiceCount: choices,
		Scope:       types.ScopeCommunity,
		MinTier:     types.TierT1,
	})
	c.Assert(err, qt.IsNil)
	poll, err = box.TransitionPoll(poll.ID, types.PollStatusActive)
	c.Assert(err, qt.IsNil)
	return poll
}

// issueToken runs the client side of issuance for a fresh user and returns
// the token in redemption form.
func issueToken(c *qt.C, iss *issuer.Issuer, stg *storage.Storage, userID string, tier types.Tier, poll *types.Poll) *types.Token {
	c.Assert(stg.SetUser(&storage.User{
		ID:         userID,
		Tier:       tier,
		CreatedAt:  time.Unix(1700000000, 0).UTC(),
		VerifiedAt: time.Unix(1700000600, 0).UTC(),
	}), qt.IsNil)

	seed := util.RandomBytes(types.TokenSeedSize)
	blinded, err := voprf.Blind(seed)
	c.Assert(err, qt.IsNil)
	resp, err := iss.Issue(context.Background(), &issuer.IssueRequest{
		UserID:  userID,
		PollID:  poll.ID,
		Blinded: blinded.Element(),
	})
	c.Assert(err, qt.IsNil)
	key, err := iss.PublicKey(resp.EpochID, poll.ID, resp.Tier, resp.Scope)
	c.Assert(err, qt.IsNil)
	proof, err := voprf.DecodeProof(resp.ProofC, resp.ProofS)
	c.Assert(err, qt.IsNil)
	output, err := blinded.Verify(key.ProofKey, resp.Evaluated, proof)
	c.Assert(err, qt.IsNil)
	return &types.Token{
		EpochID: resp.EpochID,
		PollID:  poll.ID,
		Tier:    resp.Tier,
		Scope:   resp.Scope,
		Seed:    seed,
		Output:  voprf.EncodeG1(&output),
	}
}

func TestSubmitAndReceipt(t *testing.T) {
	c := qt.New(t)
	box, iss, stg := newTestBox(t)
	poll := newActivePoll(c, box, 3)
	token := issueToken(c, iss, stg, "alice", types.TierT1, poll)

	receipt, err := box.Submit(context.Background(), token, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(receipt.TreeSize, qt.Equals, uint64(1))
	c.Assert(receipt.LeafIndex, qt.Equals, uint64(0))

	ok, err := box.VerifyReceipt(receipt)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	// The vote is stored under the tag recomputed from the revealed
	// token, not under anything the submitter chose.
	tag := pseudonym.Tag(token.Seed, token.Output)
	vote, err := stg.Vote(poll.ID, tag)
	c.Assert(err, qt.IsNil)
	c.Assert(vote.Choice, qt.Equals, uint32(1))
	c.Assert(vote.Tier, qt.Equals, types.TierT1)

	// Replaying the token is a double spend, and the stored vote stays
	// as it was.
	_, err = box.Submit(context.Background(), token, 2)
	c.Assert(err, qt.ErrorIs, storage.ErrTokenSpent)
	vote, err = stg.Vote(poll.ID, tag)
	c.Assert(err, qt.IsNil)
	c.Assert(vote.Choice, qt.Equals, uint32(1))
}

func TestSubmitGates(t *testing.T) {
	c := qt.New(t)
	box, iss, stg := newTestBox(t)
	poll := newActivePoll(c, box, 3)
	token := issueToken(c, iss, stg, "alice", types.TierT1, poll)

	_, err := box.Submit(context.Background(), token, 3)
	c.Assert(err, qt.ErrorIs, ErrInvalidChoice)

	tampered := *token
	tampered.Seed = util.RandomBytes(types.TokenSeedSize)
	_, err = box.Submit(context.Background(), &tampered, 0)
	c.Assert(err, qt.ErrorIs, verifier.ErrInvalidToken)

	// Tokens for a poll that is not accepting votes are refused before
	// any cryptography runs.
	organizer := common.BytesToAddress(util.RandomBytes(20))
	draft, err := box.CreatePoll(organizer, &PollRequest{
		Title:       "still drafting",
		ChoiceCount: 2,
		Scope:       types.ScopeCommunity,
		MinTier:     types.TierT1,
	})
	c.Assert(err, qt.IsNil)
	stray := *token
	stray.PollID = draft.ID
	_, err = box.Submit(context.Background(), &stray, 0)
	c.Assert(err, qt.ErrorIs, ErrPollNotActive)

	// The honest token still goes through after the rejections.
	_, err = box.Submit(context.Background(), token, 0)
	c.Assert(err, qt.IsNil)

	// A token issued while the poll was open is still refused once the
	// poll closes.
	late := issueToken(c, iss, stg, "bob", types.TierT1, poll)
	_, err = box.TransitionPoll(poll.ID, types.PollStatusClosed)
	c.Assert(err, qt.IsNil)
	_, err = box.Submit(context.Background(), late, 0)
	c.Assert(err, qt.ErrorIs, ErrPollNotActive)
}

func TestSubmitConcurrent(t *testing.T) {
	c := qt.New(t)
	box, iss, stg := newTestBox(t)
	poll := newActivePoll(c, box, 2)

	const voters = 8
	tokens := make([]*types.Token, voters)
	for i := 0; i < voters; i++ {
		tokens[i] = issueToken(c, iss, stg, "voter-"+string(rune('a'+i)), types.TierT1, poll)
	}

	var wg sync.WaitGroup
	receipts := make([]*types.Receipt, voters)
	errs := make([]error, voters)
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			receipts[n], errs[n] = box.Submit(context.Background(), tokens[n], uint32(n%2))
		}(i)
	}
	wg.Wait()

	for i := 0; i < voters; i++ {
		c.Assert(errs[i], qt.IsNil)
		ok, err := box.VerifyReceipt(receipts[i])
		c.Assert(err, qt.IsNil)
		c.Assert(ok, qt.IsTrue, qt.Commentf("receipt %d", i))
	}
	count, err := stg.CountVotes(poll.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, voters)
	info, err := box.CommitmentRoot(poll.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(info.TreeSize, qt.Equals, uint64(voters))
}

func TestSubmitRebuildsStaleCache(t *testing.T) {
	c := qt.New(t)
	box, iss, stg := newTestBox(t)
	poll := newActivePoll(c, box, 2)

	// A second box over the same storage stands in for another process
	// appending to the same log.
	ver2, err := verifier.New(iss, stg)
	c.Assert(err, qt.IsNil)
	box2, err := New(stg, ver2)
	c.Assert(err, qt.IsNil)

	_, err = box2.Submit(context.Background(), issueToken(c, iss, stg, "alice", types.TierT1, poll), 0)
	c.Assert(err, qt.IsNil)
	_, err = box.Submit(context.Background(), issueToken(c, iss, stg, "bob", types.TierT1, poll), 1)
	c.Assert(err, qt.IsNil)

	// box2's cached tree is now one leaf behind; the submit must detect
	// the mismatch, rebuild and land on index 2.
	receipt, err := box2.Submit(context.Background(), issueToken(c, iss, stg, "carol", types.TierT1, poll), 0)
	c.Assert(err, qt.IsNil)
	c.Assert(receipt.LeafIndex, qt.Equals, uint64(2))
	c.Assert(receipt.TreeSize, qt.Equals, uint64(3))
	ok, err := box.VerifyReceipt(receipt)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
}

func TestPollLifecycle(t *testing.T) {
	c := qt.New(t)
	box, iss, stg := newTestBox(t)
	organizer := common.BytesToAddress(util.RandomBytes(20))

	req := &PollRequest{
		Title:       "quarterly priorities",
		ChoiceCount: 4,
		Scope:       types.ScopeCommunity,
		MinTier:     types.TierT1,
		Nonce:       7,
	}
	poll, err := box.CreatePoll(organizer, req)
	c.Assert(err, qt.IsNil)
	c.Assert(poll.Status, qt.Equals, types.PollStatusDraft)

	// Resending the creation request maps to the same poll.
	again, err := box.CreatePoll(organizer, req)
	c.Assert(err, qt.IsNil)
	c.Assert(again.ID, qt.DeepEquals, poll.ID)

	// Skipping a state is illegal, as is going backwards.
	_, err = box.TransitionPoll(poll.ID, types.PollStatusClosed)
	c.Assert(err, qt.ErrorIs, ErrBadTransition)
	poll, err = box.TransitionPoll(poll.ID, types.PollStatusActive)
	c.Assert(err, qt.IsNil)
	_, err = box.TransitionPoll(poll.ID, types.PollStatusDraft)
	c.Assert(err, qt.ErrorIs, ErrBadTransition)

	_, err = box.Submit(context.Background(), issueToken(c, iss, stg, "alice", types.TierT2, poll), 2)
	c.Assert(err, qt.IsNil)

	_, err = box.Tally(poll.ID)
	c.Assert(err, qt.ErrorIs, ErrPollNotClosed)

	poll, err = box.TransitionPoll(poll.ID, types.PollStatusClosed)
	c.Assert(err, qt.IsNil)
	poll, err = box.TransitionPoll(poll.ID, types.PollStatusFinalized)
	c.Assert(err, qt.IsNil)

	// Finalizing froze the live head into the poll record.
	info, err := box.CommitmentRoot(poll.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(info.Finalized, qt.IsTrue)
	c.Assert(poll.FinalRoot, qt.DeepEquals, info.Root)

	_, err = box.TransitionPoll(poll.ID, types.PollStatusFinalized+1)
	c.Assert(err, qt.ErrorIs, ErrBadTransition)
}

func TestTallyWeighted(t *testing.T) {
	c := qt.New(t)
	box, iss, stg := newTestBox(t)
	poll := newActivePoll(c, box, 3)

	votes := []struct {
		user   string
		tier   types.Tier
		choice uint32
	}{
		{"alice", types.TierT1, 0},
		{"bob", types.TierT2, 1},
		{"carol", types.TierT3, 1},
		{"dave", types.TierT1, 2},
	}
	for _, v := range votes {
		_, err := box.Submit(context.Background(), issueToken(c, iss, stg, v.user, v.tier, poll), v.choice)
		c.Assert(err, qt.IsNil)
	}
	_, err := box.TransitionPoll(poll.ID, types.PollStatusClosed)
	c.Assert(err, qt.IsNil)

	tally, err := box.Tally(poll.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(tally.TotalVotes, qt.Equals, uint64(4))
	c.Assert(tally.Counts, qt.DeepEquals, []uint64{1, 2, 1})
	c.Assert(tally.Weighted, qt.DeepEquals, []float64{2, 15, 2})
	c.Assert(tally.TreeSize, qt.Equals, uint64(4))
	c.Assert(tally.ResultHash, qt.HasLen, 32)

	// Tallying twice gives identical results.
	again, err := box.Tally(poll.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(again, qt.DeepEquals, tally)

	// Finalizing does not move the numbers, so the seal stays put too.
	_, err = box.TransitionPoll(poll.ID, types.PollStatusFinalized)
	c.Assert(err, qt.IsNil)
	sealed, err := box.Tally(poll.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(sealed.Status, qt.Equals, types.PollStatusFinalized)
	c.Assert(sealed.ResultHash, qt.DeepEquals, tally.ResultHash)
}

func TestConsistencyProofs(t *testing.T) {
	c := qt.New(t)
	box, iss, stg := newTestBox(t)
	poll := newActivePoll(c, box, 2)

	users := []string{"alice", "bob", "carol", "dave", "erin"}
	for _, u := range users {
		_, err := box.Submit(context.Background(), issueToken(c, iss, stg, u, types.TierT1, poll), 0)
		c.Assert(err, qt.IsNil)
	}

	for oldSize := uint64(1); oldSize <= 5; oldSize++ {
		resp, err := box.ConsistencyProof(poll.ID, oldSize)
		c.Assert(err, qt.IsNil)
		c.Assert(resp.NewSize, qt.Equals, uint64(5))
		ok := merkle.VerifyConsistency(resp.OldSize, resp.NewSize,
			resp.OldRoot, resp.NewRoot, rawProof(resp.Proof))
		c.Assert(ok, qt.IsTrue, qt.Commentf("old size %d", oldSize))
	}

	_, err := box.ConsistencyProof(poll.ID, 0)
	c.Assert(err, qt.ErrorIs, merkle.ErrSizeOutOfRange)
	_, err = box.ConsistencyProof(poll.ID, 6)
	c.Assert(err, qt.ErrorIs, merkle.ErrSizeOutOfRange)
	_, err = box.ConsistencyProof(util.RandomBytes(types.PollIDSize), 1)
	c.Assert(err, qt.ErrorIs, storage.ErrNotFound)
}
