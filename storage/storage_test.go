package storage

import (
	"errors"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/veilvote/veilvote/types"
	"github.com/veilvote/veilvote/util"
)

func TestUserRoundTrip(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	u := &User{
		ID:         "user-123",
		Tier:       types.TierT2,
		CreatedAt:  time.Unix(1724300000, 0).UTC(),
		VerifiedAt: time.Unix(1724350000, 0).UTC(),
	}
	c.Assert(stg.SetUser(u), qt.IsNil)

	got, err := stg.User("user-123")
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, u)

	_, err = stg.User("nobody")
	c.Assert(err, qt.Equals, ErrNotFound)
}

func TestCheckAndReserveConcurrent(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	pollID := util.RandomBytes(types.PollIDSize)
	const workers = 10

	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- stg.CheckAndReserve("alice", pollID, types.ScopeCommunity, 1)
		}()
	}
	wg.Wait()
	close(errs)

	success, limited := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrCounterLimit):
			limited++
		default:
			c.Fatalf("unexpected error: %v", err)
		}
	}
	c.Assert(success, qt.Equals, 1)
	c.Assert(limited, qt.Equals, workers-1)

	count, err := stg.IssuanceCount("alice", pollID, types.ScopeCommunity)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, uint32(1))

	// Releasing the slot allows exactly one more reservation.
	c.Assert(stg.Release("alice", pollID, types.ScopeCommunity), qt.IsNil)
	c.Assert(stg.CheckAndReserve("alice", pollID, types.ScopeCommunity, 1), qt.IsNil)
	c.Assert(stg.CheckAndReserve("alice", pollID, types.ScopeCommunity, 1),
		qt.Equals, ErrCounterLimit)

	// Scopes count independently.
	c.Assert(stg.CheckAndReserve("alice", pollID, types.ScopeOfficial, 1), qt.IsNil)
}

func TestMarkTokenSpentConcurrent(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	tokenHash := util.RandomBytes(32)
	pollID := util.RandomBytes(types.PollIDSize)
	const workers = 10

	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- stg.MarkTokenSpent(&SpentToken{
				TokenHash: tokenHash,
				PollID:    pollID,
				EpochID:   1,
				SpentAt:   time.Unix(1724400000, 0).UTC(),
			})
		}()
	}
	wg.Wait()
	close(errs)

	success, spent := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrTokenSpent):
			spent++
		default:
			c.Fatalf("unexpected error: %v", err)
		}
	}
	c.Assert(success, qt.Equals, 1)
	c.Assert(spent, qt.Equals, workers-1)

	isSpent, err := stg.TokenSpent(tokenHash)
	c.Assert(err, qt.IsNil)
	c.Assert(isSpent, qt.IsTrue)
}

func TestRevokeToken(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	// Revoking an unseen token plants a revoked spent record.
	unseen := util.RandomBytes(32)
	c.Assert(stg.RevokeToken(unseen, 2), qt.IsNil)
	rec, err := stg.SpentTokenRecord(unseen)
	c.Assert(err, qt.IsNil)
	c.Assert(rec.Revoked, qt.IsTrue)
	spent, err := stg.TokenSpent(unseen)
	c.Assert(err, qt.IsNil)
	c.Assert(spent, qt.IsTrue)

	// Revoking a spent token flags the existing record and keeps its
	// context.
	spentHash := util.RandomBytes(32)
	pollID := util.RandomBytes(types.PollIDSize)
	c.Assert(stg.MarkTokenSpent(&SpentToken{
		TokenHash: spentHash,
		PollID:    pollID,
		EpochID:   1,
		SpentAt:   time.Unix(1724400000, 0).UTC(),
	}), qt.IsNil)
	c.Assert(stg.RevokeToken(spentHash, 1), qt.IsNil)
	rec, err = stg.SpentTokenRecord(spentHash)
	c.Assert(err, qt.IsNil)
	c.Assert(rec.Revoked, qt.IsTrue)
	c.Assert([]byte(rec.PollID), qt.DeepEquals, pollID)

	// Idempotent.
	c.Assert(stg.RevokeToken(spentHash, 1), qt.IsNil)
}

func testVote(pollID []byte, index uint64) (*types.Vote, *SpentToken) {
	tag := util.RandomBytes(types.TagSize)
	salt := util.RandomBytes(types.SaltSize)
	v := &types.Vote{
		PollID:      pollID,
		Tag:         tag,
		Choice:      1,
		Tier:        types.TierT1,
		Salt:        salt,
		LeafHash:    types.VoteLeafHash(pollID, tag, 1, salt),
		LeafIndex:   index,
		SubmittedAt: time.Unix(1724400100, 0).UTC(),
	}
	st := &SpentToken{
		TokenHash: util.RandomBytes(32),
		PollID:    pollID,
		EpochID:   1,
		SpentAt:   v.SubmittedAt,
	}
	return v, st
}

func TestCommitVote(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	pollID := util.RandomBytes(types.PollIDSize)
	v0, st0 := testVote(pollID, 0)
	root0 := util.RandomBytes(32)
	c.Assert(stg.CommitVote(v0, st0, root0), qt.IsNil)

	// Everything of the commit is visible: vote, spent mark, leaf, head.
	got, err := stg.Vote(pollID, v0.Tag)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, v0)
	isSpent, err := stg.TokenSpent(st0.TokenHash)
	c.Assert(err, qt.IsNil)
	c.Assert(isSpent, qt.IsTrue)
	leaf, err := stg.LeafHash(pollID, 0)
	c.Assert(err, qt.IsNil)
	c.Assert([]byte(leaf), qt.DeepEquals, []byte(v0.LeafHash))
	root, size, err := stg.TreeHead(pollID)
	c.Assert(err, qt.IsNil)
	c.Assert(size, qt.Equals, uint64(1))
	c.Assert([]byte(root), qt.DeepEquals, root0)

	// Same tag again: rejected, nothing spent.
	dup, dupToken := testVote(pollID, 1)
	dup.Tag = v0.Tag
	err = stg.CommitVote(dup, dupToken, util.RandomBytes(32))
	c.Assert(err, qt.Equals, ErrVoteExists)
	isSpent, err = stg.TokenSpent(dupToken.TokenHash)
	c.Assert(err, qt.IsNil)
	c.Assert(isSpent, qt.IsFalse)

	// Same token again under a fresh tag: rejected.
	replay, _ := testVote(pollID, 1)
	err = stg.CommitVote(replay, st0, util.RandomBytes(32))
	c.Assert(err, qt.Equals, ErrTokenSpent)

	// Stale leaf index: rejected, so a second appender cannot fork the log.
	stale, staleToken := testVote(pollID, 0)
	err = stg.CommitVote(stale, staleToken, util.RandomBytes(32))
	c.Assert(err, qt.Equals, ErrLeafMismatch)

	// The next index goes through and the head advances.
	v1, st1 := testVote(pollID, 1)
	root1 := util.RandomBytes(32)
	c.Assert(stg.CommitVote(v1, st1, root1), qt.IsNil)
	root, size, err = stg.TreeHead(pollID)
	c.Assert(err, qt.IsNil)
	c.Assert(size, qt.Equals, uint64(2))
	c.Assert([]byte(root), qt.DeepEquals, root1)

	// Snapshots for both sizes remain readable.
	snap, err := stg.RootAt(pollID, 1)
	c.Assert(err, qt.IsNil)
	c.Assert([]byte(snap), qt.DeepEquals, root0)
	snap, err = stg.RootAt(pollID, 2)
	c.Assert(err, qt.IsNil)
	c.Assert([]byte(snap), qt.DeepEquals, root1)

	leaves, err := stg.LeafHashes(pollID)
	c.Assert(err, qt.IsNil)
	c.Assert(leaves, qt.HasLen, 2)
	c.Assert(leaves[0], qt.DeepEquals, []byte(v0.LeafHash))
	c.Assert(leaves[1], qt.DeepEquals, []byte(v1.LeafHash))

	count, err := stg.CountVotes(pollID)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 2)
}

func TestListVotesOrderedByTag(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	pollID := util.RandomBytes(types.PollIDSize)
	for i := uint64(0); i < 8; i++ {
		v, st := testVote(pollID, i)
		c.Assert(stg.CommitVote(v, st, util.RandomBytes(32)), qt.IsNil)
	}

	votes, err := stg.ListVotes(pollID)
	c.Assert(err, qt.IsNil)
	c.Assert(votes, qt.HasLen, 8)
	for i := 1; i < len(votes); i++ {
		c.Assert(string(votes[i-1].Tag) < string(votes[i].Tag), qt.IsTrue,
			qt.Commentf("votes must come back in tag order"))
	}

	// Votes of another poll do not leak into the listing.
	other := util.RandomBytes(types.PollIDSize)
	v, st := testVote(other, 0)
	c.Assert(stg.CommitVote(v, st, util.RandomBytes(32)), qt.IsNil)
	votes, err = stg.ListVotes(pollID)
	c.Assert(err, qt.IsNil)
	c.Assert(votes, qt.HasLen, 8)
}

func TestEpochs(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	_, err := stg.LatestEpoch()
	c.Assert(err, qt.Equals, ErrNotFound)

	now := time.Unix(1724400000, 0).UTC()
	for id := uint32(1); id <= 3; id++ {
		c.Assert(stg.SetEpoch(&Epoch{
			ID:        id,
			Seed:      util.RandomBytes(32),
			NotBefore: now.Add(time.Duration(id) * time.Hour),
			NotAfter:  now.Add(time.Duration(id+48) * time.Hour),
		}), qt.IsNil)
	}

	epochs, err := stg.ListEpochs()
	c.Assert(err, qt.IsNil)
	c.Assert(epochs, qt.HasLen, 3)
	for i, e := range epochs {
		c.Assert(e.ID, qt.Equals, uint32(i+1))
	}

	latest, err := stg.LatestEpoch()
	c.Assert(err, qt.IsNil)
	c.Assert(latest.ID, qt.Equals, uint32(3))

	// Liveness window and retirement.
	e := epochs[0]
	c.Assert(e.Live(now), qt.IsFalse)
	c.Assert(e.Live(now.Add(2*time.Hour)), qt.IsTrue)
	c.Assert(e.Live(now.Add(100*time.Hour)), qt.IsFalse)
	e.Retired = true
	c.Assert(e.Live(now.Add(2*time.Hour)), qt.IsFalse)
}

func TestUpdatePoll(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	poll := &types.Poll{
		ID:          util.RandomBytes(types.PollIDSize),
		Title:       "storage test poll",
		ChoiceCount: 3,
		Scope:       types.ScopeCommunity,
		MinTier:     types.TierT1,
		Status:      types.PollStatusDraft,
		CreatedAt:   time.Unix(1724400000, 0).UTC(),
	}
	c.Assert(stg.SetPoll(poll), qt.IsNil)

	c.Assert(stg.UpdatePoll(poll.ID, func(p *types.Poll) error {
		if !p.Status.CanTransition(types.PollStatusActive) {
			return ErrNotFound
		}
		p.Status = types.PollStatusActive
		return nil
	}), qt.IsNil)

	got, err := stg.Poll(poll.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Status, qt.Equals, types.PollStatusActive)

	// A failing update function leaves the stored poll untouched.
	wantErr := errors.New("refuse")
	err = stg.UpdatePoll(poll.ID, func(p *types.Poll) error {
		p.Status = types.PollStatusFinalized
		return wantErr
	})
	c.Assert(err, qt.Equals, wantErr)
	got, err = stg.Poll(poll.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Status, qt.Equals, types.PollStatusActive)

	polls, err := stg.ListPolls()
	c.Assert(err, qt.IsNil)
	c.Assert(polls, qt.HasLen, 1)
}
