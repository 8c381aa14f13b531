package policy

import (
	"errors"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/veilvote/veilvote/storage"
	"github.com/veilvote/veilvote/types"
	"github.com/veilvote/veilvote/util"
)

func testPoll(scope types.Scope, minTier types.Tier) *types.Poll {
	return &types.Poll{
		ID:          util.RandomBytes(types.PollIDSize),
		Title:       "policy test poll",
		ChoiceCount: 2,
		Scope:       scope,
		MinTier:     minTier,
		Status:      types.PollStatusActive,
	}
}

func setupPolicy(t *testing.T) (*Policy, *storage.Storage) {
	stg := storage.New(metadb.NewTest(t))
	return New(stg), stg
}

func TestCheckAndReserveTierGate(t *testing.T) {
	c := qt.New(t)
	p, stg := setupPolicy(t)

	c.Assert(stg.SetUser(&storage.User{ID: "anon", Tier: types.TierT0}), qt.IsNil)
	c.Assert(stg.SetUser(&storage.User{ID: "verified", Tier: types.TierT2}), qt.IsNil)

	// Official scope demands T2; T0 is turned away, T2 passes.
	poll := testPoll(types.ScopeOfficial, types.TierT0)
	_, err := p.CheckAndReserve("anon", poll)
	c.Assert(errors.Is(err, ErrTierTooLow), qt.IsTrue)
	tier, err := p.CheckAndReserve("verified", poll)
	c.Assert(err, qt.IsNil)
	c.Assert(tier, qt.Equals, types.TierT2)

	// A poll may demand more than its scope's floor.
	strict := testPoll(types.ScopeCasual, types.TierT3)
	_, err = p.CheckAndReserve("verified", strict)
	c.Assert(errors.Is(err, ErrTierTooLow), qt.IsTrue)

	// Unknown users surface the storage error untouched.
	_, err = p.CheckAndReserve("ghost", poll)
	c.Assert(err, qt.Equals, storage.ErrNotFound)
}

func TestCheckAndReservePollCap(t *testing.T) {
	c := qt.New(t)
	p, stg := setupPolicy(t)

	c.Assert(stg.SetUser(&storage.User{ID: "alice", Tier: types.TierT1}), qt.IsNil)
	poll := testPoll(types.ScopeCommunity, types.TierT1)

	_, err := p.CheckAndReserve("alice", poll)
	c.Assert(err, qt.IsNil)

	// The poll slot is taken; a second request is rate limited.
	_, err = p.CheckAndReserve("alice", poll)
	c.Assert(errors.Is(err, ErrRateLimited), qt.IsTrue)

	// Releasing the slot admits one more request.
	c.Assert(p.Release("alice", poll), qt.IsNil)
	_, err = p.CheckAndReserve("alice", poll)
	c.Assert(err, qt.IsNil)

	// A different poll has its own slot.
	_, err = p.CheckAndReserve("alice", testPoll(types.ScopeCommunity, types.TierT1))
	c.Assert(err, qt.IsNil)
}

func TestCheckAndReserveHourlyBudget(t *testing.T) {
	c := qt.New(t)
	p, stg := setupPolicy(t)

	c.Assert(stg.SetUser(&storage.User{ID: "bob", Tier: types.TierT0}), qt.IsNil)

	now := time.Unix(1724400000, 0)
	p.limiter.now = func() time.Time { return now }

	budget := TierBudget(types.TierT0)
	for i := 0; i < budget; i++ {
		_, err := p.CheckAndReserve("bob", testPoll(types.ScopeCasual, types.TierT0))
		c.Assert(err, qt.IsNil)
	}
	_, err := p.CheckAndReserve("bob", testPoll(types.ScopeCasual, types.TierT0))
	c.Assert(errors.Is(err, ErrRateLimited), qt.IsTrue)

	// Once the window slides past the burst, requests are admitted again.
	now = now.Add(budgetWindow + time.Second)
	_, err = p.CheckAndReserve("bob", testPoll(types.ScopeCasual, types.TierT0))
	c.Assert(err, qt.IsNil)
}

func TestRateLimiterWindow(t *testing.T) {
	c := qt.New(t)

	r := NewRateLimiter(time.Minute)
	now := time.Unix(1724400000, 0)
	r.now = func() time.Time { return now }

	c.Assert(r.Allow("k", 2), qt.IsTrue)
	c.Assert(r.Allow("k", 2), qt.IsTrue)
	c.Assert(r.Allow("k", 2), qt.IsFalse)
	c.Assert(r.Hits("k"), qt.Equals, 2)

	// Independent keys do not share budgets.
	c.Assert(r.Allow("other", 2), qt.IsTrue)

	// Half the window later one hit expires... not yet.
	now = now.Add(30 * time.Second)
	c.Assert(r.Allow("k", 2), qt.IsFalse)

	// After the first hits fall out, there is room again.
	now = now.Add(31 * time.Second)
	c.Assert(r.Allow("k", 2), qt.IsTrue)

	// Prune clears idle keys entirely.
	now = now.Add(2 * time.Minute)
	r.Prune()
	c.Assert(r.Hits("k"), qt.Equals, 0)
	c.Assert(r.Hits("other"), qt.Equals, 0)
}

func TestEffectiveMinTier(t *testing.T) {
	c := qt.New(t)

	c.Assert(EffectiveMinTier(testPoll(types.ScopeCasual, types.TierT0)), qt.Equals, types.TierT0)
	c.Assert(EffectiveMinTier(testPoll(types.ScopeCommunity, types.TierT0)), qt.Equals, types.TierT1)
	c.Assert(EffectiveMinTier(testPoll(types.ScopeOfficial, types.TierT3)), qt.Equals, types.TierT3)
}
