// Package policy enforces who may draw voting tokens. A request passes
// four gates in order: the user is registered, their verification tier
// meets the poll's effective minimum, their tier's hourly token budget has
// room, and the one-token-per-poll cap for the user is still free. The cap
// check reserves the slot atomically, so two racing requests for the same
// user and poll cannot both pass.
package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/veilvote/veilvote/storage"
	"github.com/veilvote/veilvote/types"
)

// DefaultTokensPerPoll caps how many tokens one user may draw for one poll
// and scope. One token means one vote; the protocol has no revote path
// that would need a second token.
const DefaultTokensPerPoll = 1

// budgetWindow is the sliding window the per-tier budgets apply to.
const budgetWindow = time.Hour

var (
	// ErrTierTooLow means the user's verification tier does not meet the
	// poll's effective minimum.
	ErrTierTooLow = errors.New("verification tier below poll requirement")
	// ErrRateLimited means an issuance budget or cap is exhausted.
	ErrRateLimited = errors.New("issuance rate limit exceeded")
)

// TierBudget returns the hourly token budget of a verification tier.
// Higher tiers cost more to obtain and get a looser budget.
func TierBudget(tier types.Tier) int {
	switch tier {
	case types.TierT0:
		return 5
	case types.TierT1:
		return 10
	case types.TierT2:
		return 20
	case types.TierT3:
		return 50
	}
	return 0
}

// Policy is the issuance gatekeeper.
type Policy struct {
	stg     *storage.Storage
	limiter *RateLimiter
}

// New creates a policy over the given storage.
func New(stg *storage.Storage) *Policy {
	return &Policy{
		stg:     stg,
		limiter: NewRateLimiter(budgetWindow),
	}
}

// Limiter exposes the policy's sliding-window limiter so transports can
// share it for their own keys.
func (p *Policy) Limiter() *RateLimiter {
	return p.limiter
}

// EffectiveMinTier returns the tier a user needs for the poll: the poll's
// own minimum, floored by what its scope demands. Unknown scopes demand
// the highest tier, failing closed.
func EffectiveMinTier(poll *types.Poll) types.Tier {
	min := poll.MinTier
	scopeMin, err := poll.Scope.MinTier()
	if err != nil {
		return types.TierT3
	}
	if scopeMin > min {
		min = scopeMin
	}
	return min
}

// CheckAndReserve runs the issuance gates for userID requesting a token for
// poll. On success the user's (poll, scope) slot is held and the user's
// tier is returned; the caller must Release the slot if issuance fails
// after this point. Unknown users surface storage.ErrNotFound.
func (p *Policy) CheckAndReserve(userID string, poll *types.Poll) (types.Tier, error) {
	user, err := p.stg.User(userID)
	if err != nil {
		return 0, err
	}
	if !user.Tier.Valid() {
		return 0, fmt.Errorf("user %s has invalid tier %d", userID, user.Tier)
	}
	if min := EffectiveMinTier(poll); user.Tier < min {
		return 0, fmt.Errorf("%w: have %s, poll requires %s", ErrTierTooLow, user.Tier, min)
	}
	if !p.limiter.Allow(userID, TierBudget(user.Tier)) {
		return 0, fmt.Errorf("%w: hourly budget of tier %s used up", ErrRateLimited, user.Tier)
	}
	if err := p.stg.CheckAndReserve(userID, poll.ID, poll.Scope, DefaultTokensPerPoll); err != nil {
		if errors.Is(err, storage.ErrCounterLimit) {
			return 0, fmt.Errorf("%w: token already issued for this poll", ErrRateLimited)
		}
		return 0, err
	}
	return user.Tier, nil
}

// Release gives back the slot held by CheckAndReserve.
func (p *Policy) Release(userID string, poll *types.Poll) error {
	return p.stg.Release(userID, poll.ID, poll.Scope)
}
