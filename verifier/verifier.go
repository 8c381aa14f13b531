// Package verifier is the poll-operator side of token redemption. A
// redeemed token reveals its per-poll seed and unblinded output; the
// verifier checks the pair against the issuer's verification key for the
// context the token claims, enforces epoch expiry and consults the spend
// set. The verifier never needs the issuer's secrets, only the public key
// interface, so issuer and poll operator can run as separate services.
//
// Spent, revoked and cryptographically invalid tokens return distinct
// errors here so the caller can audit precisely; transports are expected
// to collapse them into one opaque rejection, since telling a voter which
// of the three happened would leak whether a given token exists.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/veilvote/veilvote/crypto/voprf"
	"github.com/veilvote/veilvote/storage"
	"github.com/veilvote/veilvote/types"
)

var (
	// ErrInvalidToken means the token does not verify against the issuer
	// key for its claimed context, or is malformed.
	ErrInvalidToken = errors.New("token does not verify")
	// ErrTokenExpired means the token verifies but its epoch window has
	// passed.
	ErrTokenExpired = errors.New("token epoch expired")
	// ErrTokenRevoked means the token was administratively revoked.
	ErrTokenRevoked = errors.New("token revoked")
)

// KeySource yields issuer verification keys for a token context. The live
// flag reports whether the epoch is still inside its validity window; keys
// of dead epochs are still returned, so an expired token can be told apart
// from a forged one. Unknown epochs return an error.
type KeySource interface {
	VerificationKey(epochID uint32, pollID []byte, tier types.Tier, scope types.Scope) (key types.HexBytes, live bool, err error)
}

// Verifier checks revealed tokens and guards the spend set.
type Verifier struct {
	keys KeySource
	stg  *storage.Storage
}

// New creates a verifier over the given key source and storage.
func New(keys KeySource, stg *storage.Storage) (*Verifier, error) {
	if keys == nil {
		return nil, fmt.Errorf("key source cannot be nil")
	}
	if stg == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	return &Verifier{keys: keys, stg: stg}, nil
}

// Verify checks the token's shape, its output against the issuer key for
// (epoch, poll, tier, scope), the epoch window and the spend set, in that
// order. It does not claim the token; use CheckAndMark for that, or commit
// the spend inside a vote transaction.
func (v *Verifier) Verify(ctx context.Context, token *types.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if token == nil {
		return fmt.Errorf("%w: nil token", ErrInvalidToken)
	}
	if len(token.Seed) != types.TokenSeedSize {
		return fmt.Errorf("%w: seed must be %d bytes", ErrInvalidToken, types.TokenSeedSize)
	}
	if len(token.Output) != voprf.ElementSize {
		return fmt.Errorf("%w: output must be %d bytes", ErrInvalidToken, voprf.ElementSize)
	}
	if !token.Tier.Valid() || !token.Scope.Valid() {
		return fmt.Errorf("%w: unknown tier or scope", ErrInvalidToken)
	}

	// The verification key is derived from the claimed context, so a
	// token presented with an escalated tier or a different poll simply
	// fails the pairing check.
	key, live, err := v.keys.VerificationKey(token.EpochID, token.PollID, token.Tier, token.Scope)
	if err != nil {
		return fmt.Errorf("%w: no verification key for epoch %d", ErrInvalidToken, token.EpochID)
	}
	ok, err := voprf.VerifyToken(token.Seed, token.Output, key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !ok {
		return ErrInvalidToken
	}
	if !live {
		return fmt.Errorf("%w: epoch %d", ErrTokenExpired, token.EpochID)
	}

	rec, err := v.stg.SpentTokenRecord(token.Hash())
	switch {
	case err == nil:
		if rec.Revoked {
			return ErrTokenRevoked
		}
		return storage.ErrTokenSpent
	case errors.Is(err, storage.ErrNotFound):
		return nil
	default:
		return err
	}
}

// CheckAndMark verifies the token and atomically claims it in the spend
// set. Of any number of concurrent calls with the same token, exactly one
// succeeds; the rest fail with storage.ErrTokenSpent. The vote pipeline
// does not use this: it claims the token inside the vote commit
// transaction, so the spend and the vote land together or not at all.
func (v *Verifier) CheckAndMark(ctx context.Context, token *types.Token) error {
	if err := v.Verify(ctx, token); err != nil {
		return err
	}
	// The pairing check above is the slow part; honor a cancellation that
	// arrived during it rather than claiming a token the caller gave up on.
	if err := ctx.Err(); err != nil {
		return err
	}
	return v.stg.MarkTokenSpent(SpendRecord(token))
}

// SpendRecord builds the spend-set record for a verified token.
func SpendRecord(token *types.Token) *storage.SpentToken {
	return &storage.SpentToken{
		TokenHash: token.Hash(),
		PollID:    token.PollID,
		EpochID:   token.EpochID,
		SpentAt:   time.Now(),
	}
}
