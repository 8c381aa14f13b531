// Package issuer is the identity-authority side of the token protocol: it
// gates requests through the issuance policy, evaluates blinded elements
// under per-context epoch keys and serves the public halves of those keys.
//
// Key material is organized in epochs. Every epoch has a random master
// seed, and each (poll, tier, scope) context gets its own key pair derived
// from it, so the context of a token is fixed by the key that signed it
// and cannot be claimed differently at redemption. A rotation worker
// starts a fresh epoch once per interval; the epoch window is twice the
// interval, which keeps the previous epoch's tokens verifiable until their
// natural expiry and guarantees two live epochs in steady state.
package issuer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/veilvote/veilvote/crypto/voprf"
	"github.com/veilvote/veilvote/log"
	"github.com/veilvote/veilvote/policy"
	"github.com/veilvote/veilvote/storage"
	"github.com/veilvote/veilvote/types"
	"github.com/veilvote/veilvote/util"
)

// DefaultRotationInterval is how often a new epoch starts when the
// configuration does not say otherwise.
const DefaultRotationInterval = 24 * time.Hour

var (
	// ErrKeyUnavailable means no key material is served for the requested
	// epoch: it does not exist, was pruned, or no epoch is live yet.
	ErrKeyUnavailable = errors.New("issuer key unavailable for epoch")
	// ErrPollNotActive means the poll does not accept token issuance.
	ErrPollNotActive = errors.New("poll is not accepting token issuance")
	// ErrInvalidBlinded means the blinded element did not decode to a
	// valid group element.
	ErrInvalidBlinded = errors.New("invalid blinded element")
)

// IssueRequest is a blind token request. Tier and scope are not part of
// it: the tier comes from the user record and the scope from the poll, so
// a requester cannot claim a context the policy would not grant.
type IssueRequest struct {
	UserID  string         `json:"userId"`
	PollID  types.HexBytes `json:"pollId"`
	Blinded types.HexBytes `json:"blinded"`
}

// IssueResponse carries the blind evaluation, its DLEQ proof and the
// context the evaluation key was derived for.
type IssueResponse struct {
	Evaluated types.HexBytes `json:"evaluated"`
	ProofC    types.HexBytes `json:"proofC"`
	ProofS    types.HexBytes `json:"proofS"`
	EpochID   uint32         `json:"epochId"`
	Tier      types.Tier     `json:"tier"`
	Scope     types.Scope    `json:"scope"`
	IssuedAt  time.Time      `json:"issuedAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

// KeyResponse is the public half of one context key: the G1 proof key
// clients pin DLEQ transcripts to and the G2 verification key redemptions
// are checked against.
type KeyResponse struct {
	EpochID   uint32         `json:"epochId"`
	ProofKey  types.HexBytes `json:"proofKey"`
	VerifyKey types.HexBytes `json:"verificationKey"`
	NotBefore time.Time      `json:"notBefore"`
	NotAfter  time.Time      `json:"notAfter"`
}

// EpochInfo is the public metadata of an epoch, without any key material.
type EpochInfo struct {
	ID        uint32    `json:"id"`
	NotBefore time.Time `json:"notBefore"`
	NotAfter  time.Time `json:"notAfter"`
	Retired   bool      `json:"retired"`
	Live      bool      `json:"live"`
}

// Issuer evaluates blinded token requests and manages key epochs.
type Issuer struct {
	stg      *storage.Storage
	pol      *policy.Policy
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an issuer. No epoch exists until Start or Rotate runs, and
// issuance without a live epoch fails with ErrKeyUnavailable.
func New(stg *storage.Storage, pol *policy.Policy, rotationInterval time.Duration) (*Issuer, error) {
	if stg == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if pol == nil {
		return nil, fmt.Errorf("policy cannot be nil")
	}
	if rotationInterval <= 0 {
		rotationInterval = DefaultRotationInterval
	}
	return &Issuer{
		stg:      stg,
		pol:      pol,
		interval: rotationInterval,
		now:      time.Now,
	}, nil
}

// contextInfo builds the key-derivation context string binding a key to
// its poll, tier and scope.
func contextInfo(pollID []byte, tier types.Tier, scope types.Scope) []byte {
	return []byte(fmt.Sprintf("%x|%s|%s", pollID, tier, scope))
}

// Issue runs the policy gates and evaluates the blinded element under the
// current epoch's key for (poll, tier, scope). The reserved issuance slot
// is given back if evaluation fails after the reservation.
func (i *Issuer) Issue(ctx context.Context, req *IssueRequest) (*IssueResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	poll, err := i.stg.Poll(req.PollID)
	if err != nil {
		return nil, err
	}
	now := i.now()
	if !poll.AcceptsVotes(now) {
		return nil, ErrPollNotActive
	}
	blinded, err := voprf.DecodeG1(req.Blinded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBlinded, err)
	}

	tier, err := i.pol.CheckAndReserve(req.UserID, poll)
	if err != nil {
		return nil, err
	}
	resp, err := i.evaluate(poll, tier, &blinded, now)
	if err != nil {
		if rerr := i.pol.Release(req.UserID, poll); rerr != nil {
			log.Warnw("failed to release issuance slot",
				"user", req.UserID, "poll", poll.ID.String(), "error", rerr.Error())
		}
		return nil, err
	}
	log.Debugw("token issued",
		"poll", poll.ID.String(), "epoch", resp.EpochID,
		"tier", tier.String(), "scope", string(poll.Scope))
	return resp, nil
}

func (i *Issuer) evaluate(poll *types.Poll, tier types.Tier, blinded *bn254.G1Affine, now time.Time) (*IssueResponse, error) {
	epoch, err := i.currentEpoch(now)
	if err != nil {
		return nil, err
	}
	kp, err := voprf.DeriveKeyPair(epoch.Seed, contextInfo(poll.ID, tier, poll.Scope))
	if err != nil {
		return nil, fmt.Errorf("derive epoch key: %w", err)
	}
	z, proof, err := kp.Evaluate(blinded)
	if err != nil {
		return nil, fmt.Errorf("evaluate blinded element: %w", err)
	}
	c, s := proof.Encode()
	return &IssueResponse{
		Evaluated: voprf.EncodeG1(&z),
		ProofC:    c,
		ProofS:    s,
		EpochID:   epoch.ID,
		Tier:      tier,
		Scope:     poll.Scope,
		IssuedAt:  now,
		ExpiresAt: epoch.NotAfter,
	}, nil
}

// currentEpoch returns the newest epoch if it is live at now.
func (i *Issuer) currentEpoch(now time.Time) (*storage.Epoch, error) {
	epoch, err := i.stg.LatestEpoch()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrKeyUnavailable
		}
		return nil, err
	}
	if !epoch.Live(now) {
		return nil, ErrKeyUnavailable
	}
	return epoch, nil
}

// PublicKey derives the public key pair for (epoch, poll, tier, scope).
// Epoch id zero selects the current epoch. Unknown, retired or expired
// epochs answer ErrKeyUnavailable: this is the public endpoint, and it
// only speaks for epochs that still issue or verify.
func (i *Issuer) PublicKey(epochID uint32, pollID []byte, tier types.Tier, scope types.Scope) (*KeyResponse, error) {
	now := i.now()
	var epoch *storage.Epoch
	var err error
	if epochID == 0 {
		epoch, err = i.currentEpoch(now)
		if err != nil {
			return nil, err
		}
	} else {
		epoch, err = i.stg.Epoch(epochID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, ErrKeyUnavailable
			}
			return nil, err
		}
		if !epoch.Live(now) {
			return nil, ErrKeyUnavailable
		}
	}
	kp, err := voprf.DeriveKeyPair(epoch.Seed, contextInfo(pollID, tier, scope))
	if err != nil {
		return nil, fmt.Errorf("derive epoch key: %w", err)
	}
	return &KeyResponse{
		EpochID:   epoch.ID,
		ProofKey:  kp.ProofKey(),
		VerifyKey: kp.VerificationKey(),
		NotBefore: epoch.NotBefore,
		NotAfter:  epoch.NotAfter,
	}, nil
}

// VerificationKey serves the poll-operator side: it derives the G2 key for
// a token's context and reports whether the epoch is still live. Unlike
// PublicKey it answers for dead epochs too, because a verifier must be
// able to tell an expired token from a forged one.
func (i *Issuer) VerificationKey(epochID uint32, pollID []byte, tier types.Tier, scope types.Scope) (types.HexBytes, bool, error) {
	epoch, err := i.stg.Epoch(epochID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, ErrKeyUnavailable
		}
		return nil, false, err
	}
	kp, err := voprf.DeriveKeyPair(epoch.Seed, contextInfo(pollID, tier, scope))
	if err != nil {
		return nil, false, fmt.Errorf("derive epoch key: %w", err)
	}
	return kp.VerificationKey(), epoch.Live(i.now()), nil
}

// Epochs lists all epochs' public metadata, oldest first.
func (i *Issuer) Epochs() ([]*EpochInfo, error) {
	epochs, err := i.stg.ListEpochs()
	if err != nil {
		return nil, err
	}
	now := i.now()
	infos := make([]*EpochInfo, 0, len(epochs))
	for _, e := range epochs {
		infos = append(infos, &EpochInfo{
			ID:        e.ID,
			NotBefore: e.NotBefore,
			NotAfter:  e.NotAfter,
			Retired:   e.Retired,
			Live:      e.Live(now),
		})
	}
	return infos, nil
}

// Rotate starts the next epoch immediately, with a fresh random seed and a
// validity window of twice the rotation interval.
func (i *Issuer) Rotate() error {
	now := i.now()
	nextID := uint32(1)
	latest, err := i.stg.LatestEpoch()
	switch {
	case err == nil:
		nextID = latest.ID + 1
	case errors.Is(err, storage.ErrNotFound):
	default:
		return err
	}
	epoch := &storage.Epoch{
		ID:        nextID,
		Seed:      util.RandomBytes(32),
		NotBefore: now,
		NotAfter:  now.Add(2 * i.interval),
	}
	if err := i.stg.SetEpoch(epoch); err != nil {
		return fmt.Errorf("store epoch %d: %w", nextID, err)
	}
	log.Infow("issuer epoch created",
		"epoch", nextID, "notAfter", epoch.NotAfter.Format(time.RFC3339))
	return nil
}

// rotateIfDue creates the next epoch once the current one has run for a
// full interval, and retires epochs whose window has fully passed.
func (i *Issuer) rotateIfDue() error {
	now := i.now()
	latest, err := i.stg.LatestEpoch()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return i.Rotate()
		}
		return err
	}
	if now.Sub(latest.NotBefore) >= i.interval {
		if err := i.Rotate(); err != nil {
			return err
		}
	}
	epochs, err := i.stg.ListEpochs()
	if err != nil {
		return err
	}
	for _, e := range epochs {
		if !e.Retired && now.After(e.NotAfter) {
			e.Retired = true
			if err := i.stg.SetEpoch(e); err != nil {
				return fmt.Errorf("retire epoch %d: %w", e.ID, err)
			}
			log.Infow("issuer epoch retired", "epoch", e.ID)
		}
	}
	return nil
}
