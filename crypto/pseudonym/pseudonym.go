// Package pseudonym derives the per-poll pseudonymous identity a voter
// appears under on a vote ledger.
//
// The derivation has two halves. DeriveSeed stretches the voter's long-term
// secret into a per-poll token seed with HKDF, so seeds for different polls
// are computationally unlinkable while the same voter always reaches the
// same seed for the same poll. Tag then binds the seed to the issuer's PRF
// output over it, producing the ledger key. Both halves are pure functions:
// the voter and the poll operator compute the same tag from the same
// inputs, and nobody else can connect two tags across polls.
package pseudonym

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/veilvote/veilvote/crypto/voprf"
	"github.com/veilvote/veilvote/types"
)

// seedSalt fixes the HKDF salt so derivations from other protocols sharing
// a user secret cannot collide with token seeds.
const seedSalt = "veilvote-token-seed-v1"

// minSecretLen rejects user secrets too short to resist brute force of the
// seed, and with it the pseudonym.
const minSecretLen = 16

// ErrSecretTooShort is returned when the user secret has fewer than
// minSecretLen bytes.
var ErrSecretTooShort = errors.New("pseudonym: user secret too short")

// DeriveSeed derives the token seed for one poll from the voter's long-term
// secret. Identical inputs always produce the identical seed; seeds for
// different polls reveal nothing about each other.
func DeriveSeed(userSecret []byte, pollID types.HexBytes) (types.HexBytes, error) {
	if len(userSecret) < minSecretLen {
		return nil, ErrSecretTooShort
	}
	r := hkdf.New(sha256.New, userSecret, []byte(seedSalt), pollID)
	seed := make([]byte, types.TokenSeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, err
	}
	return seed, nil
}

// Tag computes the ledger pseudonym from a token seed and the issuer's PRF
// output over it. The poll operator recomputes this from a submission; the
// voter can recompute it to locate their own vote.
func Tag(seed, tokenOutput []byte) types.HexBytes {
	return voprf.Finalize(seed, tokenOutput)
}
