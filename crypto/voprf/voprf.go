// Package voprf implements the verifiable oblivious pseudorandom function
// behind voting tokens, instantiated over the BN254 pairing curve.
//
// The protocol follows the RFC 9497 shape: the client hashes a secret seed
// to G1 and blinds it with a random scalar, the issuer evaluates the blinded
// element under a context-derived key and attaches a Chaum-Pedersen DLEQ
// proof, and the client verifies, unblinds and finalizes. Because BN254 is
// pairing-friendly, the unblinded output is also verifiable by any third
// party against the issuer's G2 public key: e(output, G2) == e(H(seed), pk).
// That last property is what lets a poll operator accept tokens with no
// access to issuer state.
//
// Evaluation keys are derived per (epoch seed, context) with the RFC 9497
// DeriveKeyPair counter construction, so the poll id, tier and scope of a
// token are bound by the key itself and cannot be forged inside a blinded
// element.
package voprf

import (
	"crypto/sha256"
	"errors"
	"math/big"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

var (
	// ErrDeriveKeyPairFailed means no valid scalar was found within the
	// derivation counter budget.
	ErrDeriveKeyPairFailed = errors.New("voprf: key pair derivation failed")
	// ErrInvalidElement means a group element could not be decoded or is
	// the point at infinity.
	ErrInvalidElement = errors.New("voprf: invalid group element")
	// ErrInvalidScalar means a scalar could not be decoded.
	ErrInvalidScalar = errors.New("voprf: invalid scalar")
)

// Domain separation tags, RFC 9497 style. The context string pins protocol
// version, mode and ciphersuite so transcripts never collide with other
// deployments of the same curve.
var (
	contextString   = []byte("OPRFV1-\x01-BN254G1_XMD:SHA-256")
	dstHashToGroup  = concat([]byte("HashToGroup-"), contextString)
	dstHashToScalar = concat([]byte("HashToScalar-"), contextString)
	dstDeriveKey    = concat([]byte("DeriveKeyPair"), contextString)
	dstChallenge    = []byte("Challenge")
	dstFinalize     = []byte("Finalize")
)

const (
	// ElementSize is the compressed wire size of a G1 element.
	ElementSize = bn254.SizeOfG1AffineCompressed
	// VerificationKeySize is the compressed wire size of a G2 public key.
	VerificationKeySize = bn254.SizeOfG2AffineCompressed
	// ScalarSize is the wire size of a scalar (big-endian, canonical).
	ScalarSize = fr.Bytes
)

// KeyPair is an evaluation key for one derivation context, with its two
// public halves: Pub1 anchors DLEQ transcripts, Pub2 verifies redemptions.
type KeyPair struct {
	sk   fr.Element
	Pub1 bn254.G1Affine
	Pub2 bn254.G2Affine
}

// DeriveKeyPair derives the evaluation key for the given context info from
// a secret seed, using the counter loop from RFC 9497: hash the seed, the
// length-prefixed info and a counter byte to a scalar until it is nonzero.
func DeriveKeyPair(seed, info []byte) (*KeyPair, error) {
	deriveInput := concat(seed, lengthPrefix(info))
	var sk fr.Element
	for counter := 0; ; counter++ {
		if counter > 255 {
			return nil, ErrDeriveKeyPairFailed
		}
		var err error
		sk, err = hashToScalar(concat(deriveInput, []byte{byte(counter)}), dstDeriveKey)
		if err != nil {
			return nil, err
		}
		if !sk.IsZero() {
			break
		}
	}
	kp := &KeyPair{sk: sk}
	var skBig big.Int
	sk.BigInt(&skBig)
	_, _, g1, g2 := bn254.Generators()
	kp.Pub1.ScalarMultiplication(&g1, &skBig)
	kp.Pub2.ScalarMultiplication(&g2, &skBig)
	return kp, nil
}

// ProofKey returns the encoded G1 public key used in DLEQ verification.
func (kp *KeyPair) ProofKey() []byte { return EncodeG1(&kp.Pub1) }

// VerificationKey returns the encoded G2 public key used to verify
// unblinded tokens.
func (kp *KeyPair) VerificationKey() []byte { return EncodeG2(&kp.Pub2) }

// Evaluate computes the blind evaluation Z = sk·blinded and proves it.
func (kp *KeyPair) Evaluate(blinded *bn254.G1Affine) (bn254.G1Affine, *Proof, error) {
	var z bn254.G1Affine
	var skBig big.Int
	z.ScalarMultiplication(blinded, kp.sk.BigInt(&skBig))
	proof, err := kp.generateProof(blinded, &z)
	if err != nil {
		return bn254.G1Affine{}, nil, err
	}
	return z, proof, nil
}

// Blinded holds the client state between Blind and Unblind.
type Blinded struct {
	blind   fr.Element
	element bn254.G1Affine
}

// Blind hashes the seed to G1 and multiplies it by a fresh random scalar.
// The returned state keeps the blinding scalar; only Element leaves the
// client.
func Blind(seed []byte) (*Blinded, error) {
	m, err := HashToGroup(seed)
	if err != nil {
		return nil, err
	}
	r, err := randomScalar()
	if err != nil {
		return nil, err
	}
	b := &Blinded{blind: r}
	var rBig big.Int
	b.element.ScalarMultiplication(&m, r.BigInt(&rBig))
	return b, nil
}

// Element returns the blinded group element to send to the issuer.
func (b *Blinded) Element() []byte { return EncodeG1(&b.element) }

// Unblind removes the blinding scalar from the evaluated element, yielding
// the token output sk·H(seed).
func (b *Blinded) Unblind(evaluated *bn254.G1Affine) bn254.G1Affine {
	var rInv fr.Element
	rInv.Inverse(&b.blind)
	var rInvBig big.Int
	var out bn254.G1Affine
	out.ScalarMultiplication(evaluated, rInv.BigInt(&rInvBig))
	return out
}

// Verify checks the issuer's DLEQ proof for this blinding against the
// issuer's G1 proof key, then unblinds. This is the client-side step that
// makes the OPRF verifiable at issuance time.
func (b *Blinded) Verify(proofKey, evaluated []byte, proof *Proof) (bn254.G1Affine, error) {
	pk1, err := DecodeG1(proofKey)
	if err != nil {
		return bn254.G1Affine{}, err
	}
	z, err := DecodeG1(evaluated)
	if err != nil {
		return bn254.G1Affine{}, err
	}
	ok, err := VerifyProof(&pk1, &b.element, &z, proof)
	if err != nil {
		return bn254.G1Affine{}, err
	}
	if !ok {
		return bn254.G1Affine{}, errors.New("voprf: evaluation proof does not verify")
	}
	return b.Unblind(&z), nil
}

// Finalize hashes the seed and the unblinded output into the stable token
// value, with the RFC 9497 transcript framing.
func Finalize(seed, output []byte) []byte {
	h := sha256.New()
	h.Write(lengthPrefix(seed))
	h.Write(lengthPrefix(output))
	h.Write(dstFinalize)
	return h.Sum(nil)
}

// VerifyRedemption checks that output = sk·H(seed) for the secret key
// behind pub2, using the pairing equation e(output, G2) == e(H(seed), pub2).
// Anyone holding the public key can run this; no issuer state is involved.
func VerifyRedemption(seed []byte, output *bn254.G1Affine, pub2 *bn254.G2Affine) (bool, error) {
	h, err := HashToGroup(seed)
	if err != nil {
		return false, err
	}
	var negOut bn254.G1Affine
	negOut.Neg(output)
	_, _, _, g2 := bn254.Generators()
	return bn254.PairingCheck(
		[]bn254.G1Affine{negOut, h},
		[]bn254.G2Affine{g2, *pub2},
	)
}

// VerifyToken is the byte-level form of VerifyRedemption, used by the poll
// operator on incoming submissions.
func VerifyToken(seed, output, verificationKey []byte) (bool, error) {
	y, err := DecodeG1(output)
	if err != nil {
		return false, err
	}
	pk2, err := DecodeG2(verificationKey)
	if err != nil {
		return false, err
	}
	return VerifyRedemption(seed, &y, &pk2)
}

// HashToGroup maps input to a G1 element with the protocol's DST.
func HashToGroup(input []byte) (bn254.G1Affine, error) {
	return bn254.HashToG1(input, dstHashToGroup)
}

func hashToScalar(msg, dst []byte) (fr.Element, error) {
	res, err := fr.Hash(msg, dst, 1)
	if err != nil {
		return fr.Element{}, err
	}
	return res[0], nil
}

func randomScalar() (fr.Element, error) {
	var s fr.Element
	for {
		if _, err := s.SetRandom(); err != nil {
			return s, err
		}
		if !s.IsZero() {
			return s, nil
		}
	}
}

// EncodeG1 serializes a G1 element in compressed form.
func EncodeG1(p *bn254.G1Affine) []byte {
	b := p.Bytes()
	return b[:]
}

// DecodeG1 deserializes a compressed G1 element, rejecting malformed
// encodings, off-curve points and the point at infinity. SetBytes already
// enforces subgroup membership.
func DecodeG1(data []byte) (bn254.G1Affine, error) {
	var p bn254.G1Affine
	if len(data) != ElementSize {
		return p, ErrInvalidElement
	}
	if _, err := p.SetBytes(data); err != nil {
		return p, ErrInvalidElement
	}
	if p.IsInfinity() {
		return p, ErrInvalidElement
	}
	return p, nil
}

// EncodeG2 serializes a G2 element in compressed form.
func EncodeG2(p *bn254.G2Affine) []byte {
	b := p.Bytes()
	return b[:]
}

// DecodeG2 deserializes a compressed G2 element with the same strictness as
// DecodeG1.
func DecodeG2(data []byte) (bn254.G2Affine, error) {
	var p bn254.G2Affine
	if len(data) != VerificationKeySize {
		return p, ErrInvalidElement
	}
	if _, err := p.SetBytes(data); err != nil {
		return p, ErrInvalidElement
	}
	if p.IsInfinity() {
		return p, ErrInvalidElement
	}
	return p, nil
}

// EncodeScalar serializes a scalar big-endian.
func EncodeScalar(s *fr.Element) []byte {
	b := s.Bytes()
	return b[:]
}

// DecodeScalar deserializes a scalar, reducing modulo the group order.
func DecodeScalar(data []byte) (fr.Element, error) {
	var s fr.Element
	if len(data) != ScalarSize {
		return s, ErrInvalidScalar
	}
	s.SetBytes(data)
	return s, nil
}
