package voprf

import (
	"math/big"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Proof is a Chaum-Pedersen proof of discrete-log equality: the same scalar
// links the generator to the proof key and the blinded element to its
// evaluation. It convinces the client that the issuer used the committed
// key rather than a per-client one.
type Proof struct {
	C fr.Element
	S fr.Element
}

// Encode returns the wire form of the proof as (challenge, response).
func (p *Proof) Encode() (c, s []byte) {
	return EncodeScalar(&p.C), EncodeScalar(&p.S)
}

// DecodeProof rebuilds a proof from its wire form.
func DecodeProof(c, s []byte) (*Proof, error) {
	cs, err := DecodeScalar(c)
	if err != nil {
		return nil, err
	}
	ss, err := DecodeScalar(s)
	if err != nil {
		return nil, err
	}
	return &Proof{C: cs, S: ss}, nil
}

// generateProof builds the DLEQ proof for Z = sk·M with commitment nonce v:
//
//	a1 = v·G1, a2 = v·M
//	c  = H(Pub1, M, Z, a1, a2)
//	s  = v - c·sk
func (kp *KeyPair) generateProof(blinded, evaluated *bn254.G1Affine) (*Proof, error) {
	v, err := randomScalar()
	if err != nil {
		return nil, err
	}
	var vBig big.Int
	v.BigInt(&vBig)

	var a1, a2 bn254.G1Affine
	a1.ScalarMultiplicationBase(&vBig)
	a2.ScalarMultiplication(blinded, &vBig)

	c, err := challenge(&kp.Pub1, blinded, evaluated, &a1, &a2)
	if err != nil {
		return nil, err
	}

	var cs, s fr.Element
	cs.Mul(&c, &kp.sk)
	s.Sub(&v, &cs)
	return &Proof{C: c, S: s}, nil
}

// VerifyProof checks a DLEQ proof by recomputing the commitments from the
// public values:
//
//	a1' = s·G1 + c·Pub1, a2' = s·M + c·Z
//
// and comparing the recomputed challenge with the one in the proof.
func VerifyProof(pub1, blinded, evaluated *bn254.G1Affine, proof *Proof) (bool, error) {
	var sBig, cBig big.Int
	proof.S.BigInt(&sBig)
	proof.C.BigInt(&cBig)

	var a1, a2, t bn254.G1Affine
	a1.ScalarMultiplicationBase(&sBig)
	t.ScalarMultiplication(pub1, &cBig)
	a1.Add(&a1, &t)

	a2.ScalarMultiplication(blinded, &sBig)
	t.ScalarMultiplication(evaluated, &cBig)
	a2.Add(&a2, &t)

	c, err := challenge(pub1, blinded, evaluated, &a1, &a2)
	if err != nil {
		return false, err
	}
	return c.Equal(&proof.C), nil
}

// challenge hashes the length-prefixed proof transcript to a scalar.
func challenge(pub1, blinded, evaluated, a1, a2 *bn254.G1Affine) (fr.Element, error) {
	transcript := concat(
		lengthPrefix(EncodeG1(pub1)),
		lengthPrefix(EncodeG1(blinded)),
		lengthPrefix(EncodeG1(evaluated)),
		lengthPrefix(EncodeG1(a1)),
		lengthPrefix(EncodeG1(a2)),
		dstChallenge,
	)
	return hashToScalar(transcript, dstHashToScalar)
}
