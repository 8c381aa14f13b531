// Package ethereum provides secp256k1 signing keys with Ethereum-style
// address derivation and personal-message signatures. Poll organizers
// authenticate lifecycle operations with these signatures, and the API
// recovers their address straight from the signature.
package ethereum

import (
	"crypto/ecdsa"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/veilvote/veilvote/types"
	"github.com/veilvote/veilvote/util"
)

// SignatureLength is the size of an Ethereum signature (R || S || V).
const SignatureLength = ethcrypto.SignatureLength

// SignKeys holds a secp256k1 key pair.
type SignKeys struct {
	Public  ecdsa.PublicKey
	Private ecdsa.PrivateKey
}

// NewSignKeys returns an empty key pair, ready for Generate or AddHexKey.
func NewSignKeys() *SignKeys {
	return &SignKeys{}
}

// Generate creates a fresh random key pair.
func (k *SignKeys) Generate() error {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return err
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// AddHexKey imports a hex-encoded private key, with or without 0x prefix.
func (k *SignKeys) AddHexKey(privHex string) error {
	key, err := ethcrypto.HexToECDSA(util.TrimHex(privHex))
	if err != nil {
		return err
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// HexString returns the compressed public key and the private key as hex.
func (k *SignKeys) HexString() (string, string) {
	pubHex := fmt.Sprintf("%x", k.PublicKey())
	privHex := fmt.Sprintf("%x", ethcrypto.FromECDSA(&k.Private))
	return pubHex, privHex
}

// PublicKey returns the compressed public key bytes.
func (k *SignKeys) PublicKey() types.HexBytes {
	return ethcrypto.CompressPubkey(&k.Public)
}

// Address returns the Ethereum address behind the public key.
func (k *SignKeys) Address() ethcommon.Address {
	return ethcrypto.PubkeyToAddress(k.Public)
}

// AddressString returns the checksummed 0x address string.
func (k *SignKeys) AddressString() string {
	return k.Address().String()
}

// SignEthereum signs a message with the Ethereum personal-message framing,
// so signatures can be produced by any standard wallet.
func (k *SignKeys) SignEthereum(message []byte) ([]byte, error) {
	if k.Private.D == nil {
		return nil, fmt.Errorf("no private key available")
	}
	return ethcrypto.Sign(Hash(message), &k.Private)
}

// Hash computes the Keccak256 hash of the message wrapped in the Ethereum
// signed-message envelope.
func Hash(message []byte) []byte {
	return ethcrypto.Keccak256(
		[]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)),
	)
}

// AddrFromPublicKey derives the address from a compressed or uncompressed
// public key.
func AddrFromPublicKey(pub types.HexBytes) (ethcommon.Address, error) {
	var pubKey *ecdsa.PublicKey
	var err error
	switch len(pub) {
	case 33:
		pubKey, err = ethcrypto.DecompressPubkey(pub)
	case 65:
		pubKey, err = ethcrypto.UnmarshalPubkey(pub)
	default:
		return ethcommon.Address{}, fmt.Errorf("invalid public key length %d", len(pub))
	}
	if err != nil {
		return ethcommon.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(*pubKey), nil
}

// AddrFromSignature recovers the signer address from a personal-message
// signature. Recovery ids 27/28 are normalized to 0/1 so signatures from
// browser wallets verify unchanged.
func AddrFromSignature(message, signature []byte) (ethcommon.Address, error) {
	if len(signature) != SignatureLength {
		return ethcommon.Address{}, fmt.Errorf("invalid signature length %d", len(signature))
	}
	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[64] > 1 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(Hash(message), sig)
	if err != nil {
		return ethcommon.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
