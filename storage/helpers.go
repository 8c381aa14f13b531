package storage

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// Artifact encoding/decoding
func encodeArtifact(a any) ([]byte, error) {
	encOpts := cbor.CoreDetEncOptions()
	em, err := encOpts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return em.Marshal(a)
}

func decodeArtifact(data []byte, out any) error {
	return cbor.Unmarshal(data, out)
}

func hashKey(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:maxKeySize]
}

// setArtifact encodes and stores an artifact under prefix/key in its own
// transaction.
func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	val, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Set(key, val); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// getArtifact loads and decodes the artifact at prefix/key into out.
// Returns ErrNotFound if the key does not exist.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	rTx := prefixeddb.NewPrefixedReader(s.db, prefix)
	data, err := rTx.Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return decodeArtifact(data, out)
}

// getRaw loads the raw bytes at prefix/key without decoding. Returns
// ErrNotFound if the key does not exist.
func (s *Storage) getRaw(prefix, key []byte) ([]byte, error) {
	rTx := prefixeddb.NewPrefixedReader(s.db, prefix)
	data, err := rTx.Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// hasArtifact reports whether prefix/key exists.
func (s *Storage) hasArtifact(prefix, key []byte) (bool, error) {
	rTx := prefixeddb.NewPrefixedReader(s.db, prefix)
	if _, err := rTx.Get(key); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// iterateArtifacts walks the entries under prefix whose key additionally
// starts with from, in lexicographic key order. Callback keys come without
// the from part, matching the underlying reader.
func (s *Storage) iterateArtifacts(prefix, from []byte, fn func(k, v []byte) bool) error {
	return prefixeddb.NewPrefixedReader(s.db, prefix).Iterate(from, fn)
}

// deleteArtifact removes prefix/key in its own transaction. Missing keys
// are not an error.
func (s *Storage) deleteArtifact(prefix, key []byte) error {
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Delete(key); err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}
