package storage

import (
	"encoding/binary"
	"errors"

	"github.com/veilvote/veilvote/types"
)

// treeHead is the per-poll commitment log head: leaf count and current
// root, updated together with every leaf. It lives under the root prefix
// at the bare poll id, beside the per-size snapshots.
type treeHead struct {
	Size uint64         `json:"size"`
	Root types.HexBytes `json:"root"`
}

func leafKey(pollID []byte, index uint64) []byte {
	key := make([]byte, 0, len(pollID)+8)
	key = append(key, pollID...)
	return binary.BigEndian.AppendUint64(key, index)
}

func rootKey(pollID []byte, size uint64) []byte {
	key := make([]byte, 0, len(pollID)+8)
	key = append(key, pollID...)
	return binary.BigEndian.AppendUint64(key, size)
}

func (s *Storage) treeHead(pollID []byte) (types.HexBytes, uint64, error) {
	head := &treeHead{}
	if err := s.getArtifact(rootPrefix, pollID, head); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	return head.Root, head.Size, nil
}

// TreeHead returns the current root and leaf count of a poll's commitment
// log. A poll with no leaves yet reports a nil root and size zero.
func (s *Storage) TreeHead(pollID []byte) (types.HexBytes, uint64, error) {
	return s.treeHead(pollID)
}

// RootAt returns the root snapshot the log had at the given size. Returns
// ErrNotFound if the log never passed through that size.
func (s *Storage) RootAt(pollID []byte, size uint64) (types.HexBytes, error) {
	rd, err := s.getRaw(rootPrefix, rootKey(pollID, size))
	if err != nil {
		return nil, err
	}
	return rd, nil
}

// LeafHash returns the leaf data stored at index.
func (s *Storage) LeafHash(pollID []byte, index uint64) (types.HexBytes, error) {
	return s.getRaw(leafPrefix, leafKey(pollID, index))
}

// LeafHashes returns all leaf data of a poll ordered by index, for
// rebuilding the in-memory tree and computing proofs.
func (s *Storage) LeafHashes(pollID []byte) ([][]byte, error) {
	var leaves [][]byte
	if err := s.iterateArtifacts(leafPrefix, pollID, func(_, v []byte) bool {
		leaf := make([]byte, len(v))
		copy(leaf, v)
		leaves = append(leaves, leaf)
		return true
	}); err != nil {
		return nil, err
	}
	return leaves, nil
}
