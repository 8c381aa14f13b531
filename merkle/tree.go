// Package merkle implements the append-only commitment log for vote
// ledgers as an RFC 6962 Merkle tree: leaves are hashed with a 0x00 prefix
// and interior nodes with 0x01, inclusion and consistency proofs follow the
// RFC 9162 algorithms, and appends run in O(log n) by keeping only the
// right edge of the tree in memory.
//
// The package works on opaque leaf data. Callers hand in the canonical
// leaf encoding; everything above the leaf layer is this package's concern.
package merkle

import (
	"crypto/sha256"
	"errors"
	"math/bits"
)

// HashSize is the size of every node hash in the tree.
const HashSize = sha256.Size

var (
	// ErrIndexOutOfRange is returned when a leaf index does not exist in
	// the tree size the proof was requested for.
	ErrIndexOutOfRange = errors.New("merkle: leaf index out of range")
	// ErrSizeOutOfRange is returned when a proof is requested for tree
	// sizes that are empty, inverted or beyond the known leaves.
	ErrSizeOutOfRange = errors.New("merkle: tree size out of range")
)

var leafPrefix = []byte{0x00}
var nodePrefix = []byte{0x01}

// EmptyRoot returns the root of the empty tree, the hash of the empty
// string.
func EmptyRoot() []byte {
	h := sha256.Sum256(nil)
	return h[:]
}

// HashLeaf hashes leaf data with the leaf domain prefix.
func HashLeaf(data []byte) []byte {
	h := sha256.New()
	h.Write(leafPrefix)
	h.Write(data)
	return h.Sum(nil)
}

// HashChildren hashes two child nodes with the interior domain prefix.
func HashChildren(left, right []byte) []byte {
	h := sha256.New()
	h.Write(nodePrefix)
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// Tree appends leaves incrementally. It keeps one node per perfect subtree
// on the right edge, so memory is logarithmic in the leaf count and each
// append does at most log2(n) hashes.
//
// Tree is not safe for concurrent use; callers serialize appends per log.
type Tree struct {
	size  uint64
	stack [][]byte
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{}
}

// Rebuild replays stored leaf data into a fresh tree, restoring the right
// edge for a log reopened from persistence.
func Rebuild(leaves [][]byte) *Tree {
	t := NewTree()
	for _, leaf := range leaves {
		t.Append(leaf)
	}
	return t
}

// Append adds one leaf and returns its index and the new root. Perfect
// subtrees complete bottom-up: the old size has one trailing set bit per
// pending merge.
func (t *Tree) Append(leafData []byte) (uint64, []byte) {
	index := t.size
	t.stack = append(t.stack, HashLeaf(leafData))
	for m := t.size; m&1 == 1; m >>= 1 {
		right := t.stack[len(t.stack)-1]
		left := t.stack[len(t.stack)-2]
		t.stack = t.stack[:len(t.stack)-2]
		t.stack = append(t.stack, HashChildren(left, right))
	}
	t.size++
	return index, t.Root()
}

// Size returns the number of leaves appended so far.
func (t *Tree) Size() uint64 {
	return t.size
}

// Clone returns an independent copy of the tree, so an append can be
// staged and thrown away if its commit fails. Node hashes are shared
// between the copies; that is safe because nodes are never mutated after
// creation.
func (t *Tree) Clone() *Tree {
	stack := make([][]byte, len(t.stack))
	copy(stack, t.stack)
	return &Tree{size: t.size, stack: stack}
}

// Root folds the right edge into the current root. The returned slice is a
// fresh copy.
func (t *Tree) Root() []byte {
	if t.size == 0 {
		return EmptyRoot()
	}
	acc := t.stack[len(t.stack)-1]
	for i := len(t.stack) - 2; i >= 0; i-- {
		acc = HashChildren(t.stack[i], acc)
	}
	return append([]byte(nil), acc...)
}

// split returns the largest power of two strictly smaller than n. The tree
// recursions all cut at this boundary.
func split(n uint64) uint64 {
	return uint64(1) << (bits.Len64(n-1) - 1)
}

// RootOf computes the root over leaf data recursively, per the RFC 6962
// Merkle tree head definition. It is the reference against which the
// incremental tree is tested, and the proof builders share its recursion.
func RootOf(leaves [][]byte) []byte {
	switch len(leaves) {
	case 0:
		return EmptyRoot()
	case 1:
		return HashLeaf(leaves[0])
	}
	k := split(uint64(len(leaves)))
	return HashChildren(RootOf(leaves[:k]), RootOf(leaves[k:]))
}
