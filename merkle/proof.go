package merkle

import "bytes"

// Inclusion builds the audit path for the leaf at index within the given
// leaves, following the RFC 6962 PATH recursion. The path lists sibling
// hashes bottom-up.
func Inclusion(leaves [][]byte, index uint64) ([][]byte, error) {
	if index >= uint64(len(leaves)) {
		return nil, ErrIndexOutOfRange
	}
	return inclusionPath(leaves, index), nil
}

func inclusionPath(leaves [][]byte, index uint64) [][]byte {
	if len(leaves) <= 1 {
		return nil
	}
	k := split(uint64(len(leaves)))
	if index < k {
		return append(inclusionPath(leaves[:k], index), RootOf(leaves[k:]))
	}
	return append(inclusionPath(leaves[k:], index-k), RootOf(leaves[:k]))
}

// VerifyInclusion checks an audit path for leafData at index against the
// root of a tree with size leaves, using the iterative algorithm from
// RFC 9162. It hashes leafData itself, so callers pass the same canonical
// leaf encoding they appended.
func VerifyInclusion(leafData []byte, index, size uint64, proof [][]byte, root []byte) bool {
	if index >= size {
		return false
	}
	fn, sn := index, size-1
	r := HashLeaf(leafData)
	for _, p := range proof {
		if sn == 0 {
			return false
		}
		if fn&1 == 1 || fn == sn {
			r = HashChildren(p, r)
			if fn&1 == 0 {
				for fn&1 == 0 && fn != 0 {
					fn >>= 1
					sn >>= 1
				}
			}
		} else {
			r = HashChildren(r, p)
		}
		fn >>= 1
		sn >>= 1
	}
	return sn == 0 && bytes.Equal(r, root)
}

// Consistency builds the proof that the tree of the first oldSize leaves is
// a prefix of the tree of the first newSize leaves, per the RFC 6962 PROOF
// and SUBPROOF recursion. oldSize must be at least 1 and at most newSize.
func Consistency(leaves [][]byte, oldSize, newSize uint64) ([][]byte, error) {
	if oldSize == 0 || oldSize > newSize || newSize > uint64(len(leaves)) {
		return nil, ErrSizeOutOfRange
	}
	return subProof(leaves[:newSize], oldSize, true), nil
}

func subProof(leaves [][]byte, m uint64, complete bool) [][]byte {
	n := uint64(len(leaves))
	if m == n {
		if complete {
			return nil
		}
		return [][]byte{RootOf(leaves)}
	}
	k := split(n)
	if m <= k {
		return append(subProof(leaves[:k], m, complete), RootOf(leaves[k:]))
	}
	return append(subProof(leaves[k:], m-k, false), RootOf(leaves[:k]))
}

// VerifyConsistency checks that newRoot extends oldRoot, with the iterative
// algorithm from RFC 9162. Equal sizes need an empty proof and equal roots.
func VerifyConsistency(oldSize, newSize uint64, oldRoot, newRoot []byte, proof [][]byte) bool {
	if oldSize == 0 || oldSize > newSize {
		return false
	}
	if oldSize == newSize {
		return len(proof) == 0 && bytes.Equal(oldRoot, newRoot)
	}
	// A power-of-two old tree is itself a node of the new tree, so its
	// root opens the path implicitly.
	if oldSize&(oldSize-1) == 0 {
		proof = append([][]byte{oldRoot}, proof...)
	}
	if len(proof) == 0 {
		return false
	}
	fn, sn := oldSize-1, newSize-1
	for fn&1 == 1 {
		fn >>= 1
		sn >>= 1
	}
	fr := proof[0]
	sr := proof[0]
	for _, c := range proof[1:] {
		if sn == 0 {
			return false
		}
		if fn&1 == 1 || fn == sn {
			fr = HashChildren(c, fr)
			sr = HashChildren(c, sr)
			if fn&1 == 0 {
				for fn&1 == 0 && fn != 0 {
					fn >>= 1
					sn >>= 1
				}
			}
		} else {
			sr = HashChildren(sr, c)
		}
		fn >>= 1
		sn >>= 1
	}
	return sn == 0 && bytes.Equal(fr, oldRoot) && bytes.Equal(sr, newRoot)
}
