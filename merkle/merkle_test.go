package merkle

import (
	"encoding/hex"
	"fmt"
	"testing"

	qt "github.com/frankban/quicktest"
)

// Known-answer leaves and roots from the RFC 6962 reference test data. Any
// deviation in prefixing or split points shows up here immediately.
var knownLeaves = []string{
	"",
	"00",
	"10",
	"2021",
	"3031",
	"40414243",
	"5051525354555657",
	"606162636465666768696a6b6c6d6e6f",
}

var knownRoots = []string{
	"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
	"6e340b9cffb37a989ca544e6bb780a2c78901d3fb33738768511a30617afa01d",
	"fac54203e7cc696cf0dfcb42c92a1d9dbaf70ad9e621f4bd8d98662f00e3c125",
	"aeb6bcfe274b70a14fb067a5e5578264db0fa9b51af5e0ba159158f329e06e77",
	"d37ee418976dd95753c1c73862b9398fa2a2cf9b4ff0fdfe8b30cd95209614b7",
	"4e3bbb1f7b478dcfe71fb631631519a3bca12c9aefca1612bfce4c13a86264d4",
	"76e67dadbcdf1e10e1b74ddc608abd2f98dfb16fbce75277b5232a127f2087ef",
	"ddb89be403809e325750d3d263cd78929c2942b7942a34b77e122c9594a74c8c",
	"5dc9da79a70659a9ad559cb701ded9a2ab9d823aad2f4960cfe370eff4604328",
}

func decodeLeaves(c *qt.C) [][]byte {
	leaves := make([][]byte, len(knownLeaves))
	for i, s := range knownLeaves {
		b, err := hex.DecodeString(s)
		c.Assert(err, qt.IsNil)
		leaves[i] = b
	}
	return leaves
}

func testLeaves(n int) [][]byte {
	leaves := make([][]byte, n)
	for i := range leaves {
		leaves[i] = []byte(fmt.Sprintf("leaf-%d", i))
	}
	return leaves
}

func TestKnownRoots(t *testing.T) {
	c := qt.New(t)
	leaves := decodeLeaves(c)

	for n := 0; n <= len(leaves); n++ {
		c.Assert(hex.EncodeToString(RootOf(leaves[:n])), qt.Equals, knownRoots[n],
			qt.Commentf("recursive root at size %d", n))
	}

	tree := NewTree()
	c.Assert(hex.EncodeToString(tree.Root()), qt.Equals, knownRoots[0])
	for i, leaf := range leaves {
		index, root := tree.Append(leaf)
		c.Assert(index, qt.Equals, uint64(i))
		c.Assert(hex.EncodeToString(root), qt.Equals, knownRoots[i+1],
			qt.Commentf("incremental root at size %d", i+1))
	}
	c.Assert(tree.Size(), qt.Equals, uint64(len(leaves)))
}

func TestIncrementalMatchesRecursive(t *testing.T) {
	c := qt.New(t)
	leaves := testLeaves(64)

	tree := NewTree()
	for n, leaf := range leaves {
		tree.Append(leaf)
		c.Assert(tree.Root(), qt.DeepEquals, RootOf(leaves[:n+1]),
			qt.Commentf("size %d", n+1))
	}
}

func TestRebuildRestoresRightEdge(t *testing.T) {
	c := qt.New(t)
	leaves := testLeaves(21)

	rebuilt := Rebuild(leaves[:13])
	c.Assert(rebuilt.Size(), qt.Equals, uint64(13))
	c.Assert(rebuilt.Root(), qt.DeepEquals, RootOf(leaves[:13]))

	// Appending after a rebuild continues the same tree.
	for _, leaf := range leaves[13:] {
		rebuilt.Append(leaf)
	}
	c.Assert(rebuilt.Root(), qt.DeepEquals, RootOf(leaves))
}

func TestCloneIsIndependent(t *testing.T) {
	c := qt.New(t)
	leaves := testLeaves(9)

	tree := Rebuild(leaves[:5])
	clone := tree.Clone()
	c.Assert(clone.Size(), qt.Equals, tree.Size())
	c.Assert(clone.Root(), qt.DeepEquals, tree.Root())

	// Appends on the clone do not leak into the original, and both trees
	// keep matching the recursive reference.
	clone.Append(leaves[5])
	c.Assert(tree.Size(), qt.Equals, uint64(5))
	c.Assert(tree.Root(), qt.DeepEquals, RootOf(leaves[:5]))
	c.Assert(clone.Root(), qt.DeepEquals, RootOf(leaves[:6]))

	tree.Append([]byte("divergent"))
	c.Assert(clone.Root(), qt.DeepEquals, RootOf(leaves[:6]))
}

func TestInclusionExhaustive(t *testing.T) {
	c := qt.New(t)
	leaves := testLeaves(32)

	for n := 1; n <= len(leaves); n++ {
		root := RootOf(leaves[:n])
		for i := uint64(0); i < uint64(n); i++ {
			proof, err := Inclusion(leaves[:n], i)
			c.Assert(err, qt.IsNil)
			ok := VerifyInclusion(leaves[i], i, uint64(n), proof, root)
			c.Assert(ok, qt.IsTrue, qt.Commentf("size %d index %d", n, i))

			// The same proof must not verify a different leaf.
			c.Assert(VerifyInclusion([]byte("someone else"), i, uint64(n), proof, root),
				qt.IsFalse)
		}
	}
}

func TestInclusionRejectsMangling(t *testing.T) {
	c := qt.New(t)
	leaves := testLeaves(11)
	root := RootOf(leaves)
	size := uint64(len(leaves))

	proof, err := Inclusion(leaves, 5)
	c.Assert(err, qt.IsNil)

	c.Assert(VerifyInclusion(leaves[5], 5, size, proof, root), qt.IsTrue)
	c.Assert(VerifyInclusion(leaves[5], 6, size, proof, root), qt.IsFalse)
	c.Assert(VerifyInclusion(leaves[5], 5, size-1, proof, root), qt.IsFalse)
	c.Assert(VerifyInclusion(leaves[5], 5, size, proof[:len(proof)-1], root), qt.IsFalse)
	c.Assert(VerifyInclusion(leaves[5], 5, size, append(proof, EmptyRoot()), root), qt.IsFalse)

	tampered := append([][]byte(nil), proof...)
	tampered[0] = EmptyRoot()
	c.Assert(VerifyInclusion(leaves[5], 5, size, tampered, root), qt.IsFalse)

	_, err = Inclusion(leaves, size)
	c.Assert(err, qt.Equals, ErrIndexOutOfRange)
}

func TestConsistencyExhaustive(t *testing.T) {
	c := qt.New(t)
	leaves := testLeaves(20)

	for n := 1; n <= len(leaves); n++ {
		newRoot := RootOf(leaves[:n])
		for m := 1; m <= n; m++ {
			oldRoot := RootOf(leaves[:m])
			proof, err := Consistency(leaves, uint64(m), uint64(n))
			c.Assert(err, qt.IsNil)
			ok := VerifyConsistency(uint64(m), uint64(n), oldRoot, newRoot, proof)
			c.Assert(ok, qt.IsTrue, qt.Commentf("sizes %d -> %d", m, n))

			// An unrelated old root cannot be consistent with this log.
			fake := RootOf([][]byte{[]byte("other log")})
			if m < n {
				c.Assert(VerifyConsistency(uint64(m), uint64(n), fake, newRoot, proof),
					qt.IsFalse, qt.Commentf("sizes %d -> %d", m, n))
			}
		}
	}
}

func TestConsistencyEdgeCases(t *testing.T) {
	c := qt.New(t)
	leaves := testLeaves(9)

	// Equal sizes: empty proof, equal roots.
	root := RootOf(leaves)
	proof, err := Consistency(leaves, 9, 9)
	c.Assert(err, qt.IsNil)
	c.Assert(proof, qt.HasLen, 0)
	c.Assert(VerifyConsistency(9, 9, root, root, nil), qt.IsTrue)
	c.Assert(VerifyConsistency(9, 9, root, EmptyRoot(), nil), qt.IsFalse)

	// Zero and inverted sizes are rejected outright.
	_, err = Consistency(leaves, 0, 5)
	c.Assert(err, qt.Equals, ErrSizeOutOfRange)
	_, err = Consistency(leaves, 7, 5)
	c.Assert(err, qt.Equals, ErrSizeOutOfRange)
	_, err = Consistency(leaves, 5, 10)
	c.Assert(err, qt.Equals, ErrSizeOutOfRange)
	c.Assert(VerifyConsistency(0, 5, EmptyRoot(), root, nil), qt.IsFalse)
	c.Assert(VerifyConsistency(7, 5, root, root, nil), qt.IsFalse)
}

func TestRootSnapshotsStable(t *testing.T) {
	c := qt.New(t)
	leaves := testLeaves(33)

	// Record the root at every size while the tree grows.
	snapshots := make([][]byte, 0, len(leaves))
	tree := NewTree()
	for _, leaf := range leaves {
		_, root := tree.Append(leaf)
		snapshots = append(snapshots, root)
	}

	// Earlier roots are still derivable from the final leaf set: appends
	// never rewrote them.
	for n, want := range snapshots {
		c.Assert(RootOf(leaves[:n+1]), qt.DeepEquals, want)
	}
}
