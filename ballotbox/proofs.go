package ballotbox

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/veilvote/veilvote/merkle"
	"github.com/veilvote/veilvote/storage"
	"github.com/veilvote/veilvote/types"
)

// RootInfo is the published head of a poll's commitment log.
type RootInfo struct {
	PollID    types.HexBytes `json:"pollId"`
	Root      types.HexBytes `json:"root"`
	TreeSize  uint64         `json:"treeSize"`
	Finalized bool           `json:"finalized"`
}

// ConsistencyResponse proves that the log at NewSize is an append-only
// extension of the log at OldSize.
type ConsistencyResponse struct {
	PollID  types.HexBytes   `json:"pollId"`
	OldSize uint64           `json:"oldSize"`
	NewSize uint64           `json:"newSize"`
	OldRoot types.HexBytes   `json:"oldRoot"`
	NewRoot types.HexBytes   `json:"newRoot"`
	Proof   []types.HexBytes `json:"proof"`
}

// receipt assembles the inclusion receipt for a freshly appended leaf.
// Callers hold treesLock, so the persisted leaves match size.
func (b *Ballotbox) receipt(pollID, leaf types.HexBytes, index, size uint64, root []byte) (*types.Receipt, error) {
	leaves, err := b.stg.LeafHashes(pollID)
	if err != nil {
		return nil, err
	}
	proof, err := merkle.Inclusion(leaves, index)
	if err != nil {
		return nil, err
	}
	return &types.Receipt{
		PollID:    pollID,
		LeafHash:  leaf,
		LeafIndex: index,
		TreeSize:  size,
		Root:      root,
		Proof:     hexProof(proof),
	}, nil
}

// VerifyReceipt checks a receipt against the poll's persisted root
// snapshot at the receipt's tree size. A receipt whose root was never
// published for that size is rejected even if internally consistent. The
// returned error is reserved for storage faults; a bad receipt is just
// false.
func (b *Ballotbox) VerifyReceipt(r *types.Receipt) (bool, error) {
	if r == nil || r.TreeSize == 0 || len(r.LeafHash) == 0 {
		return false, nil
	}
	snapshot, err := b.stg.RootAt(r.PollID, r.TreeSize)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !bytes.Equal(snapshot, r.Root) {
		return false, nil
	}
	return merkle.VerifyInclusion(r.LeafHash, r.LeafIndex, r.TreeSize, rawProof(r.Proof), r.Root), nil
}

// CommitmentRoot returns the current head of the poll's commitment log.
func (b *Ballotbox) CommitmentRoot(pollID []byte) (*RootInfo, error) {
	poll, err := b.stg.Poll(pollID)
	if err != nil {
		return nil, err
	}
	root, size, err := b.stg.TreeHead(pollID)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		root = merkle.EmptyRoot()
	}
	return &RootInfo{
		PollID:    poll.ID,
		Root:      root,
		TreeSize:  size,
		Finalized: poll.Status == types.PollStatusFinalized,
	}, nil
}

// ConsistencyProof proves the current log extends the log as it was at
// oldSize. Sizes outside [1, current] answer merkle.ErrSizeOutOfRange.
func (b *Ballotbox) ConsistencyProof(pollID []byte, oldSize uint64) (*ConsistencyResponse, error) {
	poll, err := b.stg.Poll(pollID)
	if err != nil {
		return nil, err
	}
	newRoot, newSize, err := b.stg.TreeHead(pollID)
	if err != nil {
		return nil, err
	}
	if oldSize == 0 || oldSize > newSize {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", merkle.ErrSizeOutOfRange, oldSize, newSize)
	}
	oldRoot, err := b.stg.RootAt(pollID, oldSize)
	if err != nil {
		return nil, err
	}
	leaves, err := b.stg.LeafHashes(pollID)
	if err != nil {
		return nil, err
	}
	proof, err := merkle.Consistency(leaves, oldSize, newSize)
	if err != nil {
		return nil, err
	}
	return &ConsistencyResponse{
		PollID:  poll.ID,
		OldSize: oldSize,
		NewSize: newSize,
		OldRoot: oldRoot,
		NewRoot: newRoot,
		Proof:   hexProof(proof),
	}, nil
}

func hexProof(proof [][]byte) []types.HexBytes {
	out := make([]types.HexBytes, len(proof))
	for i, node := range proof {
		out[i] = node
	}
	return out
}

func rawProof(proof []types.HexBytes) [][]byte {
	out := make([][]byte, len(proof))
	for i, node := range proof {
		out[i] = node
	}
	return out
}
