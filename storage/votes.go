package storage

import (
	"fmt"

	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/veilvote/veilvote/types"
)

func voteKey(pollID, tag []byte) []byte {
	key := make([]byte, 0, len(pollID)+len(tag))
	key = append(key, pollID...)
	return append(key, tag...)
}

// CommitVote is the linearizable commit point of a ballot submission. In a
// single transaction it marks the token spent, records the vote under its
// pseudonym tag, appends the commitment leaf at the vote's index and
// snapshots the new root. Under the global lock it first checks:
//   - the token hash is not in the spent set (ErrTokenSpent)
//   - the poll holds no vote for the tag yet (ErrVoteExists)
//   - the vote's leaf index equals the stored leaf count (ErrLeafMismatch,
//     the caller rebuilt its tree against a stale head and must retry)
//
// Either every write lands or none does, so a crash can never leave a
// spent token without its vote or a leaf without its root.
func (s *Storage) CommitVote(v *types.Vote, st *SpentToken, root types.HexBytes) error {
	if v == nil || st == nil {
		return fmt.Errorf("nil vote or spent token")
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	spent, err := s.hasArtifact(spentTokenPrefix, st.TokenHash)
	if err != nil {
		return err
	}
	if spent {
		return ErrTokenSpent
	}
	exists, err := s.hasArtifact(votePrefix, voteKey(v.PollID, v.Tag))
	if err != nil {
		return err
	}
	if exists {
		return ErrVoteExists
	}
	_, size, err := s.treeHead(v.PollID)
	if err != nil {
		return err
	}
	if v.LeafIndex != size {
		return ErrLeafMismatch
	}

	spentVal, err := encodeArtifact(st)
	if err != nil {
		return fmt.Errorf("encode spent token: %w", err)
	}
	voteVal, err := encodeArtifact(v)
	if err != nil {
		return fmt.Errorf("encode vote: %w", err)
	}
	headVal, err := encodeArtifact(&treeHead{Size: v.LeafIndex + 1, Root: root})
	if err != nil {
		return fmt.Errorf("encode tree head: %w", err)
	}

	tx := s.db.WriteTx()
	defer tx.Discard()
	if err := prefixeddb.NewPrefixedWriteTx(tx, spentTokenPrefix).Set(st.TokenHash, spentVal); err != nil {
		return err
	}
	if err := prefixeddb.NewPrefixedWriteTx(tx, votePrefix).Set(voteKey(v.PollID, v.Tag), voteVal); err != nil {
		return err
	}
	if err := prefixeddb.NewPrefixedWriteTx(tx, leafPrefix).Set(leafKey(v.PollID, v.LeafIndex), v.LeafHash); err != nil {
		return err
	}
	rootTx := prefixeddb.NewPrefixedWriteTx(tx, rootPrefix)
	if err := rootTx.Set(rootKey(v.PollID, v.LeafIndex+1), root); err != nil {
		return err
	}
	if err := rootTx.Set(v.PollID, headVal); err != nil {
		return err
	}
	return tx.Commit()
}

// Vote retrieves the vote a poll holds for a pseudonym tag. Returns
// ErrNotFound if the pseudonym has not voted.
func (s *Storage) Vote(pollID, tag []byte) (*types.Vote, error) {
	v := &types.Vote{}
	if err := s.getArtifact(votePrefix, voteKey(pollID, tag), v); err != nil {
		return nil, err
	}
	return v, nil
}

// HasVote reports whether the poll holds a vote for the tag.
func (s *Storage) HasVote(pollID, tag []byte) (bool, error) {
	return s.hasArtifact(votePrefix, voteKey(pollID, tag))
}

// ListVotes returns all votes of a poll ordered by pseudonym tag. The
// ordering comes from the key layout, so every caller sees the same
// sequence and tallies over it are reproducible.
func (s *Storage) ListVotes(pollID []byte) ([]*types.Vote, error) {
	var votes []*types.Vote
	var decodeErr error
	if err := s.iterateArtifacts(votePrefix, pollID, func(_, val []byte) bool {
		v := &types.Vote{}
		if decodeErr = decodeArtifact(val, v); decodeErr != nil {
			return false
		}
		votes = append(votes, v)
		return true
	}); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return votes, nil
}

// CountVotes returns the number of votes recorded for a poll.
func (s *Storage) CountVotes(pollID []byte) (int, error) {
	count := 0
	if err := s.iterateArtifacts(votePrefix, pollID, func(_, _ []byte) bool {
		count++
		return true
	}); err != nil {
		return 0, err
	}
	return count, nil
}
