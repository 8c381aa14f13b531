package types

import (
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// Vote is an accepted ballot. Votes are keyed by (PollID, Tag); the leaf
// hash commits to the ballot contents and is the value appended to the
// poll's commitment tree.
type Vote struct {
	PollID      HexBytes  `json:"pollId"`
	Tag         HexBytes  `json:"tag"`
	Choice      uint32    `json:"choice"`
	Tier        Tier      `json:"tier"`
	Salt        HexBytes  `json:"salt"`
	LeafHash    HexBytes  `json:"leafHash"`
	LeafIndex   uint64    `json:"leafIndex"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// VoteLeafHash computes the commitment-tree leaf for a ballot:
// SHA-256(pollID || tag || choice || salt). The salt is random per vote so
// leaves do not reveal choices to an offline dictionary sweep.
func VoteLeafHash(pollID, tag []byte, choice uint32, salt []byte) HexBytes {
	buf := make([]byte, 0, len(pollID)+len(tag)+4+len(salt))
	buf = append(buf, pollID...)
	buf = append(buf, tag...)
	buf = binary.BigEndian.AppendUint32(buf, choice)
	buf = append(buf, salt...)
	hash := sha256.Sum256(buf)
	return hash[:]
}

// Receipt is the inclusion receipt handed to a voter at submission time. It
// is verifiable by any third party against the published root: no authority
// involvement is needed.
type Receipt struct {
	PollID    HexBytes   `json:"pollId"`
	LeafHash  HexBytes   `json:"leafHash"`
	LeafIndex uint64     `json:"leafIndex"`
	TreeSize  uint64     `json:"treeSize"`
	Root      HexBytes   `json:"root"`
	Proof     []HexBytes `json:"proof"`
}
