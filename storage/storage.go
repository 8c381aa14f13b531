// storage package persists every artifact of the voting-token pipeline in a
// prefixed key-value store and provides the atomic read-modify-write
// operations the services above it rely on. The following prefixes are
// used:
//   - 'us/' for registered users and their verification tier
//   - 'ct/' for per-user token issuance counters
//   - 'ep/' for issuer key epochs
//   - 'tk/' for spent token hashes
//   - 'pl/' for polls
//   - 'vt/' for recorded votes, keyed by poll and pseudonym tag
//   - 'lf/' for commitment log leaves, keyed by poll and leaf index
//   - 'rt/' for commitment log root snapshots, keyed by poll and size
//
// All check-then-write operations take the global lock and commit through a
// single write transaction, so concurrent callers observe them as atomic.
package storage

import (
	"errors"
	"sync"

	"go.vocdoni.io/dvote/db"
)

var (
	// Prefixes for the keys in the database.
	userPrefix       = []byte("us/")
	counterPrefix    = []byte("ct/")
	epochPrefix      = []byte("ep/")
	spentTokenPrefix = []byte("tk/")
	pollPrefix       = []byte("pl/")
	votePrefix       = []byte("vt/")
	leafPrefix       = []byte("lf/")
	rootPrefix       = []byte("rt/")
)

const (
	// maxKeySize is the maximum size of hashed keys in bytes. Keys derived
	// from variable-length identifiers are truncated hashes of this size.
	maxKeySize = 12
)

var (
	// ErrNotFound is returned when the requested artifact does not exist.
	ErrNotFound = errors.New("artifact not found")
	// ErrTokenSpent is returned by CommitVote when the token hash is
	// already in the spent set.
	ErrTokenSpent = errors.New("token already spent")
	// ErrVoteExists is returned by CommitVote when the poll already holds
	// a vote under the same pseudonym tag.
	ErrVoteExists = errors.New("vote already recorded for pseudonym")
	// ErrCounterLimit is returned by CheckAndReserve when the issuance
	// counter is exhausted.
	ErrCounterLimit = errors.New("issuance limit reached")
	// ErrLeafMismatch is returned by CommitVote when the vote's leaf index
	// does not match the stored leaf count, meaning the caller appended
	// against a stale tree.
	ErrLeafMismatch = errors.New("leaf index does not match stored leaf count")
)

// Storage is the interface that wraps the basic methods to interact with the
// storage.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex
}

// New creates a new Storage instance.
func New(db db.Database) *Storage {
	return &Storage{db: db}
}

// Close closes the storage.
func (s *Storage) Close() {
	s.db.Close()
}
