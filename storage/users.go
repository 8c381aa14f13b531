package storage

import (
	"fmt"
	"time"

	"github.com/veilvote/veilvote/types"
)

// User is an account known to the issuance side, carrying the verification
// tier its identity checks reached. The identifier is opaque to the
// protocol; only the tier matters for issuance decisions.
type User struct {
	ID         string     `json:"id"`
	Tier       types.Tier `json:"tier"`
	CreatedAt  time.Time  `json:"createdAt"`
	VerifiedAt time.Time  `json:"verifiedAt"`
}

// SetUser stores or replaces a user record.
func (s *Storage) SetUser(u *User) error {
	if u == nil || u.ID == "" {
		return fmt.Errorf("nil or empty user")
	}
	return s.setArtifact(userPrefix, hashKey([]byte(u.ID)), u)
}

// User retrieves a user by identifier. Returns ErrNotFound if the user was
// never registered.
func (s *Storage) User(id string) (*User, error) {
	u := &User{}
	if err := s.getArtifact(userPrefix, hashKey([]byte(id)), u); err != nil {
		return nil, err
	}
	return u, nil
}
