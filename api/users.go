package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/veilvote/veilvote/audit"
	"github.com/veilvote/veilvote/storage"
)

// registerUser ingests a verification attestation, creating the user or
// updating their tier. Re-attesting keeps the original creation time.
// POST /users
func (a *API) registerUser(w http.ResponseWriter, r *http.Request) {
	req := &UserRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if req.UserID == "" {
		ErrMalformedBody.With("userId is required").Write(w)
		return
	}
	now := time.Now()
	verifiedAt := req.VerifiedAt
	if verifiedAt.IsZero() {
		verifiedAt = now
	}
	user := &storage.User{
		ID:         req.UserID,
		Tier:       req.Tier,
		CreatedAt:  now,
		VerifiedAt: verifiedAt,
	}
	if existing, err := a.storage.User(req.UserID); err == nil {
		user.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, storage.ErrNotFound) {
		errorFor(err).Write(w)
		return
	}
	if err := a.storage.SetUser(user); err != nil {
		errorFor(err).Write(w)
		return
	}
	a.trail.Success(audit.CategoryAdmin, "user attested", map[string]string{
		"user": req.UserID,
		"tier": req.Tier.String(),
	})
	httpWriteJSON(w, &UserResponse{UserID: user.ID, Tier: user.Tier})
}
