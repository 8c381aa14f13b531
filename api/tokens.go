package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/veilvote/veilvote/audit"
	"github.com/veilvote/veilvote/issuer"
	"github.com/veilvote/veilvote/types"
)

// issueToken evaluates a blinded token request under the current epoch key
// POST /tokens
func (a *API) issueToken(w http.ResponseWriter, r *http.Request) {
	req := &issuer.IssueRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if req.UserID == "" || len(req.PollID) == 0 || len(req.Blinded) == 0 {
		ErrMalformedBody.With("userId, pollId and blinded are required").Write(w)
		return
	}
	resp, err := a.issuer.Issue(r.Context(), req)
	if err != nil {
		a.trail.Failure(audit.CategoryIssuance, "token issuance", auditOutcome(err),
			map[string]string{"poll": req.PollID.String()})
		errorFor(err).Write(w)
		return
	}
	a.trail.Success(audit.CategoryIssuance, "token issuance", map[string]string{
		"poll":  req.PollID.String(),
		"epoch": fmt.Sprintf("%d", resp.EpochID),
		"tier":  resp.Tier.String(),
	})
	httpWriteJSON(w, resp)
}

// issuerKey serves the public key pair of one epoch and token context.
// Epoch 0 or a missing epoch parameter selects the current epoch.
// GET /keys?epoch=&pollId=&tier=&scope=
func (a *API) issuerKey(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var epochID uint64
	if s := q.Get("epoch"); s != "" {
		var err error
		if epochID, err = strconv.ParseUint(s, 10, 32); err != nil {
			ErrMalformedBody.Withf("invalid epoch: %v", err).Write(w)
			return
		}
	}
	pollID, err := types.HexBytesFromString(q.Get("pollId"))
	if err != nil || len(pollID) == 0 {
		ErrMalformedBody.With("invalid or missing pollId").Write(w)
		return
	}
	tier, err := types.TierFromString(q.Get("tier"))
	if err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	scope := types.Scope(q.Get("scope"))
	if !scope.Valid() {
		ErrMalformedBody.Withf("unknown scope %q", q.Get("scope")).Write(w)
		return
	}
	key, err := a.issuer.PublicKey(uint32(epochID), pollID, tier, scope)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, key)
}

// epochs lists the issuer key epochs and their validity windows
// GET /epochs
func (a *API) epochs(w http.ResponseWriter, r *http.Request) {
	infos, err := a.issuer.Epochs()
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, infos)
}
