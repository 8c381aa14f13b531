package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/veilvote/veilvote/audit"
	"github.com/veilvote/veilvote/types"
)

// submitVote redeems a token and records the ballot under its pseudonym
// tag. Rejections are collapsed into a single error code so a caller
// cannot probe whether a given token was spent, revoked or never valid.
// POST /polls/{pollId}/votes
func (a *API) submitVote(w http.ResponseWriter, r *http.Request) {
	pollID, err := urlPollID(r)
	if err != nil {
		ErrMalformedBody.Withf("could not decode poll id: %v", err).Write(w)
		return
	}
	req := &VoteRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if req.Token == nil {
		ErrMalformedBody.With("missing token").Write(w)
		return
	}
	if !bytes.Equal(req.Token.PollID, pollID) {
		ErrMalformedBody.With("token poll does not match URL").Write(w)
		return
	}
	receipt, err := a.ballotbox.Submit(r.Context(), req.Token, req.Choice)
	if err != nil {
		a.trail.Failure(audit.CategoryRedemption, "vote submit", auditOutcome(err), map[string]string{
			"poll": pollID.String(),
		})
		errorFor(err).Write(w)
		return
	}
	a.trail.Success(audit.CategoryRedemption, "vote submit", map[string]string{
		"poll": pollID.String(),
		"leaf": fmt.Sprintf("%d", receipt.LeafIndex),
	})
	httpWriteJSON(w, receipt)
}

// verifyReceipt checks an inclusion receipt against the stored log roots
// POST /receipts/verify
func (a *API) verifyReceipt(w http.ResponseWriter, r *http.Request) {
	receipt := &types.Receipt{}
	if err := json.NewDecoder(r.Body).Decode(receipt); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	ok, err := a.ballotbox.VerifyReceipt(receipt)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, &ReceiptVerification{Valid: ok})
}
