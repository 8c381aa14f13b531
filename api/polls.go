package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/veilvote/veilvote/audit"
	"github.com/veilvote/veilvote/ballotbox"
	"github.com/veilvote/veilvote/crypto/ethereum"
	"github.com/veilvote/veilvote/types"
)

// newPoll creates a new poll from an organizer-signed request. The
// organizer address is recovered from the signature over the creation
// payload, never taken from the body.
// POST /polls
func (a *API) newPoll(w http.ResponseWriter, r *http.Request) {
	p := &NewPoll{}
	if err := json.NewDecoder(r.Body).Decode(p); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	organizer, err := ethereum.AddrFromSignature(PollCreatePayload(p.Nonce), p.Signature)
	if err != nil {
		ErrInvalidSignature.Withf("could not extract address from signature: %v", err).Write(w)
		return
	}
	poll, err := a.ballotbox.CreatePoll(organizer, &ballotbox.PollRequest{
		Title:       p.Title,
		ChoiceCount: p.ChoiceCount,
		Scope:       p.Scope,
		MinTier:     p.MinTier,
		StartTime:   p.StartTime,
		EndTime:     p.EndTime,
		Nonce:       p.Nonce,
	})
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	a.trail.Success(audit.CategoryLifecycle, "poll created", map[string]string{
		"poll":  poll.ID.String(),
		"scope": string(poll.Scope),
	})
	httpWriteJSON(w, poll)
}

// polls lists all polls
// GET /polls
func (a *API) polls(w http.ResponseWriter, r *http.Request) {
	list, err := a.ballotbox.ListPolls()
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, list)
}

// poll returns one poll record
// GET /polls/{pollId}
func (a *API) poll(w http.ResponseWriter, r *http.Request) {
	pollID, err := urlPollID(r)
	if err != nil {
		ErrMalformedBody.Withf("could not decode poll id: %v", err).Write(w)
		return
	}
	poll, err := a.ballotbox.Poll(pollID)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, poll)
}

// changePollStatus advances the poll lifecycle. The transision payload is
// signed by the organizer; a signature by anyone else is refused.
// POST /polls/{pollId}/status
func (a *API) changePollStatus(w http.ResponseWriter, r *http.Request) {
	pollID, err := urlPollID(r)
	if err != nil {
		ErrMalformedBody.Withf("could not decode poll id: %v", err).Write(w)
		return
	}
	sc := &StatusChange{}
	if err := json.NewDecoder(r.Body).Decode(sc); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	next, err := types.PollStatusFromString(sc.Status)
	if err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	poll, err := a.ballotbox.Poll(pollID)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	signer, err := ethereum.AddrFromSignature(PollStatusPayload(pollID, sc.Status), sc.Signature)
	if err != nil {
		ErrInvalidSignature.Withf("could not extract address from signature: %v", err).Write(w)
		return
	}
	if signer != poll.Organizer {
		ErrInvalidSignature.With("signer is not the poll organizer").Write(w)
		return
	}
	updated, err := a.ballotbox.TransitionPoll(pollID, next)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	a.trail.Success(audit.CategoryLifecycle, "poll status changed", map[string]string{
		"poll":   updated.ID.String(),
		"status": updated.Status.String(),
	})
	httpWriteJSON(w, updated)
}

// pollRoot serves the current commitment log head
// GET /polls/{pollId}/root
func (a *API) pollRoot(w http.ResponseWriter, r *http.Request) {
	pollID, err := urlPollID(r)
	if err != nil {
		ErrMalformedBody.Withf("could not decode poll id: %v", err).Write(w)
		return
	}
	info, err := a.ballotbox.CommitmentRoot(pollID)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, info)
}

// pollConsistency proves the log extends its state at a previous size
// GET /polls/{pollId}/consistency?from=N
func (a *API) pollConsistency(w http.ResponseWriter, r *http.Request) {
	pollID, err := urlPollID(r)
	if err != nil {
		ErrMalformedBody.Withf("could not decode poll id: %v", err).Write(w)
		return
	}
	from, err := strconv.ParseUint(r.URL.Query().Get("from"), 10, 64)
	if err != nil {
		ErrMalformedBody.Withf("invalid from parameter: %v", err).Write(w)
		return
	}
	resp, err := a.ballotbox.ConsistencyProof(pollID, from)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, resp)
}

// pollTally serves the results of a closed or finalized poll
// GET /polls/{pollId}/tally
func (a *API) pollTally(w http.ResponseWriter, r *http.Request) {
	pollID, err := urlPollID(r)
	if err != nil {
		ErrMalformedBody.Withf("could not decode poll id: %v", err).Write(w)
		return
	}
	tally, err := a.ballotbox.Tally(pollID)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, tally)
}
