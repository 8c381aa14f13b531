package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/veilvote/veilvote/ballotbox"
	"github.com/veilvote/veilvote/issuer"
	"github.com/veilvote/veilvote/log"
	"github.com/veilvote/veilvote/merkle"
	"github.com/veilvote/veilvote/policy"
	"github.com/veilvote/veilvote/storage"
	"github.com/veilvote/veilvote/types"
	"github.com/veilvote/veilvote/util"
	"github.com/veilvote/veilvote/verifier"
)

// httpWriteJSON helper function allows to write a JSON response.
func httpWriteJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	n, err := w.Write(jdata)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
	log.Debugw("api response", "bytes", n, "data", strings.ReplaceAll(string(jdata), "\"", ""))
}

// httpWriteOK helper function allows to write an OK response.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// urlPollID decodes the hex poll ID from the request path.
func urlPollID(r *http.Request) (types.HexBytes, error) {
	pollID, err := hex.DecodeString(util.TrimHex(chi.URLParam(r, PollURLParam)))
	if err != nil {
		return nil, err
	}
	return pollID, nil
}

// errorFor maps a service error to the API error that should reach the
// client. Spent, revoked and invalid tokens all collapse into
// ErrTokenNotAccepted without further detail; the precise cause stays in
// the audit trail only.
func errorFor(err error) Error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ErrResourceNotFound
	case errors.Is(err, policy.ErrTierTooLow):
		return ErrInvalidTier
	case errors.Is(err, policy.ErrRateLimited):
		return ErrRateLimited
	case errors.Is(err, issuer.ErrKeyUnavailable):
		return ErrKeyUnavailable
	case errors.Is(err, issuer.ErrInvalidBlinded):
		return ErrMalformedBody.With("invalid blinded element")
	case errors.Is(err, issuer.ErrPollNotActive), errors.Is(err, ballotbox.ErrPollNotActive):
		return ErrPollNotActive
	case errors.Is(err, verifier.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, verifier.ErrInvalidToken),
		errors.Is(err, verifier.ErrTokenRevoked),
		errors.Is(err, storage.ErrTokenSpent),
		errors.Is(err, storage.ErrVoteExists):
		return ErrTokenNotAccepted
	case errors.Is(err, ballotbox.ErrInvalidChoice):
		return ErrInvalidChoice
	case errors.Is(err, ballotbox.ErrBadTransition):
		return ErrInvalidTransition
	case errors.Is(err, ballotbox.ErrPollNotClosed):
		return ErrPollNotClosed
	case errors.Is(err, ballotbox.ErrInvalidPoll):
		return ErrMalformedBody.WithErr(err)
	case errors.Is(err, merkle.ErrSizeOutOfRange):
		return ErrMalformedBody.With("log size out of range")
	default:
		return ErrGenericInternalServerError.WithErr(err)
	}
}

// auditOutcome names the rejection class of a service error for the audit
// trail, without quoting internal error text.
func auditOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, storage.ErrTokenSpent):
		return "token-spent"
	case errors.Is(err, verifier.ErrTokenRevoked):
		return "token-revoked"
	case errors.Is(err, verifier.ErrInvalidToken):
		return "token-invalid"
	case errors.Is(err, verifier.ErrTokenExpired):
		return "token-expired"
	case errors.Is(err, storage.ErrVoteExists):
		return "duplicate-tag"
	case errors.Is(err, policy.ErrTierTooLow):
		return "tier-too-low"
	case errors.Is(err, policy.ErrRateLimited):
		return "rate-limited"
	default:
		return "rejected"
	}
}

// clientIP extracts the remote address without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
