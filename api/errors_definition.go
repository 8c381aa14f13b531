//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400, 403, 404, 409 or 429, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX
// If you notice there's a gap (say, error code 40010, 40011 and 40013 exist, 40012 is missing) DON'T fill in the gap,
// that code was used in the past for some error (not anymore) and shouldn't be reused.
// There's no correlation between Code and HTTP Status.
//
// ErrTokenNotAccepted deliberately covers spent, revoked and
// cryptographically invalid tokens under a single code and message: telling
// them apart would let anyone probe whether a given token exists.
var (
	ErrResourceNotFound  = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody     = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrInvalidSignature  = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid organizer signature")}
	ErrInvalidTier       = Error{Code: 40006, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("verification tier below poll requirement")}
	ErrRateLimited       = Error{Code: 40007, HTTPstatus: http.StatusTooManyRequests, Err: fmt.Errorf("rate limit exceeded")}
	ErrKeyUnavailable    = Error{Code: 40008, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("issuer key unavailable")}
	ErrTokenNotAccepted  = Error{Code: 40009, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("token not accepted")}
	ErrTokenExpired      = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("token expired")}
	ErrPollNotActive     = Error{Code: 40011, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("poll is not active")}
	ErrInvalidChoice     = Error{Code: 40012, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("choice out of range")}
	ErrInvalidTransition = Error{Code: 40013, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("illegal poll status transition")}
	ErrPollNotClosed     = Error{Code: 40014, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("poll is not closed")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
)
