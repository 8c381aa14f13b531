package api

import "strings"

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// TokensEndpoint is the endpoint for requesting a blind token issuance
	TokensEndpoint = "/tokens"
	// KeysEndpoint is the endpoint for fetching the issuer public keys of
	// one epoch and token context
	KeysEndpoint = "/keys"
	// EpochsEndpoint is the endpoint listing the issuer key epochs
	EpochsEndpoint = "/epochs"
	// UsersEndpoint is the endpoint for ingesting verification attestations
	UsersEndpoint = "/users"
	// PollsEndpoint is the endpoint for creating and listing polls
	PollsEndpoint = "/polls"
	// PollEndpoint is the endpoint to get a single poll
	PollURLParam = "pollId"
	PollEndpoint = "/polls/{" + PollURLParam + "}"
	// PollStatusEndpoint is the endpoint for poll lifecycle transitions
	PollStatusEndpoint = PollEndpoint + "/status"
	// PollVotesEndpoint is the endpoint for submitting a vote
	PollVotesEndpoint = PollEndpoint + "/votes"
	// PollRootEndpoint is the endpoint serving the commitment log head
	PollRootEndpoint = PollEndpoint + "/root"
	// PollConsistencyEndpoint is the endpoint serving append-only proofs
	// between two log sizes
	PollConsistencyEndpoint = PollEndpoint + "/consistency"
	// PollTallyEndpoint is the endpoint serving the results of closed polls
	PollTallyEndpoint = PollEndpoint + "/tally"
	// ReceiptsVerifyEndpoint is the endpoint for checking inclusion receipts
	ReceiptsVerifyEndpoint = "/receipts/verify"
	// AuditEndpoint is the endpoint for querying the audit trail
	AuditEndpoint = "/audit"
)

// EndpointWithParam replaces the URL parameter placeholder in an endpoint
// with the given value.
func EndpointWithParam(path, param, value string) string {
	return strings.Replace(path, "{"+param+"}", value, 1)
}
