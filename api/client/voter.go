package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/veilvote/veilvote/api"
	"github.com/veilvote/veilvote/ballotbox"
	"github.com/veilvote/veilvote/crypto/ethereum"
	"github.com/veilvote/veilvote/crypto/voprf"
	"github.com/veilvote/veilvote/issuer"
	"github.com/veilvote/veilvote/types"
	"github.com/veilvote/veilvote/util"
)

// call performs a request and decodes the JSON response into out. Any
// status other than 200 is returned as an error carrying the body.
func (c *HTTPclient) call(method string, jsonBody, out any, params []string, urlPath ...string) error {
	data, status, err := c.Request(method, jsonBody, params, urlPath...)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s: %d (%s)", errCodeNot200, status, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

// RegisterUser submits a verification attestation for a user identity.
func (c *HTTPclient) RegisterUser(userID string, tier types.Tier) error {
	return c.call(HTTPPOST, &api.UserRequest{UserID: userID, Tier: tier}, nil, nil, api.UsersEndpoint)
}

// CreatePoll signs a poll creation request with the organizer key and
// submits it. The server recovers the organizer address from the
// signature, so the request carries no address field.
func (c *HTTPclient) CreatePoll(organizer *ethereum.SignKeys, req *api.NewPoll) (*types.Poll, error) {
	sig, err := organizer.SignEthereum(api.PollCreatePayload(req.Nonce))
	if err != nil {
		return nil, fmt.Errorf("failed to sign poll creation: %w", err)
	}
	req.Signature = sig
	poll := &types.Poll{}
	if err := c.call(HTTPPOST, req, poll, nil, api.PollsEndpoint); err != nil {
		return nil, err
	}
	return poll, nil
}

// SetPollStatus signs a lifecycle transition with the organizer key and
// submits it.
func (c *HTTPclient) SetPollStatus(organizer *ethereum.SignKeys, pollID types.HexBytes, status types.PollStatus) (*types.Poll, error) {
	sig, err := organizer.SignEthereum(api.PollStatusPayload(pollID, status.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to sign status change: %w", err)
	}
	poll := &types.Poll{}
	endpoint := api.EndpointWithParam(api.PollStatusEndpoint, api.PollURLParam, pollID.String())
	if err := c.call(HTTPPOST, &api.StatusChange{Status: status.String(), Signature: sig}, poll, nil, endpoint); err != nil {
		return nil, err
	}
	return poll, nil
}

// Poll fetches one poll record.
func (c *HTTPclient) Poll(pollID types.HexBytes) (*types.Poll, error) {
	poll := &types.Poll{}
	endpoint := api.EndpointWithParam(api.PollEndpoint, api.PollURLParam, pollID.String())
	if err := c.call(HTTPGET, nil, poll, nil, endpoint); err != nil {
		return nil, err
	}
	return poll, nil
}

// RequestToken runs the whole client side of blind issuance: it draws a
// random seed, blinds it, asks the issuer to evaluate the blinded
// element, checks the returned proof against the published epoch key and
// unblinds the result. The server never sees the seed or the final
// output, only the blinded element.
func (c *HTTPclient) RequestToken(userID string, pollID types.HexBytes) (*types.Token, error) {
	seed := util.RandomBytes(types.TokenSeedSize)
	blinded, err := voprf.Blind(seed)
	if err != nil {
		return nil, fmt.Errorf("failed to blind token seed: %w", err)
	}
	resp := &issuer.IssueResponse{}
	issueReq := &issuer.IssueRequest{
		UserID:  userID,
		PollID:  pollID,
		Blinded: blinded.Element(),
	}
	if err := c.call(HTTPPOST, issueReq, resp, nil, api.TokensEndpoint); err != nil {
		return nil, err
	}
	key := &issuer.KeyResponse{}
	params := []string{
		"epoch", fmt.Sprintf("%d", resp.EpochID),
		"pollId", pollID.String(),
		"tier", resp.Tier.String(),
		"scope", string(resp.Scope),
	}
	if err := c.call(HTTPGET, nil, key, params, api.KeysEndpoint); err != nil {
		return nil, err
	}
	proof, err := voprf.DecodeProof(resp.ProofC, resp.ProofS)
	if err != nil {
		return nil, fmt.Errorf("failed to decode issuance proof: %w", err)
	}
	output, err := blinded.Verify(key.ProofKey, resp.Evaluated, proof)
	if err != nil {
		return nil, fmt.Errorf("issuance proof verification failed: %w", err)
	}
	return &types.Token{
		EpochID: resp.EpochID,
		PollID:  pollID,
		Tier:    resp.Tier,
		Scope:   resp.Scope,
		Seed:    seed,
		Output:  voprf.EncodeG1(&output),
	}, nil
}

// SubmitVote redeems a token for a ballot and returns the inclusion
// receipt.
func (c *HTTPclient) SubmitVote(token *types.Token, choice uint32) (*types.Receipt, error) {
	receipt := &types.Receipt{}
	endpoint := api.EndpointWithParam(api.PollVotesEndpoint, api.PollURLParam, token.PollID.String())
	if err := c.call(HTTPPOST, &api.VoteRequest{Token: token, Choice: choice}, receipt, nil, endpoint); err != nil {
		return nil, err
	}
	return receipt, nil
}

// VerifyReceipt asks the server to check an inclusion receipt against its
// stored roots.
func (c *HTTPclient) VerifyReceipt(receipt *types.Receipt) (bool, error) {
	verdict := &api.ReceiptVerification{}
	if err := c.call(HTTPPOST, receipt, verdict, nil, api.ReceiptsVerifyEndpoint); err != nil {
		return false, err
	}
	return verdict.Valid, nil
}

// Root fetches the current commitment log head of a poll.
func (c *HTTPclient) Root(pollID types.HexBytes) (*ballotbox.RootInfo, error) {
	info := &ballotbox.RootInfo{}
	endpoint := api.EndpointWithParam(api.PollRootEndpoint, api.PollURLParam, pollID.String())
	if err := c.call(HTTPGET, nil, info, nil, endpoint); err != nil {
		return nil, err
	}
	return info, nil
}

// Consistency fetches a proof that the poll log at its current size
// extends the log as it stood at oldSize.
func (c *HTTPclient) Consistency(pollID types.HexBytes, oldSize uint64) (*ballotbox.ConsistencyResponse, error) {
	resp := &ballotbox.ConsistencyResponse{}
	endpoint := api.EndpointWithParam(api.PollConsistencyEndpoint, api.PollURLParam, pollID.String())
	params := []string{"from", fmt.Sprintf("%d", oldSize)}
	if err := c.call(HTTPGET, nil, resp, params, endpoint); err != nil {
		return nil, err
	}
	return resp, nil
}

// Tally fetches the results of a closed or finalized poll.
func (c *HTTPclient) Tally(pollID types.HexBytes) (*ballotbox.TallyResult, error) {
	tally := &ballotbox.TallyResult{}
	endpoint := api.EndpointWithParam(api.PollTallyEndpoint, api.PollURLParam, pollID.String())
	if err := c.call(HTTPGET, nil, tally, nil, endpoint); err != nil {
		return nil, err
	}
	return tally, nil
}
