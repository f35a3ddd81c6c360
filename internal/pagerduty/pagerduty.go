// Package pagerduty looks up who is on call for an escalation policy.
package pagerduty

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
)

// DefaultBaseURL is the public PagerDuty REST endpoint.
const DefaultBaseURL = "https://api.pagerduty.com"

const maxBody = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// User is the person holding an on-call shift.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// OnCall is one entry of an escalation policy's current on-call list.
type OnCall struct {
	User            User `json:"user"`
	EscalationLevel int  `json:"escalation_level"`
}

type onCallsResponse struct {
	OnCalls []OnCall `json:"oncalls"`
}

// Client queries the on-calls API.
type Client struct {
	client  HTTPClient
	baseURL string
	token   string
	timeout time.Duration
}

// New creates a Client authenticating with an API token.
func New(client HTTPClient, baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: 30 * time.Second,
	}
}

// OnCalls returns the users currently on call for policyID, lowest
// escalation level first.
func (c *Client) OnCalls(ctx context.Context, policyID string) ([]OnCall, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("earliest", "true")
	q.Add("include[]", "users")
	q.Add("escalation_policy_ids[]", policyID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/oncalls?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token token="+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var out onCallsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode oncalls: %w", err)
	}
	slices.SortStableFunc(out.OnCalls, func(a, b OnCall) int {
		return cmp.Compare(a.EscalationLevel, b.EscalationLevel)
	})
	return out.OnCalls, nil
}

// First returns the name of the first responder for policyID.
func (c *Client) First(ctx context.Context, policyID string) (string, error) {
	oncalls, err := c.OnCalls(ctx, policyID)
	if err != nil {
		return "", err
	}
	if len(oncalls) == 0 {
		return "", fmt.Errorf("policy %s: nobody on call", policyID)
	}
	return oncalls[0].User.Name, nil
}
