// Copyright (c) 2026 Nexsentia
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package provider implements a stateless client for the team-messaging
// provider's cursor-paginated REST API. The bearer credential is supplied
// per call, so a single client is safely shared across connections and
// tenants. Each list call returns one page plus the next cursor ("" when
// exhausted).
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

const defaultPageSize = "200"

// Credential is the per-call provider credential.
type Credential struct {
	Token       string
	WorkspaceID string
}

// Client talks to the provider REST API. It holds no session state.
type Client struct {
	base    *http.Client
	baseURL string
}

// NewClient creates a provider client. The httpClient is the base
// transport; authentication is layered on per call from the Credential.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: httpClient, baseURL: baseURL}
}

// authClient wraps the base transport with the per-call bearer token.
func (c *Client) authClient(ctx context.Context, cred Credential) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.Token, TokenType: "Bearer"})
	return oauth2.NewClient(ctx, src)
}

// ListMembers returns one page of workspace members.
func (c *Client) ListMembers(ctx context.Context, cred Credential, cursor string) ([]Member, string, error) {
	params := url.Values{}
	params.Set("limit", defaultPageSize)
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var page membersPage
	if err := c.get(ctx, cred, "users.list", params, &page); err != nil {
		return nil, "", fmt.Errorf("list members: %w", err)
	}

	members, err := page.normalize()
	if err != nil {
		return nil, "", fmt.Errorf("list members: %w", err)
	}
	return members, page.ResponseMetadata.NextCursor, nil
}

// ListChannels returns one page of channels matching the kind filter.
func (c *Client) ListChannels(ctx context.Context, cred Credential, kinds []string, cursor string) ([]Channel, string, error) {
	params := url.Values{}
	params.Set("limit", defaultPageSize)
	params.Set("types", joinKinds(kinds))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var page channelsPage
	if err := c.get(ctx, cred, "conversations.list", params, &page); err != nil {
		return nil, "", fmt.Errorf("list channels: %w", err)
	}

	channels, err := page.normalize()
	if err != nil {
		return nil, "", fmt.Errorf("list channels: %w", err)
	}
	return channels, page.ResponseMetadata.NextCursor, nil
}

// ListMessages returns one page of a channel's history. A non-zero oldest
// sets the inclusive lower time bound; messages at exactly oldest are
// re-delivered and must be absorbed by the caller's idempotent upsert.
func (c *Client) ListMessages(ctx context.Context, cred Credential, channelID string, oldest time.Time, cursor string) ([]Message, string, error) {
	params := url.Values{}
	params.Set("channel", channelID)
	params.Set("limit", defaultPageSize)
	if !oldest.IsZero() {
		params.Set("oldest", formatTimestamp(oldest))
		params.Set("inclusive", "true")
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var page messagesPage
	if err := c.get(ctx, cred, "conversations.history", params, &page); err != nil {
		return nil, "", fmt.Errorf("list messages %s: %w", channelID, err)
	}

	messages, err := page.normalize()
	if err != nil {
		return nil, "", fmt.Errorf("list messages %s: %w", channelID, err)
	}
	return messages, page.ResponseMetadata.NextCursor, nil
}

// JoinChannel joins a public channel the credential can see but is not
// yet a member of.
func (c *Client) JoinChannel(ctx context.Context, cred Credential, channelID string) error {
	params := url.Values{}
	params.Set("channel", channelID)

	var resp envelope
	if err := c.post(ctx, cred, "conversations.join", params, &resp); err != nil {
		return fmt.Errorf("join channel %s: %w", channelID, err)
	}
	return nil
}

// get performs an authenticated GET and decodes the envelope into out.
func (c *Client) get(ctx context.Context, cred Credential, method string, params url.Values, out envelopeChecker) error {
	if cred.WorkspaceID != "" {
		params.Set("team_id", cred.WorkspaceID)
	}
	u := fmt.Sprintf("%s/%s?%s", c.baseURL, method, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.do(ctx, cred, req, out)
}

// post performs an authenticated POST with form-encoded params.
func (c *Client) post(ctx context.Context, cred Credential, method string, params url.Values, out envelopeChecker) error {
	if cred.WorkspaceID != "" {
		params.Set("team_id", cred.WorkspaceID)
	}
	u := fmt.Sprintf("%s/%s", c.baseURL, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("Accept", "application/json")

	return c.do(ctx, cred, req, out)
}

func (c *Client) do(ctx context.Context, cred Credential, req *http.Request, out envelopeChecker) error {
	resp, err := c.authClient(ctx, cred).Do(req)
	if err != nil {
		return fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return &APIError{Code: "ratelimited", Status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("provider returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if ok, code := out.status(); !ok {
		return &APIError{Code: code, Status: resp.StatusCode}
	}
	return nil
}

func joinKinds(kinds []string) string {
	if len(kinds) == 0 {
		return "public_channel,private_channel,im,mpim"
	}
	out := ""
	for i, k := range kinds {
		if i > 0 {
			out += ","
		}
		out += k
	}
	return out
}
