package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ProtocolVersion is sent with every friend request. Peers speaking an older
// protocol redirect to their IndieAuth flow instead.
const ProtocolVersion = "2"

const maxResponseSize = 1 << 20

// Client performs the outgoing calls of the handshake protocol. Requests are
// form-encoded, responses are JSON.
type Client struct {
	http      *http.Client
	userAgent string
}

func NewClient(httpClient *http.Client, userAgent string) *Client {
	return &Client{http: httpClient, userAgent: userAgent}
}

type friendRequestResponse struct {
	Request string `json:"request"`
}

// SendFriendRequest posts a friend request to the peer's endpoint. The key
// is this side's freshly generated token half. The returned correlation id
// references the request in the later acceptance call.
func (c *Client) SendFriendRequest(ctx context.Context, restURL, siteURL, siteName, gravatar, key, message, codeword string) (string, error) {
	form := url.Values{
		"version":  {ProtocolVersion},
		"url":      {siteURL},
		"name":     {siteName},
		"icon_url": {gravatar},
		"key":      {key},
		"message":  {message},
	}
	if codeword != "" {
		form.Set("codeword", codeword)
	}

	var response friendRequestResponse
	if err := c.postForm(ctx, restURL+"/friend-request", form, &response); err != nil {
		return "", err
	}
	if response.Request == "" {
		return "", fmt.Errorf("peer did not return a request id")
	}
	return response.Request, nil
}

type acceptResponse struct {
	Signature string `json:"signature"`
}

// AcceptFriendRequest notifies the requester that their request was
// accepted, proving receipt of their token and handing over our own half.
// The returned signature covers both halves.
func (c *Client) AcceptFriendRequest(ctx context.Context, restURL, requestID, proof, key, siteName, gravatar string) (string, error) {
	form := url.Values{
		"request":  {requestID},
		"proof":    {proof},
		"key":      {key},
		"name":     {siteName},
		"icon_url": {gravatar},
	}

	var response acceptResponse
	if err := c.postForm(ctx, restURL+"/accept-friend-request", form, &response); err != nil {
		return "", err
	}
	return response.Signature, nil
}

type postDeletedResponse struct {
	Deleted bool `json:"deleted"`
}

// NotifyPostDeleted tells a friend that a local post was deleted so that
// their cached copy goes away too.
func (c *Client) NotifyPostDeleted(ctx context.Context, restURL, postID, outToken string) (bool, error) {
	form := url.Values{
		"post_id": {postID},
		"friend":  {outToken},
	}

	var response postDeletedResponse
	if err := c.postForm(ctx, restURL+"/post-deleted", form, &response); err != nil {
		return false, err
	}
	return response.Deleted, nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response from %s: %w", endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("post %s: unexpected status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", endpoint, err)
	}
	return nil
}
