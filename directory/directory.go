// Package directory talks to the prekey bundle directory over HTTP.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"lite-signal/common"
	"lite-signal/configs"
)

var ErrUserNotFound = errors.New("user not found in directory")

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient accepts either "host:port" or a full http(s) URL.
func NewClient(serverAddress string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	base := serverAddress
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{baseURL: strings.TrimSuffix(base, "/"), httpClient: httpClient}
}

func (c *Client) keysURL(userID string, suffix ...string) string {
	return c.baseURL + configs.PublishKeysPath + "/" + url.PathEscape(userID) + strings.Join(suffix, "")
}

// PublishBundle uploads the caller's public keys, replacing whatever the
// directory held for userID.
func (c *Client) PublishBundle(ctx context.Context, userID string, bundle *common.PublishBundle) error {
	return c.postJSON(ctx, c.keysURL(userID), bundle)
}

// UploadOneTimePrekeys adds prekeys to an already published user's pool.
func (c *Client) UploadOneTimePrekeys(ctx context.Context, userID string, prekeys []common.OneTimePrekey) error {
	return c.postJSON(ctx, c.keysURL(userID, "/prekeys"), prekeys)
}

func (c *Client) postJSON(ctx context.Context, u string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrUserNotFound
	default:
		return fmt.Errorf("server returned non-OK status: %v", resp.Status)
	}
}

// FetchBundle downloads a peer's bundle. Each call consumes at most one of
// the peer's one-time prekeys on the server.
func (c *Client) FetchBundle(ctx context.Context, userID string) (*common.PrekeyBundle, error) {
	var bundle common.PrekeyBundle
	if err := c.getJSON(ctx, c.keysURL(userID), &bundle); err != nil {
		return nil, err
	}
	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	return &bundle, nil
}

// CountOneTimePrekeys reports how many one-time prekeys the server still
// holds for userID.
func (c *Client) CountOneTimePrekeys(ctx context.Context, userID string) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	if err := c.getJSON(ctx, c.keysURL(userID, "/count"), &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) getJSON(ctx context.Context, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return ErrUserNotFound
	default:
		return fmt.Errorf("server returned non-OK status: %v", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
