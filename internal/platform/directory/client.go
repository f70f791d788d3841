// Package directory implements the protocol-directory client: the narrow
// query surfaces the market engine consumes for identity resolution, role
// resolution, and the global pause switch.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/reputenet/trustmarket/internal/domain"
)

// Client queries the protocol directory service over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a directory client for the given base URL, e.g.
// "https://directory.internal.reputenet.io".
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type profileResponse struct {
	ProfileID          uint64 `json:"profile_id"`
	Active             bool   `json:"active"`
	ControllingAddress string `json:"controlling_address"`
}

type roleResponse struct {
	Role    string `json:"role"`
	Address string `json:"address"`
}

type pauseResponse struct {
	Target string `json:"target"`
	Paused bool   `json:"paused"`
}

// IsActiveProfile reports whether the profile exists and is active.
// GET /v1/profiles/{id}
func (c *Client) IsActiveProfile(ctx context.Context, profileID uint64) (bool, error) {
	var resp profileResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/v1/profiles/%d", profileID), &resp); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("directory: profile %d: %w", profileID, err)
	}
	return resp.Active, nil
}

// ResolveControllingAddress returns the address controlling a profile.
// GET /v1/profiles/{id}
func (c *Client) ResolveControllingAddress(ctx context.Context, profileID uint64) (common.Address, error) {
	var resp profileResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/v1/profiles/%d", profileID), &resp); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return common.Address{}, fmt.Errorf("directory: profile %d: %w", profileID, domain.ErrProfileNotFound)
		}
		return common.Address{}, fmt.Errorf("directory: profile %d: %w", profileID, err)
	}
	if !common.IsHexAddress(resp.ControllingAddress) {
		return common.Address{}, fmt.Errorf("directory: profile %d: bad controlling address %q", profileID, resp.ControllingAddress)
	}
	return common.HexToAddress(resp.ControllingAddress), nil
}

// AddressForRole resolves the current holder of a named role.
// GET /v1/roles/{name}
func (c *Client) AddressForRole(ctx context.Context, role string) (common.Address, error) {
	var resp roleResponse
	if err := c.getJSON(ctx, "/v1/roles/"+url.PathEscape(role), &resp); err != nil {
		return common.Address{}, fmt.Errorf("directory: role %q: %w", role, err)
	}
	if !common.IsHexAddress(resp.Address) {
		return common.Address{}, fmt.Errorf("directory: role %q: bad address %q", role, resp.Address)
	}
	return common.HexToAddress(resp.Address), nil
}

// IsPaused reports whether the named subsystem is paused.
// GET /v1/pause/{target}
func (c *Client) IsPaused(ctx context.Context, target string) (bool, error) {
	var resp pauseResponse
	if err := c.getJSON(ctx, "/v1/pause/"+url.PathEscape(target), &resp); err != nil {
		if isStatus(err, http.StatusNotFound) {
			// Unregistered targets are not paused.
			return false, nil
		}
		return false, fmt.Errorf("directory: pause %q: %w", target, err)
	}
	return resp.Paused, nil
}

// statusError carries a non-2xx HTTP status through the error chain.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("directory returned status %d: %s", e.status, e.body)
}

func isStatus(err error, status int) bool {
	se, ok := err.(*statusError)
	return ok && se.status == status
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Compile-time interface checks.
var (
	_ domain.IdentityRegistry = (*Client)(nil)
	_ domain.RoleRegistry     = (*Client)(nil)
	_ domain.PauseSwitch      = (*Client)(nil)
)
