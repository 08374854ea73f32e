/**
 * @description
 * This package provides a client for the code-hosting platform's REST API.
 * It covers the two operations the marketplace needs: granting a buyer
 * collaborator (review) access to a repository, and transferring repository
 * ownership to the buyer once the review window has elapsed.
 *
 * @notes
 * - The ownership transfer endpoint is NOT idempotent on the platform side.
 *   Callers must claim the record in the ledger before invoking it, and use
 *   IsAlreadyTransferred to recognize a lost-response retry.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package codehostclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a client for the code-hosting platform API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new code host client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error answer from the code host.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("code host error (status %d): %s", e.StatusCode, e.Message)
}

// GrantCollaborator gives the buyer's account read access to the repository
// for the review window. Invoked at purchase time by the transaction flow.
func (c *Client) GrantCollaborator(ctx context.Context, repoFullName, accountHandle string) error {
	url := fmt.Sprintf("%s/repos/%s/collaborators/%s", c.BaseURL, repoFullName, accountHandle)

	body, err := json.Marshal(map[string]string{"permission": "pull"})
	if err != nil {
		return fmt.Errorf("failed to marshal collaborator request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create collaborator request: %w", err)
	}

	return c.do(req)
}

// TransferOwnership hands the repository to the buyer's account. Not
// guaranteed idempotent; see the package notes.
func (c *Client) TransferOwnership(ctx context.Context, repoFullName, newOwnerHandle string) error {
	url := fmt.Sprintf("%s/repos/%s/transfer", c.BaseURL, repoFullName)

	body, err := json.Marshal(map[string]string{"new_owner": newOwnerHandle})
	if err != nil {
		return fmt.Errorf("failed to marshal transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create transfer request: %w", err)
	}

	return c.do(req)
}

func (c *Client) do(req *http.Request) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute code host request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read code host error response: %w", err)
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(bodyBytes, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// IsAlreadyTransferred reports whether the error means the repository was
// already handed over by an earlier attempt whose response was lost. The
// platform answers 409 Conflict in that case.
func IsAlreadyTransferred(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// IsPermanent reports whether the error cannot be fixed by retrying: the
// repository or the buyer's account no longer exists, or the request itself
// was rejected as invalid.
func IsPermanent(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusNotFound, http.StatusGone, http.StatusUnprocessableEntity:
		return true
	default:
		return false
	}
}
