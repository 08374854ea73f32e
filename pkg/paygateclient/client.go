/**
 * @description
 * This package provides a client for the payment gateway's payout API. It
 * encapsulates the logic for making authenticated HTTP requests, constructing
 * request bodies, and parsing responses. Payout requests carry an idempotency
 * key so the gateway deduplicates repeated calls for the same transaction.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package paygateclient

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

// Client is a client for the payment gateway API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new payment gateway client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// transferRequest is the payload for a payout transfer.
type transferRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			Currency  string `json:"currency"`
			Amount    int64  `json:"amount"`
			Reference string `json:"reference"`
		} `json:"attributes"`
		Relationships struct {
			DestinationAccount struct {
				Data struct {
					Type string `json:"type"`
					ID   string `json:"id"`
				} `json:"data"`
			} `json:"destinationAccount"`
		} `json:"relationships"`
	} `json:"data"`
}

// TransferResponse is the expected response from the gateway's transfer endpoint.
type TransferResponse struct {
	Data struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			Status string `json:"status"`
		} `json:"attributes"`
	} `json:"data"`
}

// ErrorResponse represents an error from the gateway API.
type ErrorResponse struct {
	HTTPStatus int `json:"-"`
	Errors     []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("payment gateway error (status %d): %s - %s", e.HTTPStatus, e.Errors[0].Title, e.Errors[0].Detail)
	}
	return fmt.Sprintf("unknown payment gateway error (status %d)", e.HTTPStatus)
}

// Transfer moves the given amount (in cents) to the destination payout
// account. The idempotency tag is sent as the Idempotency-Key header, so
// calling this more than once with the same tag yields a single payout.
// It returns the gateway's transfer ID.
func (c *Client) Transfer(ctx context.Context, destinationAccount string, amountCents int64, idempotencyTag string) (string, error) {
	reqPayload := transferRequest{}
	reqPayload.Data.Type = "PayoutTransfer"
	reqPayload.Data.Attributes.Currency = "USD"
	reqPayload.Data.Attributes.Amount = amountCents
	reqPayload.Data.Attributes.Reference = idempotencyTag
	reqPayload.Data.Relationships.DestinationAccount.Data.Type = "PayoutAccount"
	reqPayload.Data.Relationships.DestinationAccount.Data.ID = destinationAccount

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v1/transfers", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create transfer request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Idempotency-Key", idempotencyTag)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute transfer request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read transfer response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := &ErrorResponse{HTTPStatus: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, errResp); err != nil {
			return "", fmt.Errorf("payment gateway returned status %d with unparsable body", resp.StatusCode)
		}
		return "", errResp
	}

	var successResp TransferResponse
	if err := json.Unmarshal(bodyBytes, &successResp); err != nil {
		return "", fmt.Errorf("failed to decode transfer response: %w", err)
	}

	return successResp.Data.ID, nil
}

// IsRetryable reports whether a transfer error is worth retrying on a later
// batch cycle. Gateway rejections (4xx) are final; server-side failures,
// timeouts, rate limits and network errors are not.
func IsRetryable(err error) bool {
	var errResp *ErrorResponse
	if errors.As(err, &errResp) {
		switch {
		case errResp.HTTPStatus >= 500:
			return true
		case errResp.HTTPStatus == http.StatusRequestTimeout, errResp.HTTPStatus == http.StatusTooManyRequests:
			return true
		default:
			return false
		}
	}
	// Network-level failures and unparsable responses are treated as transient.
	return true
}
