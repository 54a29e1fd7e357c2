/**
 * @description
 * This package provides a client for the PayPal Payouts REST API. It encapsulates
 * OAuth2 client-credentials token handling, payout batch submission, and batch
 * status lookups.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, sync, time: Standard Go libraries.
 */
package paypalclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Client is a client for the PayPal Payouts API.
type Client struct {
	BaseURL    string
	ClientID   string
	Secret     string
	HTTPClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a new PayPal API client.
func NewClient(baseURL, clientID, secret string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		ClientID: clientID,
		Secret:   secret,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ErrorResponse represents an error from the PayPal API.
type ErrorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	DebugID string `json:"debug_id"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (e *ErrorResponse) Error() string {
	if e.Name != "" || e.Message != "" {
		return fmt.Sprintf("paypal api error: %s - %s", e.Name, e.Message)
	}
	return "unknown paypal api error"
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// payoutBatchRequest is the payload for creating a payout batch.
type payoutBatchRequest struct {
	SenderBatchHeader struct {
		SenderBatchID string `json:"sender_batch_id"`
		EmailSubject  string `json:"email_subject"`
		EmailMessage  string `json:"email_message"`
	} `json:"sender_batch_header"`
	Items []payoutItem `json:"items"`
}

type payoutItem struct {
	RecipientType string `json:"recipient_type"`
	Amount        struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"amount"`
	Receiver string `json:"receiver"`
	Note     string `json:"note"`
}

// PayoutBatchResponse is the response from the payouts create and status endpoints.
type PayoutBatchResponse struct {
	BatchHeader struct {
		PayoutBatchID string `json:"payout_batch_id"`
		BatchStatus   string `json:"batch_status"`
		TimeCompleted string `json:"time_completed"`
	} `json:"batch_header"`
}

// getAccessToken returns a cached OAuth token, refreshing it when it is within
// a minute of expiry.
func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.ClientID, c.Secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("level=warn component=paypal_client op=token status=%d msg=\"non-2xx response\"", resp.StatusCode)
		return "", fmt.Errorf("paypal token request failed (status %d)", resp.StatusCode)
	}

	var token tokenResponse
	if err := json.Unmarshal(bodyBytes, &token); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

// SendPayout submits a single-item payout batch to the recipient's PayPal email.
// amountCents is the net USD amount in cents. Returns the gateway batch id.
func (c *Client) SendPayout(ctx context.Context, receiverEmail string, amountCents int64, note string) (string, error) {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return "", err
	}

	payload := payoutBatchRequest{}
	payload.SenderBatchHeader.SenderBatchID = fmt.Sprintf("payout_%d", time.Now().UnixNano())
	payload.SenderBatchHeader.EmailSubject = "You have a payout!"
	payload.SenderBatchHeader.EmailMessage = "You have received a payout from your game earnings."

	item := payoutItem{RecipientType: "EMAIL", Receiver: receiverEmail, Note: note}
	item.Amount.Value = fmt.Sprintf("%d.%02d", amountCents/100, amountCents%100)
	item.Amount.Currency = "USD"
	payload.Items = []payoutItem{item}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v1/payments/payouts", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create payout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute payout request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read payout response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=paypal_client op=send_payout status=%d msg=\"non-2xx response (unparsable error body)\"", resp.StatusCode)
			return "", fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=paypal_client op=send_payout status=%d name=%q message=%q debug_id=%s", resp.StatusCode, errResp.Name, errResp.Message, errResp.DebugID)
		return "", &errResp
	}

	var batchResp PayoutBatchResponse
	if err := json.Unmarshal(bodyBytes, &batchResp); err != nil {
		return "", fmt.Errorf("failed to decode payout response: %w", err)
	}
	return batchResp.BatchHeader.PayoutBatchID, nil
}

// GetPayoutStatus fetches the current status of a payout batch.
// Returned statuses include PENDING, PROCESSING, SUCCESS, DENIED, and CANCELED.
func (c *Client) GetPayoutStatus(ctx context.Context, batchID string) (string, error) {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"/v1/payments/payouts/"+batchID, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute status request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read status response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=paypal_client op=get_status batch_id=%s status=%d msg=\"non-2xx response (unparsable error body)\"", batchID, resp.StatusCode)
			return "", fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=paypal_client op=get_status batch_id=%s status=%d name=%q message=%q", batchID, resp.StatusCode, errResp.Name, errResp.Message)
		return "", &errResp
	}

	var batchResp PayoutBatchResponse
	if err := json.Unmarshal(bodyBytes, &batchResp); err != nil {
		return "", fmt.Errorf("failed to decode status response: %w", err)
	}
	return batchResp.BatchHeader.BatchStatus, nil
}
