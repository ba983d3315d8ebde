package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Payment status values reported by the gateway status query.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var (
	ErrInvalidPhone   = errors.New("phone number is not a valid kenyan mobile number")
	ErrAmountTooSmall = errors.New("amount below gateway minimum")
)

// InitiationError is a push request the provider rejected.
type InitiationError struct {
	Message string
}

func (e *InitiationError) Error() string {
	return "stk push rejected: " + e.Message
}

// STKPushResult is the provider acknowledgement of a push request. The
// prompt on the customer handset is already in flight when this returns.
type STKPushResult struct {
	Success           bool   `json:"success"`
	CheckoutRequestID string `json:"checkoutRequestID"`
	CustomerMessage   string `json:"customerMessage"`
}

// StatusResult is one answer to a status query for a checkoutRequestID.
type StatusResult struct {
	Status            string `json:"status"`
	ResultDescription string `json:"resultDescription"`
	Receipt           string `json:"receipt,omitempty"`
}

// Client calls the M-Pesa gateway service for STK push initiation and
// status checks. The gateway owns Daraja credentials; we never talk to
// Safaricom directly.
type Client struct {
	baseURL   string
	shortCode string
	passkey   string
	minAmount int64
	client    *http.Client
}

func NewClient(baseURL, shortCode, passkey string, minAmount int64, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if minAmount <= 0 {
		minAmount = 1
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		shortCode: shortCode,
		passkey:   passkey,
		minAmount: minAmount,
		client:    &http.Client{Timeout: timeout},
	}
}

type stkPushRequest struct {
	ShortCode      string `json:"shortCode"`
	Passkey        string `json:"passkey,omitempty"`
	Phone          string `json:"phone"`
	Amount         int64  `json:"amount"`
	OrderReference string `json:"accountReference"`
}

type stkPushResponse struct {
	Success           bool   `json:"success"`
	CheckoutRequestID string `json:"checkoutRequestID"`
	CustomerMessage   string `json:"customerMessage"`
	ErrorMessage      string `json:"errorMessage"`
}

// InitiateSTKPush sends a payment prompt to the customer handset. The
// phone must already be in gateway format; amount is whole shillings.
func (c *Client) InitiateSTKPush(ctx context.Context, phone string, amount int64, orderReference string) (*STKPushResult, error) {
	if !IsValidKenyanPhone(phone) {
		return nil, ErrInvalidPhone
	}
	if amount < c.minAmount {
		return nil, ErrAmountTooSmall
	}

	req := stkPushRequest{
		ShortCode:      c.shortCode,
		Passkey:        c.passkey,
		Phone:          phone,
		Amount:         amount,
		OrderReference: orderReference,
	}

	var resp stkPushResponse
	if err := c.postJSON(ctx, "/mpesa/stkpush", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		msg := resp.ErrorMessage
		if msg == "" {
			msg = "provider rejected the push request"
		}
		return nil, &InitiationError{Message: msg}
	}
	if resp.CheckoutRequestID == "" {
		return nil, &InitiationError{Message: "provider returned no checkoutRequestID"}
	}
	return &STKPushResult{
		Success:           true,
		CheckoutRequestID: resp.CheckoutRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}

type stkQueryRequest struct {
	ShortCode         string `json:"shortCode"`
	CheckoutRequestID string `json:"checkoutRequestID"`
}

// QueryStatus asks the gateway for the current outcome of a push. The
// answer is pending until the customer acts or the prompt expires.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*StatusResult, error) {
	if checkoutRequestID == "" {
		return nil, errors.New("missing checkoutRequestID")
	}
	req := stkQueryRequest{ShortCode: c.shortCode, CheckoutRequestID: checkoutRequestID}
	var out StatusResult
	if err := c.postJSON(ctx, "/mpesa/stkquery", req, &out); err != nil {
		return nil, err
	}
	if out.Status == "" {
		out.Status = StatusPending
	}
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(raw))
		if msg != "" {
			return fmt.Errorf("gateway http status %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("gateway http status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
