package kassa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zombor/kassir/internal/draft"
)

// DefaultTimeout bounds a single receipt API call
const DefaultTimeout = 25 * time.Second

// ErrUnavailable wraps every transport failure: network errors, timeouts and
// bodies that are not JSON. Callers show a generic retry message for it.
var ErrUnavailable = errors.New("receipt api unavailable")

// Settings is the configuration context sent with every receipt API call
type Settings struct {
	GroupCode        string `json:"group_code,omitempty"`
	INN              string `json:"inn,omitempty"`
	SNO              string `json:"sno,omitempty"`
	DefaultVAT       string `json:"default_vat,omitempty"`
	CompanyEmail     string `json:"company_email,omitempty"`
	PaymentAddress   string `json:"payment_address,omitempty"`
	Login            string `json:"ecomkassa_login,omitempty"`
	Password         string `json:"ecomkassa_password,omitempty"`
	ActiveAIProvider string `json:"active_ai_provider,omitempty"`
	ContextMessage   string `json:"context_message"`
}

// PreviewRequest asks the receipt API to turn free text into a draft
type PreviewRequest struct {
	Message         string         `json:"message"`
	OperationType   string         `json:"operation_type"`
	PreviewOnly     bool           `json:"preview_only"`
	Settings        Settings       `json:"settings"`
	PreviousReceipt draft.Document `json:"previous_receipt"`
}

// PreviewKind classifies a preview response
type PreviewKind string

const (
	PreviewSuccess            PreviewKind = "success"
	PreviewMissingIntegration PreviewKind = "missing_integration"
	PreviewMissingEmail       PreviewKind = "missing_email"
	PreviewFailed             PreviewKind = "failed"
)

// PreviewResponse is the receipt API answer to a preview request
type PreviewResponse struct {
	Receipt            draft.Document `json:"receipt"`
	OperationType      string         `json:"operation_type"`
	Error              string         `json:"error"`
	Message            string         `json:"message"`
	MissingIntegration bool           `json:"missing_integration"`
	MissingField       string         `json:"missing_field"`
}

// Kind reports which of the four response shapes r is
func (r PreviewResponse) Kind() PreviewKind {
	switch {
	case r.Error == "":
		return PreviewSuccess
	case r.MissingIntegration:
		return PreviewMissingIntegration
	case r.MissingField == "email":
		return PreviewMissingEmail
	default:
		return PreviewFailed
	}
}

// ErrorText is the text shown to the user for an error response
func (r PreviewResponse) ErrorText() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Error
}

// ConfirmRequest submits the final draft for fiscal processing
type ConfirmRequest struct {
	Message       string         `json:"message"`
	OperationType string         `json:"operation_type"`
	PreviewOnly   bool           `json:"preview_only"`
	EditedData    draft.Document `json:"edited_data"`
	ExternalID    string         `json:"external_id"`
	Settings      Settings       `json:"settings"`
}

// ConfirmResponse is the receipt API answer to a confirm request
type ConfirmResponse struct {
	Success   bool           `json:"success"`
	Receipt   draft.Document `json:"receipt"`
	UUID      string         `json:"uuid"`
	Permalink string         `json:"permalink"`
	Message   string         `json:"message"`
	Error     string         `json:"error"`
}

// FailureText is the reason shown for a failed confirmation
func (r ConfirmResponse) FailureText() string {
	switch {
	case r.Message != "":
		return r.Message
	case r.Error != "":
		return r.Error
	default:
		return "Неизвестная ошибка"
	}
}

// ExternalID builds the idempotency token sent with a confirmation
func ExternalID(now time.Time) string {
	return fmt.Sprintf("AI_%d", now.UnixMilli())
}

// Client talks to the receipt API
type Client struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewClient creates a receipt API client. A zero timeout uses DefaultTimeout.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:     url,
		timeout: timeout,
		client:  &http.Client{},
	}
}

// RequestPreview sends the user's text for interpretation
func (c *Client) RequestPreview(ctx context.Context, req PreviewRequest) (*PreviewResponse, error) {
	req.PreviewOnly = true

	var resp PreviewResponse
	if err := c.post(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ConfirmReceipt submits the draft. The edited draft falls back to previous when nil.
func (c *Client) ConfirmReceipt(ctx context.Context, req ConfirmRequest, previous draft.Document) (*ConfirmResponse, error) {
	req.PreviewOnly = false
	if req.EditedData == nil {
		req.EditedData = previous
	}

	var resp ConfirmResponse
	if err := c.post(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling receipt api: %w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	// error shapes arrive with non-2xx statuses too, so the body is read regardless
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decoding response (status %d): %w: %w", resp.StatusCode, ErrUnavailable, err)
	}
	return nil
}
