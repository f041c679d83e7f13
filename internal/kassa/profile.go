package kassa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const profileEndpoint = "/api/mobile/v1/profile/firm"

// Store is one shop registered with the fiscal provider
type Store struct {
	StoreID      string `json:"storeId"`
	StoreName    string `json:"storeName"`
	StoreAddress string `json:"storeAddress"`
}

// ProfilePayload carries the firm data of a profile response
type ProfilePayload struct {
	TaxIdentity string  `json:"taxIdentity"`
	TaxVariant  string  `json:"taxVariant"`
	Stores      []Store `json:"stores"`
}

// Profile is the fiscal profile API response
type Profile struct {
	ErrorCode int            `json:"errorCode"`
	Error     string         `json:"error"`
	Payload   ProfilePayload `json:"payload"`
}

type profileRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Endpoint string `json:"endpoint"`
}

// ProfileClient talks to the fiscal profile proxy
type ProfileClient struct {
	url    string
	client *http.Client
}

// NewProfileClient creates a fiscal profile client
func NewProfileClient(url string, timeout time.Duration) *ProfileClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ProfileClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// FetchProfile loads the firm profile for the given credentials
func (p *ProfileClient) FetchProfile(ctx context.Context, login, password string) (*Profile, error) {
	jsonData, err := json.Marshal(profileRequest{Login: login, Password: password, Endpoint: profileEndpoint})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling profile api: %w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("profile api returned malformed data (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := profile.Error
		if msg == "" {
			msg = fmt.Sprintf("Ошибка %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("API Екомкасса: %s", msg)
	}
	return &profile, nil
}
