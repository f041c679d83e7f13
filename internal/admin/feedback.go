package admin

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

// ErrStatsUnavailable is returned when no stats API is configured
var ErrStatsUnavailable = errors.New("stats api is not configured")

// Vote kinds
const (
	Positive = "positive"
	Negative = "negative"
)

// ValidVote reports whether kind is positive or negative
func ValidVote(kind string) bool {
	return kind == Positive || kind == Negative
}

// Feedback is a vote on one agent answer
type Feedback struct {
	MessageID     string `json:"message_id"`
	UserMessage   string `json:"user_message"`
	AgentResponse string `json:"agent_response"`
	FeedbackType  string `json:"feedback_type"`
}

// RecentFeedback is one row of the stats feed
type RecentFeedback struct {
	MessageID     string `json:"message_id"`
	UserMessage   string `json:"user_message"`
	AgentResponse string `json:"agent_response"`
	FeedbackType  string `json:"feedback_type"`
	CreatedAt     string `json:"created_at,omitempty"`
}

// Stats aggregates feedback votes
type Stats struct {
	Total          int              `json:"total"`
	Positive       int              `json:"positive"`
	Negative       int              `json:"negative"`
	PositiveRate   float64          `json:"positive_rate"`
	RecentFeedback []RecentFeedback `json:"recent_feedback"`
}

// FeedbackClient talks to the feedback and stats APIs
type FeedbackClient struct {
	feedbackURL string
	statsURL    string
	statsToken  string
	client      *http.Client
}

// NewFeedbackClient creates a client. Empty URLs disable the matching call.
func NewFeedbackClient(feedbackURL, statsURL, statsToken string) *FeedbackClient {
	return &FeedbackClient{
		feedbackURL: feedbackURL,
		statsURL:    statsURL,
		statsToken:  statsToken,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

// Submit sends a vote to the feedback API. Without a URL the vote is only kept locally.
func (c *FeedbackClient) Submit(ctx context.Context, fb Feedback) error {
	if c.feedbackURL == "" {
		return nil
	}

	jsonData, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("marshaling feedback: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.feedbackURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling feedback API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("feedback API error (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// HasStats reports whether a stats API is configured
func (c *FeedbackClient) HasStats() bool {
	return c.statsURL != ""
}

// Stats fetches aggregate feedback statistics
func (c *FeedbackClient) Stats(ctx context.Context) (*Stats, error) {
	if c.statsURL == "" {
		return nil, ErrStatsUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Admin-Token", c.statsToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling stats API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("stats API error (status %d): %s", resp.StatusCode, string(body))
	}

	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if stats.RecentFeedback == nil {
		stats.RecentFeedback = []RecentFeedback{}
	}
	return &stats, nil
}
