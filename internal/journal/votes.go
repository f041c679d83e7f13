package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/kassir/internal/admin"
)

const (
	recentVotes   = 50
	excerptLength = 100
)

// Vote is a user's feedback on one agent message
type Vote struct {
	UserID          string `db:"user_id" json:"-"`
	MessageID       string `db:"message_id" json:"message_id"`
	UserMessage     string `db:"user_message" json:"user_message"`
	AgentResponse   string `db:"agent_response" json:"agent_response"`
	FeedbackType    string `db:"feedback_type" json:"feedback_type"`
	CreatedAtMillis int64  `db:"created_at" json:"-"`
}

// RecordVote stores a vote, replacing an earlier vote on the same message
func (j *Journal) RecordVote(ctx context.Context, v Vote) error {
	_, err := j.db.NamedExecContext(ctx, `INSERT INTO feedback_votes
        (user_id, message_id, user_message, agent_response, feedback_type, created_at)
        VALUES (:user_id, :message_id, :user_message, :agent_response, :feedback_type, :created_at)
        ON CONFLICT(user_id, message_id) DO UPDATE SET
            feedback_type = excluded.feedback_type,
            created_at = excluded.created_at`, v)
	if err != nil {
		return fmt.Errorf("saving vote: %w", err)
	}
	return nil
}

// Votes returns a user's votes keyed by message id
func (j *Journal) Votes(ctx context.Context, userID string) (map[string]string, error) {
	var rows []Vote
	err := j.db.SelectContext(ctx, &rows, `SELECT user_id, message_id, user_message, agent_response, feedback_type, created_at
        FROM feedback_votes WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing votes: %w", err)
	}

	out := make(map[string]string, len(rows))
	for _, v := range rows {
		out[v.MessageID] = v.FeedbackType
	}
	return out, nil
}

// Stats aggregates the locally recorded votes in the stats API shape
func (j *Journal) Stats(ctx context.Context) (*admin.Stats, error) {
	var counts struct {
		Total    int `db:"total"`
		Positive int `db:"positive"`
		Negative int `db:"negative"`
	}
	err := j.db.GetContext(ctx, &counts, `SELECT
            COUNT(*) AS total,
            COALESCE(SUM(CASE WHEN feedback_type = 'positive' THEN 1 ELSE 0 END), 0) AS positive,
            COALESCE(SUM(CASE WHEN feedback_type = 'negative' THEN 1 ELSE 0 END), 0) AS negative
        FROM feedback_votes`)
	if err != nil {
		return nil, fmt.Errorf("counting votes: %w", err)
	}

	var rows []Vote
	err = j.db.SelectContext(ctx, &rows, `SELECT user_id, message_id, user_message, agent_response, feedback_type, created_at
        FROM feedback_votes ORDER BY created_at DESC, id DESC LIMIT ?`, recentVotes)
	if err != nil {
		return nil, fmt.Errorf("listing recent votes: %w", err)
	}

	stats := &admin.Stats{
		Total:          counts.Total,
		Positive:       counts.Positive,
		Negative:       counts.Negative,
		RecentFeedback: make([]admin.RecentFeedback, 0, len(rows)),
	}
	if counts.Total > 0 {
		stats.PositiveRate = decimal.NewFromInt(int64(counts.Positive * 100)).
			Div(decimal.NewFromInt(int64(counts.Total))).
			Round(1).
			InexactFloat64()
	}
	for _, v := range rows {
		stats.RecentFeedback = append(stats.RecentFeedback, admin.RecentFeedback{
			MessageID:     v.MessageID,
			UserMessage:   excerpt(v.UserMessage),
			AgentResponse: excerpt(v.AgentResponse),
			FeedbackType:  v.FeedbackType,
			CreatedAt:     time.UnixMilli(v.CreatedAtMillis).UTC().Format(time.RFC3339),
		})
	}
	return stats, nil
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) <= excerptLength {
		return s
	}
	return string(r[:excerptLength])
}
