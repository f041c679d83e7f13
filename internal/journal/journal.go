package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// DefaultPageSize is the history page length when none is given
const DefaultPageSize = 50

const maxPageSize = 200

// Entry is one settled receipt
type Entry struct {
	ID              int64           `db:"id" json:"id"`
	UserID          string          `db:"user_id" json:"-"`
	ExternalID      string          `db:"external_id" json:"external_id"`
	UUID            string          `db:"uuid" json:"uuid,omitempty"`
	Permalink       string          `db:"permalink" json:"permalink,omitempty"`
	OperationType   string          `db:"operation_type" json:"operation_type"`
	UserMessage     string          `db:"user_message" json:"user_message"`
	Total           decimal.Decimal `db:"total" json:"total"`
	Success         bool            `db:"success" json:"success"`
	ErrorMessage    string          `db:"error_message" json:"error_message,omitempty"`
	Payload         []byte          `db:"payload" json:"-"`
	CreatedAtMillis int64           `db:"created_at" json:"-"`
}

// CreatedAt is when the receipt settled
func (e Entry) CreatedAt() time.Time {
	return time.UnixMilli(e.CreatedAtMillis).UTC()
}

// MarshalJSON adds the receipt payload and a readable timestamp
func (e Entry) MarshalJSON() ([]byte, error) {
	type plain Entry
	receipt := json.RawMessage("null")
	if len(e.Payload) > 0 {
		receipt = e.Payload
	}
	return json.Marshal(struct {
		plain
		Receipt   json.RawMessage `json:"receipt"`
		CreatedAt time.Time       `json:"created_at"`
	}{plain(e), receipt, e.CreatedAt()})
}

// Page is one page of a user's receipt history
type Page struct {
	Receipts []Entry `json:"receipts"`
	Total    int     `json:"total"`
	Limit    int     `json:"limit"`
	Offset   int     `json:"offset"`
}

// Journal keeps receipt history and feedback votes in SQLite
type Journal struct {
	db *sqlx.DB
}

// Open connects to the SQLite database at dsn and creates the schema
func Open(dsn string) (*Journal, error) {
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func migrate(db *sqlx.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS receipts (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id TEXT NOT NULL,
            external_id TEXT NOT NULL,
            uuid TEXT NOT NULL DEFAULT '',
            permalink TEXT NOT NULL DEFAULT '',
            operation_type TEXT NOT NULL DEFAULT '',
            user_message TEXT NOT NULL DEFAULT '',
            total TEXT NOT NULL DEFAULT '0',
            success INTEGER NOT NULL DEFAULT 0,
            error_message TEXT NOT NULL DEFAULT '',
            payload BLOB,
            created_at INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_receipts_user ON receipts(user_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS feedback_votes (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id TEXT NOT NULL,
            message_id TEXT NOT NULL,
            user_message TEXT NOT NULL DEFAULT '',
            agent_response TEXT NOT NULL DEFAULT '',
            feedback_type TEXT NOT NULL,
            created_at INTEGER NOT NULL,
            UNIQUE(user_id, message_id)
        );`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}

// RecordReceipt stores a settled receipt
func (j *Journal) RecordReceipt(ctx context.Context, e Entry) (int64, error) {
	res, err := j.db.NamedExecContext(ctx, `INSERT INTO receipts
        (user_id, external_id, uuid, permalink, operation_type, user_message, total, success, error_message, payload, created_at)
        VALUES (:user_id, :external_id, :uuid, :permalink, :operation_type, :user_message, :total, :success, :error_message, :payload, :created_at)`, e)
	if err != nil {
		return 0, fmt.Errorf("inserting receipt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading receipt id: %w", err)
	}
	return id, nil
}

// List returns a user's receipts, newest first
func (j *Journal) List(ctx context.Context, userID string, limit, offset int) (*Page, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	page := &Page{Receipts: []Entry{}, Limit: limit, Offset: offset}
	if err := j.db.GetContext(ctx, &page.Total, `SELECT COUNT(*) FROM receipts WHERE user_id = ?`, userID); err != nil {
		return nil, fmt.Errorf("counting receipts: %w", err)
	}

	err := j.db.SelectContext(ctx, &page.Receipts, `SELECT id, user_id, external_id, uuid, permalink, operation_type,
            user_message, total, success, error_message, payload, created_at
        FROM receipts WHERE user_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return page, nil
}

// Close closes the database connection
func (j *Journal) Close() error {
	return j.db.Close()
}
