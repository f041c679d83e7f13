package store

import (
	"encoding/json"
	"errors"
	"log/slog"
)

// Keys persisted per user
const (
	KeyChatMessages    = "chat_messages"
	KeyPendingReceipt  = "pending_receipt"
	KeyEditedData      = "edited_data"
	KeyLastReceiptData = "last_receipt_data"
	KeyContextMessage  = "context_message"
	KeyEditMode        = "edit_mode"
	KeySettings        = "ecomkassa_settings"
)

// KeyAISettings is shared by all users
const KeyAISettings = "ai_settings"

// UserKey namespaces name under a user id
func UserKey(userID, name string) string {
	return "user:" + userID + ":" + name
}

// Load decodes the JSON value stored under key. It never fails: a missing
// key yields def, and an entry that does not decode is deleted and def returned.
func Load[T any](kv KV, key string, def T) T {
	data, err := kv.Get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("Failed to read stored value", "key", key, "error", err)
		}
		return def
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		slog.Warn("Discarding corrupted stored value", "key", key, "error", err)
		Remove(kv, key)
		return def
	}
	return out
}

// Save encodes value as JSON under key. Failures are logged, not returned.
func Save(kv KV, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		slog.Error("Failed to encode value", "key", key, "error", err)
		return
	}
	if err := kv.Put(key, data); err != nil {
		slog.Error("Failed to store value", "key", key, "error", err)
	}
}

// Remove deletes key, logging failures
func Remove(kv KV, key string) {
	if err := kv.Delete(key); err != nil {
		slog.Error("Failed to remove value", "key", key, "error", err)
	}
}
