package chat

import "strings"

// Intent is a command recognised in free text before it reaches the receipt API
type Intent int

const (
	IntentNone Intent = iota
	IntentClearHistory
)

var clearHistoryPhrases = []string{
	"очисти историю",
	"почисти историю",
	"очистить историю",
	"почистить историю",
	"очисти",
	"почисти",
	"clear history",
	"clear",
}

// DetectIntent matches input against the command phrases. Single words must
// match exactly; multi-word phrases also match inside a longer message.
func DetectIntent(input string) Intent {
	text := strings.Join(strings.Fields(strings.ToLower(input)), " ")
	if text == "" {
		return IntentNone
	}
	for _, phrase := range clearHistoryPhrases {
		if text == phrase {
			return IntentClearHistory
		}
		if strings.Contains(phrase, " ") && strings.Contains(text, phrase) {
			return IntentClearHistory
		}
	}
	return IntentNone
}
