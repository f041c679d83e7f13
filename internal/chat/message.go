package chat

import (
	"time"

	"github.com/zombor/kassir/internal/draft"
)

// Role is who a transcript entry belongs to
type Role string

const (
	RoleUser    Role = "user"
	RoleAgent   Role = "agent"
	RolePreview Role = "preview"
)

// Message is one transcript entry. Entries are never changed after they are appended.
type Message struct {
	ID               string         `json:"id"`
	Role             Role           `json:"role"`
	Content          string         `json:"content"`
	Timestamp        time.Time      `json:"timestamp"`
	ReceiptData      draft.Document `json:"receipt_data,omitempty"`
	ReceiptUUID      string         `json:"receipt_uuid,omitempty"`
	ReceiptPermalink string         `json:"receipt_permalink,omitempty"`
	PreviewData      draft.Document `json:"preview_data,omitempty"`
	HasError         bool           `json:"has_error,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
}

// Agent replies shown in the transcript
const (
	textPreview           = "Проверь данные чека перед отправкой"
	textPreviewTransport  = "Произошла ошибка при обработке запроса. Попробуй еще раз."
	textConfirmed         = "Чек успешно отправлен в ЕкомКасса"
	textConfirmTransport  = "Ошибка соединения с сервером. Попробуй еще раз."
	textCancelled         = "Проверка данных чека отменена"
	textFailurePrefix     = "Ошибка: "
	textErrorPrefix       = "❌ "
	textWelcomeConfigured = "Привет! Я твой ИИ Кассир, создам чеки за тебя. Напиши запрос текстом или голосом, например: консультация по бизнесу 5000 рублей"
	textWelcomeSetup      = "👋 Привет! Я помогу создавать чеки через голос или текст.\n\n**Для начала работы заполни настройки:**\n\nНажми **Настройки** справа вверху\n\nПосле этого просто скажи или напиши:\n*\"Консультация 5000₽ для ivan@mail.ru\"*"
)

// WelcomeMessage is the seeded first message. Users without integration
// settings are pointed at the settings page first.
func WelcomeMessage(configured bool, now time.Time) Message {
	content := textWelcomeSetup
	if configured {
		content = textWelcomeConfigured
	}
	return Message{
		ID:        WelcomeID,
		Role:      RoleAgent,
		Content:   content,
		Timestamp: now,
	}
}
