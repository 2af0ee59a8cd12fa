package telegram

import (
	"context"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-reminder-bot/internal/domain"
	"tg-reminder-bot/internal/infra/metrics"
)

// DonePrefix — префикс callback-данных кнопки подтверждения.
const DonePrefix = "done_"

// DoneLabel — подпись кнопки подтверждения.
const DoneLabel = "✅ Done"

// Sender — часть tgbotapi.BotAPI, через которую идёт отправка.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Messenger реализует domain.Messenger поверх Bot API.
type Messenger struct {
	bot Sender
}

var _ domain.Messenger = (*Messenger)(nil)

// NewMessenger создаёт адаптер.
func NewMessenger(bot Sender) *Messenger {
	return &Messenger{bot: bot}
}

// DoneKeyboard возвращает кнопку подтверждения для напоминания.
func DoneKeyboard(reminderID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(DoneLabel, DonePrefix+reminderID),
		),
	)
}

// ParseDone извлекает ID напоминания из callback-данных.
func ParseDone(data string) (string, bool) {
	if !strings.HasPrefix(data, DonePrefix) {
		return "", false
	}
	id := strings.TrimPrefix(data, DonePrefix)
	return id, id != ""
}

// SendText отправляет текст; длинный текст режется на части, кнопка ставится на последнюю.
func (m *Messenger) SendText(ctx context.Context, chatID int64, text string, ackID string) error {
	parts := SplitMessage(text)
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, part)
		if ackID != "" && i == len(parts)-1 {
			msg.ReplyMarkup = DoneKeyboard(ackID)
		}
		if err := m.send(chatID, "send_message", msg); err != nil {
			return err
		}
	}
	return nil
}

// SendPhoto отправляет фото по file_id.
func (m *Messenger) SendPhoto(ctx context.Context, chatID int64, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.send(chatID, "send_photo", tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID)))
}

// SendDocument отправляет документ по file_id.
func (m *Messenger) SendDocument(ctx context.Context, chatID int64, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.send(chatID, "send_document", tgbotapi.NewDocument(chatID, tgbotapi.FileID(fileID)))
}

func (m *Messenger) send(chatID int64, operation string, c tgbotapi.Chattable) error {
	start := time.Now()
	_, err := m.bot.Send(c)
	metrics.ObserveNetworkRequest("telegram_bot", operation, strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		metrics.BotSendErrors.Inc()
	}
	return err
}
