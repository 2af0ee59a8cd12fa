package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-reminder-bot/internal/adapters/telegram"
	"tg-reminder-bot/internal/domain"
	"tg-reminder-bot/internal/infra/metrics"
	"tg-reminder-bot/internal/usecase/wizard"
)

// DoneAcknowledged — текст сообщения после нажатия кнопки подтверждения.
const DoneAcknowledged = "✅ Done!"

const keyboardRowSize = 2

// Lister отдаёт напоминания пользователя для /listreminders.
type Lister interface {
	List(ctx context.Context, ownerID int64) ([]domain.Reminder, error)
}

// Handler обслуживает апдейты бота.
type Handler struct {
	bot       telegram.Sender
	log       zerolog.Logger
	wizard    *wizard.Machine
	reminders Lister
	directory domain.Directory
}

// NewHandler создаёт обработчик.
func NewHandler(bot telegram.Sender, log zerolog.Logger, machine *wizard.Machine, reminders Lister, directory domain.Directory) *Handler {
	return &Handler{
		bot:       bot,
		log:       log.With().Str("component", "bot").Logger(),
		wizard:    machine,
		reminders: reminders,
		directory: directory,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

// Webhook возвращает http.Handler, принимающий апдейты от Telegram.
func (h *Handler) Webhook(ctx context.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var upd tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			h.log.Warn().Err(err).Msg("некорректный апдейт вебхука")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		h.HandleUpdate(ctx, upd)
		w.WriteHeader(http.StatusOK)
	})
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	in := wizard.Input{
		UserID:     msg.From.ID,
		ChatID:     msg.Chat.ID,
		Username:   msg.From.UserName,
		Text:       text,
		Attachment: ExtractAttachment(msg),
	}

	switch wizard.ParseCommand(text) {
	case "/start":
		h.handleStart(ctx, in)
	case "/getid":
		h.handleGetID(msg.Chat)
	case "/newreminder":
		h.send(msg.Chat.ID, h.wizard.Start(ctx, in))
	case "/listreminders":
		h.handleList(ctx, in)
	case "/editreminder":
		h.send(msg.Chat.ID, h.wizard.StartEdit(ctx, in))
	case "/deletereminder":
		h.send(msg.Chat.ID, h.wizard.StartDelete(ctx, in))
	case wizard.CommandCancel:
		h.send(msg.Chat.ID, h.wizard.Cancel(in.UserID))
	default:
		if reply, ok := h.wizard.Handle(ctx, in); ok {
			h.send(msg.Chat.ID, reply)
			return
		}
		if strings.HasPrefix(text, "/") && msg.Chat.IsPrivate() {
			h.reply(msg.Chat.ID, "Unknown command. Use /start to see what I can do.", nil)
		}
	}
}

func (h *Handler) handleStart(ctx context.Context, in wizard.Input) {
	if in.Username != "" {
		if err := h.directory.RegisterUser(ctx, in.UserID, in.Username); err != nil {
			h.log.Error().Err(err).Int64("user", in.UserID).Msg("не удалось сохранить пользователя")
		}
	}
	h.reply(in.ChatID, buildStartMessage(), nil)
}

func (h *Handler) handleGetID(chat *tgbotapi.Chat) {
	title := chat.Title
	if title == "" {
		title = "Private Chat"
	}
	h.reply(chat.ID, fmt.Sprintf("Chat ID: %d\nTitle: %s", chat.ID, title), nil)
}

func (h *Handler) handleList(ctx context.Context, in wizard.Input) {
	list, err := h.reminders.List(ctx, in.UserID)
	if err != nil {
		h.log.Error().Err(err).Int64("user", in.UserID).Msg("не удалось получить напоминания")
		h.reply(in.ChatID, "Could not load your reminders. Please try again later.", nil)
		return
	}
	if len(list) == 0 {
		h.reply(in.ChatID, "📭 No active reminders.", nil)
		return
	}
	h.reply(in.ChatID, "📋 Your reminders:\n\n"+wizard.FormatList(list), nil)
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if id, ok := telegram.ParseDone(cb.Data); ok && cb.Message != nil {
		h.log.Info().Str("reminder", id).Int64("user", cb.From.ID).Msg("напоминание подтверждено")
		edit := tgbotapi.NewEditMessageText(cb.Message.Chat.ID, cb.Message.MessageID, DoneAcknowledged)
		start := time.Now()
		_, err := h.bot.Request(edit)
		metrics.ObserveNetworkRequest("telegram_bot", "edit_message", strconv.FormatInt(cb.Message.Chat.ID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось обновить сообщение")
		}
	}
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, ""))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", strconv.FormatInt(cb.From.ID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось ответить на callback")
	}
}

func (h *Handler) send(chatID int64, reply wizard.Reply) {
	h.reply(chatID, reply.Text, OptionsKeyboard(reply.Options))
}

// reply отправляет текст частями; клавиатура прикрепляется к последней части.
func (h *Handler) reply(chatID int64, text string, keyboard interface{}) {
	parts := telegram.SplitMessage(text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == len(parts)-1 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

// OptionsKeyboard строит одноразовую клавиатуру из вариантов ответа.
// Без вариантов возвращает команду скрыть прежнюю клавиатуру.
func OptionsKeyboard(options []string) interface{} {
	if len(options) == 0 {
		return tgbotapi.NewRemoveKeyboard(true)
	}
	var rows [][]tgbotapi.KeyboardButton
	for i := 0; i < len(options); i += keyboardRowSize {
		end := i + keyboardRowSize
		if end > len(options) {
			end = len(options)
		}
		row := make([]tgbotapi.KeyboardButton, 0, end-i)
		for _, option := range options[i:end] {
			row = append(row, tgbotapi.NewKeyboardButton(option))
		}
		rows = append(rows, row)
	}
	markup := tgbotapi.NewReplyKeyboard(rows...)
	markup.OneTimeKeyboard = true
	markup.ResizeKeyboard = true
	return markup
}

// ExtractAttachment возвращает вложение сообщения: самое крупное фото или документ.
func ExtractAttachment(msg *tgbotapi.Message) *domain.Attachment {
	if len(msg.Photo) > 0 {
		best := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.Width*p.Height > best.Width*best.Height {
				best = p
			}
		}
		return &domain.Attachment{Kind: domain.AttachmentPhoto, FileID: best.FileID}
	}
	if msg.Document != nil {
		return &domain.Attachment{Kind: domain.AttachmentDocument, FileID: msg.Document.FileID}
	}
	return nil
}

func buildStartMessage() string {
	lines := []string{
		"👋 Hello! I am a Reminder Bot.",
		"",
		"📌 Commands:",
		"/newreminder - Create a reminder",
		"/listreminders - View your reminders",
		"/editreminder - Edit a reminder",
		"/deletereminder - Delete a reminder",
		"/getid - Get current chat ID",
		"/cancel - Cancel current operation",
	}
	return strings.Join(lines, "\n")
}
