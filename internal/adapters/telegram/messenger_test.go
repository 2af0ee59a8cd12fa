package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type stubSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (s *stubSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.sent = append(s.sent, c)
	return tgbotapi.Message{}, s.err
}

func (s *stubSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	s.sent = append(s.sent, c)
	return &tgbotapi.APIResponse{Ok: true}, s.err
}

func TestSendTextAddsDoneButton(t *testing.T) {
	sender := &stubSender{}
	m := NewMessenger(sender)
	if err := m.SendText(context.Background(), 7, "🔔 hello", "ab12cd34"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sender.sent))
	}
	msg, ok := sender.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("unexpected chattable %T", sender.sent[0])
	}
	if msg.ChatID != 7 || msg.Text != "🔔 hello" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(markup.InlineKeyboard) != 1 {
		t.Fatalf("expected inline keyboard, got %T", msg.ReplyMarkup)
	}
	button := markup.InlineKeyboard[0][0]
	if button.Text != DoneLabel || button.CallbackData == nil || *button.CallbackData != "done_ab12cd34" {
		t.Fatalf("unexpected button: %+v", button)
	}
}

func TestSendTextWithoutAck(t *testing.T) {
	sender := &stubSender{}
	if err := NewMessenger(sender).SendText(context.Background(), 7, "plain", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := sender.sent[0].(tgbotapi.MessageConfig)
	if msg.ReplyMarkup != nil {
		t.Fatalf("no keyboard expected, got %+v", msg.ReplyMarkup)
	}
}

func TestSendLongTextPutsButtonOnLastPart(t *testing.T) {
	sender := &stubSender{}
	text := strings.Repeat("a", messageLimit) + "\n" + strings.Repeat("b", 10)
	if err := NewMessenger(sender).SendText(context.Background(), 7, text, "id"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(sender.sent))
	}
	if sender.sent[0].(tgbotapi.MessageConfig).ReplyMarkup != nil {
		t.Fatal("button must be only on the last part")
	}
	if sender.sent[1].(tgbotapi.MessageConfig).ReplyMarkup == nil {
		t.Fatal("last part must carry the button")
	}
}

func TestSendAttachments(t *testing.T) {
	sender := &stubSender{}
	m := NewMessenger(sender)
	ctx := context.Background()
	if err := m.SendPhoto(ctx, 5, "photo-1"); err != nil {
		t.Fatalf("photo: %v", err)
	}
	if err := m.SendDocument(ctx, 5, "doc-1"); err != nil {
		t.Fatalf("document: %v", err)
	}
	photo, ok := sender.sent[0].(tgbotapi.PhotoConfig)
	if !ok || photo.File != tgbotapi.FileID("photo-1") {
		t.Fatalf("unexpected photo: %+v", sender.sent[0])
	}
	doc, ok := sender.sent[1].(tgbotapi.DocumentConfig)
	if !ok || doc.File != tgbotapi.FileID("doc-1") {
		t.Fatalf("unexpected document: %+v", sender.sent[1])
	}
}

func TestSendPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	sender := &stubSender{err: boom}
	if err := NewMessenger(sender).SendText(context.Background(), 1, "x", ""); !errors.Is(err, boom) {
		t.Fatalf("expected send error, got %v", err)
	}
}

func TestParseDone(t *testing.T) {
	if id, ok := ParseDone("done_ab12cd34"); !ok || id != "ab12cd34" {
		t.Fatalf("unexpected parse: %q %v", id, ok)
	}
	for _, data := range []string{"done_", "mute:1", ""} {
		if _, ok := ParseDone(data); ok {
			t.Fatalf("%q must not parse", data)
		}
	}
}
