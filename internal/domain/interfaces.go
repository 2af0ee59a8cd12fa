package domain

import (
	"context"
	"time"
)

// ReminderRepo — долговременное хранилище напоминаний.
// Каждая изменяющая операция атомарна относительно одной записи.
type ReminderRepo interface {
	// Put сохраняет новое напоминание. Возвращает ErrDuplicateID, если ID занят.
	Put(ctx context.Context, r Reminder) error
	// Get возвращает напоминание или ErrNotFound.
	Get(ctx context.Context, id string) (Reminder, error)
	// Delete удаляет напоминание. Возвращает ErrNotFound, если записи нет.
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerID int64, includeCompleted bool) ([]Reminder, error)
	// ListActive возвращает все незавершённые напоминания.
	ListActive(ctx context.Context) ([]Reminder, error)
	// Patch применяет изменения одной операцией и возвращает обновлённую запись.
	Patch(ctx context.Context, id string, patch ReminderPatch) (Reminder, error)
	MarkCompleted(ctx context.Context, id string) error
	// CompleteIfUnchanged завершает напоминание, только если его тип и время
	// совпадают с доставленными. false — запись изменили, удалили или уже завершили.
	CompleteIfUnchanged(ctx context.Context, id string, kind RuleKind, at TimeOfDay) (bool, error)
}

// Directory сопоставляет username и идентификатор чата пользователя.
type Directory interface {
	RegisterUser(ctx context.Context, userID int64, username string) error
	// ResolveUsername возвращает ID пользователя или ErrNotFound.
	ResolveUsername(ctx context.Context, username string) (int64, error)
}

// Messenger отправляет сообщения получателю.
type Messenger interface {
	// SendText отправляет текст. Непустой ackID добавляет кнопку подтверждения для напоминания.
	SendText(ctx context.Context, chatID int64, text string, ackID string) error
	SendPhoto(ctx context.Context, chatID int64, fileID string) error
	SendDocument(ctx context.Context, chatID int64, fileID string) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
}
