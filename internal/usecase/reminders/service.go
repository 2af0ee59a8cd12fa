// Package reminders связывает хранилище и планировщик: создание, правка, удаление и восстановление.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-reminder-bot/internal/domain"
	"tg-reminder-bot/internal/infra/metrics"
)

var (
	// ErrInvalidValue — новое значение поля не прошло проверку.
	ErrInvalidValue = errors.New("invalid value")
	// ErrUnknownField — поле нельзя редактировать.
	ErrUnknownField = errors.New("unknown field")
)

const (
	idLength   = 8
	idRetryMax = 5
)

// Field — редактируемое поле напоминания.
type Field string

const (
	FieldTime      Field = "time"
	FieldMessage   Field = "message"
	FieldFrequency Field = "frequency"
	FieldEndDate   Field = "end_date"
)

// Fields перечисляет поля в порядке показа пользователю.
var Fields = []Field{FieldTime, FieldMessage, FieldFrequency, FieldEndDate}

// Label возвращает подпись кнопки.
func (f Field) Label() string {
	switch f {
	case FieldTime:
		return "Time"
	case FieldMessage:
		return "Message"
	case FieldFrequency:
		return "Frequency"
	case FieldEndDate:
		return "End Date"
	}
	return string(f)
}

// ParseField принимает подпись кнопки или имя поля в любом регистре.
func ParseField(input string) (Field, error) {
	key := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(input)))
	switch key {
	case "time":
		return FieldTime, nil
	case "message", "text":
		return FieldMessage, nil
	case "frequency":
		return FieldFrequency, nil
	case "enddate":
		return FieldEndDate, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, input)
}

// EditableFrequencies — типы повторения, на которые можно переключить при правке.
var EditableFrequencies = []domain.RuleKind{domain.RuleDaily, domain.RuleOneTime, domain.RuleWeekly}

// Scheduler — часть планировщика, нужная сервису.
type Scheduler interface {
	Schedule(ctx context.Context, id string) error
	Cancel(id string)
}

// Service оркестрирует операции над напоминаниями.
type Service struct {
	repo      domain.ReminderRepo
	scheduler Scheduler
	log       zerolog.Logger
	newID     func() string
}

// NewService создаёт сервис.
func NewService(repo domain.ReminderRepo, scheduler Scheduler, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		scheduler: scheduler,
		log:       logger.With().Str("component", "reminders").Logger(),
		newID:     func() string { return uuid.NewString()[:idLength] },
	}
}

// CreateFromDraft сохраняет черновик и планирует срабатывания.
// Для почасового диапазона создаётся по напоминанию на каждый слот; возвращаются все ID.
// При ошибке возвращаются ID уже сохранённых напоминаний.
func (s *Service) CreateFromDraft(ctx context.Context, draft domain.Draft) ([]string, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(draft.HourlySlots)+1)
	for _, r := range draft.Reminders() {
		id, err := s.put(ctx, r)
		if err != nil {
			return ids, fmt.Errorf("сохранение напоминания: %w", err)
		}
		ids = append(ids, id)
		metrics.IncCreated(string(r.Rule.Kind))
		if err := s.scheduler.Schedule(ctx, id); err != nil {
			return ids, fmt.Errorf("планирование %s: %w", id, err)
		}
	}
	s.log.Info().Int64("user", draft.OwnerID).Int64("chat", draft.ChatID).Str("kind", string(draft.Kind)).
		Strs("reminders", ids).Msg("напоминания созданы")
	return ids, nil
}

// put генерирует ID и повторяет попытку при коллизии.
func (s *Service) put(ctx context.Context, r domain.Reminder) (string, error) {
	for attempt := 0; attempt < idRetryMax; attempt++ {
		r.ID = s.newID()
		err := s.repo.Put(ctx, r)
		if errors.Is(err, domain.ErrDuplicateID) {
			continue
		}
		if err != nil {
			return "", err
		}
		return r.ID, nil
	}
	return "", fmt.Errorf("could not generate unique reminder id: %w", domain.ErrDuplicateID)
}

// Get возвращает напоминание владельца. Чужое напоминание считается ненайденным.
func (s *Service) Get(ctx context.Context, ownerID int64, id string) (domain.Reminder, error) {
	r, err := s.repo.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Reminder{}, err
	}
	if r.OwnerID != ownerID {
		return domain.Reminder{}, domain.ErrNotFound
	}
	return r, nil
}

// List возвращает активные напоминания владельца.
func (s *Service) List(ctx context.Context, ownerID int64) ([]domain.Reminder, error) {
	return s.repo.ListByOwner(ctx, ownerID, false)
}

// Edit проверяет значение поля, применяет его и перепланирует напоминание.
func (s *Service) Edit(ctx context.Context, ownerID int64, id string, field Field, value string) (domain.Reminder, error) {
	current, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return domain.Reminder{}, err
	}
	patch, err := BuildPatch(field, value)
	if err != nil {
		return domain.Reminder{}, err
	}
	updated, err := s.repo.Patch(ctx, current.ID, patch)
	if err != nil {
		return domain.Reminder{}, fmt.Errorf("обновление напоминания: %w", err)
	}
	if err := s.scheduler.Schedule(ctx, updated.ID); err != nil {
		return updated, fmt.Errorf("перепланирование %s: %w", updated.ID, err)
	}
	s.log.Info().Int64("user", ownerID).Str("reminder", updated.ID).Str("field", string(field)).Msg("напоминание изменено")
	return updated, nil
}

// BuildPatch превращает введённое значение в изменение поля.
func BuildPatch(field Field, value string) (domain.ReminderPatch, error) {
	value = strings.TrimSpace(value)
	switch field {
	case FieldTime:
		tod, err := domain.ParseTimeOfDay(value)
		if err != nil {
			return domain.ReminderPatch{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return domain.ReminderPatch{Time: &tod}, nil
	case FieldMessage:
		if value == "" {
			return domain.ReminderPatch{}, fmt.Errorf("%w: empty message", ErrInvalidValue)
		}
		return domain.ReminderPatch{Messages: []domain.MessagePart{domain.TextPart(value)}}, nil
	case FieldFrequency:
		kind, ok := parseFrequency(value)
		if !ok {
			return domain.ReminderPatch{}, fmt.Errorf("%w: frequency must be Daily, One-time or Weekly", ErrInvalidValue)
		}
		patch := domain.ReminderPatch{Rule: &domain.Rule{Kind: kind}}
		// У однократного напоминания нет даты окончания.
		patch.ClearEndDate = kind == domain.RuleOneTime
		return patch, nil
	case FieldEndDate:
		if strings.EqualFold(value, "none") {
			return domain.ReminderPatch{ClearEndDate: true}, nil
		}
		date, err := domain.ParseDate(value)
		if err != nil {
			return domain.ReminderPatch{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return domain.ReminderPatch{EndDate: &date}, nil
	}
	return domain.ReminderPatch{}, fmt.Errorf("%w: %q", ErrUnknownField, field)
}

func parseFrequency(value string) (domain.RuleKind, bool) {
	key := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(value))
	for _, kind := range EditableFrequencies {
		label := strings.ReplaceAll(strings.ToLower(kind.Label()), "-", "")
		if key == label || key == strings.ReplaceAll(string(kind), "_", "") {
			return kind, true
		}
	}
	return "", false
}

// Delete снимает напоминание с планировщика и удаляет его.
func (s *Service) Delete(ctx context.Context, ownerID int64, id string) error {
	r, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	s.scheduler.Cancel(r.ID)
	if err := s.repo.Delete(ctx, r.ID); err != nil {
		return fmt.Errorf("удаление напоминания: %w", err)
	}
	s.log.Info().Int64("user", ownerID).Str("reminder", r.ID).Msg("напоминание удалено")
	return nil
}

// RestoreAll планирует все незавершённые напоминания. Вызывается при старте процесса.
func (s *Service) RestoreAll(ctx context.Context) (int, error) {
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("загрузка активных напоминаний: %w", err)
	}
	restored := 0
	for _, r := range active {
		if err := s.scheduler.Schedule(ctx, r.ID); err != nil {
			s.log.Error().Err(err).Str("reminder", r.ID).Msg("не удалось восстановить напоминание")
			continue
		}
		restored++
	}
	s.log.Info().Int("restored", restored).Int("active", len(active)).Msg("напоминания восстановлены")
	return restored, nil
}
