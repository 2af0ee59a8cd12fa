// Package wizard ведёт пошаговые диалоги создания, правки и удаления напоминаний.
// У каждого пользователя не больше одного активного диалога; диалоги не сохраняются.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"tg-reminder-bot/internal/domain"
	"tg-reminder-bot/internal/infra/metrics"
	"tg-reminder-bot/internal/usecase/reminders"
)

// Service — операции над напоминаниями, которые нужны мастеру.
type Service interface {
	CreateFromDraft(ctx context.Context, draft domain.Draft) ([]string, error)
	Get(ctx context.Context, ownerID int64, id string) (domain.Reminder, error)
	List(ctx context.Context, ownerID int64) ([]domain.Reminder, error)
	Edit(ctx context.Context, ownerID int64, id string, field reminders.Field, value string) (domain.Reminder, error)
	Delete(ctx context.Context, ownerID int64, id string) error
}

// Input — одно входящее сообщение пользователя.
type Input struct {
	UserID   int64
	ChatID   int64
	Username string
	Text     string
	// Attachment заполнен, если пользователь прислал фото или файл.
	Attachment *domain.Attachment
}

// Reply — ответ пользователю. Options отображаются кнопками.
type Reply struct {
	Text    string
	Options []string
}

// Session — состояние одного диалога.
type Session struct {
	mu    sync.Mutex
	Stage Stage
	Draft domain.Draft

	hourlyStart int
	hourlyEnd   int
	editID      string
	editField   reminders.Field
	done        bool
}

// Machine хранит диалоги пользователей.
type Machine struct {
	service        Service
	directory      domain.Directory
	defaultGroupID int64
	log            zerolog.Logger

	mu       sync.Mutex
	sessions map[int64]*Session
}

// New создаёт мастер.
func New(service Service, directory domain.Directory, defaultGroupID int64, logger zerolog.Logger) *Machine {
	return &Machine{
		service:        service,
		directory:      directory,
		defaultGroupID: defaultGroupID,
		log:            logger.With().Str("component", "wizard").Logger(),
		sessions:       make(map[int64]*Session),
	}
}

// Active сообщает, есть ли у пользователя незавершённый диалог.
func (m *Machine) Active(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[userID]
	return ok
}

// StageOf возвращает текущий шаг пользователя.
func (m *Machine) StageOf(userID int64) (Stage, bool) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Stage, true
}

// Start начинает создание напоминания, заменяя прежний диалог.
func (m *Machine) Start(_ context.Context, in Input) Reply {
	m.put(in.UserID, &Session{Stage: StageFrequency, Draft: domain.Draft{OwnerID: in.UserID}})
	return frequencyPrompt()
}

// StartEdit показывает активные напоминания и ждёт ID для правки.
func (m *Machine) StartEdit(ctx context.Context, in Input) Reply {
	return m.startSelect(ctx, in, StageEditSelect, "Send the ID of the reminder to edit:")
}

// StartDelete показывает активные напоминания и ждёт ID для удаления.
func (m *Machine) StartDelete(ctx context.Context, in Input) Reply {
	return m.startSelect(ctx, in, StageDeleteSelect, "Send the ID of the reminder to delete:")
}

func (m *Machine) startSelect(ctx context.Context, in Input, stage Stage, prompt string) Reply {
	m.drop(in.UserID)
	list, err := m.service.List(ctx, in.UserID)
	if err != nil {
		m.log.Error().Err(err).Int64("user", in.UserID).Msg("не удалось получить напоминания")
		return Reply{Text: "Could not load your reminders. Please try again later."}
	}
	if len(list) == 0 {
		return Reply{Text: "You have no active reminders."}
	}
	m.put(in.UserID, &Session{Stage: stage})
	ids := make([]string, 0, len(list))
	for _, r := range list {
		ids = append(ids, r.ID)
	}
	return Reply{Text: prompt + "\n\n" + FormatList(list), Options: ids}
}

// Cancel завершает диалог пользователя.
func (m *Machine) Cancel(userID int64) Reply {
	if !m.drop(userID) {
		return Reply{Text: "Nothing to cancel."}
	}
	return Reply{Text: "Cancelled."}
}

// Handle передаёт ввод активному диалогу. ok == false, если диалога нет.
func (m *Machine) Handle(ctx context.Context, in Input) (Reply, bool) {
	m.mu.Lock()
	s, ok := m.sessions[in.UserID]
	m.mu.Unlock()
	if !ok {
		return Reply{}, false
	}
	if ParseCommand(in.Text) == CommandCancel {
		return m.Cancel(in.UserID), true
	}

	s.mu.Lock()
	reply := m.step(ctx, s, in)
	finished := s.done
	s.mu.Unlock()

	if finished {
		m.mu.Lock()
		if m.sessions[in.UserID] == s {
			delete(m.sessions, in.UserID)
		}
		metrics.WizardSessions.Set(float64(len(m.sessions)))
		m.mu.Unlock()
	}
	return reply, true
}

func (m *Machine) put(userID int64, s *Session) {
	m.mu.Lock()
	m.sessions[userID] = s
	metrics.WizardSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()
}

func (m *Machine) drop(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[userID]
	delete(m.sessions, userID)
	metrics.WizardSessions.Set(float64(len(m.sessions)))
	return ok
}

// step выполняет один переход. Вызывается под s.mu.
func (m *Machine) step(ctx context.Context, s *Session, in Input) Reply {
	text := strings.TrimSpace(in.Text)
	switch s.Stage {
	case StageFrequency:
		return m.onFrequency(s, text)
	case StageCustomDays:
		days, err := domain.ParseWeekdays(text)
		if err != nil {
			return weekdaysPrompt("No valid weekdays found. ")
		}
		s.Draft.Weekdays = days
		s.Stage = StageTime
		return timePrompt("")
	case StageHourlyStart:
		start, err := domain.ParseTimeOfDay(text)
		if err != nil {
			return Reply{Text: "Invalid time. Send the start of the range as HH:MM."}
		}
		s.hourlyStart = start.Hour
		s.Draft.HourlyStart = start.String()
		s.Stage = StageHourlyEnd
		return Reply{Text: "Send the end of the range as HH:MM (24:00 is allowed)."}
	case StageHourlyEnd:
		end, err := domain.ParseRangeEnd(text)
		if err != nil {
			return Reply{Text: "Invalid time. Send the end of the range as HH:MM or 24:00."}
		}
		s.hourlyEnd = end
		s.Draft.HourlyEnd = text
		s.Stage = StageHourlyDays
		return weekdaysPrompt("")
	case StageHourlyDays:
		days, err := domain.ParseWeekdays(text)
		if err != nil {
			return weekdaysPrompt("No valid weekdays found. ")
		}
		s.Draft.Weekdays = days
		s.Draft.HourlySlots = domain.ExpandHourlyRange(s.hourlyStart, s.hourlyEnd)
		s.Stage = StageMultiMsg
		return messagesPrompt()
	case StageTime:
		tod, err := domain.ParseTimeOfDay(text)
		if err != nil {
			return timePrompt("Invalid time format. ")
		}
		s.Draft.Time = &tod
		s.Stage = StageMultiMsg
		return messagesPrompt()
	case StageMultiMsg:
		return m.onMessage(s, in, text)
	case StageAttachment:
		switch {
		case in.Attachment != nil:
			s.Draft.Attachment = in.Attachment
			return m.afterAttachment(ctx, s, in)
		case text == OptionNoAttachment:
			return m.afterAttachment(ctx, s, in)
		case text == OptionSendFile:
			s.Stage = StageAttachmentFile
			return Reply{Text: "Send the photo or file."}
		}
		return Reply{Text: "Choose an option or send a photo/file.", Options: attachmentOptions}
	case StageAttachmentFile:
		if in.Attachment == nil {
			return Reply{Text: "Please send a photo or a document, or /cancel."}
		}
		s.Draft.Attachment = in.Attachment
		return m.afterAttachment(ctx, s, in)
	case StageRepeatUntil:
		switch text {
		case OptionNoEndDate:
			return m.enterDestination(ctx, s, in)
		case OptionSetEndDate:
			s.Stage = StageRepeatUntilDate
			return Reply{Text: "Send the last day as YYYY-MM-DD."}
		}
		return Reply{Text: "Choose whether the reminder has an end date.", Options: endDateOptions}
	case StageRepeatUntilDate:
		date, err := domain.ParseDate(text)
		if err != nil {
			return Reply{Text: "Invalid date. Send it as YYYY-MM-DD."}
		}
		s.Draft.EndDate = &date
		return m.enterDestination(ctx, s, in)
	case StageDestination:
		return m.onDestination(ctx, s, in, text)
	case StageUsernameInput:
		return m.onUsername(ctx, s, text)
	case StageDestinationID:
		chatID, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Reply{Text: "Chat ID must be a number, e.g. -1001234567890. Try again or /cancel."}
		}
		return m.finalize(ctx, s, chatID)
	case StageEditSelect:
		r, err := m.service.Get(ctx, in.UserID, text)
		if err != nil {
			return m.terminalLookup(s, err)
		}
		s.editID = r.ID
		s.Stage = StageEditField
		return Reply{Text: fmt.Sprintf("Editing %s. Which field?", r.ID), Options: fieldOptions()}
	case StageEditField:
		field, err := reminders.ParseField(text)
		if err != nil {
			return Reply{Text: "Choose a field to edit.", Options: fieldOptions()}
		}
		s.editField = field
		s.Stage = StageEditValue
		return valuePrompt(field)
	case StageEditValue:
		return m.onEditValue(ctx, s, in, text)
	case StageDeleteSelect:
		if err := m.service.Delete(ctx, in.UserID, text); err != nil {
			return m.terminalLookup(s, err)
		}
		s.done = true
		return Reply{Text: fmt.Sprintf("🗑 Reminder %s deleted.", text)}
	}
	s.done = true
	return Reply{Text: "Something went wrong. Start again with /newreminder."}
}

func (m *Machine) onFrequency(s *Session, text string) Reply {
	kind, ok := parseKind(text)
	if !ok {
		return frequencyPrompt()
	}
	s.Draft.Kind = kind
	switch kind {
	case domain.RuleCustomDays:
		s.Stage = StageCustomDays
		return weekdaysPrompt("")
	case domain.RuleHourlyRange:
		s.Stage = StageHourlyStart
		return Reply{Text: "Send the start of the range as HH:MM."}
	case domain.RuleOneTime, domain.RuleDaily, domain.RuleWeekly:
		s.Stage = StageTime
		return timePrompt("")
	}
	return frequencyPrompt()
}

func (m *Machine) onMessage(s *Session, in Input, text string) Reply {
	command := ParseCommand(text)
	if command == CommandDone {
		if len(s.Draft.Messages) == 0 {
			return Reply{Text: "Add at least one message before /done."}
		}
		s.Stage = StageAttachment
		return Reply{Text: "Add a photo or file to the reminder?", Options: attachmentOptions}
	}
	if command != "" || text == "" || in.Attachment != nil {
		return Reply{Text: "Only text messages are collected here. Send text or /done."}
	}
	s.Draft.Messages = append(s.Draft.Messages, domain.TextPart(text))
	return Reply{Text: fmt.Sprintf("Message %d saved. Send another one or /done.", len(s.Draft.Messages))}
}

// afterAttachment: дату окончания спрашиваем только у повторяющихся напоминаний.
func (m *Machine) afterAttachment(ctx context.Context, s *Session, in Input) Reply {
	if s.Draft.Kind.Recurring() {
		s.Stage = StageRepeatUntil
		return Reply{Text: "Should the reminder stop on a certain date?", Options: endDateOptions}
	}
	return m.enterDestination(ctx, s, in)
}

func (m *Machine) enterDestination(ctx context.Context, s *Session, in Input) Reply {
	if m.directory != nil && in.Username != "" {
		if err := m.directory.RegisterUser(ctx, in.UserID, in.Username); err != nil {
			m.log.Warn().Err(err).Int64("user", in.UserID).Msg("не удалось сохранить username")
		}
	}
	s.Stage = StageDestination
	return Reply{Text: "Where should the reminder be sent?", Options: destinationOptions}
}

func (m *Machine) onDestination(ctx context.Context, s *Session, in Input, text string) Reply {
	switch text {
	case OptionToMe:
		return m.finalize(ctx, s, in.UserID)
	case OptionToGroup:
		return m.finalize(ctx, s, m.defaultGroupID)
	case OptionToUsername:
		s.Stage = StageUsernameInput
		return Reply{Text: "Send the username, with or without @."}
	case OptionSpecificChat:
		s.Stage = StageDestinationID
		return Reply{Text: "Send the numeric chat ID."}
	}
	return Reply{Text: "Choose where to send the reminder.", Options: destinationOptions}
}

func (m *Machine) onUsername(ctx context.Context, s *Session, text string) Reply {
	username := domain.NormalizeUsername(text)
	if username == "" || m.directory == nil {
		return Reply{Text: "Send a username like @alice, or /cancel."}
	}
	userID, err := m.directory.ResolveUsername(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		return Reply{Text: fmt.Sprintf("@%s has not started the bot yet. Ask them to send /start, then send the username again or /cancel.", username)}
	}
	if err != nil {
		m.log.Error().Err(err).Str("username", username).Msg("не удалось найти пользователя")
		return Reply{Text: "Could not look up the username. Try again or /cancel."}
	}
	return m.finalize(ctx, s, userID)
}

func (m *Machine) finalize(ctx context.Context, s *Session, chatID int64) Reply {
	s.Draft.ChatID = chatID
	s.Draft.HasChatID = true
	s.done = true

	ids, err := m.service.CreateFromDraft(ctx, s.Draft)
	if err != nil {
		m.log.Error().Err(err).Int64("user", s.Draft.OwnerID).Strs("created", ids).Msg("не удалось создать напоминание")
		if len(ids) > 0 {
			return Reply{Text: fmt.Sprintf("Only part of the reminders were saved (%s). Check /listreminders and create the rest again.", strings.Join(ids, ", "))}
		}
		return Reply{Text: "Could not save the reminder. Please try again with /newreminder."}
	}
	return Reply{Text: Summary(s.Draft, ids)}
}

func (m *Machine) onEditValue(ctx context.Context, s *Session, in Input, text string) Reply {
	updated, err := m.service.Edit(ctx, in.UserID, s.editID, s.editField, text)
	switch {
	case errors.Is(err, reminders.ErrInvalidValue):
		return valuePrompt(s.editField)
	case err != nil:
		return m.terminalLookup(s, err)
	}
	s.done = true
	return Reply{Text: fmt.Sprintf("✅ Reminder %s updated.\n%s", updated.ID, FormatReminder(updated))}
}

// terminalLookup завершает диалог: ненайденное напоминание не переспрашивается.
func (m *Machine) terminalLookup(s *Session, err error) Reply {
	s.done = true
	if errors.Is(err, domain.ErrNotFound) {
		return Reply{Text: "Reminder not found."}
	}
	m.log.Error().Err(err).Str("stage", string(s.Stage)).Msg("операция с напоминанием не удалась")
	return Reply{Text: "Something went wrong. Please try again later."}
}

func parseKind(text string) (domain.RuleKind, bool) {
	for _, kind := range frequencyKinds {
		if strings.EqualFold(text, kind.Label()) || strings.EqualFold(text, string(kind)) {
			return kind, true
		}
	}
	return "", false
}

var frequencyKinds = []domain.RuleKind{
	domain.RuleDaily, domain.RuleOneTime, domain.RuleWeekly, domain.RuleCustomDays, domain.RuleHourlyRange,
}

func frequencyPrompt() Reply {
	options := make([]string, 0, len(frequencyKinds))
	for _, kind := range frequencyKinds {
		options = append(options, kind.Label())
	}
	return Reply{Text: "How often should the reminder fire?", Options: options}
}

func weekdaysPrompt(prefix string) Reply {
	return Reply{Text: prefix + "Send weekdays separated by commas, e.g. Mon,Wed,Fri or 1,3,5 (1 = Monday)."}
}

func timePrompt(prefix string) Reply {
	return Reply{Text: prefix + "Send the time as HH:MM (24-hour)."}
}

func messagesPrompt() Reply {
	return Reply{Text: "Send the reminder text. You can send several messages; send /done when finished."}
}

func fieldOptions() []string {
	options := make([]string, 0, len(reminders.Fields))
	for _, f := range reminders.Fields {
		options = append(options, f.Label())
	}
	return options
}

func valuePrompt(field reminders.Field) Reply {
	switch field {
	case reminders.FieldTime:
		return Reply{Text: "Send the new time as HH:MM."}
	case reminders.FieldMessage:
		return Reply{Text: "Send the new reminder text."}
	case reminders.FieldFrequency:
		options := make([]string, 0, len(reminders.EditableFrequencies))
		for _, kind := range reminders.EditableFrequencies {
			options = append(options, kind.Label())
		}
		return Reply{Text: "Choose the new frequency.", Options: options}
	case reminders.FieldEndDate:
		return Reply{Text: fmt.Sprintf("Send the new end date as YYYY-MM-DD, or %q to remove it.", endDateClearKeyword)}
	}
	return Reply{Text: "Send the new value."}
}
