package domain

import "time"

// RuleKind определяет тип повторения напоминания.
type RuleKind string

const (
	// RuleOneTime — однократное напоминание.
	RuleOneTime RuleKind = "one_time"
	// RuleDaily — каждый день.
	RuleDaily RuleKind = "daily"
	// RuleWeekly — раз в неделю в фиксированный день.
	RuleWeekly RuleKind = "weekly"
	// RuleCustomDays — в выбранные дни недели.
	RuleCustomDays RuleKind = "custom_days"
	// RuleHourlyRange — один слот почасового диапазона, дни как у RuleCustomDays.
	RuleHourlyRange RuleKind = "hourly_range"
)

// Valid сообщает, известен ли тип.
func (k RuleKind) Valid() bool {
	switch k {
	case RuleOneTime, RuleDaily, RuleWeekly, RuleCustomDays, RuleHourlyRange:
		return true
	}
	return false
}

// Recurring возвращает true для всех типов, кроме однократного.
func (k RuleKind) Recurring() bool {
	return k.Valid() && k != RuleOneTime
}

// Label возвращает название типа для пользователя.
func (k RuleKind) Label() string {
	switch k {
	case RuleOneTime:
		return "One-time"
	case RuleDaily:
		return "Daily"
	case RuleWeekly:
		return "Weekly"
	case RuleCustomDays:
		return "Custom Days"
	case RuleHourlyRange:
		return "Hourly Range"
	}
	return string(k)
}

// Rule описывает, в какие дни напоминание может сработать.
type Rule struct {
	Kind     RuleKind
	Weekdays WeekdaySet
}

// Describe возвращает человекочитаемое описание правила.
func (r Rule) Describe() string {
	if (r.Kind == RuleCustomDays || r.Kind == RuleHourlyRange) && !r.Weekdays.Empty() {
		return "Custom (" + r.Weekdays.String() + ")"
	}
	return r.Kind.Label()
}

// MessageKind — тип части сообщения.
type MessageKind string

// MessageText — текстовая часть.
const MessageText MessageKind = "text"

// MessagePart — одна часть напоминания, доставляется в порядке добавления.
type MessagePart struct {
	Kind    MessageKind `json:"type"`
	Content string      `json:"content"`
}

// TextPart создаёт текстовую часть.
func TextPart(content string) MessagePart {
	return MessagePart{Kind: MessageText, Content: content}
}

// AttachmentKind — тип вложения.
type AttachmentKind string

const (
	AttachmentPhoto    AttachmentKind = "photo"
	AttachmentDocument AttachmentKind = "document"
)

// Attachment ссылается на файл Telegram, отправляется после всех сообщений.
type Attachment struct {
	Kind   AttachmentKind `json:"type"`
	FileID string         `json:"file_id"`
}

// Reminder — сохранённое напоминание.
type Reminder struct {
	ID         string
	OwnerID    int64
	Rule       Rule
	Time       TimeOfDay
	Messages   []MessagePart
	Attachment *Attachment
	ChatID     int64
	EndDate    *Date
	Completed  bool
	CreatedAt  time.Time
}

// Preview возвращает начало первого сообщения.
func (r Reminder) Preview(limit int) string {
	if len(r.Messages) == 0 {
		return ""
	}
	runes := []rune(r.Messages[0].Content)
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit]) + "..."
}

// ReminderPatch содержит изменяемые поля. nil означает «не менять».
type ReminderPatch struct {
	Time         *TimeOfDay
	Messages     []MessagePart
	Rule         *Rule
	EndDate      *Date
	ClearEndDate bool
}

// Empty сообщает, что патч ничего не меняет.
func (p ReminderPatch) Empty() bool {
	return p.Time == nil && p.Messages == nil && p.Rule == nil && p.EndDate == nil && !p.ClearEndDate
}

// Apply применяет патч к копии напоминания.
func (p ReminderPatch) Apply(r Reminder) Reminder {
	if p.Time != nil {
		r.Time = *p.Time
	}
	if p.Messages != nil {
		r.Messages = append([]MessagePart(nil), p.Messages...)
	}
	if p.Rule != nil {
		r.Rule = *p.Rule
	}
	if p.ClearEndDate {
		r.EndDate = nil
	} else if p.EndDate != nil {
		d := *p.EndDate
		r.EndDate = &d
	}
	return r
}
