package domain

import (
	"fmt"
	"strings"
)

// Draft — частично заполненное напоминание, которое собирает мастер.
type Draft struct {
	OwnerID  int64
	Kind     RuleKind
	Weekdays WeekdaySet
	// Time задаётся для всех типов, кроме RuleHourlyRange.
	Time *TimeOfDay
	// HourlyStart и HourlyEnd хранят введённые границы диапазона для сводки.
	HourlyStart string
	HourlyEnd   string
	// HourlySlots заполняется при разворачивании диапазона.
	HourlySlots []TimeOfDay
	Messages    []MessagePart
	Attachment  *Attachment
	EndDate     *Date
	ChatID      int64
	// HasChatID отличает выбранный получатель от нулевого значения.
	HasChatID bool
}

// Validate проверяет обязательные для типа поля.
func (d Draft) Validate() error {
	var problems []string
	if d.OwnerID == 0 {
		problems = append(problems, "owner")
	}
	switch d.Kind {
	case RuleOneTime, RuleDaily, RuleWeekly:
		if d.Time == nil {
			problems = append(problems, "time")
		}
	case RuleCustomDays:
		if d.Time == nil {
			problems = append(problems, "time")
		}
		if d.Weekdays.Empty() {
			problems = append(problems, "weekdays")
		}
	case RuleHourlyRange:
		if len(d.HourlySlots) == 0 {
			problems = append(problems, "hourly slots")
		}
		if d.Weekdays.Empty() {
			problems = append(problems, "weekdays")
		}
	default:
		problems = append(problems, "frequency")
	}
	if len(d.Messages) == 0 {
		problems = append(problems, "messages")
	}
	if !d.HasChatID {
		problems = append(problems, "destination")
	}
	if d.Kind == RuleOneTime && d.EndDate != nil {
		problems = append(problems, "end date on one-time reminder")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDraft, strings.Join(problems, ", "))
	}
	return nil
}

// Reminders разворачивает черновик в одно или несколько напоминаний (по одному на слот диапазона).
// ID и CreatedAt заполняет хранилище.
func (d Draft) Reminders() []Reminder {
	base := Reminder{
		OwnerID:    d.OwnerID,
		Rule:       Rule{Kind: d.Kind},
		Messages:   append([]MessagePart(nil), d.Messages...),
		Attachment: d.Attachment,
		ChatID:     d.ChatID,
		EndDate:    d.EndDate,
	}
	if d.Kind == RuleCustomDays || d.Kind == RuleHourlyRange {
		base.Rule.Weekdays = d.Weekdays
	}
	if d.Kind != RuleHourlyRange {
		base.Time = *d.Time
		return []Reminder{base}
	}
	out := make([]Reminder, 0, len(d.HourlySlots))
	for _, slot := range d.HourlySlots {
		sibling := base
		sibling.Messages = append([]MessagePart(nil), d.Messages...)
		sibling.Time = slot
		out = append(out, sibling)
	}
	return out
}
