package wizard

import (
	"fmt"
	"strings"

	"tg-reminder-bot/internal/domain"
)

// PreviewLength — сколько символов первого сообщения показывать в списке.
const PreviewLength = 20

// FormatReminder описывает напоминание одной строкой.
func FormatReminder(r domain.Reminder) string {
	line := fmt.Sprintf("%s — %s — %s — %s", r.ID, r.Time, r.Rule.Describe(), r.Preview(PreviewLength))
	if r.EndDate != nil {
		line += " (until " + r.EndDate.String() + ")"
	}
	if r.Attachment != nil {
		line += " 📎"
	}
	return line
}

// FormatList перечисляет напоминания построчно.
func FormatList(list []domain.Reminder) string {
	lines := make([]string, 0, len(list))
	for _, r := range list {
		lines = append(lines, FormatReminder(r))
	}
	return strings.Join(lines, "\n")
}

// Summary — итог создания для пользователя.
func Summary(d domain.Draft, ids []string) string {
	var b strings.Builder
	rule := domain.Rule{Kind: d.Kind, Weekdays: d.Weekdays}
	if d.Kind == domain.RuleHourlyRange {
		fmt.Fprintf(&b, "✅ Created %d reminders: every hour %s–%s, %s (%d per day).\n",
			len(ids), d.HourlyStart, d.HourlyEnd, rule.Describe(), len(d.HourlySlots))
		fmt.Fprintf(&b, "IDs: %s\n", strings.Join(ids, ", "))
	} else {
		at := ""
		if d.Time != nil {
			at = d.Time.String()
		}
		fmt.Fprintf(&b, "✅ Reminder %s created: %s at %s.\n", strings.Join(ids, ", "), rule.Describe(), at)
	}
	fmt.Fprintf(&b, "Messages: %d", len(d.Messages))
	if d.Attachment != nil {
		b.WriteString(", with attachment")
	}
	b.WriteString("\n")
	if d.EndDate != nil {
		fmt.Fprintf(&b, "Until: %s\n", d.EndDate)
	}
	fmt.Fprintf(&b, "Chat: %d", d.ChatID)
	return b.String()
}
