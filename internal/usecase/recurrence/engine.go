// Package recurrence вычисляет моменты срабатывания напоминаний.
// Пакет не выполняет ввод-вывод и не хранит состояние.
package recurrence

import (
	"time"

	"tg-reminder-bot/internal/domain"
)

// Engine считает расписание в фиксированном часовом поясе.
type Engine struct {
	Location *time.Location
	// WeeklyDay — день срабатывания для domain.RuleWeekly.
	WeeklyDay domain.Weekday
}

// New создаёт движок. nil-локация означает UTC.
func New(loc *time.Location, weeklyDay domain.Weekday) Engine {
	if loc == nil {
		loc = time.UTC
	}
	return Engine{Location: loc, WeeklyDay: weeklyDay}
}

// Eligible сообщает, может ли правило сработать в указанный день недели.
func (e Engine) Eligible(rule domain.Rule, day domain.Weekday) bool {
	switch rule.Kind {
	case domain.RuleOneTime, domain.RuleDaily:
		return true
	case domain.RuleWeekly:
		return day == e.WeeklyDay
	case domain.RuleCustomDays, domain.RuleHourlyRange:
		return rule.Weekdays.Has(day)
	}
	return false
}

// Next возвращает ближайший момент срабатывания строго после after.
// Для однократного правила это сегодня в указанное время, а если оно прошло — завтра.
// ok == false, если правило не может сработать ни в один день.
func (e Engine) Next(rule domain.Rule, at domain.TimeOfDay, after time.Time) (time.Time, bool) {
	local := after.In(e.loc())
	at.Hour %= 24
	y, m, d := local.Date()

	if rule.Kind == domain.RuleOneTime {
		target := at.On(y, m, d, e.loc())
		if !target.After(local) {
			target = at.On(y, m, d+1, e.loc())
		}
		return target, true
	}

	// Неделя плюс день: время сегодня могло уже пройти.
	for offset := 0; offset <= 7; offset++ {
		candidate := at.On(y, m, d+offset, e.loc())
		if !candidate.After(local) {
			continue
		}
		if e.Eligible(rule, domain.WeekdayOf(candidate)) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

// Expired сообщает, что дата окончания прошла: сегодня строго позже endDate.
func (e Engine) Expired(endDate *domain.Date, now time.Time) bool {
	if endDate == nil {
		return false
	}
	return domain.DateOf(now.In(e.loc())).After(*endDate)
}

func (e Engine) loc() *time.Location {
	if e.Location == nil {
		return time.UTC
	}
	return e.Location
}
