package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidTime возвращается для строки не в формате ЧЧ:ММ.
	ErrInvalidTime = errors.New("invalid time, expected HH:MM")
	// ErrInvalidDate возвращается для строки не в формате ГГГГ-ММ-ДД.
	ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")
	// ErrNoWeekdays возвращается, если в списке нет ни одного дня недели.
	ErrNoWeekdays = errors.New("no valid weekdays")
)

// Midnight — особое значение конца почасового диапазона.
const Midnight = "24:00"

// TimeOfDay — время суток в фиксированном часовом поясе.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay парсит время формата ЧЧ:ММ.
func ParseTimeOfDay(input string) (TimeOfDay, error) {
	tm, err := time.Parse("15:04", strings.TrimSpace(input))
	if err != nil {
		return TimeOfDay{}, ErrInvalidTime
	}
	return TimeOfDay{Hour: tm.Hour(), Minute: tm.Minute()}, nil
}

// HourSlot возвращает время начала часа. Час 24 нормализуется в 00:00.
func HourSlot(hour int) TimeOfDay {
	return TimeOfDay{Hour: hour % 24}
}

// String форматирует время как ЧЧ:ММ.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On возвращает момент в этот день в указанной локации.
func (t TimeOfDay) On(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, t.Hour, t.Minute, 0, 0, loc)
}

// Date — календарная дата без времени.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate парсит дату формата ГГГГ-ММ-ДД.
func ParseDate(input string) (Date, error) {
	tm, err := time.Parse("2006-01-02", strings.TrimSpace(input))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return DateOf(tm), nil
}

// DateOf возвращает дату момента в его локации.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// String форматирует дату как ГГГГ-ММ-ДД.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// After сообщает, что d строго позже other.
func (d Date) After(other Date) bool {
	if d.Year != other.Year {
		return d.Year > other.Year
	}
	if d.Month != other.Month {
		return d.Month > other.Month
	}
	return d.Day > other.Day
}

// Weekday — день недели, понедельник = 0.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// String возвращает короткое английское имя дня.
func (w Weekday) String() string {
	if w < Monday || w > Sunday {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return weekdayNames[w]
}

// WeekdayOf переводит time.Weekday (воскресенье = 0) в Weekday.
func WeekdayOf(t time.Time) Weekday {
	return Weekday((int(t.Weekday()) + 6) % 7)
}

// WeekdaySet — множество дней недели в виде битовой маски.
type WeekdaySet uint8

// AllWeekdays содержит все семь дней.
const AllWeekdays WeekdaySet = 1<<7 - 1

// NewWeekdaySet собирает множество из списка дней, лишние значения игнорируются.
func NewWeekdaySet(days ...Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.Add(d)
	}
	return s
}

// Add добавляет день.
func (s WeekdaySet) Add(d Weekday) WeekdaySet {
	if d < Monday || d > Sunday {
		return s
	}
	return s | 1<<uint(d)
}

// Has проверяет наличие дня.
func (s WeekdaySet) Has(d Weekday) bool {
	if d < Monday || d > Sunday {
		return false
	}
	return s&(1<<uint(d)) != 0
}

// Empty сообщает, что множество пустое.
func (s WeekdaySet) Empty() bool {
	return s&AllWeekdays == 0
}

// Days возвращает дни по возрастанию.
func (s WeekdaySet) Days() []Weekday {
	var days []Weekday
	for d := Monday; d <= Sunday; d++ {
		if s.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

// Ints возвращает дни как числа 0..6 для хранилищ.
func (s WeekdaySet) Ints() []int {
	days := s.Days()
	out := make([]int, 0, len(days))
	for _, d := range days {
		out = append(out, int(d))
	}
	return out
}

// WeekdaySetFromInts собирает множество из сохранённых чисел.
func WeekdaySetFromInts(values []int) WeekdaySet {
	var s WeekdaySet
	for _, v := range values {
		s = s.Add(Weekday(v))
	}
	return s
}

// String перечисляет дни через запятую: "Mon, Wed, Fri".
func (s WeekdaySet) String() string {
	days := s.Days()
	names := make([]string, 0, len(days))
	for _, d := range days {
		names = append(names, d.String())
	}
	return strings.Join(names, ", ")
}

var weekdayTokens = map[string]Weekday{
	"MON": Monday, "TUE": Tuesday, "WED": Wednesday, "THU": Thursday,
	"FRI": Friday, "SAT": Saturday, "SUN": Sunday,
	"1": Monday, "2": Tuesday, "3": Wednesday, "4": Thursday,
	"5": Friday, "6": Saturday, "7": Sunday,
}

// ParseWeekdays разбирает список через запятую: "Mon,Wed,Fri" или "1,3,5" (1 = понедельник).
// Неизвестные токены пропускаются; пустой результат — ошибка.
func ParseWeekdays(input string) (WeekdaySet, error) {
	var s WeekdaySet
	for _, part := range strings.Split(strings.ToUpper(input), ",") {
		if d, ok := weekdayTokens[strings.TrimSpace(part)]; ok {
			s = s.Add(d)
		}
	}
	if s.Empty() {
		return 0, ErrNoWeekdays
	}
	return s, nil
}

// ExpandHourlyRange возвращает часы диапазона включительно.
// Если конец не больше начала, диапазон переходит через полночь.
// end == 24 допустим и даёт слот 00:00.
func ExpandHourlyRange(start, end int) []TimeOfDay {
	var hours []int
	if end > start {
		for h := start; h <= end; h++ {
			hours = append(hours, h)
		}
	} else {
		for h := start; h <= 23; h++ {
			hours = append(hours, h)
		}
		for h := 0; h <= end; h++ {
			hours = append(hours, h)
		}
	}
	slots := make([]TimeOfDay, 0, len(hours))
	seen := make(map[TimeOfDay]struct{}, len(hours))
	for _, h := range hours {
		slot := HourSlot(h)
		if _, dup := seen[slot]; dup {
			continue
		}
		seen[slot] = struct{}{}
		slots = append(slots, slot)
	}
	return slots
}

// ParseRangeEnd парсит конец почасового диапазона: ЧЧ:ММ или 24:00.
// Возвращает час конца (24 для полуночи).
func ParseRangeEnd(input string) (int, error) {
	if strings.TrimSpace(input) == Midnight {
		return 24, nil
	}
	t, err := ParseTimeOfDay(input)
	if err != nil {
		return 0, err
	}
	return t.Hour, nil
}
