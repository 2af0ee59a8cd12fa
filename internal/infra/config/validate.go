package config

import (
	"errors"
	"fmt"
	"time"
)

// Драйверы хранилища.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Validate проверяет согласованность настроек.
func (c AppConfig) Validate() error {
	if c.Telegram.Token == "" {
		return errors.New("TG_BOT_TOKEN обязателен")
	}
	if _, err := time.LoadLocation(c.TZ); err != nil {
		return fmt.Errorf("TZ: %w", err)
	}
	if c.Scheduler.WeeklyWeekday < 0 || c.Scheduler.WeeklyWeekday > 6 {
		return fmt.Errorf("WEEKLY_WEEKDAY должен быть от 0 до 6, получено %d", c.Scheduler.WeeklyWeekday)
	}
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.PGDSN == "" {
			return errors.New("PG_DSN обязателен для STORE_DRIVER=postgres")
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("SQLITE_PATH обязателен для STORE_DRIVER=sqlite")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("неизвестный STORE_DRIVER %q", c.Store.Driver)
	}
	return nil
}
