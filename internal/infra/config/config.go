package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию бота.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Asia/Tbilisi"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
		// DefaultGroupID — чат для кнопки «To Group».
		DefaultGroupID int64 `envconfig:"TG_DEFAULT_GROUP_ID" default:"-1003342043555"`
	} `envconfig:""`

	Store struct {
		Driver     string `envconfig:"STORE_DRIVER" default:"sqlite"`
		PGDSN      string `envconfig:"PG_DSN"`
		SQLitePath string `envconfig:"SQLITE_PATH" default:"reminders.db"`
	} `envconfig:""`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Scheduler struct {
		// WeeklyWeekday — день недели для «Weekly»: 0 — понедельник, 6 — воскресенье.
		WeeklyWeekday int           `envconfig:"WEEKLY_WEEKDAY" default:"0"`
		FireDedupTTL  time.Duration `envconfig:"FIRE_DEDUP_TTL" default:"6h"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает конфиг из окружения и проверяет значения.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}
