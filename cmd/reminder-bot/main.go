package main

import (
	"context"
	"net/url"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tg-reminder-bot/internal/adapters/bot"
	"tg-reminder-bot/internal/adapters/repo"
	"tg-reminder-bot/internal/adapters/telegram"
	"tg-reminder-bot/internal/domain"
	"tg-reminder-bot/internal/infra/cache"
	"tg-reminder-bot/internal/infra/config"
	"tg-reminder-bot/internal/infra/db"
	apphttp "tg-reminder-bot/internal/infra/http"
	"tg-reminder-bot/internal/infra/log"
	"tg-reminder-bot/internal/infra/metrics"
	"tg-reminder-bot/internal/usecase/recurrence"
	"tg-reminder-bot/internal/usecase/reminders"
	"tg-reminder-bot/internal/usecase/scheduler"
	"tg-reminder-bot/internal/usecase/wizard"
)

const defaultWebhookPath = "/bot/webhook"

// store объединяет хранилище напоминаний и справочник пользователей.
type store interface {
	domain.ReminderRepo
	domain.Directory
}

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	st, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	var dedup domain.Cache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		redisCache := cache.NewRedis(rdb)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Fatal().Err(err).Msg("redis недоступен")
		}
		dedup = redisCache
	}

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.TZ).Msg("неизвестный часовой пояс")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}

	engine := recurrence.New(loc, domain.Weekday(cfg.Scheduler.WeeklyWeekday))
	sched := scheduler.New(st, telegram.NewMessenger(botAPI), engine, clock.New(), dedup, cfg.Scheduler.FireDedupTTL, logger)
	service := reminders.NewService(st, sched, logger)
	machine := wizard.New(service, st, cfg.Telegram.DefaultGroupID, logger)
	h := bot.NewHandler(botAPI, logger, machine, service, st)
	dispatcher := bot.NewDispatcher(h.HandleUpdate)

	restored, err := service.RestoreAll(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось восстановить напоминания")
	}
	logger.Info().Int("restored", restored).Str("tz", loc.String()).Msg("бот готов к работе")

	go sched.Run(ctx)

	srv := apphttp.NewServer(logger)
	var polled chan struct{}
	if cfg.Telegram.WebhookURL != "" {
		path := webhookPath(cfg.Telegram.WebhookURL)
		srv.MountWebhook(path, h.Webhook(ctx))
		wh, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("некорректный TG_WEBHOOK_URL")
		}
		if _, err := botAPI.Request(wh); err != nil {
			logger.Fatal().Err(err).Msg("не удалось установить вебхук")
		}
		logger.Info().Str("path", path).Msg("бот принимает апдейты через вебхук")
	} else {
		if _, err := botAPI.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			logger.Warn().Err(err).Msg("не удалось снять вебхук")
		}
		polled = make(chan struct{})
		go func() {
			defer close(polled)
			poll(ctx, botAPI, dispatcher, logger)
		}()
	}

	go func() {
		if err := srv.Start(":"+strconv.Itoa(cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("остановка бота")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("не удалось остановить HTTP сервер")
	}
	botAPI.StopReceivingUpdates()
	if polled != nil {
		<-polled
	}
	dispatcher.Wait()
	sched.Wait()
}

func openStore(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (store, func()) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := db.Connect(ctx, cfg.Store.PGDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
		}
		pg := repo.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("не удалось подготовить схему")
		}
		return pg, pool.Close
	case config.DriverSQLite:
		lite, err := repo.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.Store.SQLitePath).Msg("не удалось открыть SQLite")
		}
		return lite, func() {
			if err := lite.Close(); err != nil {
				logger.Error().Err(err).Msg("не удалось закрыть SQLite")
			}
		}
	default:
		logger.Warn().Msg("напоминания хранятся в памяти и не переживут перезапуск")
		return repo.NewMemory(), func() {}
	}
}

func poll(ctx context.Context, botAPI *tgbotapi.BotAPI, dispatcher *bot.Dispatcher, logger zerolog.Logger) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := botAPI.GetUpdatesChan(u)
	logger.Info().Str("bot", botAPI.Self.UserName).Msg("бот запущен в режиме long polling")
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			dispatcher.Dispatch(ctx, upd)
		}
	}
}

func webhookPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" || u.Path == "/" {
		return defaultWebhookPath
	}
	return u.Path
}

var (
	_ store = (*repo.Postgres)(nil)
	_ store = (*repo.SQLite)(nil)
	_ store = (*repo.Memory)(nil)
)
