package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActiveTimers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reminder_timers_active",
		Help: "Количество запланированных напоминаний",
	})
	FiresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reminder_fires_total",
		Help: "Срабатывания напоминаний по результату",
	}, []string{"result"})
	RemindersCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reminders_created_total",
		Help: "Созданные напоминания по типу повторения",
	}, []string{"kind"})
	WizardSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wizard_sessions_active",
		Help: "Активные диалоги мастера",
	})
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		ActiveTimers,
		FiresTotal,
		RemindersCreated,
		WizardSessions,
		BotSendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveFire учитывает результат срабатывания напоминания.
func ObserveFire(result string) {
	FiresTotal.WithLabelValues(result).Inc()
}

// IncCreated увеличивает счётчик созданных напоминаний.
func IncCreated(kind string) {
	RemindersCreated.WithLabelValues(kind).Inc()
}
