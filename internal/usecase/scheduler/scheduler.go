// Package scheduler держит по одному таймеру на напоминание и доставляет их в срок.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"tg-reminder-bot/internal/domain"
	"tg-reminder-bot/internal/infra/metrics"
	"tg-reminder-bot/internal/usecase/recurrence"
)

// AlertPrefix добавляется к каждой текстовой части при доставке.
const AlertPrefix = "🔔 "

const defaultDedupTTL = 6 * time.Hour

// Scheduler — очередь ближайших срабатываний, не более одной записи на ID.
type Scheduler struct {
	repo      domain.ReminderRepo
	messenger domain.Messenger
	engine    recurrence.Engine
	clock     clock.Clock
	dedup     domain.Cache
	dedupTTL  time.Duration
	log       zerolog.Logger

	mu       sync.Mutex
	entries  map[string]*entry
	queue    entryQueue
	seq      uint64
	wake     chan struct{}
	inflight sync.WaitGroup
}

// New создаёт планировщик. clk == nil означает системные часы, dedup может быть nil.
func New(repo domain.ReminderRepo, messenger domain.Messenger, engine recurrence.Engine, clk clock.Clock, dedup domain.Cache, dedupTTL time.Duration, logger zerolog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if dedupTTL <= 0 {
		dedupTTL = defaultDedupTTL
	}
	return &Scheduler{
		repo:      repo,
		messenger: messenger,
		engine:    engine,
		clock:     clk,
		dedup:     dedup,
		dedupTTL:  dedupTTL,
		log:       logger,
		entries:   make(map[string]*entry),
		wake:      make(chan struct{}, 1),
	}
}

// Schedule перечитывает напоминание и (пере)регистрирует его.
// Повторный вызов заменяет прежнюю регистрацию.
func (s *Scheduler) Schedule(ctx context.Context, id string) error {
	r, err := s.repo.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		s.Cancel(id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("загрузка напоминания %s: %w", id, err)
	}
	s.ScheduleReminder(r)
	return nil
}

// ScheduleReminder регистрирует уже прочитанное напоминание.
func (s *Scheduler) ScheduleReminder(r domain.Reminder) {
	if r.Completed {
		s.Cancel(r.ID)
		return
	}
	next, ok := s.engine.Next(r.Rule, r.Time, s.clock.Now())
	if !ok {
		s.log.Warn().Str("reminder", r.ID).Str("rule", string(r.Rule.Kind)).Msg("scheduler: правило никогда не срабатывает")
		s.Cancel(r.ID)
		return
	}

	s.mu.Lock()
	s.removeLocked(r.ID)
	s.seq++
	e := &entry{id: r.ID, at: next, rule: r.Rule, tod: r.Time, gen: s.seq}
	s.entries[r.ID] = e
	heap.Push(&s.queue, e)
	metrics.ActiveTimers.Set(float64(len(s.entries)))
	s.mu.Unlock()

	s.log.Debug().Str("reminder", r.ID).Time("next", next).Msg("scheduler: напоминание запланировано")
	s.signal()
}

// Cancel снимает регистрацию. После возврата новая доставка по этому ID не начнётся.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	removed := s.removeLocked(id)
	metrics.ActiveTimers.Set(float64(len(s.entries)))
	s.mu.Unlock()
	if removed {
		s.signal()
	}
}

// Next возвращает запланированный момент срабатывания.
func (s *Scheduler) Next(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.index < 0 {
		return time.Time{}, false
	}
	return e.at, true
}

// Len возвращает число активных регистраций.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Run обслуживает очередь до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) {
	fireCtx := context.WithoutCancel(ctx)
	for {
		s.dispatchDue(fireCtx)

		var (
			timer  *clock.Timer
			timerC <-chan time.Time
		)
		if next, ok := s.peek(); ok {
			wait := next.Sub(s.clock.Now())
			if wait <= 0 {
				continue
			}
			timer = s.clock.Timer(wait)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// Wait ждёт завершения начатых доставок.
func (s *Scheduler) Wait() {
	s.inflight.Wait()
}

// Fire немедленно выполняет срабатывание зарегистрированного напоминания.
// Без активной регистрации ничего не делает.
func (s *Scheduler) Fire(ctx context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	var gen uint64
	var slot time.Time
	if ok {
		gen, slot = e.gen, e.at
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.fire(ctx, id, gen, slot)
}

type firing struct {
	id   string
	gen  uint64
	slot time.Time
}

func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := s.clock.Now()
	var due []firing

	s.mu.Lock()
	for len(s.queue) > 0 && !s.queue[0].at.After(now) {
		e := s.queue[0]
		due = append(due, firing{id: e.id, gen: e.gen, slot: e.at})
		if e.rule.Kind == domain.RuleOneTime {
			// Запись остаётся в entries до конца доставки, чтобы Cancel мог её остановить.
			heap.Pop(&s.queue)
			continue
		}
		next, ok := s.engine.Next(e.rule, e.tod, now)
		if !ok {
			heap.Pop(&s.queue)
			delete(s.entries, e.id)
			continue
		}
		e.at = next
		heap.Fix(&s.queue, e.index)
	}
	metrics.ActiveTimers.Set(float64(len(s.entries)))
	s.mu.Unlock()

	for _, f := range due {
		s.inflight.Add(1)
		go s.runFire(ctx, f)
	}
}

func (s *Scheduler) runFire(ctx context.Context, f firing) {
	defer s.inflight.Done()
	defer s.forgetDetached(f.id, f.gen)
	defer func() {
		if rec := recover(); rec != nil {
			metrics.ObserveFire("panic")
			s.log.Error().Str("reminder", f.id).Interface("panic", rec).Msg("scheduler: паника при срабатывании")
		}
	}()
	if err := s.fire(ctx, f.id, f.gen, f.slot); err != nil {
		metrics.ObserveFire("error")
		s.log.Error().Err(err).Str("reminder", f.id).Msg("scheduler: не удалось выполнить напоминание")
	}
}

func (s *Scheduler) fire(ctx context.Context, id string, gen uint64, slot time.Time) error {
	r, err := s.repo.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		// Напоминание удалили, пока таймер ждал.
		s.forget(id, gen)
		metrics.ObserveFire("missing")
		s.log.Debug().Str("reminder", id).Msg("scheduler: напоминание удалено, пропускаем")
		return nil
	}
	if err != nil {
		return fmt.Errorf("загрузка напоминания: %w", err)
	}
	if !s.current(id, gen) {
		// Регистрацию отменили или заменили после извлечения из очереди.
		metrics.ObserveFire("skipped")
		return nil
	}
	if r.Completed {
		s.forget(id, gen)
		metrics.ObserveFire("skipped")
		return nil
	}
	if s.engine.Expired(r.EndDate, s.clock.Now()) {
		if err := s.repo.MarkCompleted(ctx, id); err != nil {
			return fmt.Errorf("завершение по дате окончания: %w", err)
		}
		s.forget(id, gen)
		metrics.ObserveFire("expired")
		s.log.Info().Str("reminder", id).Str("end_date", r.EndDate.String()).Msg("scheduler: срок напоминания истёк")
		return nil
	}

	deliver := func() error { return s.deliver(ctx, r) }
	if s.dedup != nil {
		err = s.dedup.Once(fmt.Sprintf("reminder:fire:%s:%d", id, slot.Unix()), s.dedupTTL, deliver)
	} else {
		err = deliver()
	}
	if err != nil {
		return err
	}
	metrics.ObserveFire("delivered")
	s.log.Info().Str("reminder", id).Int64("chat", r.ChatID).Msg("scheduler: напоминание доставлено")

	if r.Rule.Kind == domain.RuleOneTime {
		// Правка во время доставки уже перепланировала напоминание: его не завершаем.
		completed, err := s.repo.CompleteIfUnchanged(ctx, id, r.Rule.Kind, r.Time)
		if err != nil {
			return fmt.Errorf("завершение однократного напоминания: %w", err)
		}
		if !completed {
			s.log.Info().Str("reminder", id).Msg("scheduler: напоминание изменено во время доставки, оставляем активным")
		}
		s.forget(id, gen)
	}
	return nil
}

func (s *Scheduler) deliver(ctx context.Context, r domain.Reminder) error {
	last := len(r.Messages) - 1
	for i, part := range r.Messages {
		ackID := ""
		if i == last {
			ackID = r.ID
		}
		if err := s.messenger.SendText(ctx, r.ChatID, AlertPrefix+part.Content, ackID); err != nil {
			return fmt.Errorf("отправка части %d: %w", i+1, err)
		}
	}
	if r.Attachment == nil {
		return nil
	}
	var err error
	switch r.Attachment.Kind {
	case domain.AttachmentPhoto:
		err = s.messenger.SendPhoto(ctx, r.ChatID, r.Attachment.FileID)
	case domain.AttachmentDocument:
		err = s.messenger.SendDocument(ctx, r.ChatID, r.Attachment.FileID)
	default:
		s.log.Warn().Str("reminder", r.ID).Str("kind", string(r.Attachment.Kind)).Msg("scheduler: неизвестный тип вложения")
	}
	if err != nil {
		return fmt.Errorf("отправка вложения: %w", err)
	}
	return nil
}

func (s *Scheduler) current(id string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return ok && e.gen == gen
}

// forget снимает регистрацию, только если она не была заменена.
func (s *Scheduler) forget(id string, gen uint64) {
	s.mu.Lock()
	if e, ok := s.entries[id]; ok && e.gen == gen {
		s.removeLocked(id)
	}
	metrics.ActiveTimers.Set(float64(len(s.entries)))
	s.mu.Unlock()
}

// forgetDetached убирает извлечённую из кучи однократную запись, даже если доставка не удалась.
func (s *Scheduler) forgetDetached(id string, gen uint64) {
	s.mu.Lock()
	if e, ok := s.entries[id]; ok && e.gen == gen && e.index < 0 {
		delete(s.entries, id)
	}
	metrics.ActiveTimers.Set(float64(len(s.entries)))
	s.mu.Unlock()
}

func (s *Scheduler) removeLocked(id string) bool {
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	if e.index >= 0 {
		heap.Remove(&s.queue, e.index)
	}
	delete(s.entries, id)
	return true
}

func (s *Scheduler) peek() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return time.Time{}, false
	}
	return s.queue[0].at, true
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
