package bot

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Dispatcher обрабатывает апдейты разных пользователей параллельно,
// а апдейты одного пользователя — строго по очереди.
type Dispatcher struct {
	handle func(context.Context, tgbotapi.Update)

	mu     sync.Mutex
	queues map[int64][]tgbotapi.Update
	wg     sync.WaitGroup
}

// NewDispatcher создаёт диспетчер поверх обработчика апдейта.
func NewDispatcher(handle func(context.Context, tgbotapi.Update)) *Dispatcher {
	return &Dispatcher{handle: handle, queues: make(map[int64][]tgbotapi.Update)}
}

// Dispatch ставит апдейт в очередь отправителя и не ждёт обработки.
func (d *Dispatcher) Dispatch(ctx context.Context, upd tgbotapi.Update) {
	key := senderID(upd)
	d.mu.Lock()
	queue, running := d.queues[key]
	d.queues[key] = append(queue, upd)
	if !running {
		d.wg.Add(1)
	}
	d.mu.Unlock()
	if !running {
		go d.drain(ctx, key)
	}
}

// Wait ждёт, пока все поставленные апдейты будут обработаны.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) drain(ctx context.Context, key int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		queue := d.queues[key]
		if len(queue) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		upd := queue[0]
		d.queues[key] = queue[1:]
		d.mu.Unlock()

		d.handle(ctx, upd)
	}
}

func senderID(upd tgbotapi.Update) int64 {
	switch {
	case upd.Message != nil && upd.Message.From != nil:
		return upd.Message.From.ID
	case upd.CallbackQuery != nil && upd.CallbackQuery.From != nil:
		return upd.CallbackQuery.From.ID
	}
	return 0
}
