package scheduler

import (
	"time"

	"tg-reminder-bot/internal/domain"
)

// entry — одна регистрация напоминания в очереди.
type entry struct {
	id   string
	at   time.Time
	rule domain.Rule
	tod  domain.TimeOfDay
	// gen отличает регистрации одного ID: после Cancel или повторного Schedule
	// старое срабатывание уже не начнёт доставку.
	gen uint64
	// index — позиция в куче, -1 если запись извлечена и ждёт завершения доставки.
	index int
}

// entryQueue — min-куча по времени срабатывания для container/heap.
type entryQueue []*entry

func (q entryQueue) Len() int { return len(q) }

func (q entryQueue) Less(i, j int) bool { return q[i].at.Before(q[j].at) }

func (q entryQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *entryQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *entryQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}
