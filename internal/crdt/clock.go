package crdt

import (
	"sync"
	"time"
)

// Clock выдает значения MutatedAt для локальных изменений.
type Clock interface {
	Now() int64
}

// NextAfter возвращает значение часов, но не меньше prev+1.
// Нужен при изменении существующей записи: новая версия должна побеждать
// старую по LWW, даже если старая пришла с устройства с убежавшими вперед часами.
func NextAfter(c Clock, prev int64) int64 {
	ts := c.Now()
	if ts <= prev {
		ts = prev + 1
	}
	return ts
}

// MutationClock представляет часы устройства для поля MutatedAt.
// Значения берутся из wall clock в миллисекундах, но никогда не убывают:
// если системное время отстало от последнего выданного или наблюдаемого значения,
// часы продолжают счет от него (по аналогии с часами Лампорта).
type MutationClock struct {
	now  func() time.Time // источник физического времени
	last int64            // последнее выданное или наблюдаемое значение
	mu   sync.Mutex       // мьютекс для потокобезопасности
}

// NewMutationClock создает часы на основе системного времени.
func NewMutationClock() *MutationClock {
	return NewMutationClockWithSource(time.Now)
}

// NewMutationClockWithSource создает часы с заданным источником времени.
// Используется для тестирования.
func NewMutationClockWithSource(now func() time.Time) *MutationClock {
	return &MutationClock{now: now}
}

// Now возвращает новое значение MutatedAt, строго большее предыдущего.
func (c *MutationClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	wall := c.now().UnixMilli()
	if wall <= c.last {
		wall = c.last + 1
	}
	c.last = wall

	return wall
}

// Observe учитывает timestamp, полученный от другого устройства.
// Следующий вызов Now вернет значение больше remoteTimestamp,
// поэтому локальная правка после синхронизации всегда побеждает увиденную версию.
func (c *MutationClock) Observe(remoteTimestamp int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remoteTimestamp > c.last {
		c.last = remoteTimestamp
	}
}

// Last возвращает последнее выданное или наблюдаемое значение без его изменения.
func (c *MutationClock) Last() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.last
}
