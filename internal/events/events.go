package events

import (
	"sync"

	"bronizone/internal/models"

	"github.com/rs/zerolog"
)

// Bus внутрипроцессная шина событий. Публикация не блокируется: при
// переполненной очереди подписчика событие отбрасывается с предупреждением.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan models.Event
	logger      *zerolog.Logger
	closed      bool
}

func NewBus(logger *zerolog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe возвращает канал с буфером size, в который будут приходить все
// события, опубликованные после подписки.
func (b *Bus) Subscribe(size int) <-chan models.Event {
	ch := make(chan models.Event, size)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers = append(b.subscribers, ch)
	return ch
}

func (b *Bus) Publish(event models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.logger.Warn().Str("type", event.Type).Msg("event dropped, subscriber queue full")
		}
	}
}

// Close закрывает каналы всех подписчиков. Публикации после Close — no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
