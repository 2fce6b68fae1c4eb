package bus

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultBufferSize - размер буфера подписчика по умолчанию
const DefaultBufferSize = 256

// Event - сообщение шины
type Event struct {
	Topic   Topic
	Payload interface{}
	At      time.Time
}

// Handler обрабатывает события одного топика
type Handler func(Event)

// subscription - подписчик со своим буфером и горутиной доставки
type subscription struct {
	id      uint64
	topic   Topic
	ch      chan Event
	handler Handler
	done    chan struct{}
}

// Bus - асинхронная шина publish/subscribe
//
// Каждый подписчик получает события в порядке публикации в своей горутине,
// поэтому обработчик может обращаться к издателю без реентерабельности.
// Publish никогда не блокируется: при переполнении буфера событие отбрасывается.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic][]*subscription
	nextID uint64
	closed bool

	bufferSize int
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// New создаёт шину
func New(bufferSize int, logger *zap.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:       make(map[Topic][]*subscription),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Subscribe регистрирует обработчик топика. Возвращает функцию отписки.
func (b *Bus) Subscribe(topic Topic, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	b.nextID++
	sub := &subscription{
		id:      b.nextID,
		topic:   topic,
		ch:      make(chan Event, b.bufferSize),
		handler: h,
		done:    make(chan struct{}),
	}
	b.subs[topic] = append(b.subs[topic], sub)
	SubscribersGauge.WithLabelValues(string(topic)).Inc()

	b.wg.Add(1)
	go b.deliver(sub)

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(sub) })
	}
}

// Publish рассылает событие всем подписчикам топика
func (b *Bus) Publish(topic Topic, payload interface{}) {
	ev := Event{Topic: topic, Payload: payload, At: time.Now()}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	PublishedTotal.WithLabelValues(string(topic)).Inc()

	for _, sub := range b.subs[topic] {
		tryEnqueue(sub, ev, b.logger)
	}
}

// Close останавливает доставку и ждёт завершения обработчиков.
// Недоставленные события отбрасываются.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for topic, subs := range b.subs {
		for _, sub := range subs {
			close(sub.done)
		}
		SubscribersGauge.WithLabelValues(string(topic)).Set(0)
	}
	b.subs = make(map[Topic][]*subscription)
	b.mu.Unlock()

	b.wg.Wait()
}

// SubscriberCount возвращает количество подписчиков топика
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *Bus) unsubscribe(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sub.topic]
	for i, s := range subs {
		if s.id == sub.id {
			b.subs[sub.topic] = append(subs[:i:i], subs[i+1:]...)
			close(sub.done)
			SubscribersGauge.WithLabelValues(string(sub.topic)).Dec()
			return
		}
	}
}

func (b *Bus) deliver(sub *subscription) {
	defer b.wg.Done()

	for {
		select {
		case <-sub.done:
			return
		case ev := <-sub.ch:
			b.invoke(sub, ev)
		}
	}
}

// invoke вызывает обработчик, паника не должна убивать горутину доставки
func (b *Bus) invoke(sub *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			HandlerPanics.WithLabelValues(string(ev.Topic)).Inc()
			b.logger.Error("bus handler panic",
				zap.String("topic", string(ev.Topic)),
				zap.Any("panic", r),
			)
		}
	}()
	sub.handler(ev)
}

// tryEnqueue кладёт событие в буфер подписчика с метриками переполнения.
// Возвращает true, если событие поставлено в очередь.
func tryEnqueue(sub *subscription, ev Event, logger *zap.Logger) bool {
	select {
	case sub.ch <- ev:
		return true
	default:
		DroppedTotal.WithLabelValues(string(ev.Topic)).Inc()
		logger.Warn("bus subscriber buffer full, event dropped",
			zap.String("topic", string(ev.Topic)),
			zap.Int("capacity", cap(sub.ch)),
		)
		return false
	}
}

// Handle подписывает типизированный обработчик.
// События с payload другого типа пропускаются с предупреждением.
func Handle[T any](b *Bus, topic Topic, fn func(T)) func() {
	return b.Subscribe(topic, func(ev Event) {
		payload, ok := ev.Payload.(T)
		if !ok {
			b.logger.Warn("unexpected bus payload type",
				zap.String("topic", string(ev.Topic)),
				zap.String("type", typeName(ev.Payload)),
			)
			return
		}
		fn(payload)
	})
}
