package websocket

import (
	"bytes"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"orderflow/internal/bus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ============ sync.Pool для JSON буферов ============

var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// broadcastBufferSize - размер очереди broadcast; при переполнении сообщение отбрасывается
const broadcastBufferSize = 256

// Hub управляет всеми активными WebSocket соединениями
//
// Транслирует события координатора ордеров (OPEN_ORDERS, ORDER_STATUS,
// ORDER_FILLED, ORDER_SUBMITTED, ORDER_CANCEL) всем подключенным клиентам.
// Медленный клиент отключается, Broadcast никогда не блокирует издателя.
//
// Использование:
// 1. hub := NewHub(origins, logger)
// 2. go hub.Run()
// 3. unsubscribe := hub.Attach(bus)
// 4. router.HandleFunc("/ws/stream", hub.ServeWS)
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once

	upgrader websocket.Upgrader
	logger   *zap.Logger

	dropped atomic.Int64

	mu sync.RWMutex
}

// NewHub создает новый Hub. origins - разрешённые Origin, пустой список или "*" - все.
func NewHub(origins []string, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	checker := NewOriginChecker(origins)

	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return checker.Check(r.Header.Get("Origin"))
			},
			EnableCompression: true,
		},
		logger: logger.With(zap.String("component", "ws_hub")),
	}
}

// Run запускает главный цикл Hub до Stop
//
// Копируем список клиентов, отправляем без Lock, медленных удаляем под Write Lock
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client connected", zap.Int("clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client disconnected", zap.Int("clients", total))

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				total := len(h.clients)
				h.mu.Unlock()
				h.logger.Warn("removed slow clients",
					zap.Int("removed", len(toRemove)),
					zap.Int("clients", total),
				)
			}
		}
	}
}

// Stop останавливает Run и закрывает очереди клиентов
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Attach подписывает Hub на публикуемые топики шины. Возвращает функцию отписки.
func (h *Hub) Attach(b *bus.Bus) func() {
	unsubs := make([]func(), 0, len(bus.PublishedTopics))
	for _, topic := range bus.PublishedTopics {
		unsubs = append(unsubs, b.Subscribe(topic, func(ev bus.Event) {
			if msg := NewStreamMessage(ev); msg != nil {
				h.Broadcast(msg)
			}
		}))
	}

	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Broadcast сериализует сообщение и ставит его в очередь рассылки
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		h.logger.Error("broadcast marshal failed", zap.Error(err))
		jsonBufferPool.Put(buf)
		return
	}

	// Убираем trailing newline от Encode
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	h.BroadcastRaw(msgCopy)
}

// BroadcastRaw ставит в очередь уже сериализованное сообщение
func (h *Hub) BroadcastRaw(data []byte) {
	select {
	case h.broadcast <- data:
	case <-h.stop:
	default:
		h.dropped.Add(1)
	}
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages возвращает количество сообщений, отброшенных из-за переполнения
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
