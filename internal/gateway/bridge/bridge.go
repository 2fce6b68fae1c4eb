package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"orderflow/internal/gateway"
	"orderflow/internal/models"
	"orderflow/pkg/ratelimit"
	"orderflow/pkg/retry"
)

// ErrClosed возвращается после Close
var ErrClosed = errors.New("bridge gateway closed")

// State - состояние соединения с процессом шлюза
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config - параметры websocket-моста
type Config struct {
	URL            string
	ClientID       int64
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration // 0 - без дедлайна чтения
	PingInterval   time.Duration // 0 - без ping
	ReconnectDelay time.Duration
	MaxReconnects  int // 0 - без ограничения
	MaxMessageRate int // сообщений в секунду к шлюзу
	EventBuffer    int
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		ConnectTimeout: 10 * time.Second,
		WriteTimeout:   5 * time.Second,
		ReadTimeout:    30 * time.Second,
		PingInterval:   15 * time.Second,
		ReconnectDelay: time.Second,
		MaxReconnects:  5,
		MaxMessageRate: 45,
		EventBuffer:    256,
	}
}

// Gateway - клиент внешнего процесса шлюза поверх websocket
//
// Один горутин run владеет каналом событий: читает соединение,
// при разрыве переподключается с backoff и закрывает канал,
// когда попытки исчерпаны или вызван Close.
type Gateway struct {
	cfg     Config
	logger  *zap.Logger
	limiter *ratelimit.RateLimiter

	state int32

	connMu  sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	events    chan gateway.Event
	closeChan chan struct{}
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New создаёт клиента. Подключение - Connect.
func New(cfg Config, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		cfg:       cfg,
		logger:    logger.With(zap.String("gateway", gateway.ModeBridge)),
		limiter:   ratelimit.NewRateLimiter(float64(cfg.MaxMessageRate), 0),
		state:     int32(StateDisconnected),
		events:    make(chan gateway.Event, cfg.EventBuffer),
		closeChan: make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Connect устанавливает первое соединение и запускает чтение
func (g *Gateway) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&g.state, int32(StateDisconnected), int32(StateConnecting)) {
		return fmt.Errorf("cannot connect in state %s", g.GetState())
	}

	conn, err := g.dial(ctx)
	if err != nil {
		atomic.StoreInt32(&g.state, int32(StateDisconnected))
		return err
	}
	g.setConn(conn)
	atomic.StoreInt32(&g.state, int32(StateConnected))

	g.wg.Add(1)
	go g.run(conn)

	g.logger.Info("bridge connected", zap.String("url", g.cfg.URL))
	return nil
}

// GetState возвращает текущее состояние
func (g *Gateway) GetState() State {
	return State(atomic.LoadInt32(&g.state))
}

// IsConnected проверяет подключение
func (g *Gateway) IsConnected() bool {
	return g.GetState() == StateConnected
}

// Name возвращает имя шлюза
func (g *Gateway) Name() string {
	return gateway.ModeBridge
}

// Events возвращает канал событий
func (g *Gateway) Events() <-chan gateway.Event {
	return g.events
}

// RequestNextID запрашивает id не меньше hint
func (g *Gateway) RequestNextID(ctx context.Context, hint int64) error {
	return g.send(ctx, typeReqIDs, hint, nil)
}

// PlaceOrder отправляет ордер
func (g *Gateway) PlaceOrder(ctx context.Context, id int64, contract models.Contract, order models.Order) error {
	return g.send(ctx, typePlaceOrder, id, placeOrderPayload{Contract: contract, Order: order})
}

// CancelOrder отменяет ордер
func (g *Gateway) CancelOrder(ctx context.Context, id int64) error {
	return g.send(ctx, typeCancelOrder, id, nil)
}

// RequestAllOpenOrders запрашивает снимок открытых ордеров
func (g *Gateway) RequestAllOpenOrders(ctx context.Context) error {
	return g.send(ctx, typeReqAllOpenOrders, 0, nil)
}

// Close закрывает соединение и останавливает переподключение
func (g *Gateway) Close() error {
	var err error
	g.closeOnce.Do(func() {
		close(g.closeChan)
		g.cancel()
		atomic.StoreInt32(&g.state, int32(StateClosed))

		g.connMu.Lock()
		if g.conn != nil {
			_ = g.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			err = g.conn.Close()
		}
		g.connMu.Unlock()
	})

	g.wg.Wait()
	return err
}

func (g *Gateway) send(ctx context.Context, typ string, id int64, payload interface{}) error {
	if g.GetState() == StateClosed {
		return ErrClosed
	}
	if g.GetState() != StateConnected {
		return &gateway.Error{
			Gateway: gateway.ModeBridge,
			ID:      id,
			Code:    gateway.CodeNotConnected,
			Message: fmt.Sprintf("not connected (state: %s)", g.GetState()),
		}
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	data, err := encodeRequest(typ, id, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}

	g.connMu.RLock()
	conn := g.conn
	g.connMu.RUnlock()
	if conn == nil {
		return &gateway.Error{Gateway: gateway.ModeBridge, ID: id, Code: gateway.CodeNotConnected, Message: "no connection"}
	}

	if err := g.write(conn, data); err != nil {
		return &gateway.Error{Gateway: gateway.ModeBridge, ID: id, Code: gateway.CodeNotConnected, Message: "write failed", Original: err}
	}
	return nil
}

func (g *Gateway) write(conn *websocket.Conn, data []byte) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// dial подключается и представляется процессу шлюза
func (g *Gateway) dial(ctx context.Context) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: g.cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, g.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial error: %w", err)
	}

	hello, err := encodeRequest(typeHello, 0, helloPayload{ClientID: g.cfg.ClientID})
	if err == nil {
		err = g.write(conn, hello)
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("hello error: %w", err)
	}

	if g.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
		})
	}

	return conn, nil
}

func (g *Gateway) setConn(conn *websocket.Conn) {
	g.connMu.Lock()
	g.conn = conn
	g.connMu.Unlock()
}

// run читает соединение и переподключается при разрыве
func (g *Gateway) run(conn *websocket.Conn) {
	defer g.wg.Done()
	defer close(g.events)

	for {
		err := g.readPump(conn)

		select {
		case <-g.closeChan:
			return
		default:
		}

		atomic.StoreInt32(&g.state, int32(StateReconnecting))
		g.connMu.Lock()
		if g.conn == conn {
			g.conn = nil
		}
		g.connMu.Unlock()
		conn.Close()

		g.logger.Warn("bridge disconnected", zap.Error(err))
		if !g.emit(&gateway.Error{
			Gateway:  gateway.ModeBridge,
			ID:       -1,
			Code:     gateway.CodeConnectivityLost,
			Message:  "connectivity between client and gateway lost",
			Original: err,
		}) {
			return
		}

		next, err := g.reconnect()
		if err != nil {
			g.logger.Error("bridge reconnect failed", zap.Error(err))
			atomic.CompareAndSwapInt32(&g.state, int32(StateReconnecting), int32(StateDisconnected))
			return
		}

		conn = next
		g.logger.Info("bridge reconnected")
		if !g.emit(&gateway.Error{
			Gateway: gateway.ModeBridge,
			ID:      -1,
			Code:    gateway.CodeConnectivityRestored,
			Message: "connectivity between client and gateway restored",
		}) {
			return
		}
	}
}

func (g *Gateway) reconnect() (*websocket.Conn, error) {
	cfg := retry.ReconnectConfig(g.cfg.MaxReconnects, g.cfg.ReconnectDelay)
	// таймаут dial повторяем, остановка - только по Close
	cfg.RetryIf = func(error) bool { return g.ctx.Err() == nil }
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		g.logger.Warn("bridge reconnect attempt failed",
			zap.Int("attempt", attempt),
			zap.Duration("next_delay", delay),
			zap.Error(err),
		)
	}

	return retry.DoWithResult(g.ctx, func() (*websocket.Conn, error) {
		conn, err := g.dial(g.ctx)
		if err != nil {
			return nil, err
		}

		// Close мог произойти во время dial
		g.connMu.Lock()
		defer g.connMu.Unlock()
		if g.GetState() == StateClosed {
			conn.Close()
			return nil, retry.Permanent(ErrClosed)
		}
		g.conn = conn
		atomic.StoreInt32(&g.state, int32(StateConnected))
		return conn, nil
	}, cfg)
}

// readPump читает сообщения до ошибки соединения
func (g *Gateway) readPump(conn *websocket.Conn) error {
	pingDone := make(chan struct{})
	defer close(pingDone)
	if g.cfg.PingInterval > 0 {
		go g.pingPump(conn, pingDone)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if g.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
		}

		ev, err := decodeEvent(data)
		if err != nil {
			g.logger.Warn("bridge message dropped", zap.Error(err), zap.ByteString("message", data))
			continue
		}
		if ev == nil {
			continue
		}
		if !g.emit(ev) {
			return ErrClosed
		}
	}
}

// pingPump отправляет ping для проверки соединения
func (g *Gateway) pingPump(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-g.closeChan:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(g.cfg.WriteTimeout)); err != nil {
				g.logger.Debug("bridge ping failed", zap.Error(err))
				conn.Close()
				return
			}
		}
	}
}

// emit отдаёт событие потребителю; false после Close
func (g *Gateway) emit(ev gateway.Event) bool {
	select {
	case g.events <- ev:
		return true
	case <-g.closeChan:
		return false
	}
}
