package orders

import (
	"fmt"
	"time"

	"orderflow/internal/models"
)

// SubmitOutcome - итог попытки отправки одного запроса
type SubmitOutcome struct {
	Record *models.TickerOrderRecord
	Err    error
}

// pendingRequest - запрос в очереди на отправку
type pendingRequest struct {
	req        models.OrderRequest
	opts       Options
	result     chan SubmitOutcome // буфер 1: отправка итога никогда не блокирует
	enqueuedAt time.Time
}

func (p *pendingRequest) resolve(rec *models.TickerOrderRecord, err error) {
	p.result <- SubmitOutcome{Record: rec, Err: err}
}

// submissionQueue - FIFO запросов + состояние ожидания id от шлюза
//
// Принадлежит горутине координатора.
type submissionQueue struct {
	items []*pendingRequest
	state QueueState

	lastID         int64     // последний использованный ticker id
	grantRequested time.Time // момент запроса id, для метрик
	grantGen       uint64    // поколение таймера ожидания id
}

func newSubmissionQueue() *submissionQueue {
	return &submissionQueue{state: QueueIdle}
}

func (q *submissionQueue) push(p *pendingRequest) {
	q.items = append(q.items, p)
}

// pop извлекает голову очереди
func (q *submissionQueue) pop() (*pendingRequest, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	p := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return p, true
}

// drain извлекает все запросы
func (q *submissionQueue) drain() []*pendingRequest {
	items := q.items
	q.items = nil
	return items
}

func (q *submissionQueue) Len() int {
	return len(q.items)
}

// HasSymbol проверяет, ждёт ли в очереди запрос по символу
func (q *submissionQueue) HasSymbol(symbol string) bool {
	for _, p := range q.items {
		if p.req.Symbol == symbol {
			return true
		}
	}
	return false
}

// transition меняет состояние только по таблице ValidQueueTransitions
func (q *submissionQueue) transition(to QueueState) error {
	if !CanQueueTransition(q.state, to) {
		return fmt.Errorf("invalid queue transition %s -> %s", q.state, to)
	}
	q.state = to
	return nil
}

// nextHint - подсказка шлюзу для следующего id
func (q *submissionQueue) nextHint() int64 {
	return q.lastID + 1
}

// observe запоминает использованный ticker id
func (q *submissionQueue) observe(tickerID int64) {
	if tickerID > q.lastID {
		q.lastID = tickerID
	}
}
