package orders

import (
	"sort"

	"orderflow/internal/models"
)

// Retention - политика хранения записей журнала тикеров
type Retention string

const (
	// RetentionEvictTerminal удаляет запись после терминального статуса и трансляции продажи
	RetentionEvictTerminal Retention = "evict_terminal"
	// RetentionKeep хранит все записи до конца сессии
	RetentionKeep Retention = "keep"
)

// Ledger - журнал тикеров: ticker id -> запись корреляции
//
// Не потокобезопасен: принадлежит горутине координатора.
type Ledger struct {
	byTicker map[int64]*models.TickerOrderRecord
}

// NewLedger создаёт пустой журнал
func NewLedger() *Ledger {
	return &Ledger{byTicker: make(map[int64]*models.TickerOrderRecord)}
}

// Upsert заменяет запись целиком по ticker id
func (l *Ledger) Upsert(rec models.TickerOrderRecord) {
	rec.Key = models.TickerKey(rec.Symbol, rec.TickerID)
	l.byTicker[rec.TickerID] = &rec
}

// FindByTickerID возвращает копию записи по ticker id
func (l *Ledger) FindByTickerID(id int64) (models.TickerOrderRecord, bool) {
	rec, ok := l.byTicker[id]
	if !ok {
		return models.TickerOrderRecord{}, false
	}
	return *rec, true
}

// copyRecord - копия записи без общего снимка запроса
func copyRecord(rec *models.TickerOrderRecord) models.TickerOrderRecord {
	out := *rec
	if rec.Request != nil {
		req := rec.Request.Clone()
		out.Request = &req
	}
	return out
}

// FindByPermID ищет запись по постоянному id брокера
func (l *Ledger) FindByPermID(permID int64) (models.TickerOrderRecord, bool) {
	if permID == 0 {
		return models.TickerOrderRecord{}, false
	}
	for _, rec := range l.byTicker {
		if rec.PermID == permID {
			return *rec, true
		}
	}
	return models.TickerOrderRecord{}, false
}

// FindBySymbol возвращает все записи символа, упорядоченные по ticker id
func (l *Ledger) FindBySymbol(symbol string) []models.TickerOrderRecord {
	var out []models.TickerOrderRecord
	for _, rec := range l.byTicker {
		if rec.Symbol == symbol {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TickerID < out[j].TickerID })
	return out
}

// HasPending проверяет, есть ли у символа ожидающий исполнения ордер
func (l *Ledger) HasPending(symbol string) bool {
	for _, rec := range l.byTicker {
		if rec.Symbol == symbol && rec.Status.IsPending() {
			return true
		}
	}
	return false
}

// Remove удаляет запись
func (l *Ledger) Remove(tickerID int64) {
	delete(l.byTicker, tickerID)
}

// Len возвращает количество записей
func (l *Ledger) Len() int {
	return len(l.byTicker)
}

// Snapshot возвращает копии всех записей, упорядоченные по ticker id
func (l *Ledger) Snapshot() []models.TickerOrderRecord {
	out := make([]models.TickerOrderRecord, 0, len(l.byTicker))
	for _, rec := range l.byTicker {
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TickerID < out[j].TickerID })
	return out
}
