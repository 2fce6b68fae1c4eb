package orders

import (
	"sort"

	"orderflow/internal/models"
)

// OpenOrderTable - зеркало открытых ордеров шлюза по id ордера
//
// Записи только заменяются целиком, терминальные статусы в таблице не хранятся.
type OpenOrderTable struct {
	byID map[int64]models.OpenOrderEntry
}

// NewOpenOrderTable создаёт пустую таблицу
func NewOpenOrderTable() *OpenOrderTable {
	return &OpenOrderTable{byID: make(map[int64]models.OpenOrderEntry)}
}

// Apply заменяет запись или удаляет её, если статус закрывает ордер.
// Возвращает true, если запись осталась в таблице.
func (t *OpenOrderTable) Apply(e models.OpenOrderEntry) bool {
	if e.State.Status.ClosesOpenOrder() {
		delete(t.byID, e.OrderID)
		return false
	}
	t.byID[e.OrderID] = e
	return true
}

// Get возвращает запись по id
func (t *OpenOrderTable) Get(id int64) (models.OpenOrderEntry, bool) {
	e, ok := t.byID[id]
	return e, ok
}

// Remove удаляет запись
func (t *OpenOrderTable) Remove(id int64) {
	delete(t.byID, id)
}

// HasSymbolAction проверяет наличие открытого ордера по символу и направлению
func (t *OpenOrderTable) HasSymbolAction(symbol string, action models.Action) bool {
	for _, e := range t.byID {
		if e.Symbol() == symbol && e.Action() == action {
			return true
		}
	}
	return false
}

// ReplaceAll заменяет содержимое таблицы снимком
func (t *OpenOrderTable) ReplaceAll(entries []models.OpenOrderEntry) {
	t.byID = make(map[int64]models.OpenOrderEntry, len(entries))
	for _, e := range entries {
		t.Apply(e)
	}
}

// Len возвращает количество открытых ордеров
func (t *OpenOrderTable) Len() int {
	return len(t.byID)
}

// Snapshot возвращает записи, упорядоченные по id ордера
func (t *OpenOrderTable) Snapshot() []models.OpenOrderEntry {
	out := make([]models.OpenOrderEntry, 0, len(t.byID))
	for _, e := range t.byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}
