package orders

// QueueState - состояние очереди отправки
type QueueState string

const (
	QueueIdle               QueueState = "IDLE"
	QueueAwaitingIdentifier QueueState = "AWAITING_IDENTIFIER"
)

// ValidQueueTransitions определяет допустимые переходы очереди.
// В AWAITING_IDENTIFIER у шлюза запрошен ровно один id.
var ValidQueueTransitions = map[QueueState][]QueueState{
	QueueIdle:               {QueueAwaitingIdentifier}, // постановка в пустую очередь
	QueueAwaitingIdentifier: {QueueIdle},               // попытка завершена (успех, отказ, таймаут)
}

// CanQueueTransition проверяет допустимость перехода
func CanQueueTransition(from, to QueueState) bool {
	allowed, ok := ValidQueueTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// QueueStateInfo возвращает описание состояния для UI
func QueueStateInfo(s QueueState) string {
	switch s {
	case QueueIdle:
		return "Очередь свободна"
	case QueueAwaitingIdentifier:
		return "Ожидание id ордера от шлюза"
	default:
		return "Неизвестное состояние"
	}
}
