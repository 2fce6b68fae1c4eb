package gateway

import (
	"fmt"
	"strings"
)

// Режимы работы шлюза
const (
	ModeSim    = "sim"    // встроенный симулятор брокера
	ModeBridge = "bridge" // websocket-мост к внешнему процессу шлюза
)

// SupportedModes - список поддерживаемых режимов
var SupportedModes = []string{ModeSim, ModeBridge}

// Constructor создаёт шлюз
type Constructor func() (Gateway, error)

// Factory выбирает реализацию шлюза по режиму.
// Реализации регистрируются вызывающей стороной, чтобы gateway не зависел от них.
type Factory struct {
	constructors map[string]Constructor
}

// NewFactory создаёт пустую фабрику
func NewFactory() *Factory {
	return &Factory{constructors: make(map[string]Constructor)}
}

// Register регистрирует конструктор для режима
func (f *Factory) Register(mode string, c Constructor) {
	f.constructors[strings.ToLower(mode)] = c
}

// New создаёт шлюз для режима
func (f *Factory) New(mode string) (Gateway, error) {
	mode = strings.ToLower(mode)

	c, ok := f.constructors[mode]
	if !ok {
		return nil, fmt.Errorf("unsupported gateway mode: %s", mode)
	}
	return c()
}

// IsSupported проверяет, поддерживается ли режим
func IsSupported(mode string) bool {
	mode = strings.ToLower(mode)
	for _, supported := range SupportedModes {
		if mode == supported {
			return true
		}
	}
	return false
}
