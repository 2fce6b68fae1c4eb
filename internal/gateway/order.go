package gateway

import (
	"errors"
	"fmt"

	"orderflow/internal/models"
)

// Ошибки построения команды ордера
var (
	ErrMissingParameters    = errors.New("order parameters are missing")
	ErrUnsupportedOrderType = errors.New("unsupported order type")
)

// orderLayout - какие цены берутся из числовых параметров после количества
type orderLayout struct {
	limit bool
	aux   bool
}

var orderLayouts = map[models.OrderType]orderLayout{
	models.OrderTypeMarket:          {},
	models.OrderTypeMarketOnClose:   {},
	models.OrderTypeLimit:           {limit: true},
	models.OrderTypeLimitOnClose:    {limit: true},
	models.OrderTypeStop:            {aux: true},
	models.OrderTypeMarketIfTouched: {aux: true},
	models.OrderTypeTrailingStop:    {aux: true},
	models.OrderTypeStopLimit:       {limit: true, aux: true},
	models.OrderTypeLimitIfTouched:  {limit: true, aux: true},
}

// BuildOrder собирает команду ордера из запроса стратегии
//
// Числовые параметры читаются по порядку: количество, затем лимитная цена
// и/или стоп-цена в зависимости от типа. Количество по умолчанию - Size.
// Для TRAIL вторая цена - процент трейлинга.
func BuildOrder(req models.OrderRequest) (models.Order, error) {
	if len(req.Parameters) == 0 {
		return models.Order{}, ErrMissingParameters
	}

	layout, ok := orderLayouts[req.Type]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: %q", ErrUnsupportedOrderType, req.Type)
	}

	params := req.NumericParameters()
	next := func() (float64, bool) {
		if len(params) == 0 {
			return 0, false
		}
		v := params[0]
		params = params[1:]
		return v, true
	}

	order := models.Order{
		Action:    req.Action,
		OrderType: req.Type,
		TIF:       "DAY",
		Transmit:  true,
	}

	qty, ok := next()
	if !ok {
		qty = req.Size
	}
	if qty <= 0 {
		return models.Order{}, fmt.Errorf("%w: quantity", ErrMissingParameters)
	}
	order.TotalQuantity = qty

	if layout.limit {
		v, ok := next()
		if !ok {
			return models.Order{}, fmt.Errorf("%w: limit price", ErrMissingParameters)
		}
		order.LmtPrice = v
	}
	if layout.aux {
		v, ok := next()
		if !ok {
			return models.Order{}, fmt.Errorf("%w: aux price", ErrMissingParameters)
		}
		if req.Type == models.OrderTypeTrailingStop {
			order.TrailingPercent = v
		} else {
			order.AuxPrice = v
		}
	}

	return order, nil
}
