package bridge

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"orderflow/internal/gateway"
	"orderflow/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Типы запросов к процессу шлюза
const (
	typeHello            = "hello"
	typeReqIDs           = "reqIds"
	typePlaceOrder       = "placeOrder"
	typeCancelOrder      = "cancelOrder"
	typeReqAllOpenOrders = "reqAllOpenOrders"
)

// envelope - кадр протокола в обе стороны.
// ID - id ордера для placeOrder/cancelOrder, hint для reqIds.
type envelope struct {
	Type    string              `json:"type"`
	ID      int64               `json:"id,omitempty"`
	Payload jsoniter.RawMessage `json:"payload,omitempty"`
}

type helloPayload struct {
	ClientID int64 `json:"client_id"`
}

type placeOrderPayload struct {
	Contract models.Contract `json:"contract"`
	Order    models.Order    `json:"order"`
}

type errorPayload struct {
	ID      int64  `json:"id"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func encodeRequest(typ string, id int64, payload interface{}) ([]byte, error) {
	env := envelope{Type: typ, ID: id}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// decodeEvent разбирает кадр от шлюза. Неизвестный тип даёт (nil, nil).
func decodeEvent(data []byte) (gateway.Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case gateway.NextValidID{}.EventName():
		var ev gateway.NextValidID
		if err := decodePayload(env, &ev); err != nil {
			return nil, err
		}
		return ev, nil

	case gateway.OpenOrder{}.EventName():
		var ev gateway.OpenOrder
		if err := decodePayload(env, &ev); err != nil {
			return nil, err
		}
		if ev.OrderID == 0 {
			ev.OrderID = ev.Order.OrderID
		}
		return ev, nil

	case gateway.OpenOrderEnd{}.EventName():
		return gateway.OpenOrderEnd{}, nil

	case gateway.OrderStatus{}.EventName():
		var report models.StatusReport
		if err := decodePayload(env, &report); err != nil {
			return nil, err
		}
		return gateway.OrderStatus{StatusReport: report}, nil

	case (*gateway.Error)(nil).EventName():
		var p errorPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return &gateway.Error{
			Gateway: gateway.ModeBridge,
			ID:      p.ID,
			Code:    p.Code,
			Message: p.Message,
		}, nil
	}

	return nil, nil
}

func decodePayload(env envelope, v interface{}) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%s: %w", env.Type, err)
	}
	return nil
}
