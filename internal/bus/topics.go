package bus

// Topic - имя канала внутренней шины
type Topic string

// Публикуемые координатором ордеров
const (
	TopicOpenOrders     Topic = "OPEN_ORDERS"     // models.OpenOrdersEvent
	TopicOrderStatus    Topic = "ORDER_STATUS"    // models.OrderStatusEvent
	TopicOrderFilled    Topic = "ORDER_FILLED"    // models.OrderFilledEvent
	TopicOrderSubmitted Topic = "ORDER_SUBMITTED" // models.OrderSubmittedEvent
	TopicOrderCancel    Topic = "ORDER_CANCEL"    // models.OrderCancelEvent
)

// Потребляемые координатором ордеров
const (
	TopicPlaceOrder   Topic = "PLACE_ORDER"  // models.PlaceOrderEvent
	TopicConnected    Topic = "CONNECTED"    // gateway.Gateway
	TopicDisconnected Topic = "DISCONNECTED" // nil или *orders.Coordinator потерянной сессии
)

// PublishedTopics - топики, которые транслируются наружу (websocket, журнал)
var PublishedTopics = []Topic{
	TopicOpenOrders,
	TopicOrderStatus,
	TopicOrderFilled,
	TopicOrderSubmitted,
	TopicOrderCancel,
}
