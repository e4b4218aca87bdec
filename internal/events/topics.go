package events

const (
	TopicOrderReserved    = "order.reserved"
	TopicOrderPaid        = "order.paid"
	TopicOrderCancelled   = "order.cancelled"
	TopicItemReturned     = "inventory.returned"
	TopicPaymentCompleted = "payment.completed"
)

// PartitionKey keeps every event of one order on one partition, in order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
