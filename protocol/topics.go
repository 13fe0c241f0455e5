package protocol

// Room-to-topic mapping. A "room" is a server-side subscription scope; on
// MQTT each room is a topic the device subscribes to.

// UserTopic is the per-shipper room: targeted events such as status changes
// made by another actor on this shipper's orders.
func UserTopic(prefix, shipperID string) string {
	return prefix + "/shippers/" + shipperID
}

// BroadcastTopic is the all-agents room: order-available announcements.
func BroadcastTopic(prefix string) string {
	return prefix + "/shippers/all"
}

// OrderTopic is the per-order room joined around an order detail view.
func OrderTopic(prefix, orderID string) string {
	return prefix + "/orders/" + orderID
}

// PresenceTopic carries fire-and-forget join announcements from devices.
func PresenceTopic(prefix string) string {
	return prefix + "/presence"
}
