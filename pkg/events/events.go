package events

// Type names a domain event routed through the gateway. The vocabulary is
// closed: every event the surrounding application emits is listed here.
type Type string

const (
	// presence
	UserOnline  Type = "user:online"
	UserOffline Type = "user:offline"

	// orders
	OrderCreated   Type = "order:created"
	OrderUpdated   Type = "order:updated"
	OrderCancelled Type = "order:cancelled"

	// group orders
	GroupOrderCreated       Type = "groupOrder:created"
	GroupOrderThresholdMet  Type = "groupOrder:thresholdMet"
	GroupOrderStatusChanged Type = "groupOrder:statusChanged"

	// payments
	PaymentSuccess  Type = "payment:success"
	PaymentFailed   Type = "payment:failed"
	PaymentRefunded Type = "payment:refunded"

	// delivery
	DeliveryScheduled Type = "delivery:scheduled"
	DeliveryInTransit Type = "delivery:inTransit"
	DeliveryCompleted Type = "delivery:completed"
	DeliveryFailed    Type = "delivery:failed"

	// notifications
	NotificationNew  Type = "notification:new"
	NotificationRead Type = "notification:read"

	// admin
	AdminOrderUpdate Type = "admin:orderUpdate"
	AdminSystemAlert Type = "admin:systemAlert"
)

var known = map[Type]struct{}{
	UserOnline:              {},
	UserOffline:             {},
	OrderCreated:            {},
	OrderUpdated:            {},
	OrderCancelled:          {},
	GroupOrderCreated:       {},
	GroupOrderThresholdMet:  {},
	GroupOrderStatusChanged: {},
	PaymentSuccess:          {},
	PaymentFailed:           {},
	PaymentRefunded:         {},
	DeliveryScheduled:       {},
	DeliveryInTransit:       {},
	DeliveryCompleted:       {},
	DeliveryFailed:          {},
	NotificationNew:         {},
	NotificationRead:        {},
	AdminOrderUpdate:        {},
	AdminSystemAlert:        {},
}

// Known reports whether t is part of the documented vocabulary.
func (t Type) Known() bool {
	_, ok := known[t]
	return ok
}

func (t Type) String() string { return string(t) }
