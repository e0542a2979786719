package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	SessionStatusOpen   = "OPEN"
	SessionStatusClosed = "CLOSED"
)

const (
	OrderStatusReceived  = "RECEIVED"
	OrderStatusPreparing = "PREPARING"
	OrderStatusReady     = "READY"
	OrderStatusServed    = "SERVED"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusRejected  = "REJECTED"
	OrderStatusCancelled = "CANCELLED"
)

const (
	PaymentStatusPending = "PENDING"
	PaymentStatusPaid    = "PAID"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	UserRoleOwner   = "OWNER"
	UserRoleManager = "MANAGER"
	UserRoleCashier = "CASHIER"
	UserRoleKitchen = "KITCHEN"
	UserRoleWaiter  = "WAITER"
)

const (
	PaymentMethodCash    = "CASH"
	PaymentMethodStripe  = "STRIPE"
	PaymentMethodMomo    = "MOMO"
	PaymentMethodVNPay   = "VNPAY"
	PaymentMethodZaloPay = "ZALOPAY"
)

// ── Group B: Notification events (no DB constraint) ──

const (
	EventNewOrder           = "new_order"
	EventOrderStatusUpdated = "order_status_updated"
	EventBillRequested      = "bill_requested"
)
