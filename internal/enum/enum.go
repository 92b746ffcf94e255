package enum

// ── Group A: State machines (owned by the gateway) ──

const (
	TableStatusAvailable      = "AVAILABLE"
	TableStatusReserved       = "RESERVED"
	TableStatusPendingCheckIn = "PENDING_CHECKIN"
	TableStatusOccupied       = "OCCUPIED"
	TableStatusMaintenance    = "MAINTENANCE"
	TableStatusCleaning       = "CLEANING"
)

const (
	BookingStatusPending   = "PENDING"
	BookingStatusConfirmed = "CONFIRMED"
	BookingStatusCheckedIn = "CHECKED_IN"
	BookingStatusCompleted = "COMPLETED" // older gateways report check-in as COMPLETED
	BookingStatusCancelled = "CANCELLED"
)

const (
	OrderStatusPlaced    = "PLACED"
	OrderStatusActive    = "ACTIVE"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusCancelled = "CANCELLED"
)

const (
	OrderItemStatusPending   = "PENDING"
	OrderItemStatusPreparing = "PREPARING"
	OrderItemStatusReady     = "READY"
	OrderItemStatusServed    = "SERVED"
	OrderItemStatusCancelled = "CANCELLED"
)

// Gateway-side PaymentIntent statuses.
const (
	PaymentStatusCreated             = "CREATED"
	PaymentStatusPending             = "PENDING"
	PaymentStatusPendingConfirmation = "PENDING_CONFIRMATION"
	PaymentStatusCompleted           = "COMPLETED"
	PaymentStatusFailed              = "FAILED"
	PaymentStatusCancelled           = "CANCELLED"
)

// ── Group B: Closed sets ──

const (
	PaymentMethodCash            = "CASH"
	PaymentMethodAsyncTransfer   = "ASYNC_TRANSFER"
	PaymentMethodRedirectGateway = "REDIRECT_GATEWAY"
)

const (
	RoleAdmin    = "ADMIN"
	RoleStaff    = "STAFF"
	RoleCustomer = "CUSTOMER"
)

// IsTableStatus reports whether s is one of the table status values.
func IsTableStatus(s string) bool {
	switch s {
	case TableStatusAvailable,
		TableStatusReserved,
		TableStatusPendingCheckIn,
		TableStatusOccupied,
		TableStatusMaintenance,
		TableStatusCleaning:
		return true
	}
	return false
}

// IsPaymentMethod reports whether m is a supported settlement method.
func IsPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodCash, PaymentMethodAsyncTransfer, PaymentMethodRedirectGateway:
		return true
	}
	return false
}

// IsBookingCheckedIn treats COMPLETED as the legacy spelling of CHECKED_IN.
func IsBookingCheckedIn(s string) bool {
	return s == BookingStatusCheckedIn || s == BookingStatusCompleted
}
