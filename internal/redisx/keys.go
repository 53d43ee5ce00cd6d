package redisx

import "time"

const (
	// Checkout idempotency: idem:checkout:{user_id}:{key} -> order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// In-flight checkout guard: lock:checkout:{user_id}:{key}
	KeyCheckoutLock = "lock:checkout:%s:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{id}
	KeyDedup = "dedup:%s:%s"

	// Cart per session: cart:{session_id} -> JSON lines
	KeyCart = "cart:%s"

	// Session holder: session:{session_id} -> JSON identity
	KeySession = "session:%s"

	// Pub/sub channel for sign-in / sign-out notifications.
	ChannelSessionEvents = "session.events"
)

var (
	TTLIdempotency  = 24 * time.Hour
	TTLCheckoutLock = 30 * time.Second
	TTLStatusCache  = 5 * time.Minute
	TTLDedup        = 48 * time.Hour
	TTLCart         = 24 * time.Hour
)
