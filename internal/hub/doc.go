// Package hub implements the downstream relay: websocket accept, per-client
// read/write pumps, the typed message dispatcher, the role-based broadcast
// router, and the dedicated video frame relay.
//
// Each connection gets one read goroutine and one writer goroutine draining a
// buffered send queue, so broadcast producers never touch peer I/O directly.
// A recipient whose queue is full or whose transport is closed fails fast and
// is torn down without disturbing delivery to the remaining recipients.
//
// Order confirmation semantics depend on mode. Without an upstream bridge the
// hub is the authority: it echoes an order-confirmation to the submitter and
// fans order-status out to restaurant and monitor clients. With a bridge the
// backend is the authority: the order is forwarded upstream and confirmation
// arrives as the backend's later order_status event.
package hub
