// Package bridge owns the single persistent connection to the simulation
// backend.
//
// The bridge:
//   - Runs an explicit reconnect state machine
//     (disconnected -> connecting -> connected, with backing_off between
//     failed attempts and a terminal failed state once the retry budget
//     is spent)
//   - Announces itself and requests world synchronization on every
//     successful connect
//   - Translates backend events (init_world, order_message, order_status,
//     set_order) into downstream envelopes and hands them to the local
//     broadcast router
//   - Forwards locally submitted orders upstream with minted order IDs
//
// Losing the backend never disturbs local relay service; clients only see a
// server-status notice and degraded order/world features.
package bridge
