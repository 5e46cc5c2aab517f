// Package protocol defines the JSON envelope exchanged with downstream
// clients.
//
// Every frame on a client connection is one envelope:
//
//	{ "type": "...", "timestamp": <epoch-ms>, "clientType": "...", "data": {...} }
//
// The type field is a closed vocabulary (see Type). Payloads are opaque to
// the relay beyond this wrapper - domain semantics live in the clients.
package protocol
