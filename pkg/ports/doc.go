// Package ports defines the driven interfaces of the Arbiter engine:
// outbound transport, durable commit storage, queued-action journaling and
// distributed locking. Adapters implement these; the engine core depends
// only on the interfaces.
package ports
