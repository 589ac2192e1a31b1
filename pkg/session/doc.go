// Package session owns the live sessions of an engine instance. A Manager
// opens sessions on demand; each Session runs a single worker goroutine
// that executes workflows one at a time, buffers actions during arbiter
// outages, and replays the buffer in order on reconnect.
package session
