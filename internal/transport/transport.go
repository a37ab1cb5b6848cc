// SPDX-License-Identifier: MIT
package transport

// Transport defines a generic interface for sending processed tuner
// results or events. Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}
