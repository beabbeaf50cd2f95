package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface. It only keeps history; node
// configuration is never restored from it.
type Store interface {
	// Exchange trace
	AppendTrace(tr *Trace) error
	ListTraces(q TraceQuery) ([]*Trace, error)
	ClearTraces() error

	// Discovery history
	AppendDiscovery(d *Discovery) error
	ListDiscoveries(limit int) ([]*Discovery, error)

	// LastTopology returns the most recent successful discovery.
	LastTopology() (*Discovery, error)

	// Close the store
	Close() error
}
