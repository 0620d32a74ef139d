// Package events defines the canonical event vocabulary for a Passage
// connection session and the normalizer that maps raw wire frames onto it.
// The backend emits a number of overlapping frame shapes (current and legacy);
// everything downstream of this package only ever sees one of the Event kinds
// produced by Normalize.
package events

// Status is the coarse-grained lifecycle stage of a connection session.
type Status string

const (
	StatusPending        Status = "pending"
	StatusConnecting     Status = "connecting"
	StatusConnected      Status = "connected"
	StatusRejected       Status = "rejected"
	StatusDataProcessing Status = "data_processing"
	StatusDataAvailable  Status = "data_available"
	StatusError          Status = "error"
)

// knownStatuses is the set of status values the backend is expected to send.
var knownStatuses = map[Status]bool{
	StatusPending:        true,
	StatusConnecting:     true,
	StatusConnected:      true,
	StatusRejected:       true,
	StatusDataProcessing: true,
	StatusDataAvailable:  true,
	StatusError:          true,
}

// Known reports whether s is part of the documented status enumeration.
// Unknown values are still forwarded to listeners (fail open); callers may use
// this to log a warning first.
func (s Status) Known() bool {
	return knownStatuses[s]
}

// Terminal reports whether s is one of the absorbing error branches.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusError
}
