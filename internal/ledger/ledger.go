// Package ledger records which sky patches a scan has finished.
//
// A Ledger is a monotonic set: Commit only ever adds, and committing an id
// twice leaves the set unchanged. Implementations must make a committed id
// durable before Commit returns, so that a restarted scan sees it.
package ledger

import (
	"errors"
	"strings"
)

// ErrInvalidID is returned for ids that cannot be stored one per line.
var ErrInvalidID = errors.New("invalid patch id")

// Ledger is the resumption state of a scan campaign.
type Ledger interface {
	// Has reports whether id was committed, in this process or an earlier one.
	Has(id string) bool
	// Commit durably records id as done.
	Commit(id string) error
	// Len returns the number of committed ids.
	Len() int
	// Close releases the backing storage.
	Close() error
}

// ValidateID rejects empty ids and ids containing line breaks.
func ValidateID(id string) error {
	if id == "" || strings.ContainsAny(id, "\r\n") {
		return ErrInvalidID
	}
	return nil
}
