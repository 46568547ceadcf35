package address

import (
	"net"
	"strconv"
)

// Record identifies a reachable peer.
type Record struct {
	Address string `cbor:"1,keyasint,omitempty" json:"address"` // IP address or host name
	Port    int    `cbor:"2,keyasint,omitempty" json:"port"`    // TCP port the peer listens on
}

// Entry binds a logical user identifier to its Record.
type Entry struct {
	UserID string `cbor:"1,keyasint" json:"user"`
	Record Record `cbor:"2,keyasint" json:"record"`
}

func (r Record) String() string {
	return net.JoinHostPort(r.Address, strconv.Itoa(r.Port))
}

// Valid reports whether the record can be dialed.
func (r Record) Valid() bool {
	return r.Address != "" && r.Port > 0 && r.Port <= 65535
}

// Directory defines the interface for storing user address records.
// Implementations must be safe for concurrent use.
type Directory interface {
	// Put stores or overwrites the record for a user. The write is atomic: a concurrent Get
	// observes either the previous record or the new one.
	Put(userID string, rec Record) error

	// Get retrieves the record for a user. It returns ok == false if the user was never
	// registered.
	Get(userID string) (rec Record, ok bool, err error)

	// Enumerate returns a snapshot of all entries currently in the directory.
	Enumerate() ([]Entry, error)

	// Close releases any resources held by the directory.
	Close() error
}
