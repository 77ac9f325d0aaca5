package interfaces

// Connection is one logical client connection. Implementations must make
// WriteJSON safe for concurrent use (the transport layer uses a single
// writer goroutine per connection) and Close idempotent.
type Connection interface {
	// ID returns the opaque server-generated connection id.
	ID() string

	// WriteJSON queues a JSON message for delivery. A closed connection or a
	// full outbound buffer returns an error; callers doing fan-out treat
	// that as a delivery miss, not a failure.
	WriteJSON(v interface{}) error

	// Close tears down the transport and releases resources.
	Close() error

	// IdentityID returns the authenticated identity, or "" before
	// SetIdentity.
	IdentityID() string

	// Role returns the authenticated role, or "" before SetIdentity.
	Role() string

	// IsAuthenticated reports whether an identity has been attached.
	IsAuthenticated() bool

	// SetIdentity binds the authenticated identity to the connection.
	SetIdentity(identityID, role string) error
}
