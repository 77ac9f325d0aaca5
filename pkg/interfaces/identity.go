package interfaces

// Identity is the result of resolving a transport credential.
type Identity struct {
	ID   string
	Role string
}

// IdentityVerifier resolves a bearer credential to an authenticated
// identity before a connection may join any room.
type IdentityVerifier interface {
	Verify(token string) (Identity, error)
}
