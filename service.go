package singleton

// ------------------------------------------------------------
// STORE

// Store defines the contract for the remote attribute store that
// holds the lock records. Every call is a round trip; implementations
// must not cache.
type Store interface {
	// ReadConsistent answers all attributes of the record. The answer
	// must reflect every write the store previously accepted. A missing
	// record answers empty attributes and no error.
	ReadConsistent(key string) (Attributes, error)

	// WriteConditional replaces attr with newValue only if the store's
	// current value equals expectedOld. A mismatch, or a missing attr,
	// fails with an error matching ErrConflict.
	WriteConditional(key, attr, expectedOld, newValue string) error

	// WriteUnconditional writes attr. With replace the value replaces
	// all existing values; without it the value is appended to a
	// multi-valued attribute.
	WriteUnconditional(key, attr, value string, replace bool) error

	// Delete removes the named attributes, or the whole record when
	// no attributes are supplied.
	Delete(key string, attrs ...string) error
}

// ------------------------------------------------------------
// LIVENESS-ORACLE

// LivenessOracle reports whether a fleet member is still alive.
// Implementations answer false when they can't tell, which lets
// a dead owner's lock be reclaimed instead of leaving it stuck.
type LivenessOracle interface {
	IsAlive(node string) bool
}

// OracleFunc adapts a function to the LivenessOracle interface.
type OracleFunc func(node string) bool

func (f OracleFunc) IsAlive(node string) bool {
	return f(node)
}

// ------------------------------------------------------------
// IDENTITY-PROVIDER

// IdentityProvider answers this node's stable identifier.
type IdentityProvider interface {
	NodeID() (string, error)
}

// StaticIdentity is an IdentityProvider with a fixed identifier.
type StaticIdentity string

func (s StaticIdentity) NodeID() (string, error) {
	if s == "" {
		return "", ErrSelfRequired
	}
	return string(s), nil
}
