package singleton

// ------------------------------------------------------------
// ACQUIRE-RESULT

// AcquireResult provides the output from the Acquire function.
type AcquireResult struct {
	Outcome AcquireOutcome `json:"outcome"`
	Owner   string         `json:"owner,omitempty"` // The recorded owner when contended. Best-effort; it can lag STATE.
	Err     error          `json:"-"`               // The reason for a StoreError outcome
}

// Acquired answers true if the caller now holds the lock.
func (r AcquireResult) Acquired() bool {
	return r.Outcome == Acquired
}

// ------------------------------------------------------------
// CONST and VAR

// AcquireOutcome defines the outcome of an acquisition attempt.
type AcquireOutcome int

// The outcomes for the Acquire response. Callers that only poll
// treat everything but Acquired the same way.
const (
	StoreFailed AcquireOutcome = iota // The store failed; nothing is known about the lock
	Acquired                          // The lock was free, now I own it
	Contended                         // The lock is held, possibly by me
)

func (o AcquireOutcome) String() string {
	switch o {
	case Acquired:
		return "acquired"
	case Contended:
		return "contended"
	}
	return "store_error"
}
