package singleton

import (
	"time"

	"github.com/rs/zerolog"
)

// ------------------------------------------------------------
// MANAGER-OPTS

// ManagerOpts provides the collaborators and options when
// constructing a Manager.
type ManagerOpts struct {
	Store   Store          // Required. The shared lock records.
	Oracle  LivenessOracle // Required. Decides whether a recorded owner is dead.
	Self    string         // Required. This node's identifier.
	Retry   RetryPolicy    // Policy for store mutations. The zero value is the default policy.
	Logger  *zerolog.Logger
	Metrics *Metrics
}

// ------------------------------------------------------------
// RUN-OPTS

// RunOpts provides options for the Run loop.
type RunOpts struct {
	Resource     string        // The daemon name
	PollInterval time.Duration // Wait between acquisition attempts
	ReleaseDelay time.Duration // Wait between release attempts
}

func (o RunOpts) pollInterval() time.Duration {
	if o.PollInterval > 0 {
		return o.PollInterval
	}
	return DefaultPollInterval
}

// ------------------------------------------------------------
// CONST and VAR

const (
	DefaultPollInterval = 30 * time.Second
	DefaultReleaseDelay = time.Second

	// ReleaseAttempts is how many times Release tries before abandoning the lock to stale reclaim.
	ReleaseAttempts = 3
)
