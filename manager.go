package singleton

import (
	"time"

	"github.com/rs/zerolog"
)

// ------------------------------------------------------------
// MANAGER

// Manager runs the lock protocol for one node. Each resource is a
// single lock record; the only linearization point between nodes is
// the store's conditional write of STATE. OWNER is written separately
// afterwards; an acquire whose OWNER write fails answers StoreFailed,
// since reclaim treats an ownerless lock as stale.
//
// A node calls ReclaimStale once per resource at startup, then polls
// TryAcquire, and calls Release when it stops its exclusive work.
type Manager struct {
	store   Store
	oracle  LivenessOracle
	self    string
	retry   RetryPolicy
	log     zerolog.Logger
	metrics *Metrics
}

// NewManager constructs a Manager from the supplied options.
func NewManager(opts ManagerOpts) (*Manager, error) {
	if opts.Store == nil {
		return nil, ErrStoreRequired
	}
	if opts.Oracle == nil {
		return nil, ErrOracleRequired
	}
	if opts.Self == "" {
		return nil, ErrSelfRequired
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &Manager{
		store:   opts.Store,
		oracle:  opts.Oracle,
		self:    opts.Self,
		retry:   opts.Retry,
		log:     log.With().Str("node", opts.Self).Logger(),
		metrics: opts.Metrics,
	}, nil
}

// Self answers the identifier this manager writes as OWNER.
func (m *Manager) Self() string {
	return m.self
}

// TryAcquire answers true if this node now holds the lock. Contention
// and store failures both answer false; see Acquire to tell them apart.
func (m *Manager) TryAcquire(resource string) bool {
	return m.Acquire(resource).Acquired()
}

// Acquire makes a single attempt to take the lock. It never retries
// contention: a held lock answers Contended and the caller polls again
// later. A lock this node already holds also answers Contended.
func (m *Manager) Acquire(resource string) AcquireResult {
	start := time.Now()
	res := m.acquire(resource)
	m.metrics.acquire(resource, res.Outcome)

	ev := m.log.Info()
	switch res.Outcome {
	case Contended:
		ev = m.log.Debug().Str("owner", res.Owner)
	case StoreFailed:
		ev = m.log.Warn().Err(res.Err)
	}
	ev.Str("resource", resource).
		Str("op", opAcquire).
		Dur("elapsed", time.Since(start)).
		Str("outcome", res.Outcome.String()).
		Msg("acquire lock")
	return res
}

func (m *Manager) acquire(resource string) AcquireResult {
	if resource == "" {
		return AcquireResult{Outcome: StoreFailed, Err: ErrBadRequest}
	}
	start := time.Now()
	attrs, err := m.store.ReadConsistent(resource)
	if err != nil {
		return AcquireResult{Outcome: StoreFailed, Err: err}
	}
	rec := ParseRecord(attrs)
	if !rec.Exists {
		return AcquireResult{Outcome: StoreFailed, Err: ErrNotInitialized}
	}
	switch rec.Status {
	case StatusHeld:
		return AcquireResult{Outcome: Contended, Owner: rec.Owner}
	case StatusFree:
	default:
		return AcquireResult{Outcome: StoreFailed, Err: ErrMalformedRecord}
	}

	// Two nodes can both read free. The store accepts only one of the
	// conditional writes; the loser sees a conflict.
	cas := m.policy(resource, opAcquire).WithRetryable(RetryUnavailable)
	err = cas.Do(func() error {
		return m.store.WriteConditional(resource, StateAttr, stateFree, stateHeld)
	})
	if err != nil {
		if IsConflict(err) {
			return AcquireResult{Outcome: Contended}
		}
		return AcquireResult{Outcome: StoreFailed, Err: err}
	}

	err = m.policy(resource, opRecordOwner).Do(func() error {
		return m.store.WriteUnconditional(resource, OwnerAttr, m.self, true)
	})
	// Without a recorded owner any node's reclaim treats the lock as
	// stale, so this node must not start its work.
	if err != nil {
		m.log.Error().
			Err(err).
			Str("resource", resource).
			Str("op", opRecordOwner).
			Dur("elapsed", time.Since(start)).
			Msg("lock state taken but owner not recorded")
		return AcquireResult{Outcome: StoreFailed, Err: err}
	}
	return AcquireResult{Outcome: Acquired, Owner: m.self}
}

// Release frees the lock, trying up to ReleaseAttempts times and
// sleeping retryDelay between attempts. It gives up silently after
// that; an unreleased lock stays held until another node reclaims it
// as stale.
func (m *Manager) Release(resource string, retryDelay time.Duration) {
	start := time.Now()
	p := m.policy(resource, opRelease).WithMaxAttempts(ReleaseAttempts)
	p.Backoff = ConstantBackoff(retryDelay)
	p.Retryable = RetryAny
	p.Notify = func(n int, err error) {
		m.metrics.retry(opRelease)
		m.log.Error().
			Err(err).
			Str("resource", resource).
			Str("op", opRelease).
			Int("attempt", n).
			Dur("elapsed", time.Since(start)).
			Dur("retry_delay", retryDelay).
			Msg("failed to release lock")
	}

	err := p.Do(func() error {
		err := m.store.WriteConditional(resource, StateAttr, stateHeld, stateFree)
		if err != nil {
			return err
		}
		return m.store.WriteUnconditional(resource, OwnerAttr, "", true)
	})
	if err != nil {
		m.metrics.release(resource, "abandoned")
		m.log.Error().
			Err(err).
			Str("resource", resource).
			Str("op", opRelease).
			Int("attempt", ReleaseAttempts).
			Dur("elapsed", time.Since(start)).
			Msg("giving up releasing lock")
		return
	}
	m.metrics.release(resource, "released")
	m.log.Info().
		Str("resource", resource).
		Str("op", opRelease).
		Dur("elapsed", time.Since(start)).
		Msg("released lock")
}

// ReclaimStale must be called once per resource before the first
// TryAcquire. A missing record is created free. A record whose owner
// is empty, not alive, or this node itself is forced free with two
// unconditional writes, so it can be recovered from any mix of STATE
// and OWNER. A lock held by a live node is left alone. Any error is
// fatal to the caller; a daemon must not start without a reclaim.
func (m *Manager) ReclaimStale(resource string) error {
	start := time.Now()
	err := m.reclaimStale(resource)
	if err != nil {
		m.log.Error().
			Err(err).
			Str("resource", resource).
			Str("op", opReclaim).
			Dur("elapsed", time.Since(start)).
			Msg("failed to reclaim stale lock")
	}
	return err
}

func (m *Manager) reclaimStale(resource string) error {
	if resource == "" {
		return ErrBadRequest
	}
	var attrs Attributes
	read := m.policy(resource, opRead).WithRetryable(RetryUnavailable)
	err := read.Do(func() error {
		var err error
		attrs, err = m.store.ReadConsistent(resource)
		return err
	})
	if err != nil {
		return err
	}

	// Concurrent first-time initializers all write the same value.
	if len(attrs) == 0 {
		err = m.policy(resource, opReclaim).Do(func() error {
			return m.store.WriteUnconditional(resource, StateAttr, stateFree, true)
		})
		if err != nil {
			return err
		}
		m.metrics.reclaim(resource, "created")
		m.log.Warn().Str("resource", resource).Str("op", opReclaim).Msg("created lock record")
		return nil
	}

	rec := ParseRecord(attrs)
	if !m.isStale(rec.Owner) {
		m.metrics.reclaim(resource, "none")
		m.log.Info().
			Str("resource", resource).
			Str("op", opReclaim).
			Str("owner", rec.Owner).
			Msg("lock owner is alive")
		return nil
	}

	p := m.policy(resource, opReclaim)
	err = p.Do(func() error {
		return m.store.WriteUnconditional(resource, StateAttr, stateFree, true)
	})
	if err != nil {
		return err
	}
	err = p.Do(func() error {
		return m.store.WriteUnconditional(resource, OwnerAttr, "", true)
	})
	if err != nil {
		return err
	}
	m.metrics.reclaim(resource, "reclaimed")
	m.log.Warn().
		Str("resource", resource).
		Str("op", opReclaim).
		Str("owner", rec.Owner).
		Str("state", rec.Status.String()).
		Msg("released stale lock")
	return nil
}

// Observe answers the lock state of resource as seen from this node.
// It reads once and asks the oracle about a recorded owner other than
// this node.
func (m *Manager) Observe(resource string) (LockState, Record, error) {
	attrs, err := m.store.ReadConsistent(resource)
	if err != nil {
		return StateUninitialized, Record{}, err
	}
	rec := ParseRecord(attrs)
	switch {
	case !rec.Exists || rec.Status == StatusUnknown:
		return StateUninitialized, rec, nil
	case rec.Status == StatusFree:
		return StateFree, rec, nil
	case rec.Owner == m.self:
		return StateHeldBySelf, rec, nil
	case rec.Owner == "" || !m.oracle.IsAlive(rec.Owner):
		return StateHeldByDead, rec, nil
	}
	return StateHeldByOther, rec, nil
}

// isStale answers true if a lock recorded for owner may be forced free.
func (m *Manager) isStale(owner string) bool {
	return owner == "" || owner == m.self || !m.oracle.IsAlive(owner)
}

// policy answers the manager's retry policy reporting retries of op.
func (m *Manager) policy(resource, op string) RetryPolicy {
	p := m.retry
	start := time.Now()
	p.Notify = func(n int, err error) {
		m.metrics.retry(op)
		m.log.Info().
			Err(err).
			Str("resource", resource).
			Str("op", op).
			Int("attempt", n).
			Dur("elapsed", time.Since(start)).
			Msg("store call failed, backing off")
	}
	return p
}

// ------------------------------------------------------------
// CONST and VAR

const (
	opAcquire     = "acquire"
	opRecordOwner = "record-owner"
	opRelease     = "release"
	opReclaim     = "reclaim"
	opRead        = "read"
)
