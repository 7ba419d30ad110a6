package singleton_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hackborn/singleton"
	singletonmem "github.com/hackborn/singleton/mem"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(time.Duration) {}

func newManager(t *testing.T, s singleton.Store, o singleton.LivenessOracle, self string) *singleton.Manager {
	t.Helper()
	m, err := singleton.NewManager(singleton.ManagerOpts{
		Store:  s,
		Oracle: o,
		Self:   self,
		Retry:  singleton.RetryPolicy{MaxAttempts: 4, BaseDelay: time.Millisecond, Sleep: noSleep},
	})
	require.NoError(t, err)
	return m
}

func requireRecord(t *testing.T, s *singletonmem.Store, res, state, owner string) {
	t.Helper()
	attrs := s.Get(res)
	gotState, _ := attrs.Value(singleton.StateAttr)
	gotOwner, _ := attrs.Value(singleton.OwnerAttr)
	require.Equal(t, state, gotState, "STATE")
	require.Equal(t, owner, gotOwner, "OWNER")
}

func TestNewManagerRequiresCollaborators(t *testing.T) {
	s := singletonmem.NewStore()
	o := singletonmem.NewStaticOracle()
	_, err := singleton.NewManager(singleton.ManagerOpts{Oracle: o, Self: "x"})
	assert.Equal(t, singleton.ErrStoreRequired, err)
	_, err = singleton.NewManager(singleton.ManagerOpts{Store: s, Self: "x"})
	assert.Equal(t, singleton.ErrOracleRequired, err)
	_, err = singleton.NewManager(singleton.ManagerOpts{Store: s, Oracle: o})
	assert.Equal(t, singleton.ErrSelfRequired, err)
}

func TestHandoff(t *testing.T) {
	s := singletonmem.NewStore()
	o := singletonmem.NewStaticOracle("X", "Y")
	x := newManager(t, s, o, "X")
	y := newManager(t, s, o, "Y")

	require.NoError(t, x.ReclaimStale("daemonA"))
	requireRecord(t, s, "daemonA", "0", "")

	require.True(t, x.TryAcquire("daemonA"))
	requireRecord(t, s, "daemonA", "1", "X")

	res := y.Acquire("daemonA")
	assert.Equal(t, singleton.Contended, res.Outcome)
	assert.Equal(t, "X", res.Owner)
	requireRecord(t, s, "daemonA", "1", "X")

	x.Release("daemonA", 0)
	requireRecord(t, s, "daemonA", "0", "")

	require.True(t, y.TryAcquire("daemonA"))
	requireRecord(t, s, "daemonA", "1", "Y")
}

func TestConcurrentAcquireHasOneWinner(t *testing.T) {
	const nodes = 8
	s := singletonmem.NewStore()
	o := singletonmem.NewStaticOracle()
	managers := make([]*singleton.Manager, nodes)
	for i := range managers {
		managers[i] = newManager(t, s, o, fmt.Sprintf("node-%d", i))
	}
	require.NoError(t, managers[0].ReclaimStale("a"))

	// Hold every reader until all of them have seen the lock free.
	var arrived int32
	ready := make(chan struct{})
	s.OnRead(func(string) {
		if atomic.AddInt32(&arrived, 1) == nodes {
			close(ready)
		}
		<-ready
	})

	results := make([]singleton.AcquireResult, nodes)
	var wg sync.WaitGroup
	for i := range managers {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = managers[idx].Acquire("a")
		}(i)
	}
	wg.Wait()

	winners := 0
	winner := ""
	for i, r := range results {
		switch r.Outcome {
		case singleton.Acquired:
			winners++
			winner = managers[i].Self()
		case singleton.Contended:
		default:
			t.Fatalf("node %d: unexpected outcome %v (%v)", i, r.Outcome, r.Err)
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, nodes, s.Calls(singletonmem.OpWriteConditional))
	requireRecord(t, s, "a", "1", winner)
}

func TestAcquireHeldBySelfIsContended(t *testing.T) {
	s := singletonmem.NewStore()
	m := newManager(t, s, singletonmem.NewStaticOracle(), "X")
	require.NoError(t, m.ReclaimStale("a"))
	require.True(t, m.TryAcquire("a"))

	res := m.Acquire("a")
	assert.Equal(t, singleton.Contended, res.Outcome)
	assert.Equal(t, "X", res.Owner)
}

func TestAcquireStoreErrors(t *testing.T) {
	s := singletonmem.NewStore()
	m := newManager(t, s, singletonmem.NewStaticOracle(), "X")

	// No record yet.
	res := m.Acquire("a")
	assert.Equal(t, singleton.StoreFailed, res.Outcome)
	assert.Equal(t, singleton.ErrNotInitialized, res.Err)

	require.NoError(t, m.ReclaimStale("a"))

	// A failed read is not retried.
	s.FailNext(singletonmem.OpRead, singleton.ErrServiceUnavailable)
	res = m.Acquire("a")
	assert.Equal(t, singleton.StoreFailed, res.Outcome)
	assert.True(t, singleton.IsUnavailable(res.Err))

	// An unavailable conditional write is retried until the budget runs out.
	s.FailNext(singletonmem.OpWriteConditional,
		singleton.ErrServiceUnavailable, singleton.ErrServiceUnavailable,
		singleton.ErrServiceUnavailable, singleton.ErrServiceUnavailable)
	before := s.Calls(singletonmem.OpWriteConditional)
	res = m.Acquire("a")
	assert.Equal(t, singleton.StoreFailed, res.Outcome)
	assert.True(t, singleton.IsRetryExhausted(res.Err))
	assert.Equal(t, 4, s.Calls(singletonmem.OpWriteConditional)-before)
	assert.False(t, m.TryAcquire("b"))

	// Other errors fail without retry.
	s.FailNext(singletonmem.OpWriteConditional, errors.New("access denied"))
	before = s.Calls(singletonmem.OpWriteConditional)
	assert.False(t, m.TryAcquire("a"))
	assert.Equal(t, 1, s.Calls(singletonmem.OpWriteConditional)-before)
	requireRecord(t, s, "a", "0", "")

	// Malformed STATE.
	s.Put("c", singleton.Attributes{singleton.StateAttr: {"7"}})
	res = m.Acquire("c")
	assert.Equal(t, singleton.ErrMalformedRecord, res.Err)
}

func TestAcquireRecoversTransientConditionalWrite(t *testing.T) {
	s := singletonmem.NewStore()
	m := newManager(t, s, singletonmem.NewStaticOracle(), "X")
	require.NoError(t, m.ReclaimStale("a"))

	s.FailNext(singletonmem.OpWriteConditional, singleton.ErrServiceUnavailable)
	assert.True(t, m.TryAcquire("a"))
	requireRecord(t, s, "a", "1", "X")
}

func TestAcquireFailsWithoutOwnerRecorded(t *testing.T) {
	s := singletonmem.NewStore()
	o := singletonmem.NewStaticOracle("X", "Y")
	x := newManager(t, s, o, "X")
	require.NoError(t, x.ReclaimStale("a"))

	s.FailNext(singletonmem.OpWriteUnconditional, errors.New("owner write rejected"))
	res := x.Acquire("a")
	assert.Equal(t, singleton.StoreFailed, res.Outcome)
	require.Error(t, res.Err)
	requireRecord(t, s, "a", "1", "")

	// The ownerless record is stale to everyone, and only the node that
	// reclaims it ends up holding the lock.
	y := newManager(t, s, o, "Y")
	require.NoError(t, y.ReclaimStale("a"))
	assert.True(t, y.TryAcquire("a"))
	assert.False(t, x.TryAcquire("a"))
	requireRecord(t, s, "a", "1", "Y")
}

func TestReleaseGivesUpAfterThreeAttempts(t *testing.T) {
	s := singletonmem.NewStore()
	m := newManager(t, s, singletonmem.NewStaticOracle(), "X")
	require.NoError(t, m.ReclaimStale("a"))
	require.True(t, m.TryAcquire("a"))

	s.FailNext(singletonmem.OpWriteConditional,
		singleton.ErrConflict, singleton.ErrServiceUnavailable, errors.New("other"), nil)
	before := s.Calls(singletonmem.OpWriteConditional)
	assert.NotPanics(t, func() { m.Release("a", 0) })
	assert.Equal(t, singleton.ReleaseAttempts, s.Calls(singletonmem.OpWriteConditional)-before)
	requireRecord(t, s, "a", "1", "X")

	// The queued nil lets the next release through.
	m.Release("a", 0)
	requireRecord(t, s, "a", "0", "")
}

func TestReleaseRetriesAfterTransientFailure(t *testing.T) {
	s := singletonmem.NewStore()
	m := newManager(t, s, singletonmem.NewStaticOracle(), "X")
	require.NoError(t, m.ReclaimStale("a"))
	require.True(t, m.TryAcquire("a"))

	s.FailNext(singletonmem.OpWriteConditional, singleton.ErrServiceUnavailable)
	m.Release("a", time.Millisecond)
	requireRecord(t, s, "a", "0", "")
}

func TestReclaimCreatesMissingRecord(t *testing.T) {
	s := singletonmem.NewStore()
	o := singletonmem.NewStaticOracle()
	x := newManager(t, s, o, "X")
	y := newManager(t, s, o, "Y")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, m := range []*singleton.Manager{x, y} {
		wg.Add(1)
		go func(idx int, m *singleton.Manager) {
			defer wg.Done()
			errs[idx] = m.ReclaimStale("a")
		}(i, m)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	state, _ := s.Get("a").Value(singleton.StateAttr)
	owner, _ := s.Get("a").Value(singleton.OwnerAttr)
	assert.Equal(t, "0", state)
	assert.Equal(t, "", owner)
	assert.True(t, x.TryAcquire("a"))
}

func TestReclaimDeadOwner(t *testing.T) {
	for _, state := range []string{"0", "1", "garbage"} {
		t.Run(state, func(t *testing.T) {
			s := singletonmem.NewStore()
			o := singletonmem.NewStaticOracle("Y")
			s.Put("a", singleton.Attributes{singleton.StateAttr: {state}, singleton.OwnerAttr: {"dead"}})

			m := newManager(t, s, o, "Y")
			require.NoError(t, m.ReclaimStale("a"))
			requireRecord(t, s, "a", "0", "")
			assert.Equal(t, []string{"dead"}, o.Asked())
		})
	}
}

func TestReclaimOwnLockSkipsOracle(t *testing.T) {
	s := singletonmem.NewStore()
	o := singletonmem.NewStaticOracle("X")
	s.Put("a", singleton.Attributes{singleton.StateAttr: {"1"}, singleton.OwnerAttr: {"X"}})

	m := newManager(t, s, o, "X")
	require.NoError(t, m.ReclaimStale("a"))
	requireRecord(t, s, "a", "0", "")
	assert.Empty(t, o.Asked())
}

func TestReclaimHeldWithoutOwner(t *testing.T) {
	s := singletonmem.NewStore()
	o := singletonmem.NewStaticOracle()
	s.Put("a", singleton.Attributes{singleton.StateAttr: {"1"}})

	m := newManager(t, s, o, "X")
	require.NoError(t, m.ReclaimStale("a"))
	requireRecord(t, s, "a", "0", "")
	assert.Empty(t, o.Asked())
}

func TestReclaimLeavesLiveOwner(t *testing.T) {
	s := singletonmem.NewStore()
	o := singletonmem.NewStaticOracle("X")
	s.Put("a", singleton.Attributes{singleton.StateAttr: {"1"}, singleton.OwnerAttr: {"X"}})

	m := newManager(t, s, o, "Y")
	require.NoError(t, m.ReclaimStale("a"))
	requireRecord(t, s, "a", "1", "X")
	assert.Equal(t, 0, s.Calls(singletonmem.OpWriteUnconditional))
}

func TestReclaimErrorsAreFatal(t *testing.T) {
	s := singletonmem.NewStore()
	m := newManager(t, s, singletonmem.NewStaticOracle(), "X")

	s.FailNext(singletonmem.OpRead,
		singleton.ErrServiceUnavailable, singleton.ErrServiceUnavailable,
		singleton.ErrServiceUnavailable, singleton.ErrServiceUnavailable)
	err := m.ReclaimStale("a")
	assert.True(t, singleton.IsRetryExhausted(err))

	s.FailNext(singletonmem.OpWriteUnconditional, errors.New("access denied"))
	err = m.ReclaimStale("a")
	require.Error(t, err)
	assert.False(t, singleton.IsRetryExhausted(err))
	assert.Equal(t, 1, s.Calls(singletonmem.OpWriteUnconditional))

	// A transient failure on the forced write is retried.
	s.FailNext(singletonmem.OpWriteUnconditional, singleton.ErrServiceUnavailable)
	require.NoError(t, m.ReclaimStale("a"))
	requireRecord(t, s, "a", "0", "")
}

func TestObserve(t *testing.T) {
	s := singletonmem.NewStore()
	o := singletonmem.NewStaticOracle("X")
	x := newManager(t, s, o, "X")
	y := newManager(t, s, o, "Y")

	st, _, err := x.Observe("a")
	require.NoError(t, err)
	assert.Equal(t, singleton.StateUninitialized, st)

	require.NoError(t, x.ReclaimStale("a"))
	st, _, _ = x.Observe("a")
	assert.Equal(t, singleton.StateFree, st)

	require.True(t, x.TryAcquire("a"))
	st, rec, _ := x.Observe("a")
	assert.Equal(t, singleton.StateHeldBySelf, st)
	assert.Equal(t, "X", rec.Owner)
	st, _, _ = y.Observe("a")
	assert.Equal(t, singleton.StateHeldByOther, st)

	o.SetAlive("X", false)
	st, _, _ = y.Observe("a")
	assert.Equal(t, singleton.StateHeldByDead, st)
}

func TestManagerMetrics(t *testing.T) {
	s := singletonmem.NewStore()
	metrics := singleton.NewMetrics()
	m, err := singleton.NewManager(singleton.ManagerOpts{
		Store:   s,
		Oracle:  singletonmem.NewStaticOracle(),
		Self:    "X",
		Retry:   singleton.RetryPolicy{MaxAttempts: 3, Sleep: noSleep},
		Metrics: metrics,
	})
	require.NoError(t, err)

	require.NoError(t, m.ReclaimStale("a"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Reclaims.WithLabelValues("a", "created")))

	s.FailNext(singletonmem.OpWriteConditional, singleton.ErrServiceUnavailable)
	require.True(t, m.TryAcquire("a"))
	assert.False(t, m.TryAcquire("a"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Acquires.WithLabelValues("a", "acquired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Acquires.WithLabelValues("a", "contended")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Retries.WithLabelValues("acquire")))

	s.FailNext(singletonmem.OpWriteConditional, singleton.ErrServiceUnavailable)
	m.Release("a", 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Releases.WithLabelValues("a", "released")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Retries.WithLabelValues("release")))
}

func TestRetryLogsCarryElapsed(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	s := singletonmem.NewStore()
	m, err := singleton.NewManager(singleton.ManagerOpts{
		Store:  s,
		Oracle: singletonmem.NewStaticOracle(),
		Self:   "X",
		Retry:  singleton.RetryPolicy{MaxAttempts: 3, Sleep: noSleep},
		Logger: &logger,
	})
	require.NoError(t, err)
	require.NoError(t, m.ReclaimStale("a"))

	s.FailNext(singletonmem.OpWriteConditional, singleton.ErrServiceUnavailable)
	s.FailNext(singletonmem.OpWriteUnconditional, errors.New("owner write rejected"))
	require.False(t, m.TryAcquire("a"))

	var retried, ownerless bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		entry := map[string]interface{}{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		switch entry["op"] {
		case "acquire":
			if entry["attempt"] != nil {
				retried = true
				assert.Contains(t, entry, "elapsed")
			}
		case "record-owner":
			ownerless = true
			assert.Contains(t, entry, "elapsed")
		}
	}
	assert.True(t, retried)
	assert.True(t, ownerless)
}
