package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hackborn/singleton"
	singletonmem "github.com/hackborn/singleton/mem"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
resource: daemonA
node: node-1
pollInterval: 5s
releaseDelay: 250ms
retry:
  maxAttempts: 10
  baseDelay: 100ms
store:
  type: dynamodb
  provision: true
  config:
    table: locks
liveness:
  type: static
  alive: [node-1, node-2]
exec: [echo, hello]
`

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]byte(testConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.validate())

	assert.Equal(t, "daemonA", cfg.Resource)
	assert.Equal(t, StoreTypeDynamoDB, cfg.Store.Type)
	assert.True(t, cfg.Store.Provision)
	assert.Equal(t, []string{"node-1", "node-2"}, cfg.Liveness.Alive)
	assert.Equal(t, []string{"echo", "hello"}, cfg.Exec)
	assert.Equal(t, singleton.RunOpts{Resource: "daemonA", PollInterval: 5 * time.Second, ReleaseDelay: 250 * time.Millisecond}, cfg.runOpts())

	p := cfg.retryPolicy()
	assert.Equal(t, 10, p.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, p.BaseDelay)

	// Unset values keep their defaults.
	assert.Equal(t, IdentityTypeRandom, cfg.Identity)
	assert.Equal(t, "localhost:9102", cfg.MetricsListen)

	d := &daemon{cfg: cfg, log: zerolog.Nop()}
	opts, err := d.storeOpts()
	require.NoError(t, err)
	assert.Equal(t, "locks", opts.Table)
	assert.NotNil(t, opts.Logger)
}

func TestParseConfigErrors(t *testing.T) {
	_, err := parseConfig([]byte("pollInterval: soon"))
	assert.Error(t, err)

	cfg, err := parseConfig(nil)
	require.NoError(t, err)
	assert.True(t, errors.Is(cfg.validate(), singleton.ErrBadRequest), "resource is required")

	cfg.Resource = "a"
	require.NoError(t, cfg.validate())
	cfg.Store.Type = "postgres"
	assert.True(t, errors.Is(cfg.validate(), singleton.ErrBadRequest))
}

func TestDurationNumbers(t *testing.T) {
	cfg, err := parseConfig([]byte("pollInterval: 1000000"))
	require.NoError(t, err)
	assert.Equal(t, Duration(time.Millisecond), cfg.PollInterval)
}

func TestMemoryDaemon(t *testing.T) {
	cfg, err := parseConfig([]byte("resource: a\nnode: x\nliveness:\n  alive: [x]\n"))
	require.NoError(t, err)
	d := &daemon{cfg: cfg, log: zerolog.Nop(), metrics: singleton.NewMetrics()}

	store, err := d.newStore()
	require.NoError(t, err)
	assert.IsType(t, &singletonmem.Store{}, store)

	oracle, err := d.newOracle()
	require.NoError(t, err)
	assert.True(t, oracle.IsAlive("x"))

	m, err := d.newManager()
	require.NoError(t, err)
	assert.Equal(t, "x", m.Self())
}

func TestRandomNodeID(t *testing.T) {
	d := &daemon{cfg: defaultConfig(), log: zerolog.Nop()}
	a, err := d.nodeID()
	require.NoError(t, err)
	b, err := d.nodeID()
	require.NoError(t, err)
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestIdleWork(t *testing.T) {
	d := &daemon{cfg: defaultConfig(), log: zerolog.Nop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, d.work()(ctx))
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := singleton.NewMetrics()
	metrics.Register(reg)
	metrics.Acquires.WithLabelValues("a", "acquired").Inc()

	rec := httptest.NewRecorder()
	metricsHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "singleton_acquire_total")
}

func TestStopMetrics(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Addr: ln.Addr().String(), Handler: metricsHandler(prometheus.NewRegistry())}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	require.NoError(t, stopMetrics(srv, time.Second))
	select {
	case err := <-served:
		assert.Equal(t, http.ErrServerClosed, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics listener didn't stop")
	}
}
