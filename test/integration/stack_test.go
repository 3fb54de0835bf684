package integration

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strongroomhq/strongroom/pkg/api"
	"github.com/strongroomhq/strongroom/pkg/chains"
	"github.com/strongroomhq/strongroom/pkg/client"
	"github.com/strongroomhq/strongroom/pkg/clock"
	"github.com/strongroomhq/strongroom/pkg/events"
	"github.com/strongroomhq/strongroom/pkg/processor"
	"github.com/strongroomhq/strongroom/pkg/provider"
	"github.com/strongroomhq/strongroom/pkg/provider/blockbook"
	"github.com/strongroomhq/strongroom/pkg/provider/providertest"
	"github.com/strongroomhq/strongroom/pkg/reconcile"
	"github.com/strongroomhq/strongroom/pkg/scheduler"
	"github.com/strongroomhq/strongroom/pkg/storage"
	"github.com/strongroomhq/strongroom/pkg/worker"
	"github.com/strongroomhq/strongroom/pkg/workflow"
)

// stack wires the whole service in one process: the HTTP API behind an
// httptest server, the SDK client pointed at it, the job worker, and a
// scripted provider gateway registered under the blockbook name so that
// ethereum jobs created through the API route to it.
type stack struct {
	clk     *clock.Fake
	store   *storage.MemoryStore
	fake    *providertest.Fake
	service *reconcile.Service
	orch    *workflow.Orchestrator
	worker  *worker.Worker
	client  *client.Client
}

func newStack(t *testing.T) *stack {
	t.Helper()

	registry, err := chains.NewRegistry()
	require.NoError(t, err)

	clk := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	store := storage.NewMemoryStore(clk)

	fake := providertest.New()
	fake.GatewayName = blockbook.Name
	providers := provider.NewRegistry()
	providers.Register(fake)

	proc, err := processor.New(store, registry, nil, processor.Config{})
	require.NoError(t, err)

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	service := reconcile.NewService(store, registry, broker)
	orch := workflow.NewOrchestrator(store, broker, workflow.Config{})

	w := worker.New(store, providers, registry, proc, broker, clk, worker.Config{
		PollInterval: 5 * time.Millisecond,
	})

	srv := api.NewServer(api.Config{ListenAddr: ":0", Version: "integration"}, store, service, orch)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &stack{
		clk:     clk,
		store:   store,
		fake:    fake,
		service: service,
		orch:    orch,
		worker:  w,
		client:  client.New(ts.URL),
	}
}

func (s *stack) startWorker(t *testing.T) {
	t.Helper()
	s.worker.Start()
	t.Cleanup(func() { s.worker.Stop(2 * time.Second) })
}

func (s *stack) startScheduler(t *testing.T, cfg scheduler.Config) {
	t.Helper()
	sched := scheduler.New(s.store, s.service, s.clk, cfg)
	sched.Start()
	t.Cleanup(sched.Stop)
}
