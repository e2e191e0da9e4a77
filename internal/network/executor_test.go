package network

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthlink/hearthlink/internal/metrics"
	"github.com/hearthlink/hearthlink/internal/protocol"
)

const (
	idStep  = 0x01
	idGated = 0x02
	idBoom  = 0x03
)

type traceLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *traceLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, s)
}

func (l *traceLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// stepReply needs Steps updates to complete.
type stepReply struct {
	protocol.Base
	protocol.AlwaysReady
	log   *traceLog
	Name  string
	Steps int
	done  int
}

func (m *stepReply) Decode(*protocol.Reader) error { return nil }

func (m *stepReply) Execute() bool {
	m.done++
	m.log.add(fmt.Sprintf("%s%d", m.Name, m.done))
	return m.done >= m.Steps
}

func (m *stepReply) Reset() {
	m.Name = ""
	m.Steps = 0
	m.done = 0
}

// gatedReply is ready once its gate opens.
type gatedReply struct {
	protocol.Base
	log  *traceLog
	gate *atomic.Bool
}

func (m *gatedReply) Decode(*protocol.Reader) error { return nil }
func (m *gatedReply) Ready() bool                   { return m.gate.Load() }

func (m *gatedReply) Execute() bool {
	m.log.add("gated")
	return true
}

type boomReply struct {
	protocol.Base
	protocol.AlwaysReady
}

func (m *boomReply) Decode(*protocol.Reader) error { return nil }
func (m *boomReply) Execute() bool                 { panic("handler failure") }

type executorFixture struct {
	replies  *protocol.Registry[protocol.Reply]
	inbound  *Queue[protocol.Reply]
	executor *Executor
	metrics  *metrics.Metrics
	log      *traceLog
	gate     *atomic.Bool
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	f := &executorFixture{
		log:     &traceLog{},
		gate:    &atomic.Bool{},
		inbound: NewQueue[protocol.Reply](),
		metrics: metrics.NewUnregistered(),
	}

	f.replies = protocol.NewRegistry[protocol.Reply]("test")
	require.NoError(t, f.replies.Register(idStep, func() protocol.Reply { return &stepReply{log: f.log} }))
	require.NoError(t, f.replies.Register(idGated, func() protocol.Reply { return &gatedReply{log: f.log, gate: f.gate} }))
	require.NoError(t, f.replies.Register(idBoom, func() protocol.Reply { return &boomReply{} }))
	require.NoError(t, f.replies.Finish())

	f.executor = NewExecutor(f.replies, f.inbound, f.metrics)
	f.executor.DelayedPoll = 5 * time.Millisecond
	return f
}

func (f *executorFixture) step(t *testing.T, name string, steps int) {
	t.Helper()
	msg, err := f.replies.Get(idStep)
	require.NoError(t, err)
	s := msg.(*stepReply)
	s.Name = name
	s.Steps = steps
	f.inbound.Push(s)
}

func (f *executorFixture) run(t *testing.T) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.executor.Run(ctx) }()
	return func() error {
		cancel()
		select {
		case err := <-errCh:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("executor did not stop")
			return nil
		}
	}
}

func TestExecutorRepeatsWithoutInterleaving(t *testing.T) {
	f := newExecutorFixture(t)
	f.step(t, "a", 3)
	f.step(t, "b", 1)
	f.step(t, "c", 2)

	stop := f.run(t)
	require.Eventually(t, func() bool { return len(f.log.snapshot()) == 6 }, time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	assert.Equal(t, []string{"a1", "a2", "a3", "b1", "c1", "c2"}, f.log.snapshot())
	assert.Equal(t, float64(3), testutil.ToFloat64(f.metrics.RepeatedUpdates))
	assert.Equal(t, float64(3), testutil.ToFloat64(f.metrics.ExecutedReplies))
}

func TestExecutorDefersUntilReady(t *testing.T) {
	f := newExecutorFixture(t)

	gated, err := f.replies.Get(idGated)
	require.NoError(t, err)
	f.inbound.Push(gated)
	f.step(t, "plain", 1)

	stop := f.run(t)
	require.Eventually(t, func() bool { return len(f.log.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.executor.Delayed())

	f.gate.Store(true)
	require.Eventually(t, func() bool { return len(f.log.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	assert.Equal(t, []string{"plain1", "gated"}, f.log.snapshot())
	assert.Equal(t, 0, f.executor.Delayed())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.DeferredReplies))
}

func TestExecutorPanicIsFatal(t *testing.T) {
	f := newExecutorFixture(t)

	boom, err := f.replies.Get(idBoom)
	require.NoError(t, err)
	f.inbound.Push(boom)

	err = f.executor.Run(context.Background())
	assert.ErrorIs(t, err, ErrWorkerPanic)
}

func TestExecutorReset(t *testing.T) {
	f := newExecutorFixture(t)

	gated, err := f.replies.Get(idGated)
	require.NoError(t, err)
	f.inbound.Push(gated)

	stop := f.run(t)
	require.Eventually(t, func() bool { return f.executor.Delayed() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	f.executor.Reset()
	assert.Equal(t, 0, f.executor.Delayed())
}
