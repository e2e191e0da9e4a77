package network

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hearthlink/hearthlink/internal/metrics"
	"github.com/hearthlink/hearthlink/internal/protocol"
	"github.com/hearthlink/hearthlink/internal/util"
)

// DefaultDelayedPoll is how often deferred replies are re-checked while the
// inbound queue is idle.
const DefaultDelayedPoll = 50 * time.Millisecond

// Executor runs decoded replies in arrival order. Replies that are not yet
// ready wait in a delayed queue; replies whose update asks to run again are
// retried before anything else.
type Executor struct {
	replies *protocol.Registry[protocol.Reply]
	inbound *Queue[protocol.Reply]
	delayed *Queue[protocol.Reply]
	metrics *metrics.Metrics
	logger  zerolog.Logger

	repeat protocol.Reply

	DelayedPoll time.Duration
}

// NewExecutor creates an executor draining inbound. A nil m disables export
// of the executor counters.
func NewExecutor(replies *protocol.Registry[protocol.Reply], inbound *Queue[protocol.Reply], m *metrics.Metrics) *Executor {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Executor{
		replies:     replies,
		inbound:     inbound,
		delayed:     NewQueue[protocol.Reply](),
		metrics:     m,
		logger:      util.ComponentLogger("executor"),
		DelayedPoll: DefaultDelayedPoll,
	}
}

// Delayed returns the number of replies waiting to become ready.
func (e *Executor) Delayed() int {
	return e.delayed.Len()
}

// Run executes replies until ctx is done. An update in progress always
// finishes before cancellation is observed.
func (e *Executor) Run(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: executor: %v", ErrWorkerPanic, p)
		}
	}()

	for ctx.Err() == nil {
		msg := e.next(ctx)
		if msg == nil {
			continue
		}
		e.execute(msg)
	}
	return nil
}

// next picks the reply to run: a pending repeat, then a ready delayed head,
// then the inbound queue. It returns nil when nothing was available.
func (e *Executor) next(ctx context.Context) protocol.Reply {
	if msg := e.repeat; msg != nil {
		e.repeat = nil
		return msg
	}

	if head, ok := e.delayed.Peek(); ok && head.Ready() {
		e.delayed.TryPop()
		e.metrics.DelayedQueued.Set(float64(e.delayed.Len()))
		return head
	}

	wait := ctx
	if e.delayed.Len() > 0 {
		var cancel context.CancelFunc
		wait, cancel = context.WithTimeout(ctx, e.DelayedPoll)
		defer cancel()
	}

	msg, err := e.inbound.Pop(wait)
	if err != nil {
		return nil
	}
	e.metrics.InboundQueued.Set(float64(e.inbound.Len()))
	return msg
}

// execute runs one update of msg, deferring it when it is not ready.
func (e *Executor) execute(msg protocol.Reply) {
	if !msg.Ready() {
		e.delayed.Push(msg)
		e.metrics.DeferredReplies.Inc()
		e.metrics.DelayedQueued.Set(float64(e.delayed.Len()))
		e.logger.Debug().Str("id", protocol.ReplyName(msg.ID())).Msg("reply not ready, deferred")
		return
	}

	if !msg.Execute() {
		e.repeat = msg
		e.metrics.RepeatedUpdates.Inc()
		return
	}

	e.metrics.ExecutedReplies.Inc()
	e.replies.Recycle(msg)
}

// Reset drops deferred and repeating replies.
func (e *Executor) Reset() {
	e.repeat = nil
	e.delayed.Clear()
	e.metrics.DelayedQueued.Set(0)
}
