// Package arbiter implements the Request Queue, the single-writer
// Arbiter Loop, and the Maintenance Tick.
//
// Grounded on the teacher's queue.go (a channel-pair feeding a single
// consumer loop) and organizer.go (a single goroutine pulling off a
// channel to perform the only mutation in the process), generalized
// from Kalah's client/game matching to this spec's six request kinds
// and its turn-timeout/reap maintenance tick. The request+reply-channel
// record shape follows tkahng-quick-sticks' broker.go.
package arbiter

import (
	"context"
	"math/rand"
	"time"

	"fourrow/internal/conf"
	"fourrow/internal/store"
)

// EventSink receives best-effort lifecycle notifications (pairing,
// placement, AI takeover, reap, shutdown) for optional external
// observers such as internal/diag. Defined here, on the producer side,
// so diag can depend on arbiter without arbiter depending on diag.
type EventSink interface {
	Emit(event string, detail map[string]any)
}

type noopSink struct{}

func (noopSink) Emit(string, map[string]any) {}

// Arbiter is the single-writer process-wide actor: it owns the Queue,
// the Store, and the maintenance schedule. Only its own Start goroutine,
// and the reap sweeps that goroutine runs during maintenance, call into
// store.
type Arbiter struct {
	queue *Queue
	store *store.Store
	conf  *conf.Conf
	sink  EventSink
	rng   *rand.Rand

	shutdown chan struct{}
	done     chan struct{}

	lastReap time.Time
}

// New wires an Arbiter around an already-open Store. Pass the returned
// value to conf.Conf.Register to attach it to the manager lifecycle, or
// call Start directly.
func New(c *conf.Conf, st *store.Store) *Arbiter {
	return &Arbiter{
		queue:    NewQueue(c.QueueCapacity),
		store:    st,
		conf:     c,
		sink:     noopSink{},
		rng:      rand.New(rand.NewSource(1)),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// SetSink attaches an optional diagnostic event sink.
func (a *Arbiter) SetSink(sink EventSink) {
	if sink == nil {
		sink = noopSink{}
	}
	a.sink = sink
}

// Queue exposes the request queue producers submit onto.
func (a *Arbiter) Queue() *Queue { return a.queue }

// Submit allocates a reply channel, enqueues req, and blocks for the
// reply up to conf.ReplyTimeout, exactly as an HTTP-layer producer
// would. Convenience wrapper around Queue.Submit + Await for tests and
// for a future HTTP front end.
func (a *Arbiter) Submit(ctx context.Context, req *Request) Response {
	req.Reply = newReplyChan()
	if err := a.queue.Submit(req); err != nil {
		return Response{Status: OutcomeBackendBusy, Err: err}
	}
	ctx, cancel := context.WithTimeout(ctx, a.conf.ReplyTimeout)
	defer cancel()
	return Await(ctx, req)
}

func (a *Arbiter) emit(event string, detail map[string]any) {
	a.sink.Emit(event, detail)
}

// String satisfies conf.Manager.
func (a *Arbiter) String() string { return "Arbiter" }

// Start runs the arbiter loop until Shutdown is called. It implements
// spec.md §4.B's pseudocode: wait up to 1s for a request, dispatch it,
// reply, then always run the maintenance tick.
func (a *Arbiter) Start() {
	defer close(a.done)
	ctx := context.Background()

	for {
		select {
		case <-a.shutdown:
			return
		case req := <-a.queue.ch:
			resp := a.dispatch(ctx, req)
			select {
			case req.Reply <- resp:
			default:
				// The producer gave up waiting; ignore, per
				// spec.md §4.B step 4 and §7's propagation policy.
			}
		case <-time.After(time.Second):
		}

		if err := a.runMaintenance(ctx); err != nil {
			a.conf.Log.Printf("maintenance tick: %v", err)
		}
	}
}

// Shutdown signals the loop to stop and waits for it to exit.
func (a *Arbiter) Shutdown() {
	close(a.shutdown)
	<-a.done
	a.emit("shutdown", nil)
}
