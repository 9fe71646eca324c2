package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/tessera/internal/logging"
)

// Default sizes.
const (
	DefaultCapacity    = 64
	DefaultDrainBudget = 256
)

// Status reports the health of one category.
type Status struct {
	Degraded bool
	Err      error
	Since    time.Time
}

// DropReason says why a message was discarded.
type DropReason string

// Reasons a message is dropped.
const (
	DropUnknownRequest DropReason = "unknown_request"
	DropExpired        DropReason = "expired"
	DropClosedBuffer   DropReason = "closed_buffer"
)

type request struct {
	category Category
	buffer   BufferID
	issued   time.Time
	deadline time.Time
}

// Bridge owns the result channels and the bookkeeping that decides which
// results are still wanted. Post is safe from any goroutine; DrainFrame,
// Issue and the buffer registration methods belong to the loop but are
// also safe for concurrent use.
type Bridge struct {
	chans  [numCategories]chan Message
	budget int
	done   chan struct{}
	once   sync.Once

	mu      sync.Mutex
	pending map[RequestID]request
	live    map[BufferID]bool
	status  [numCategories]Status

	now     func() time.Time
	metrics *Metrics
	log     *logging.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithCapacity sets the channel capacity of one category.
func WithCapacity(c Category, n int) Option {
	return func(b *Bridge) {
		if c.valid() && n > 0 {
			b.chans[c] = make(chan Message, n)
		}
	}
}

// WithDrainBudget caps the messages handled per DrainFrame.
func WithDrainBudget(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.budget = n
		}
	}
}

// WithMetrics records bridge activity in m.
func WithMetrics(m *Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Bridge) {
		b.log = l
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) {
		b.now = now
	}
}

// New creates a bridge.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		budget:  DefaultDrainBudget,
		done:    make(chan struct{}),
		pending: make(map[RequestID]request),
		live:    make(map[BufferID]bool),
		now:     time.Now,
		log:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	for c := range b.chans {
		if b.chans[c] == nil {
			b.chans[c] = make(chan Message, DefaultCapacity)
		}
	}
	b.log = b.log.WithComponent("bridge")
	return b
}

// Post delivers msg to its category channel. It blocks only the calling
// worker while the channel is full, and gives up when ctx ends or the
// bridge is closed.
func (b *Bridge) Post(ctx context.Context, msg Message) error {
	if !msg.Category.valid() {
		return fmt.Errorf("bridge: post to %v: %w", msg.Category, ErrChannelClosed)
	}
	select {
	case <-b.done:
		return ErrChannelClosed
	default:
	}
	select {
	case b.chans[msg.Category] <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrChannelClosed
	}
}

// TryPost delivers msg without blocking. It reports whether the message
// was queued.
func (b *Bridge) TryPost(msg Message) bool {
	if !msg.Category.valid() {
		return false
	}
	select {
	case b.chans[msg.Category] <- msg:
		return true
	default:
		return false
	}
}

// Close stops accepting posts. Messages already queued can still be
// drained.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}

// Issue registers a request for buffer in category and returns its id.
// Its result is accepted until timeout elapses.
func (b *Bridge) Issue(c Category, buffer BufferID, timeout time.Duration) RequestID {
	id := RequestID(uuid.New())
	now := b.now()
	b.mu.Lock()
	b.pending[id] = request{category: c, buffer: buffer, issued: now, deadline: now.Add(timeout)}
	n := len(b.pending)
	b.mu.Unlock()
	b.metrics.setPending(n)
	return id
}

// Forget drops a request that will never be answered, such as one whose
// job was rejected.
func (b *Bridge) Forget(id RequestID) {
	b.mu.Lock()
	delete(b.pending, id)
	n := len(b.pending)
	b.mu.Unlock()
	b.metrics.setPending(n)
}

// Pending returns the number of requests awaiting a result.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// OpenBuffer marks buffer live so messages addressed to it are delivered.
func (b *Bridge) OpenBuffer(buffer BufferID) {
	b.mu.Lock()
	b.live[buffer] = true
	b.mu.Unlock()
}

// CancelBuffer forgets buffer and every request issued for it. Results
// that arrive later are dropped.
func (b *Bridge) CancelBuffer(buffer BufferID) int {
	b.mu.Lock()
	delete(b.live, buffer)
	var n int
	for id, r := range b.pending {
		if r.buffer == buffer {
			delete(b.pending, id)
			n++
		}
	}
	pending := len(b.pending)
	b.mu.Unlock()
	b.metrics.setPending(pending)
	return n
}

// Expire forgets requests whose deadline has passed and returns how many
// were dropped.
func (b *Bridge) Expire() int {
	now := b.now()
	b.mu.Lock()
	var n int
	for id, r := range b.pending {
		if now.After(r.deadline) {
			delete(b.pending, id)
			b.metrics.dropped(r.category, DropExpired)
			n++
		}
	}
	pending := len(b.pending)
	b.mu.Unlock()
	b.metrics.setPending(pending)
	return n
}

// DrainFrame polls every category without blocking and passes wanted
// messages to handle, up to the drain budget. It returns the number of
// messages handled.
func (b *Bridge) DrainFrame(handle func(Message)) int {
	handled, polled := 0, 0
	for polled < b.budget {
		progress := false
		for _, c := range Categories() {
			if polled >= b.budget {
				break
			}
			select {
			case msg := <-b.chans[c]:
				polled++
				progress = true
				b.metrics.drained(c)
				if b.accept(msg) {
					handle(msg)
					handled++
				}
			default:
			}
		}
		if !progress {
			break
		}
	}
	b.Expire()
	return handled
}

// accept decides whether msg is still wanted and updates bookkeeping.
func (b *Bridge) accept(msg Message) bool {
	if exit, ok := msg.Payload.(WorkerExited); ok {
		b.degrade(msg.Category, exit)
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !msg.Request.IsZero() {
		r, ok := b.pending[msg.Request]
		if !ok {
			b.drop(msg, DropUnknownRequest)
			return false
		}
		delete(b.pending, msg.Request)
		b.metrics.setPending(len(b.pending))
		if b.now().After(r.deadline) {
			b.drop(msg, DropExpired)
			return false
		}
	}
	if msg.Buffer != 0 && !b.live[msg.Buffer] {
		b.drop(msg, DropClosedBuffer)
		return false
	}
	return true
}

func (b *Bridge) drop(msg Message, reason DropReason) {
	b.metrics.dropped(msg.Category, reason)
	b.log.Debug("message dropped", "category", msg.Category, "buffer", msg.Buffer, "reason", reason)
}

// ReportExit marks c degraded because a worker stopped, and tells the loop
// with a WorkerExited message when there is room.
func (b *Bridge) ReportExit(c Category, worker string, err error) {
	exit := WorkerExited{Worker: worker, Err: err}
	b.degrade(c, exit)
	b.TryPost(Message{Category: c, Payload: exit})
}

func (b *Bridge) degrade(c Category, exit WorkerExited) {
	if !c.valid() {
		return
	}
	cause := fmt.Errorf("%s worker %q exited: %w", c, exit.Worker, ErrChannelClosed)
	if exit.Err != nil {
		cause = fmt.Errorf("%s worker %q exited: %w: %w", c, exit.Worker, ErrChannelClosed, exit.Err)
	}
	b.mu.Lock()
	first := !b.status[c].Degraded
	if first {
		b.status[c] = Status{Degraded: true, Err: cause, Since: b.now()}
	}
	b.mu.Unlock()
	if first {
		b.metrics.setDegraded(c, true)
		b.log.Warn("category degraded", "category", c, "err", cause)
	}
}

// Restore clears the degraded status of c after its worker restarted.
func (b *Bridge) Restore(c Category) {
	if !c.valid() {
		return
	}
	b.mu.Lock()
	b.status[c] = Status{}
	b.mu.Unlock()
	b.metrics.setDegraded(c, false)
}

// Status reports the health of c.
func (b *Bridge) Status(c Category) Status {
	if !c.valid() {
		return Status{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status[c]
}

// Queued returns the number of undrained messages in c.
func (b *Bridge) Queued(c Category) int {
	if !c.valid() {
		return 0
	}
	return len(b.chans[c])
}
