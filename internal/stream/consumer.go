// Package stream consumes the server-sent event stream of job updates.
//
// A Subscription moves through connecting → open → closed. It never
// reconnects on its own: when the server ends the stream or the connection
// breaks, the subscription closes with a TRANSPORT_FAILURE and the caller
// decides what to do next.
//
// Malformed messages are logged, counted, and dropped. They never close the
// connection.
package stream

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/metrics"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/topic"
)

// Subscription states.
const (
	StateConnecting = "connecting"
	StateOpen       = "open"
	StateClosed     = "closed"
)

const (
	eventOpened = "opened"
	eventClose  = "close"
)

// maxFrameSize bounds the data of a single event on the stream.
const maxFrameSize = 1 << 20

// Opener opens the raw event stream. *upstream.Client implements it.
type Opener interface {
	OpenEvents(ctx context.Context) (io.ReadCloser, error)
}

// Consumer creates subscriptions against one event stream.
type Consumer struct {
	open    Opener
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithLogger sets the consumer's logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Consumer) { c.log = l }
}

// WithMetrics counts subscriptions and dropped messages.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Consumer) { c.metrics = m }
}

// New creates a consumer.
func New(open Opener, opts ...Option) *Consumer {
	c := &Consumer{
		open: open,
		log:  zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe opens the stream and delivers every well-formed progress and
// complete event to onEvent, in arrival order, from a single goroutine.
//
// Subscribe returns once the connection is established. A failed connect
// returns a TRANSPORT_FAILURE and no subscription. Cancelling ctx has the
// same effect as Unsubscribe.
func (c *Consumer) Subscribe(ctx context.Context, onEvent func(topic.Event)) (*Subscription, error) {
	sub := newSubscription(c.log)

	ctx, cancel := context.WithCancel(ctx)
	body, err := c.open.OpenEvents(ctx)
	if err != nil {
		cancel()
		sub.transition(eventClose)
		c.metrics.Subscription(metrics.ResultFailure)
		return nil, err
	}

	sub.cancel = cancel
	sub.body = body
	sub.transition(eventOpened)
	c.metrics.Subscription(metrics.ResultOK)
	c.log.Infow("event stream open")

	go c.read(ctx, sub, onEvent)
	return sub, nil
}

func (c *Consumer) read(ctx context.Context, sub *Subscription, onEvent func(topic.Event)) {
	defer close(sub.done)
	defer sub.cancel()
	defer sub.body.Close()

	err := readFrames(sub.body, func(data string) {
		c.dispatch(data, onEvent)
	}, func(size int) {
		c.metrics.Malformed(metrics.SourceEvent)
		c.log.Warnw("dropping oversized event", "bytes", size, "limit", maxFrameSize)
	})

	switch {
	case ctx.Err() != nil:
		// Unsubscribed or the caller's context ended.
		err = nil
		c.log.Debugw("event stream closed by client")
	case err == nil:
		err = topic.NewTransportFailure("event stream ended", io.EOF)
		c.log.Warnw("event stream closed by server")
	default:
		err = topic.NewTransportFailure("read event stream", err)
		c.log.Warnw("event stream broken", "error", err)
	}

	sub.err = err
	sub.transition(eventClose)
}

func (c *Consumer) dispatch(data string, onEvent func(topic.Event)) {
	ev, err := topic.ParseEvent([]byte(data))
	if err != nil {
		c.metrics.Malformed(metrics.SourceEvent)
		c.log.Warnw("dropping malformed event", "error", err, "data", truncate(data, 200))
		return
	}
	if ev.Kind == topic.EventInfo {
		c.log.Debugw("stream control frame", "message", ev.Message)
		return
	}
	onEvent(ev)
}

// readFrames calls fn with the data of every complete event in r. Multi-line
// data fields are joined with "\n". Comment lines and the event, id, and
// retry fields are ignored. An event cut off by EOF is discarded.
//
// An event whose data exceeds maxFrameSize is skipped without buffering it
// and reported to oversized with its size; reading continues with the next
// event.
func readFrames(r io.Reader, fn func(data string), oversized func(size int)) error {
	br := bufio.NewReaderSize(r, 64*1024)

	var (
		data    []string
		line    []byte
		lineLen int
		size    int
		pending bool
	)
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		lineLen += len(chunk)
		if lineLen <= maxFrameSize {
			line = append(line, chunk...)
		}
		if isPrefix {
			continue
		}
		text, n := string(line), lineLen
		line, lineLen = line[:0], 0

		if n == 0 {
			switch {
			case !pending:
			case size > maxFrameSize:
				oversized(size)
			default:
				fn(strings.Join(data, "\n"))
			}
			data, size, pending = data[:0], 0, false
			continue
		}
		if strings.HasPrefix(text, ":") {
			continue
		}

		field, value, _ := strings.Cut(text, ":")
		if field != "data" {
			continue
		}
		pending = true
		size += n - len(text) + len(value)
		if size <= maxFrameSize {
			data = append(data, strings.TrimPrefix(value, " "))
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Subscription is one open event stream.
//
// Thread-safety: all methods are safe for concurrent use.
type Subscription struct {
	machine *fsm.FSM
	mu      sync.Mutex

	cancel context.CancelFunc
	body   io.ReadCloser
	once   sync.Once
	done   chan struct{}
	err    error
}

func newSubscription(log *zap.SugaredLogger) *Subscription {
	s := &Subscription{done: make(chan struct{})}
	s.machine = fsm.NewFSM(
		StateConnecting,
		fsm.Events{
			{Name: eventOpened, Src: []string{StateConnecting}, Dst: StateOpen},
			{Name: eventClose, Src: []string{StateConnecting, StateOpen}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debugw("subscription state", "from", e.Src, "to", e.Dst)
			},
		},
	)
	return s
}

// transition fires event, ignoring events that do not apply to the
// current state.
func (s *Subscription) transition(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.machine.Can(event) {
		return
	}
	_ = s.machine.Event(context.Background(), event)
}

// State returns connecting, open, or closed.
func (s *Subscription) State() string {
	return s.machine.Current()
}

// Unsubscribe closes the connection and waits for the reader goroutine to
// exit. Calling it more than once is safe.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		_ = s.body.Close()
	})
	<-s.done
}

// Done is closed once the subscription reached the closed state.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err reports why the subscription closed. It is nil while the stream is
// open and after Unsubscribe or context cancellation; otherwise it is a
// TRANSPORT_FAILURE. Only meaningful after Done is closed.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}
