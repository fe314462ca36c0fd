package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/nerrad567/vera-bridge/internal/bridges/vera"
	"github.com/nerrad567/vera-bridge/internal/infrastructure/metrics"
)

// Pusher defaults.
const (
	defaultPushTimeout = 30 * time.Second

	// defaultQueueSize is how many device events may wait for the sink.
	defaultQueueSize = 16

	// breakerFailureThreshold consecutive failures open the circuit.
	breakerFailureThreshold = 5

	// breakerOpenTimeout is how long the circuit stays open before a trial request.
	breakerOpenTimeout = 30 * time.Second

	// breakerInterval resets failure counts while closed.
	breakerInterval = 60 * time.Second
)

// AddressSource yields the current sink IP. *Address satisfies it.
type AddressSource interface {
	Current() string
}

// PusherOptions holds configuration for creating a pusher.
type PusherOptions struct {
	// Address yields the destination IP for every push. Required.
	Address AddressSource

	// DevicePort receives device events sent through Deliver.
	DevicePort int

	// Method is the HTTP method (default GET, as existing sinks expect).
	Method string

	// Timeout bounds each push (default 30s).
	Timeout time.Duration

	// QueueSize bounds the events waiting for delivery (default 16).
	// Events arriving while the queue is full are dropped.
	QueueSize int

	// HTTPClient overrides the client used for pushes.
	HTTPClient *http.Client

	// Logger is optional structured logger.
	Logger Logger
}

// Pusher sends JSON bodies to the HTTP sink through a circuit breaker.
//
// Device events given to Deliver are sent one at a time, in order, by a
// single worker. Call Close to stop it.
//
// Thread Safety: All methods are safe for concurrent use.
type Pusher struct {
	addr       AddressSource
	devicePort int
	method     string
	timeout    time.Duration
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker[struct{}]
	logger     Logger

	queue   chan vera.Message
	pending sync.WaitGroup
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewPusher creates a pusher and starts its delivery worker.
func NewPusher(opts PusherOptions) *Pusher {
	p := &Pusher{
		addr:       opts.Address,
		devicePort: opts.DevicePort,
		method:     opts.Method,
		timeout:    opts.Timeout,
		client:     opts.HTTPClient,
		logger:     opts.Logger,
	}
	if p.method == "" {
		p.method = http.MethodGet
	}
	if p.timeout <= 0 {
		p.timeout = defaultPushTimeout
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: p.timeout}
	}
	if p.logger == nil {
		p.logger = noopLogger{}
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	p.queue = make(chan vera.Message, queueSize)
	p.done = make(chan struct{})

	p.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:     "http-sink",
		Interval: breakerInterval,
		Timeout:  breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SinkBreakerState.Set(float64(to))
			p.logger.Warn("sink circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	go p.run()
	return p
}

// Push sends body as JSON to http://<current-ip>:<port>/.
//
// Parameters:
//   - ctx: Context for cancellation; the pusher timeout also applies
//   - port: Destination port
//   - body: Value encoded as UTF-8 JSON without HTML escaping
//
// Returns:
//   - error: nil only when the sink answered 200
func (p *Pusher) Push(ctx context.Context, port int, body any) error {
	payload, err := encodeJSON(body)
	if err != nil {
		return fmt.Errorf("encoding sink payload: %w", err)
	}

	endpoint := p.URL(port)
	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.send(ctx, endpoint, payload)
	})

	switch {
	case err == nil:
		metrics.RecordSinkPush(metrics.ResultSuccess)
		p.logger.Debug("data sent to sink", "url", endpoint)
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordSinkPush(metrics.ResultCircuitOpen)
		return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	case errors.Is(err, ErrSinkRejected):
		metrics.RecordSinkPush(metrics.ResultRejected)
		return err
	default:
		metrics.RecordSinkPush(metrics.ResultError)
		return err
	}
}

// Deliver queues a device event for the device port. It never blocks: when
// the queue is full or the pusher is closed the event is dropped. Delivery
// failures are logged and the event is dropped.
func (p *Pusher) Deliver(msg vera.Message) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		metrics.RecordSinkPush(metrics.ResultDropped)
		return
	}

	p.pending.Add(1)
	select {
	case p.queue <- msg:
	default:
		p.pending.Done()
		metrics.RecordSinkPush(metrics.ResultDropped)
		p.logger.Warn("sink queue full, dropping event", "device", msg.Device, "type", msg.Type)
	}
}

// run sends queued events until the queue is closed.
func (p *Pusher) run() {
	defer close(p.done)
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.Push(ctx, p.devicePort, msg); err != nil {
			p.logger.Error("sink push failed", "device", msg.Device, "type", msg.Type, "error", err)
		}
		cancel()
		p.pending.Done()
	}
}

// Wait blocks until every queued event has been sent or dropped.
func (p *Pusher) Wait() {
	p.pending.Wait()
}

// Close stops accepting events, sends those already queued and stops the
// worker. It is safe to call more than once.
func (p *Pusher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
}

// URL returns the sink endpoint for port at the current address.
func (p *Pusher) URL(port int) string {
	return "http://" + net.JoinHostPort(p.addr.Current(), strconv.Itoa(port)) + "/"
}

// BreakerState returns the circuit breaker state name.
func (p *Pusher) BreakerState() string {
	return p.breaker.State().String()
}

func (p *Pusher) send(ctx context.Context, endpoint string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, p.method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // Drain for connection reuse

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d from %s", ErrSinkRejected, resp.StatusCode, endpoint)
	}
	return nil
}

// encodeJSON marshals v without HTML escaping and without a trailing newline.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
